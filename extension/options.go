package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/plugin"
	"github.com/xraph/crmledger/store"
)

// Option configures the crmledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a crmledger.Option through to the underlying engine.
func WithLedgerOption(opt crmledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, crmledger.WithPlugin(p))
	}
}

// WithRegisterer sets where the metrics plugin registers its collectors.
// The default is prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Extension) { e.registerer = r }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableAudit skips the audit hook plugin.
func WithDisableAudit() Option {
	return func(e *Extension) { e.config.DisableAudit = true }
}

// WithDisableMetrics skips the metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSweepInterval sets how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithSnapshotCacheTTL sets the admin snapshot cache duration.
func WithSnapshotCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.SnapshotCacheTTL = d }
}

// WithCurrency sets the fallback billing currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}
