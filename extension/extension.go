// Package extension provides the Forge extension adapter for crmledger.
//
// It implements the forge.Extension interface to integrate the billing
// ledger into a Forge application with DI registration, the default audit
// and metrics plugins, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.crmledger" or "crmledger" keys.
package extension

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/crmledger"
	audithook "github.com/xraph/crmledger/audit_hook"
	"github.com/xraph/crmledger/observability"
	"github.com/xraph/crmledger/store"
	"github.com/xraph/crmledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "crmledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Billing and subscription ledger for telecom CRM accounts"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts crmledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *crmledger.Ledger
	store      store.Store
	registerer prometheus.Registerer
	ledgerOpts []crmledger.Option
}

// New creates a new crmledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *crmledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = crmledger.New(e.store, e.buildLedgerOpts()...)

	return vessel.Provide(fapp.Container(), func() (*crmledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("crmledger: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("crmledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs crmledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []crmledger.Option {
	opts := make([]crmledger.Option, 0, len(e.ledgerOpts)+9)

	opts = append(opts,
		crmledger.WithSweepInterval(e.config.SweepInterval),
		crmledger.WithSweepBatch(e.config.SweepBatch),
		crmledger.WithSnapshotCacheTTL(e.config.SnapshotCacheTTL),
		crmledger.WithMaxConflictRetries(e.config.MaxConflictRetries),
		crmledger.WithCurrency(e.config.Currency),
		crmledger.WithInvoiceDueDays(e.config.InvoiceDueDays),
	)
	if e.config.DisableMigrate {
		opts = append(opts, crmledger.WithSkipMigrate())
	}
	if !e.config.DisableAudit {
		opts = append(opts, crmledger.WithPlugin(audithook.New(nil)))
	}
	if !e.config.DisableMetrics {
		factory := observability.NewPrometheusFactory(e.registerer, nil)
		opts = append(opts, crmledger.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Pass-through options last so they win over config.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("crmledger: configuration is required but not found in config files; " +
				"ensure 'extensions.crmledger' or 'crmledger' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("crmledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_audit", e.config.DisableAudit),
		forge.F("disable_metrics", e.config.DisableMetrics),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("sweep_batch", e.config.SweepBatch),
		forge.F("snapshot_cache_ttl", e.config.SnapshotCacheTTL),
		forge.F("max_conflict_retries", e.config.MaxConflictRetries),
		forge.F("currency", e.config.Currency),
		forge.F("invoice_due_days", e.config.InvoiceDueDays),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.crmledger", "crmledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("crmledger: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("crmledger: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.SweepBatch == 0 {
		cfg.SweepBatch = defaults.SweepBatch
	}
	if cfg.SnapshotCacheTTL == 0 {
		cfg.SnapshotCacheTTL = defaults.SnapshotCacheTTL
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = defaults.MaxConflictRetries
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.InvoiceDueDays == 0 {
		cfg.InvoiceDueDays = defaults.InvoiceDueDays
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableAudit {
		yamlConfig.DisableAudit = true
	}
	if programmaticConfig.DisableMetrics {
		yamlConfig.DisableMetrics = true
	}

	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}

	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.SweepBatch == 0 && programmaticConfig.SweepBatch != 0 {
		yamlConfig.SweepBatch = programmaticConfig.SweepBatch
	}
	if yamlConfig.SnapshotCacheTTL == 0 && programmaticConfig.SnapshotCacheTTL != 0 {
		yamlConfig.SnapshotCacheTTL = programmaticConfig.SnapshotCacheTTL
	}
	if yamlConfig.MaxConflictRetries == 0 && programmaticConfig.MaxConflictRetries != 0 {
		yamlConfig.MaxConflictRetries = programmaticConfig.MaxConflictRetries
	}
	if yamlConfig.InvoiceDueDays == 0 && programmaticConfig.InvoiceDueDays != 0 {
		yamlConfig.InvoiceDueDays = programmaticConfig.InvoiceDueDays
	}

	return mergeWithDefaults(yamlConfig)
}
