package extension

import (
	"time"

	"github.com/xraph/crmledger"
)

// Config holds the crmledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.crmledger" or "crmledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableAudit skips registering the audit hook plugin.
	DisableAudit bool `json:"disable_audit" mapstructure:"disable_audit" yaml:"disable_audit"`

	// DisableMetrics skips registering the Prometheus metrics plugin.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// SweepInterval is how often pending subscriptions are activated,
	// lapsed ones expired and late invoices marked overdue (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepBatch caps the subscriptions one sweep transitions (default: 500).
	SweepBatch int `json:"sweep_batch" mapstructure:"sweep_batch" yaml:"sweep_batch"`

	// SnapshotCacheTTL controls how long admin dashboard snapshots are
	// reused before being recomputed (default: 30s).
	SnapshotCacheTTL time.Duration `json:"snapshot_cache_ttl" mapstructure:"snapshot_cache_ttl" yaml:"snapshot_cache_ttl"`

	// MaxConflictRetries is the total number of attempts for an operation
	// that loses a concurrent update race (default: 3).
	MaxConflictRetries uint `json:"max_conflict_retries" mapstructure:"max_conflict_retries" yaml:"max_conflict_retries"`

	// Currency is used when no billing settings are stored (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// InvoiceDueDays is the payment term used when no billing settings are
	// stored (default: 30).
	InvoiceDueDays int `json:"invoice_due_days" mapstructure:"invoice_due_days" yaml:"invoice_due_days"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:      crmledger.DefaultSweepInterval,
		SweepBatch:         crmledger.DefaultSweepBatch,
		SnapshotCacheTTL:   crmledger.DefaultSnapshotCacheTTL,
		MaxConflictRetries: crmledger.DefaultMaxConflictRetries,
		Currency:           crmledger.DefaultCurrency,
		InvoiceDueDays:     crmledger.DefaultInvoiceDueDays,
	}
}
