package extension

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Currency: "eur"})

	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, crmledger.DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, crmledger.DefaultSweepBatch, cfg.SweepBatch)
	assert.Equal(t, crmledger.DefaultSnapshotCacheTTL, cfg.SnapshotCacheTTL)
	assert.Equal(t, uint(crmledger.DefaultMaxConflictRetries), cfg.MaxConflictRetries)
	assert.Equal(t, crmledger.DefaultInvoiceDueDays, cfg.InvoiceDueDays)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{
		SweepInterval: 5 * time.Minute,
		Currency:      "gbp",
	}
	programmatic := Config{
		SweepInterval:  time.Second,
		InvoiceDueDays: 14,
		Currency:       "eur",
		DisableMetrics: true,
	}

	cfg := mergeConfigurations(yamlCfg, programmatic)

	assert.Equal(t, 5*time.Minute, cfg.SweepInterval, "yaml wins when set")
	assert.Equal(t, "gbp", cfg.Currency)
	assert.Equal(t, 14, cfg.InvoiceDueDays, "programmatic fills gaps")
	assert.True(t, cfg.DisableMetrics)
	assert.False(t, cfg.DisableAudit)
	assert.Equal(t, crmledger.DefaultSweepBatch, cfg.SweepBatch)
}

func TestBuildLedgerOptsRegistersDefaultPlugins(t *testing.T) {
	e := New(WithRegisterer(prometheus.NewRegistry()))
	e.config = mergeWithDefaults(e.config)

	l := crmledger.New(memory.New(), e.buildLedgerOpts()...)

	assert.Equal(t, 2, l.Plugins().Count())
	assert.NotNil(t, l.Plugins().Get("audit-hook"))
	assert.NotNil(t, l.Plugins().Get("observability-metrics"))
}

func TestBuildLedgerOptsHonoursDisableFlags(t *testing.T) {
	e := New(WithDisableAudit(), WithDisableMetrics())
	e.config = mergeWithDefaults(e.config)

	l := crmledger.New(memory.New(), e.buildLedgerOpts()...)

	require.NotNil(t, l)
	assert.Zero(t, l.Plugins().Count())
}
