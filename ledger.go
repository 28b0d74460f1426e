package crmledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"

	"github.com/xraph/crmledger/plugin"
	"github.com/xraph/crmledger/store"
)

// Defaults applied by New.
const (
	DefaultSweepInterval      = time.Minute
	DefaultSweepBatch         = 500
	DefaultSnapshotCacheTTL   = 30 * time.Second
	DefaultMaxConflictRetries = 3
	DefaultCurrency           = "usd"
	DefaultInvoiceDueDays     = 30
)

// Ledger is the billing and subscription engine of the CRM.
type Ledger struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	validate *validator.Validate
	clock    func() time.Time

	// Dashboard snapshot cache
	snapshots *cache.Cache

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	sweepInterval      time.Duration
	sweepBatch         int
	snapshotTTL        time.Duration
	maxConflictRetries uint
	currency           string
	invoiceDueDays     int
	skipMigrate        bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		validate:           newValidator(),
		clock:              time.Now,
		stopChan:           make(chan struct{}),
		sweepInterval:      DefaultSweepInterval,
		sweepBatch:         DefaultSweepBatch,
		snapshotTTL:        DefaultSnapshotCacheTTL,
		maxConflictRetries: DefaultMaxConflictRetries,
		currency:           DefaultCurrency,
		invoiceDueDays:     DefaultInvoiceDueDays,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.snapshots = cache.New(l.snapshotTTL, 2*l.snapshotTTL)

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the time source. Tests use it to pin "now".
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSweepInterval sets how often the background sweeper runs. Zero
// disables the sweeper.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.sweepInterval = d
	}
}

// WithSweepBatch caps how many subscriptions one sweep pass transitions.
func WithSweepBatch(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.sweepBatch = n
		}
	}
}

// WithSnapshotCacheTTL sets how long admin dashboard snapshots are reused.
func WithSnapshotCacheTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.snapshotTTL = ttl
		}
	}
}

// WithMaxConflictRetries sets how many times an operation that lost a
// concurrent update race is attempted in total.
func WithMaxConflictRetries(n uint) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxConflictRetries = n
		}
	}
}

// WithCurrency sets the fallback currency used when no billing settings are
// stored.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = currency
		}
	}
}

// WithInvoiceDueDays sets the fallback invoice payment term used when no
// billing settings are stored.
func WithInvoiceDueDays(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.invoiceDueDays = days
		}
	}
}

// WithSkipMigrate makes Start skip store migrations.
func WithSkipMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Start migrates the store and begins the background sweeper.
func (l *Ledger) Start(ctx context.Context) error {
	// Migrate database
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	if l.sweepInterval > 0 {
		l.wg.Add(1)
		go l.sweepWorker()
	}

	l.logger.Info("crmledger started",
		"sweep_interval", l.sweepInterval,
		"snapshot_ttl", l.snapshotTTL,
		"max_conflict_retries", l.maxConflictRetries,
	)

	return nil
}

// Stop shuts down the background sweeper, notifies plugins and closes the
// store.
func (l *Ledger) Stop() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// now returns the ledger clock in UTC at millisecond precision, the
// resolution every backend stores.
func (l *Ledger) now() time.Time {
	return l.clock().UTC().Truncate(time.Millisecond)
}

// ──────────────────────────────────────────────────
// Background sweeper
// ──────────────────────────────────────────────────

// sweepWorker runs Sweep on every tick until Stop.
func (l *Ledger) sweepWorker() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.sweepInterval)
			if _, err := l.Sweep(ctx); err != nil {
				l.logger.Error("sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// Sweep activates due pending subscriptions, expires lapsed ones and marks
// past-due invoices overdue. Each step is idempotent; a failing step does
// not stop the others.
func (l *Ledger) Sweep(ctx context.Context) (plugin.SweepReport, error) {
	start := time.Now()
	var (
		report plugin.SweepReport
		errs   MultiError
	)

	activated, err := l.ActivateDue(ctx)
	errs.Add(err)
	report.Activated = int64(activated)

	expired, err := l.ExpireDue(ctx)
	errs.Add(err)
	report.Expired = int64(expired)

	overdue, err := l.MarkOverdue(ctx)
	errs.Add(err)
	report.Overdue = overdue

	report.Elapsed = time.Since(start)
	l.plugins.EmitSweepCompleted(ctx, report)

	l.logger.Debug("sweep completed",
		"activated", report.Activated,
		"expired", report.Expired,
		"overdue", report.Overdue,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)

	return report, errs.ErrOrNil()
}
