package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
)

// DefaultHookTimeout bounds a single hook invocation.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never reflects.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                        []OnInit
	onShutdown                    []OnShutdown
	onSweepCompleted              []OnSweepCompleted
	onCustomerCreated             []OnCustomerCreated
	onPlanCreated                 []OnPlanCreated
	onPlanUpdated                 []OnPlanUpdated
	onSubscriptionEnrolled        []OnSubscriptionEnrolled
	onSubscriptionActivated       []OnSubscriptionActivated
	onSubscriptionRenewed         []OnSubscriptionRenewed
	onSubscriptionCanceled        []OnSubscriptionCanceled
	onSubscriptionExpired         []OnSubscriptionExpired
	onInvoiceIssued               []OnInvoiceIssued
	onInvoicePaid                 []OnInvoicePaid
	onInvoiceCanceled             []OnInvoiceCanceled
	onInvoicesOverdue             []OnInvoicesOverdue
	onTransactionRecorded         []OnTransactionRecorded
	onPaymentMethodAdded          []OnPaymentMethodAdded
	onPaymentMethodRemoved        []OnPaymentMethodRemoved
	onDefaultPaymentMethodChanged []OnDefaultPaymentMethodChanged
	onTicketCreated               []OnTicketCreated
	onTicketStatusChanged         []OnTicketStatusChanged
	onNetworkStatusChanged        []OnNetworkStatusChanged
	onSettingsUpdated             []OnSettingsUpdated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout. Non-positive values are ignored.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(OnCustomerCreated); ok {
		r.onCustomerCreated = append(r.onCustomerCreated, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanUpdated); ok {
		r.onPlanUpdated = append(r.onPlanUpdated, v)
	}
	if v, ok := p.(OnSubscriptionEnrolled); ok {
		r.onSubscriptionEnrolled = append(r.onSubscriptionEnrolled, v)
	}
	if v, ok := p.(OnSubscriptionActivated); ok {
		r.onSubscriptionActivated = append(r.onSubscriptionActivated, v)
	}
	if v, ok := p.(OnSubscriptionRenewed); ok {
		r.onSubscriptionRenewed = append(r.onSubscriptionRenewed, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnSubscriptionExpired); ok {
		r.onSubscriptionExpired = append(r.onSubscriptionExpired, v)
	}
	if v, ok := p.(OnInvoiceIssued); ok {
		r.onInvoiceIssued = append(r.onInvoiceIssued, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceCanceled); ok {
		r.onInvoiceCanceled = append(r.onInvoiceCanceled, v)
	}
	if v, ok := p.(OnInvoicesOverdue); ok {
		r.onInvoicesOverdue = append(r.onInvoicesOverdue, v)
	}
	if v, ok := p.(OnTransactionRecorded); ok {
		r.onTransactionRecorded = append(r.onTransactionRecorded, v)
	}
	if v, ok := p.(OnPaymentMethodAdded); ok {
		r.onPaymentMethodAdded = append(r.onPaymentMethodAdded, v)
	}
	if v, ok := p.(OnPaymentMethodRemoved); ok {
		r.onPaymentMethodRemoved = append(r.onPaymentMethodRemoved, v)
	}
	if v, ok := p.(OnDefaultPaymentMethodChanged); ok {
		r.onDefaultPaymentMethodChanged = append(r.onDefaultPaymentMethodChanged, v)
	}
	if v, ok := p.(OnTicketCreated); ok {
		r.onTicketCreated = append(r.onTicketCreated, v)
	}
	if v, ok := p.(OnTicketStatusChanged); ok {
		r.onTicketStatusChanged = append(r.onTicketStatusChanged, v)
	}
	if v, ok := p.(OnNetworkStatusChanged); ok {
		r.onNetworkStatusChanged = append(r.onNetworkStatusChanged, v)
	}
	if v, ok := p.(OnSettingsUpdated); ok {
		r.onSettingsUpdated = append(r.onSettingsUpdated, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnSweepCompleted", reflect.TypeOf((*OnSweepCompleted)(nil)).Elem()},
	{"OnCustomerCreated", reflect.TypeOf((*OnCustomerCreated)(nil)).Elem()},
	{"OnPlanCreated", reflect.TypeOf((*OnPlanCreated)(nil)).Elem()},
	{"OnPlanUpdated", reflect.TypeOf((*OnPlanUpdated)(nil)).Elem()},
	{"OnSubscriptionEnrolled", reflect.TypeOf((*OnSubscriptionEnrolled)(nil)).Elem()},
	{"OnSubscriptionActivated", reflect.TypeOf((*OnSubscriptionActivated)(nil)).Elem()},
	{"OnSubscriptionRenewed", reflect.TypeOf((*OnSubscriptionRenewed)(nil)).Elem()},
	{"OnSubscriptionCanceled", reflect.TypeOf((*OnSubscriptionCanceled)(nil)).Elem()},
	{"OnSubscriptionExpired", reflect.TypeOf((*OnSubscriptionExpired)(nil)).Elem()},
	{"OnInvoiceIssued", reflect.TypeOf((*OnInvoiceIssued)(nil)).Elem()},
	{"OnInvoicePaid", reflect.TypeOf((*OnInvoicePaid)(nil)).Elem()},
	{"OnInvoiceCanceled", reflect.TypeOf((*OnInvoiceCanceled)(nil)).Elem()},
	{"OnInvoicesOverdue", reflect.TypeOf((*OnInvoicesOverdue)(nil)).Elem()},
	{"OnTransactionRecorded", reflect.TypeOf((*OnTransactionRecorded)(nil)).Elem()},
	{"OnPaymentMethodAdded", reflect.TypeOf((*OnPaymentMethodAdded)(nil)).Elem()},
	{"OnPaymentMethodRemoved", reflect.TypeOf((*OnPaymentMethodRemoved)(nil)).Elem()},
	{"OnDefaultPaymentMethodChanged", reflect.TypeOf((*OnDefaultPaymentMethodChanged)(nil)).Elem()},
	{"OnTicketCreated", reflect.TypeOf((*OnTicketCreated)(nil)).Elem()},
	{"OnTicketStatusChanged", reflect.TypeOf((*OnTicketStatusChanged)(nil)).Elem()},
	{"OnNetworkStatusChanged", reflect.TypeOf((*OnNetworkStatusChanged)(nil)).Elem()},
	{"OnSettingsUpdated", reflect.TypeOf((*OnSettingsUpdated)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p satisfies.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// dispatch calls fn for every cached hook of one kind. The slice is read
// under the lock and invoked outside it.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, pick func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	hooks := pick(r)
	r.mu.RUnlock()

	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	dispatch(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, ledger) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, report SweepReport) {
	dispatch(ctx, r, "OnSweepCompleted", func(r *Registry) []OnSweepCompleted { return r.onSweepCompleted },
		func(p OnSweepCompleted) error { return p.OnSweepCompleted(ctx, report) })
}

// EmitCustomerCreated emits a customer created event.
func (r *Registry) EmitCustomerCreated(ctx context.Context, c *customer.Customer) {
	dispatch(ctx, r, "OnCustomerCreated", func(r *Registry) []OnCustomerCreated { return r.onCustomerCreated },
		func(p OnCustomerCreated) error { return p.OnCustomerCreated(ctx, c) })
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	dispatch(ctx, r, "OnPlanCreated", func(r *Registry) []OnPlanCreated { return r.onPlanCreated },
		func(p OnPlanCreated) error { return p.OnPlanCreated(ctx, pl) })
}

// EmitPlanUpdated emits a plan updated event.
func (r *Registry) EmitPlanUpdated(ctx context.Context, previous, current *plan.Plan) {
	dispatch(ctx, r, "OnPlanUpdated", func(r *Registry) []OnPlanUpdated { return r.onPlanUpdated },
		func(p OnPlanUpdated) error { return p.OnPlanUpdated(ctx, previous, current) })
}

// EmitSubscriptionEnrolled emits a subscription enrolled event.
func (r *Registry) EmitSubscriptionEnrolled(ctx context.Context, sub *subscription.Subscription) {
	dispatch(ctx, r, "OnSubscriptionEnrolled", func(r *Registry) []OnSubscriptionEnrolled { return r.onSubscriptionEnrolled },
		func(p OnSubscriptionEnrolled) error { return p.OnSubscriptionEnrolled(ctx, sub) })
}

// EmitSubscriptionActivated emits a subscription activated event.
func (r *Registry) EmitSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) {
	dispatch(ctx, r, "OnSubscriptionActivated", func(r *Registry) []OnSubscriptionActivated { return r.onSubscriptionActivated },
		func(p OnSubscriptionActivated) error { return p.OnSubscriptionActivated(ctx, sub) })
}

// EmitSubscriptionRenewed emits a subscription renewed event.
func (r *Registry) EmitSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnSubscriptionRenewed", func(r *Registry) []OnSubscriptionRenewed { return r.onSubscriptionRenewed },
		func(p OnSubscriptionRenewed) error { return p.OnSubscriptionRenewed(ctx, sub, inv) })
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) {
	dispatch(ctx, r, "OnSubscriptionCanceled", func(r *Registry) []OnSubscriptionCanceled { return r.onSubscriptionCanceled },
		func(p OnSubscriptionCanceled) error { return p.OnSubscriptionCanceled(ctx, sub) })
}

// EmitSubscriptionExpired emits a subscription expired event.
func (r *Registry) EmitSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) {
	dispatch(ctx, r, "OnSubscriptionExpired", func(r *Registry) []OnSubscriptionExpired { return r.onSubscriptionExpired },
		func(p OnSubscriptionExpired) error { return p.OnSubscriptionExpired(ctx, sub) })
}

// EmitInvoiceIssued emits an invoice issued event.
func (r *Registry) EmitInvoiceIssued(ctx context.Context, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnInvoiceIssued", func(r *Registry) []OnInvoiceIssued { return r.onInvoiceIssued },
		func(p OnInvoiceIssued) error { return p.OnInvoiceIssued(ctx, inv) })
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice, txn *transaction.Transaction) {
	dispatch(ctx, r, "OnInvoicePaid", func(r *Registry) []OnInvoicePaid { return r.onInvoicePaid },
		func(p OnInvoicePaid) error { return p.OnInvoicePaid(ctx, inv, txn) })
}

// EmitInvoiceCanceled emits an invoice canceled event.
func (r *Registry) EmitInvoiceCanceled(ctx context.Context, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnInvoiceCanceled", func(r *Registry) []OnInvoiceCanceled { return r.onInvoiceCanceled },
		func(p OnInvoiceCanceled) error { return p.OnInvoiceCanceled(ctx, inv) })
}

// EmitInvoicesOverdue emits an overdue sweep event.
func (r *Registry) EmitInvoicesOverdue(ctx context.Context, count int64) {
	dispatch(ctx, r, "OnInvoicesOverdue", func(r *Registry) []OnInvoicesOverdue { return r.onInvoicesOverdue },
		func(p OnInvoicesOverdue) error { return p.OnInvoicesOverdue(ctx, count) })
}

// EmitTransactionRecorded emits a transaction recorded event.
func (r *Registry) EmitTransactionRecorded(ctx context.Context, txn *transaction.Transaction) {
	dispatch(ctx, r, "OnTransactionRecorded", func(r *Registry) []OnTransactionRecorded { return r.onTransactionRecorded },
		func(p OnTransactionRecorded) error { return p.OnTransactionRecorded(ctx, txn) })
}

// EmitPaymentMethodAdded emits a payment method added event.
func (r *Registry) EmitPaymentMethodAdded(ctx context.Context, pm *paymentmethod.PaymentMethod) {
	dispatch(ctx, r, "OnPaymentMethodAdded", func(r *Registry) []OnPaymentMethodAdded { return r.onPaymentMethodAdded },
		func(p OnPaymentMethodAdded) error { return p.OnPaymentMethodAdded(ctx, pm) })
}

// EmitPaymentMethodRemoved emits a payment method removed event.
func (r *Registry) EmitPaymentMethodRemoved(ctx context.Context, pm *paymentmethod.PaymentMethod, wasDefault bool) {
	dispatch(ctx, r, "OnPaymentMethodRemoved", func(r *Registry) []OnPaymentMethodRemoved { return r.onPaymentMethodRemoved },
		func(p OnPaymentMethodRemoved) error { return p.OnPaymentMethodRemoved(ctx, pm, wasDefault) })
}

// EmitDefaultPaymentMethodChanged emits a default payment method event.
func (r *Registry) EmitDefaultPaymentMethodChanged(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID) {
	dispatch(ctx, r, "OnDefaultPaymentMethodChanged", func(r *Registry) []OnDefaultPaymentMethodChanged { return r.onDefaultPaymentMethodChanged },
		func(p OnDefaultPaymentMethodChanged) error { return p.OnDefaultPaymentMethodChanged(ctx, customerID, pmID) })
}

// EmitTicketCreated emits a ticket created event.
func (r *Registry) EmitTicketCreated(ctx context.Context, t *ticket.Ticket) {
	dispatch(ctx, r, "OnTicketCreated", func(r *Registry) []OnTicketCreated { return r.onTicketCreated },
		func(p OnTicketCreated) error { return p.OnTicketCreated(ctx, t) })
}

// EmitTicketStatusChanged emits a ticket status event.
func (r *Registry) EmitTicketStatusChanged(ctx context.Context, t *ticket.Ticket, from ticket.Status) {
	dispatch(ctx, r, "OnTicketStatusChanged", func(r *Registry) []OnTicketStatusChanged { return r.onTicketStatusChanged },
		func(p OnTicketStatusChanged) error { return p.OnTicketStatusChanged(ctx, t, from) })
}

// EmitNetworkStatusChanged emits a network status event.
func (r *Registry) EmitNetworkStatusChanged(ctx context.Context, s *network.Status) {
	dispatch(ctx, r, "OnNetworkStatusChanged", func(r *Registry) []OnNetworkStatusChanged { return r.onNetworkStatusChanged },
		func(p OnNetworkStatusChanged) error { return p.OnNetworkStatusChanged(ctx, s) })
}

// EmitSettingsUpdated emits a settings updated event.
func (r *Registry) EmitSettingsUpdated(ctx context.Context, rec *settings.Record) {
	dispatch(ctx, r, "OnSettingsUpdated", func(r *Registry) []OnSettingsUpdated { return r.onSettingsUpdated },
		func(p OnSettingsUpdated) error { return p.OnSettingsUpdated(ctx, rec) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
