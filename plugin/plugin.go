// Package plugin lets extensions observe ledger lifecycle events.
//
// A plugin implements Plugin plus any of the hook interfaces below; the
// Registry discovers the hooks once at registration and dispatches to them
// after the corresponding ledger operation has been committed. Hook errors
// are logged and never fail the operation.
package plugin

import (
	"context"
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

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *crmledger.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// SweepReport summarizes one background sweep.
type SweepReport struct {
	Activated int64
	Expired   int64
	Overdue   int64
	Elapsed   time.Duration
}

// OnSweepCompleted is called after each background sweep.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, report SweepReport) error
}

// ──────────────────────────────────────────────────
// Catalog and customer hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated is called after a customer is created.
type OnCustomerCreated interface {
	Plugin
	OnCustomerCreated(ctx context.Context, c *customer.Customer) error
}

// OnPlanCreated is called after a plan is added to the catalog.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanUpdated is called after a catalog edit.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, previous, current *plan.Plan) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionEnrolled is called after a subscription is created.
type OnSubscriptionEnrolled interface {
	Plugin
	OnSubscriptionEnrolled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionActivated is called when a subscription becomes active,
// including enrollments that start active.
type OnSubscriptionActivated interface {
	Plugin
	OnSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionRenewed is called after a renewal and its invoice commit.
type OnSubscriptionRenewed interface {
	Plugin
	OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) error
}

// OnSubscriptionCanceled is called after a cancellation.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionExpired is called after an expiry.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Invoice and transaction hooks
// ──────────────────────────────────────────────────

// OnInvoiceIssued is called after an invoice is created.
type OnInvoiceIssued interface {
	Plugin
	OnInvoiceIssued(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called after a payment settles an invoice.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, txn *transaction.Transaction) error
}

// OnInvoiceCanceled is called after an invoice is canceled.
type OnInvoiceCanceled interface {
	Plugin
	OnInvoiceCanceled(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicesOverdue is called when a MarkOverdue run changed invoices.
type OnInvoicesOverdue interface {
	Plugin
	OnInvoicesOverdue(ctx context.Context, count int64) error
}

// OnTransactionRecorded is called after every recorded transaction.
type OnTransactionRecorded interface {
	Plugin
	OnTransactionRecorded(ctx context.Context, txn *transaction.Transaction) error
}

// ──────────────────────────────────────────────────
// Payment method hooks
// ──────────────────────────────────────────────────

// OnPaymentMethodAdded is called after an instrument is stored.
type OnPaymentMethodAdded interface {
	Plugin
	OnPaymentMethodAdded(ctx context.Context, pm *paymentmethod.PaymentMethod) error
}

// OnPaymentMethodRemoved is called after an instrument is deleted.
type OnPaymentMethodRemoved interface {
	Plugin
	OnPaymentMethodRemoved(ctx context.Context, pm *paymentmethod.PaymentMethod, wasDefault bool) error
}

// OnDefaultPaymentMethodChanged is called when the default pointer moves.
type OnDefaultPaymentMethodChanged interface {
	Plugin
	OnDefaultPaymentMethodChanged(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID) error
}

// ──────────────────────────────────────────────────
// Support and operations hooks
// ──────────────────────────────────────────────────

// OnTicketCreated is called after a ticket is opened.
type OnTicketCreated interface {
	Plugin
	OnTicketCreated(ctx context.Context, t *ticket.Ticket) error
}

// OnTicketStatusChanged is called after a ticket changes status.
type OnTicketStatusChanged interface {
	Plugin
	OnTicketStatusChanged(ctx context.Context, t *ticket.Ticket, from ticket.Status) error
}

// OnNetworkStatusChanged is called after a network status report.
type OnNetworkStatusChanged interface {
	Plugin
	OnNetworkStatusChanged(ctx context.Context, s *network.Status) error
}

// OnSettingsUpdated is called after a settings category is replaced.
type OnSettingsUpdated interface {
	Plugin
	OnSettingsUpdated(ctx context.Context, r *settings.Record) error
}
