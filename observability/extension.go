// Package observability provides a metrics extension for crmledger that
// records lifecycle event counts through a MetricFactory. PrometheusFactory
// backs the factory with a prometheus.Registerer.
package observability

import (
	"context"
	"time"

	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/plugin"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                        = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted              = (*MetricsExtension)(nil)
	_ plugin.OnCustomerCreated             = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated                 = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionEnrolled        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionActivated       = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionRenewed         = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired         = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceIssued               = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid                 = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCanceled             = (*MetricsExtension)(nil)
	_ plugin.OnInvoicesOverdue             = (*MetricsExtension)(nil)
	_ plugin.OnTransactionRecorded         = (*MetricsExtension)(nil)
	_ plugin.OnPaymentMethodAdded          = (*MetricsExtension)(nil)
	_ plugin.OnPaymentMethodRemoved        = (*MetricsExtension)(nil)
	_ plugin.OnDefaultPaymentMethodChanged = (*MetricsExtension)(nil)
	_ plugin.OnTicketCreated               = (*MetricsExtension)(nil)
	_ plugin.OnTicketStatusChanged         = (*MetricsExtension)(nil)
	_ plugin.OnNetworkStatusChanged        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a crmledger plugin to track billing and support activity.
type MetricsExtension struct {
	factory MetricFactory

	// Customer and catalog metrics
	CustomerCreated Counter
	PlanCreated     Counter
	PlanUpdated     Counter

	// Subscription metrics
	SubscriptionEnrolled  Counter
	SubscriptionActivated Counter
	SubscriptionRenewed   Counter
	SubscriptionCanceled  Counter
	SubscriptionExpired   Counter

	// Invoice metrics
	InvoiceIssued   Counter
	InvoicePaid     Counter
	InvoiceCanceled Counter
	InvoiceOverdue  Counter
	InvoiceTotal    Histogram

	// Transaction metrics
	PaymentsCompleted Counter
	PaymentsFailed    Counter
	Refunds           Counter
	Topups            Counter

	// Payment method metrics
	PaymentMethodAdded   Counter
	PaymentMethodRemoved Counter
	DefaultChanged       Counter

	// Support and operations metrics
	TicketCreated    Counter
	TicketResolved   Counter
	NetworkIncidents Counter
	SweepRuns        Counter
	SweepLatency     Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		CustomerCreated: factory.Counter("crmledger.customer.created"),
		PlanCreated:     factory.Counter("crmledger.plan.created"),
		PlanUpdated:     factory.Counter("crmledger.plan.updated"),

		SubscriptionEnrolled:  factory.Counter("crmledger.subscription.enrolled"),
		SubscriptionActivated: factory.Counter("crmledger.subscription.activated"),
		SubscriptionRenewed:   factory.Counter("crmledger.subscription.renewed"),
		SubscriptionCanceled:  factory.Counter("crmledger.subscription.canceled"),
		SubscriptionExpired:   factory.Counter("crmledger.subscription.expired"),

		InvoiceIssued:   factory.Counter("crmledger.invoice.issued"),
		InvoicePaid:     factory.Counter("crmledger.invoice.paid"),
		InvoiceCanceled: factory.Counter("crmledger.invoice.canceled"),
		InvoiceOverdue:  factory.Counter("crmledger.invoice.overdue"),
		InvoiceTotal:    factory.Histogram("crmledger.invoice.total_amount"),

		PaymentsCompleted: factory.Counter("crmledger.transaction.payment.completed"),
		PaymentsFailed:    factory.Counter("crmledger.transaction.payment.failed"),
		Refunds:           factory.Counter("crmledger.transaction.refund"),
		Topups:            factory.Counter("crmledger.transaction.topup"),

		PaymentMethodAdded:   factory.Counter("crmledger.payment_method.added"),
		PaymentMethodRemoved: factory.Counter("crmledger.payment_method.removed"),
		DefaultChanged:       factory.Counter("crmledger.payment_method.default_changed"),

		TicketCreated:    factory.Counter("crmledger.ticket.created"),
		TicketResolved:   factory.Counter("crmledger.ticket.resolved"),
		NetworkIncidents: factory.Counter("crmledger.network.incidents"),
		SweepRuns:        factory.Counter("crmledger.sweep.runs"),
		SweepLatency:     factory.Histogram("crmledger.sweep.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, report plugin.SweepReport) error {
	m.SweepRuns.Inc()
	m.SweepLatency.Observe(float64(report.Elapsed / time.Millisecond))
	return nil
}

// ──────────────────────────────────────────────────
// Customer and catalog hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated implements plugin.OnCustomerCreated.
func (m *MetricsExtension) OnCustomerCreated(_ context.Context, _ *customer.Customer) error {
	m.CustomerCreated.Inc()
	return nil
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(_ context.Context, _, _ *plan.Plan) error {
	m.PlanUpdated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionEnrolled implements plugin.OnSubscriptionEnrolled.
func (m *MetricsExtension) OnSubscriptionEnrolled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionEnrolled.Inc()
	return nil
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (m *MetricsExtension) OnSubscriptionActivated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionActivated.Inc()
	return nil
}

// OnSubscriptionRenewed implements plugin.OnSubscriptionRenewed.
func (m *MetricsExtension) OnSubscriptionRenewed(_ context.Context, _ *subscription.Subscription, _ *invoice.Invoice) error {
	m.SubscriptionRenewed.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice and transaction hooks
// ──────────────────────────────────────────────────

// OnInvoiceIssued implements plugin.OnInvoiceIssued.
func (m *MetricsExtension) OnInvoiceIssued(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceIssued.Inc()
	m.InvoiceTotal.Observe(float64(inv.Amount.Amount))
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice, _ *transaction.Transaction) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceCanceled implements plugin.OnInvoiceCanceled.
func (m *MetricsExtension) OnInvoiceCanceled(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceCanceled.Inc()
	return nil
}

// OnInvoicesOverdue implements plugin.OnInvoicesOverdue.
func (m *MetricsExtension) OnInvoicesOverdue(_ context.Context, count int64) error {
	m.InvoiceOverdue.Add(float64(count))
	return nil
}

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (m *MetricsExtension) OnTransactionRecorded(_ context.Context, txn *transaction.Transaction) error {
	switch txn.Type {
	case transaction.TypeRefund:
		m.Refunds.Inc()
	case transaction.TypeTopup:
		m.Topups.Inc()
	case transaction.TypePayment:
		switch txn.Status {
		case transaction.StatusCompleted:
			m.PaymentsCompleted.Inc()
		case transaction.StatusFailed:
			m.PaymentsFailed.Inc()
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Payment method hooks
// ──────────────────────────────────────────────────

// OnPaymentMethodAdded implements plugin.OnPaymentMethodAdded.
func (m *MetricsExtension) OnPaymentMethodAdded(_ context.Context, _ *paymentmethod.PaymentMethod) error {
	m.PaymentMethodAdded.Inc()
	return nil
}

// OnPaymentMethodRemoved implements plugin.OnPaymentMethodRemoved.
func (m *MetricsExtension) OnPaymentMethodRemoved(_ context.Context, _ *paymentmethod.PaymentMethod, _ bool) error {
	m.PaymentMethodRemoved.Inc()
	return nil
}

// OnDefaultPaymentMethodChanged implements plugin.OnDefaultPaymentMethodChanged.
func (m *MetricsExtension) OnDefaultPaymentMethodChanged(_ context.Context, _ id.CustomerID, _ id.PaymentMethodID) error {
	m.DefaultChanged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Support and operations hooks
// ──────────────────────────────────────────────────

// OnTicketCreated implements plugin.OnTicketCreated.
func (m *MetricsExtension) OnTicketCreated(_ context.Context, _ *ticket.Ticket) error {
	m.TicketCreated.Inc()
	return nil
}

// OnTicketStatusChanged implements plugin.OnTicketStatusChanged.
func (m *MetricsExtension) OnTicketStatusChanged(_ context.Context, t *ticket.Ticket, from ticket.Status) error {
	if t.Status == ticket.StatusResolved && from != ticket.StatusResolved {
		m.TicketResolved.Inc()
	}
	return nil
}

// OnNetworkStatusChanged implements plugin.OnNetworkStatusChanged.
func (m *MetricsExtension) OnNetworkStatusChanged(_ context.Context, s *network.Status) error {
	if s.Status != network.ConditionOperational {
		m.NetworkIncidents.Inc()
	}
	return nil
}
