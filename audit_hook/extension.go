// Package audithook turns ledger lifecycle events into audit log entries.
//
// The extension writes through a Recorder. *crmledger.Ledger satisfies it,
// so an Extension created with a nil Recorder binds to the ledger it is
// registered with when the ledger starts.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/plugin"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                        = (*Extension)(nil)
	_ plugin.OnInit                        = (*Extension)(nil)
	_ plugin.OnCustomerCreated             = (*Extension)(nil)
	_ plugin.OnPlanCreated                 = (*Extension)(nil)
	_ plugin.OnPlanUpdated                 = (*Extension)(nil)
	_ plugin.OnSubscriptionEnrolled        = (*Extension)(nil)
	_ plugin.OnSubscriptionActivated       = (*Extension)(nil)
	_ plugin.OnSubscriptionRenewed         = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled        = (*Extension)(nil)
	_ plugin.OnSubscriptionExpired         = (*Extension)(nil)
	_ plugin.OnInvoiceIssued               = (*Extension)(nil)
	_ plugin.OnInvoicePaid                 = (*Extension)(nil)
	_ plugin.OnInvoiceCanceled             = (*Extension)(nil)
	_ plugin.OnInvoicesOverdue             = (*Extension)(nil)
	_ plugin.OnTransactionRecorded         = (*Extension)(nil)
	_ plugin.OnPaymentMethodAdded          = (*Extension)(nil)
	_ plugin.OnPaymentMethodRemoved        = (*Extension)(nil)
	_ plugin.OnDefaultPaymentMethodChanged = (*Extension)(nil)
	_ plugin.OnTicketCreated               = (*Extension)(nil)
	_ plugin.OnTicketStatusChanged         = (*Extension)(nil)
	_ plugin.OnNetworkStatusChanged        = (*Extension)(nil)
	_ plugin.OnSettingsUpdated             = (*Extension)(nil)
)

// Recorder appends audit entries. *crmledger.Ledger implements it.
type Recorder interface {
	RecordAudit(ctx context.Context, e *audit.Entry) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, e *audit.Entry) error

// RecordAudit implements Recorder.
func (f RecorderFunc) RecordAudit(ctx context.Context, e *audit.Entry) error {
	return f(ctx, e)
}

// Extension bridges ledger lifecycle events to the audit log.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that records through r. A nil r is replaced by
// the ledger passed to OnInit.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(_ context.Context, l any) error {
	if e.recorder != nil {
		return nil
	}
	r, ok := l.(Recorder)
	if !ok {
		return fmt.Errorf("audit_hook: %T cannot record audit entries", l)
	}
	e.recorder = r
	return nil
}

// ──────────────────────────────────────────────────
// Customer and catalog hooks
// ──────────────────────────────────────────────────

// OnCustomerCreated implements plugin.OnCustomerCreated.
func (e *Extension) OnCustomerCreated(ctx context.Context, c *customer.Customer) error {
	return e.record(ctx, ActionCustomerCreated, audit.SeverityNormal,
		ResourceCustomer, c.ID.String(), CategoryAccount,
		"email", c.Email,
	)
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, audit.SeverityNormal,
		ResourcePlan, p.ID.String(), CategoryBilling,
		"name", p.Name,
		"price", p.Price.String(),
	)
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (e *Extension) OnPlanUpdated(ctx context.Context, previous, current *plan.Plan) error {
	kv := []any{"name", current.Name}
	if !previous.Price.Equal(current.Price) {
		kv = append(kv, "previous_price", previous.Price.String(), "price", current.Price.String())
	}
	if previous.Status != current.Status {
		kv = append(kv, "previous_status", string(previous.Status), "status", string(current.Status))
	}
	return e.record(ctx, ActionPlanUpdated, audit.SeverityNormal,
		ResourcePlan, current.ID.String(), CategoryBilling, kv...,
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionEnrolled implements plugin.OnSubscriptionEnrolled.
func (e *Extension) OnSubscriptionEnrolled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionEnrolled, audit.SeverityNormal,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"customer_id", sub.CustomerID.String(),
		"plan_id", sub.PlanID.String(),
		"status", string(sub.Status),
	)
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (e *Extension) OnSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionActivated, audit.SeverityNormal,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"customer_id", sub.CustomerID.String(),
	)
}

// OnSubscriptionRenewed implements plugin.OnSubscriptionRenewed.
func (e *Extension) OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice) error {
	return e.record(ctx, ActionSubscriptionRenewed, audit.SeverityNormal,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"customer_id", sub.CustomerID.String(),
		"invoice", inv.Number,
		"end_date", sub.EndDate,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, audit.SeverityNormal,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"customer_id", sub.CustomerID.String(),
		"reason", sub.CancelReason,
	)
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (e *Extension) OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionExpired, audit.SeverityNormal,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		"customer_id", sub.CustomerID.String(),
	)
}

// ──────────────────────────────────────────────────
// Invoice and transaction hooks
// ──────────────────────────────────────────────────

// OnInvoiceIssued implements plugin.OnInvoiceIssued.
func (e *Extension) OnInvoiceIssued(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceIssued, audit.SeverityNormal,
		ResourceInvoice, inv.ID.String(), CategoryBilling,
		"number", inv.Number,
		"customer_id", inv.CustomerID.String(),
		"amount", inv.Amount.String(),
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice, txn *transaction.Transaction) error {
	return e.record(ctx, ActionInvoicePaid, audit.SeverityNormal,
		ResourceInvoice, inv.ID.String(), CategoryPayment,
		"number", inv.Number,
		"transaction_id", txn.ID.String(),
		"amount", txn.Amount.String(),
	)
}

// OnInvoiceCanceled implements plugin.OnInvoiceCanceled.
func (e *Extension) OnInvoiceCanceled(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCanceled, audit.SeverityHigh,
		ResourceInvoice, inv.ID.String(), CategoryBilling,
		"number", inv.Number,
		"amount", inv.Amount.String(),
	)
}

// OnInvoicesOverdue implements plugin.OnInvoicesOverdue.
func (e *Extension) OnInvoicesOverdue(ctx context.Context, count int64) error {
	return e.record(ctx, ActionInvoicesOverdue, audit.SeverityNormal,
		ResourceInvoice, "", CategoryBilling,
		"count", count,
	)
}

// OnTransactionRecorded implements plugin.OnTransactionRecorded.
func (e *Extension) OnTransactionRecorded(ctx context.Context, txn *transaction.Transaction) error {
	severity := audit.SeverityNormal
	if txn.Type == transaction.TypeRefund {
		severity = audit.SeverityHigh
	}
	return e.record(ctx, ActionTransactionRecorded, severity,
		ResourceTransaction, txn.ID.String(), CategoryPayment,
		"customer_id", txn.CustomerID.String(),
		"type", string(txn.Type),
		"status", string(txn.Status),
		"amount", txn.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Payment method hooks
// ──────────────────────────────────────────────────

// OnPaymentMethodAdded implements plugin.OnPaymentMethodAdded.
func (e *Extension) OnPaymentMethodAdded(ctx context.Context, pm *paymentmethod.PaymentMethod) error {
	return e.record(ctx, ActionPaymentMethodAdded, audit.SeverityNormal,
		ResourcePaymentMethod, pm.ID.String(), CategoryPayment,
		"customer_id", pm.CustomerID.String(),
		"type", string(pm.Type),
		"last_four", pm.LastFour,
	)
}

// OnPaymentMethodRemoved implements plugin.OnPaymentMethodRemoved.
func (e *Extension) OnPaymentMethodRemoved(ctx context.Context, pm *paymentmethod.PaymentMethod, wasDefault bool) error {
	return e.record(ctx, ActionPaymentMethodRemoved, audit.SeverityHigh,
		ResourcePaymentMethod, pm.ID.String(), CategoryPayment,
		"customer_id", pm.CustomerID.String(),
		"last_four", pm.LastFour,
		"was_default", wasDefault,
	)
}

// OnDefaultPaymentMethodChanged implements plugin.OnDefaultPaymentMethodChanged.
func (e *Extension) OnDefaultPaymentMethodChanged(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID) error {
	return e.record(ctx, ActionDefaultChanged, audit.SeverityNormal,
		ResourcePaymentMethod, pmID.String(), CategoryPayment,
		"customer_id", customerID.String(),
	)
}

// ──────────────────────────────────────────────────
// Support and operations hooks
// ──────────────────────────────────────────────────

// OnTicketCreated implements plugin.OnTicketCreated.
func (e *Extension) OnTicketCreated(ctx context.Context, t *ticket.Ticket) error {
	return e.record(ctx, ActionTicketCreated, ticketSeverity(t.Priority),
		ResourceTicket, t.ID.String(), CategorySupport,
		"number", t.Number,
		"customer_id", t.CustomerID.String(),
		"priority", string(t.Priority),
	)
}

// OnTicketStatusChanged implements plugin.OnTicketStatusChanged.
func (e *Extension) OnTicketStatusChanged(ctx context.Context, t *ticket.Ticket, from ticket.Status) error {
	return e.record(ctx, ActionTicketStatusChanged, audit.SeverityNormal,
		ResourceTicket, t.ID.String(), CategorySupport,
		"number", t.Number,
		"from", string(from),
		"to", string(t.Status),
	)
}

// OnNetworkStatusChanged implements plugin.OnNetworkStatusChanged.
func (e *Extension) OnNetworkStatusChanged(ctx context.Context, s *network.Status) error {
	severity := audit.SeverityNormal
	switch s.Status {
	case network.ConditionOutage:
		severity = audit.SeverityCritical
	case network.ConditionDegraded:
		severity = audit.SeverityHigh
	}
	return e.record(ctx, ActionNetworkStatusChanged, severity,
		ResourceNetwork, s.ID.String(), CategoryOperations,
		"service_type", string(s.ServiceType),
		"region", s.Region,
		"status", string(s.Status),
		"affected_users", s.AffectedUsers,
	)
}

// OnSettingsUpdated implements plugin.OnSettingsUpdated.
func (e *Extension) OnSettingsUpdated(ctx context.Context, r *settings.Record) error {
	severity := audit.SeverityNormal
	if r.Category == settings.CategorySecurity {
		severity = audit.SeverityHigh
	}
	return e.record(ctx, ActionSettingsUpdated, severity,
		ResourceSettings, string(r.Category), CategoryOperations,
		"updated_by", r.UpdatedBy,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func ticketSeverity(p ticket.Priority) audit.Severity {
	switch p {
	case ticket.PriorityCritical:
		return audit.SeverityCritical
	case ticket.PriorityHigh:
		return audit.SeverityHigh
	}
	return audit.SeverityNormal
}

// record builds and appends an audit entry if the action is enabled.
// Recording failures are logged and never returned.
func (e *Extension) record(
	ctx context.Context,
	action string,
	severity audit.Severity,
	resource, resourceID, category string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if e.recorder == nil {
		e.logger.Warn("audit_hook: no recorder bound", "action", action)
		return nil
	}

	details := make(map[string]any, len(kvPairs)/2+1)
	details["category"] = category
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		details[key] = kvPairs[i+1]
	}

	entry := &audit.Entry{
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		Details:      details,
		Severity:     severity,
	}
	if recErr := e.recorder.RecordAudit(ctx, entry); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
