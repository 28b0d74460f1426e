package audithook

import (
	"log/slog"

	"github.com/samber/lo"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, all actions are audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = lo.SliceToMap(actions, func(a string) (string, bool) { return a, true })
	}
}

// WithDisabledActions sets which actions to skip.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = lo.SliceToMap(allActions(), func(a string) (string, bool) { return a, true })
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// allActions returns all known audit actions.
func allActions() []string {
	return []string{
		ActionCustomerCreated,
		ActionPlanCreated,
		ActionPlanUpdated,
		ActionSubscriptionEnrolled,
		ActionSubscriptionActivated,
		ActionSubscriptionRenewed,
		ActionSubscriptionCanceled,
		ActionSubscriptionExpired,
		ActionInvoiceIssued,
		ActionInvoicePaid,
		ActionInvoiceCanceled,
		ActionInvoicesOverdue,
		ActionTransactionRecorded,
		ActionPaymentMethodAdded,
		ActionPaymentMethodRemoved,
		ActionDefaultChanged,
		ActionTicketCreated,
		ActionTicketStatusChanged,
		ActionNetworkStatusChanged,
		ActionSettingsUpdated,
	}
}
