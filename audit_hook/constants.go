package audithook

// Action constants for audit events.
const (
	// Customer and catalog actions
	ActionCustomerCreated = "customer.created"
	ActionPlanCreated     = "plan.created"
	ActionPlanUpdated     = "plan.updated"

	// Subscription actions
	ActionSubscriptionEnrolled  = "subscription.enrolled"
	ActionSubscriptionActivated = "subscription.activated"
	ActionSubscriptionRenewed   = "subscription.renewed"
	ActionSubscriptionCanceled  = "subscription.canceled"
	ActionSubscriptionExpired   = "subscription.expired"

	// Invoice and transaction actions
	ActionInvoiceIssued       = "invoice.issued"
	ActionInvoicePaid         = "invoice.paid"
	ActionInvoiceCanceled     = "invoice.canceled"
	ActionInvoicesOverdue     = "invoice.overdue"
	ActionTransactionRecorded = "transaction.recorded"

	// Payment method actions
	ActionPaymentMethodAdded   = "payment_method.added"
	ActionPaymentMethodRemoved = "payment_method.removed"
	ActionDefaultChanged       = "payment_method.default_changed"

	// Support and operations actions
	ActionTicketCreated        = "ticket.created"
	ActionTicketStatusChanged  = "ticket.status_changed"
	ActionNetworkStatusChanged = "network.status_changed"
	ActionSettingsUpdated      = "settings.updated"
)

// Resource constants for audit events.
const (
	ResourceCustomer      = "customer"
	ResourcePlan          = "plan"
	ResourceSubscription  = "subscription"
	ResourceInvoice       = "invoice"
	ResourceTransaction   = "transaction"
	ResourcePaymentMethod = "payment_method"
	ResourceTicket        = "ticket"
	ResourceNetwork       = "network"
	ResourceSettings      = "settings"
)

// Category constants, recorded under the "category" detail.
const (
	CategoryAccount      = "account"
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategorySupport      = "support"
	CategoryOperations   = "operations"
)
