package subscription

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
)

// Store persists subscriptions.
type Store interface {
	// CreateSubscription inserts s. An active s becomes its customer's
	// current plan in the same unit, superseding the previous one.
	CreateSubscription(ctx context.Context, s *Subscription) (Outcome, error)
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Subscription, error)

	// TransitionSubscription applies t only while the stored status satisfies
	// t.From. The current-plan effect of t.To is applied in the same unit:
	// activation takes over the customer's current plan, cancellation and
	// expiry release it when it points at the subscription.
	TransitionSubscription(ctx context.Context, t Transition) (Outcome, error)

	// RenewSubscription extends the end date and inserts the renewal invoice
	// as one unit, guarded by status active and the previous end date.
	RenewSubscription(ctx context.Context, r Renewal) (*Subscription, error)

	ListDueForActivation(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)
	ListDueForExpiry(ctx context.Context, asOf time.Time, limit int) ([]*Subscription, error)

	CountActiveSubscriptions(ctx context.Context, asOf time.Time) (int64, error)
	RenewalStats(ctx context.Context) (RenewalStats, error)
}

// ListOpts filters ListSubscriptions. Results are newest first.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

// Outcome is the result of a lifecycle write. Superseded is the previously
// current subscription that was canceled because Subscription took over the
// current plan; it is nil otherwise.
type Outcome struct {
	Subscription *Subscription
	Superseded   *Subscription
}

// Renewal is the input of RenewSubscription.
type Renewal struct {
	SubscriptionID id.SubscriptionID
	PreviousEnd    time.Time
	NewEnd         time.Time
	At             time.Time
	Invoice        *invoice.Invoice
}

// RenewalStats counts subscriptions overall and those renewing automatically.
type RenewalStats struct {
	Total     int64
	AutoRenew int64
}
