// Package subscription defines plan enrollments and the lifecycle state
// machine they move through.
package subscription

import (
	"time"

	"github.com/samber/lo"

	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// transitions lists the allowed target states per source state.
// active -> active is a renewal.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCanceled},
	StatusActive:  {StatusActive, StatusCanceled, StatusExpired},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	return lo.Contains(transitions[from], to)
}

// Sources returns the states from which to is reachable.
func Sources(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusActive} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// TakesCurrent reports whether entering to makes a subscription its
// customer's current plan.
func TakesCurrent(to Status) bool { return to == StatusActive }

// ReleasesCurrent reports whether entering to clears a current plan that
// points at the subscription.
func ReleasesCurrent(to Status) bool { return to.IsTerminal() }

// Cancel reasons.
const (
	ReasonRequested  = "requested"
	ReasonSuperseded = "superseded"
)

// Subscription links one customer to one plan for a period.
type Subscription struct {
	types.Entity
	ID           id.SubscriptionID `json:"id"`
	CustomerID   id.CustomerID     `json:"customerId"`
	PlanID       id.PlanID         `json:"planId"`
	Status       Status            `json:"status"`
	StartDate    time.Time         `json:"startDate"`
	EndDate      time.Time         `json:"endDate"`
	AutoRenew    bool              `json:"autoRenew"`
	ActivatedAt  *time.Time        `json:"activatedAt,omitempty"`
	CanceledAt   *time.Time        `json:"canceledAt,omitempty"`
	ExpiredAt    *time.Time        `json:"expiredAt,omitempty"`
	CancelReason string            `json:"cancelReason,omitempty"`
}

// Expirable reports whether the system may expire s at now.
func (s *Subscription) Expirable(now time.Time) bool {
	return s.Status == StatusActive && !s.AutoRenew && s.EndDate.Before(now)
}

// CurrentPlan is the customer snapshot of s.
func (s *Subscription) CurrentPlan() *customer.CurrentPlan {
	return &customer.CurrentPlan{
		SubscriptionID: s.ID,
		PlanID:         s.PlanID,
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
		AutoRenew:      s.AutoRenew,
	}
}

// Apply sets s to its post-transition state. The caller has already checked
// CanTransition.
func (s *Subscription) Apply(t Transition) {
	at := t.At.UTC()
	s.Status = t.To
	switch t.To {
	case StatusActive:
		s.ActivatedAt = &at
	case StatusCanceled:
		s.CanceledAt = &at
		s.CancelReason = t.Reason
	case StatusExpired:
		s.ExpiredAt = &at
	}
	s.UpdatedAt = at
}

// Transition is a guarded status change: it applies only while the stored
// status is one of From. A non-zero LapsedBefore additionally requires the
// stored subscription to be non-renewing with an end date before it.
type Transition struct {
	SubscriptionID id.SubscriptionID
	From           []Status
	To             Status
	At             time.Time
	Reason         string
	LapsedBefore   time.Time
}

// Supersede is the transition that cancels subID when another subscription
// replaces it as the current plan.
func Supersede(subID id.SubscriptionID, at time.Time) Transition {
	return Transition{
		SubscriptionID: subID,
		From:           []Status{StatusActive},
		To:             StatusCanceled,
		At:             at,
		Reason:         ReasonSuperseded,
	}
}

// AllowsStatus reports whether status is one of From.
func (t Transition) AllowsStatus(status Status) bool {
	return lo.Contains(t.From, status)
}

// Allows reports whether s satisfies the whole guard.
func (t Transition) Allows(s *Subscription) bool {
	if !t.AllowsStatus(s.Status) {
		return false
	}
	if !t.LapsedBefore.IsZero() {
		return !s.AutoRenew && s.EndDate.Before(t.LapsedBefore)
	}
	return true
}
