package crmledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/types"
)

// EnrollInput is the request to subscribe a customer to a plan. A zero
// Start means now; a zero End means one billing cycle after Start.
type EnrollInput struct {
	CustomerID id.CustomerID `json:"customerId"`
	PlanID     id.PlanID     `json:"planId"`
	Start      time.Time     `json:"startDate"`
	End        time.Time     `json:"endDate"`
	AutoRenew  bool          `json:"autoRenew"`
}

// Enroll creates a subscription. It starts active when Start is not in the
// future and pending otherwise. An active enrollment becomes the customer's
// current plan and supersedes the previous one.
func (l *Ledger) Enroll(ctx context.Context, in EnrollInput) (*subscription.Subscription, error) {
	c, err := l.customerRef(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if c.Status != customer.StatusActive {
		return nil, ErrCustomerNotActive
	}

	p, err := l.planRef(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.Enrollable() {
		return nil, ErrPlanNotEnrollable
	}

	now := l.now()
	start := now
	if !in.Start.IsZero() {
		start = in.Start.UTC().Truncate(time.Millisecond)
	}
	end := p.BillingCycle.Advance(start)
	if !in.End.IsZero() {
		end = in.End.UTC().Truncate(time.Millisecond)
	}
	if end.Before(start) {
		return nil, invalid("endDate", "must not be before startDate")
	}

	sub := &subscription.Subscription{
		Entity:     types.NewEntity(now),
		ID:         id.NewSubscriptionID(),
		CustomerID: c.ID,
		PlanID:     p.ID,
		Status:     subscription.StatusPending,
		StartDate:  start,
		EndDate:    end,
		AutoRenew:  in.AutoRenew,
	}
	if !start.After(now) {
		sub.Status = subscription.StatusActive
		sub.ActivatedAt = &now
	}

	out, err := retryConflicts(ctx, l, func() (subscription.Outcome, error) {
		return l.store.CreateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitSubscriptionEnrolled(ctx, out.Subscription)
	if out.Subscription.Status == subscription.StatusActive {
		l.emitActivated(ctx, out)
	}
	return out.Subscription, nil
}

// Activate moves a pending subscription to active and makes it the
// customer's current plan.
func (l *Ledger) Activate(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return l.activate(ctx, subID, l.now())
}

func (l *Ledger) activate(ctx context.Context, subID id.SubscriptionID, now time.Time) (*subscription.Subscription, error) {
	out, err := l.transition(ctx, subscription.Transition{
		SubscriptionID: subID,
		From:           []subscription.Status{subscription.StatusPending},
		To:             subscription.StatusActive,
		At:             now,
	})
	if err != nil {
		return nil, err
	}

	l.emitActivated(ctx, out)
	return out.Subscription, nil
}

// transition applies t through the store, which moves the customer's
// current plan in the same write.
func (l *Ledger) transition(ctx context.Context, t subscription.Transition) (subscription.Outcome, error) {
	return retryConflicts(ctx, l, func() (subscription.Outcome, error) {
		return l.store.TransitionSubscription(ctx, t)
	})
}

// emitActivated announces the subscription that replaced the current plan
// before the activation itself.
func (l *Ledger) emitActivated(ctx context.Context, out subscription.Outcome) {
	if out.Superseded != nil {
		l.plugins.EmitSubscriptionCanceled(ctx, out.Superseded)
	}
	l.plugins.EmitSubscriptionActivated(ctx, out.Subscription)
}

// Cancel ends a pending or active subscription. An empty reason records
// "requested".
func (l *Ledger) Cancel(ctx context.Context, subID id.SubscriptionID, reason string) (*subscription.Subscription, error) {
	if reason == "" {
		reason = subscription.ReasonRequested
	}

	now := l.now()
	out, err := l.transition(ctx, subscription.Transition{
		SubscriptionID: subID,
		From:           subscription.Sources(subscription.StatusCanceled),
		To:             subscription.StatusCanceled,
		At:             now,
		Reason:         reason,
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitSubscriptionCanceled(ctx, out.Subscription)
	return out.Subscription, nil
}

// Expire ends an active, non-renewing subscription whose end date has
// passed.
func (l *Ledger) Expire(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	now := l.now()

	current, err := l.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if current.Status != subscription.StatusActive {
		return nil, ErrInvalidTransition
	}
	if !current.Expirable(now) {
		return nil, ErrSubscriptionNotExpirable
	}

	return l.expire(ctx, subID, now)
}

func (l *Ledger) expire(ctx context.Context, subID id.SubscriptionID, now time.Time) (*subscription.Subscription, error) {
	out, err := l.transition(ctx, subscription.Transition{
		SubscriptionID: subID,
		From:           []subscription.Status{subscription.StatusActive},
		To:             subscription.StatusExpired,
		At:             now,
		LapsedBefore:   now,
	})
	if err != nil {
		return nil, err
	}

	l.plugins.EmitSubscriptionExpired(ctx, out.Subscription)
	return out.Subscription, nil
}

// Renew extends an active subscription to newEnd and issues the renewal
// invoice for the plan price. Both are stored by one atomic call guarded on
// the end date read here; a lost race is retried after re-reading.
func (l *Ledger) Renew(ctx context.Context, subID id.SubscriptionID, newEnd time.Time) (*subscription.Subscription, *invoice.Invoice, error) {
	newEnd = newEnd.UTC().Truncate(time.Millisecond)
	now := l.now()
	billing := l.billing(ctx)

	type renewed struct {
		sub *subscription.Subscription
		inv *invoice.Invoice
	}

	var number string
	res, err := retryConflicts(ctx, l, func() (renewed, error) {
		sub, err := l.store.GetSubscription(ctx, subID)
		if err != nil {
			return renewed{}, err
		}
		if sub.Status != subscription.StatusActive {
			return renewed{}, ErrInvalidTransition
		}
		if !newEnd.After(sub.EndDate) {
			return renewed{}, invalid("endDate", "must be after the current end date")
		}

		p, err := l.store.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return renewed{}, err
		}
		payer, err := l.payerInstrument(ctx, sub.CustomerID)
		if err != nil {
			return renewed{}, err
		}
		if number == "" {
			if number, err = l.nextInvoiceNumber(ctx, now); err != nil {
				return renewed{}, err
			}
		}

		inv := &invoice.Invoice{
			Entity:         types.NewEntity(now),
			ID:             id.NewInvoiceID(),
			Number:         number,
			CustomerID:     sub.CustomerID,
			SubscriptionID: sub.ID,
			Amount:         p.Price,
			Status:         invoice.StatusUnpaid,
			IssueDate:      now,
			DueDate:        now.AddDate(0, 0, billing.InvoiceDueDays),
			Items: []invoice.LineItem{{
				ID:          id.NewLineItemID(),
				Description: fmt.Sprintf("%s renewal %s to %s", p.Name, sub.EndDate.Format(time.DateOnly), newEnd.Format(time.DateOnly)),
				Amount:      p.Price,
			}},
			PaymentMethod: payer,
		}

		out, err := l.store.RenewSubscription(ctx, subscription.Renewal{
			SubscriptionID: sub.ID,
			PreviousEnd:    sub.EndDate,
			NewEnd:         newEnd,
			At:             now,
			Invoice:        inv,
		})
		if err != nil {
			return renewed{}, err
		}
		return renewed{sub: out, inv: inv}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	l.plugins.EmitSubscriptionRenewed(ctx, res.sub, res.inv)
	l.plugins.EmitInvoiceIssued(ctx, res.inv)
	return res.sub, res.inv, nil
}

// ActivateDue activates every pending subscription whose start date has
// passed and returns how many it activated.
func (l *Ledger) ActivateDue(ctx context.Context) (int, error) {
	now := l.now()
	return l.sweepSubscriptions(ctx, func() ([]*subscription.Subscription, error) {
		return l.store.ListDueForActivation(ctx, now, l.sweepBatch)
	}, func(sub *subscription.Subscription) error {
		_, err := l.activate(ctx, sub.ID, now)
		return err
	})
}

// ExpireDue expires every active, non-renewing subscription whose end date
// has passed and returns how many it expired.
func (l *Ledger) ExpireDue(ctx context.Context) (int, error) {
	now := l.now()
	return l.sweepSubscriptions(ctx, func() ([]*subscription.Subscription, error) {
		return l.store.ListDueForExpiry(ctx, now, l.sweepBatch)
	}, func(sub *subscription.Subscription) error {
		_, err := l.expire(ctx, sub.ID, now)
		return err
	})
}

// sweepSubscriptions applies fn to batches from list until a short batch.
// Subscriptions that changed state concurrently are skipped.
func (l *Ledger) sweepSubscriptions(ctx context.Context, list func() ([]*subscription.Subscription, error), fn func(*subscription.Subscription) error) (int, error) {
	done := 0
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		batch, err := list()
		if err != nil {
			return done, err
		}

		progressed := false
		for _, sub := range batch {
			err := fn(sub)
			switch {
			case err == nil:
				done++
				progressed = true
			case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSubscriptionNotExpirable):
				progressed = true
			default:
				return done, err
			}
		}

		if len(batch) < l.sweepBatch || !progressed {
			return done, nil
		}
	}
}

// GetSubscription retrieves a subscription by ID.
func (l *Ledger) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return l.store.GetSubscription(ctx, subID)
}

// ListSubscriptions lists a customer's subscriptions, newest first.
func (l *Ledger) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return l.store.ListSubscriptions(ctx, customerID, opts)
}
