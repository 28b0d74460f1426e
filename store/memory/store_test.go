package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCustomer(t *testing.T, s *Store) *customer.Customer {
	t.Helper()
	c := &customer.Customer{
		Entity:    types.NewEntity(t0),
		ID:        id.NewCustomerID(),
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Balance:   types.Zero("usd"),
		Status:    customer.StatusActive,
	}
	require.NoError(t, s.CreateCustomer(context.Background(), c))
	return c
}

func seedMethod(t *testing.T, s *Store, c *customer.Customer, makeDefault bool) *paymentmethod.PaymentMethod {
	t.Helper()
	pm := &paymentmethod.PaymentMethod{
		Entity:     types.NewEntity(t0),
		ID:         id.NewPaymentMethodID(),
		CustomerID: c.ID,
		Type:       paymentmethod.TypeCreditCard,
		CardBrand:  "visa",
		LastFour:   "4242",
		ExpiryDate: "12/29",
	}
	require.NoError(t, s.CreatePaymentMethod(context.Background(), pm, makeDefault))
	return pm
}

func TestCustomerRoundTripIsolated(t *testing.T) {
	s := New()
	c := seedCustomer(t, s)

	got, err := s.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	got.FirstName = "changed"

	again, err := s.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.FirstName)

	assert.ErrorIs(t, s.CreateCustomer(context.Background(), c), crmledger.ErrAlreadyExists)

	_, err = s.GetCustomer(context.Background(), id.NewCustomerID())
	assert.ErrorIs(t, err, crmledger.ErrCustomerNotFound)
}

func TestDefaultPaymentMethodPointer(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	_, err := s.GetDefaultPaymentMethod(ctx, c.ID)
	assert.ErrorIs(t, err, crmledger.ErrNoDefaultPaymentMethod)

	first := seedMethod(t, s, c, true)
	second := seedMethod(t, s, c, false)

	methods, err := s.ListPaymentMethods(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, first.ID, methods[0].ID)
	assert.True(t, methods[0].IsDefault)
	assert.False(t, methods[1].IsDefault)

	require.NoError(t, s.SetDefaultPaymentMethod(ctx, c.ID, second.ID, t0))
	def, err := s.GetDefaultPaymentMethod(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	got, err := s.GetPaymentMethod(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)

	wasDefault, err := s.DeletePaymentMethod(ctx, second.ID, t0)
	require.NoError(t, err)
	assert.True(t, wasDefault)

	_, err = s.GetDefaultPaymentMethod(ctx, c.ID)
	assert.ErrorIs(t, err, crmledger.ErrNoDefaultPaymentMethod)

	_, err = s.DeletePaymentMethod(ctx, second.ID, t0)
	assert.ErrorIs(t, err, crmledger.ErrPaymentMethodNotFound)
}

func TestSetDefaultRejectsForeignMethod(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := seedCustomer(t, s)
	other := seedCustomer(t, s)
	pm := seedMethod(t, s, owner, false)

	err := s.SetDefaultPaymentMethod(ctx, other.ID, pm.ID, t0)
	assert.ErrorIs(t, err, crmledger.ErrInvalidReference)
}

func TestConcurrentDefaultsLeaveOne(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pm := &paymentmethod.PaymentMethod{
				Entity:     types.NewEntity(t0),
				ID:         id.NewPaymentMethodID(),
				CustomerID: c.ID,
				Type:       paymentmethod.TypeBankAccount,
				LastFour:   "0001",
			}
			assert.NoError(t, s.CreatePaymentMethod(ctx, pm, true))
		}()
	}
	wg.Wait()

	methods, err := s.ListPaymentMethods(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, methods, 20)

	defaults := 0
	for _, pm := range methods {
		if pm.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestTransitionGuards(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	sub := &subscription.Subscription{
		Entity:     types.NewEntity(t0),
		ID:         id.NewSubscriptionID(),
		CustomerID: c.ID,
		PlanID:     id.NewPlanID(),
		Status:     subscription.StatusActive,
		StartDate:  t0,
		EndDate:    t0.AddDate(0, 1, 0),
		AutoRenew:  true,
	}
	_, err := s.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	// auto-renewing subscriptions never lapse
	_, err = s.TransitionSubscription(ctx, subscription.Transition{
		SubscriptionID: sub.ID,
		From:           []subscription.Status{subscription.StatusActive},
		To:             subscription.StatusExpired,
		At:             t0.AddDate(0, 2, 0),
		LapsedBefore:   t0.AddDate(0, 2, 0),
	})
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotExpirable)

	out, err := s.TransitionSubscription(ctx, subscription.Transition{
		SubscriptionID: sub.ID,
		From:           subscription.Sources(subscription.StatusCanceled),
		To:             subscription.StatusCanceled,
		At:             t0,
		Reason:         subscription.ReasonRequested,
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, out.Subscription.Status)
	require.NotNil(t, out.Subscription.CanceledAt)
	assert.Nil(t, out.Superseded)

	_, err = s.TransitionSubscription(ctx, subscription.Transition{
		SubscriptionID: sub.ID,
		From:           []subscription.Status{subscription.StatusPending},
		To:             subscription.StatusActive,
		At:             t0,
	})
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)
}

func TestLifecycleWritesMoveCurrentPlan(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	newSub := func(status subscription.Status) *subscription.Subscription {
		return &subscription.Subscription{
			Entity:     types.NewEntity(t0),
			ID:         id.NewSubscriptionID(),
			CustomerID: c.ID,
			PlanID:     id.NewPlanID(),
			Status:     status,
			StartDate:  t0,
			EndDate:    t0.AddDate(0, 1, 0),
		}
	}
	currentOf := func() *customer.CurrentPlan {
		got, err := s.GetCustomer(ctx, c.ID)
		require.NoError(t, err)
		return got.CurrentPlan
	}

	first := newSub(subscription.StatusActive)
	out, err := s.CreateSubscription(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, out.Superseded)
	require.NotNil(t, currentOf())
	assert.True(t, currentOf().SubscriptionID.Equal(first.ID))

	pending := newSub(subscription.StatusPending)
	_, err = s.CreateSubscription(ctx, pending)
	require.NoError(t, err)
	assert.True(t, currentOf().SubscriptionID.Equal(first.ID), "pending subscriptions do not take over")

	out, err = s.TransitionSubscription(ctx, subscription.Transition{
		SubscriptionID: pending.ID,
		From:           []subscription.Status{subscription.StatusPending},
		To:             subscription.StatusActive,
		At:             t0,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Superseded)
	assert.True(t, out.Superseded.ID.Equal(first.ID))
	assert.Equal(t, subscription.StatusCanceled, out.Superseded.Status)
	assert.Equal(t, subscription.ReasonSuperseded, out.Superseded.CancelReason)
	assert.True(t, currentOf().SubscriptionID.Equal(pending.ID))

	// canceling a subscription that is not current leaves the pointer alone
	_, err = s.TransitionSubscription(ctx, subscription.Transition{
		SubscriptionID: first.ID,
		From:           subscription.Sources(subscription.StatusCanceled),
		To:             subscription.StatusCanceled,
		At:             t0,
	})
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)
	assert.True(t, currentOf().SubscriptionID.Equal(pending.ID))

	_, err = s.TransitionSubscription(ctx, subscription.Transition{
		SubscriptionID: pending.ID,
		From:           subscription.Sources(subscription.StatusCanceled),
		To:             subscription.StatusCanceled,
		At:             t0,
	})
	require.NoError(t, err)
	assert.Nil(t, currentOf())

	orphan := newSub(subscription.StatusActive)
	orphan.CustomerID = id.NewCustomerID()
	_, err = s.CreateSubscription(ctx, orphan)
	assert.ErrorIs(t, err, crmledger.ErrCustomerNotFound)
	_, err = s.GetSubscription(ctx, orphan.ID)
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotFound)
}

func TestRenewSubscriptionGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	end := t0.AddDate(0, 1, 0)
	sub := &subscription.Subscription{
		Entity:     types.NewEntity(t0),
		ID:         id.NewSubscriptionID(),
		CustomerID: c.ID,
		PlanID:     id.NewPlanID(),
		Status:     subscription.StatusActive,
		StartDate:  t0,
		EndDate:    end,
	}
	_, err := s.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	newInvoice := func() *invoice.Invoice {
		return &invoice.Invoice{
			Entity:     types.NewEntity(t0),
			ID:         id.NewInvoiceID(),
			CustomerID: c.ID,
			Amount:     types.USD(2999),
			Status:     invoice.StatusUnpaid,
			IssueDate:  t0,
			DueDate:    t0.AddDate(0, 0, 30),
		}
	}

	newEnd := end.AddDate(0, 1, 0)
	renewed, err := s.RenewSubscription(ctx, subscription.Renewal{
		SubscriptionID: sub.ID, PreviousEnd: end, NewEnd: newEnd, At: t0, Invoice: newInvoice(),
	})
	require.NoError(t, err)
	assert.True(t, renewed.EndDate.Equal(newEnd))

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPlan)
	assert.True(t, got.CurrentPlan.EndDate.Equal(newEnd))

	// a second renewal from the stale end date loses the race
	_, err = s.RenewSubscription(ctx, subscription.Renewal{
		SubscriptionID: sub.ID, PreviousEnd: end, NewEnd: newEnd.AddDate(0, 1, 0), At: t0, Invoice: newInvoice(),
	})
	assert.ErrorIs(t, err, crmledger.ErrConcurrencyConflict)

	invs, err := s.ListInvoices(ctx, c.ID, invoice.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func TestRecordTransactionSettles(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	inv := &invoice.Invoice{
		Entity:     types.NewEntity(t0),
		ID:         id.NewInvoiceID(),
		CustomerID: c.ID,
		Amount:     types.USD(5000),
		Status:     invoice.StatusUnpaid,
		IssueDate:  t0,
		DueDate:    t0.AddDate(0, 0, 30),
	}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	pay := func() *transaction.Transaction {
		return &transaction.Transaction{
			ID:         id.NewTransactionID(),
			CustomerID: c.ID,
			InvoiceID:  inv.ID,
			Amount:     types.USD(5000),
			Type:       transaction.TypePayment,
			Status:     transaction.StatusCompleted,
			Date:       t0,
		}
	}

	txn := pay()
	require.NoError(t, s.RecordTransaction(ctx, txn, transaction.EffectOf(txn, t0)))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	require.NotNil(t, got.PaidDate)

	owner, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), owner.Balance.Amount)

	again := pay()
	err = s.RecordTransaction(ctx, again, transaction.EffectOf(again, t0))
	assert.ErrorIs(t, err, crmledger.ErrInvoiceNotPayable)

	txns, err := s.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, txns, 1, "failed settlement must not insert the transaction")

	revenue, err := s.SumPaidRevenue(ctx, "usd", invoice.Range{To: t0, ToInclusive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), revenue)
}

func TestMarkOverdueAndCancel(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	mk := func(due time.Time) *invoice.Invoice {
		inv := &invoice.Invoice{
			Entity:     types.NewEntity(t0),
			ID:         id.NewInvoiceID(),
			CustomerID: c.ID,
			Amount:     types.USD(100),
			Status:     invoice.StatusUnpaid,
			IssueDate:  t0,
			DueDate:    due,
		}
		require.NoError(t, s.CreateInvoice(ctx, inv))
		return inv
	}
	late := mk(t0.AddDate(0, 0, 1))
	mk(t0.AddDate(0, 0, 10))

	n, err := s.MarkOverdue(ctx, t0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	next, err := s.NextUnpaidInvoice(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, late.ID, next.ID)

	canceled, err := s.CancelInvoice(ctx, late.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCanceled, canceled.Status)

	_, err = s.CancelInvoice(ctx, late.ID, t0)
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyCanceled)
}

func TestNextSequenceContiguous(t *testing.T) {
	ctx := context.Background()
	s := New()

	const n = 50
	got := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.NextSequence(ctx, "ticket:2026")
			assert.NoError(t, err)
			got <- v
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[int64]bool, n)
	for v := range got {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}

	v, err := s.NextSequence(ctx, "ticket:2027")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestTicketResolvedAtStampedOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := seedCustomer(t, s)

	tk := &ticket.Ticket{
		Entity:     types.NewEntity(t0),
		ID:         id.NewTicketID(),
		Number:     "TK-2026001",
		CustomerID: c.ID,
		Subject:    "No signal",
		Status:     ticket.StatusOpen,
		Priority:   ticket.PriorityHigh,
	}
	require.NoError(t, s.CreateTicket(ctx, tk))

	_, err := s.LatestResolvedTicket(ctx, c.ID)
	assert.ErrorIs(t, err, crmledger.ErrTicketNotFound)

	first, err := s.SetTicketStatus(ctx, tk.ID, ticket.StatusResolved, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedAt)

	later, err := s.SetTicketStatus(ctx, tk.ID, ticket.StatusResolved, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, later.ResolvedAt.Equal(*first.ResolvedAt))

	byNumber, err := s.GetTicketByNumber(ctx, "TK-2026001")
	require.NoError(t, err)
	assert.Equal(t, tk.ID, byNumber.ID)
}
