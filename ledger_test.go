package crmledger_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/store"
	"github.com/xraph/crmledger/store/memory"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/types"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLedger(t *testing.T, opts ...crmledger.Option) (*crmledger.Ledger, *testClock) {
	t.Helper()
	return newLedgerOn(t, memory.New(), opts...)
}

func newLedgerOn(t *testing.T, s store.Store, opts ...crmledger.Option) (*crmledger.Ledger, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	base := []crmledger.Option{
		crmledger.WithClock(clock.Now),
		crmledger.WithSweepInterval(0),
		crmledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	l := crmledger.New(s, append(base, opts...)...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l, clock
}

func mustCustomer(t *testing.T, l *crmledger.Ledger) *customer.Customer {
	t.Helper()
	c, err := l.CreateCustomer(context.Background(), crmledger.CreateCustomerInput{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
	})
	require.NoError(t, err)
	return c
}

func mustPlan(t *testing.T, l *crmledger.Ledger, name string, cents int64) *plan.Plan {
	t.Helper()
	p, err := l.CreatePlan(context.Background(), crmledger.PlanInput{
		Name:     name,
		Price:    types.USD(cents),
		Features: plan.Features{Data: 20480, Calls: 500, SMS: 200, Speed: 100},
	})
	require.NoError(t, err)
	return p
}

func mustEnroll(t *testing.T, l *crmledger.Ledger, in crmledger.EnrollInput) *subscription.Subscription {
	t.Helper()
	sub, err := l.Enroll(context.Background(), in)
	require.NoError(t, err)
	return sub
}

func TestCreateCustomer(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	c := mustCustomer(t, l)
	assert.Equal(t, customer.StatusActive, c.Status)
	assert.True(t, c.Balance.IsZero())
	assert.Equal(t, "usd", c.Balance.Currency)
	assert.Nil(t, c.CurrentPlan)

	_, err := l.CreateCustomer(ctx, crmledger.CreateCustomerInput{FirstName: "No", LastName: "Mail", Email: "not-an-email"})
	assert.True(t, crmledger.IsValidation(err))

	_, err = l.GetCustomer(ctx, id.NewCustomerID())
	assert.ErrorIs(t, err, crmledger.ErrCustomerNotFound)
	assert.True(t, crmledger.IsNotFound(err))
}

func TestCreatePlanDefaults(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	p, err := l.CreatePlan(ctx, crmledger.PlanInput{Name: "Basic", Price: types.New(1999, "")})
	require.NoError(t, err)
	assert.Equal(t, plan.CycleMonthly, p.BillingCycle)
	assert.Equal(t, plan.StatusActive, p.Status)
	assert.Equal(t, "usd", p.Price.Currency)

	_, err = l.CreatePlan(ctx, crmledger.PlanInput{Name: "Broken", Price: types.USD(-1)})
	assert.True(t, crmledger.IsValidation(err))

	_, err = l.CreatePlan(ctx, crmledger.PlanInput{Name: "Broken", BillingCycle: "weekly"})
	assert.True(t, crmledger.IsValidation(err))
}

func TestEnrollActiveBecomesCurrentPlan(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Unlimited", 5000)

	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, AutoRenew: true})
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, t0, sub.StartDate)
	assert.Equal(t, t0.AddDate(0, 1, 0), sub.EndDate)
	require.NotNil(t, sub.ActivatedAt)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPlan)
	assert.True(t, got.CurrentPlan.SubscriptionID.Equal(sub.ID))
	assert.True(t, got.CurrentPlan.PlanID.Equal(p.ID))
	assert.True(t, got.CurrentPlan.AutoRenew)
}

func TestEnrollSupersedesPreviousPlan(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)
	basic := mustPlan(t, l, "Basic", 2000)
	premium := mustPlan(t, l, "Premium", 6000)

	first := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: basic.ID})
	clock.Advance(time.Hour)
	second := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: premium.ID})

	old, err := l.GetSubscription(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, old.Status)
	assert.Equal(t, subscription.ReasonSuperseded, old.CancelReason)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPlan)
	assert.True(t, got.CurrentPlan.SubscriptionID.Equal(second.ID))

	active, err := l.ListSubscriptions(ctx, c.ID, subscription.ListOpts{Status: subscription.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEnrollPendingThenActivateDue(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)

	start := t0.Add(48 * time.Hour)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, Start: start})
	assert.Equal(t, subscription.StatusPending, sub.Status)
	assert.Nil(t, sub.ActivatedAt)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentPlan, "pending enrollments do not touch the current plan")

	n, err := l.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(72 * time.Hour)
	n, err = l.ActivateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sub, err = l.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.False(t, sub.StartDate.After(sub.EndDate))

	got, err = l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPlan)
	assert.True(t, got.CurrentPlan.SubscriptionID.Equal(sub.ID))
}

func TestEnrollRejects(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)

	_, err := l.Enroll(ctx, crmledger.EnrollInput{CustomerID: id.NewCustomerID(), PlanID: p.ID})
	assert.True(t, crmledger.IsInvalidReference(err), "unknown customer")

	_, err = l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: id.NewPlanID()})
	assert.True(t, crmledger.IsInvalidReference(err), "unknown plan")

	_, err = l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, Start: t0, End: t0.Add(-time.Hour)})
	assert.True(t, crmledger.IsValidation(err))

	old, err := l.CreatePlan(ctx, crmledger.PlanInput{Name: "Legacy", Price: types.USD(1000)})
	require.NoError(t, err)
	_, err = l.DeprecatePlan(ctx, old.ID)
	require.NoError(t, err)
	_, err = l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: old.ID})
	assert.ErrorIs(t, err, crmledger.ErrPlanNotEnrollable)

	_, err = l.UpdateCustomerStatus(ctx, c.ID, customer.StatusSuspended)
	require.NoError(t, err)
	_, err = l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID})
	assert.ErrorIs(t, err, crmledger.ErrCustomerNotActive)
	assert.True(t, crmledger.IsStateConflict(err))
}

func TestCancelClearsCurrentPlan(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID})

	canceled, err := l.Cancel(ctx, sub.ID, "")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)
	assert.Equal(t, subscription.ReasonRequested, canceled.CancelReason)
	require.NotNil(t, canceled.CanceledAt)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentPlan)

	_, err = l.Cancel(ctx, sub.ID, "again")
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)

	_, err = l.Activate(ctx, sub.ID)
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)

	_, _, err = l.Renew(ctx, sub.ID, t0.AddDate(0, 2, 0))
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)

	_, err = l.Cancel(ctx, id.NewSubscriptionID(), "")
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotFound)
}

func TestCancelPending(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, Start: t0.AddDate(0, 0, 7)})

	canceled, err := l.Cancel(ctx, sub.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)
	assert.Equal(t, "changed mind", canceled.CancelReason)
}

func TestActivateBeforeStartDate(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, Start: t0.AddDate(0, 0, 7)})

	active, err := l.Activate(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, active.Status)

	_, err = l.Activate(ctx, sub.ID)
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID})

	_, err := l.Expire(ctx, sub.ID)
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotExpirable)

	clock.Set(t0.AddDate(0, 2, 0))
	expired, err := l.Expire(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, expired.Status)
	require.NotNil(t, expired.ExpiredAt)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentPlan)

	_, err = l.Expire(ctx, sub.ID)
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)
}

func TestExpireDueSkipsAutoRenew(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	p := mustPlan(t, l, "Basic", 2000)

	lapsing := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID})
	renewing := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID, AutoRenew: true})

	clock.Set(t0.AddDate(0, 2, 0))
	n, err := l.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := l.GetSubscription(ctx, lapsing.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)

	got, err = l.GetSubscription(ctx, renewing.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)

	_, err = l.Expire(ctx, renewing.ID)
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotExpirable)

	n, err = l.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepReport(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	p := mustPlan(t, l, "Basic", 2000)

	mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID, Start: t0.Add(time.Hour)})
	mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID, Start: t0.AddDate(0, -2, 0)})

	clock.Advance(2 * time.Hour)
	report, err := l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Activated)
	assert.Equal(t, int64(1), report.Expired)
}
