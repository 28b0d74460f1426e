package sqlite_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/store/sqlite"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// openStore opens a migrated store on a fresh database file. A file rather
// than :memory: so every pooled connection sees the same database.
func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") +
		"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)"
	drv := sqlitedriver.New()
	require.NoError(t, drv.Open(ctx, dsn))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := sqlite.New(db)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newLedger(t *testing.T) (*crmledger.Ledger, *sqlite.Store) {
	t.Helper()
	s := openStore(t)
	l := crmledger.New(s,
		crmledger.WithClock(func() time.Time { return t0 }),
		crmledger.WithSweepInterval(0),
		crmledger.WithSkipMigrate(),
		crmledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l, s
}

func mustCustomer(t *testing.T, l *crmledger.Ledger) *customer.Customer {
	t.Helper()
	c, err := l.CreateCustomer(context.Background(), crmledger.CreateCustomerInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
	})
	require.NoError(t, err)
	return c
}

func mustPlan(t *testing.T, l *crmledger.Ledger, name string, cents int64) *plan.Plan {
	t.Helper()
	p, err := l.CreatePlan(context.Background(), crmledger.PlanInput{Name: name, Price: types.USD(cents)})
	require.NoError(t, err)
	return p
}

func currentPlanOf(t *testing.T, l *crmledger.Ledger, customerID id.CustomerID) *customer.CurrentPlan {
	t.Helper()
	c, err := l.GetCustomer(context.Background(), customerID)
	require.NoError(t, err)
	return c.CurrentPlan
}

func card(lastFour string, isDefault bool) crmledger.AddPaymentMethodInput {
	return crmledger.AddPaymentMethodInput{
		Type:       paymentmethod.TypeCreditCard,
		CardBrand:  "visa",
		LastFour:   lastFour,
		ExpiryDate: "12/29",
		IsDefault:  isDefault,
	}
}

func TestEnrollInvoicePayRenew(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Unlimited", 5000)

	_, err := l.AddPaymentMethod(ctx, c.ID, card("4242", true))
	require.NoError(t, err)

	sub, err := l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, AutoRenew: true})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	cp := currentPlanOf(t, l, c.ID)
	require.NotNil(t, cp)
	assert.True(t, cp.SubscriptionID.Equal(sub.ID))
	assert.True(t, cp.EndDate.Equal(sub.EndDate))

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, SubscriptionID: sub.ID, Amount: types.USD(5000)})
	require.NoError(t, err)
	require.NotNil(t, inv.PaymentMethod)
	assert.Equal(t, "4242", inv.PaymentMethod.LastFour)

	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.USD(5000), Type: transaction.TypePayment})
	require.NoError(t, err)
	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)

	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.USD(5000), Type: transaction.TypePayment})
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyPaid)

	total, err := l.TotalRevenue(ctx, t0)
	require.NoError(t, err)
	assert.True(t, total.Equal(types.USD(5000)), total.String())

	newEnd := sub.EndDate.AddDate(0, 1, 0)
	renewed, renewal, err := l.Renew(ctx, sub.ID, newEnd)
	require.NoError(t, err)
	assert.True(t, renewed.EndDate.Equal(newEnd))
	assert.True(t, renewal.Amount.Equal(p.Price))
	assert.Equal(t, invoice.StatusUnpaid, renewal.Status)
	assert.True(t, currentPlanOf(t, l, c.ID).EndDate.Equal(newEnd))
}

func TestPartialPaymentSettles(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(5000)})
	require.NoError(t, err)
	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.USD(3000), Type: transaction.TypePayment})
	require.NoError(t, err)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
}

func TestLifecycleMovesCurrentPlan(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	basic := mustPlan(t, l, "Basic", 2000)
	premium := mustPlan(t, l, "Premium", 6000)

	first, err := l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: basic.ID})
	require.NoError(t, err)
	second, err := l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: premium.ID})
	require.NoError(t, err)

	old, err := l.GetSubscription(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, old.Status)
	assert.Equal(t, subscription.ReasonSuperseded, old.CancelReason)
	assert.True(t, currentPlanOf(t, l, c.ID).SubscriptionID.Equal(second.ID))

	pending, err := l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: basic.ID, Start: t0.AddDate(0, 0, 2)})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, pending.Status)
	assert.True(t, currentPlanOf(t, l, c.ID).SubscriptionID.Equal(second.ID), "pending leaves the current plan alone")

	_, err = l.Activate(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, currentPlanOf(t, l, c.ID).SubscriptionID.Equal(pending.ID))
	replaced, err := l.GetSubscription(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, replaced.Status)

	// Canceling a subscription that is no longer current leaves the pointer.
	_, err = l.Cancel(ctx, second.ID, "")
	assert.ErrorIs(t, err, crmledger.ErrInvalidTransition)

	_, err = l.Cancel(ctx, pending.ID, "")
	require.NoError(t, err)
	assert.Nil(t, currentPlanOf(t, l, c.ID))

	active, err := l.ListSubscriptions(ctx, c.ID, subscription.ListOpts{Status: subscription.StatusActive})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateSubscriptionForMissingCustomer(t *testing.T) {
	ctx := context.Background()
	l, s := newLedger(t)
	p := mustPlan(t, l, "Basic", 2000)

	sub := &subscription.Subscription{
		Entity:     types.NewEntity(t0),
		ID:         id.NewSubscriptionID(),
		CustomerID: id.NewCustomerID(),
		PlanID:     p.ID,
		Status:     subscription.StatusActive,
		StartDate:  t0,
		EndDate:    t0.AddDate(0, 1, 0),
	}
	_, err := s.CreateSubscription(ctx, sub)
	assert.ErrorIs(t, err, crmledger.ErrCustomerNotFound)

	_, err = s.GetSubscription(ctx, sub.ID)
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotFound)
}

func TestConcurrentTicketsGetDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := l.CreateTicket(ctx, crmledger.CreateTicketInput{CustomerID: c.ID, Subject: "No signal", Description: "Down since noon"})
			assert.NoError(t, err)
			if tk != nil {
				mu.Lock()
				numbers[tk.Number] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	for i := 1; i <= n; i++ {
		assert.True(t, numbers[fmt.Sprintf("TK-2026%03d", i)], "missing number %d", i)
	}
}

func TestConcurrentDefaultsLeaveExactlyOne(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.AddPaymentMethod(ctx, c.ID, card(fmt.Sprintf("%04d", i), true))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	methods, err := l.ListPaymentMethods(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, methods, n)
	assert.Equal(t, 1, lo.CountBy(methods, func(pm *paymentmethod.PaymentMethod) bool { return pm.IsDefault }))
	assert.True(t, methods[0].IsDefault, "default sorts first")
}

func TestCancelRacingEnrollNeverStrandsCurrentPlan(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	basic := mustPlan(t, l, "Basic", 2000)
	premium := mustPlan(t, l, "Premium", 6000)

	for range 10 {
		c := mustCustomer(t, l)
		first, err := l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: basic.ID})
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			second    *subscription.Subscription
			enrollErr error
			cancelErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = l.Cancel(ctx, first.ID, "")
		}()
		go func() {
			defer wg.Done()
			second, enrollErr = l.Enroll(ctx, crmledger.EnrollInput{CustomerID: c.ID, PlanID: premium.ID})
		}()
		wg.Wait()

		require.NoError(t, enrollErr)
		if cancelErr != nil {
			assert.ErrorIs(t, cancelErr, crmledger.ErrInvalidTransition)
		}
		cp := currentPlanOf(t, l, c.ID)
		require.NotNil(t, cp)
		assert.True(t, cp.SubscriptionID.Equal(second.ID))
	}
}
