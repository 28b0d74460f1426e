package crmledger_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

func card(lastFour string, isDefault bool) crmledger.AddPaymentMethodInput {
	return crmledger.AddPaymentMethodInput{
		Type:       paymentmethod.TypeCreditCard,
		CardBrand:  "visa",
		LastFour:   lastFour,
		ExpiryDate: "08/29",
		IsDefault:  isDefault,
	}
}

func TestEndToEndEnrollInvoicePay(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Plan P", 5000)

	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID})
	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPlan)
	assert.True(t, got.CurrentPlan.PlanID.Equal(p.ID))

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{
		CustomerID:     c.ID,
		SubscriptionID: sub.ID,
		Amount:         types.USD(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, inv.Status)
	assert.Equal(t, t0.AddDate(0, 0, 30), inv.DueDate)
	assert.Equal(t, "INV-202603-0001", inv.Number)

	txn, err := l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.USD(5000),
		Type:       transaction.TypePayment,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, txn.Status)

	paid, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidDate)
	assert.Equal(t, t0, *paid.PaidDate)

	got, err = l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), got.Balance.Amount)

	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.USD(5000),
		Type:       transaction.TypePayment,
	})
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyPaid)
}

func TestIssueInvoiceItemsMustSumToAmount(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	items := []crmledger.LineItemInput{
		{Description: "Line rental", Amount: types.USD(30)},
		{Description: "Roaming", Amount: types.USD(20)},
	}

	_, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(40), Items: items})
	assert.True(t, crmledger.IsValidation(err))

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(50), Items: items})
	require.NoError(t, err)
	assert.Len(t, inv.Items, 2)
	assert.True(t, inv.ItemsTotal().Equal(types.USD(50)))
}

func TestIssueInvoiceRejects(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	other := mustCustomer(t, l)
	p := mustPlan(t, l, "Basic", 2000)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: other.ID, PlanID: p.ID})

	_, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: id.NewCustomerID(), Amount: types.USD(100)})
	assert.True(t, crmledger.IsInvalidReference(err))

	_, err = l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, SubscriptionID: id.NewSubscriptionID(), Amount: types.USD(100)})
	assert.True(t, crmledger.IsInvalidReference(err))

	_, err = l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, SubscriptionID: sub.ID, Amount: types.USD(100)})
	assert.True(t, crmledger.IsInvalidReference(err), "subscription of another customer")

	_, err = l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(-100)})
	assert.True(t, crmledger.IsValidation(err))

	_, err = l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{
		CustomerID: c.ID,
		Amount:     types.USD(100),
		IssueDate:  t0,
		DueDate:    t0.Add(-time.Hour),
	})
	assert.True(t, crmledger.IsValidation(err))
}

func TestRecordTransactionRejects(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	other := mustCustomer(t, l)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(1000)})
	require.NoError(t, err)
	eurInv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.EUR(1000)})
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    crmledger.RecordTransactionInput
		check func(error) bool
	}{
		{
			name:  "zero amount",
			in:    crmledger.RecordTransactionInput{CustomerID: c.ID, Amount: types.USD(0), Type: transaction.TypeTopup},
			check: crmledger.IsValidation,
		},
		{
			name:  "unknown type",
			in:    crmledger.RecordTransactionInput{CustomerID: c.ID, Amount: types.USD(10), Type: "gift"},
			check: crmledger.IsValidation,
		},
		{
			name:  "wrong currency",
			in:    crmledger.RecordTransactionInput{CustomerID: c.ID, Amount: types.EUR(10), Type: transaction.TypeTopup},
			check: crmledger.IsValidation,
		},
		{
			name:  "payment for an invoice in another currency",
			in:    crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: eurInv.ID, Amount: types.USD(1000), Type: transaction.TypePayment},
			check: crmledger.IsValidation,
		},
		{
			name: "unknown instrument type",
			in: crmledger.RecordTransactionInput{
				CustomerID: c.ID, Amount: types.USD(10), Type: transaction.TypeTopup,
				Instrument: paymentmethod.Instrument{Type: "cash", LastFour: "4242"},
			},
			check: crmledger.IsValidation,
		},
		{
			name: "malformed last four",
			in: crmledger.RecordTransactionInput{
				CustomerID: c.ID, Amount: types.USD(10), Type: transaction.TypeTopup,
				Instrument: paymentmethod.Instrument{Type: paymentmethod.TypeCreditCard, LastFour: "42x"},
			},
			check: crmledger.IsValidation,
		},
		{
			name:  "unknown customer",
			in:    crmledger.RecordTransactionInput{CustomerID: id.NewCustomerID(), Amount: types.USD(10), Type: transaction.TypeTopup},
			check: crmledger.IsInvalidReference,
		},
		{
			name:  "unknown invoice",
			in:    crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: id.NewInvoiceID(), Amount: types.USD(10), Type: transaction.TypePayment},
			check: crmledger.IsInvalidReference,
		},
		{
			name:  "invoice of another customer",
			in:    crmledger.RecordTransactionInput{CustomerID: other.ID, InvoiceID: inv.ID, Amount: types.USD(1000), Type: transaction.TypePayment},
			check: crmledger.IsInvalidReference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordTransaction(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}

	for _, invID := range []id.InvoiceID{inv.ID, eurInv.ID} {
		got, err := l.GetInvoice(ctx, invID)
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusUnpaid, got.Status)
	}
}

func TestPartialPaymentSettlesInvoice(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(5000)})
	require.NoError(t, err)
	txn, err := l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.USD(3000),
		Type:       transaction.TypePayment,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), txn.Amount.Amount)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	require.NotNil(t, got.PaidDate)
	assert.Equal(t, int64(5000), got.Amount.Amount, "the invoice keeps its billed amount")

	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.USD(2000),
		Type:       transaction.TypePayment,
	})
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyPaid)
}

func TestRefundDoesNotUnpayInvoice(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(2500)})
	require.NoError(t, err)
	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.USD(2500), Type: transaction.TypePayment})
	require.NoError(t, err)

	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.USD(2500), Type: transaction.TypeRefund})
	require.NoError(t, err)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)

	cust, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, cust.Balance.Amount)

	txns, err := l.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestPendingPaymentDoesNotSettle(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(700)})
	require.NoError(t, err)
	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.USD(700),
		Type:       transaction.TypePayment,
		Status:     transaction.StatusPending,
	})
	require.NoError(t, err)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, got.Status)

	cust, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, cust.Balance.Amount)
}

func TestMarkOverdueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)

	late, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(100), DueDate: t0.AddDate(0, 0, 5)})
	require.NoError(t, err)
	onTime, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(100), DueDate: t0.AddDate(0, 0, 60)})
	require.NoError(t, err)

	clock.Set(t0.AddDate(0, 0, 10))
	n, err := l.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	overdue, err := l.ListInvoices(ctx, c.ID, invoice.ListOpts{Status: invoice.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.True(t, overdue[0].ID.Equal(late.ID))

	got, err := l.GetInvoice(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusUnpaid, got.Status)

	// Overdue invoices stay payable.
	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: late.ID, Amount: types.USD(100), Type: transaction.TypePayment})
	require.NoError(t, err)
}

func TestCancelInvoice(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(300)})
	require.NoError(t, err)

	canceled, err := l.CancelInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	_, err = l.CancelInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyCanceled)

	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: inv.ID, Amount: types.USD(300), Type: transaction.TypePayment})
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyCanceled)
	assert.True(t, crmledger.IsStateConflict(err))

	paidInv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(300)})
	require.NoError(t, err)
	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, InvoiceID: paidInv.ID, Amount: types.USD(300), Type: transaction.TypePayment})
	require.NoError(t, err)
	_, err = l.CancelInvoice(ctx, paidInv.ID)
	assert.ErrorIs(t, err, crmledger.ErrInvoiceAlreadyPaid)

	_, err = l.CancelInvoice(ctx, id.NewInvoiceID())
	assert.ErrorIs(t, err, crmledger.ErrInvoiceNotFound)
}

func TestRenewIssuesInvoice(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Unlimited", 4500)
	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, AutoRenew: true})

	_, err := l.AddPaymentMethod(ctx, c.ID, card("4242", true))
	require.NoError(t, err)

	newEnd := sub.EndDate.AddDate(0, 1, 0)
	renewed, inv, err := l.Renew(ctx, sub.ID, newEnd)
	require.NoError(t, err)
	assert.Equal(t, newEnd, renewed.EndDate)
	assert.Equal(t, subscription.StatusActive, renewed.Status)

	assert.True(t, inv.Amount.Equal(p.Price))
	assert.Equal(t, invoice.StatusUnpaid, inv.Status)
	assert.True(t, inv.SubscriptionID.Equal(sub.ID))
	assert.Equal(t, "INV-202603-0001", inv.Number)
	require.NotNil(t, inv.PaymentMethod)
	assert.Equal(t, "4242", inv.PaymentMethod.LastFour)

	stored, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, stored.Number)

	got, err := l.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPlan)
	assert.Equal(t, newEnd, got.CurrentPlan.EndDate)

	_, _, err = l.Renew(ctx, sub.ID, newEnd)
	assert.True(t, crmledger.IsValidation(err), "end date must move forward")

	_, _, err = l.Renew(ctx, id.NewSubscriptionID(), newEnd)
	assert.ErrorIs(t, err, crmledger.ErrSubscriptionNotFound)
}

func TestPaymentMethodDefaults(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	_, err := l.DefaultPaymentMethod(ctx, c.ID)
	assert.ErrorIs(t, err, crmledger.ErrNoDefaultPaymentMethod)

	a, err := l.AddPaymentMethod(ctx, c.ID, card("1111", true))
	require.NoError(t, err)
	b, err := l.AddPaymentMethod(ctx, c.ID, card("2222", true))
	require.NoError(t, err)

	methods, err := l.ListPaymentMethods(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.True(t, methods[0].ID.Equal(b.ID), "default first")
	assert.True(t, methods[0].IsDefault)
	assert.False(t, methods[1].IsDefault)

	require.NoError(t, l.SetDefaultPaymentMethod(ctx, c.ID, a.ID))
	def, err := l.DefaultPaymentMethod(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, def.ID.Equal(a.ID))

	require.NoError(t, l.RemovePaymentMethod(ctx, a.ID))
	_, err = l.DefaultPaymentMethod(ctx, c.ID)
	assert.ErrorIs(t, err, crmledger.ErrNoDefaultPaymentMethod, "no implicit promotion")

	err = l.RemovePaymentMethod(ctx, a.ID)
	assert.ErrorIs(t, err, crmledger.ErrPaymentMethodNotFound)
}

func TestPaymentMethodRejects(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)
	other := mustCustomer(t, l)

	_, err := l.AddPaymentMethod(ctx, id.NewCustomerID(), card("1111", false))
	assert.True(t, crmledger.IsInvalidReference(err))

	_, err = l.AddPaymentMethod(ctx, c.ID, card("12", false))
	assert.True(t, crmledger.IsValidation(err))

	noExpiry := card("1111", false)
	noExpiry.ExpiryDate = ""
	_, err = l.AddPaymentMethod(ctx, c.ID, noExpiry)
	assert.True(t, crmledger.IsValidation(err))

	bank, err := l.AddPaymentMethod(ctx, other.ID, crmledger.AddPaymentMethodInput{Type: paymentmethod.TypeBankAccount, LastFour: "9876"})
	require.NoError(t, err)

	err = l.SetDefaultPaymentMethod(ctx, c.ID, bank.ID)
	assert.True(t, crmledger.IsInvalidReference(err), "method of another customer")
}

func TestConcurrentDefaultsLeaveExactlyOne(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	const n, readers = 20, 4
	var (
		wg, rg sync.WaitGroup
		reads  atomic.Int64
		bad    atomic.Int64
	)
	done := make(chan struct{})

	// Readers must never observe zero or several defaults once a method exists.
	for range readers {
		rg.Add(1)
		go func() {
			defer rg.Done()
			for {
				methods, err := l.ListPaymentMethods(ctx, c.ID)
				reads.Add(1)
				defaults := lo.CountBy(methods, func(pm *paymentmethod.PaymentMethod) bool { return pm.IsDefault })
				if err != nil || (len(methods) > 0 && defaults != 1) {
					bad.Add(1)
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.AddPaymentMethod(ctx, c.ID, card(fmt.Sprintf("%04d", i), true))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(done)
	rg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Positive(t, reads.Load())
	assert.Zero(t, bad.Load(), "a read saw other than exactly one default")

	methods, err := l.ListPaymentMethods(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, methods, n)
	assert.Equal(t, 1, lo.CountBy(methods, func(pm *paymentmethod.PaymentMethod) bool { return pm.IsDefault }))
}

func TestTransactionUsesDefaultInstrumentSnapshot(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	pm, err := l.AddPaymentMethod(ctx, c.ID, card("4242", true))
	require.NoError(t, err)

	txn, err := l.RecordTransaction(ctx, crmledger.RecordTransactionInput{CustomerID: c.ID, Amount: types.USD(1500), Type: transaction.TypeTopup})
	require.NoError(t, err)
	assert.Equal(t, "4242", txn.Instrument.LastFour)

	require.NoError(t, l.RemovePaymentMethod(ctx, pm.ID))

	txns, err := l.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "4242", txns[0].Instrument.LastFour, "snapshot survives instrument removal")
	assert.Equal(t, "visa", txns[0].Instrument.CardBrand)
}

func TestAllocateConcurrent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Allocate(ctx, "ticket:2026")
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for v := int64(1); v <= n; v++ {
		assert.True(t, seen[v], "missing %d", v)
	}

	other, err := l.Allocate(ctx, "ticket:2027")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "scopes are independent")

	_, err = l.Allocate(ctx, " ")
	assert.True(t, crmledger.IsValidation(err))
}
