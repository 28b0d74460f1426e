package crmledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/dashboard"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

func payInvoice(t *testing.T, l *crmledger.Ledger, c *customer.Customer, cents int64) {
	t.Helper()
	ctx := context.Background()
	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(cents)})
	require.NoError(t, err)
	_, err = l.RecordTransaction(ctx, crmledger.RecordTransactionInput{
		CustomerID: c.ID,
		InvoiceID:  inv.ID,
		Amount:     types.USD(cents),
		Type:       transaction.TypePayment,
	})
	require.NoError(t, err)
}

func TestRevenueAndGrowth(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)

	growth, err := l.MonthOverMonthGrowth(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, growth, "no baseline reports zero")

	clock.Set(time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC))
	payInvoice(t, l, c, 10000)

	clock.Set(t0)
	payInvoice(t, l, c, 15000)

	// Issued but unpaid invoices never count.
	_, err = l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(99999)})
	require.NoError(t, err)

	total, err := l.TotalRevenue(ctx, t0)
	require.NoError(t, err)
	assert.True(t, total.Equal(types.USD(25000)), total.String())

	total, err = l.TotalRevenue(ctx, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, total.Equal(types.USD(10000)), total.String())

	growth, err = l.MonthOverMonthGrowth(ctx, t0)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, growth, 0.0001)

	growth, err = l.MonthOverMonthGrowth(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, -100.0, growth, 0.0001, "March had no revenue yet on the 2nd")
}

func TestSubscriptionMetrics(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	p := mustPlan(t, l, "Basic", 2000)

	retention, err := l.RetentionRate(ctx)
	require.NoError(t, err)
	assert.Zero(t, retention)

	mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID, AutoRenew: true})
	mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID})
	mustEnroll(t, l, crmledger.EnrollInput{CustomerID: mustCustomer(t, l).ID, PlanID: p.ID, Start: t0.AddDate(0, 0, 3), AutoRenew: true})

	active, err := l.ActiveSubscriptionCount(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	retention, err = l.RetentionRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(67), retention)
}

func TestUserGrowth(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)

	for _, at := range []time.Time{
		time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	} {
		clock.Set(at)
		mustCustomer(t, l)
	}

	series, err := l.UserGrowth(ctx, 0, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oct", "Nov", "Dec", "Jan", "Feb", "Mar"}, series.Labels)
	assert.Equal(t, []int64{0, 0, 0, 1, 0, 2}, series.Data)
}

func TestServerStatusAndAlerts(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	status, err := l.ServerStatus(ctx)
	require.NoError(t, err)
	assert.InDelta(t, dashboard.AvailabilityNominal, status, 0.0001)

	_, err = l.SetNetworkStatus(ctx, crmledger.NetworkStatusInput{
		ServiceType: network.ServiceMobile,
		Region:      "north",
		Status:      network.ConditionOutage,
	})
	require.NoError(t, err)

	status, err = l.ServerStatus(ctx)
	require.NoError(t, err)
	assert.InDelta(t, dashboard.AvailabilityOutage, status, 0.0001)

	require.NoError(t, l.RecordAudit(ctx, &audit.Entry{Action: "login.failed", ResourceType: "user", Severity: audit.SeverityHigh}))
	require.NoError(t, l.RecordAudit(ctx, &audit.Entry{Action: "login.ok", ResourceType: "user"}))
	require.NoError(t, l.RecordAudit(ctx, &audit.Entry{
		Action:       "login.failed",
		ResourceType: "user",
		Severity:     audit.SeverityCritical,
		Timestamp:    t0.AddDate(0, 0, -10),
	}))

	alerts, err := l.SecurityAlerts(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alerts)
}

func TestAdminSnapshotIsCached(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, crmledger.WithSnapshotCacheTTL(time.Hour))
	c := mustCustomer(t, l)
	payInvoice(t, l, c, 4200)

	first, err := l.CurrentAdminSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, first.TotalRevenue.Equal(types.USD(4200)))
	assert.Equal(t, t0, first.AsOf)
	assert.Len(t, first.UserGrowth.Data, dashboard.DefaultGrowthMonths)

	payInvoice(t, l, c, 800)

	again, err := l.CurrentAdminSnapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	fresh, err := l.AdminSnapshot(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, fresh.TotalRevenue.Equal(types.USD(5000)))

	_, err = l.PutSettings(ctx, settings.Billing{Currency: "usd", InvoiceDueDays: 14}, "admin")
	require.NoError(t, err)

	recomputed, err := l.CurrentAdminSnapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, recomputed, "settings changes flush the cache")
	assert.True(t, recomputed.TotalRevenue.Equal(types.USD(5000)))
}

func TestCustomerSnapshot(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)
	p := mustPlan(t, l, "Fiber 100", 3900)

	snap, err := l.CustomerSnapshot(ctx, c.ID, t0)
	require.NoError(t, err)
	assert.Nil(t, snap.CurrentPlan)
	assert.Nil(t, snap.NextBill)
	assert.Empty(t, snap.RecentActivity)

	sub := mustEnroll(t, l, crmledger.EnrollInput{CustomerID: c.ID, PlanID: p.ID, AutoRenew: true})

	snap, err = l.CustomerSnapshot(ctx, c.ID, t0)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentPlan)
	assert.Equal(t, "Fiber 100", snap.CurrentPlan.Name)
	assert.Equal(t, int64(100), snap.InternetSpeed)
	require.NotNil(t, snap.NextBill)
	assert.True(t, snap.NextBill.Amount.Equal(p.Price), "falls back to the plan price")
	assert.Equal(t, sub.EndDate, snap.NextBill.DueDate)

	clock.Advance(time.Hour)
	payInvoice(t, l, c, 1000)
	clock.Advance(time.Hour)
	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.USD(3900)})
	require.NoError(t, err)

	snap, err = l.CustomerSnapshot(ctx, c.ID, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, snap.NextBill)
	assert.True(t, snap.NextBill.InvoiceID.Equal(inv.ID))
	assert.Equal(t, int64(-1000), snap.Balance.Amount)

	require.Len(t, snap.RecentActivity, 2)
	assert.Equal(t, dashboard.ActivityPayment, snap.RecentActivity[0].Type)
	assert.Equal(t, dashboard.ActivityPlan, snap.RecentActivity[1].Type)
	assert.Equal(t, "Subscribed to Fiber 100", snap.RecentActivity[1].Description)
}
