package crmledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sourcegraph/conc/pool"

	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/dashboard"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

// TotalRevenue sums the paid invoices whose paid date is at or before asOf.
func (l *Ledger) TotalRevenue(ctx context.Context, asOf time.Time) (types.Money, error) {
	currency := l.billing(ctx).Currency
	total, err := l.store.SumPaidRevenue(ctx, currency, invoice.Range{To: asOf.UTC(), ToInclusive: true})
	if err != nil {
		return types.Money{}, err
	}
	return types.New(total, currency), nil
}

// MonthOverMonthGrowth compares paid revenue of asOf's month up to asOf
// with the whole previous month, as a percentage rounded half to even to
// one decimal. It is 0 when the previous month had no revenue.
func (l *Ledger) MonthOverMonthGrowth(ctx context.Context, asOf time.Time) (float64, error) {
	asOf = asOf.UTC()
	currency := l.billing(ctx).Currency
	first := dashboard.FirstOfMonth(asOf)

	current, err := l.store.SumPaidRevenue(ctx, currency, invoice.Range{From: first, To: asOf, ToInclusive: true})
	if err != nil {
		return 0, err
	}
	previous, err := l.store.SumPaidRevenue(ctx, currency, invoice.Range{From: first.AddDate(0, -1, 0), To: first})
	if err != nil {
		return 0, err
	}
	return dashboard.Growth(current, previous), nil
}

// ActiveSubscriptionCount counts subscriptions active and started at asOf.
func (l *Ledger) ActiveSubscriptionCount(ctx context.Context, asOf time.Time) (int64, error) {
	return l.store.CountActiveSubscriptions(ctx, asOf.UTC())
}

// RetentionRate is the share of all subscriptions set to renew
// automatically, as a whole percentage.
func (l *Ledger) RetentionRate(ctx context.Context) (int64, error) {
	stats, err := l.store.RenewalStats(ctx)
	if err != nil {
		return 0, err
	}
	return dashboard.Retention(stats.AutoRenew, stats.Total), nil
}

// UserGrowth returns new customers per calendar month for the months
// trailing asOf, oldest first. months <= 0 uses DefaultGrowthMonths.
func (l *Ledger) UserGrowth(ctx context.Context, months int, asOf time.Time) (dashboard.Series, error) {
	if months <= 0 {
		months = dashboard.DefaultGrowthMonths
	}
	asOf = asOf.UTC()
	window := dashboard.TrailingMonths(asOf, months)

	counts, err := l.store.CountCustomersByMonth(ctx, window[0].Start, asOf.Add(time.Millisecond))
	if err != nil {
		return dashboard.Series{}, err
	}
	return dashboard.SeriesFrom(window, counts), nil
}

// ServerStatus reports nominal availability unless a network outage is
// recorded.
func (l *Ledger) ServerStatus(ctx context.Context) (float64, error) {
	outages, err := l.store.CountNetworkStatus(ctx, network.ConditionOutage)
	if err != nil {
		return 0, err
	}
	if outages > 0 {
		return dashboard.AvailabilityOutage, nil
	}
	return dashboard.AvailabilityNominal, nil
}

// SecurityAlerts counts high and critical audit entries in the week up to
// asOf.
func (l *Ledger) SecurityAlerts(ctx context.Context, asOf time.Time) (int64, error) {
	asOf = asOf.UTC()
	return l.store.CountAudit(ctx, audit.CountQuery{
		Since:      asOf.Add(-dashboard.SecurityAlertWindow),
		Until:      asOf,
		Severities: audit.Alerting,
	})
}

// AdminSnapshot computes every admin dashboard figure for one asOf. The
// queries run in parallel; the first failure cancels the rest. Snapshots
// are cached for the configured TTL.
func (l *Ledger) AdminSnapshot(ctx context.Context, asOf time.Time) (*dashboard.Snapshot, error) {
	asOf = asOf.UTC().Truncate(time.Millisecond)
	return l.cachedSnapshot("admin:"+asOf.Format(time.RFC3339Nano), func() (*dashboard.Snapshot, error) {
		return l.computeSnapshot(ctx, asOf)
	})
}

// CurrentAdminSnapshot returns the admin dashboard as of now, reusing a
// snapshot computed within the cache TTL.
func (l *Ledger) CurrentAdminSnapshot(ctx context.Context) (*dashboard.Snapshot, error) {
	return l.cachedSnapshot("admin:current", func() (*dashboard.Snapshot, error) {
		return l.computeSnapshot(ctx, l.now())
	})
}

func (l *Ledger) cachedSnapshot(key string, compute func() (*dashboard.Snapshot, error)) (*dashboard.Snapshot, error) {
	if v, ok := l.snapshots.Get(key); ok {
		if snap, ok := v.(*dashboard.Snapshot); ok {
			return snap, nil
		}
	}

	snap, err := compute()
	if err != nil {
		return nil, err
	}
	l.snapshots.Set(key, snap, cache.DefaultExpiration)
	return snap, nil
}

func (l *Ledger) computeSnapshot(ctx context.Context, asOf time.Time) (*dashboard.Snapshot, error) {
	snap := &dashboard.Snapshot{AsOf: asOf}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) (err error) {
		snap.TotalRevenue, err = l.TotalRevenue(ctx, asOf)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.RevenueGrowth, err = l.MonthOverMonthGrowth(ctx, asOf)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.ActivePlans, err = l.ActiveSubscriptionCount(ctx, asOf)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.RetentionRate, err = l.RetentionRate(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.ServerStatus, err = l.ServerStatus(ctx)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.SecurityAlerts, err = l.SecurityAlerts(ctx, asOf)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		snap.UserGrowth, err = l.UserGrowth(ctx, dashboard.DefaultGrowthMonths, asOf)
		return err
	})

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("crmledger: admin snapshot: %w", err)
	}
	return snap, nil
}

// CustomerSnapshot computes the subscriber dashboard: current plan and
// quotas, the next bill, the balance and the latest activity.
func (l *Ledger) CustomerSnapshot(ctx context.Context, customerID id.CustomerID, asOf time.Time) (*dashboard.CustomerSnapshot, error) {
	c, err := l.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	snap := &dashboard.CustomerSnapshot{
		AsOf:           asOf.UTC(),
		CustomerID:     c.ID,
		Balance:        c.Balance,
		RecentActivity: []dashboard.Activity{},
	}

	if cp := c.CurrentPlan; cp != nil {
		p, err := l.store.GetPlan(ctx, cp.PlanID)
		if err != nil {
			return nil, err
		}
		snap.CurrentPlan = &dashboard.PlanSummary{
			PlanID:    p.ID,
			Name:      p.Name,
			Price:     p.Price,
			EndDate:   cp.EndDate,
			AutoRenew: cp.AutoRenew,
			Quotas:    p.Features,
		}
		snap.InternetSpeed = p.Features.Speed
	}

	next, err := l.store.NextUnpaidInvoice(ctx, c.ID)
	switch {
	case err == nil:
		snap.NextBill = &dashboard.NextBill{Amount: next.Amount, DueDate: next.DueDate, InvoiceID: next.ID}
	case errors.Is(err, ErrInvoiceNotFound):
		if snap.CurrentPlan != nil {
			snap.NextBill = &dashboard.NextBill{Amount: snap.CurrentPlan.Price, DueDate: snap.CurrentPlan.EndDate}
		}
	default:
		return nil, err
	}

	activity, err := l.recentActivity(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	snap.RecentActivity = activity
	return snap, nil
}

// recentActivity gathers the latest payment, resolved ticket and
// enrollment, newest first.
func (l *Ledger) recentActivity(ctx context.Context, customerID id.CustomerID) ([]dashboard.Activity, error) {
	out := make([]dashboard.Activity, 0, dashboard.MaxRecentActivity)

	payments, err := l.store.ListTransactions(ctx, customerID, transaction.ListOpts{
		Type:   transaction.TypePayment,
		Status: transaction.StatusCompleted,
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(payments) > 0 {
		out = append(out, dashboard.Activity{
			Type:        dashboard.ActivityPayment,
			Description: "Payment of " + payments[0].Amount.String() + " received",
			Time:        payments[0].Date,
		})
	}

	t, err := l.store.LatestResolvedTicket(ctx, customerID)
	switch {
	case err == nil && t.ResolvedAt != nil:
		out = append(out, dashboard.Activity{
			Type:        dashboard.ActivityTicket,
			Description: "Ticket " + t.Number + " resolved",
			Time:        *t.ResolvedAt,
		})
	case err != nil && !errors.Is(err, ErrTicketNotFound):
		return nil, err
	}

	subs, err := l.store.ListSubscriptions(ctx, customerID, subscription.ListOpts{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(subs) > 0 {
		desc := "Subscribed to a plan"
		if p, err := l.store.GetPlan(ctx, subs[0].PlanID); err == nil {
			desc = "Subscribed to " + p.Name
		}
		out = append(out, dashboard.Activity{
			Type:        dashboard.ActivityPlan,
			Description: desc,
			Time:        subs[0].CreatedAt,
		})
	}

	slices.SortStableFunc(out, func(a, b dashboard.Activity) int {
		return b.Time.Compare(a.Time)
	})
	if len(out) > dashboard.MaxRecentActivity {
		out = out[:dashboard.MaxRecentActivity]
	}
	return out, nil
}
