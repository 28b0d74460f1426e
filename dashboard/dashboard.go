// Package dashboard defines the read-only snapshots consumed by dashboard
// renderers and the pure arithmetic behind them.
package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/types"
)

// Server availability figures reported by the admin dashboard.
const (
	AvailabilityNominal = 99.99
	AvailabilityOutage  = 95.00
)

// SecurityAlertWindow is how far back security alerts are counted.
const SecurityAlertWindow = 7 * 24 * time.Hour

// DefaultGrowthMonths is the default length of the user growth series.
const DefaultGrowthMonths = 6

// Snapshot is the admin dashboard. Every figure is computed for AsOf.
type Snapshot struct {
	AsOf           time.Time   `json:"asOf"`
	TotalRevenue   types.Money `json:"totalRevenue"`
	RevenueGrowth  float64     `json:"revenueGrowth"`
	ActivePlans    int64       `json:"activePlans"`
	RetentionRate  int64       `json:"retentionRate"`
	ServerStatus   float64     `json:"serverStatus"`
	SecurityAlerts int64       `json:"securityAlerts"`
	UserGrowth     Series      `json:"userGrowth"`
}

// Series is a labelled sequence, oldest first.
type Series struct {
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
}

// CustomerSnapshot is the subscriber-facing dashboard.
type CustomerSnapshot struct {
	AsOf           time.Time     `json:"asOf"`
	CustomerID     id.CustomerID `json:"customerId"`
	CurrentPlan    *PlanSummary  `json:"currentPlan,omitempty"`
	InternetSpeed  int64         `json:"internetSpeed"`
	NextBill       *NextBill     `json:"nextBill,omitempty"`
	Balance        types.Money   `json:"balance"`
	RecentActivity []Activity    `json:"recentActivity"`
}

// PlanSummary describes the customer's current plan.
type PlanSummary struct {
	PlanID    id.PlanID     `json:"planId"`
	Name      string        `json:"name"`
	Price     types.Money   `json:"price"`
	EndDate   time.Time     `json:"endDate"`
	AutoRenew bool          `json:"autoRenew"`
	Quotas    plan.Features `json:"quotas"`
}

// NextBill is the next amount the customer is expected to pay.
type NextBill struct {
	Amount    types.Money  `json:"amount"`
	DueDate   time.Time    `json:"dueDate"`
	InvoiceID id.InvoiceID `json:"invoiceId,omitempty"`
}

// ActivityType classifies a recent activity entry.
type ActivityType string

const (
	ActivityPayment ActivityType = "payment"
	ActivityTicket  ActivityType = "ticket"
	ActivityPlan    ActivityType = "plan"
)

// Activity is one entry of the recent activity feed.
type Activity struct {
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Time        time.Time    `json:"time"`
}

// MaxRecentActivity caps the recent activity feed.
const MaxRecentActivity = 3

// FirstOfMonth returns midnight UTC on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Growth returns (current-previous)/previous*100 rounded half to even to
// one decimal, or 0 when previous is 0.
func Growth(current, previous int64) float64 {
	if previous == 0 {
		return 0
	}
	c := decimal.NewFromInt(current)
	p := decimal.NewFromInt(previous)
	return c.Sub(p).Div(p).Mul(decimal.NewFromInt(100)).RoundBank(1).InexactFloat64()
}

// Retention returns autoRenew/total*100 rounded half to even, or 0 when
// total is 0.
func Retention(autoRenew, total int64) int64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(autoRenew).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100)).
		RoundBank(0).
		IntPart()
}

// Month is one calendar month of a trailing window.
type Month struct {
	Start time.Time
	Key   string // "2006-01"
	Label string // "Jan"
}

// TrailingMonths returns the n calendar months ending with asOf's month,
// oldest first.
func TrailingMonths(asOf time.Time, n int) []Month {
	if n <= 0 {
		return nil
	}
	last := FirstOfMonth(asOf)
	out := make([]Month, n)
	for i := 0; i < n; i++ {
		start := last.AddDate(0, i-(n-1), 0)
		out[i] = Month{Start: start, Key: start.Format("2006-01"), Label: start.Format("Jan")}
	}
	return out
}

// SeriesFrom lays counts keyed "2006-01" over months, filling gaps with 0.
func SeriesFrom(months []Month, counts map[string]int64) Series {
	s := Series{Labels: make([]string, len(months)), Data: make([]int64, len(months))}
	for i, m := range months {
		s.Labels[i] = m.Label
		s.Data[i] = counts[m.Key]
	}
	return s
}
