// Package plan defines the service catalog: plans, their price, billing
// cycle and feature quotas.
package plan

import (
	"time"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

// Status is the catalog status of a plan.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusDeprecated Status = "deprecated"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeprecated:
		return true
	}
	return false
}

// BillingCycle is the renewal period of a plan.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// IsValid reports whether c is a known cycle.
func (c BillingCycle) IsValid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// Months returns the number of calendar months in one cycle.
func (c BillingCycle) Months() int {
	switch c {
	case CycleQuarterly:
		return 3
	case CycleYearly:
		return 12
	default:
		return 1
	}
}

// Advance returns t moved forward by one cycle.
func (c BillingCycle) Advance(t time.Time) time.Time {
	return t.AddDate(0, c.Months(), 0)
}

// Plan is a catalog entry customers subscribe to.
type Plan struct {
	types.Entity
	ID           id.PlanID    `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Price        types.Money  `json:"price"`
	BillingCycle BillingCycle `json:"billingCycle"`
	Features     Features     `json:"features"`
	Status       Status       `json:"status"`
}

// Features are the usage quotas bundled into a plan. Data is in megabytes,
// Calls in minutes, Speed in Mbps.
type Features struct {
	Data  int64 `json:"data"`
	Calls int64 `json:"calls"`
	SMS   int64 `json:"sms"`
	Speed int64 `json:"speed"`
}

// Enrollable reports whether new subscriptions may reference the plan.
func (p *Plan) Enrollable() bool { return p.Status == StatusActive }
