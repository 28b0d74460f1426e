package crmledger

import (
	"context"
	"errors"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/types"
)

// PlanInput describes a catalog plan.
type PlanInput struct {
	Name         string            `json:"name"         validate:"required,max=100"`
	Description  string            `json:"description"  validate:"max=1000"`
	Price        types.Money       `json:"price"`
	BillingCycle plan.BillingCycle `json:"billingCycle" validate:"omitempty,oneof=monthly quarterly yearly"`
	Features     plan.Features     `json:"features"`
	Status       plan.Status       `json:"status"       validate:"omitempty,oneof=active inactive deprecated"`
}

func (l *Ledger) checkPlan(ctx context.Context, in PlanInput) (PlanInput, error) {
	if err := l.check(in); err != nil {
		return in, err
	}
	if in.Price.IsNegative() {
		return in, invalid("price", "must not be negative")
	}
	if in.Price.Currency == "" {
		in.Price = types.New(in.Price.Amount, l.billing(ctx).Currency)
	}
	f := in.Features
	if f.Data < 0 || f.Calls < 0 || f.SMS < 0 || f.Speed < 0 {
		return in, invalid("features", "quotas must not be negative")
	}
	if in.BillingCycle == "" {
		in.BillingCycle = plan.CycleMonthly
	}
	if in.Status == "" {
		in.Status = plan.StatusActive
	}
	return in, nil
}

// CreatePlan adds a plan to the catalog.
func (l *Ledger) CreatePlan(ctx context.Context, in PlanInput) (*plan.Plan, error) {
	in, err := l.checkPlan(ctx, in)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{
		Entity:       types.NewEntity(l.now()),
		ID:           id.NewPlanID(),
		Name:         in.Name,
		Description:  in.Description,
		Price:        in.Price,
		BillingCycle: in.BillingCycle,
		Features:     in.Features,
		Status:       in.Status,
	}

	if err := l.store.CreatePlan(ctx, p); err != nil {
		return nil, err
	}

	l.plugins.EmitPlanCreated(ctx, p)
	return p, nil
}

// GetPlan retrieves a plan by ID.
func (l *Ledger) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return l.store.GetPlan(ctx, planID)
}

// ListPlans lists catalog plans, optionally filtered by status.
func (l *Ledger) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	return l.store.ListPlans(ctx, opts)
}

// UpdatePlan edits a catalog plan. Existing subscriptions keep their dates;
// only renewals issued afterwards use the new price.
func (l *Ledger) UpdatePlan(ctx context.Context, planID id.PlanID, in PlanInput) (*plan.Plan, error) {
	in, err := l.checkPlan(ctx, in)
	if err != nil {
		return nil, err
	}

	previous, err := l.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	p := *previous
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.BillingCycle = in.BillingCycle
	p.Features = in.Features
	p.Status = in.Status
	p.Touch(l.now())

	if err := l.store.UpdatePlan(ctx, &p); err != nil {
		return nil, err
	}

	l.plugins.EmitPlanUpdated(ctx, previous, &p)
	return &p, nil
}

// DeprecatePlan stops new enrollments in a plan without touching the
// subscriptions that reference it.
func (l *Ledger) DeprecatePlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	previous, err := l.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if previous.Status == plan.StatusDeprecated {
		return previous, nil
	}

	p := *previous
	p.Status = plan.StatusDeprecated
	p.Touch(l.now())

	if err := l.store.UpdatePlan(ctx, &p); err != nil {
		return nil, err
	}

	l.plugins.EmitPlanUpdated(ctx, previous, &p)
	return &p, nil
}

// planRef loads a plan named by another record.
func (l *Ledger) planRef(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	if planID.IsNil() {
		return nil, invalid("planId", "is required")
	}
	p, err := l.store.GetPlan(ctx, planID)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, danglingRef("plan", planID.String())
	}
	return p, err
}
