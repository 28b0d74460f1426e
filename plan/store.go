package plan

import (
	"context"

	"github.com/xraph/crmledger/id"
)

// Store persists catalog plans.
type Store interface {
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)
	ListPlans(ctx context.Context, opts ListOpts) ([]*Plan, error)
	UpdatePlan(ctx context.Context, p *Plan) error
}

// ListOpts filters ListPlans.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
