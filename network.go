package crmledger

import (
	"context"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/network"
)

// NetworkStatusInput is a report of one service in one region.
type NetworkStatusInput struct {
	ServiceType   network.ServiceType `json:"serviceType"   validate:"required,oneof=internet mobile voice tv"`
	Region        string              `json:"region"        validate:"required,max=100"`
	Status        network.Condition   `json:"status"        validate:"required,oneof=operational degraded outage"`
	Details       string              `json:"details"       validate:"max=1000"`
	AffectedUsers int64               `json:"affectedUsers" validate:"gte=0"`
}

// SetNetworkStatus records the latest state of a service in a region,
// replacing the previous report.
func (l *Ledger) SetNetworkStatus(ctx context.Context, in NetworkStatusInput) (*network.Status, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}

	s := &network.Status{
		ID:            id.NewNetworkStatusID(),
		ServiceType:   in.ServiceType,
		Region:        in.Region,
		Status:        in.Status,
		Details:       in.Details,
		AffectedUsers: in.AffectedUsers,
		LastUpdated:   l.now(),
	}

	if err := l.store.UpsertNetworkStatus(ctx, s); err != nil {
		return nil, err
	}

	l.plugins.EmitNetworkStatusChanged(ctx, s)
	return s, nil
}

// ListNetworkStatus lists the latest report of every service and region.
func (l *Ledger) ListNetworkStatus(ctx context.Context) ([]*network.Status, error) {
	return l.store.ListNetworkStatus(ctx)
}
