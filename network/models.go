// Package network records the operational state of services per region.
package network

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
)

// ServiceType is a network service.
type ServiceType string

const (
	ServiceInternet ServiceType = "internet"
	ServiceMobile   ServiceType = "mobile"
	ServiceVoice    ServiceType = "voice"
	ServiceTV       ServiceType = "tv"
)

// IsValid reports whether t is a known service type.
func (t ServiceType) IsValid() bool {
	switch t {
	case ServiceInternet, ServiceMobile, ServiceVoice, ServiceTV:
		return true
	}
	return false
}

// Condition is the operational state of a service.
type Condition string

const (
	ConditionOperational Condition = "operational"
	ConditionDegraded    Condition = "degraded"
	ConditionOutage      Condition = "outage"
)

// IsValid reports whether c is a known condition.
func (c Condition) IsValid() bool {
	switch c {
	case ConditionOperational, ConditionDegraded, ConditionOutage:
		return true
	}
	return false
}

// Status is the latest report for one service in one region.
type Status struct {
	ID            id.NetworkStatusID `json:"id"`
	ServiceType   ServiceType        `json:"serviceType"`
	Region        string             `json:"region"`
	Status        Condition          `json:"status"`
	Details       string             `json:"details,omitempty"`
	AffectedUsers int64              `json:"affectedUsers"`
	LastUpdated   time.Time          `json:"lastUpdated"`
}

// Store persists network status, one record per service type and region.
type Store interface {
	// UpsertNetworkStatus replaces the record for (ServiceType, Region). The
	// stored record keeps its original ID.
	UpsertNetworkStatus(ctx context.Context, s *Status) error
	ListNetworkStatus(ctx context.Context) ([]*Status, error)
	CountNetworkStatus(ctx context.Context, condition Condition) (int64, error)
}
