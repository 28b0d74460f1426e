// Package audit defines the append-only audit log and the caller identity
// carried on a context for attribution.
package audit

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
)

// Severity grades an audit entry.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNormal, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Alerting lists the severities counted as security alerts.
var Alerting = []Severity{SeverityHigh, SeverityCritical}

// Actor identifies who performed an action.
type Actor struct {
	UserID    string `json:"userId"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Entry is a write-once audit record.
type Entry struct {
	ID           id.AuditID     `json:"id"`
	Actor        Actor          `json:"actor"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Severity     Severity       `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
}

type actorKey struct{}

// WithActor returns a context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
