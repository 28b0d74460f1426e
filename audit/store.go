package audit

import (
	"context"
	"time"
)

// Store persists audit entries. There is no update or delete.
type Store interface {
	AppendAudit(ctx context.Context, e *Entry) error
	ListAudit(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountAudit counts entries at or after since (and at or before until
	// when set) with one of severities.
	CountAudit(ctx context.Context, q CountQuery) (int64, error)
}

// ListOpts filters ListAudit. Results are newest first.
type ListOpts struct {
	ResourceType string
	ResourceID   string
	Severity     Severity
	Limit        int
	Offset       int
}

// CountQuery selects entries for CountAudit.
type CountQuery struct {
	Since      time.Time
	Until      time.Time
	Severities []Severity
}
