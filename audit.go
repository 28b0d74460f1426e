package crmledger

import (
	"context"

	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/id"
)

// RecordAudit appends an entry to the audit log. A missing actor is taken
// from the context; a missing severity is normal.
func (l *Ledger) RecordAudit(ctx context.Context, e *audit.Entry) error {
	if e == nil {
		return invalid("entry", "is required")
	}
	if e.Action == "" {
		return invalid("action", "is required")
	}
	if e.ResourceType == "" {
		return invalid("resourceType", "is required")
	}
	if e.Severity == "" {
		e.Severity = audit.SeverityNormal
	}
	if !e.Severity.IsValid() {
		return invalid("severity", "must be one of normal high critical")
	}
	if e.Actor.UserID == "" {
		if a, ok := audit.ActorFrom(ctx); ok {
			e.Actor = a
		}
	}
	if e.ID.IsNil() {
		e.ID = id.NewAuditID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	return l.store.AppendAudit(ctx, e)
}

// ListAudit lists audit entries, newest first.
func (l *Ledger) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	return l.store.ListAudit(ctx, opts)
}
