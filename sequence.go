package crmledger

import (
	"context"
	"strings"
	"time"

	"github.com/xraph/crmledger/sequence"
)

// Allocate returns the next value of the counter for scope. Values are
// never reused: concurrent callers always receive distinct numbers.
func (l *Ledger) Allocate(ctx context.Context, scope string) (int64, error) {
	if strings.TrimSpace(scope) == "" {
		return 0, invalid("scope", "is required")
	}
	return retryConflicts(ctx, l, func() (int64, error) {
		return l.store.NextSequence(ctx, scope)
	})
}

// nextInvoiceNumber allocates the next invoice number of at's month.
func (l *Ledger) nextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	month := sequence.MonthKey(at)
	n, err := l.Allocate(ctx, sequence.Scope(sequence.KindInvoice, month))
	if err != nil {
		return "", err
	}
	return sequence.InvoiceNumber(month, n), nil
}

// nextTicketNumber allocates the next ticket number of at's year.
func (l *Ledger) nextTicketNumber(ctx context.Context, at time.Time) (string, error) {
	year := sequence.YearKey(at)
	n, err := l.Allocate(ctx, sequence.Scope(sequence.KindTicket, year))
	if err != nil {
		return "", err
	}
	return sequence.TicketNumber(year, n), nil
}
