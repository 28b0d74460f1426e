package invoice

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
)

// Store persists invoices.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Invoice, error)

	// MarkOverdue moves every unpaid invoice due before asOf to overdue and
	// returns how many changed.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)

	// CancelInvoice cancels an unpaid or overdue invoice.
	CancelInvoice(ctx context.Context, invID id.InvoiceID, at time.Time) (*Invoice, error)

	// NextUnpaidInvoice returns the customer's payable invoice with the
	// earliest due date.
	NextUnpaidInvoice(ctx context.Context, customerID id.CustomerID) (*Invoice, error)

	// SumPaidRevenue sums the amount of paid invoices in currency whose paid
	// date falls in r.
	SumPaidRevenue(ctx context.Context, currency string, r Range) (int64, error)
}

// ListOpts filters ListInvoices. Results are newest issue date first.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

// Range is a paid-date window. From is inclusive and ignored when zero. To
// is the upper bound, inclusive when ToInclusive is set.
type Range struct {
	From        time.Time
	To          time.Time
	ToInclusive bool
}

// Contains reports whether t falls in r.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if r.ToInclusive {
		return !t.After(r.To)
	}
	return t.Before(r.To)
}
