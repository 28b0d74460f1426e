// Package invoice defines invoices, their line items and payment status.
package invoice

import (
	"time"

	"github.com/samber/lo"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/types"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusUnpaid   Status = "unpaid"
	StatusPaid     Status = "paid"
	StatusOverdue  Status = "overdue"
	StatusCanceled Status = "canceled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusUnpaid, StatusPaid, StatusOverdue, StatusCanceled:
		return true
	}
	return false
}

// Payable lists the statuses from which an invoice can be settled or
// canceled.
var Payable = []Status{StatusUnpaid, StatusOverdue}

// IsPayable reports whether s is one of Payable.
func (s Status) IsPayable() bool { return lo.Contains(Payable, s) }

// Invoice is a bill issued to a customer, optionally for a subscription.
type Invoice struct {
	types.Entity
	ID             id.InvoiceID              `json:"id"`
	Number         string                    `json:"number"`
	CustomerID     id.CustomerID             `json:"customerId"`
	SubscriptionID id.SubscriptionID         `json:"subscriptionId,omitempty"`
	Amount         types.Money               `json:"amount"`
	Status         Status                    `json:"status"`
	IssueDate      time.Time                 `json:"issueDate"`
	DueDate        time.Time                 `json:"dueDate"`
	PaidDate       *time.Time                `json:"paidDate,omitempty"`
	CanceledAt     *time.Time                `json:"canceledAt,omitempty"`
	Items          []LineItem                `json:"items,omitempty"`
	PaymentMethod  *paymentmethod.Instrument `json:"paymentMethod,omitempty"`
}

// LineItem is one charge on an invoice.
type LineItem struct {
	ID          id.LineItemID `json:"id"`
	Description string        `json:"description"`
	Amount      types.Money   `json:"amount"`
}

// ItemsTotal sums the line item amounts in the invoice currency.
func (inv *Invoice) ItemsTotal() types.Money {
	return types.New(lo.SumBy(inv.Items, func(li LineItem) int64 { return li.Amount.Amount }), inv.Amount.Currency)
}

// IsOverdueAt reports whether an unpaid invoice is past its due date.
func (inv *Invoice) IsOverdueAt(now time.Time) bool {
	return inv.Status == StatusUnpaid && inv.DueDate.Before(now)
}
