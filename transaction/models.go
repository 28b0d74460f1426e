// Package transaction defines the immutable money movements recorded
// against customers and invoices.
package transaction

import (
	"time"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/types"
)

// Type is the kind of money movement.
type Type string

const (
	TypePayment Type = "payment"
	TypeRefund  Type = "refund"
	TypeTopup   Type = "topup"
)

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	switch t {
	case TypePayment, TypeRefund, TypeTopup:
		return true
	}
	return false
}

// Status is the processing outcome of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusReversed:
		return true
	}
	return false
}

// Transaction is never updated once written; corrections are new
// compensating transactions.
type Transaction struct {
	ID         id.TransactionID         `json:"id"`
	CustomerID id.CustomerID            `json:"customerId"`
	InvoiceID  id.InvoiceID             `json:"invoiceId,omitempty"`
	Amount     types.Money              `json:"amount"`
	Type       Type                     `json:"type"`
	Status     Status                   `json:"status"`
	Instrument paymentmethod.Instrument `json:"paymentMethod"`
	Reference  string                   `json:"reference,omitempty"`
	Date       time.Time                `json:"date"`
}

// Effect describes the state changes a transaction causes, applied
// atomically with its insert.
type Effect struct {
	// SettleInvoice marks InvoiceID paid; the store fails with a state
	// conflict unless the invoice is unpaid or overdue.
	SettleInvoice bool
	PaidAt        time.Time

	// BalanceDelta is added to the customer balance (minor units).
	BalanceDelta int64
}

// EffectOf derives the effect of t. Only completed transactions move money:
// payments and top-ups lower the amount owed, refunds raise it. A completed
// payment against an invoice settles it.
func EffectOf(t *Transaction, at time.Time) Effect {
	if t.Status != StatusCompleted {
		return Effect{}
	}
	var e Effect
	switch t.Type {
	case TypePayment:
		e.BalanceDelta = -t.Amount.Amount
		if !t.InvoiceID.IsNil() {
			e.SettleInvoice = true
			e.PaidAt = at
		}
	case TypeTopup:
		e.BalanceDelta = -t.Amount.Amount
	case TypeRefund:
		e.BalanceDelta = t.Amount.Amount
	}
	return e
}
