package crmledger

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

// LineItemInput is one charge of an invoice request.
type LineItemInput struct {
	Description string      `json:"description" validate:"required,max=500"`
	Amount      types.Money `json:"amount"`
}

// IssueInvoiceInput is the request to bill a customer. A zero IssueDate
// means now; a zero DueDate means the billing payment term after IssueDate.
// When items are given their total must equal Amount.
type IssueInvoiceInput struct {
	CustomerID     id.CustomerID     `json:"customerId"`
	SubscriptionID id.SubscriptionID `json:"subscriptionId"`
	Amount         types.Money       `json:"amount"`
	IssueDate      time.Time         `json:"issueDate"`
	DueDate        time.Time         `json:"dueDate"`
	Items          []LineItemInput   `json:"items" validate:"dive"`
}

// IssueInvoice creates an unpaid invoice with the next invoice number and a
// snapshot of the customer's default payment method.
func (l *Ledger) IssueInvoice(ctx context.Context, in IssueInvoiceInput) (*invoice.Invoice, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}

	c, err := l.customerRef(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	if !in.SubscriptionID.IsNil() {
		sub, err := l.store.GetSubscription(ctx, in.SubscriptionID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, danglingRef("subscription", in.SubscriptionID.String())
		}
		if err != nil {
			return nil, err
		}
		if !sub.CustomerID.Equal(c.ID) {
			return nil, ReferenceError{Entity: "subscription", ID: sub.ID.String(), Reason: "belongs to another customer"}
		}
	}

	billing := l.billing(ctx)
	amount := in.Amount
	if amount.Currency == "" {
		amount = types.New(amount.Amount, billing.Currency)
	}
	if amount.IsNegative() {
		return nil, invalid("amount", "must not be negative")
	}

	now := l.now()
	items := make([]invoice.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		itemAmount := it.Amount
		if itemAmount.Currency == "" {
			itemAmount = types.New(itemAmount.Amount, amount.Currency)
		}
		if !itemAmount.SameCurrency(amount) {
			return nil, invalid("items", "must use the invoice currency")
		}
		items = append(items, invoice.LineItem{
			ID:          id.NewLineItemID(),
			Description: it.Description,
			Amount:      itemAmount,
		})
	}

	issue := now
	if !in.IssueDate.IsZero() {
		issue = in.IssueDate.UTC().Truncate(time.Millisecond)
	}
	due := issue.AddDate(0, 0, billing.InvoiceDueDays)
	if !in.DueDate.IsZero() {
		due = in.DueDate.UTC().Truncate(time.Millisecond)
	}
	if due.Before(issue) {
		return nil, invalid("dueDate", "must not be before issueDate")
	}

	inv := &invoice.Invoice{
		Entity:         types.NewEntity(now),
		ID:             id.NewInvoiceID(),
		CustomerID:     c.ID,
		SubscriptionID: in.SubscriptionID,
		Amount:         amount,
		Status:         invoice.StatusUnpaid,
		IssueDate:      issue,
		DueDate:        due,
		Items:          items,
	}
	if len(items) > 0 && !inv.ItemsTotal().Equal(amount) {
		return nil, invalid("amount", "must equal the sum of the line items")
	}

	if inv.PaymentMethod, err = l.payerInstrument(ctx, c.ID); err != nil {
		return nil, err
	}
	if inv.Number, err = l.nextInvoiceNumber(ctx, issue); err != nil {
		return nil, err
	}

	if err := l.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	l.plugins.EmitInvoiceIssued(ctx, inv)
	return inv, nil
}

// GetInvoice retrieves an invoice by ID.
func (l *Ledger) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return l.store.GetInvoice(ctx, invID)
}

// ListInvoices lists a customer's invoices, newest issue date first.
func (l *Ledger) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return l.store.ListInvoices(ctx, customerID, opts)
}

// MarkOverdue moves every unpaid invoice past its due date to overdue and
// returns how many changed. Running it again changes nothing.
func (l *Ledger) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := l.store.MarkOverdue(ctx, l.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.plugins.EmitInvoicesOverdue(ctx, n)
	}
	return n, nil
}

// CancelInvoice cancels an unpaid or overdue invoice.
func (l *Ledger) CancelInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := l.store.CancelInvoice(ctx, invID, l.now())
	if err != nil {
		return nil, err
	}

	l.plugins.EmitInvoiceCanceled(ctx, inv)
	return inv, nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// RecordTransactionInput is the request to record a money movement. A zero
// Status means completed; a zero Instrument means the customer's default
// payment method. A supplied Instrument is validated field by field.
type RecordTransactionInput struct {
	CustomerID id.CustomerID            `json:"customerId"`
	InvoiceID  id.InvoiceID             `json:"invoiceId"`
	Amount     types.Money              `json:"amount"`
	Type       transaction.Type         `json:"type"      validate:"required,oneof=payment refund topup"`
	Status     transaction.Status       `json:"status"    validate:"omitempty,oneof=pending completed failed reversed"`
	Instrument paymentmethod.Instrument `json:"paymentMethod"`
	Reference  string                   `json:"reference" validate:"max=200"`
}

// RecordTransaction stores an immutable transaction. A completed payment
// against an invoice settles it; completed transactions move the customer
// balance. The insert, the settlement and the balance change are one atomic
// store call.
func (l *Ledger) RecordTransaction(ctx context.Context, in RecordTransactionInput) (*transaction.Transaction, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = transaction.StatusCompleted
	}

	c, err := l.customerRef(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	amount := in.Amount
	if amount.Currency == "" {
		amount = types.New(amount.Amount, c.Balance.Currency)
	}
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}
	if !amount.SameCurrency(c.Balance) {
		return nil, invalid("amount", "must use the customer balance currency")
	}

	var inv *invoice.Invoice
	if !in.InvoiceID.IsNil() {
		inv, err = l.store.GetInvoice(ctx, in.InvoiceID)
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, danglingRef("invoice", in.InvoiceID.String())
		}
		if err != nil {
			return nil, err
		}
		if !inv.CustomerID.Equal(c.ID) {
			return nil, ReferenceError{Entity: "invoice", ID: inv.ID.String(), Reason: "belongs to another customer"}
		}
	}

	instrument := in.Instrument
	if instrument.IsZero() {
		payer, err := l.payerInstrument(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if payer != nil {
			instrument = *payer
		}
	}

	now := l.now()
	txn := &transaction.Transaction{
		ID:         id.NewTransactionID(),
		CustomerID: c.ID,
		InvoiceID:  in.InvoiceID,
		Amount:     amount,
		Type:       in.Type,
		Status:     in.Status,
		Instrument: instrument,
		Reference:  in.Reference,
		Date:       now,
	}

	effect := transaction.EffectOf(txn, now)
	if effect.SettleInvoice {
		if err := settleable(inv, amount); err != nil {
			return nil, err
		}
	}

	if _, err := retryConflicts(ctx, l, func() (struct{}, error) {
		return struct{}{}, l.store.RecordTransaction(ctx, txn, effect)
	}); err != nil {
		return nil, err
	}

	l.plugins.EmitTransactionRecorded(ctx, txn)

	if effect.SettleInvoice {
		paid := *inv
		paid.Status = invoice.StatusPaid
		paid.PaidDate = lo.ToPtr(effect.PaidAt)
		paid.Touch(now)
		l.plugins.EmitInvoicePaid(ctx, &paid, txn)
	}

	return txn, nil
}

// settleable checks that a payment of amount can settle inv. Any completed
// payment settles, whatever its size, as long as the currency matches. The
// store repeats the status check atomically.
func settleable(inv *invoice.Invoice, amount types.Money) error {
	switch inv.Status {
	case invoice.StatusPaid:
		return ErrInvoiceAlreadyPaid
	case invoice.StatusCanceled:
		return ErrInvoiceAlreadyCanceled
	}
	if !amount.SameCurrency(inv.Amount) {
		return invalid("amount", "must use the invoice currency "+inv.Amount.Currency)
	}
	return nil
}

// ListTransactions lists a customer's transactions, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, customerID id.CustomerID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	return l.store.ListTransactions(ctx, customerID, opts)
}
