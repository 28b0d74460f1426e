package crmledger

import (
	"context"
	"errors"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/types"
)

// AddPaymentMethodInput is the request to store an instrument.
type AddPaymentMethodInput struct {
	Type       paymentmethod.Type `json:"type"       validate:"required,oneof=credit_card bank_account"`
	CardBrand  string             `json:"cardType"   validate:"max=32"`
	LastFour   string             `json:"lastFour"   validate:"required,lastfour"`
	ExpiryDate string             `json:"expiryDate" validate:"omitempty,expiry"`
	IsDefault  bool               `json:"isDefault"`
}

// AddPaymentMethod stores an instrument for the customer. When IsDefault is
// set the instrument becomes the single default in the same atomic write.
func (l *Ledger) AddPaymentMethod(ctx context.Context, customerID id.CustomerID, in AddPaymentMethodInput) (*paymentmethod.PaymentMethod, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}
	if in.Type == paymentmethod.TypeCreditCard && in.ExpiryDate == "" {
		return nil, invalid("expiryDate", "is required for credit cards")
	}

	c, err := l.customerRef(ctx, customerID)
	if err != nil {
		return nil, err
	}

	pm := &paymentmethod.PaymentMethod{
		Entity:     types.NewEntity(l.now()),
		ID:         id.NewPaymentMethodID(),
		CustomerID: c.ID,
		Type:       in.Type,
		CardBrand:  in.CardBrand,
		LastFour:   in.LastFour,
		ExpiryDate: in.ExpiryDate,
		IsDefault:  in.IsDefault,
	}

	if _, err := retryConflicts(ctx, l, func() (struct{}, error) {
		return struct{}{}, l.store.CreatePaymentMethod(ctx, pm, in.IsDefault)
	}); err != nil {
		return nil, err
	}

	l.plugins.EmitPaymentMethodAdded(ctx, pm)
	if pm.IsDefault {
		l.plugins.EmitDefaultPaymentMethodChanged(ctx, c.ID, pm.ID)
	}
	return pm, nil
}

// RemovePaymentMethod deletes an instrument. Removing the default leaves the
// customer without one; no other method is promoted.
func (l *Ledger) RemovePaymentMethod(ctx context.Context, pmID id.PaymentMethodID) error {
	pm, err := l.store.GetPaymentMethod(ctx, pmID)
	if err != nil {
		return err
	}

	wasDefault, err := retryConflicts(ctx, l, func() (bool, error) {
		return l.store.DeletePaymentMethod(ctx, pmID, l.now())
	})
	if err != nil {
		return err
	}

	l.plugins.EmitPaymentMethodRemoved(ctx, pm, wasDefault)
	return nil
}

// ListPaymentMethods lists the customer's instruments, default first.
func (l *Ledger) ListPaymentMethods(ctx context.Context, customerID id.CustomerID) ([]*paymentmethod.PaymentMethod, error) {
	if _, err := l.customerRef(ctx, customerID); err != nil {
		return nil, err
	}
	return l.store.ListPaymentMethods(ctx, customerID)
}

// SetDefaultPaymentMethod makes pmID the customer's single default.
func (l *Ledger) SetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID) error {
	c, err := l.customerRef(ctx, customerID)
	if err != nil {
		return err
	}

	pm, err := l.store.GetPaymentMethod(ctx, pmID)
	if err != nil {
		return err
	}
	if !pm.CustomerID.Equal(c.ID) {
		return ReferenceError{Entity: "payment method", ID: pmID.String(), Reason: "belongs to another customer"}
	}

	if _, err := retryConflicts(ctx, l, func() (struct{}, error) {
		return struct{}{}, l.store.SetDefaultPaymentMethod(ctx, c.ID, pmID, l.now())
	}); err != nil {
		return err
	}

	l.plugins.EmitDefaultPaymentMethodChanged(ctx, c.ID, pmID)
	return nil
}

// DefaultPaymentMethod returns the customer's default instrument or
// ErrNoDefaultPaymentMethod.
func (l *Ledger) DefaultPaymentMethod(ctx context.Context, customerID id.CustomerID) (*paymentmethod.PaymentMethod, error) {
	if _, err := l.customerRef(ctx, customerID); err != nil {
		return nil, err
	}
	return l.store.GetDefaultPaymentMethod(ctx, customerID)
}

// payerInstrument snapshots the customer's default instrument, or returns
// nil when there is none.
func (l *Ledger) payerInstrument(ctx context.Context, customerID id.CustomerID) (*paymentmethod.Instrument, error) {
	pm, err := l.store.GetDefaultPaymentMethod(ctx, customerID)
	switch {
	case errors.Is(err, ErrNoDefaultPaymentMethod):
		return nil, nil
	case err != nil:
		return nil, err
	}
	snap := pm.Snapshot()
	return &snap, nil
}
