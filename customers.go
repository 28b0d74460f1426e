package crmledger

import (
	"context"
	"errors"

	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

// CreateCustomerInput is the request to open a customer account.
type CreateCustomerInput struct {
	FirstName   string            `json:"firstName"   validate:"required,max=100"`
	LastName    string            `json:"lastName"    validate:"required,max=100"`
	Email       string            `json:"email"       validate:"required,email"`
	PhoneNumber string            `json:"phoneNumber" validate:"omitempty,max=32"`
	UserID      string            `json:"userId"      validate:"omitempty,max=64"`
	Address     *customer.Address `json:"address"`
}

// CreateCustomer opens an active account with a zero balance in the billing
// currency.
func (l *Ledger) CreateCustomer(ctx context.Context, in CreateCustomerInput) (*customer.Customer, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}

	now := l.now()
	billing := l.billing(ctx)

	c := &customer.Customer{
		Entity:      types.NewEntity(now),
		ID:          id.NewCustomerID(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		UserID:      in.UserID,
		Address:     in.Address,
		Balance:     types.Zero(billing.Currency),
		Status:      customer.StatusActive,
	}

	if err := l.store.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}

	l.plugins.EmitCustomerCreated(ctx, c)
	return c, nil
}

// GetCustomer retrieves a customer by ID.
func (l *Ledger) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return l.store.GetCustomer(ctx, customerID)
}

// UpdateCustomerStatus changes the account standing. Suspended and
// terminated customers cannot enroll in new plans.
func (l *Ledger) UpdateCustomerStatus(ctx context.Context, customerID id.CustomerID, status customer.Status) (*customer.Customer, error) {
	if !status.IsValid() {
		return nil, invalid("status", "must be one of active suspended terminated")
	}
	if err := l.store.UpdateCustomerStatus(ctx, customerID, status, l.now()); err != nil {
		return nil, err
	}
	return l.store.GetCustomer(ctx, customerID)
}

// ──────────────────────────────────────────────────
// Reference helpers
// ──────────────────────────────────────────────────

// customerRef loads a customer named by another record. A missing customer
// is a dangling reference rather than a not-found subject.
func (l *Ledger) customerRef(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	if customerID.IsNil() {
		return nil, invalid("customerId", "is required")
	}
	c, err := l.store.GetCustomer(ctx, customerID)
	if errors.Is(err, ErrCustomerNotFound) {
		return nil, danglingRef("customer", customerID.String())
	}
	return c, err
}
