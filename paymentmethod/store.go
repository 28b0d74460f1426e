package paymentmethod

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
)

// Store persists payment methods and the customer's default pointer.
type Store interface {
	// CreatePaymentMethod inserts pm and, when makeDefault is set, points the
	// customer's default at it in the same atomic unit.
	CreatePaymentMethod(ctx context.Context, pm *PaymentMethod, makeDefault bool) error
	GetPaymentMethod(ctx context.Context, pmID id.PaymentMethodID) (*PaymentMethod, error)

	// ListPaymentMethods returns the customer's methods, default first.
	ListPaymentMethods(ctx context.Context, customerID id.CustomerID) ([]*PaymentMethod, error)

	// DeletePaymentMethod removes the method and clears the default pointer
	// if it pointed at it. It reports whether the method was the default.
	DeletePaymentMethod(ctx context.Context, pmID id.PaymentMethodID, at time.Time) (bool, error)

	// SetDefaultPaymentMethod points the default at pmID, which must belong
	// to customerID.
	SetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID, pmID id.PaymentMethodID, at time.Time) error

	GetDefaultPaymentMethod(ctx context.Context, customerID id.CustomerID) (*PaymentMethod, error)
}
