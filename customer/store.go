package customer

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
)

// Store persists customers.
type Store interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, customerID id.CustomerID) (*Customer, error)
	UpdateCustomerStatus(ctx context.Context, customerID id.CustomerID, status Status, at time.Time) error

	// CountCustomersByMonth groups customers created in [from, to) by
	// calendar month (UTC), keyed "2006-01".
	CountCustomersByMonth(ctx context.Context, from, to time.Time) (map[string]int64, error)
}
