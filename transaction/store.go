package transaction

import (
	"context"

	"github.com/xraph/crmledger/id"
)

// Store persists transactions.
type Store interface {
	// RecordTransaction inserts t and applies e in one atomic unit.
	RecordTransaction(ctx context.Context, t *Transaction, e Effect) error
	ListTransactions(ctx context.Context, customerID id.CustomerID, opts ListOpts) ([]*Transaction, error)
}

// ListOpts filters ListTransactions. Results are newest first.
type ListOpts struct {
	Type   Type
	Status Status
	Limit  int
	Offset int
}
