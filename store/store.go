// Package store defines the aggregate persistence contract of crmledger.
//
// Backends implement every entity store plus the core lifecycle methods.
// The atomic multi-record operations (default payment method switch,
// current plan swap, renewal, transaction settlement) are store methods so
// each backend can apply them with its own transaction primitive.
package store

import (
	"context"

	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/customer"
	"github.com/xraph/crmledger/invoice"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/plan"
	"github.com/xraph/crmledger/sequence"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/subscription"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
)

// Store is the unified storage interface for all crmledger entities.
type Store interface {
	customer.Store
	plan.Store
	subscription.Store
	invoice.Store
	transaction.Store
	paymentmethod.Store
	ticket.Store
	sequence.Store
	audit.Store
	network.Store
	settings.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
