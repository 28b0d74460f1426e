// Package paymentmethod defines stored payment instruments and the
// immutable instrument snapshot copied onto invoices and transactions.
package paymentmethod

import (
	"sort"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

// Type is the kind of instrument.
type Type string

const (
	TypeCreditCard  Type = "credit_card"
	TypeBankAccount Type = "bank_account"
)

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool { return t == TypeCreditCard || t == TypeBankAccount }

// PaymentMethod is an instrument stored for a customer.
//
// IsDefault is derived on read from the customer's default pointer, so at
// most one method per customer reports true.
type PaymentMethod struct {
	types.Entity
	ID         id.PaymentMethodID `json:"id"`
	CustomerID id.CustomerID      `json:"customerId"`
	Type       Type               `json:"type"`
	CardBrand  string             `json:"cardType,omitempty"`
	LastFour   string             `json:"lastFour"`
	ExpiryDate string             `json:"expiryDate,omitempty"`
	IsDefault  bool               `json:"isDefault"`
}

// Snapshot copies the fields that identify the instrument.
func (pm *PaymentMethod) Snapshot() Instrument {
	return Instrument{Type: pm.Type, LastFour: pm.LastFour, CardBrand: pm.CardBrand}
}

// Instrument is the value snapshot of a payment method. It is never a live
// reference, so history stays accurate after the method is removed.
type Instrument struct {
	Type      Type   `json:"type"               validate:"omitempty,oneof=credit_card bank_account"`
	LastFour  string `json:"lastFour"           validate:"omitempty,lastfour"`
	CardBrand string `json:"cardType,omitempty" validate:"max=32"`
}

// IsZero reports whether no instrument was captured.
func (i Instrument) IsZero() bool { return i == Instrument{} }

// SortDefaultFirst orders methods default first, then by creation time.
func SortDefaultFirst(methods []*PaymentMethod) {
	sort.SliceStable(methods, func(a, b int) bool {
		if methods[a].IsDefault != methods[b].IsDefault {
			return methods[a].IsDefault
		}
		return methods[a].CreatedAt.Before(methods[b].CreatedAt)
	})
}
