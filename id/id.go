// Package id defines the TypeID-based identifiers used by every crmledger
// entity.
//
// An ID renders as "prefix_suffix" where the prefix names the entity kind
// ("cust", "sub", "inv", ...) and the suffix is a UUIDv7 in base32. IDs are
// K-sortable, so lexical order follows creation order.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity kind encoded in a TypeID.
type Prefix string

// Entity prefixes.
const (
	PrefixCustomer      Prefix = "cust"  // Customer account
	PrefixPlan          Prefix = "plan"  // Catalog plan
	PrefixSubscription  Prefix = "sub"   // Plan enrollment
	PrefixInvoice       Prefix = "inv"   // Invoice
	PrefixLineItem      Prefix = "li"    // Invoice line item
	PrefixTransaction   Prefix = "txn"   // Ledger transaction
	PrefixPaymentMethod Prefix = "pm"    // Stored payment instrument
	PrefixTicket        Prefix = "tkt"   // Support ticket
	PrefixAudit         Prefix = "aud"   // Audit log entry
	PrefixNetworkStatus Prefix = "net"   // Network status record
)

// ID is the identifier type for all crmledger entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. It panics if prefix is not a
// valid TypeID prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "sub_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// FromString parses s, mapping the empty string to Nil. Stores use it for
// optional reference columns.
func FromString(s string) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return Parse(s)
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// CustomerID identifies a customer (prefix: "cust").
type CustomerID = ID

// PlanID identifies a plan (prefix: "plan").
type PlanID = ID

// SubscriptionID identifies a subscription (prefix: "sub").
type SubscriptionID = ID

// InvoiceID identifies an invoice (prefix: "inv").
type InvoiceID = ID

// LineItemID identifies an invoice line item (prefix: "li").
type LineItemID = ID

// TransactionID identifies a transaction (prefix: "txn").
type TransactionID = ID

// PaymentMethodID identifies a payment method (prefix: "pm").
type PaymentMethodID = ID

// TicketID identifies a support ticket record (prefix: "tkt"). The
// human-readable "TK-..." number is a separate field.
type TicketID = ID

// AuditID identifies an audit log entry (prefix: "aud").
type AuditID = ID

// NetworkStatusID identifies a network status record (prefix: "net").
type NetworkStatusID = ID

// ──────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────

func NewCustomerID() ID      { return New(PrefixCustomer) }
func NewPlanID() ID          { return New(PrefixPlan) }
func NewSubscriptionID() ID  { return New(PrefixSubscription) }
func NewInvoiceID() ID       { return New(PrefixInvoice) }
func NewLineItemID() ID      { return New(PrefixLineItem) }
func NewTransactionID() ID   { return New(PrefixTransaction) }
func NewPaymentMethodID() ID { return New(PrefixPaymentMethod) }
func NewTicketID() ID        { return New(PrefixTicket) }
func NewAuditID() ID         { return New(PrefixAudit) }
func NewNetworkStatusID() ID { return New(PrefixNetworkStatus) }

// ──────────────────────────────────────────────────
// Parsers
// ──────────────────────────────────────────────────

func ParseCustomerID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixCustomer) }
func ParsePlanID(s string) (ID, error)         { return ParseWithPrefix(s, PrefixPlan) }
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }
func ParseInvoiceID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixInvoice) }
func ParseTransactionID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixTransaction) }
func ParsePaymentMethodID(s string) (ID, error) {
	return ParseWithPrefix(s, PrefixPaymentMethod)
}
func ParseTicketID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTicket) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// Equal reports whether both IDs render identically.
func (i ID) Equal(other ID) bool { return i.String() == other.String() }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
