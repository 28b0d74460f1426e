// Package sequence defines scoped monotonic counters and the formatting of
// the human-readable identifiers built from them.
//
// A counter is keyed by a scope string such as "ticket:2026". Each
// increment is a single atomic store operation; values are never reused and
// never decrease.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Store allocates counter values.
type Store interface {
	// NextSequence atomically increments the counter for scope, creating it
	// at 1 when absent, and returns the new value.
	NextSequence(ctx context.Context, scope string) (int64, error)
}

// Counter is the persisted form of a scope counter.
type Counter struct {
	Scope     string    `json:"scope"`
	Value     int64     `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Kind names the family of identifiers a scope belongs to.
type Kind string

const (
	KindTicket  Kind = "ticket"
	KindInvoice Kind = "invoice"
)

// Scope returns the counter key for kind and key, e.g. "ticket:2026".
func Scope(kind Kind, key string) string {
	return string(kind) + ":" + key
}

// YearKey returns the scope key of a year-scoped counter.
func YearKey(t time.Time) string { return strconv.Itoa(t.UTC().Year()) }

// MonthKey returns the scope key of a month-scoped counter ("202603").
func MonthKey(t time.Time) string { return t.UTC().Format("200601") }

// Format renders prefix + key + n zero-padded to width digits. Values wider
// than width are rendered in full.
func Format(prefix, key string, n int64, width int) string {
	return fmt.Sprintf("%s%s%0*d", prefix, key, width, n)
}

// TicketNumber formats a ticket number: "TK-2026001".
func TicketNumber(year string, n int64) string {
	return Format("TK-", year, n, 3)
}

// InvoiceNumber formats an invoice number: "INV-202603-0001".
func InvoiceNumber(month string, n int64) string {
	return Format("INV-", month+"-", n, 4)
}
