package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/crmledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"CustomerID", id.NewCustomerID, "cust_"},
		{"PlanID", id.NewPlanID, "plan_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"InvoiceID", id.NewInvoiceID, "inv_"},
		{"LineItemID", id.NewLineItemID, "li_"},
		{"TransactionID", id.NewTransactionID, "txn_"},
		{"PaymentMethodID", id.NewPaymentMethodID, "pm_"},
		{"TicketID", id.NewTicketID, "tkt_"},
		{"AuditID", id.NewAuditID, "aud_"},
		{"NetworkStatusID", id.NewNetworkStatusID, "net_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"CustomerID", id.NewCustomerID, id.ParseCustomerID},
		{"PlanID", id.NewPlanID, id.ParsePlanID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
		{"InvoiceID", id.NewInvoiceID, id.ParseInvoiceID},
		{"TransactionID", id.NewTransactionID, id.ParseTransactionID},
		{"PaymentMethodID", id.NewPaymentMethodID, id.ParsePaymentMethodID},
		{"TicketID", id.NewTicketID, id.ParseTicketID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !parsed.Equal(original) {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseCustomerID rejects plan_", id.NewPlanID().String(), id.ParseCustomerID},
		{"ParseSubscriptionID rejects inv_", id.NewInvoiceID().String(), id.ParseSubscriptionID},
		{"ParseInvoiceID rejects txn_", id.NewTransactionID().String(), id.ParseInvoiceID},
		{"ParsePaymentMethodID rejects cust_", id.NewCustomerID().String(), id.ParsePaymentMethodID},
		{"ParseTicketID rejects sub_", id.NewSubscriptionID().String(), id.ParseTicketID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestFromString(t *testing.T) {
	got, err := id.FromString("")
	if err != nil {
		t.Fatalf("FromString(\"\") failed: %v", err)
	}
	if !got.IsNil() {
		t.Error("expected Nil for empty string")
	}

	orig := id.NewInvoiceID()
	got, err = id.FromString(orig.String())
	if err != nil {
		t.Fatalf("FromString failed: %v", err)
	}
	if !got.Equal(orig) {
		t.Errorf("mismatch: %q != %q", got.String(), orig.String())
	}

	if _, err := id.FromString("not a typeid"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("expected NULL value, got %v (%v)", v, err)
	}
}

func TestScan(t *testing.T) {
	orig := id.NewCustomerID()

	var fromString id.ID
	if err := fromString.Scan(orig.String()); err != nil {
		t.Fatalf("Scan(string) failed: %v", err)
	}
	if !fromString.Equal(orig) {
		t.Errorf("mismatch: %q != %q", fromString.String(), orig.String())
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(orig.String())); err != nil {
		t.Fatalf("Scan([]byte) failed: %v", err)
	}
	if !fromBytes.Equal(orig) {
		t.Errorf("mismatch: %q != %q", fromBytes.String(), orig.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("expected nil after Scan(nil)")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
