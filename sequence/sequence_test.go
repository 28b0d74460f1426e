package sequence

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"first ticket", TicketNumber("2026", 1), "TK-2026001"},
		{"tenth ticket", TicketNumber("2026", 10), "TK-2026010"},
		{"overflow widens", TicketNumber("2026", 1234), "TK-20261234"},
		{"invoice", InvoiceNumber("202603", 7), "INV-202603-0007"},
		{"raw", Format("X", "", 5, 2), "X05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestScopeKeys(t *testing.T) {
	at := time.Date(2026, 3, 31, 23, 30, 0, 0, time.FixedZone("X", -2*3600))

	if got := YearKey(at); got != "2026" {
		t.Errorf("YearKey: got %q", got)
	}
	// 23:30 at UTC-2 is already April in UTC.
	if got := MonthKey(at); got != "202604" {
		t.Errorf("MonthKey: got %q", got)
	}
	if got := Scope(KindTicket, "2026"); got != "ticket:2026" {
		t.Errorf("Scope: got %q", got)
	}
}
