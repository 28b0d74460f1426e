package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4999), 4999, "usd", "$49.99"},
		{"EUR", EUR(1500), 1500, "eur", "€15.00"},
		{"GBP", GBP(9900), 9900, "gbp", "£99.00"},
		{"New JPY", New(100, "JPY"), 100, "jpy", "¥100"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
		{"Unknown", New(250, "xyz"), 250, "xyz", "XYZ 2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Subtract below zero", func() Money { return USD(0).Subtract(USD(5000)) }, USD(-5000)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Sum", func() Money { return Sum("usd", USD(3000), USD(2000)) }, USD(5000)},
		{"Sum empty", func() Money { return Sum("usd") }, Zero("usd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(EUR(100))
}

func TestMoneyDecimalConversion(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		want     Money
	}{
		{"49.99", "usd", USD(4999)},
		{"50", "usd", USD(5000)},
		{"0.005", "usd", USD(1)},
		{"-12.345", "eur", EUR(-1235)},
		{"1200", "jpy", New(1200, "jpy")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMajor(tt.in, tt.currency)
			if err != nil {
				t.Fatalf("ParseMajor: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseMajor(%q): got %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if !USD(4999).Decimal().Equal(decimal.RequireFromString("49.99")) {
		t.Errorf("Decimal: got %s", USD(4999).Decimal())
	}

	if _, err := ParseMajor("abc", "usd"); err == nil {
		t.Error("expected error for malformed amount")
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{USD(4900), "49.00"},
		{USD(1), "0.01"},
		{USD(0), "0.00"},
		{USD(-4900), "-49.00"},
		{New(12345, "jpy"), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":4900,"currency":"usd","display":"$49.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(USD(4900)) {
		t.Errorf("Unmarshal: got %v", back)
	}
}
