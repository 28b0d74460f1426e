// Package settings holds system configuration as typed, per-category
// variants. Each category has its own schema; the persisted record stores
// the variant as JSON under its category key.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Category keys a settings variant.
type Category string

const (
	CategoryGeneral       Category = "general"
	CategoryBilling       Category = "billing"
	CategoryNotifications Category = "notifications"
	CategorySecurity      Category = "security"
)

// Settings is implemented by every category variant.
type Settings interface {
	Category() Category
}

// General holds company-wide presentation settings.
type General struct {
	CompanyName  string `json:"companyName"  validate:"max=200"`
	SupportEmail string `json:"supportEmail" validate:"omitempty,email"`
	Timezone     string `json:"timezone"     validate:"omitempty,timezone"`
}

// Billing drives invoice issuance.
type Billing struct {
	Currency       string `json:"currency"       validate:"required,len=3,lowercase"`
	InvoiceDueDays int    `json:"invoiceDueDays" validate:"gte=1,lte=365"`
	ReminderDays   int    `json:"reminderDays"   validate:"gte=0,ltefield=InvoiceDueDays"`
}

// Notifications toggles outbound customer messaging.
type Notifications struct {
	EmailEnabled     bool `json:"emailEnabled"`
	SMSEnabled       bool `json:"smsEnabled"`
	OverdueReminders bool `json:"overdueReminders"`
}

// Security holds session and login policy.
type Security struct {
	SessionTimeoutMinutes int  `json:"sessionTimeoutMinutes" validate:"gte=5,lte=1440"`
	MaxLoginAttempts      int  `json:"maxLoginAttempts"      validate:"gte=1,lte=20"`
	RequireTwoFactor      bool `json:"requireTwoFactor"`
}

func (General) Category() Category       { return CategoryGeneral }
func (Billing) Category() Category       { return CategoryBilling }
func (Notifications) Category() Category { return CategoryNotifications }
func (Security) Category() Category      { return CategorySecurity }

// Defaults returns the variant used when a category was never stored.
func Defaults(c Category) (Settings, error) {
	switch c {
	case CategoryGeneral:
		return General{Timezone: "UTC"}, nil
	case CategoryBilling:
		return Billing{Currency: "usd", InvoiceDueDays: 30, ReminderDays: 3}, nil
	case CategoryNotifications:
		return Notifications{EmailEnabled: true, OverdueReminders: true}, nil
	case CategorySecurity:
		return Security{SessionTimeoutMinutes: 60, MaxLoginAttempts: 5}, nil
	}
	return nil, fmt.Errorf("settings: unknown category %q", c)
}

// Record is the persisted form of a variant.
type Record struct {
	Category  Category        `json:"category"`
	Data      json.RawMessage `json:"settings"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Encode wraps s into a Record.
func Encode(s Settings, updatedBy string, at time.Time) (*Record, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("settings: encode %s: %w", s.Category(), err)
	}
	return &Record{Category: s.Category(), Data: data, UpdatedBy: updatedBy, UpdatedAt: at.UTC()}, nil
}

// Decode returns the variant stored in r.
func Decode(r *Record) (Settings, error) {
	var (
		out Settings
		err error
	)
	switch r.Category {
	case CategoryGeneral:
		var v General
		err = json.Unmarshal(r.Data, &v)
		out = v
	case CategoryBilling:
		var v Billing
		err = json.Unmarshal(r.Data, &v)
		out = v
	case CategoryNotifications:
		var v Notifications
		err = json.Unmarshal(r.Data, &v)
		out = v
	case CategorySecurity:
		var v Security
		err = json.Unmarshal(r.Data, &v)
		out = v
	default:
		return nil, fmt.Errorf("settings: unknown category %q", r.Category)
	}
	if err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", r.Category, err)
	}
	return out, nil
}

// Store persists one record per category.
type Store interface {
	PutSettings(ctx context.Context, r *Record) error
	GetSettings(ctx context.Context, c Category) (*Record, error)
}
