package crmledger

import (
	"context"
	"errors"

	"github.com/xraph/crmledger/settings"
)

// PutSettings validates and stores one settings category.
func (l *Ledger) PutSettings(ctx context.Context, s settings.Settings, updatedBy string) (*settings.Record, error) {
	if s == nil {
		return nil, invalid("settings", "is required")
	}
	if err := l.check(s); err != nil {
		return nil, err
	}

	rec, err := settings.Encode(s, updatedBy, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.store.PutSettings(ctx, rec); err != nil {
		return nil, err
	}

	l.snapshots.Flush()
	l.plugins.EmitSettingsUpdated(ctx, rec)
	return rec, nil
}

// GetSettings returns a stored category, or its defaults when it was never
// stored.
func (l *Ledger) GetSettings(ctx context.Context, c settings.Category) (settings.Settings, error) {
	rec, err := l.store.GetSettings(ctx, c)
	if errors.Is(err, ErrSettingsNotFound) {
		s, derr := settings.Defaults(c)
		if derr != nil {
			return nil, invalid("category", derr.Error())
		}
		return l.withLedgerDefaults(s), nil
	}
	if err != nil {
		return nil, err
	}
	return settings.Decode(rec)
}

// withLedgerDefaults applies the ledger options to unstored billing
// settings.
func (l *Ledger) withLedgerDefaults(s settings.Settings) settings.Settings {
	if b, ok := s.(settings.Billing); ok {
		b.Currency = l.currency
		b.InvoiceDueDays = l.invoiceDueDays
		if b.ReminderDays > b.InvoiceDueDays {
			b.ReminderDays = b.InvoiceDueDays
		}
		return b
	}
	return s
}

// billing returns the effective billing settings. Read failures fall back
// to the ledger options.
func (l *Ledger) billing(ctx context.Context) settings.Billing {
	s, err := l.GetSettings(ctx, settings.CategoryBilling)
	if err == nil {
		if b, ok := s.(settings.Billing); ok {
			return b
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Warn("billing settings unavailable, using defaults", "error", err)
	}
	return settings.Billing{Currency: l.currency, InvoiceDueDays: l.invoiceDueDays}
}
