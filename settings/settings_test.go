package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	variants := []Settings{
		General{CompanyName: "Acme Telecom", SupportEmail: "help@acme.test", Timezone: "Europe/Berlin"},
		Billing{Currency: "eur", InvoiceDueDays: 14, ReminderDays: 2},
		Notifications{SMSEnabled: true},
		Security{SessionTimeoutMinutes: 30, MaxLoginAttempts: 3, RequireTwoFactor: true},
	}

	for _, v := range variants {
		t.Run(string(v.Category()), func(t *testing.T) {
			rec, err := Encode(v, "admin-1", at)
			require.NoError(t, err)
			assert.Equal(t, v.Category(), rec.Category)
			assert.Equal(t, "admin-1", rec.UpdatedBy)

			back, err := Decode(rec)
			require.NoError(t, err)
			assert.Equal(t, v, back)
		})
	}
}

func TestDecodeUnknownCategory(t *testing.T) {
	_, err := Decode(&Record{Category: "theme", Data: []byte(`{}`)})
	assert.Error(t, err)

	_, err = Defaults("theme")
	assert.Error(t, err)
}

func TestBillingDefaults(t *testing.T) {
	s, err := Defaults(CategoryBilling)
	require.NoError(t, err)

	b, ok := s.(Billing)
	require.True(t, ok)
	assert.Equal(t, 30, b.InvoiceDueDays)
	assert.Equal(t, "usd", b.Currency)
}
