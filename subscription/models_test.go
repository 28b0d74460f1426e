package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCanceled, true},
		{StatusPending, StatusExpired, false},
		{StatusActive, StatusActive, true},
		{StatusActive, StatusCanceled, true},
		{StatusActive, StatusExpired, true},
		{StatusActive, StatusPending, false},
		{StatusCanceled, StatusActive, false},
		{StatusExpired, StatusActive, false},
		{StatusExpired, StatusCanceled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestSources(t *testing.T) {
	assert.Equal(t, []Status{StatusPending, StatusActive}, Sources(StatusCanceled))
	assert.Equal(t, []Status{StatusActive}, Sources(StatusExpired))
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
}

func TestExpirable(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusActive, EndDate: now.Add(-time.Hour)}

	assert.True(t, sub.Expirable(now))

	sub.AutoRenew = true
	assert.False(t, sub.Expirable(now), "auto-renewing subscriptions never lapse")

	sub.AutoRenew = false
	sub.EndDate = now
	assert.False(t, sub.Expirable(now), "end date must be strictly past")

	sub.EndDate = now.Add(-time.Hour)
	sub.Status = StatusPending
	assert.False(t, sub.Expirable(now))
}

func TestTransitionGuardAndApply(t *testing.T) {
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: StatusActive, EndDate: at.Add(-time.Minute)}

	tr := Transition{From: []Status{StatusActive}, To: StatusExpired, At: at, LapsedBefore: at}
	assert.True(t, tr.Allows(sub))

	sub.AutoRenew = true
	assert.False(t, tr.Allows(sub))
	sub.AutoRenew = false

	sub.Apply(tr)
	assert.Equal(t, StatusExpired, sub.Status)
	if assert.NotNil(t, sub.ExpiredAt) {
		assert.Equal(t, at, *sub.ExpiredAt)
	}
	assert.Equal(t, at, sub.UpdatedAt)

	cancel := Transition{From: Sources(StatusCanceled), To: StatusCanceled, At: at, Reason: ReasonSuperseded}
	assert.False(t, cancel.AllowsStatus(sub.Status), "expired is terminal")

	pending := &Subscription{Status: StatusPending}
	pending.Apply(cancel)
	assert.Equal(t, StatusCanceled, pending.Status)
	assert.Equal(t, ReasonSuperseded, pending.CancelReason)
}
