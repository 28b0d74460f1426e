package audithook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger/audit"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/paymentmethod"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/transaction"
	"github.com/xraph/crmledger/types"
)

type memoryRecorder struct {
	entries []*audit.Entry
	err     error
}

func (r *memoryRecorder) RecordAudit(_ context.Context, e *audit.Entry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSeverityRules(t *testing.T) {
	ctx := context.Background()
	rec := &memoryRecorder{}
	e := New(rec, WithLogger(quietLogger()))

	require.NoError(t, e.OnTransactionRecorded(ctx, &transaction.Transaction{ID: id.NewTransactionID(), Type: transaction.TypeRefund, Amount: types.USD(100)}))
	require.NoError(t, e.OnTransactionRecorded(ctx, &transaction.Transaction{ID: id.NewTransactionID(), Type: transaction.TypePayment, Amount: types.USD(100)}))
	require.NoError(t, e.OnTicketCreated(ctx, &ticket.Ticket{ID: id.NewTicketID(), Priority: ticket.PriorityCritical}))
	require.NoError(t, e.OnNetworkStatusChanged(ctx, &network.Status{ID: id.NewNetworkStatusID(), Status: network.ConditionDegraded}))
	require.NoError(t, e.OnSettingsUpdated(ctx, &settings.Record{Category: settings.CategorySecurity, UpdatedBy: "root"}))
	require.NoError(t, e.OnPaymentMethodRemoved(ctx, &paymentmethod.PaymentMethod{ID: id.NewPaymentMethodID(), LastFour: "4242"}, true))

	require.Len(t, rec.entries, 6)
	got := make([]audit.Severity, len(rec.entries))
	for i, entry := range rec.entries {
		got[i] = entry.Severity
	}
	assert.Equal(t, []audit.Severity{
		audit.SeverityHigh,
		audit.SeverityNormal,
		audit.SeverityCritical,
		audit.SeverityHigh,
		audit.SeverityHigh,
		audit.SeverityHigh,
	}, got)

	removed := rec.entries[5]
	assert.Equal(t, ActionPaymentMethodRemoved, removed.Action)
	assert.Equal(t, ResourcePaymentMethod, removed.ResourceType)
	assert.Equal(t, CategoryPayment, removed.Details["category"])
	assert.Equal(t, true, removed.Details["was_default"])
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	ticketEvent := &ticket.Ticket{ID: id.NewTicketID(), Priority: ticket.PriorityLow}
	settingsEvent := &settings.Record{Category: settings.CategoryGeneral}

	rec := &memoryRecorder{}
	e := New(rec, WithEnabledActions(ActionTicketCreated))
	require.NoError(t, e.OnTicketCreated(ctx, ticketEvent))
	require.NoError(t, e.OnSettingsUpdated(ctx, settingsEvent))
	require.Len(t, rec.entries, 1)
	assert.Equal(t, ActionTicketCreated, rec.entries[0].Action)

	rec = &memoryRecorder{}
	e = New(rec, WithDisabledActions(ActionTicketCreated))
	require.NoError(t, e.OnTicketCreated(ctx, ticketEvent))
	require.NoError(t, e.OnSettingsUpdated(ctx, settingsEvent))
	require.Len(t, rec.entries, 1)
	assert.Equal(t, ActionSettingsUpdated, rec.entries[0].Action)
}

func TestOnInitBindsRecorder(t *testing.T) {
	ctx := context.Background()
	rec := &memoryRecorder{}

	e := New(nil, WithLogger(quietLogger()))
	require.Error(t, e.OnInit(ctx, struct{}{}))

	require.NoError(t, e.OnInit(ctx, rec))
	require.NoError(t, e.OnDefaultPaymentMethodChanged(ctx, id.NewCustomerID(), id.NewPaymentMethodID()))
	assert.Len(t, rec.entries, 1)

	other := &memoryRecorder{}
	require.NoError(t, e.OnInit(ctx, other), "an already bound recorder is kept")
	require.NoError(t, e.OnDefaultPaymentMethodChanged(ctx, id.NewCustomerID(), id.NewPaymentMethodID()))
	assert.Len(t, rec.entries, 2)
	assert.Empty(t, other.entries)
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("disk full")}
	e := New(rec, WithLogger(quietLogger()))

	assert.NoError(t, e.OnInvoicesOverdue(context.Background(), 3))

	var called bool
	fn := RecorderFunc(func(_ context.Context, entry *audit.Entry) error {
		called = true
		assert.Equal(t, ActionInvoicesOverdue, entry.Action)
		return nil
	})
	require.NoError(t, New(fn).OnInvoicesOverdue(context.Background(), 1))
	assert.True(t, called)
}
