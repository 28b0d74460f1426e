package crmledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crmledger"
	"github.com/xraph/crmledger/audit"
	audithook "github.com/xraph/crmledger/audit_hook"
	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/network"
	"github.com/xraph/crmledger/settings"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/types"
)

func TestTicketNumbersAreSequentialPerYear(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	c := mustCustomer(t, l)

	first, err := l.CreateTicket(ctx, crmledger.CreateTicketInput{CustomerID: c.ID, Subject: "No signal", Description: "Down since noon"})
	require.NoError(t, err)
	assert.Equal(t, "TK-2026001", first.Number)
	assert.Equal(t, ticket.StatusOpen, first.Status)
	assert.Equal(t, ticket.PriorityMedium, first.Priority)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, ticket.SenderCustomer, first.Messages[0].Sender)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := l.CreateTicket(ctx, crmledger.CreateTicketInput{CustomerID: c.ID, Subject: "Billing", Description: "Question"})
			assert.NoError(t, err)
			if tk != nil {
				mu.Lock()
				numbers[tk.Number] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	assert.True(t, numbers["TK-2026002"])
	assert.True(t, numbers["TK-2026011"])

	got, err := l.GetTicketByNumber(ctx, "TK-2026001")
	require.NoError(t, err)
	assert.True(t, got.ID.Equal(first.ID))

	_, err = l.GetTicketByNumber(ctx, "2026001")
	assert.True(t, crmledger.IsValidation(err))

	_, err = l.CreateTicket(ctx, crmledger.CreateTicketInput{CustomerID: id.NewCustomerID(), Subject: "x", Description: "y"})
	assert.True(t, crmledger.IsInvalidReference(err))
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	l, clock := newLedger(t)
	c := mustCustomer(t, l)

	tk, err := l.CreateTicket(ctx, crmledger.CreateTicketInput{CustomerID: c.ID, Subject: "Slow internet", Description: "Speed below plan", Priority: ticket.PriorityHigh})
	require.NoError(t, err)

	tk, err = l.AddTicketMessage(ctx, tk.ID, crmledger.MessageInput{Sender: ticket.SenderAgent, SenderID: "agent-7", Text: "Looking into it"})
	require.NoError(t, err)
	require.Len(t, tk.Messages, 2)
	assert.Equal(t, "Looking into it", tk.Messages[1].Text)

	tk, err = l.AssignTicket(ctx, tk.ID, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", tk.AssignedTo)

	clock.Advance(time.Hour)
	resolvedAt := clock.Now()
	tk, err = l.UpdateTicketStatus(ctx, tk.ID, ticket.StatusResolved)
	require.NoError(t, err)
	require.NotNil(t, tk.ResolvedAt)
	assert.Equal(t, resolvedAt, *tk.ResolvedAt)

	clock.Advance(time.Hour)
	_, err = l.UpdateTicketStatus(ctx, tk.ID, ticket.StatusInProgress)
	require.NoError(t, err)
	tk, err = l.UpdateTicketStatus(ctx, tk.ID, ticket.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, *tk.ResolvedAt, "resolvedAt is set once")

	_, err = l.UpdateTicketStatus(ctx, tk.ID, "escalated")
	assert.True(t, crmledger.IsValidation(err))

	_, err = l.AddTicketMessage(ctx, id.NewTicketID(), crmledger.MessageInput{Sender: ticket.SenderAgent, Text: "hi"})
	assert.ErrorIs(t, err, crmledger.ErrTicketNotFound)
}

func TestNetworkStatusReplacesPerServiceRegion(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	_, err := l.SetNetworkStatus(ctx, crmledger.NetworkStatusInput{ServiceType: network.ServiceInternet, Region: "east", Status: network.ConditionDegraded, AffectedUsers: 40})
	require.NoError(t, err)
	_, err = l.SetNetworkStatus(ctx, crmledger.NetworkStatusInput{ServiceType: network.ServiceInternet, Region: "east", Status: network.ConditionOperational})
	require.NoError(t, err)
	_, err = l.SetNetworkStatus(ctx, crmledger.NetworkStatusInput{ServiceType: network.ServiceTV, Region: "east", Status: network.ConditionOperational})
	require.NoError(t, err)

	all, err := l.ListNetworkStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = l.SetNetworkStatus(ctx, crmledger.NetworkStatusInput{ServiceType: "satellite", Region: "east", Status: network.ConditionOutage})
	assert.True(t, crmledger.IsValidation(err))
}

func TestSettingsDefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, crmledger.WithCurrency("eur"), crmledger.WithInvoiceDueDays(10))

	s, err := l.GetSettings(ctx, settings.CategoryBilling)
	require.NoError(t, err)
	b, ok := s.(settings.Billing)
	require.True(t, ok)
	assert.Equal(t, "eur", b.Currency)
	assert.Equal(t, 10, b.InvoiceDueDays)

	c := mustCustomer(t, l)
	assert.Equal(t, "eur", c.Balance.Currency)

	_, err = l.PutSettings(ctx, settings.Billing{Currency: "gbp", InvoiceDueDays: 7, ReminderDays: 2}, "admin")
	require.NoError(t, err)

	inv, err := l.IssueInvoice(ctx, crmledger.IssueInvoiceInput{CustomerID: c.ID, Amount: types.New(500, "")})
	require.NoError(t, err)
	assert.Equal(t, "gbp", inv.Amount.Currency)
	assert.Equal(t, t0.AddDate(0, 0, 7), inv.DueDate)

	_, err = l.PutSettings(ctx, settings.Billing{Currency: "USD", InvoiceDueDays: 0}, "admin")
	assert.True(t, crmledger.IsValidation(err))

	_, err = l.GetSettings(ctx, "themes")
	assert.True(t, crmledger.IsValidation(err))
}

func TestAuditHookRecordsLifecycle(t *testing.T) {
	ctx := audit.WithActor(context.Background(), audit.Actor{UserID: "admin-1"})
	l, _ := newLedger(t, crmledger.WithPlugin(audithook.New(nil)))

	c := mustCustomer(t, l)
	pm, err := l.AddPaymentMethod(ctx, c.ID, card("4242", true))
	require.NoError(t, err)
	require.NoError(t, l.RemovePaymentMethod(ctx, pm.ID))

	created, err := l.ListAudit(ctx, audit.ListOpts{ResourceType: audithook.ResourceCustomer, ResourceID: c.ID.String()})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, audithook.ActionCustomerCreated, created[0].Action)
	assert.Equal(t, audithook.CategoryAccount, created[0].Details["category"])

	removed, err := l.ListAudit(ctx, audit.ListOpts{ResourceType: audithook.ResourcePaymentMethod, Severity: audit.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, audithook.ActionPaymentMethodRemoved, removed[0].Action)
	assert.Equal(t, "admin-1", removed[0].Actor.UserID)

	alerts, err := l.SecurityAlerts(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alerts)
}

func TestRecordAuditRejectsIncompleteEntries(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	assert.True(t, crmledger.IsValidation(l.RecordAudit(ctx, nil)))
	assert.True(t, crmledger.IsValidation(l.RecordAudit(ctx, &audit.Entry{ResourceType: "user"})))
	assert.True(t, crmledger.IsValidation(l.RecordAudit(ctx, &audit.Entry{Action: "x", ResourceType: "user", Severity: "urgent"})))

	e := &audit.Entry{Action: "export", ResourceType: "report"}
	require.NoError(t, l.RecordAudit(ctx, e))
	assert.Equal(t, audit.SeverityNormal, e.Severity)
	assert.Equal(t, t0, e.Timestamp)
	assert.False(t, e.ID.IsNil())
}
