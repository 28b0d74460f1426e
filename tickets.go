package crmledger

import (
	"context"
	"strings"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/ticket"
	"github.com/xraph/crmledger/types"
)

// CreateTicketInput is the request to open a support ticket.
type CreateTicketInput struct {
	CustomerID  id.CustomerID   `json:"customerId"`
	Subject     string          `json:"subject"     validate:"required,max=200"`
	Description string          `json:"description" validate:"required,max=5000"`
	Priority    ticket.Priority `json:"priority"    validate:"omitempty,oneof=low medium high critical"`
	Category    string          `json:"category"    validate:"max=64"`
}

// MessageInput is one message appended to a ticket thread.
type MessageInput struct {
	Sender   ticket.Sender `json:"sender"   validate:"required,oneof=customer agent system"`
	SenderID string        `json:"senderId" validate:"max=64"`
	Text     string        `json:"message"  validate:"required,max=5000"`
}

// CreateTicket opens a ticket with the next number of the current year. The
// description seeds the thread as the customer's first message.
func (l *Ledger) CreateTicket(ctx context.Context, in CreateTicketInput) (*ticket.Ticket, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}

	c, err := l.customerRef(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	number, err := l.nextTicketNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = ticket.PriorityMedium
	}

	t := &ticket.Ticket{
		Entity:      types.NewEntity(now),
		ID:          id.NewTicketID(),
		Number:      number,
		CustomerID:  c.ID,
		Subject:     in.Subject,
		Description: in.Description,
		Status:      ticket.StatusOpen,
		Priority:    priority,
		Category:    in.Category,
		Messages: []ticket.Message{{
			Sender:    ticket.SenderCustomer,
			SenderID:  c.ID.String(),
			Text:      in.Description,
			Timestamp: now,
		}},
	}

	if err := l.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}

	l.plugins.EmitTicketCreated(ctx, t)
	return t, nil
}

// AddTicketMessage appends a message to the thread and returns the ticket.
func (l *Ledger) AddTicketMessage(ctx context.Context, ticketID id.TicketID, in MessageInput) (*ticket.Ticket, error) {
	if err := l.check(in); err != nil {
		return nil, err
	}

	m := ticket.Message{
		Sender:    in.Sender,
		SenderID:  in.SenderID,
		Text:      in.Text,
		Timestamp: l.now(),
	}
	if err := l.store.AppendTicketMessage(ctx, ticketID, m); err != nil {
		return nil, err
	}
	return l.store.GetTicket(ctx, ticketID)
}

// UpdateTicketStatus changes the ticket status. The first move into
// resolved stamps ResolvedAt; later moves never change it.
func (l *Ledger) UpdateTicketStatus(ctx context.Context, ticketID id.TicketID, status ticket.Status) (*ticket.Ticket, error) {
	if !status.IsValid() {
		return nil, invalid("status", "must be one of open in_progress resolved closed")
	}

	prev, err := l.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	t, err := l.store.SetTicketStatus(ctx, ticketID, status, l.now())
	if err != nil {
		return nil, err
	}

	if prev.Status != t.Status {
		l.plugins.EmitTicketStatusChanged(ctx, t, prev.Status)
	}
	return t, nil
}

// AssignTicket assigns the ticket to a support agent.
func (l *Ledger) AssignTicket(ctx context.Context, ticketID id.TicketID, agentID string) (*ticket.Ticket, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, invalid("assignedTo", "is required")
	}
	if err := l.store.AssignTicket(ctx, ticketID, agentID, l.now()); err != nil {
		return nil, err
	}
	return l.store.GetTicket(ctx, ticketID)
}

// GetTicket retrieves a ticket by ID.
func (l *Ledger) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	return l.store.GetTicket(ctx, ticketID)
}

// GetTicketByNumber retrieves a ticket by its "TK-..." number.
func (l *Ledger) GetTicketByNumber(ctx context.Context, number string) (*ticket.Ticket, error) {
	if !strings.HasPrefix(number, ticket.NumberPrefix) {
		return nil, invalid("ticketId", "must start with "+ticket.NumberPrefix)
	}
	return l.store.GetTicketByNumber(ctx, number)
}
