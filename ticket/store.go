package ticket

import (
	"context"
	"time"

	"github.com/xraph/crmledger/id"
)

// Store persists tickets.
type Store interface {
	CreateTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, ticketID id.TicketID) (*Ticket, error)
	GetTicketByNumber(ctx context.Context, number string) (*Ticket, error)

	// AppendTicketMessage appends m without rewriting earlier messages.
	AppendTicketMessage(ctx context.Context, ticketID id.TicketID, m Message) error

	// SetTicketStatus updates the status; moving into resolved stamps
	// ResolvedAt only if it was never set.
	SetTicketStatus(ctx context.Context, ticketID id.TicketID, status Status, at time.Time) (*Ticket, error)
	AssignTicket(ctx context.Context, ticketID id.TicketID, agentID string, at time.Time) error

	// LatestResolvedTicket returns the customer's most recently resolved
	// ticket.
	LatestResolvedTicket(ctx context.Context, customerID id.CustomerID) (*Ticket, error)
}
