// Package ticket defines customer support tickets and their message thread.
package ticket

import (
	"time"

	"github.com/xraph/crmledger/id"
	"github.com/xraph/crmledger/types"
)

// Status is the handling state of a ticket.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority orders tickets for handling.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Sender is the role of a message author.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// IsValid reports whether s is a known sender role.
func (s Sender) IsValid() bool {
	return s == SenderCustomer || s == SenderAgent || s == SenderSystem
}

// Ticket is a support request. Number is the human-readable "TK-..."
// identifier; ID is the storage key.
type Ticket struct {
	types.Entity
	ID          id.TicketID   `json:"id"`
	Number      string        `json:"ticketId"`
	CustomerID  id.CustomerID `json:"customerId"`
	Subject     string        `json:"subject"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Priority    Priority      `json:"priority"`
	Category    string        `json:"category,omitempty"`
	AssignedTo  string        `json:"assignedTo,omitempty"`
	Messages    []Message     `json:"messages"`
	ResolvedAt  *time.Time    `json:"resolvedAt,omitempty"`
}

// Message is one entry in a ticket's append-only thread.
type Message struct {
	Sender    Sender    `json:"sender"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NumberPrefix starts every ticket number.
const NumberPrefix = "TK-"
