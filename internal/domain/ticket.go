package domain

import "time"

const (
	// DefaultTicketStatus is applied when a ticket is created without a status.
	DefaultTicketStatus = "Open"
	// DefaultTicketType is applied when a ticket is created without a type.
	DefaultTicketType = "Issue"
)

// Ticket is the aggregate for support requests.
//
// TicketNumber is allocated by the store sequence and is distinct from ID.
type Ticket struct {
	ID           string
	TicketNumber int64
	ReporterID   string
	AssigneeID   *string
	Title        string
	Body         string
	Status       string
	Type         string
	Category     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TicketView is a ticket joined with its reporter and assignee usernames.
type TicketView struct {
	Ticket
	ReporterUsername string
	AssigneeUsername *string
}
