package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserCreated   EventType = "user_created"
	EventUserUpdated   EventType = "user_updated"
	EventUserDeleted   EventType = "user_deleted"
	EventTicketCreated EventType = "ticket_created"
	EventTicketUpdated EventType = "ticket_updated"
	EventTicketDeleted EventType = "ticket_deleted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserPayload describes a user change.
type UserPayload struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	Active   bool     `json:"active"`
}

// TicketPayload describes a ticket change.
type TicketPayload struct {
	TicketNumber int64   `json:"ticket_number"`
	ReporterID   string  `json:"reporter_id"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	Category     string  `json:"category"`
}
