package dto

import "time"

// CreateTicketRequest payload. User is the reporter id.
type CreateTicketRequest struct {
	User         string  `json:"user"`
	AssignedUser *string `json:"assignedUser"`
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	Status       string  `json:"status"`
	Type         string  `json:"type"`
	Category     string  `json:"category"`
}

// UpdateTicketRequest payload. The reporter may be sent as contact or user;
// contact wins when both are present.
type UpdateTicketRequest struct {
	ID         string `json:"id"`
	Contact    string `json:"contact"`
	User       string `json:"user"`
	AssignedTo string `json:"assignedTo"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Status     string `json:"status"`
	Type       string `json:"type"`
	Category   string `json:"category"`
}

// Reporter returns the reporter id from whichever field was supplied.
func (r UpdateTicketRequest) Reporter() string {
	if r.Contact != "" {
		return r.Contact
	}
	return r.User
}

// TicketResponse is a ticket joined with reporter and assignee usernames.
type TicketResponse struct {
	ID               string    `json:"id"`
	TicketID         int64     `json:"ticketId"`
	User             string    `json:"user"`
	AssignedUser     *string   `json:"assignedUser"`
	Username         string    `json:"username"`
	AssignedUsername *string   `json:"assignedUsername,omitempty"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	Status           string    `json:"status"`
	Type             string    `json:"type"`
	Category         string    `json:"category"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// CreatedTicketResponse confirms creation with the allocated number.
type CreatedTicketResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	TicketID int64  `json:"ticketId"`
}
