package dto

import "time"

// CreateUserRequest payload.
type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	Active   *bool    `json:"active"`
}

// UpdateUserRequest payload. Password is optional; every other field is
// required.
type UpdateUserRequest struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Active   *bool    `json:"active"`
	Password string   `json:"password"`
}

// DeleteRequest carries the id of the record to remove.
type DeleteRequest struct {
	ID string `json:"id"`
}

// UserResponse never includes the password hash.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageResponse is the confirmation body for mutations.
type MessageResponse struct {
	Message string `json:"message"`
}
