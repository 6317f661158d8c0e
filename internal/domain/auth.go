package domain

import "time"

// Token represents issued access token metadata.
type Token struct {
	Value     string
	SubjectID string
	Username  string
	Roles     []string
	ExpiresAt time.Time
}
