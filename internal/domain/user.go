package domain

import "time"

// User is a directory entry that can report tickets and be assigned to them.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasAnyRole reports whether the user carries one of the given role tags.
func (u *User) HasAnyRole(roles ...string) bool {
	for _, have := range u.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
