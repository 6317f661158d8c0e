package repository

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// checkID rejects identifiers that cannot name a row. Such ids resolve to
// nothing, so they surface as pgx.ErrNoRows rather than a cast error.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return pgx.ErrNoRows
	}
	return nil
}
