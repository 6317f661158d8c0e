package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories translate into domain failures.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	notNullViolation    = "23502"
	checkViolation      = "23514"
	invalidTextRepr     = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a duplicate key error.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == uniqueViolation
}

// IsConstraintRejection reports errors where the store refused the row
// itself: broken references, missing required columns, failed checks or
// malformed values.
func IsConstraintRejection(err error) bool {
	switch pgCode(err) {
	case foreignKeyViolation, notNullViolation, checkViolation, invalidTextRepr:
		return true
	}
	return false
}
