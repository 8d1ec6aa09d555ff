package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")

	// ErrUnsupportedDriver is returned for a driver name other than sqlite or postgres.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure on
// either supported backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
