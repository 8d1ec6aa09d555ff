package files

import (
	"errors"

	"filevault/pkg/database"
)

var (
	// ErrFileNotFound is returned when no file with the given id belongs to the caller.
	ErrFileNotFound = errors.New("file not found")

	// ErrVersionConflict is returned when an expected version no longer matches.
	ErrVersionConflict = errors.New("file version conflict")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = database.ErrDatabaseError
)
