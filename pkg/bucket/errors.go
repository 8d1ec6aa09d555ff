package bucket

import (
	"errors"

	"filevault/pkg/database"
)

var (
	// ErrBucketExists is returned when attempting to create a bucket that already exists.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrBucketNotFound is returned when the requested bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidBucketName is returned when the bucket name does not meet naming requirements.
	ErrInvalidBucketName = errors.New("invalid bucket name")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = database.ErrDatabaseError
)
