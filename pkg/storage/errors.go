package storage

import (
	"errors"

	"filevault/pkg/bucket"
	"filevault/pkg/files"
)

var (
	// ErrBucketNotFound is returned when an upload names an unknown bucket.
	ErrBucketNotFound = bucket.ErrBucketNotFound

	// ErrFileNotFound is returned when the file does not exist or belongs to another owner.
	ErrFileNotFound = files.ErrFileNotFound

	// ErrContentNotFound is returned when a file record exists but its bytes do not.
	ErrContentNotFound = errors.New("file content not found")

	// ErrIOFailure is returned when file bytes cannot be read or written.
	ErrIOFailure = errors.New("file content I/O failure")

	// ErrValidation is returned for malformed requests.
	ErrValidation = errors.New("validation failure")

	// ErrVersionConflict is returned when an expected version is stale.
	ErrVersionConflict = files.ErrVersionConflict
)
