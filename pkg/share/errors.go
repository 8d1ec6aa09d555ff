package share

import "errors"

var (
	// ErrUnavailable is returned when the share store is failing and calls
	// are being rejected.
	ErrUnavailable = errors.New("sharing temporarily unavailable")

	// ErrValidation is returned for an empty folder path or address list.
	ErrValidation = errors.New("invalid share request")
)
