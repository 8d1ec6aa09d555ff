// Package content defines where uploaded bytes live. Implementations are
// keyed by the storage path recorded on each stored file.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrContentNotFound is returned when no content exists under a key.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("invalid content key")
)

// Store reads and writes file content by key.
type Store interface {
	// Put stores size bytes read from r under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get opens the content under key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the content under key, ErrContentNotFound if absent.
	Delete(ctx context.Context, key string) error
	// Exists reports whether content is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// NewKey returns a fresh storage path of the form files/YYYY/MM/DD/<uuid>.
func NewKey(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("files/%04d/%02d/%02d/%s", now.Year(), int(now.Month()), now.Day(), uuid.NewString())
}

// ValidateKey rejects keys that are empty, absolute or contain ".." segments.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
