package bucket

import (
	"context"
	"errors"
	"regexp"
	"time"

	"filevault/pkg/log"
	"filevault/pkg/models"
)

const (
	// bucketNameMinLength is the minimum length for a bucket name.
	bucketNameMinLength = 3
	// bucketNameMaxLength is the maximum length for a bucket name.
	bucketNameMaxLength = 63

	// DefaultDescription is attached to the bucket created at startup.
	DefaultDescription = "Default bucket created at startup."
)

// bucketNamePattern defines the valid format for bucket names.
// Bucket names must be 3-63 characters, lowercase alphanumeric, and can contain hyphens.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$|^[a-z0-9]{3}$`)

// ValidateBucketName checks if the bucket name is valid.
func ValidateBucketName(name string) error {
	if len(name) < bucketNameMinLength || len(name) > bucketNameMaxLength {
		return ErrInvalidBucketName
	}
	if !bucketNamePattern.MatchString(name) {
		return ErrInvalidBucketName
	}
	return nil
}

// Registry looks up and creates buckets.
type Registry struct {
	repo Repository
	now  func() time.Time
}

// NewRegistry creates a Registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// FindByName returns the named bucket or ErrBucketNotFound.
func (r *Registry) FindByName(ctx context.Context, name string) (*models.StorageBucket, error) {
	return r.repo.FindByName(ctx, name)
}

// Create validates the name and creates a bucket owned by owner.
func (r *Registry) Create(ctx context.Context, name, description, owner string) (*models.StorageBucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return nil, err
	}

	b := &models.StorageBucket{
		Name:        name,
		Description: description,
		Owner:       owner,
		CreatedAt:   r.now(),
	}
	if err := r.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	log.Info().Str("bucket", name).Str("owner", owner).Int64("bucket_id", b.ID).Msg("Bucket created")
	return b, nil
}

// List returns all buckets.
func (r *Registry) List(ctx context.Context) ([]models.StorageBucket, error) {
	return r.repo.List(ctx)
}

// EnsureDefault makes sure the named bucket exists. An existing bucket,
// including one created concurrently by another instance, is returned as is.
func (r *Registry) EnsureDefault(ctx context.Context, name, owner string) (*models.StorageBucket, error) {
	existing, err := r.repo.FindByName(ctx, name)
	if err == nil {
		log.Info().Str("bucket", name).Msg("Default bucket already exists")
		return existing, nil
	}
	if !errors.Is(err, ErrBucketNotFound) {
		return nil, err
	}

	created, err := r.Create(ctx, name, DefaultDescription, owner)
	if errors.Is(err, ErrBucketExists) {
		log.Info().Str("bucket", name).Msg("Default bucket created concurrently, reusing it")
		return r.repo.FindByName(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("bucket", name).Msg("Default bucket created")
	return created, nil
}
