package bucket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"filevault/pkg/database"
	"filevault/pkg/models"
)

// Repository persists storage buckets.
type Repository interface {
	FindByName(ctx context.Context, name string) (*models.StorageBucket, error)
	Create(ctx context.Context, b *models.StorageBucket) error
	List(ctx context.Context) ([]models.StorageBucket, error)
}

// SQLRepository is the relational Repository, usable with either a DB or a Tx.
type SQLRepository struct {
	db database.DBTX
}

// NewSQLRepository binds a bucket repository to db.
func NewSQLRepository(db database.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

// FindByName returns the bucket with the given name or ErrBucketNotFound.
func (r *SQLRepository) FindByName(ctx context.Context, name string) (*models.StorageBucket, error) {
	var b models.StorageBucket
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(
		`SELECT id, name, description, owner, created_at FROM storage_buckets WHERE name = ?`), name).
		StructScan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return &b, nil
}

// Create inserts b and sets its ID. A duplicate name yields ErrBucketExists.
func (r *SQLRepository) Create(ctx context.Context, b *models.StorageBucket) error {
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(
		`INSERT INTO storage_buckets (name, description, owner, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		b.Name, b.Description, b.Owner, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrBucketExists
		}
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// List returns every bucket ordered by name.
func (r *SQLRepository) List(ctx context.Context) ([]models.StorageBucket, error) {
	buckets := []models.StorageBucket{}
	err := r.db.SelectContext(ctx, &buckets,
		`SELECT id, name, description, owner, created_at FROM storage_buckets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return buckets, nil
}
