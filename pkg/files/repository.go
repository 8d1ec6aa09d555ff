// Package files persists stored file records. Every read and write is
// scoped to an owner; a file owned by someone else is reported missing.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filevault/pkg/database"
	"filevault/pkg/models"
)

const selectFile = `SELECT f.id, f.bucket_id, b.name AS bucket_name, f.filename, f.size, f.content_type,
       f.storage_path, f.owner, f.version, f.created_at, f.updated_at
  FROM stored_files f
  JOIN storage_buckets b ON b.id = f.bucket_id`

// Repository persists stored file records.
type Repository interface {
	Insert(ctx context.Context, f *models.StoredFile) error
	GetByIDForOwner(ctx context.Context, id int64, owner string) (*models.StoredFile, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.StoredFile, error)
	CountByOwner(ctx context.Context, owner string) (int64, error)
	Touch(ctx context.Context, id int64, owner string, expectedVersion int64, at time.Time) (int64, error)
	DeleteForOwner(ctx context.Context, id int64, owner string) error
}

// SQLRepository is the relational Repository.
type SQLRepository struct {
	db database.DBTX
}

// NewSQLRepository binds a file repository to db.
func NewSQLRepository(db database.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

// Insert stores f with version 1 and sets its ID.
func (r *SQLRepository) Insert(ctx context.Context, f *models.StoredFile) error {
	if f.Version == 0 {
		f.Version = 1
	}
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(
		`INSERT INTO stored_files (bucket_id, filename, size, content_type, storage_path, owner, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		f.BucketID, f.Filename, f.Size, f.ContentType, f.StoragePath, f.Owner, f.Version, f.CreatedAt, f.UpdatedAt,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("%w: insert file: %w", ErrDatabaseError, err)
	}
	return nil
}

// GetByIDForOwner returns the file if it exists and belongs to owner.
func (r *SQLRepository) GetByIDForOwner(ctx context.Context, id int64, owner string) (*models.StoredFile, error) {
	var f models.StoredFile
	err := r.db.GetContext(ctx, &f, r.db.Rebind(selectFile+` WHERE f.id = ? AND f.owner = ?`), id, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get file: %w", ErrDatabaseError, err)
	}
	return &f, nil
}

// ListByOwner returns one page of owner's files, oldest first.
func (r *SQLRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.StoredFile, error) {
	out := []models.StoredFile{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(
		selectFile+` WHERE f.owner = ? ORDER BY f.id LIMIT ? OFFSET ?`), owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %w", ErrDatabaseError, err)
	}
	return out, nil
}

// CountByOwner returns how many files owner has.
func (r *SQLRepository) CountByOwner(ctx context.Context, owner string) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM stored_files WHERE owner = ?`), owner)
	if err != nil {
		return 0, fmt.Errorf("%w: count files: %w", ErrDatabaseError, err)
	}
	return n, nil
}

// Touch sets updated_at and bumps the version, returning the new version.
// A non-zero expectedVersion must match the stored one or ErrVersionConflict
// is returned.
func (r *SQLRepository) Touch(ctx context.Context, id int64, owner string, expectedVersion int64, at time.Time) (int64, error) {
	query := `UPDATE stored_files SET updated_at = ?, version = version + 1 WHERE id = ? AND owner = ?`
	args := []any{at, id, owner}
	if expectedVersion > 0 {
		query += ` AND version = ?`
		args = append(args, expectedVersion)
	}

	var version int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(query+` RETURNING version`), args...).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if expectedVersion > 0 {
			return 0, ErrVersionConflict
		}
		return 0, ErrFileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: touch file: %w", ErrDatabaseError, err)
	}
	return version, nil
}

// DeleteForOwner removes the record. Zero affected rows means the file was
// missing or already deleted by a concurrent request.
func (r *SQLRepository) DeleteForOwner(ctx context.Context, id int64, owner string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM stored_files WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return fmt.Errorf("%w: delete file: %w", ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete file: %w", ErrDatabaseError, err)
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}
