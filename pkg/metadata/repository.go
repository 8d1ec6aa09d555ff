// Package metadata persists the key/value pairs attached to stored files.
package metadata

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"filevault/pkg/database"
	"filevault/pkg/models"
)

// Repository persists file metadata.
type Repository interface {
	InsertAll(ctx context.Context, fileID int64, pairs map[string]string) error
	ListByFile(ctx context.Context, fileID int64) (map[string]string, error)
	ListByFiles(ctx context.Context, fileIDs []int64) (map[int64]map[string]string, error)
	DeleteByFile(ctx context.Context, fileID int64) (int64, error)
}

// SQLRepository is the relational Repository.
type SQLRepository struct {
	db database.DBTX
}

// NewSQLRepository binds a metadata repository to db.
func NewSQLRepository(db database.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

// InsertAll stores one row per pair, in key order.
func (r *SQLRepository) InsertAll(ctx context.Context, fileID int64, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := r.db.Rebind(`INSERT INTO file_metadata (stored_file_id, meta_key, meta_value) VALUES (?, ?, ?)`)
	for _, k := range keys {
		if _, err := r.db.ExecContext(ctx, query, fileID, k, pairs[k]); err != nil {
			return fmt.Errorf("%w: insert metadata %q: %w", database.ErrDatabaseError, k, err)
		}
	}
	return nil
}

// ListByFile returns the metadata of one file; a file without metadata
// yields an empty map.
func (r *SQLRepository) ListByFile(ctx context.Context, fileID int64) (map[string]string, error) {
	var rows []models.FileMetadata
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT id, stored_file_id, meta_key, meta_value FROM file_metadata WHERE stored_file_id = ? ORDER BY id`), fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: list metadata: %w", database.ErrDatabaseError, err)
	}

	out := make(map[string]string, len(rows))
	for _, m := range rows {
		out[m.Key] = m.Value
	}
	return out, nil
}

// ListByFiles loads the metadata of several files in one query. Every
// requested id is present in the result.
func (r *SQLRepository) ListByFiles(ctx context.Context, fileIDs []int64) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string, len(fileIDs))
	if len(fileIDs) == 0 {
		return out, nil
	}
	for _, id := range fileIDs {
		out[id] = map[string]string{}
	}

	query, args, err := sqlx.In(
		`SELECT id, stored_file_id, meta_key, meta_value FROM file_metadata WHERE stored_file_id IN (?) ORDER BY id`, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: build metadata query: %w", database.ErrDatabaseError, err)
	}

	var rows []models.FileMetadata
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%w: list metadata: %w", database.ErrDatabaseError, err)
	}
	for _, m := range rows {
		out[m.StoredFileID][m.Key] = m.Value
	}
	return out, nil
}

// DeleteByFile removes every pair of a file and reports how many were removed.
func (r *SQLRepository) DeleteByFile(ctx context.Context, fileID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM file_metadata WHERE stored_file_id = ?`), fileID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete metadata: %w", database.ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: delete metadata: %w", database.ErrDatabaseError, err)
	}
	return n, nil
}
