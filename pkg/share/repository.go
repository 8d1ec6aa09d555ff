package share

import (
	"context"
	"fmt"
	"time"

	"filevault/pkg/database"
)

// Repository persists share records.
type Repository interface {
	InsertAll(ctx context.Context, folderPath string, emails []string, at time.Time) error
	EmailsForFolder(ctx context.Context, folderPath string) ([]string, error)
}

// SQLRepository is the relational Repository.
type SQLRepository struct {
	db database.DBTX
}

// NewSQLRepository binds a share repository to db.
func NewSQLRepository(db database.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

// InsertAll stores one record per address, keeping duplicates.
func (r *SQLRepository) InsertAll(ctx context.Context, folderPath string, emails []string, at time.Time) error {
	query := r.db.Rebind(`INSERT INTO share_records (folder_path, email, created_at) VALUES (?, ?, ?)`)
	for _, email := range emails {
		if _, err := r.db.ExecContext(ctx, query, folderPath, email, at); err != nil {
			return fmt.Errorf("%w: insert share record: %w", database.ErrDatabaseError, err)
		}
	}
	return nil
}

// EmailsForFolder returns the addresses shared for exactly folderPath in
// insertion order.
func (r *SQLRepository) EmailsForFolder(ctx context.Context, folderPath string) ([]string, error) {
	emails := []string{}
	err := r.db.SelectContext(ctx, &emails, r.db.Rebind(
		`SELECT email FROM share_records WHERE folder_path = ? ORDER BY id`), folderPath)
	if err != nil {
		return nil, fmt.Errorf("%w: list share records: %w", database.ErrDatabaseError, err)
	}
	return emails, nil
}
