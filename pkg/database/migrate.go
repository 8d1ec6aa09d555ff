package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"filevault/pkg/log"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// gooseLogger routes goose output through the process logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Info().Str("component", "migrate").Msgf(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatal().Str("component", "migrate").Msgf(format, v...)
}

// Migrate applies the embedded migrations for the dialect of db.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if db.DriverName() == pgxDriverName {
		dialect, dir = "postgres", "migrations/postgres"
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("%w: set dialect %s: %w", ErrDatabaseError, dialect, err)
	}

	if err := gooseUpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrDatabaseError, err)
	}
	return nil
}
