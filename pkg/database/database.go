// Package database opens the relational store, runs its migrations and
// provides the transaction helper shared by every repository.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	// DriverSQLite selects the embedded SQLite backend.
	DriverSQLite = "sqlite"
	// DriverPostgres selects PostgreSQL through pgx.
	DriverPostgres = "postgres"

	pgxDriverName    = "pgx"
	sqliteDriverName = "sqlite"

	sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
)

// sqliteParams pairs each connection parameter with the name that marks it as
// already set in a caller supplied DSN.
var sqliteParams = []struct {
	name  string
	param string
}{
	{name: "foreign_keys", param: "_pragma=foreign_keys(1)"},
	{name: "busy_timeout", param: "_pragma=busy_timeout(5000)"},
	{name: "journal_mode", param: "_pragma=journal_mode(WAL)"},
	{name: "_txlock", param: "_txlock=immediate"},
}

func init() {
	// sqlx does not know the modernc driver name; it takes "?" placeholders.
	sqlx.BindDriver(sqliteDriverName, sqlx.QUESTION)
}

// Options describes how to reach the database.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DBTX is the query surface shared by *sqlx.DB and *sqlx.Tx, so repositories
// run unchanged inside or outside a transaction.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, opts Options) (*sqlx.DB, error) {
	var (
		driverName string
		dsn        string
	)

	switch opts.Driver {
	case DriverSQLite, "":
		driverName = sqliteDriverName
		dsn = SQLiteDSN(opts.DSN)
	case DriverPostgres:
		driverName = pgxDriverName
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if driverName == sqliteDriverName && strings.Contains(opts.DSN, ":memory:") {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to connect: %w", ErrDatabaseError, err)
	}

	return db, nil
}

// SQLiteDSN appends the connection pragmas the schema relies on. Parameters
// the caller already set are left as given; missing ones are added.
func SQLiteDSN(path string) string {
	base, query, _ := strings.Cut(path, "?")
	if query == "" {
		return base + "?" + sqlitePragmas
	}

	params := []string{query}
	for _, p := range sqliteParams {
		if !strings.Contains(query, p.name) {
			params = append(params, p.param)
		}
	}
	return base + "?" + strings.Join(params, "&")
}
