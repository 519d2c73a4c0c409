package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DefaultBatchSize is the multi-row insert batch size.
const DefaultBatchSize = 1000

// Options configures Open.
type Options struct {
	// Driver selects the dialect: "sqlite" or "postgres".
	Driver string

	// Path is the sqlite database file. ":memory:" is allowed.
	Path string

	// DSN is the postgres connection string.
	DSN string

	BatchSize    int
	MaxOpenConns int
}

// SQLStore is the relational store behind every reference table.
type SQLStore struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
}

// Option customises a SQLStore built with New.
type Option func(*SQLStore)

// WithBatchSize sets the multi-row insert batch size.
func WithBatchSize(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New wraps an open database handle. Migrations are not run.
func New(db *sql.DB, d Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{db: db, dialect: d, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	d, ok := DialectFor(opts.Driver)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}

	var dsn string
	switch d.Name {
	case SQLite.Name:
		if opts.Path != ":memory:" {
			// Ensure parent directory exists
			if dir := filepath.Dir(opts.Path); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("create database directory: %w", err)
				}
			}
		}
		dsn = sqliteDSN(opts.Path)
	default:
		dsn = opts.DSN
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch {
	case d.Name == SQLite.Name && opts.Path == ":memory:":
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db, d); err != nil {
		db.Close()
		return nil, err
	}

	return New(db, d, WithBatchSize(opts.BatchSize)), nil
}

// sqliteDSN applies the pragmas every connection needs.
func sqliteDSN(path string) string {
	pragmas := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// SchemaVersion returns the applied migration version.
func (s *SQLStore) SchemaVersion() (int64, error) {
	return MigrationVersion(s.db, s.dialect)
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the backend dialect.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
