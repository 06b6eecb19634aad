package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the scheduler.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// querier is the subset of *sql.DB and *sql.Tx the repositories need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Open initializes the database connection and creates tables if they don't exist.
func Open(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// BEGIN IMMEDIATE takes the write lock up front so the conflict check and
	// the insert that follows it cannot interleave with another writer.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: sqlDB, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS recurring_series (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_kind TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			recurrence_rule TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			series_start_date TEXT NOT NULL,
			series_end_date TEXT,
			max_advance_days INTEGER NOT NULL DEFAULT 90,
			status TEXT NOT NULL DEFAULT 'active',
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (series_end_date IS NULL OR series_end_date >= series_start_date)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL DEFAULT 'rehearsal',
			owner_kind TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			reserved_at DATETIME NOT NULL,
			reserved_until DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			hours_used TEXT NOT NULL DEFAULT '0',
			free_hours_used TEXT NOT NULL DEFAULT '0',
			cost_cents INTEGER NOT NULL DEFAULT 0,
			recurring_series_id INTEGER REFERENCES recurring_series(id),
			instance_date TEXT,
			title TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			payment_reference TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			CHECK (reserved_until > reserved_at)
		)`,

		`CREATE TABLE IF NOT EXISTS space_closures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL,
			closure_type TEXT NOT NULL DEFAULT 'other',
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			CHECK (ends_at > starts_at)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_window ON reservations(reserved_at, reserved_until)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_owner ON reservations(owner_kind, owner_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_series_date
			ON reservations(recurring_series_id, instance_date) WHERE recurring_series_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_event_block
			ON reservations(owner_id) WHERE kind = 'event'`,
		`CREATE INDEX IF NOT EXISTS idx_series_status ON recurring_series(status)`,
		`CREATE INDEX IF NOT EXISTS idx_closures_window ON space_closures(starts_at, ends_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_closures_holiday
			ON space_closures(starts_at) WHERE closure_type = 'holiday'`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// WithTx runs fn in a single write transaction carried by the context.
// Nested calls reuse the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (db *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.DB
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Backup writes a consistent snapshot of the database to dest.
func (db *DB) Backup(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if _, err := db.Exec(`VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.DB.Close()
}

// dbTime normalizes a timestamp for storage so string comparison in SQL
// matches chronological order.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
