/*
Package sqlite provides a SQLite-backed implementation of the leave storage.

PURPOSE:
  Single-file (or in-memory) persistence for development, the CLI and the
  test suite. Production deployments use store/postgres; both implement
  the same interfaces and keep the same schema shape.

INTERFACES IMPLEMENTED:
  leave.Store:    Balances, applications, lapse runs, WithTx
  leave.Tx:       The transaction-scoped view handed to WithTx callbacks
  generic.Store:  Balance journal (append-only)
  leave.Directory, notify.Store, holidays.Source

KEY TABLES:
  leave_balances:    One row per faculty member (casual slots, version)
  leave_buckets:     Allocated/used per flat leave type
  applications:      Leave requests and their workflow status
  class_adjustments: Substitute teaching for an application
  balance_journal:   Immutable record of every balance change
  lapse_runs:        One row per lapsed casual slot
  faculty, holidays, notifications

CONCURRENCY:
  SQLite allows one writer at a time. Every WithTx call holds the store's
  write lock and opens the transaction with BEGIN IMMEDIATE (_txlock), so
  read-modify-write on a balance is serialised. Reads take the read lock.
  Code running inside WithTx must only use the Tx it was given.

DECIMALS:
  Day counts are stored as TEXT and parsed with shopspring/decimal, so
  half days survive the round trip exactly.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      return err
  }
  defer store.Close()

  svc := leave.NewService(store, logger)

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/postgres: Production implementation
  - generic/store/memory.go: In-memory journal for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

const timeLayout = time.RFC3339Nano

// Store implements the leave storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ leave.Store   = (*Store)(nil)
	_ leave.Tx      = (*txStore)(nil)
	_ generic.Store = (*Store)(nil)
	_ generic.Store = (*txJournal)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS faculty (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department TEXT,
		role TEXT NOT NULL DEFAULT 'faculty',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_balances (
		faculty_id TEXT PRIMARY KEY,
		cycle_year INTEGER NOT NULL,
		slot1_total TEXT NOT NULL,
		slot1_used TEXT NOT NULL,
		slot1_lapsed INTEGER NOT NULL DEFAULT 0,
		slot2_total TEXT NOT NULL,
		slot2_used TEXT NOT NULL,
		slot2_lapsed INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_buckets (
		faculty_id TEXT NOT NULL REFERENCES leave_balances(faculty_id) ON DELETE CASCADE,
		leave_type TEXT NOT NULL,
		allocated TEXT NOT NULL,
		used TEXT NOT NULL,
		PRIMARY KEY (faculty_id, leave_type)
	);

	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		faculty_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		days TEXT NOT NULL,
		reason TEXT,
		contact_during_leave TEXT,
		address_during_leave TEXT,
		forward_to TEXT,
		route TEXT,
		target TEXT,
		slot TEXT,
		cycle_year INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		remarks TEXT,
		acted_by TEXT,
		balance_restored INTEGER NOT NULL DEFAULT 0,
		applied_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_faculty_dates
		ON applications(faculty_id, from_date, to_date);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON applications(status);

	CREATE TABLE IF NOT EXISTS class_adjustments (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		course TEXT,
		branch TEXT,
		semester TEXT,
		subject TEXT,
		class_timing TEXT,
		concerned_teacher TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_class_adjustments_application
		ON class_adjustments(application_id);

	-- Balance journal (append-only)
	CREATE TABLE IF NOT EXISTS balance_journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		entity_id TEXT NOT NULL,
		bucket_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_journal_entity_bucket
		ON balance_journal(entity_id, bucket_id);

	CREATE TABLE IF NOT EXISTS lapse_runs (
		id TEXT PRIMARY KEY,
		faculty_id TEXT NOT NULL,
		cycle_year INTEGER NOT NULL,
		slot TEXT NOT NULL,
		forfeited TEXT NOT NULL,
		forced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE(date, name)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx leave.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Journal() generic.Store {
	return &txJournal{tx: ts.tx}
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseDate(s string) generic.TimePoint {
	tp, _ := generic.ParseDate(s)
	return tp
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", leave.ErrNotFound, what, id)
}
