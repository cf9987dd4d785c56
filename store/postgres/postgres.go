/*
Package postgres provides the PostgreSQL implementation of the leave storage.

PURPOSE:
  Production persistence. Same interfaces as store/sqlite, but concurrency
  is handled by the database: balances and applications are read with
  SELECT ... FOR UPDATE inside WithTx, and the version column rejects
  stale writes that slip past the row lock.

STACK:
  pgxpool:         Connection pool
  squirrel:        Query building with $n placeholders
  golang-migrate:  Versioned schema in migrations/ (embedded)

NUMERIC COLUMNS:
  Day counts are NUMERIC(6,2). They are selected as ::text and parsed with
  shopspring/decimal so no value passes through float64.

SEE ALSO:
  - store/sqlite: Embedded implementation with the same schema shape
  - migrate.go: Schema migrations
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

// Store implements the leave storage interfaces on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

var (
	_ leave.Store   = (*Store)(nil)
	_ leave.Tx      = (*txStore)(nil)
	_ generic.Store = (*journal)(nil)
)

// New connects to dsn.
func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewFromPool(pool), nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WithTx runs fn in a read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx leave.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx, sb: s.sb}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
	sb sq.StatementBuilderType
}

func (ts *txStore) Journal() generic.Store {
	return &journal{q: ts.tx, sb: ts.sb, inTx: true}
}

// Journal returns the committed balance journal.
func (s *Store) Journal() generic.Store {
	return &journal{q: s.pool, sb: s.sb, begin: s.pool}
}

// =============================================================================
// HELPERS
// =============================================================================

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", leave.ErrNotFound, what, id)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
