package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

var balanceColumns = []string{
	"faculty_id", "cycle_year",
	"slot1_total::text", "slot1_used::text", "slot1_lapsed",
	"slot2_total::text", "slot2_used::text", "slot2_lapsed",
	"version", "created_at", "updated_at",
}

// GetBalance returns the committed balance of a faculty member.
func (s *Store) GetBalance(ctx context.Context, facultyID string) (*leave.Balance, error) {
	return loadBalance(ctx, s.pool, s.sb, facultyID, false)
}

// ListBalances returns every balance ordered by faculty id.
func (s *Store) ListBalances(ctx context.Context) ([]*leave.Balance, error) {
	query, args, err := s.sb.Select(balanceColumns...).From("leave_balances").OrderBy("faculty_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build balances query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	var (
		balances []*leave.Balance
		byID     = make(map[string]*leave.Balance)
	)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		balances = append(balances, b)
		byID[b.FacultyID] = b
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bucketRows, err := s.pool.Query(ctx, "SELECT faculty_id, leave_type, allocated::text, used::text FROM leave_buckets")
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer bucketRows.Close()
	for bucketRows.Next() {
		var facultyID, leaveType, allocated, used string
		if err := bucketRows.Scan(&facultyID, &leaveType, &allocated, &used); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		if b, ok := byID[facultyID]; ok {
			b.Buckets[leave.Type(leaveType)] = leave.Bucket{
				Allocated: generic.MustParseDecimal(allocated),
				Used:      generic.MustParseDecimal(used),
			}
		}
	}
	return balances, bucketRows.Err()
}

// ListBalanceOwners returns the faculty ids that have a balance.
func (s *Store) ListBalanceOwners(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT faculty_id FROM leave_balances ORDER BY faculty_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// LockBalance reads a balance with SELECT ... FOR UPDATE.
func (ts *txStore) LockBalance(ctx context.Context, facultyID string) (*leave.Balance, error) {
	return loadBalance(ctx, ts.tx, ts.sb, facultyID, true)
}

// InsertBalance stores a new balance at version 1.
func (ts *txStore) InsertBalance(ctx context.Context, b *leave.Balance) error {
	b.Version = 1
	query, args, err := ts.sb.Insert("leave_balances").
		Columns("faculty_id", "cycle_year",
			"slot1_total", "slot1_used", "slot1_lapsed",
			"slot2_total", "slot2_used", "slot2_lapsed",
			"version", "created_at", "updated_at").
		Values(b.FacultyID, b.CycleYear,
			b.Slot1.Total.String(), b.Slot1.Used.String(), b.Slot1.Lapsed,
			b.Slot2.Total.String(), b.Slot2.Used.String(), b.Slot2.Lapsed,
			b.Version, b.CreatedAt, b.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build balance insert: %w", err)
	}
	if _, err := ts.tx.Exec(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return generic.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	return saveBuckets(ctx, ts.tx, b)
}

// UpdateBalance writes b if its version is current and bumps b.Version.
func (ts *txStore) UpdateBalance(ctx context.Context, b *leave.Balance) error {
	query, args, err := ts.sb.Update("leave_balances").
		Set("cycle_year", b.CycleYear).
		Set("slot1_total", b.Slot1.Total.String()).
		Set("slot1_used", b.Slot1.Used.String()).
		Set("slot1_lapsed", b.Slot1.Lapsed).
		Set("slot2_total", b.Slot2.Total.String()).
		Set("slot2_used", b.Slot2.Used.String()).
		Set("slot2_lapsed", b.Slot2.Lapsed).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", b.UpdatedAt).
		Where(sq.Eq{"faculty_id": b.FacultyID, "version": b.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build balance update: %w", err)
	}
	tag, err := ts.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrConcurrentModification
	}
	if err := saveBuckets(ctx, ts.tx, b); err != nil {
		return err
	}
	b.Version++
	return nil
}

func saveBuckets(ctx context.Context, q querier, b *leave.Balance) error {
	batch := &pgx.Batch{}
	for t, bucket := range b.Buckets {
		batch.Queue(`
			INSERT INTO leave_buckets (faculty_id, leave_type, allocated, used)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (faculty_id, leave_type) DO UPDATE SET
				allocated = EXCLUDED.allocated,
				used = EXCLUDED.used
		`, b.FacultyID, string(t), bucket.Allocated.String(), bucket.Used.String())
	}
	if batch.Len() == 0 {
		return nil
	}
	results := q.SendBatch(ctx, batch)
	defer results.Close()
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save bucket: %w", err)
		}
	}
	return nil
}

func loadBalance(ctx context.Context, q querier, sb sq.StatementBuilderType, facultyID string, lock bool) (*leave.Balance, error) {
	b := sb.Select(balanceColumns...).From("leave_balances").Where(sq.Eq{"faculty_id": facultyID})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build balance query: %w", err)
	}
	bal, err := scanBalance(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("balance", facultyID)
		}
		return nil, err
	}

	rows, err := q.Query(ctx,
		"SELECT leave_type, allocated::text, used::text FROM leave_buckets WHERE faculty_id = $1", facultyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var leaveType, allocated, used string
		if err := rows.Scan(&leaveType, &allocated, &used); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		bal.Buckets[leave.Type(leaveType)] = leave.Bucket{
			Allocated: generic.MustParseDecimal(allocated),
			Used:      generic.MustParseDecimal(used),
		}
	}
	return bal, rows.Err()
}

func scanBalance(row pgx.Row) (*leave.Balance, error) {
	b := &leave.Balance{Buckets: make(map[leave.Type]leave.Bucket)}
	var s1Total, s1Used, s2Total, s2Used string
	err := row.Scan(
		&b.FacultyID, &b.CycleYear,
		&s1Total, &s1Used, &b.Slot1.Lapsed,
		&s2Total, &s2Used, &b.Slot2.Lapsed,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}
	b.Slot1.Total = generic.MustParseDecimal(s1Total)
	b.Slot1.Used = generic.MustParseDecimal(s1Used)
	b.Slot2.Total = generic.MustParseDecimal(s2Total)
	b.Slot2.Used = generic.MustParseDecimal(s2Used)
	return b, nil
}
