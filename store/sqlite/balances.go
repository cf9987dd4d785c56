package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `faculty_id, cycle_year,
	slot1_total, slot1_used, slot1_lapsed,
	slot2_total, slot2_used, slot2_lapsed,
	version, created_at, updated_at`

// GetBalance returns the committed balance of a faculty member.
func (s *Store) GetBalance(ctx context.Context, facultyID string) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadBalance(ctx, s.db, facultyID)
}

// ListBalances returns every balance ordered by faculty id.
func (s *Store) ListBalances(ctx context.Context) ([]*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+balanceColumns+" FROM leave_balances ORDER BY faculty_id")
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
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	bucketRows, err := s.db.QueryContext(ctx, "SELECT faculty_id, leave_type, allocated, used FROM leave_buckets")
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT faculty_id FROM leave_balances ORDER BY faculty_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LockBalance reads a balance inside the transaction. BEGIN IMMEDIATE
// already holds the database write lock, so no row lock is needed.
func (ts *txStore) LockBalance(ctx context.Context, facultyID string) (*leave.Balance, error) {
	return loadBalance(ctx, ts.tx, facultyID)
}

// InsertBalance stores a new balance at version 1.
func (ts *txStore) InsertBalance(ctx context.Context, b *leave.Balance) error {
	b.Version = 1
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.FacultyID, b.CycleYear,
		b.Slot1.Total.String(), b.Slot1.Used.String(), b.Slot1.Lapsed,
		b.Slot2.Total.String(), b.Slot2.Used.String(), b.Slot2.Lapsed,
		b.Version, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	return saveBuckets(ctx, ts.tx, b)
}

// UpdateBalance writes b if its version is current and bumps b.Version.
func (ts *txStore) UpdateBalance(ctx context.Context, b *leave.Balance) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE leave_balances SET
			cycle_year = ?,
			slot1_total = ?, slot1_used = ?, slot1_lapsed = ?,
			slot2_total = ?, slot2_used = ?, slot2_lapsed = ?,
			version = version + 1,
			updated_at = ?
		WHERE faculty_id = ? AND version = ?
	`,
		b.CycleYear,
		b.Slot1.Total.String(), b.Slot1.Used.String(), b.Slot1.Lapsed,
		b.Slot2.Total.String(), b.Slot2.Used.String(), b.Slot2.Lapsed,
		formatTime(b.UpdatedAt),
		b.FacultyID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.ErrConcurrentModification
	}
	if err := saveBuckets(ctx, ts.tx, b); err != nil {
		return err
	}
	b.Version++
	return nil
}

func saveBuckets(ctx context.Context, q querier, b *leave.Balance) error {
	for t, bucket := range b.Buckets {
		_, err := q.ExecContext(ctx, `
			INSERT INTO leave_buckets (faculty_id, leave_type, allocated, used)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(faculty_id, leave_type) DO UPDATE SET
				allocated = excluded.allocated,
				used = excluded.used
		`, b.FacultyID, string(t), bucket.Allocated.String(), bucket.Used.String())
		if err != nil {
			return fmt.Errorf("failed to save %s bucket: %w", t, err)
		}
	}
	return nil
}

func loadBalance(ctx context.Context, q querier, facultyID string) (*leave.Balance, error) {
	row := q.QueryRowContext(ctx, "SELECT "+balanceColumns+" FROM leave_balances WHERE faculty_id = ?", facultyID)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("balance", facultyID)
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, "SELECT leave_type, allocated, used FROM leave_buckets WHERE faculty_id = ?", facultyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var leaveType, allocated, used string
		if err := rows.Scan(&leaveType, &allocated, &used); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		b.Buckets[leave.Type(leaveType)] = leave.Bucket{
			Allocated: generic.MustParseDecimal(allocated),
			Used:      generic.MustParseDecimal(used),
		}
	}
	return b, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(row scanner) (*leave.Balance, error) {
	b := &leave.Balance{Buckets: make(map[leave.Type]leave.Bucket)}
	var (
		s1Total, s1Used      string
		s2Total, s2Used      string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&b.FacultyID, &b.CycleYear,
		&s1Total, &s1Used, &b.Slot1.Lapsed,
		&s2Total, &s2Used, &b.Slot2.Lapsed,
		&b.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}
	b.Slot1.Total = generic.MustParseDecimal(s1Total)
	b.Slot1.Used = generic.MustParseDecimal(s1Used)
	b.Slot2.Total = generic.MustParseDecimal(s2Total)
	b.Slot2.Used = generic.MustParseDecimal(s2Used)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}
