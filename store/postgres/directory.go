package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/holidays"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/notify"
)

// =============================================================================
// FACULTY DIRECTORY
// =============================================================================

// SaveFaculty inserts or updates a faculty record.
func (s *Store) SaveFaculty(ctx context.Context, f leave.Faculty) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	query, args, err := s.sb.Insert("faculty").
		Columns("id", "name", "email", "department", "role", "created_at").
		Values(f.ID, f.Name, nullable(f.Email), nullable(f.Department), string(f.Role), f.CreatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			department = EXCLUDED.department,
			role = EXCLUDED.role`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build faculty upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save faculty: %w", err)
	}
	return nil
}

// GetFaculty returns a faculty record or leave.ErrNotFound.
func (s *Store) GetFaculty(ctx context.Context, id string) (*leave.Faculty, error) {
	query, args, err := s.sb.Select("id", "name", "email", "department", "role", "created_at").
		From("faculty").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build faculty query: %w", err)
	}
	f, err := scanFaculty(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("faculty", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get faculty: %w", err)
	}
	return &f, nil
}

// ListFaculty returns every faculty record ordered by name.
func (s *Store) ListFaculty(ctx context.Context) ([]leave.Faculty, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, email, department, role, created_at FROM faculty ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query faculty: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.Faculty, error) {
		return scanFaculty(row)
	})
}

func scanFaculty(row pgx.Row) (leave.Faculty, error) {
	var (
		f                 leave.Faculty
		email, department *string
		role              string
	)
	if err := row.Scan(&f.ID, &f.Name, &email, &department, &role, &f.CreatedAt); err != nil {
		return f, err
	}
	f.Email = deref(email)
	f.Department = deref(department)
	f.Role = leave.Role(role)
	return f, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday stores a holiday. Saving the same date and name again only
// updates the recurring flag.
func (s *Store) SaveHoliday(ctx context.Context, h holidays.Holiday) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO holidays (id, date, name, recurring)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date, name) DO UPDATE SET recurring = EXCLUDED.recurring
	`, h.ID, h.Date.Time, h.Name, h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM holidays WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("holiday", id)
	}
	return nil
}

// ListHolidays returns every holiday ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]holidays.Holiday, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, date, name, recurring FROM holidays ORDER BY date, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (holidays.Holiday, error) {
		var (
			h    holidays.Holiday
			date time.Time
		)
		err := row.Scan(&h.ID, &date, &h.Name, &h.Recurring)
		h.Date = generic.DateOf(date)
		return h, err
	})
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// SaveNotification stores a notification.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, title, body, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.UserID, n.Title, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notify.Notification, error) {
	b := s.sb.Select("id", "user_id", "title", "body", "is_read", "created_at").
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id")
	if unreadOnly {
		b = b.Where(sq.Eq{"is_read": false})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build notification query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notify.Notification, error) {
		var n notify.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Read, &n.CreatedAt)
		return n, err
	})
}

// MarkNotificationRead flags a notification as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE notifications SET is_read = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("notification", id)
	}
	return nil
}

// =============================================================================
// LAPSE RUNS
// =============================================================================

func (ts *txStore) InsertLapseRun(ctx context.Context, run leave.LapseRun) error {
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO lapse_runs (id, faculty_id, cycle_year, slot, forfeited, forced, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.FacultyID, run.CycleYear, string(run.Slot), run.Forfeited.String(), run.Forced, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record lapse: %w", err)
	}
	return nil
}

// ListLapseRuns returns recorded lapses, newest first. limit <= 0 means all.
func (s *Store) ListLapseRuns(ctx context.Context, limit int) ([]leave.LapseRun, error) {
	b := s.sb.Select("id", "faculty_id", "cycle_year", "slot", "forfeited::text", "forced", "created_at").
		From("lapse_runs").
		OrderBy("created_at DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build lapse run query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapse runs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.LapseRun, error) {
		var (
			run             leave.LapseRun
			slot, forfeited string
		)
		err := row.Scan(&run.ID, &run.FacultyID, &run.CycleYear, &slot, &forfeited, &run.Forced, &run.CreatedAt)
		run.Slot = leave.Slot(slot)
		run.Forfeited = generic.MustParseDecimal(forfeited)
		return run, err
	})
}
