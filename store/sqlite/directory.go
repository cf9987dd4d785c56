package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO faculty (id, name, email, department, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			role = excluded.role
	`, f.ID, f.Name, nullString(f.Email), nullString(f.Department), string(f.Role), formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save faculty: %w", err)
	}
	return nil
}

// GetFaculty returns a faculty record or leave.ErrNotFound.
func (s *Store) GetFaculty(ctx context.Context, id string) (*leave.Faculty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, department, role, created_at FROM faculty WHERE id = ?", id)
	f, err := scanFaculty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("faculty", id)
	}
	return f, err
}

// ListFaculty returns every faculty record ordered by name.
func (s *Store) ListFaculty(ctx context.Context) ([]leave.Faculty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, department, role, created_at FROM faculty ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query faculty: %w", err)
	}
	defer rows.Close()

	var out []leave.Faculty
	for rows.Next() {
		f, err := scanFaculty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFaculty(row scanner) (*leave.Faculty, error) {
	var (
		f                 leave.Faculty
		email, department sql.NullString
		role, createdAt   string
	)
	if err := row.Scan(&f.ID, &f.Name, &email, &department, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan faculty: %w", err)
	}
	f.Email = email.String
	f.Department = department.String
	f.Role = leave.Role(role)
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday stores a holiday. Saving the same date and name again only
// updates the recurring flag.
func (s *Store) SaveHoliday(ctx context.Context, h holidays.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET
			recurring = excluded.recurring
	`, h.ID, h.Date.String(), h.Name, h.Recurring, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("holiday", id)
	}
	return nil
}

// ListHolidays returns every holiday ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]holidays.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, date, name, recurring FROM holidays ORDER BY date, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []holidays.Holiday
	for rows.Next() {
		var (
			h    holidays.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		h.Date = parseDate(date)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// SaveNotification stores a notification.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, body, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Title, n.Body, n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, user_id, title, body, is_read, created_at FROM notifications WHERE user_id = ?"
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		var (
			n         notify.Notification
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("notification", id)
	}
	return nil
}

// =============================================================================
// LAPSE RUNS
// =============================================================================

func (ts *txStore) InsertLapseRun(ctx context.Context, run leave.LapseRun) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO lapse_runs (id, faculty_id, cycle_year, slot, forfeited, forced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.FacultyID, run.CycleYear, string(run.Slot), run.Forfeited.String(), run.Forced, formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record lapse: %w", err)
	}
	return nil
}

// ListLapseRuns returns recorded lapses, newest first. limit <= 0 means all.
func (s *Store) ListLapseRuns(ctx context.Context, limit int) ([]leave.LapseRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, faculty_id, cycle_year, slot, forfeited, forced, created_at FROM lapse_runs ORDER BY created_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapse runs: %w", err)
	}
	defer rows.Close()

	var out []leave.LapseRun
	for rows.Next() {
		var (
			run                 leave.LapseRun
			slot, forfeited, at string
		)
		if err := rows.Scan(&run.ID, &run.FacultyID, &run.CycleYear, &slot, &forfeited, &run.Forced, &at); err != nil {
			return nil, fmt.Errorf("failed to scan lapse run: %w", err)
		}
		run.Slot = leave.Slot(slot)
		run.Forfeited = generic.MustParseDecimal(forfeited)
		run.CreatedAt = parseTime(at)
		out = append(out, run)
	}
	return out, rows.Err()
}
