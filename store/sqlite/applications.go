package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

// =============================================================================
// APPLICATIONS
// =============================================================================

var applicationColumns = []string{
	"id", "faculty_id", "leave_type", "from_date", "to_date", "days",
	"reason", "contact_during_leave", "address_during_leave",
	"forward_to", "route", "target", "slot", "cycle_year", "status", "remarks", "acted_by",
	"balance_restored", "applied_at", "updated_at",
}

// GetApplication returns an application with its class adjustments.
func (s *Store) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadApplication(ctx, s.db, id)
}

// ListApplications returns applications matching filter, newest first.
func (s *Store) ListApplications(ctx context.Context, filter leave.ApplicationFilter) ([]*leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := sq.Select(applicationColumns...).From("applications").OrderBy("applied_at DESC", "id")
	if filter.FacultyID != "" {
		b = b.Where(sq.Eq{"faculty_id": filter.FacultyID})
	}
	if len(filter.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if filter.Limit > 0 {
		b = b.Limit(uint64(filter.Limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	apps, err := queryApplications(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		if app.Adjustments, err = loadAdjustments(ctx, s.db, app.ID); err != nil {
			return nil, err
		}
	}
	return apps, nil
}

func (ts *txStore) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	return loadApplication(ctx, ts.tx, id)
}

func (ts *txStore) InsertApplication(ctx context.Context, app *leave.Application) error {
	query, args, err := sq.Insert("applications").
		Columns(applicationColumns...).
		Values(applicationValues(app)...).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := ts.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// UpdateApplication writes the mutable workflow fields.
func (ts *txStore) UpdateApplication(ctx context.Context, app *leave.Application) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE applications SET
			status = ?, remarks = ?, acted_by = ?, balance_restored = ?, updated_at = ?
		WHERE id = ?
	`, string(app.Status), nullString(app.Remarks), nullString(app.ActedBy),
		app.BalanceRestored, formatTime(app.UpdatedAt), app.ID)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("application", app.ID)
	}
	return nil
}

func (ts *txStore) ReplaceAdjustments(ctx context.Context, applicationID string, adjustments []leave.ClassAdjustment) error {
	if _, err := ts.tx.ExecContext(ctx, "DELETE FROM class_adjustments WHERE application_id = ?", applicationID); err != nil {
		return fmt.Errorf("failed to clear class adjustments: %w", err)
	}
	for _, adj := range adjustments {
		_, err := ts.tx.ExecContext(ctx, `
			INSERT INTO class_adjustments
			(id, application_id, course, branch, semester, subject, class_timing, concerned_teacher)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, adj.ID, applicationID, adj.Course, adj.Branch, adj.Semester,
			adj.Subject, adj.ClassTiming, adj.ConcernedTeacher)
		if err != nil {
			return fmt.Errorf("failed to insert class adjustment: %w", err)
		}
	}
	return nil
}

// HasOverlap reports whether another application of the faculty member
// intersects [q.From, q.To] in one of q.Statuses.
func (ts *txStore) HasOverlap(ctx context.Context, q leave.OverlapQuery) (bool, error) {
	b := sq.Select("1").From("applications").
		Where(sq.Eq{"faculty_id": q.FacultyID}).
		Where(sq.LtOrEq{"from_date": q.To.String()}).
		Where(sq.GtOrEq{"to_date": q.From.String()}).
		Limit(1)
	if q.ExcludeType != "" {
		b = b.Where(sq.NotEq{"leave_type": string(q.ExcludeType)})
	}
	if len(q.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": statusStrings(q.Statuses)})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = ts.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return true, nil
}

func loadApplication(ctx context.Context, q querier, id string) (*leave.Application, error) {
	query, args, err := sq.Select(applicationColumns...).From("applications").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	app, err := scanApplication(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("application", id)
		}
		return nil, err
	}
	if app.Adjustments, err = loadAdjustments(ctx, q, app.ID); err != nil {
		return nil, err
	}
	return app, nil
}

// queryApplications reads every row before returning so callers can issue
// follow-up queries on the same connection.
func queryApplications(ctx context.Context, q querier, query string, args ...any) ([]*leave.Application, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*leave.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func loadAdjustments(ctx context.Context, q querier, applicationID string) ([]leave.ClassAdjustment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, application_id, course, branch, semester, subject, class_timing, concerned_teacher
		FROM class_adjustments WHERE application_id = ? ORDER BY rowid
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query class adjustments: %w", err)
	}
	defer rows.Close()

	var out []leave.ClassAdjustment
	for rows.Next() {
		var adj leave.ClassAdjustment
		var course, branch, semester, subject, timing, teacher sql.NullString
		if err := rows.Scan(&adj.ID, &adj.ApplicationID, &course, &branch, &semester, &subject, &timing, &teacher); err != nil {
			return nil, fmt.Errorf("failed to scan class adjustment: %w", err)
		}
		adj.Course = course.String
		adj.Branch = branch.String
		adj.Semester = semester.String
		adj.Subject = subject.String
		adj.ClassTiming = timing.String
		adj.ConcernedTeacher = teacher.String
		out = append(out, adj)
	}
	return out, rows.Err()
}

func applicationValues(app *leave.Application) []any {
	return []any{
		app.ID, app.FacultyID, string(app.Type),
		app.FromDate.String(), app.ToDate.String(), app.Days.String(),
		nullString(app.Reason), nullString(app.ContactDuringLeave), nullString(app.AddressDuringLeave),
		nullString(app.ForwardTo), nullString(string(app.Route)), nullString(string(app.Target)),
		nullString(string(app.Slot)), app.CycleYear, string(app.Status), nullString(app.Remarks), nullString(app.ActedBy),
		app.BalanceRestored, formatTime(app.AppliedAt), formatTime(app.UpdatedAt),
	}
}

func scanApplication(row scanner) (*leave.Application, error) {
	var (
		app                                 leave.Application
		leaveType, fromDate, toDate, days   string
		status, appliedAt, updatedAt        string
		reason, contact, address, forwardTo sql.NullString
		route, target, slot                 sql.NullString
		remarks, actedBy                    sql.NullString
	)
	err := row.Scan(
		&app.ID, &app.FacultyID, &leaveType, &fromDate, &toDate, &days,
		&reason, &contact, &address,
		&forwardTo, &route, &target, &slot, &app.CycleYear, &status, &remarks, &actedBy,
		&app.BalanceRestored, &appliedAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	app.Type = leave.Type(leaveType)
	app.FromDate = parseDate(fromDate)
	app.ToDate = parseDate(toDate)
	app.Days = generic.MustParseDecimal(days)
	app.Reason = reason.String
	app.ContactDuringLeave = contact.String
	app.AddressDuringLeave = address.String
	app.ForwardTo = forwardTo.String
	app.Route = leave.Route(route.String)
	app.Target = leave.Route(target.String)
	app.Slot = leave.Slot(slot.String)
	app.Status = leave.Status(status)
	app.Remarks = remarks.String
	app.ActedBy = actedBy.String
	app.AppliedAt = parseTime(appliedAt)
	app.UpdatedAt = parseTime(updatedAt)
	return &app, nil
}

func statusStrings(statuses []leave.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
