package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

var applicationColumns = []string{
	"id", "faculty_id", "leave_type", "from_date", "to_date", "days::text",
	"reason", "contact_during_leave", "address_during_leave",
	"forward_to", "route", "target", "slot", "cycle_year", "status", "remarks", "acted_by",
	"balance_restored", "applied_at", "updated_at",
}

// GetApplication returns an application with its class adjustments.
func (s *Store) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	return loadApplication(ctx, s.pool, s.sb, id, false)
}

// ListApplications returns applications matching filter, newest first.
func (s *Store) ListApplications(ctx context.Context, filter leave.ApplicationFilter) ([]*leave.Application, error) {
	b := s.sb.Select(applicationColumns...).From("applications").OrderBy("applied_at DESC", "id")
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
		return nil, fmt.Errorf("failed to build applications query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	apps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*leave.Application, error) {
		return scanApplication(row)
	})
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return apps, nil
	}

	ids := make([]string, len(apps))
	byID := make(map[string]*leave.Application, len(apps))
	for i, app := range apps {
		ids[i] = app.ID
		byID[app.ID] = app
	}
	adjustments, err := loadAdjustments(ctx, s.pool, s.sb, ids)
	if err != nil {
		return nil, err
	}
	for _, adj := range adjustments {
		app := byID[adj.ApplicationID]
		app.Adjustments = append(app.Adjustments, adj)
	}
	return apps, nil
}

// GetApplication reads an application with SELECT ... FOR UPDATE.
func (ts *txStore) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	return loadApplication(ctx, ts.tx, ts.sb, id, true)
}

func (ts *txStore) InsertApplication(ctx context.Context, app *leave.Application) error {
	query, args, err := ts.sb.Insert("applications").
		Columns("id", "faculty_id", "leave_type", "from_date", "to_date", "days",
			"reason", "contact_during_leave", "address_during_leave",
			"forward_to", "route", "target", "slot", "cycle_year", "status", "remarks", "acted_by",
			"balance_restored", "applied_at", "updated_at").
		Values(app.ID, app.FacultyID, string(app.Type), app.FromDate.Time, app.ToDate.Time, app.Days.String(),
			nullable(app.Reason), nullable(app.ContactDuringLeave), nullable(app.AddressDuringLeave),
			nullable(app.ForwardTo), nullable(string(app.Route)), nullable(string(app.Target)),
			nullable(string(app.Slot)), app.CycleYear, string(app.Status), nullable(app.Remarks), nullable(app.ActedBy),
			app.BalanceRestored, app.AppliedAt, app.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build application insert: %w", err)
	}
	if _, err := ts.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// UpdateApplication writes the mutable workflow fields.
func (ts *txStore) UpdateApplication(ctx context.Context, app *leave.Application) error {
	query, args, err := ts.sb.Update("applications").
		Set("status", string(app.Status)).
		Set("remarks", nullable(app.Remarks)).
		Set("acted_by", nullable(app.ActedBy)).
		Set("balance_restored", app.BalanceRestored).
		Set("updated_at", app.UpdatedAt).
		Where(sq.Eq{"id": app.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build application update: %w", err)
	}
	tag, err := ts.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("application", app.ID)
	}
	return nil
}

func (ts *txStore) ReplaceAdjustments(ctx context.Context, applicationID string, adjustments []leave.ClassAdjustment) error {
	if _, err := ts.tx.Exec(ctx, "DELETE FROM class_adjustments WHERE application_id = $1", applicationID); err != nil {
		return fmt.Errorf("failed to clear class adjustments: %w", err)
	}
	if len(adjustments) == 0 {
		return nil
	}

	b := ts.sb.Insert("class_adjustments").
		Columns("id", "application_id", "position", "course", "branch", "semester",
			"subject", "class_timing", "concerned_teacher")
	for i, adj := range adjustments {
		b = b.Values(adj.ID, applicationID, i, adj.Course, adj.Branch, adj.Semester,
			adj.Subject, adj.ClassTiming, adj.ConcernedTeacher)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build class adjustment insert: %w", err)
	}
	if _, err := ts.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert class adjustments: %w", err)
	}
	return nil
}

// HasOverlap reports whether another application of the faculty member
// intersects [q.From, q.To] in one of q.Statuses.
func (ts *txStore) HasOverlap(ctx context.Context, q leave.OverlapQuery) (bool, error) {
	inner := ts.sb.Select("1").From("applications").
		Where(sq.Eq{"faculty_id": q.FacultyID}).
		Where(sq.LtOrEq{"from_date": q.To.Time}).
		Where(sq.GtOrEq{"to_date": q.From.Time})
	if q.ExcludeType != "" {
		inner = inner.Where(sq.NotEq{"leave_type": string(q.ExcludeType)})
	}
	if len(q.Statuses) > 0 {
		inner = inner.Where(sq.Eq{"status": statusStrings(q.Statuses)})
	}

	query, args, err := inner.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build overlap query: %w", err)
	}
	var exists bool
	if err := ts.tx.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return exists, nil
}

func loadApplication(ctx context.Context, q querier, sb sq.StatementBuilderType, id string, lock bool) (*leave.Application, error) {
	b := sb.Select(applicationColumns...).From("applications").Where(sq.Eq{"id": id})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build application query: %w", err)
	}
	app, err := scanApplication(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("application", id)
		}
		return nil, err
	}
	if app.Adjustments, err = loadAdjustments(ctx, q, sb, []string{app.ID}); err != nil {
		return nil, err
	}
	return app, nil
}

func loadAdjustments(ctx context.Context, q querier, sb sq.StatementBuilderType, applicationIDs []string) ([]leave.ClassAdjustment, error) {
	query, args, err := sb.Select("id", "application_id", "course", "branch", "semester",
		"subject", "class_timing", "concerned_teacher").
		From("class_adjustments").
		Where(sq.Eq{"application_id": applicationIDs}).
		OrderBy("application_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build class adjustment query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query class adjustments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.ClassAdjustment, error) {
		var (
			adj                                                leave.ClassAdjustment
			course, branch, semester, subject, timing, teacher *string
		)
		err := row.Scan(&adj.ID, &adj.ApplicationID, &course, &branch, &semester, &subject, &timing, &teacher)
		adj.Course = deref(course)
		adj.Branch = deref(branch)
		adj.Semester = deref(semester)
		adj.Subject = deref(subject)
		adj.ClassTiming = deref(timing)
		adj.ConcernedTeacher = deref(teacher)
		return adj, err
	})
}

func scanApplication(row pgx.Row) (*leave.Application, error) {
	var (
		app                                 leave.Application
		leaveType, days, status             string
		fromDate, toDate                    time.Time
		reason, contact, address, forwardTo *string
		route, target, slot                 *string
		remarks, actedBy                    *string
	)
	err := row.Scan(
		&app.ID, &app.FacultyID, &leaveType, &fromDate, &toDate, &days,
		&reason, &contact, &address,
		&forwardTo, &route, &target, &slot, &app.CycleYear, &status, &remarks, &actedBy,
		&app.BalanceRestored, &app.AppliedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	app.Type = leave.Type(leaveType)
	app.FromDate = generic.DateOf(fromDate)
	app.ToDate = generic.DateOf(toDate)
	app.Days = generic.MustParseDecimal(days)
	app.Reason = deref(reason)
	app.ContactDuringLeave = deref(contact)
	app.AddressDuringLeave = deref(address)
	app.ForwardTo = deref(forwardTo)
	app.Route = leave.Route(deref(route))
	app.Target = leave.Route(deref(target))
	app.Slot = leave.Slot(deref(slot))
	app.Status = leave.Status(status)
	app.Remarks = deref(remarks)
	app.ActedBy = deref(actedBy)
	return &app, nil
}

func statusStrings(statuses []leave.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
