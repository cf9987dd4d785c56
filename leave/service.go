package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/generic"
)

// =============================================================================
// SERVICE - Submission and approval with transactional guarantees
// =============================================================================

// Service runs the leave workflow against a Store.
//
// Every operation that touches a balance runs in one Store.WithTx:
// balance update, application write and journal entry commit together.
// Optimistic-lock conflicts are retried up to MaxRetries times.
// Notifications go out after commit and never fail the operation.
type Service struct {
	Store       Store
	Calendar    HolidayCalendar
	Notifier    Notifier     // optional
	Roles       RoleResolver // optional; needed by ActAs and id-valued forward_to
	Allocations Allocations
	Logger      *zap.Logger
	Now         func() time.Time
	MaxRetries  int
}

// NewService creates a service with default allocations, no holidays and
// the wall clock.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:       store,
		Calendar:    NoHolidays,
		Allocations: DefaultAllocations(),
		Logger:      logger.Named("leave"),
		Now:         time.Now,
		MaxRetries:  3,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) withRetry(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		err = s.Store.WithTx(ctx, fn)
		if !generic.IsRetryable(err) {
			return err
		}
		s.Logger.Debug("retrying after concurrent modification", zap.Int("attempt", attempt+1))
	}
	return err
}

func (s *Service) notify(ctx context.Context, userID, title, body string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userID, title, body); err != nil {
		s.Logger.Warn("notification failed",
			zap.String("user_id", userID),
			zap.String("title", title),
			zap.Error(err))
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// EnsureBalance returns the faculty member's balance, creating it with the
// configured allocations if it does not exist yet.
func (s *Service) EnsureBalance(ctx context.Context, facultyID string) (*Balance, error) {
	var out *Balance
	err := s.withRetry(ctx, func(tx Tx) error {
		b, err := s.lockOrCreateBalance(ctx, tx, facultyID)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// Balance returns the committed balance.
func (s *Service) Balance(ctx context.Context, facultyID string) (*Balance, error) {
	return s.Store.GetBalance(ctx, facultyID)
}

func (s *Service) lockOrCreateBalance(ctx context.Context, tx Tx, facultyID string) (*Balance, error) {
	b, err := tx.LockBalance(ctx, facultyID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	b = NewBalance(facultyID, CycleFor(generic.DateOf(now)), s.Allocations)
	b.CreatedAt, b.UpdatedAt = now, now
	if err := tx.InsertBalance(ctx, b); err != nil {
		return nil, err
	}

	opening := allocationEntries(b, now, "system", "open-"+facultyID)
	for _, t := range FlatTypes {
		e := entry(facultyID, t, "", b.Buckets[t].Allocated, generic.TxAllocation, now)
		e.Reason = "opening allocation"
		e.IdempotencyKey = fmt.Sprintf("open-%s-%s", facultyID, t)
		e.CreatedBy = "system"
		opening = append(opening, e)
	}
	if err := generic.NewJournal(tx.Journal()).AppendBatch(ctx, opening); err != nil {
		return nil, fmt.Errorf("failed to journal opening balance: %w", err)
	}

	s.Logger.Info("balance created", zap.String("faculty_id", facultyID), zap.Int("cycle_year", b.CycleYear))
	return b, nil
}

// Journal returns the balance events of a faculty member.
func (s *Service) Journal(ctx context.Context, facultyID string) ([]generic.Transaction, error) {
	return generic.NewJournal(s.Store.Journal()).Entries(ctx, generic.EntityID(facultyID))
}

// BucketJournal returns the events of one bucket ("medical",
// "casual/slot1") and the sum of their deltas.
func (s *Service) BucketJournal(ctx context.Context, facultyID string, bucket generic.BucketID) ([]generic.Transaction, decimal.Decimal, error) {
	journal := generic.NewJournal(s.Store.Journal())
	txs, err := journal.Store.LoadBucket(ctx, generic.EntityID(facultyID), bucket)
	if err != nil {
		return nil, decimal.Zero, err
	}
	net, err := journal.NetChange(ctx, generic.EntityID(facultyID), bucket)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return txs, net, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit files a leave application: days are computed, checked and deducted,
// and the application is stored in its initial status, all atomically.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Application, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLeaveType, in.Type)
	}
	if in.FacultyID == "" {
		return nil, fmt.Errorf("%w: faculty id is required", ErrNotFound)
	}
	if in.FromDate.IsZero() || in.ToDate.IsZero() || in.FromDate.After(in.ToDate) {
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidRange, in.FromDate, in.ToDate)
	}
	if in.Days.IsNegative() {
		return nil, fmt.Errorf("%w: days must not be negative", ErrInvalidRange)
	}

	route, target := s.resolveRoute(ctx, in.ForwardTo)

	var app *Application
	err := s.withRetry(ctx, func(tx Tx) error {
		now := s.now()

		bal, err := s.lockOrCreateBalance(ctx, tx, in.FacultyID)
		if err != nil {
			return err
		}

		days, slot, err := s.charge(ctx, tx, bal, in)
		if err != nil {
			return err
		}

		app = &Application{
			ID:                 uuid.NewString(),
			FacultyID:          in.FacultyID,
			Type:               in.Type,
			FromDate:           in.FromDate,
			ToDate:             in.ToDate,
			Days:               days,
			Reason:             in.Reason,
			ContactDuringLeave: in.ContactDuringLeave,
			AddressDuringLeave: in.AddressDuringLeave,
			ForwardTo:          in.ForwardTo,
			Route:              route,
			Target:             target,
			Slot:               slot,
			CycleYear:          bal.CycleYear,
			Status:             route.InitialStatus(),
			AppliedAt:          now,
			UpdatedAt:          now,
		}
		app.Adjustments = withApplicationID(in.Adjustments, app.ID)

		bal.UpdatedAt = now
		if err := tx.UpdateBalance(ctx, bal); err != nil {
			return err
		}
		if err := tx.InsertApplication(ctx, app); err != nil {
			return err
		}
		if err := tx.ReplaceAdjustments(ctx, app.ID, app.Adjustments); err != nil {
			return err
		}
		if err := generic.NewJournal(tx.Journal()).Append(ctx, deductionEntry(app, now)); err != nil {
			return fmt.Errorf("failed to journal deduction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("faculty_id", app.FacultyID),
		zap.String("type", string(app.Type)),
		zap.String("days", app.Days.String()),
		zap.String("status", string(app.Status)))

	s.notify(ctx, app.FacultyID, "Leave Application Submitted",
		fmt.Sprintf("Your %s leave application for %s day(s) from %s to %s has been submitted.",
			app.Type, app.Days, app.FromDate, app.ToDate))
	return app, nil
}

// charge computes the days of a request and deducts them from bal.
func (s *Service) charge(ctx context.Context, tx Tx, bal *Balance, in SubmitInput) (decimal.Decimal, Slot, error) {
	if in.Type != Casual {
		days := in.Days
		if days.IsZero() {
			days = decimal.NewFromInt(int64(CalendarDays(in.FromDate, in.ToDate)))
		}
		_, err := bal.Deduct(in.Type, days, nil)
		return days, "", err
	}

	overlap, err := tx.HasOverlap(ctx, OverlapQuery{
		FacultyID:   in.FacultyID,
		From:        in.FromDate,
		To:          in.ToDate,
		ExcludeType: Casual,
		Statuses:    blockingStatuses(),
	})
	if err != nil {
		return decimal.Zero, "", err
	}
	if overlap {
		return decimal.Zero, "", fmt.Errorf("%w: another leave application covers %s to %s",
			ErrCombinedLeaveNotAllowed, in.FromDate, in.ToDate)
	}

	n := BillableDays(in.FromDate, in.ToDate, s.Calendar)
	if n == 0 {
		return decimal.Zero, "", fmt.Errorf("%w: no working days between %s and %s",
			ErrInvalidRange, in.FromDate, in.ToDate)
	}
	days := decimal.NewFromInt(int64(n))
	asOf := in.FromDate
	slot, err := bal.Deduct(Casual, days, &asOf)
	return days, slot, err
}

// resolveRoute turns forward_to into the first hop and the final target.
// The first hop is an exact keyword or, failing that, the text as a user
// id. The target is the first keyword anywhere in the text, or the first
// hop when there is none. Lookup failures fall back to RouteNone.
func (s *Service) resolveRoute(ctx context.Context, forwardTo string) (first, target Route) {
	first = ExactRoute(forwardTo)
	if first == RouteNone && s.Roles != nil && forwardTo != "" {
		role, err := s.Roles.RoleOf(ctx, forwardTo)
		switch {
		case err == nil:
			first = RouteForRole(role)
		case !errors.Is(err, ErrNotFound):
			s.Logger.Warn("forward_to lookup failed", zap.String("forward_to", forwardTo), zap.Error(err))
		}
	}
	target = ParseRoute(forwardTo)
	if target == RouteNone {
		target = first
	}
	return first, target
}

func withApplicationID(in []ClassAdjustment, appID string) []ClassAdjustment {
	out := make([]ClassAdjustment, len(in))
	for i, adj := range in {
		if adj.ID == "" {
			adj.ID = uuid.NewString()
		}
		adj.ApplicationID = appID
		out[i] = adj
	}
	return out
}

// =============================================================================
// ACT - Approver and faculty actions
// =============================================================================

// Act applies an action on behalf of an actor whose role is already known.
// Rejection and cancellation restore the deducted days exactly once.
func (s *Service) Act(ctx context.Context, in ActInput) (*Application, error) {
	var app *Application
	err := s.withRetry(ctx, func(tx Tx) error {
		now := s.now()

		a, err := tx.GetApplication(ctx, in.ApplicationID)
		if err != nil {
			return err
		}
		if in.Action == ActionCancel && a.FacultyID != in.ActorID {
			return fmt.Errorf("%w: %s cannot cancel application %s", ErrNotOwner, in.ActorID, a.ID)
		}

		next, err := Transition(a, in.Role, in.Action)
		if err != nil {
			return err
		}

		a.Status = next
		a.ActedBy = in.ActorID
		a.UpdatedAt = now
		if in.Remarks != "" {
			a.Remarks = in.Remarks
		}

		if next.RestoresBalance() {
			if err := s.restoreOnce(ctx, tx, a, in.ActorID, now); err != nil {
				return err
			}
		}
		if err := tx.UpdateApplication(ctx, a); err != nil {
			return err
		}
		app = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("application transitioned",
		zap.String("application_id", app.ID),
		zap.String("actor_id", in.ActorID),
		zap.String("role", string(in.Role)),
		zap.String("action", string(in.Action)),
		zap.String("status", string(app.Status)))

	body := fmt.Sprintf("Your %s leave application (%s to %s) is now: %s.",
		app.Type, app.FromDate, app.ToDate, app.Status.Label())
	if in.Remarks != "" {
		body += " Remarks: " + in.Remarks
	}
	s.notify(ctx, app.FacultyID, "Leave Application "+app.Status.Label(), body)
	return app, nil
}

// ActAs resolves the actor's role, then calls Act.
func (s *Service) ActAs(ctx context.Context, applicationID, actorID string, action Action, remarks string) (*Application, error) {
	if s.Roles == nil {
		return nil, fmt.Errorf("%w: no role resolver configured", ErrInvalidRole)
	}
	role, err := s.Roles.RoleOf(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role of %s: %w", actorID, err)
	}
	return s.Act(ctx, ActInput{
		ApplicationID: applicationID,
		ActorID:       actorID,
		Role:          role,
		Action:        action,
		Remarks:       remarks,
	})
}

// restoreOnce gives an application's days back. The BalanceRestored flag is
// checked and set in the same transaction as the balance write; the journal
// key restore-<id> backs it up at the storage level.
func (s *Service) restoreOnce(ctx context.Context, tx Tx, app *Application, actorID string, now time.Time) error {
	if app.BalanceRestored {
		return nil
	}

	bal, err := tx.LockBalance(ctx, app.FacultyID)
	if err != nil {
		return fmt.Errorf("failed to load balance for restoration: %w", err)
	}

	journalEntry := restorationEntry(app, actorID, now)
	switch {
	case app.Type == Casual && app.CycleYear != 0 && app.CycleYear != bal.CycleYear:
		// The slots the days came from were replaced when the next cycle
		// opened; the current cycle's usage is not this application's.
		journalEntry = forfeitedRestorationEntry(app, actorID, now)
	case app.Type == Casual && app.Slot != "":
		bal.RestoreSlot(app.Slot, app.Days)
	default:
		if _, err := bal.Restore(app.Type, app.Days, nil); err != nil {
			return err
		}
	}
	bal.UpdatedAt = now
	if err := tx.UpdateBalance(ctx, bal); err != nil {
		return err
	}

	if err := generic.NewJournal(tx.Journal()).Append(ctx, journalEntry); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			return fmt.Errorf("%w: balance for application %s was already restored", ErrInvalidState, app.ID)
		}
		return fmt.Errorf("failed to journal restoration: %w", err)
	}
	app.BalanceRestored = true
	return nil
}

// =============================================================================
// QUERIES AND EDITS
// =============================================================================

// Application returns one application.
func (s *Service) Application(ctx context.Context, id string) (*Application, error) {
	return s.Store.GetApplication(ctx, id)
}

// Applications returns a faculty member's applications, newest first.
func (s *Service) Applications(ctx context.Context, facultyID string) ([]*Application, error) {
	return s.Store.ListApplications(ctx, ApplicationFilter{FacultyID: facultyID})
}

// Inbox returns the applications role can act on.
func (s *Service) Inbox(ctx context.Context, role Role) ([]*Application, error) {
	statuses := Queue(role)
	if len(statuses) == 0 {
		return nil, fmt.Errorf("%w: %s has no approval inbox", ErrInvalidRole, role)
	}
	return s.Store.ListApplications(ctx, ApplicationFilter{Statuses: statuses})
}

// ReplaceAdjustments swaps the class adjustments of an open application.
// Only the filer may do this.
func (s *Service) ReplaceAdjustments(ctx context.Context, applicationID, actorID string, adjustments []ClassAdjustment) (*Application, error) {
	var app *Application
	err := s.Store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		if a.FacultyID != actorID {
			return fmt.Errorf("%w: %s cannot edit application %s", ErrNotOwner, actorID, a.ID)
		}
		if !a.Status.IsOpen() {
			return &InvalidStateError{Action: "edit", Role: RoleFaculty, Status: a.Status, Allowed: openQueue}
		}

		a.Adjustments = withApplicationID(adjustments, a.ID)
		a.UpdatedAt = s.now()
		if err := tx.ReplaceAdjustments(ctx, a.ID, a.Adjustments); err != nil {
			return err
		}
		if err := tx.UpdateApplication(ctx, a); err != nil {
			return err
		}
		app = a
		return nil
	})
	return app, err
}
