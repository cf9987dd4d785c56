package leave

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/prabandh/leave-engine/generic"
)

// Application is a leave request.
type Application struct {
	ID        string
	FacultyID string
	Type      Type
	FromDate  generic.TimePoint
	ToDate    generic.TimePoint

	// Days is the billable day count for casual leave and the requested
	// (or calendar) span for every other type.
	Days decimal.Decimal

	Reason             string
	ContactDuringLeave string
	AddressDuringLeave string

	// ForwardTo is the free text the faculty member typed; display only.
	ForwardTo string
	// Route is the first approver ForwardTo names, resolved at submission
	// from an exact keyword or a directory lookup. It sets the initial
	// status.
	Route Route
	// Target is where ForwardTo finally points, from the first keyword
	// found anywhere in the text. HOD and dean approvals forward to it.
	Target Route
	// Slot is the casual slot charged on submission.
	Slot Slot
	// CycleYear is the casual cycle the balance was on when the days
	// were deducted.
	CycleYear int

	Status          Status
	Remarks         string
	ActedBy         string
	BalanceRestored bool

	AppliedAt time.Time
	UpdatedAt time.Time

	Adjustments []ClassAdjustment
}

// Period is the requested date range.
func (a *Application) Period() generic.Period {
	return generic.Period{Start: a.FromDate, End: a.ToDate}
}

// ClassAdjustment records who takes a class while the applicant is away.
type ClassAdjustment struct {
	ID               string
	ApplicationID    string
	Course           string
	Branch           string
	Semester         string
	Subject          string
	ClassTiming      string
	ConcernedTeacher string
}

// SubmitInput is what a faculty member files.
type SubmitInput struct {
	FacultyID string
	Type      Type
	FromDate  generic.TimePoint
	ToDate    generic.TimePoint

	// Days is the requested count for non-casual leave. Zero means the
	// inclusive calendar span. Ignored for casual leave.
	Days decimal.Decimal

	Reason             string
	ContactDuringLeave string
	AddressDuringLeave string
	ForwardTo          string
	Adjustments        []ClassAdjustment
}

// ActInput is an actor's decision on an application.
type ActInput struct {
	ApplicationID string
	ActorID       string
	Role          Role
	Action        Action
	Remarks       string
}

// ApplicationFilter narrows ListApplications. Zero values match everything.
type ApplicationFilter struct {
	FacultyID string
	Statuses  []Status
	Limit     int
}

// OverlapQuery asks whether a faculty member has another application
// overlapping [From, To] in one of Statuses, ignoring ExcludeType.
type OverlapQuery struct {
	FacultyID   string
	From        generic.TimePoint
	To          generic.TimePoint
	ExcludeType Type
	Statuses    []Status
}

// Faculty is a directory entry.
type Faculty struct {
	ID         string
	Name       string
	Email      string
	Department string
	Role       Role
	CreatedAt  time.Time
}
