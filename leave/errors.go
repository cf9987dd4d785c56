package leave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when from_date is after to_date, or a
	// casual leave range contains no working day.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInvalidLeaveType is returned for an unknown leave type.
	ErrInvalidLeaveType = errors.New("invalid leave type")

	// ErrInvalidRole is returned for an unknown or unusable role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrCombinedLeaveNotAllowed is returned when casual leave overlaps an
	// open or approved application of another type.
	ErrCombinedLeaveNotAllowed = errors.New("casual leave cannot be combined with other leave")

	// ErrInsufficientBalance is returned when a deduction exceeds what remains.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrSlotLapsed is returned when casual leave is charged to a lapsed slot.
	ErrSlotLapsed = errors.New("casual leave slot has lapsed")

	// ErrOutsideCycle is returned when a casual leave date falls in neither
	// slot of the balance's current cycle.
	ErrOutsideCycle = errors.New("date outside the casual leave cycle")

	// ErrInvalidState is returned when an action is not allowed from the
	// application's current status.
	ErrInvalidState = errors.New("invalid application state")

	// ErrNotFound is returned when an application or balance does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotOwner is returned when someone other than the filer cancels or
	// edits an application.
	ErrNotOwner = errors.New("application belongs to another faculty member")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the bucket that could not cover a deduction.
type InsufficientBalanceError struct {
	Type      Type
	Slot      Slot // set only for dated casual leave
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	if e.Slot != "" {
		return fmt.Sprintf("Insufficient CL in %s. Available: %s days, Requested: %s days",
			e.Slot, e.Available.StringFixed(1), e.Requested.StringFixed(1))
	}
	return fmt.Sprintf("Insufficient leave balance. Available: %s days, Requested: %s days",
		e.Available.StringFixed(1), e.Requested.StringFixed(1))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// SlotLapsedError names the lapsed slot.
type SlotLapsedError struct {
	Slot Slot
}

func (e *SlotLapsedError) Error() string {
	return fmt.Sprintf("Slot %d CL has lapsed.", e.Slot.Number())
}

func (e *SlotLapsedError) Unwrap() error {
	return ErrSlotLapsed
}

// InvalidStateError reports an action attempted outside its precondition set.
type InvalidStateError struct {
	Action  Action
	Role    Role
	Status  Status
	Allowed []Status
}

func (e *InvalidStateError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("Role %s cannot %s applications.", e.Role, e.Action.Verb())
	}
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("Cannot %s application in %s status. Application must be in one of: %s",
		e.Action.Verb(), e.Status, strings.Join(allowed, ", "))
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input or a
// business rule, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidLeaveType) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrCombinedLeaveNotAllowed) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrSlotLapsed) ||
		errors.Is(err, ErrOutsideCycle) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotOwner)
}
