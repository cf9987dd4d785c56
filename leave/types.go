/*
Package leave implements the faculty leave workflow.

PURPOSE:
  Owns the per-faculty leave balance (flat buckets plus the two casual
  leave slots), working-day counting, slot lapsing, and the approval state
  machine that moves an application from submission to a terminal status.

KEY TYPES:
  Type:        The leave types (casual, medical, earned, ...)
  Slot:        One of the two casual leave sub-allocations
  Role:        Who is acting (faculty, hod, dean, vc, hr)
  Balance:     The ledger row for one faculty member
  Application: A leave request and its workflow status
  Service:     Submission, approval actions and lapsing, transactionally

RESOURCE INTEGRATION:
  Type implements generic.ResourceType, so journal entries written by the
  service carry the leave type they concern.

SEE ALSO:
  - balance.go: Deduct / Restore / LapseSlot
  - workflow.go: The transition table
  - service.go: Submission and approval flows
*/
package leave

import (
	"fmt"
	"strings"

	"github.com/prabandh/leave-engine/generic"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// Type is a leave type.
type Type string

const (
	Casual        Type = "casual"
	Medical       Type = "medical"
	Compensatory  Type = "compensatory"
	Earned        Type = "earned"
	Semester      Type = "semester"
	Maternity     Type = "maternity"
	Paternity     Type = "paternity"
	Extraordinary Type = "extraordinary"
	Academic      Type = "academic"
	HalfPay       Type = "half_pay"
	Duty          Type = "duty"
	HPL           Type = "hpl" // legacy half-pay leave code
)

// AllTypes lists every leave type in display order.
var AllTypes = []Type{
	Casual, Medical, Compensatory, Earned, Semester, Maternity,
	Paternity, Extraordinary, Academic, HalfPay, Duty, HPL,
}

// FlatTypes lists the types kept as a single allocated/used bucket.
var FlatTypes = AllTypes[1:]

func (t Type) ResourceID() string     { return string(t) }
func (t Type) ResourceDomain() string { return "leave" }

// Valid reports whether t is one of AllTypes.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType accepts the stored form ("half_pay") and the spaced form ("half pay").
func ParseType(s string) (Type, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	t := Type(normalized)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLeaveType, s)
	}
	return t, nil
}

func init() {
	for _, t := range AllTypes {
		generic.RegisterResource(t)
	}
}

// =============================================================================
// CASUAL LEAVE SLOTS
// =============================================================================

// Slot identifies one of the two casual leave sub-allocations.
type Slot string

const (
	Slot1 Slot = "slot1"
	Slot2 Slot = "slot2"
)

// Slots lists both slots in resolution order.
var Slots = []Slot{Slot1, Slot2}

// Number returns 1 or 2.
func (s Slot) Number() int {
	if s == Slot2 {
		return 2
	}
	return 1
}

func (s Slot) Valid() bool { return s == Slot1 || s == Slot2 }

// ParseSlot accepts "slot1", "1", "slot2" and "2".
func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slot1", "1":
		return Slot1, nil
	case "slot2", "2":
		return Slot2, nil
	}
	return "", fmt.Errorf("unknown casual leave slot %q", s)
}

// =============================================================================
// ROLES
// =============================================================================

// Role is the capacity in which a user acts on an application.
type Role string

const (
	RoleFaculty Role = "faculty"
	RoleHOD     Role = "hod"
	RoleDean    Role = "dean"
	RoleVC      Role = "vc"
	RoleHR      Role = "hr"
)

// AllRoles lists every role.
var AllRoles = []Role{RoleFaculty, RoleHOD, RoleDean, RoleVC, RoleHR}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// bucketID names the journal bucket of a leave type, or of a casual slot.
func bucketID(t Type, slot Slot) generic.BucketID {
	if t == Casual && slot != "" {
		return generic.BucketID(string(Casual) + "/" + string(slot))
	}
	return generic.BucketID(t)
}
