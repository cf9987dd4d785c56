package leave

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/prabandh/leave-engine/generic"
)

// DueSlots returns the unlapsed slots whose coverage ended before now:
// slot 1 once now is past Dec 31 of the cycle year, slot 2 once now is past
// Jun 30 of the following year. With force every unlapsed slot is due.
func DueSlots(b *Balance, now generic.TimePoint, force bool) []Slot {
	var due []Slot
	for _, s := range Slots {
		if b.slot(s).Lapsed {
			continue
		}
		if force || now.After(b.SlotPeriod(s).End) {
			due = append(due, s)
		}
	}
	return due
}

// LapseOptions controls a lapse run.
type LapseOptions struct {
	Now    generic.TimePoint
	Force  bool // lapse every unlapsed slot regardless of date
	DryRun bool // report only
}

// LapseEntry is one slot lapsed (or due, in a dry run).
type LapseEntry struct {
	FacultyID string
	CycleYear int
	Slot      Slot
	Forfeited decimal.Decimal
}

// LapseReport summarises a lapse run.
type LapseReport struct {
	DryRun  bool
	Checked int
	Failed  int
	Lapsed  []LapseEntry
}

// LapseRun is the persisted record of one lapsed slot.
type LapseRun struct {
	ID        string
	FacultyID string
	CycleYear int
	Slot      Slot
	Forfeited decimal.Decimal
	Forced    bool
	CreatedAt time.Time
}
