package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prabandh/leave-engine/generic"
)

// =============================================================================
// BUCKETS
// =============================================================================

// Bucket is the allocation and usage of one flat leave type.
type Bucket struct {
	Allocated decimal.Decimal
	Used      decimal.Decimal
}

// Remaining is allocated minus used.
func (b Bucket) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Used)
}

// CasualSlot is one independently lapsing share of casual leave.
type CasualSlot struct {
	Total  decimal.Decimal
	Used   decimal.Decimal
	Lapsed bool
}

// Remaining is total minus used, never below zero. A lapsed slot has none.
func (s CasualSlot) Remaining() decimal.Decimal {
	if s.Lapsed {
		return decimal.Zero
	}
	r := s.Total.Sub(s.Used)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// =============================================================================
// BALANCE - One row per faculty member
// =============================================================================

// Balance is the leave ledger of one faculty member.
//
// INVARIANTS:
//   - Used <= Allocated for every flat bucket
//   - Used <= Total for every unlapsed casual slot
//   - A lapsed slot has Total == 0
//   - Used >= 0 everywhere
//
// Deduct, Restore, LapseSlot and OpenCycle are the only mutation paths.
//
// CASUAL CYCLE:
//
//	CycleYear Y anchors both slots:
//	  slot1: Jan 1 Y - Dec 31 Y
//	  slot2: Jul 1 Y - Jun 30 Y+1
//	The two overlap for Jul-Dec Y; dates there resolve to slot1.
type Balance struct {
	FacultyID string
	CycleYear int
	Buckets   map[Type]Bucket
	Slot1     CasualSlot
	Slot2     CasualSlot

	// Version is bumped by the store on every update (optimistic locking).
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBalance creates a balance with the given entitlement.
func NewBalance(facultyID string, cycleYear int, alloc Allocations) *Balance {
	b := &Balance{
		FacultyID: facultyID,
		CycleYear: cycleYear,
		Buckets:   make(map[Type]Bucket, len(FlatTypes)),
		Slot1:     CasualSlot{Total: alloc.Slot1, Used: decimal.Zero},
		Slot2:     CasualSlot{Total: alloc.Slot2, Used: decimal.Zero},
	}
	for _, t := range FlatTypes {
		b.Buckets[t] = Bucket{Allocated: alloc.Flat[t], Used: decimal.Zero}
	}
	return b
}

// CycleFor returns the casual cycle year in effect on day. Cycles open on
// July 1, so January through June still belong to the previous year's cycle.
func CycleFor(day generic.TimePoint) int {
	if day.Month() < time.July {
		return day.Year() - 1
	}
	return day.Year()
}

// Clone returns a deep copy.
func (b *Balance) Clone() *Balance {
	c := *b
	c.Buckets = make(map[Type]Bucket, len(b.Buckets))
	for t, bucket := range b.Buckets {
		c.Buckets[t] = bucket
	}
	return &c
}

// Slot returns a copy of the given slot.
func (b *Balance) Slot(s Slot) CasualSlot {
	return *b.slot(s)
}

func (b *Balance) slot(s Slot) *CasualSlot {
	if s == Slot2 {
		return &b.Slot2
	}
	return &b.Slot1
}

// SlotPeriod returns the days a slot covers in the current cycle.
func (b *Balance) SlotPeriod(s Slot) generic.Period {
	if s == Slot2 {
		return generic.YearFrom(b.CycleYear, time.July)
	}
	return generic.CalendarYear(b.CycleYear)
}

// SlotFor resolves the slot active on day. Slot 1 wins where they overlap.
func (b *Balance) SlotFor(day generic.TimePoint) (Slot, error) {
	for _, s := range Slots {
		if b.SlotPeriod(s).Contains(day) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s is not covered by the %d cycle (%s, %s)",
		ErrOutsideCycle, day, b.CycleYear, b.SlotPeriod(Slot1), b.SlotPeriod(Slot2))
}

// =============================================================================
// READ
// =============================================================================

// Remaining returns what is left of a leave type.
//
// For casual leave with a date it is the resolved slot's remaining capacity;
// without a date it is the sum over both slots.
func (b *Balance) Remaining(t Type, asOf *generic.TimePoint) (decimal.Decimal, error) {
	if t != Casual {
		bucket, err := b.bucket(t)
		if err != nil {
			return decimal.Zero, err
		}
		return bucket.Remaining(), nil
	}

	if asOf == nil {
		return b.Slot1.Remaining().Add(b.Slot2.Remaining()), nil
	}
	s, err := b.SlotFor(*asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return b.slot(s).Remaining(), nil
}

func (b *Balance) bucket(t Type) (Bucket, error) {
	if !t.Valid() {
		return Bucket{}, fmt.Errorf("%w: %q", ErrInvalidLeaveType, t)
	}
	return b.Buckets[t], nil
}

// =============================================================================
// DEDUCT
// =============================================================================

// Deduct charges days to a leave type and returns the casual slot charged.
//
// Casual leave with a date charges only the resolved slot. Without a date it
// fills slot 1 first and spills the rest into slot 2, failing only if the
// two together cannot cover the request.
func (b *Balance) Deduct(t Type, days decimal.Decimal, asOf *generic.TimePoint) (Slot, error) {
	if !days.IsPositive() {
		return "", fmt.Errorf("%w: days must be positive, got %s", ErrInvalidRange, days)
	}

	if t != Casual {
		bucket, err := b.bucket(t)
		if err != nil {
			return "", err
		}
		remaining := bucket.Remaining()
		if days.GreaterThan(remaining) {
			return "", &InsufficientBalanceError{Type: t, Available: remaining, Requested: days}
		}
		bucket.Used = bucket.Used.Add(days)
		b.Buckets[t] = bucket
		return "", nil
	}

	if asOf == nil {
		return "", b.deductPooled(days)
	}

	s, err := b.SlotFor(*asOf)
	if err != nil {
		return "", err
	}
	return s, b.DeductSlot(s, days)
}

// DeductSlot charges days to one casual slot, without spillover.
func (b *Balance) DeductSlot(s Slot, days decimal.Decimal) error {
	cs := b.slot(s)
	if cs.Lapsed {
		return &SlotLapsedError{Slot: s}
	}
	remaining := cs.Remaining()
	if days.GreaterThan(remaining) {
		return &InsufficientBalanceError{Type: Casual, Slot: s, Available: remaining, Requested: days}
	}
	cs.Used = cs.Used.Add(days)
	return nil
}

func (b *Balance) deductPooled(days decimal.Decimal) error {
	r1, r2 := b.Slot1.Remaining(), b.Slot2.Remaining()
	pooled := r1.Add(r2)
	if days.GreaterThan(pooled) {
		return &InsufficientBalanceError{Type: Casual, Available: pooled, Requested: days}
	}

	fromSlot1 := decimal.Min(days, r1)
	b.Slot1.Used = b.Slot1.Used.Add(fromSlot1)
	if rest := days.Sub(fromSlot1); rest.IsPositive() {
		b.Slot2.Used = b.Slot2.Used.Add(rest)
	}
	return nil
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore returns days to a leave type. Usage never drops below zero.
// It does not deduplicate; callers guard against double restoration.
//
// Casual leave with a date restores the resolved slot. Without a date it
// restores slot 2 first and spills the rest into slot 1.
func (b *Balance) Restore(t Type, days decimal.Decimal, asOf *generic.TimePoint) (Slot, error) {
	if days.IsNegative() {
		return "", fmt.Errorf("%w: days must not be negative, got %s", ErrInvalidRange, days)
	}

	if t != Casual {
		bucket, err := b.bucket(t)
		if err != nil {
			return "", err
		}
		bucket.Used = floorZero(bucket.Used.Sub(days))
		b.Buckets[t] = bucket
		return "", nil
	}

	if asOf == nil {
		b.restorePooled(days)
		return "", nil
	}

	s, err := b.SlotFor(*asOf)
	if err != nil {
		return "", err
	}
	b.RestoreSlot(s, days)
	return s, nil
}

// RestoreSlot returns days to one casual slot. A lapsed slot gets its usage
// reduced but no capacity back.
func (b *Balance) RestoreSlot(s Slot, days decimal.Decimal) {
	cs := b.slot(s)
	cs.Used = floorZero(cs.Used.Sub(days))
}

func (b *Balance) restorePooled(days decimal.Decimal) {
	toSlot2 := decimal.Min(days, b.Slot2.Used)
	b.Slot2.Used = b.Slot2.Used.Sub(toSlot2)
	b.Slot1.Used = floorZero(b.Slot1.Used.Sub(days.Sub(toSlot2)))
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// LAPSE AND CYCLE
// =============================================================================

// LapseSlot forfeits a slot: it is marked lapsed and its total forced to
// zero, whatever was left unused. Returns the forfeited capacity.
func (b *Balance) LapseSlot(s Slot) decimal.Decimal {
	cs := b.slot(s)
	forfeited := cs.Remaining()
	cs.Lapsed = true
	cs.Total = decimal.Zero
	return forfeited
}

// OpenCycle starts a new casual cycle with fresh slots.
func (b *Balance) OpenCycle(year int, slot1, slot2 decimal.Decimal) {
	b.CycleYear = year
	b.Slot1 = CasualSlot{Total: slot1, Used: decimal.Zero}
	b.Slot2 = CasualSlot{Total: slot2, Used: decimal.Zero}
}

// =============================================================================
// REPORTING VIEW
// =============================================================================

// BucketSummary is one line of a balance report.
type BucketSummary struct {
	Type      Type
	Slot      Slot
	Allocated decimal.Decimal
	Used      decimal.Decimal
	Remaining decimal.Decimal
	Lapsed    bool
}

// Summary lists both casual slots followed by every flat type.
func (b *Balance) Summary() []BucketSummary {
	out := make([]BucketSummary, 0, len(FlatTypes)+2)
	for _, s := range Slots {
		cs := b.slot(s)
		out = append(out, BucketSummary{
			Type:      Casual,
			Slot:      s,
			Allocated: cs.Total,
			Used:      cs.Used,
			Remaining: cs.Remaining(),
			Lapsed:    cs.Lapsed,
		})
	}
	for _, t := range FlatTypes {
		bucket := b.Buckets[t]
		out = append(out, BucketSummary{
			Type:      t,
			Allocated: bucket.Allocated,
			Used:      bucket.Used,
			Remaining: bucket.Remaining(),
		})
	}
	return out
}
