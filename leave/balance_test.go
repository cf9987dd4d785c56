package leave_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

func d(s string) decimal.Decimal { return generic.MustParseDecimal(s) }

func date(y int, m time.Month, day int) generic.TimePoint { return generic.NewTimePoint(y, m, day) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !got.Equal(d(want)) {
		assert.Fail(t, fmt.Sprintf("want %s days, got %s", want, got), msgAndArgs...)
	}
}

func newBalance() *leave.Balance {
	return leave.NewBalance("fac-1", 2025, leave.DefaultAllocations())
}

// =============================================================================
// CYCLE AND SLOT RESOLUTION
// =============================================================================

func TestCycleFor(t *testing.T) {
	assert.Equal(t, 2024, leave.CycleFor(date(2025, time.June, 30)))
	assert.Equal(t, 2025, leave.CycleFor(date(2025, time.July, 1)))
	assert.Equal(t, 2025, leave.CycleFor(date(2025, time.December, 31)))
}

func TestSlotFor_Slot1WinsTheOverlap(t *testing.T) {
	// GIVEN: Cycle 2025 (slot1 Jan-Dec 2025, slot2 Jul 2025-Jun 2026)
	// WHEN: Resolving dates across the cycle
	// THEN: Jul-Dec 2025 resolve to slot1, 2026 dates to slot2,
	//       anything past Jun 30 2026 is outside the cycle
	b := newBalance()

	tests := []struct {
		day  generic.TimePoint
		want leave.Slot
	}{
		{date(2025, time.February, 3), leave.Slot1},
		{date(2025, time.August, 4), leave.Slot1},
		{date(2025, time.December, 31), leave.Slot1},
		{date(2026, time.January, 1), leave.Slot2},
		{date(2026, time.June, 30), leave.Slot2},
	}
	for _, tt := range tests {
		t.Run(tt.day.String(), func(t *testing.T) {
			got, err := b.SlotFor(tt.day)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := b.SlotFor(date(2026, time.July, 1))
	assert.ErrorIs(t, err, leave.ErrOutsideCycle)
	_, err = b.SlotFor(date(2024, time.December, 31))
	assert.ErrorIs(t, err, leave.ErrOutsideCycle)
}

// =============================================================================
// DEDUCT
// =============================================================================

func TestNewBalance_DefaultEntitlement(t *testing.T) {
	b := newBalance()

	assertDecimal(t, "7", b.Slot1.Total)
	assertDecimal(t, "8", b.Slot2.Total)
	assertDecimal(t, "10", b.Buckets[leave.Paternity].Allocated)
	assertDecimal(t, "12", b.Buckets[leave.Medical].Allocated)

	total, err := b.Remaining(leave.Casual, nil)
	require.NoError(t, err)
	assertDecimal(t, "15", total)
}

func TestDeduct_DatedCasualChargesOnlyResolvedSlot(t *testing.T) {
	// GIVEN: slot1 has 7 days, slot2 has 8
	// WHEN: 8 days of casual leave dated in August 2025 (slot1)
	// THEN: Insufficient in slot1; slot2 is not borrowed from
	b := newBalance()
	asOf := date(2025, time.August, 4)

	_, err := b.Deduct(leave.Casual, d("8"), &asOf)

	var insufficient *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, leave.Slot1, insufficient.Slot)
	assertDecimal(t, "7", insufficient.Available)
	assert.Equal(t, "Insufficient CL in slot1. Available: 7.0 days, Requested: 8.0 days", err.Error())
	assertDecimal(t, "0", b.Slot1.Used)
	assertDecimal(t, "0", b.Slot2.Used)
}

func TestDeduct_DatedCasual(t *testing.T) {
	b := newBalance()
	asOf := date(2026, time.March, 2)

	slot, err := b.Deduct(leave.Casual, d("3"), &asOf)

	require.NoError(t, err)
	assert.Equal(t, leave.Slot2, slot)
	assertDecimal(t, "3", b.Slot2.Used)
	assertDecimal(t, "5", b.Slot2.Remaining())
}

func TestDeduct_UndatedCasualSpillsIntoSlot2(t *testing.T) {
	b := newBalance()

	_, err := b.Deduct(leave.Casual, d("10"), nil)

	require.NoError(t, err)
	assertDecimal(t, "7", b.Slot1.Used)
	assertDecimal(t, "3", b.Slot2.Used)

	_, err = b.Deduct(leave.Casual, d("6"), nil)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
}

func TestDeduct_FlatBucket(t *testing.T) {
	b := newBalance()

	_, err := b.Deduct(leave.Medical, d("11.5"), nil)
	require.NoError(t, err)

	_, err = b.Deduct(leave.Medical, d("1"), nil)
	var insufficient *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, leave.Medical, insufficient.Type)
	assert.Empty(t, insufficient.Slot)
	assertDecimal(t, "0.5", insufficient.Available)
	assertDecimal(t, "11.5", b.Buckets[leave.Medical].Used, "failed deduction must not change usage")
}

func TestDeduct_RejectsNonPositiveAndUnknownType(t *testing.T) {
	b := newBalance()

	_, err := b.Deduct(leave.Earned, decimal.Zero, nil)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	_, err = b.Deduct(leave.Type("sabbatical"), d("1"), nil)
	assert.ErrorIs(t, err, leave.ErrInvalidLeaveType)
}

// =============================================================================
// RESTORE
// =============================================================================

func TestRestore_FloorsAtZero(t *testing.T) {
	b := newBalance()
	_, err := b.Deduct(leave.Earned, d("2"), nil)
	require.NoError(t, err)

	_, err = b.Restore(leave.Earned, d("5"), nil)

	require.NoError(t, err)
	assertDecimal(t, "0", b.Buckets[leave.Earned].Used)
	assertDecimal(t, "15", b.Buckets[leave.Earned].Remaining())
}

func TestRestore_UndatedCasualRefillsSlot2First(t *testing.T) {
	b := newBalance()
	_, err := b.Deduct(leave.Casual, d("10"), nil)
	require.NoError(t, err)

	_, err = b.Restore(leave.Casual, d("4"), nil)

	require.NoError(t, err)
	assertDecimal(t, "0", b.Slot2.Used)
	assertDecimal(t, "6", b.Slot1.Used)
}

func TestRestore_NegativeRejected(t *testing.T) {
	b := newBalance()
	_, err := b.Restore(leave.Earned, d("-1"), nil)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

// =============================================================================
// LAPSE AND CYCLE
// =============================================================================

func TestLapseSlot_ForfeitsRemainder(t *testing.T) {
	// GIVEN: slot1 with 2 of 7 days used
	// WHEN: slot1 lapses
	// THEN: 5 days are forfeited, the slot reads 0 remaining, and further
	//       deductions fail with SlotLapsedError
	b := newBalance()
	require.NoError(t, b.DeductSlot(leave.Slot1, d("2")))

	forfeited := b.LapseSlot(leave.Slot1)

	assertDecimal(t, "5", forfeited)
	assert.True(t, b.Slot1.Lapsed)
	assertDecimal(t, "0", b.Slot1.Total)
	assertDecimal(t, "0", b.Slot1.Remaining())

	err := b.DeductSlot(leave.Slot1, d("1"))
	var lapsed *leave.SlotLapsedError
	require.ErrorAs(t, err, &lapsed)
	assert.Equal(t, "Slot 1 CL has lapsed.", err.Error())
	assert.ErrorIs(t, err, leave.ErrSlotLapsed)
}

func TestRestoreSlot_LapsedSlotGetsNoCapacityBack(t *testing.T) {
	b := newBalance()
	require.NoError(t, b.DeductSlot(leave.Slot1, d("3")))
	b.LapseSlot(leave.Slot1)

	b.RestoreSlot(leave.Slot1, d("3"))

	assertDecimal(t, "0", b.Slot1.Used)
	assertDecimal(t, "0", b.Slot1.Remaining())
	assert.True(t, b.Slot1.Lapsed)
}

func TestOpenCycle_ResetsSlotsKeepsBuckets(t *testing.T) {
	b := newBalance()
	require.NoError(t, b.DeductSlot(leave.Slot2, d("4")))
	b.LapseSlot(leave.Slot1)
	_, err := b.Deduct(leave.Medical, d("2"), nil)
	require.NoError(t, err)

	b.OpenCycle(2026, d("6"), d("9"))

	assert.Equal(t, 2026, b.CycleYear)
	assert.False(t, b.Slot1.Lapsed)
	assertDecimal(t, "6", b.Slot1.Remaining())
	assertDecimal(t, "9", b.Slot2.Remaining())
	assertDecimal(t, "2", b.Buckets[leave.Medical].Used)
}

func TestClone_IsDeep(t *testing.T) {
	b := newBalance()
	c := b.Clone()

	_, err := c.Deduct(leave.Duty, d("1"), nil)
	require.NoError(t, err)

	assertDecimal(t, "0", b.Buckets[leave.Duty].Used)
}

func TestSummary_CasualSlotsFirst(t *testing.T) {
	b := newBalance()
	b.LapseSlot(leave.Slot2)

	lines := b.Summary()

	require.Len(t, lines, len(leave.FlatTypes)+2)
	assert.Equal(t, leave.Slot1, lines[0].Slot)
	assert.Equal(t, leave.Slot2, lines[1].Slot)
	assert.True(t, lines[1].Lapsed)
	assert.Equal(t, leave.Medical, lines[2].Type)
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func TestAllocationsFromMap(t *testing.T) {
	a, err := leave.AllocationsFromMap(map[string]float64{
		"casual_slot1": 6,
		"half pay":     10,
		"medical":      14.5,
	})

	require.NoError(t, err)
	assertDecimal(t, "6", a.Slot1)
	assertDecimal(t, "8", a.Slot2, "missing keys keep defaults")
	assertDecimal(t, "10", a.Flat[leave.HalfPay])
	assertDecimal(t, "14.5", a.Flat[leave.Medical])
	assertDecimal(t, "14", a.CasualTotal())
}

func TestAllocationsFromMap_Errors(t *testing.T) {
	_, err := leave.AllocationsFromMap(map[string]float64{"casual": 15})
	assert.Error(t, err)

	_, err = leave.AllocationsFromMap(map[string]float64{"sabbatical": 3})
	assert.ErrorIs(t, err, leave.ErrInvalidLeaveType)

	_, err = leave.AllocationsFromMap(map[string]float64{"earned": -1})
	assert.Error(t, err)
}

// =============================================================================
// WORKING DAYS
// =============================================================================

func TestBillableDays(t *testing.T) {
	// Aug 15 2025 (Friday) is a holiday in this calendar.
	independenceDay := date(2025, time.August, 15)
	cal := leave.CalendarFunc(func(day generic.TimePoint) bool { return !day.Equal(independenceDay) })

	tests := []struct {
		name     string
		from, to generic.TimePoint
		want     int
	}{
		{"full week", date(2025, time.August, 4), date(2025, time.August, 8), 5},
		{"spans weekend", date(2025, time.August, 8), date(2025, time.August, 11), 2},
		{"holiday excluded", date(2025, time.August, 11), date(2025, time.August, 15), 4},
		{"week with weekend and holiday", date(2025, time.August, 11), date(2025, time.August, 17), 4},
		{"weekend only", date(2025, time.August, 16), date(2025, time.August, 17), 0},
		{"inverted", date(2025, time.August, 8), date(2025, time.August, 4), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leave.BillableDays(tt.from, tt.to, cal))
		})
	}
}

func TestBillableDays_NilCalendarCountsWeekdays(t *testing.T) {
	assert.Equal(t, 5, leave.BillableDays(date(2025, time.August, 11), date(2025, time.August, 15), nil))
}

func TestCalendarDays(t *testing.T) {
	assert.Equal(t, 7, leave.CalendarDays(date(2025, time.August, 4), date(2025, time.August, 10)))
	assert.Equal(t, 0, leave.CalendarDays(date(2025, time.August, 10), date(2025, time.August, 4)))
}
