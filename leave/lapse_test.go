package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
)

// =============================================================================
// DUE SLOTS
// =============================================================================

func TestDueSlots(t *testing.T) {
	b := newBalance()

	assert.Empty(t, leave.DueSlots(b, date(2025, time.December, 31), false))
	assert.Equal(t, []leave.Slot{leave.Slot1}, leave.DueSlots(b, date(2026, time.January, 1), false))
	assert.Equal(t, []leave.Slot{leave.Slot1, leave.Slot2}, leave.DueSlots(b, date(2026, time.July, 1), false))
	assert.Equal(t, []leave.Slot{leave.Slot1, leave.Slot2}, leave.DueSlots(b, date(2025, time.August, 1), true))

	b.LapseSlot(leave.Slot1)
	assert.Equal(t, []leave.Slot{leave.Slot2}, leave.DueSlots(b, date(2026, time.July, 1), false))
	assert.Equal(t, []leave.Slot{leave.Slot2}, leave.DueSlots(b, date(2025, time.August, 1), true))
}

// =============================================================================
// LAPSE RUNS
// =============================================================================

func TestLapseSlots_DryRunChangesNothing(t *testing.T) {
	// GIVEN: fac-1 used 2 days of slot1
	// WHEN: A dry run is evaluated as of 5 January 2026
	// THEN: slot1 is reported with 5 days to forfeit, but the balance,
	//       journal and lapse history are untouched
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, casual(date(2025, time.August, 4), date(2025, time.August, 5)))
	before := f.balance(t, "fac-1")

	rep, err := f.svc.LapseSlots(ctx, leave.LapseOptions{Now: date(2026, time.January, 5), DryRun: true})

	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Equal(t, 1, rep.Checked)
	require.Len(t, rep.Lapsed, 1)
	assert.Equal(t, leave.Slot1, rep.Lapsed[0].Slot)
	assertDecimal(t, "5", rep.Lapsed[0].Forfeited)

	after := f.balance(t, "fac-1")
	assert.Equal(t, before.Version, after.Version)
	assert.False(t, after.Slot1.Lapsed)
	assert.Empty(t, f.entries(t, "fac-1", generic.TxLapse))
	runs, err := f.svc.LapseRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLapseSlots_ForfeitsAndIsIdempotent(t *testing.T) {
	// GIVEN: fac-1 used 2 days of slot1, fac-2 used nothing
	// WHEN: Lapse runs twice as of 5 January 2026
	// THEN: Both slot1s lapse once; slot2 is not yet due; the second run
	//       finds nothing to do
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, casual(date(2025, time.August, 4), date(2025, time.August, 5)))
	_, err := f.svc.EnsureBalance(ctx, "fac-2")
	require.NoError(t, err)
	asOf := date(2026, time.January, 5)

	rep, err := f.svc.LapseSlots(ctx, leave.LapseOptions{Now: asOf})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Checked)
	assert.Zero(t, rep.Failed)
	require.Len(t, rep.Lapsed, 2)

	b := f.balance(t, "fac-1")
	assert.True(t, b.Slot1.Lapsed)
	assertDecimal(t, "0", b.Slot1.Remaining())
	assert.False(t, b.Slot2.Lapsed)
	assertDecimal(t, "8", b.Slot2.Remaining())

	lapses := f.entries(t, "fac-1", generic.TxLapse)
	require.Len(t, lapses, 1)
	assertDecimal(t, "-5", lapses[0].Delta.Value)

	runs, err := f.svc.LapseRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	again, err := f.svc.LapseSlots(ctx, leave.LapseOptions{Now: asOf})
	require.NoError(t, err)
	assert.Empty(t, again.Lapsed)
	assert.Len(t, f.entries(t, "fac-1", generic.TxLapse), 1)
}

func TestLapseSlots_Force(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureBalance(ctx, "fac-1")
	require.NoError(t, err)

	rep, err := f.svc.LapseSlots(ctx, leave.LapseOptions{Force: true})

	require.NoError(t, err)
	assert.Len(t, rep.Lapsed, 2)
	b := f.balance(t, "fac-1")
	assert.True(t, b.Slot1.Lapsed)
	assert.True(t, b.Slot2.Lapsed)

	runs, err := f.svc.LapseRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Forced)

	lapses := f.entries(t, "fac-1", generic.TxLapse)
	require.Len(t, lapses, 2)
	assert.Equal(t, "true", lapses[0].Metadata["forced"])
}

func TestSubmit_LapsedSlotRejected(t *testing.T) {
	// GIVEN: slot2 of the 2025 cycle has been force-lapsed
	// WHEN: Casual leave is requested in March 2026 (slot2)
	// THEN: SlotLapsedError, even though the slot had unused days
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureBalance(ctx, "fac-1")
	require.NoError(t, err)
	_, err = f.svc.LapseSlots(ctx, leave.LapseOptions{Force: true})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, casual(date(2026, time.March, 2), date(2026, time.March, 2)))

	var lapsed *leave.SlotLapsedError
	require.ErrorAs(t, err, &lapsed)
	assert.Equal(t, leave.Slot2, lapsed.Slot)
}

func TestReject_AfterLapseReducesUsageOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.submit(t, casual(date(2025, time.August, 4), date(2025, time.August, 6)))
	_, err := f.svc.LapseSlots(ctx, leave.LapseOptions{Now: date(2026, time.January, 5)})
	require.NoError(t, err)

	_, err = f.svc.Act(ctx, leave.ActInput{ApplicationID: app.ID, ActorID: "hod-1", Role: leave.RoleHOD, Action: leave.ActionReject})
	require.NoError(t, err)

	b := f.balance(t, "fac-1")
	assert.True(t, b.Slot1.Lapsed)
	assertDecimal(t, "0", b.Slot1.Used)
	assertDecimal(t, "0", b.Slot1.Remaining())
}

// =============================================================================
// CYCLES
// =============================================================================

func TestOpenCycle(t *testing.T) {
	// GIVEN: fac-1 on the 2025 cycle with slot1 lapsed
	// WHEN: Cycle 2026 is opened, then opened again
	// THEN: The first call refreshes both slots and journals two
	//       allocations; the second is a no-op
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureBalance(ctx, "fac-1")
	require.NoError(t, err)
	_, err = f.svc.LapseSlots(ctx, leave.LapseOptions{Now: date(2026, time.January, 5)})
	require.NoError(t, err)
	opening := len(f.entries(t, "fac-1", generic.TxAllocation))

	n, err := f.svc.OpenCycle(ctx, leave.CycleOptions{Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b := f.balance(t, "fac-1")
	assert.Equal(t, 2026, b.CycleYear)
	assert.False(t, b.Slot1.Lapsed)
	assertDecimal(t, "7", b.Slot1.Remaining())
	assertDecimal(t, "8", b.Slot2.Remaining())
	assert.Len(t, f.entries(t, "fac-1", generic.TxAllocation), opening+2)

	n, err = f.svc.OpenCycle(ctx, leave.CycleOptions{Year: 2026})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.OpenCycle(ctx, leave.CycleOptions{Year: 2025})
	require.NoError(t, err)
	assert.Zero(t, n, "an older cycle never replaces a newer one")
}

func TestOpenCycle_ResetWithCustomTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, casual(date(2025, time.August, 4), date(2025, time.August, 4)))
	six, nine := d("6"), d("9")

	n, err := f.svc.OpenCycle(ctx, leave.CycleOptions{Year: 2025, Reset: true, Slot1: &six, Slot2: &nine, Actor: "admin-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	b := f.balance(t, "fac-1")
	assertDecimal(t, "0", b.Slot1.Used)
	assertDecimal(t, "6", b.Slot1.Total)
	assertDecimal(t, "9", b.Slot2.Total)

	// A second reset on the same cycle journals under a new version.
	n, err = f.svc.OpenCycle(ctx, leave.CycleOptions{Year: 2025, Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenCycle_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.OpenCycle(ctx, leave.CycleOptions{})
	assert.ErrorIs(t, err, leave.ErrInvalidRange)

	neg := d("-1")
	_, err = f.svc.OpenCycle(ctx, leave.CycleOptions{Year: 2026, Slot1: &neg})
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestRollCycles_FollowsTheClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.EnsureBalance(ctx, "fac-1")
	require.NoError(t, err)

	n, err := f.svc.RollCycles(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "balance already on the current cycle")

	f.clock = time.Date(2026, time.July, 2, 6, 0, 0, 0, time.UTC)
	n, err = f.svc.RollCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2026, f.balance(t, "fac-1").CycleYear)
}
