package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/holidays"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/notify"
	"github.com/prabandh/leave-engine/store/sqlite"
)

var now = time.Date(2025, time.August, 4, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertBalance(t *testing.T, s *sqlite.Store, facultyID string) *leave.Balance {
	t.Helper()
	b := leave.NewBalance(facultyID, 2025, leave.DefaultAllocations())
	b.CreatedAt, b.UpdatedAt = now, now
	require.NoError(t, s.WithTx(context.Background(), func(tx leave.Tx) error {
		return tx.InsertBalance(context.Background(), b)
	}))
	return b
}

func journalEntry(id, key string) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		EntityID:       "fac-1",
		BucketID:       "medical",
		ResourceType:   leave.Medical,
		EffectiveAt:    generic.NewTimePoint(2025, time.August, 4),
		Delta:          generic.NewAmountFromDecimal(generic.MustParseDecimal("-2"), generic.UnitDays),
		Type:           generic.TxDeduction,
		IdempotencyKey: key,
		Metadata:       map[string]string{"source": "test"},
	}
}

func application(id, facultyID string, t leave.Type, from, to string, status leave.Status) *leave.Application {
	f, _ := generic.ParseDate(from)
	e, _ := generic.ParseDate(to)
	return &leave.Application{
		ID: id, FacultyID: facultyID, Type: t, FromDate: f, ToDate: e,
		Days: generic.MustParseDecimal("1"), Reason: "r", Status: status,
		AppliedAt: now, UpdatedAt: now,
	}
}

// =============================================================================
// BALANCES
// =============================================================================

func TestBalance_RoundTrip(t *testing.T) {
	s := newStore(t)
	insertBalance(t, s, "fac-1")

	got, err := s.GetBalance(context.Background(), "fac-1")

	require.NoError(t, err)
	assert.Equal(t, 2025, got.CycleYear)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "7", got.Slot1.Total.String())
	assert.Equal(t, "12", got.Buckets[leave.Medical].Allocated.String())
	assert.Len(t, got.Buckets, len(leave.FlatTypes))
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestGetBalance_NotFound(t *testing.T) {
	_, err := newStore(t).GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestInsertBalance_TwiceIsAConflict(t *testing.T) {
	s := newStore(t)
	insertBalance(t, s, "fac-1")

	err := s.WithTx(context.Background(), func(tx leave.Tx) error {
		return tx.InsertBalance(context.Background(), leave.NewBalance("fac-1", 2025, leave.DefaultAllocations()))
	})

	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
}

func TestUpdateBalance_StaleVersion(t *testing.T) {
	// GIVEN: Two copies of fac-1's balance read at version 1
	// WHEN: The first is written, then the second
	// THEN: The first bumps the version; the second is rejected and
	//       leaves the stored row alone
	s := newStore(t)
	ctx := context.Background()
	stale := insertBalance(t, s, "fac-1")

	require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
		b, err := tx.LockBalance(ctx, "fac-1")
		if err != nil {
			return err
		}
		b.Slot1.Used = generic.MustParseDecimal("2")
		b.Buckets[leave.Medical] = leave.Bucket{Allocated: generic.MustParseDecimal("12"), Used: generic.MustParseDecimal("1.5")}
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return err
		}
		assert.Equal(t, int64(2), b.Version)
		return nil
	}))

	stale.Slot1.Used = generic.MustParseDecimal("5")
	err := s.WithTx(ctx, func(tx leave.Tx) error { return tx.UpdateBalance(ctx, stale) })
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := s.GetBalance(ctx, "fac-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "2", got.Slot1.Used.String())
	assert.Equal(t, "1.5", got.Buckets[leave.Medical].Used.String())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx leave.Tx) error {
		if err := tx.InsertBalance(ctx, leave.NewBalance("fac-1", 2025, leave.DefaultAllocations())); err != nil {
			return err
		}
		if err := tx.Journal().Append(ctx, journalEntry("j-1", "deduct-a-1")); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = s.GetBalance(ctx, "fac-1")
	assert.ErrorIs(t, err, leave.ErrNotFound)
	exists, err := s.Exists(ctx, "deduct-a-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListBalanceOwners(t *testing.T) {
	s := newStore(t)
	insertBalance(t, s, "fac-2")
	insertBalance(t, s, "fac-1")

	owners, err := s.ListBalanceOwners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fac-1", "fac-2"}, owners)

	all, err := s.ListBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "fac-1", all[0].FacultyID)
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestJournal_DuplicateKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, journalEntry("j-1", "deduct-a-1")))
	err := s.Append(ctx, journalEntry("j-2", "deduct-a-1"))
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	err = s.AppendBatch(ctx, []generic.Transaction{
		journalEntry("j-3", "restore-a-1"),
		journalEntry("j-4", "deduct-a-1"),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	entries, err := s.Load(ctx, "fac-1")
	require.NoError(t, err)
	require.Len(t, entries, 1, "a failed batch writes nothing")
	assert.Equal(t, "-2", entries[0].Delta.Value.String())
	assert.Equal(t, "test", entries[0].Metadata["source"])
	assert.Equal(t, leave.Medical, entries[0].ResourceType)
}

func TestJournal_LoadBucket(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	other := journalEntry("j-2", "")
	other.BucketID = "casual/slot1"
	other.ResourceType = leave.Casual

	require.NoError(t, s.AppendBatch(ctx, []generic.Transaction{journalEntry("j-1", ""), other}))

	entries, err := s.LoadBucket(ctx, "fac-1", "casual/slot1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.TransactionID("j-2"), entries[0].ID)
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func TestApplications_InsertUpdateAndAdjust(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	app := application("a-1", "fac-1", leave.Casual, "2025-08-04", "2025-08-06", leave.StatusForwardedToHOD)
	app.Route = leave.RouteHOD
	app.Target = leave.RouteVC
	app.Slot = leave.Slot1
	app.CycleYear = 2025

	require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
		if err := tx.InsertApplication(ctx, app); err != nil {
			return err
		}
		return tx.ReplaceAdjustments(ctx, app.ID, []leave.ClassAdjustment{
			{ID: "adj-1", Course: "B.Tech", Subject: "Compilers", ConcernedTeacher: "fac-2"},
		})
	}))

	got, err := s.GetApplication(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, leave.RouteHOD, got.Route)
	assert.Equal(t, leave.RouteVC, got.Target)
	assert.Equal(t, leave.Slot1, got.Slot)
	assert.Equal(t, 2025, got.CycleYear)
	assert.Equal(t, "2025-08-06", got.ToDate.String())
	require.Len(t, got.Adjustments, 1)
	assert.Equal(t, "Compilers", got.Adjustments[0].Subject)

	require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
		a, err := tx.GetApplication(ctx, "a-1")
		if err != nil {
			return err
		}
		a.Status = leave.StatusRejectedByHOD
		a.BalanceRestored = true
		a.ActedBy = "hod-1"
		if err := tx.UpdateApplication(ctx, a); err != nil {
			return err
		}
		return tx.ReplaceAdjustments(ctx, a.ID, nil)
	}))

	got, err = s.GetApplication(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejectedByHOD, got.Status)
	assert.True(t, got.BalanceRestored)
	assert.Equal(t, "hod-1", got.ActedBy)
	assert.Empty(t, got.Adjustments)
}

func TestApplications_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetApplication(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrNotFound)

	err = s.WithTx(ctx, func(tx leave.Tx) error {
		return tx.UpdateApplication(ctx, application("missing", "fac-1", leave.Casual, "2025-08-04", "2025-08-04", leave.StatusCancelled))
	})
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestListApplications_Filter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	pending := application("a-1", "fac-1", leave.Casual, "2025-08-04", "2025-08-04", leave.StatusPending)
	approved := application("a-2", "fac-1", leave.Medical, "2025-09-01", "2025-09-02", leave.StatusApprovedByHOD)
	approved.AppliedAt = now.Add(time.Hour)
	otherFaculty := application("a-3", "fac-2", leave.Casual, "2025-08-04", "2025-08-04", leave.StatusPending)
	require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
		for _, a := range []*leave.Application{pending, approved, otherFaculty} {
			if err := tx.InsertApplication(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}))

	mine, err := s.ListApplications(ctx, leave.ApplicationFilter{FacultyID: "fac-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a-2", mine[0].ID, "newest first")

	open, err := s.ListApplications(ctx, leave.ApplicationFilter{Statuses: []leave.Status{leave.StatusPending}})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	limited, err := s.ListApplications(ctx, leave.ApplicationFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHasOverlap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
		if err := tx.InsertApplication(ctx, application("a-1", "fac-1", leave.Medical, "2025-08-04", "2025-08-06", leave.StatusPending)); err != nil {
			return err
		}
		return tx.InsertApplication(ctx, application("a-2", "fac-1", leave.Duty, "2025-09-01", "2025-09-01", leave.StatusCancelled))
	}))

	blocking := []leave.Status{leave.StatusPending, leave.StatusApprovedByHOD}
	query := func(from, to string) leave.OverlapQuery {
		f, _ := generic.ParseDate(from)
		e, _ := generic.ParseDate(to)
		return leave.OverlapQuery{FacultyID: "fac-1", From: f, To: e, ExcludeType: leave.Casual, Statuses: blocking}
	}

	tests := []struct {
		name string
		q    leave.OverlapQuery
		want bool
	}{
		{"touches last day", query("2025-08-06", "2025-08-08"), true},
		{"inside", query("2025-08-05", "2025-08-05"), true},
		{"day after", query("2025-08-07", "2025-08-08"), false},
		{"cancelled application ignored", query("2025-09-01", "2025-09-01"), false},
		{"other faculty", func() leave.OverlapQuery { q := query("2025-08-04", "2025-08-04"); q.FacultyID = "fac-2"; return q }(), false},
		{"excluded type", func() leave.OverlapQuery { q := query("2025-08-04", "2025-08-04"); q.ExcludeType = leave.Medical; return q }(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
				var err error
				got, err = tx.HasOverlap(ctx, tt.q)
				return err
			}))
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// DIRECTORY, HOLIDAYS, NOTIFICATIONS, LAPSE RUNS
// =============================================================================

func TestFaculty_Upsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFaculty(ctx, leave.Faculty{ID: "f-204", Name: "S. Menon", Role: leave.RoleVC}))
	require.NoError(t, s.SaveFaculty(ctx, leave.Faculty{ID: "f-204", Name: "S. Menon", Email: "menon@univ.edu", Role: leave.RoleHR}))

	got, err := s.GetFaculty(ctx, "f-204")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleHR, got.Role)
	assert.Equal(t, "menon@univ.edu", got.Email)

	all, err := s.ListFaculty(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.GetFaculty(ctx, "ghost")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestHolidays(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	diwali := holidays.Holiday{ID: "h-2", Date: generic.NewTimePoint(2025, time.October, 21), Name: "Diwali"}
	republic := holidays.Holiday{ID: "h-1", Date: generic.NewTimePoint(2025, time.January, 26), Name: "Republic Day"}

	require.NoError(t, s.SaveHoliday(ctx, diwali))
	require.NoError(t, s.SaveHoliday(ctx, republic))
	republic.ID = "h-dup"
	republic.Recurring = true
	require.NoError(t, s.SaveHoliday(ctx, republic), "same date and name updates in place")

	hs, err := s.ListHolidays(ctx)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "h-1", hs[0].ID)
	assert.True(t, hs[0].Recurring)
	assert.Equal(t, "Diwali", hs[1].Name)

	require.NoError(t, s.DeleteHoliday(ctx, "h-2"))
	assert.ErrorIs(t, s.DeleteHoliday(ctx, "h-2"), leave.ErrNotFound)
}

func TestNotifications(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveNotification(ctx, notify.Notification{ID: "n-1", UserID: "fac-1", Title: "Submitted", CreatedAt: now}))
	require.NoError(t, s.SaveNotification(ctx, notify.Notification{ID: "n-2", UserID: "fac-1", Title: "Approved", CreatedAt: now.Add(time.Hour)}))
	require.NoError(t, s.SaveNotification(ctx, notify.Notification{ID: "n-3", UserID: "fac-2", Title: "Submitted", CreatedAt: now}))

	require.NoError(t, s.MarkNotificationRead(ctx, "n-1"))

	all, err := s.ListNotifications(ctx, "fac-1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Approved", all[0].Title, "newest first")
	assert.True(t, all[1].Read)

	unread, err := s.ListNotifications(ctx, "fac-1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n-2", unread[0].ID)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "missing"), leave.ErrNotFound)
}

func TestLapseRuns_NewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx leave.Tx) error {
		for i, slot := range []leave.Slot{leave.Slot1, leave.Slot2} {
			err := tx.InsertLapseRun(ctx, leave.LapseRun{
				ID: string(slot), FacultyID: "fac-1", CycleYear: 2025, Slot: slot,
				Forfeited: generic.MustParseDecimal("3"), Forced: i == 1, CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	runs, err := s.ListLapseRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, leave.Slot2, runs[0].Slot)
	assert.True(t, runs[0].Forced)
	assert.Equal(t, "3", runs[0].Forfeited.String())

	runs, err = s.ListLapseRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNew_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveFaculty(context.Background(), leave.Faculty{ID: "fac-1", Name: "Asha", Role: leave.RoleFaculty}))
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Ping(context.Background()))
	got, err := reopened.GetFaculty(context.Background(), "fac-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
}
