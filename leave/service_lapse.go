package leave

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/generic"
)

// =============================================================================
// SLOT LAPSE - Out-of-band, per balance row
// =============================================================================

// LapseSlots lapses every due casual slot across all balances. Each balance
// is handled in its own transaction; a failure is logged and counted and
// the run moves on. Only listing the balances can fail the whole run.
func (s *Service) LapseSlots(ctx context.Context, opts LapseOptions) (*LapseReport, error) {
	if opts.Now.IsZero() {
		opts.Now = generic.DateOf(s.now())
	}

	owners, err := s.Store.ListBalanceOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	report := &LapseReport{DryRun: opts.DryRun}
	for _, facultyID := range owners {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		entries, err := s.lapseOne(ctx, facultyID, opts)
		if err != nil {
			report.Failed++
			s.Logger.Error("lapse failed", zap.String("faculty_id", facultyID), zap.Error(err))
			continue
		}
		report.Lapsed = append(report.Lapsed, entries...)
	}

	s.Logger.Info("lapse run completed",
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("force", opts.Force),
		zap.Int("checked", report.Checked),
		zap.Int("lapsed", len(report.Lapsed)),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *Service) lapseOne(ctx context.Context, facultyID string, opts LapseOptions) ([]LapseEntry, error) {
	if opts.DryRun {
		b, err := s.Store.GetBalance(ctx, facultyID)
		if err != nil {
			return nil, err
		}
		var entries []LapseEntry
		for _, slot := range DueSlots(b, opts.Now, opts.Force) {
			entries = append(entries, LapseEntry{
				FacultyID: facultyID,
				CycleYear: b.CycleYear,
				Slot:      slot,
				Forfeited: b.Slot(slot).Remaining(),
			})
		}
		return entries, nil
	}

	var entries []LapseEntry
	err := s.withRetry(ctx, func(tx Tx) error {
		entries = entries[:0]
		now := s.now()

		b, err := tx.LockBalance(ctx, facultyID)
		if err != nil {
			return err
		}
		due := DueSlots(b, opts.Now, opts.Force)
		if len(due) == 0 {
			return nil
		}

		journal := generic.NewJournal(tx.Journal())
		for _, slot := range due {
			forfeited := b.LapseSlot(slot)
			if err := journal.Append(ctx, lapseEntry(b, slot, forfeited, opts.Force, now)); err != nil {
				return fmt.Errorf("failed to journal lapse of %s: %w", slot, err)
			}
			if err := tx.InsertLapseRun(ctx, LapseRun{
				ID:        uuid.NewString(),
				FacultyID: facultyID,
				CycleYear: b.CycleYear,
				Slot:      slot,
				Forfeited: forfeited,
				Forced:    opts.Force,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			entries = append(entries, LapseEntry{
				FacultyID: facultyID,
				CycleYear: b.CycleYear,
				Slot:      slot,
				Forfeited: forfeited,
			})
		}

		b.UpdatedAt = now
		return tx.UpdateBalance(ctx, b)
	})
	return entries, err
}

// LapseRuns lists recorded lapses, newest first.
func (s *Service) LapseRuns(ctx context.Context, limit int) ([]LapseRun, error) {
	return s.Store.ListLapseRuns(ctx, limit)
}

// =============================================================================
// CASUAL CYCLES
// =============================================================================

// CycleOptions controls OpenCycle.
type CycleOptions struct {
	Year  int
	Slot1 *decimal.Decimal // nil means the configured allocation
	Slot2 *decimal.Decimal
	// Reset re-initialises balances already on Year.
	Reset bool
	Actor string
}

// OpenCycle starts casual cycle Year on every balance still on an older
// cycle (or on all of them with Reset). Returns how many balances changed.
func (s *Service) OpenCycle(ctx context.Context, opts CycleOptions) (int, error) {
	if opts.Year <= 0 {
		return 0, fmt.Errorf("%w: cycle year must be positive", ErrInvalidRange)
	}
	slot1, slot2 := s.Allocations.Slot1, s.Allocations.Slot2
	if opts.Slot1 != nil {
		slot1 = *opts.Slot1
	}
	if opts.Slot2 != nil {
		slot2 = *opts.Slot2
	}
	if slot1.IsNegative() || slot2.IsNegative() {
		return 0, fmt.Errorf("%w: slot totals must not be negative", ErrInvalidRange)
	}
	if opts.Actor == "" {
		opts.Actor = "system"
	}

	owners, err := s.Store.ListBalanceOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list balances: %w", err)
	}

	opened := 0
	for _, facultyID := range owners {
		if err := ctx.Err(); err != nil {
			return opened, err
		}
		changed := false
		err := s.withRetry(ctx, func(tx Tx) error {
			changed = false
			b, err := tx.LockBalance(ctx, facultyID)
			if err != nil {
				return err
			}
			if b.CycleYear > opts.Year || (b.CycleYear == opts.Year && !opts.Reset) {
				return nil
			}

			now := s.now()
			b.OpenCycle(opts.Year, slot1, slot2)
			b.UpdatedAt = now
			if err := generic.NewJournal(tx.Journal()).AppendBatch(ctx, allocationEntries(b, now, opts.Actor, cycleKey(facultyID, opts.Year, b.Version))); err != nil {
				return fmt.Errorf("failed to journal cycle: %w", err)
			}
			if err := tx.UpdateBalance(ctx, b); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return opened, fmt.Errorf("failed to open cycle for %s: %w", facultyID, err)
		}
		if changed {
			opened++
		}
	}

	s.Logger.Info("casual cycle opened", zap.Int("year", opts.Year), zap.Int("balances", opened), zap.Bool("reset", opts.Reset))
	return opened, nil
}

// RollCycles opens the cycle in effect today on balances that lag behind.
// Run after LapseSlots so the old cycle's forfeits are recorded first.
func (s *Service) RollCycles(ctx context.Context) (int, error) {
	return s.OpenCycle(ctx, CycleOptions{Year: CycleFor(generic.DateOf(s.now()))})
}
