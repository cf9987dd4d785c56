/*
scheduler.go - Automated casual slot lapse

PURPOSE:
  Periodically applies the slot lapse policy and then rolls balances that
  lag behind onto the casual cycle in effect today.

DESIGN:
  - Run blocks until its context is cancelled; cmd/server joins it through
    an errgroup alongside the HTTP listener
  - Each tick: LapseSlots (forfeit slots whose coverage ended), then
    RollCycles (open the current cycle). The order matters: a slot is
    forfeited against the cycle it belonged to before the balance moves on
  - Lapse is idempotent per balance version, so overlapping or repeated
    ticks are harmless
  - Every outcome lands in lapse_runs and the balance journal

CONFIGURATION:
  - Interval:   How often to check (default: 24 hours)
  - RunOnStart: Also check once immediately

SEE ALSO:
  - handlers.go: RunLapse endpoint (manual trigger)
  - leave/service_lapse.go: LapseSlots, RollCycles
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/leave"
)

// LapseScheduler runs the lapse policy on a ticker.
type LapseScheduler struct {
	Service    *leave.Service
	Interval   time.Duration
	RunOnStart bool
	Logger     *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewLapseScheduler creates a daily scheduler that also runs on start.
func NewLapseScheduler(svc *leave.Service, logger *zap.Logger) *LapseScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LapseScheduler{
		Service:    svc,
		Interval:   24 * time.Hour,
		RunOnStart: true,
		Logger:     logger.Named("scheduler"),
	}
}

// Run checks on every tick until ctx is cancelled. It always returns nil
// so a cancelled scheduler does not fail its errgroup.
func (ls *LapseScheduler) Run(ctx context.Context) error {
	ls.Logger.Info("lapse scheduler started", zap.Duration("interval", ls.Interval))
	defer ls.Logger.Info("lapse scheduler stopped")

	if ls.RunOnStart {
		ls.RunNow(ctx)
	}

	ticker := time.NewTicker(ls.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ls.RunNow(ctx)
		}
	}
}

// RunNow lapses due slots and rolls cycles once.
func (ls *LapseScheduler) RunNow(ctx context.Context) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	rep, err := ls.Service.LapseSlots(ctx, leave.LapseOptions{})
	if err != nil {
		ls.Logger.Error("lapse run failed", zap.Error(err))
		return
	}
	if len(rep.Lapsed) > 0 || rep.Failed > 0 {
		ls.Logger.Info("lapse run",
			zap.Int("checked", rep.Checked),
			zap.Int("lapsed", len(rep.Lapsed)),
			zap.Int("failed", rep.Failed))
	}

	opened, err := ls.Service.RollCycles(ctx)
	if err != nil {
		ls.Logger.Error("cycle roll failed", zap.Error(err))
		return
	}
	if opened > 0 {
		ls.Logger.Info("casual cycles rolled", zap.Int("balances", opened))
	}
	ls.lastRun = time.Now()
}

// NextRunTime returns when the next scheduled check will occur.
func (ls *LapseScheduler) NextRunTime() time.Time {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.lastRun.IsZero() {
		return time.Now().Add(ls.Interval)
	}
	return ls.lastRun.Add(ls.Interval)
}
