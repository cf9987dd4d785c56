// Package app assembles the leave engine from configuration. Both the HTTP
// server and leavectl start here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/config"
	"github.com/prabandh/leave-engine/holidays"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/notify"
	"github.com/prabandh/leave-engine/store"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    store.Backend
	Calendar *holidays.Calendar
	Service  *leave.Service

	// Notifications is the delivery queue. Its Run must be started for
	// messages to leave the queue.
	Notifications *notify.Async
}

// New opens the store, loads the holiday calendar and builds the service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	alloc, err := cfg.Leave.Entitlement()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cal := holidays.NewCalendar()
	if cfg.Holidays.File != "" {
		if err := seedHolidays(ctx, st, cfg.Holidays.File); err != nil {
			st.Close()
			return nil, err
		}
		logger.Info("holiday calendar seeded", zap.String("file", cfg.Holidays.File))
	}
	if err := cal.Reload(ctx, st); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}

	var sinks notify.Multi
	sinks = append(sinks, notify.NewInbox(st))
	if cfg.Notify.Log {
		sinks = append(sinks, notify.Log{Logger: logger.Named("notify")})
	}
	queue := notify.NewAsync(sinks, cfg.Notify.QueueSize, logger)

	svc := leave.NewService(st, logger)
	svc.Calendar = cal
	svc.Roles = leave.DirectoryRoles{Directory: st}
	svc.Notifier = queue
	svc.Allocations = alloc
	svc.MaxRetries = cfg.Leave.MaxRetries

	return &App{
		Config:        cfg,
		Logger:        logger,
		Store:         st,
		Calendar:      cal,
		Service:       svc,
		Notifications: queue,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// ImportHolidays saves every holiday in a YAML file and reloads the calendar.
func (a *App) ImportHolidays(ctx context.Context, path string) (int, error) {
	hs, err := holidays.LoadFile(path)
	if err != nil {
		return 0, err
	}
	for _, h := range hs {
		if err := a.Store.SaveHoliday(ctx, h); err != nil {
			return 0, err
		}
	}
	return len(hs), a.Calendar.Reload(ctx, a.Store)
}

func seedHolidays(ctx context.Context, st store.Backend, path string) error {
	hs, err := holidays.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read holiday file: %w", err)
	}
	for _, h := range hs {
		if err := st.SaveHoliday(ctx, h); err != nil {
			return fmt.Errorf("failed to seed holiday %s: %w", h.Date, err)
		}
	}
	return nil
}
