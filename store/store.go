// Package store opens the configured persistence backend.
//
// Both backends implement the same surface: the leave core's Store, the
// faculty directory, the holiday calendar and the notification inbox.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/config"
	"github.com/prabandh/leave-engine/holidays"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/notify"
	"github.com/prabandh/leave-engine/store/postgres"
	"github.com/prabandh/leave-engine/store/sqlite"
)

// Backend is everything the binaries need from persistence.
type Backend interface {
	leave.Store

	SaveFaculty(ctx context.Context, f leave.Faculty) error
	GetFaculty(ctx context.Context, id string) (*leave.Faculty, error)
	ListFaculty(ctx context.Context) ([]leave.Faculty, error)

	SaveHoliday(ctx context.Context, h holidays.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context) ([]holidays.Holiday, error)

	SaveNotification(ctx context.Context, n notify.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notify.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open connects to the backend cfg.Driver names. Postgres schemas are
// migrated when cfg.Migrate is set; SQLite always creates its schema.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Backend, error) {
	logger = logger.Named("store")

	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", zap.String("driver", cfg.Driver), zap.String("path", cfg.SQLitePath))
		return s, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := s.Migrate(logger); err != nil {
				s.Close()
				return nil, err
			}
		}
		logger.Info("store opened", zap.String("driver", cfg.Driver), zap.Int32("max_conns", cfg.MaxConns))
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
