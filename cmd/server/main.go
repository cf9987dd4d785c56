/*
main.go - Application entry point

PURPOSE:
  Starts the faculty leave server: HTTP API, lapse scheduler and the
  notification worker, all stopped together on SIGINT/SIGTERM.

STARTUP SEQUENCE:
  1. Load configuration (flags, config.yaml, LEAVE_* environment, .env)
  2. Build the zap logger
  3. Open the store (SQLite or Postgres, migrating Postgres)
  4. Load the holiday calendar, build the leave service
  5. Run HTTP server, scheduler and notifier under one errgroup

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config.yaml or
           ./config/config.yaml when present)
  -port    Overrides server.port

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the errgroup context is cancelled:
  1. The HTTP server stops accepting connections and drains requests
     (server.shutdown_timeout)
  2. The scheduler returns after its current tick
  3. The notifier flushes queued messages once the server has stopped
  4. The store is closed

EXAMPLES:
  # SQLite file database
  LEAVE_STORE_SQLITE_PATH=./data/leave.db ./server

  # Postgres
  LEAVE_STORE_DRIVER=postgres LEAVE_STORE_POSTGRES_DSN=postgres://... ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Every setting and its default
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prabandh/leave-engine/api"
	"github.com/prabandh/leave-engine/app"
	"github.com/prabandh/leave-engine/config"
	"github.com/prabandh/leave-engine/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.Service, a.Store, a.Calendar, logger)
	router := api.NewRouter(handler, api.RouterOptions{AllowOrigins: cfg.Server.CORS.AllowOrigins})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The notifier outlives gctx so messages from requests still in flight
	// during Shutdown are queued before the final drain.
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", server.Addr), zap.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return shutdown(server, cfg.Server.ShutdownTimeout, stopNotify)
	})

	g.Go(func() error {
		return a.Notifications.Run(notifyCtx)
	})

	if cfg.Lapse.Enabled {
		scheduler := api.NewLapseScheduler(a.Service, logger)
		scheduler.Interval = cfg.Lapse.Interval
		scheduler.RunOnStart = cfg.Lapse.RunOnStart
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains the server, then calls after. Requests finishing during
// the drain may still queue notifications, so after runs last.
func shutdown(server shutdowner, timeout time.Duration, after func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := server.Shutdown(ctx)
	after()
	return err
}
