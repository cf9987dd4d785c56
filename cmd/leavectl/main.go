/*
main.go - leavectl, the leave engine's admin command line

PURPOSE:
  Runs the maintenance jobs an administrator needs outside the HTTP API,
  against the same store and configuration as the server.

COMMANDS:
  lapse            [-force] [-dry-run] [-as-of YYYY-MM-DD]
                   Lapse casual slots whose coverage has ended
  open-cycle       -year N [-slot1 D] [-slot2 D] [-reset]
                   Start casual cycle N on every balance
  check-balance    -faculty ID
                   Print one faculty member's balance
  export           -out FILE
                   Write the balance workbook (.xlsx)
  import-holidays  -file FILE
                   Load a YAML holiday calendar into the store

GLOBAL FLAGS:
  -config  Path to a YAML config file

EXAMPLES:
  leavectl lapse -dry-run
  leavectl open-cycle -year 2026 -reset
  leavectl check-balance -faculty f-101

SEE ALSO:
  - cmd/server/main.go: the HTTP server
  - leave/service_lapse.go: LapseSlots, OpenCycle
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/app"
	"github.com/prabandh/leave-engine/config"
	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/logging"
	"github.com/prabandh/leave-engine/report"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app.App, args []string, out io.Writer) error
}

var commands = []command{
	{"lapse", "lapse casual slots whose coverage has ended", runLapse},
	{"open-cycle", "start a casual leave cycle on every balance", runOpenCycle},
	{"check-balance", "print a faculty member's balance", runCheckBalance},
	{"export", "write the balance workbook", runExport},
	{"import-holidays", "load a YAML holiday calendar", runImportHolidays},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("leavectl", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "Path to config file")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		usage(stderr)
		return 2
	}

	name, rest := global.Arg(0), global.Args()[1:]
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	// Console logs go to stderr; stdout carries command output only.
	cfg.Log.Format = "console"
	cfg.Notify.Log = false
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	// Deliver notifications raised by the command before exiting.
	notifyCtx, stopNotify := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Notifications.Run(notifyCtx)
	}()
	defer func() {
		stopNotify()
		<-done
	}()

	if err := cmd.run(ctx, a, rest, stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		logger.Error(cmd.name+" failed", zap.Error(err))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: leavectl [-config FILE] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.name, c.summary)
	}
}

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// =============================================================================
// COMMANDS
// =============================================================================

func runLapse(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("lapse", out)
	force := fs.Bool("force", false, "lapse every unlapsed slot regardless of date")
	dryRun := fs.Bool("dry-run", false, "report what would lapse without changing anything")
	asOf := fs.String("as-of", "", "evaluate as of this date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := leave.LapseOptions{Force: *force, DryRun: *dryRun}
	if *asOf != "" {
		d, err := generic.ParseDate(*asOf)
		if err != nil {
			return fmt.Errorf("%w: -as-of: %v", errUsage, err)
		}
		opts.Now = d
	}

	rep, err := a.Service.LapseSlots(ctx, opts)
	if err != nil {
		return err
	}

	verb := "Lapsed"
	if rep.DryRun {
		verb = "Would lapse"
	}
	for _, e := range rep.Lapsed {
		fmt.Fprintf(out, "%s slot %d of %s (cycle %d): %s day(s) forfeited\n",
			verb, e.Slot.Number(), e.FacultyID, e.CycleYear, e.Forfeited.StringFixed(1))
	}
	fmt.Fprintf(out, "Checked %d balance(s), %d slot(s), %d failure(s)\n", rep.Checked, len(rep.Lapsed), rep.Failed)
	if rep.Failed > 0 {
		return fmt.Errorf("%d balance(s) failed to lapse", rep.Failed)
	}
	return nil
}

func runOpenCycle(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("open-cycle", out)
	year := fs.Int("year", 0, "cycle year (required)")
	slot1 := fs.String("slot1", "", "slot 1 total (default: configured allocation)")
	slot2 := fs.String("slot2", "", "slot 2 total (default: configured allocation)")
	reset := fs.Bool("reset", false, "re-initialise balances already on this cycle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *year == 0 {
		fmt.Fprintln(out, "-year is required")
		return errUsage
	}

	opts := leave.CycleOptions{Year: *year, Reset: *reset, Actor: "leavectl"}
	for _, f := range []struct {
		raw string
		dst **decimal.Decimal
	}{{*slot1, &opts.Slot1}, {*slot2, &opts.Slot2}} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("%w: slot total %q: %v", errUsage, f.raw, err)
		}
		*f.dst = &d
	}

	opened, err := a.Service.OpenCycle(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Opened cycle %d on %d balance(s)\n", *year, opened)
	return nil
}

func runCheckBalance(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("check-balance", out)
	facultyID := fs.String("faculty", "", "faculty id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *facultyID == "" {
		fmt.Fprintln(out, "-faculty is required")
		return errUsage
	}

	b, err := a.Service.Balance(ctx, *facultyID)
	if err != nil {
		return err
	}
	member, err := a.Store.GetFaculty(ctx, *facultyID)
	if err != nil && !errors.Is(err, leave.ErrNotFound) {
		return err
	}
	return report.WriteSummary(out, b, member)
}

func runExport(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	now := time.Now()
	fs := newFlags("export", out)
	path := fs.String("out", report.Filename(now), "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	balances, err := a.Store.ListBalances(ctx)
	if err != nil {
		return err
	}
	members, err := a.Store.ListFaculty(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]leave.Faculty, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	buf, err := report.WriteBalances(balances, byID, now)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", *path, err)
	}
	fmt.Fprintf(out, "Wrote %d balance(s) to %s\n", len(balances), *path)
	return nil
}

func runImportHolidays(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlags("import-holidays", out)
	path := fs.String("file", "", "YAML holiday file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		fmt.Fprintln(out, "-file is required")
		return errUsage
	}

	n, err := a.ImportHolidays(ctx, *path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d holiday(s) from %s\n", n, *path)
	return nil
}
