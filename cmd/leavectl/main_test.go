package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/store/sqlite"
)

// setup writes a config pointing at a fresh database holding fac-1 with a
// balance on the current cycle.
func setup(t *testing.T) (configPath string, cycle int) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "leave.db")

	st, err := sqlite.New(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.SaveFaculty(ctx, leave.Faculty{ID: "fac-1", Name: "Asha Verma", Role: leave.RoleFaculty}))
	b, err := leave.NewService(st, nil).EnsureBalance(ctx, "fac-1")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	configPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("store:\n  driver: sqlite\n  sqlite_path: %s\nlog:\n  level: error\n", dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))
	return configPath, b.CycleYear
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: leavectl")

	code, _, stderr = runCLI("rebuild")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "rebuild"`)
}

func TestRun_CheckBalance(t *testing.T) {
	cfg, cycle := setup(t)

	code, stdout, stderr := runCLI("-config", cfg, "check-balance", "-faculty", "fac-1")

	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, fmt.Sprintf("Leave balance for Asha Verma (fac-1), cycle %d", cycle))
	assert.Contains(t, stdout, "Casual (slot 1)")

	code, _, _ = runCLI("-config", cfg, "check-balance")
	assert.Equal(t, 2, code, "-faculty is required")

	code, _, _ = runCLI("-config", cfg, "check-balance", "-faculty", "ghost")
	assert.Equal(t, 1, code)
}

func TestRun_LapseDryRunThenApply(t *testing.T) {
	// GIVEN: fac-1 on the current cycle
	// WHEN: lapse runs as of early January after slot 1 ended, first as a
	//       dry run and then for real
	// THEN: Both report slot 1; only the second changes the balance
	cfg, cycle := setup(t)
	asOf := generic.NewTimePoint(cycle+1, 1, 5).String()

	code, stdout, stderr := runCLI("-config", cfg, "lapse", "-dry-run", "-as-of", asOf)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, fmt.Sprintf("Would lapse slot 1 of fac-1 (cycle %d): 7.0 day(s) forfeited", cycle))

	code, stdout, _ = runCLI("-config", cfg, "lapse", "-as-of", asOf)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Lapsed slot 1 of fac-1")
	assert.Contains(t, stdout, "Checked 1 balance(s), 1 slot(s), 0 failure(s)")

	_, stdout, _ = runCLI("-config", cfg, "check-balance", "-faculty", "fac-1")
	assert.Contains(t, stdout, "Casual (slot 1) (lapsed)")

	code, _, _ = runCLI("-config", cfg, "lapse", "-as-of", "tomorrow")
	assert.Equal(t, 2, code)
}

func TestRun_OpenCycle(t *testing.T) {
	cfg, cycle := setup(t)

	code, _, _ := runCLI("-config", cfg, "open-cycle")
	assert.Equal(t, 2, code, "-year is required")

	code, stdout, stderr := runCLI("-config", cfg, "open-cycle", "-year", fmt.Sprint(cycle+1), "-slot1", "6")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, fmt.Sprintf("Opened cycle %d on 1 balance(s)", cycle+1))

	code, _, _ = runCLI("-config", cfg, "open-cycle", "-year", fmt.Sprint(cycle+1), "-slot2", "lots")
	assert.Equal(t, 2, code)
}

func TestRun_ExportAndImport(t *testing.T) {
	cfg, _ := setup(t)
	dir := t.TempDir()

	out := filepath.Join(dir, "balances.xlsx")
	code, stdout, stderr := runCLI("-config", cfg, "export", "-out", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Wrote 1 balance(s)")
	assert.FileExists(t, out)

	file := filepath.Join(dir, "holidays.yaml")
	require.NoError(t, os.WriteFile(file, []byte("holidays:\n  - date: 2025-08-15\n    name: Independence Day\n    recurring: true\n"), 0o600))
	code, stdout, stderr = runCLI("-config", cfg, "import-holidays", "-file", file)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Imported 1 holiday(s)")
}
