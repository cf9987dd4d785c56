package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prabandh/leave-engine/config"
	"github.com/prabandh/leave-engine/leave"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// =============================================================================
// LOAD
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORS.AllowOrigins)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "./data/leave.db", cfg.Store.SQLitePath)
	assert.Equal(t, 3, cfg.Leave.MaxRetries)
	assert.True(t, cfg.Lapse.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Lapse.Interval)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
}

func TestLoad_File(t *testing.T) {
	// GIVEN: A YAML file selecting postgres and overriding two allocations
	// WHEN: It is loaded
	// THEN: The file wins over defaults and the allocations merge onto
	//       the default entitlement
	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: postgres
  postgres_dsn: postgres://leave@localhost/leave
lapse:
  interval: 6h
leave:
  allocations:
    medical: 10
    casual_slot1: 6
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 6*time.Hour, cfg.Lapse.Interval)

	alloc, err := cfg.Leave.Entitlement()
	require.NoError(t, err)
	assert.Equal(t, "10", alloc.Flat[leave.Medical].String())
	assert.Equal(t, "6", alloc.Slot1.String())
	assert.Equal(t, "8", alloc.Slot2.String())
}

func TestLoad_EnvironmentWins(t *testing.T) {
	t.Setenv("LEAVE_SERVER_PORT", "7070")
	t.Setenv("LEAVE_STORE_SQLITE_PATH", "/tmp/leave-test.db")

	cfg, err := config.Load(writeConfig(t, "server:\n  port: 9090\n"))

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/leave-test.db", cfg.Store.SQLitePath)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := config.Load(writeConfig(t, "server: [\n"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// VALIDATE
// =============================================================================

func valid() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Store:  config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"},
		Leave:  config.LeaveConfig{MaxRetries: 3},
		Lapse:  config.LapseConfig{Enabled: true, Interval: time.Hour},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"port zero", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "mysql" }, `unknown store.driver "mysql"`},
		{"sqlite without path", func(c *config.Config) { c.Store.SQLitePath = "" }, "store.sqlite_path"},
		{"postgres without dsn", func(c *config.Config) { c.Store.Driver = config.DriverPostgres }, "store.postgres_dsn"},
		{"zero interval", func(c *config.Config) { c.Lapse.Interval = 0 }, "lapse.interval"},
		{"zero interval while disabled", func(c *config.Config) { c.Lapse = config.LapseConfig{} }, ""},
		{"no retries", func(c *config.Config) { c.Leave.MaxRetries = 0 }, "leave.max_retries"},
		{"negative allocation", func(c *config.Config) {
			c.Leave.Allocations = map[string]float64{"earned": -1}
		}, "leave.allocations"},
		{"unknown allocation", func(c *config.Config) {
			c.Leave.Allocations = map[string]float64{"sabbatical": 30}
		}, "leave.allocations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
