// Package config loads the leave engine's configuration.
//
// Precedence: environment (LEAVE_ prefix, "." becomes "_") over the YAML
// file over defaults. A .env file in the working directory is loaded into
// the environment first, if present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/prabandh/leave-engine/leave"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
	Leave    LeaveConfig    `mapstructure:"leave"`
	Lapse    LapseConfig    `mapstructure:"lapse"`
	Holidays HolidaysConfig `mapstructure:"holidays"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
	Migrate     bool   `mapstructure:"migrate"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// LeaveConfig holds the entitlement new balances start with.
type LeaveConfig struct {
	// Allocations overrides default days per leave type. Casual leave is
	// set through casual_slot1 and casual_slot2.
	Allocations map[string]float64 `mapstructure:"allocations"`
	MaxRetries  int                `mapstructure:"max_retries"`
}

// Entitlement converts Allocations into leave.Allocations.
func (c LeaveConfig) Entitlement() (leave.Allocations, error) {
	return leave.AllocationsFromMap(c.Allocations)
}

// LapseConfig drives the background lapse scheduler.
type LapseConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// HolidaysConfig optionally seeds the calendar from a YAML file at startup.
type HolidaysConfig struct {
	File string `mapstructure:"file"`
}

// NotifyConfig configures notification delivery.
type NotifyConfig struct {
	QueueSize int  `mapstructure:"queue_size"`
	Log       bool `mapstructure:"log"`
}

// Load reads configuration from path (or ./config.yaml, ./config/config.yaml)
// and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.allow_origins", []string{"*"})

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "./data/leave.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("leave.allocations", map[string]float64{})
	v.SetDefault("leave.max_retries", 3)

	v.SetDefault("lapse.enabled", true)
	v.SetDefault("lapse.interval", "24h")
	v.SetDefault("lapse.run_on_start", true)

	v.SetDefault("holidays.file", "")

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.log", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("invalid config: store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("invalid config: store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Lapse.Enabled && c.Lapse.Interval <= 0 {
		return fmt.Errorf("invalid config: lapse.interval must be positive")
	}
	if c.Leave.MaxRetries < 1 {
		return fmt.Errorf("invalid config: leave.max_retries must be at least 1")
	}
	if _, err := c.Leave.Entitlement(); err != nil {
		return fmt.Errorf("invalid config: leave.allocations: %w", err)
	}
	return nil
}
