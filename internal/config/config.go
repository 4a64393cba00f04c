// Package config loads the server configuration from a YAML file and the
// environment. Environment variables override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/railtwin/traincontrol/internal/platform/optimization"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full server configuration.
type Config struct {
	ListenAddr   string `yaml:"listenAddr"`
	DatabasePath string `yaml:"databasePath"` // Empty disables persistence
	FixturePath  string `yaml:"fixturePath"`  // Empty uses the embedded network tables

	DefaultRegion string        `yaml:"defaultRegion"`
	TickRate      time.Duration `yaml:"tickRate"`
	KPIInterval   time.Duration `yaml:"kpiInterval"`

	// SnapshotSchedule is the cron expression of the KPI snapshot job.
	SnapshotSchedule string `yaml:"snapshotSchedule"`
	TuningProfile    string `yaml:"tuningProfile"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		DatabasePath:     "traincontrol.db",
		DefaultRegion:    "Delhi Division",
		TickRate:         time.Second,
		KPIInterval:      5 * time.Second,
		SnapshotSchedule: "@every 5s",
		TuningProfile:    optimization.ProfileDefault,
	}
}

// Load reads the optional file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	applyEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides individual settings from TRAINCONTROL_* variables.
// Malformed durations are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TRAINCONTROL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("TRAINCONTROL_DB_PATH"); ok {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("TRAINCONTROL_FIXTURES"); v != "" {
		cfg.FixturePath = v
	}
	if v := os.Getenv("TRAINCONTROL_REGION"); v != "" {
		cfg.DefaultRegion = v
	}
	if v := os.Getenv("TRAINCONTROL_TICK_RATE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TickRate = d
		}
	}
	if v := os.Getenv("TRAINCONTROL_SNAPSHOT_SCHEDULE"); v != "" {
		cfg.SnapshotSchedule = v
	}
	if v := os.Getenv("TRAINCONTROL_TUNING"); v != "" {
		cfg.TuningProfile = v
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("%w: listenAddr is required", ErrInvalidConfig)
	}
	if cfg.TickRate <= 0 {
		return fmt.Errorf("%w: tickRate must be greater than 0", ErrInvalidConfig)
	}
	if cfg.KPIInterval <= 0 {
		return fmt.Errorf("%w: kpiInterval must be greater than 0", ErrInvalidConfig)
	}
	if cfg.SnapshotSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SnapshotSchedule); err != nil {
			return fmt.Errorf("%w: snapshotSchedule %q: %v", ErrInvalidConfig, cfg.SnapshotSchedule, err)
		}
	}
	if !optimization.KnownProfile(cfg.TuningProfile) {
		return fmt.Errorf("%w: unknown tuningProfile %q", ErrInvalidConfig, cfg.TuningProfile)
	}
	return nil
}

// Tuning returns the concurrency preset selected by TuningProfile.
func (c *Config) Tuning() *optimization.Tuning {
	return optimization.ForProfile(c.TuningProfile)
}
