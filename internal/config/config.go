// Package config loads aimodeler configuration from aimodeler.yaml in
// the workspace, applying defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"aimodeler/internal/plan"
)

// Config holds all aimodeler configuration.
type Config struct {
	// Default length units for generated plans.
	Units string `yaml:"units"`

	// Remote planner service.
	Planner PlannerConfig `yaml:"planner"`

	// Execution history store.
	History HistoryConfig `yaml:"history"`

	// Material presets.
	Materials MaterialsConfig `yaml:"materials"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// PlannerConfig configures the remote planner client. An empty BaseURL
// disables remote planning entirely; the rule planner serves directly.
type PlannerConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	MaxAttempts       int    `yaml:"max_attempts"`
	BaseDelayMS       int    `yaml:"base_delay_ms"`
	MaxDelayMS        int    `yaml:"max_delay_ms"`
	AttemptTimeoutSec int    `yaml:"attempt_timeout_sec"`
}

// HistoryConfig configures the sqlite execution-history store.
type HistoryConfig struct {
	Path string `yaml:"path"` // relative paths resolve against the workspace
}

// MaterialsConfig configures preset loading.
type MaterialsConfig struct {
	// Path to a presets JSON file; empty means the built-in set.
	Path string `yaml:"path"`
}

// LoggingConfig mirrors the logging package's gate. The logging package
// reads this section itself to avoid an import cycle.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Units: plan.UnitMeters,
		Planner: PlannerConfig{
			MaxAttempts:       3,
			BaseDelayMS:       500,
			MaxDelayMS:        5000,
			AttemptTimeoutSec: 15,
		},
		History: HistoryConfig{Path: filepath.Join(".aimodeler", "history.db")},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads <workspace>/aimodeler.yaml over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, "aimodeler.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets credentials and endpoint come from the
// environment so they stay out of the yaml file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AIMODELER_API_KEY"); v != "" {
		cfg.Planner.APIKey = v
	}
	if v := os.Getenv("AIMODELER_BASE_URL"); v != "" {
		cfg.Planner.BaseURL = v
	}
	if v := os.Getenv("AIMODELER_UNITS"); v != "" {
		cfg.Units = v
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if !plan.ValidUnit(c.Units) {
		return fmt.Errorf("invalid units %q (want M, CM or MM)", c.Units)
	}
	if c.Planner.MaxAttempts < 1 {
		return fmt.Errorf("planner.max_attempts must be >= 1, got %d", c.Planner.MaxAttempts)
	}
	if c.Planner.BaseDelayMS < 0 || c.Planner.MaxDelayMS < 0 || c.Planner.AttemptTimeoutSec < 0 {
		return fmt.Errorf("planner delays and timeout must be non-negative")
	}
	return nil
}

// HistoryPath resolves the history db path against the workspace.
func (c *Config) HistoryPath(workspace string) string {
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(workspace, c.History.Path)
}

// BaseDelay returns the first backoff delay as a duration.
func (p PlannerConfig) BaseDelay() time.Duration {
	return time.Duration(p.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the planner backoff cap as a duration.
func (p PlannerConfig) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMS) * time.Millisecond
}

// AttemptTimeout returns the per-attempt deadline as a duration.
func (p PlannerConfig) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutSec) * time.Second
}
