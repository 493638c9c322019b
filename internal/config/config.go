// Package config loads and validates the engine configuration. The weight
// table invariant (nominal weights sum to 1.0) is checked once here, at
// startup, never per run.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultThreshold        = 70.0
	DefaultEvaluatorTimeout = 60 * time.Second
	DefaultHistoryDB        = ".abvalid/history.db"
)

// Environment override variables. Values set here win over the config file.
const (
	EnvThreshold        = "ABVALID_THRESHOLD"
	EnvEvaluatorTimeout = "ABVALID_EVALUATOR_TIMEOUT"
	EnvHistoryDB        = "ABVALID_HISTORY_DB"
)

// Config holds the engine settings.
type Config struct {
	// Weights maps evaluator name to its nominal weight. Empty means use
	// the built-in table.
	Weights map[string]float64 `yaml:"weights"`

	// Threshold is the inclusive pass mark for the final score.
	Threshold float64 `yaml:"threshold"`

	// EvaluatorTimeout bounds each evaluator call.
	EvaluatorTimeout time.Duration `yaml:"-"`

	// HistoryDB is the SQLite path for the run archive. Empty disables
	// archiving.
	HistoryDB string `yaml:"history_db"`
}

// fileConfig is the YAML schema. Durations are strings ("60s", "2m") and
// parsed on load.
type fileConfig struct {
	Weights          map[string]float64 `yaml:"weights"`
	Threshold        *float64           `yaml:"threshold"`
	EvaluatorTimeout string             `yaml:"evaluator_timeout"`
	HistoryDB        *string            `yaml:"history_db"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Threshold:        DefaultThreshold,
		EvaluatorTimeout: DefaultEvaluatorTimeout,
		HistoryDB:        DefaultHistoryDB,
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result. A missing file yields the defaults (plus overrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			if fc.Weights != nil {
				cfg.Weights = fc.Weights
			}
			if fc.Threshold != nil {
				cfg.Threshold = *fc.Threshold
			}
			if fc.HistoryDB != nil {
				cfg.HistoryDB = *fc.HistoryDB
			}
			if fc.EvaluatorTimeout != "" {
				d, err := time.ParseDuration(fc.EvaluatorTimeout)
				if err != nil {
					return nil, fmt.Errorf("config: evaluator_timeout %q: %w", fc.EvaluatorTimeout, err)
				}
				cfg.EvaluatorTimeout = d
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvThreshold); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvThreshold, v, err)
		}
		c.Threshold = t
	}
	if v := os.Getenv(EnvEvaluatorTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvEvaluatorTimeout, v, err)
		}
		c.EvaluatorTimeout = d
	}
	if v := os.Getenv(EnvHistoryDB); v != "" {
		c.HistoryDB = v
	}
	return nil
}

// Validate checks the startup invariants. A weight table that does not sum
// to 1.0 is a configuration error, fatal before any run starts.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("config: threshold %v outside [0,100]", c.Threshold)
	}
	if c.EvaluatorTimeout <= 0 {
		return fmt.Errorf("config: evaluator timeout must be positive, got %v", c.EvaluatorTimeout)
	}
	if len(c.Weights) > 0 {
		sum := 0.0
		for name, w := range c.Weights {
			if w <= 0 {
				return fmt.Errorf("config: weight for %q must be positive, got %v", name, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("config: weights sum to %v, want 1.0", sum)
		}
	}
	return nil
}
