// Package config loads the bookpipe YAML configuration file and layers
// environment overrides on top of it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the top-level configuration document. Every section has a
// working default so a missing or minimal file still yields a runnable
// setup.
type Config struct {
	Logging    LoggingConfig       `yaml:"logging"`
	Checkpoint CheckpointConfig    `yaml:"checkpoint"`
	Retry      RetryConfig         `yaml:"retry"`
	Backoff    BackoffConfig       `yaml:"backoff"`
	Fallbacks  map[string][]string `yaml:"fallbacks"`
	Steps      []StepConfig        `yaml:"steps"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// CheckpointConfig selects the state backend and where the file backend
// keeps its checkpoint documents and pause markers.
type CheckpointConfig struct {
	Dir     string `yaml:"dir"`
	Backend string `yaml:"backend"` // file, sqlite, redis
}

type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	CallTimeout time.Duration `yaml:"call_timeout"` // 0 = no per-call timeout
}

// BackoffConfig mirrors backoff.Policy; zero values fall through to the
// policy defaults.
type BackoffConfig struct {
	TransientBase time.Duration `yaml:"transient_base"`
	RateLimitBase time.Duration `yaml:"rate_limit_base"`
	EmptyBase     time.Duration `yaml:"empty_base"`
	CapFactor     int           `yaml:"cap_factor"`
}

// StepConfig declares one pipeline step. Steps with Items run once per
// item; Command is the external program producing the step result, run
// with the step, provider, and item exposed through the environment.
type StepConfig struct {
	Name         string   `yaml:"name"`
	Provider     string   `yaml:"provider"`
	MinResultLen int      `yaml:"min_result_len"`
	Items        []string `yaml:"items"`
	Command      []string `yaml:"command"`
}

// Load reads a YAML config file, expands ${VAR} references, applies
// defaults, and overlays BOOKPIPE_* environment variables. A missing
// file is not an error: defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Checkpoint.Dir == "" {
		c.Checkpoint.Dir = "./output"
	}
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = "file"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOOKPIPE_STATE_BACKEND"); v != "" {
		c.Checkpoint.Backend = v
	}
	if v := os.Getenv("BOOKPIPE_CHECKPOINT_DIR"); v != "" {
		c.Checkpoint.Dir = v
	}
	c.Retry.MaxRetries = ParseIntEnv("BOOKPIPE_MAX_RETRIES", c.Retry.MaxRetries)
	c.Retry.CallTimeout = ParseDurationEnv("BOOKPIPE_CALL_TIMEOUT", c.Retry.CallTimeout)
	if v := os.Getenv("BOOKPIPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1, got %d", c.Retry.MaxRetries)
	}
	seen := make(map[string]struct{}, len(c.Steps))
	for i, step := range c.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		seen[step.Name] = struct{}{}
		if step.Provider == "" {
			return fmt.Errorf("step %q: provider is required", step.Name)
		}
		if step.MinResultLen < 0 {
			return fmt.Errorf("step %q: min_result_len cannot be negative", step.Name)
		}
	}
	return nil
}
