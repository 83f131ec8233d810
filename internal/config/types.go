package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ExecutorConfig tunes workflow invocations.
type ExecutorConfig struct {
	TaskTimeout Duration `json:"task_timeout,omitempty" yaml:"task_timeout,omitempty"` // Default per-task Process timeout; 0 disables
	MaxParallel int      `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty" validate:"min=0"`
}

// RetryConfig configures the retry decorator for tasks that opt in.
type RetryConfig struct {
	MaxRetries          uint64   `json:"max_retries"          yaml:"max_retries"`
	InitialInterval     Duration `json:"initial_interval"     yaml:"initial_interval"`
	MaxInterval         Duration `json:"max_interval"         yaml:"max_interval"`
	MaxElapsedTime      Duration `json:"max_elapsed_time"     yaml:"max_elapsed_time"`
	Multiplier          float64  `json:"multiplier"           yaml:"multiplier"           validate:"gte=1"`
	RandomizationFactor float64  `json:"randomization_factor" yaml:"randomization_factor" validate:"gte=0,lte=1"`
	BreakerThreshold    uint32   `json:"breaker_threshold"    yaml:"breaker_threshold"    validate:"min=1"`
	BreakerTimeout      Duration `json:"breaker_timeout"      yaml:"breaker_timeout"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `json:"json"  yaml:"json"`
}

// JournalConfig controls the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path"    yaml:"path" validate:"required_if=Enabled true"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"  yaml:"enabled"`
	Textfile string `json:"textfile" yaml:"textfile" validate:"required_if=Enabled true"`
}

// TaskConfig configures one built-in task.
type TaskConfig struct {
	Enabled *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"` // nil means enabled
	Retry   bool           `json:"retry,omitempty"   yaml:"retry,omitempty"`   // Wrap with retry and circuit breaker
	Config  map[string]any `json:"config,omitempty"  yaml:"config,omitempty"`
}

// IsEnabled reports whether the task should be registered.
func (t TaskConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Config is the top-level configuration.
type Config struct {
	Executor ExecutorConfig        `json:"executor" yaml:"executor"`
	Retry    RetryConfig           `json:"retry"    yaml:"retry"`
	Logging  LoggingConfig         `json:"logging"  yaml:"logging"`
	Journal  JournalConfig         `json:"journal"  yaml:"journal"`
	Metrics  MetricsConfig         `json:"metrics"  yaml:"metrics"`
	Tasks    map[string]TaskConfig `json:"tasks"    yaml:"tasks"`
}
