package config

import "time"

// DefaultConfig returns the default configuration with the built-in review
// tasks enabled.
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{
			TaskTimeout: Duration(30 * time.Second),
		},
		Retry: RetryConfig{
			MaxRetries:          3,
			InitialInterval:     Duration(100 * time.Millisecond),
			MaxInterval:         Duration(5 * time.Second),
			MaxElapsedTime:      Duration(30 * time.Second),
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
			BreakerThreshold:    5,
			BreakerTimeout:      Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Journal: JournalConfig{
			Path: ".taskflow/journal.db",
		},
		Metrics: MetricsConfig{
			Textfile: ".taskflow/taskflow.prom",
		},
		Tasks: map[string]TaskConfig{
			"diffstat":    {},
			"marker_scan": {},
			"size_gate": {
				Config: map[string]any{"max_changed_lines": 500},
			},
			"verdict": {
				Config: map[string]any{"block_on_markers": false},
			},
			"notify": {
				Retry: true,
			},
		},
	}
}
