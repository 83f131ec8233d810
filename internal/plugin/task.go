package plugin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/taskflow/internal/state"
)

// Task is the pluggable unit of work. Process must be safe to run concurrently
// with any sibling in the same parallel group; it reads shared state through
// the view and never writes to it.
type Task interface {
	Metadata() Descriptor
	Initialize() error
	Process(ctx context.Context, input TaskInput, view state.View) (TaskOutput, error)
	Cleanup() error
	HealthCheck() bool
}

// Configurable is implemented by tasks that carry a config map. Tasks that do
// not implement it are registered with an empty config.
type Configurable interface {
	Config() Config
}

// Conditional is implemented by ModeConditional tasks that decide at run time
// whether to execute. A false result skips the task without an output entry.
type Conditional interface {
	ShouldRun(ctx context.Context, input TaskInput, view state.View) bool
}

// Per-task override keys inside TaskInput.Config[taskName].
const (
	OverrideEnabled = "enabled"
	OverrideTimeout = "timeout"
)

// TaskInput is created once per workflow invocation and shared read-only by
// every task in it.
type TaskInput struct {
	Data      any
	Context   map[string]any
	Config    map[string]any // taskName -> map of overrides
	SessionID string
	Timestamp time.Time
}

// NewInput builds an input with a fresh session ID.
func NewInput(data any) TaskInput {
	return TaskInput{
		Data:      data,
		Context:   map[string]any{},
		Config:    map[string]any{},
		SessionID: uuid.NewString(),
		Timestamp: time.Now(),
	}
}

// Overrides returns the per-invocation override map for a task, or nil.
func (in TaskInput) Overrides(name string) map[string]any {
	if in.Config == nil {
		return nil
	}
	switch v := in.Config[name].(type) {
	case map[string]any:
		return v
	case Config:
		return v
	}
	return nil
}

// Enabled reports whether the task should run in this invocation. Defaults to true.
func (in TaskInput) Enabled(name string) bool {
	if v, ok := in.Overrides(name)[OverrideEnabled].(bool); ok {
		return v
	}
	return true
}

// Timeout returns the per-invocation timeout for a task, if one was given
// as a time.Duration or a duration string.
func (in TaskInput) Timeout(name string) (time.Duration, bool) {
	switch v := in.Overrides(name)[OverrideTimeout].(type) {
	case time.Duration:
		return v, v > 0
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, false
		}
		return d, true
	}
	return 0, false
}

// TaskOutput is produced exactly once per task per invocation.
type TaskOutput struct {
	Result        any
	Metadata      map[string]any
	Confidence    float64 // In [0,1]
	Method        string
	ExecutionTime time.Duration
	Errors        []string
	Warnings      []string
	SessionID     string
	Timestamp     time.Time
}

// Failed reports whether the output carries any errors.
func (o TaskOutput) Failed() bool {
	return len(o.Errors) > 0
}

// ClampConfidence forces Confidence into [0,1].
func (o *TaskOutput) ClampConfidence() {
	switch {
	case o.Confidence < 0:
		o.Confidence = 0
	case o.Confidence > 1:
		o.Confidence = 1
	}
}

// MethodError tags outputs synthesized by the executor after a failure.
const MethodError = "error"

// ErrorOutput synthesizes a failed output carrying msg.
func ErrorOutput(sessionID, msg string) TaskOutput {
	return TaskOutput{
		Method:    MethodError,
		Errors:    []string{msg},
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}
