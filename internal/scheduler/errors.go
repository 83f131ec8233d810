package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/taskflow/internal/plugin"
)

var (
	ErrDuplicateName      = errors.New("duplicate task name")
	ErrMissingDependency  = errors.New("missing dependency")
	ErrConfigValidation   = errors.New("config validation failed")
	ErrInvalidDescriptor  = errors.New("invalid descriptor")
	ErrInitialization     = errors.New("task initialization failed")
	ErrCircularDependency = errors.New("circular dependency")
	ErrTaskNotFound       = errors.New("task not found")
	ErrWorkflowCancelled  = errors.New("workflow cancelled")
	ErrWorkflowTimeout    = errors.New("workflow timed out")
)

// RegistrationError is returned when a Register call is rejected. The registry
// is left unchanged.
type RegistrationError struct {
	Kind error
	Task string
	Err  error
}

func (e *RegistrationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("register %q: %v", e.Task, e.Kind)
	}
	return fmt.Sprintf("register %q: %v: %v", e.Task, e.Kind, e.Err)
}

func (e *RegistrationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// MissingDependencyError names every dependency that was not registered.
type MissingDependencyError struct {
	Task    string
	Missing []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("register %q: %v: %s", e.Task, ErrMissingDependency, strings.Join(e.Missing, ", "))
}

func (e *MissingDependencyError) Unwrap() error { return ErrMissingDependency }

// ConfigValidationError names every config key that failed validation.
type ConfigValidationError struct {
	Task     string
	Problems []plugin.ConfigProblem
}

func (e *ConfigValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("register %q: %v: %s", e.Task, ErrConfigValidation, strings.Join(parts, "; "))
}

func (e *ConfigValidationError) Unwrap() error { return ErrConfigValidation }

// Keys returns the offending config keys.
func (e *ConfigValidationError) Keys() []string {
	keys := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		keys[i] = p.Key
	}
	return keys
}

// CircularDependencyError is returned when plan building finds a cycle. Tasks
// lists every task that could not be scheduled.
type CircularDependencyError struct {
	Tasks []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("%v among: %s", ErrCircularDependency, strings.Join(e.Tasks, ", "))
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

// TaskExecutionError is scoped to a single task. It is rendered into that
// task's TaskOutput.Errors and never returned from Execute.
type TaskExecutionError struct {
	Task string
	Err  error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// WorkflowError is returned when the whole invocation was aborted by the
// caller's context. Outputs produced before the abort are still returned.
type WorkflowError struct {
	Kind      error
	Completed int
	Err       error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%v after %d task(s): %v", e.Kind, e.Completed, e.Err)
}

func (e *WorkflowError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
