// Package resilience decorates tasks with retry and circuit breaking.
package resilience

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// Policy configures exponential backoff retry and the breaker trip point.
type Policy struct {
	MaxRetries          uint64        // Retries after the first attempt; 0 bounds by MaxElapsedTime only (default 3)
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 5s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 30s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)

	BreakerThreshold uint32        // Consecutive failures that open the breaker (default 5)
	BreakerTimeout   time.Duration // How long the breaker stays open (default 30s)
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:          3,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		BreakerThreshold:    5,
		BreakerTimeout:      30 * time.Second,
	}
}

// Permanent marks err as not worth retrying. Tasks return it from Process
// for failures a second attempt cannot fix.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// BreakerRegistry manages one circuit breaker per task name.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *log.Logger
}

// NewBreakerRegistry creates an empty registry. A nil logger discards.
func NewBreakerRegistry(logger *log.Logger) *BreakerRegistry {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it with p's trip settings on
// first use.
func (r *BreakerRegistry) Get(name string, p Policy) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	threshold := p.BreakerThreshold
	if threshold == 0 {
		threshold = DefaultPolicy().BreakerThreshold
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     p.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", "task", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and timeouts are the invocation's doing, not the task's.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[name] = cb
	return cb
}

// State reports the breaker state for name, or closed if none exists yet.
func (r *BreakerRegistry) State(name string) gobreaker.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// Task wraps another task so Process errors are retried with backoff behind a
// per-task circuit breaker. Lifecycle hooks, config, status reports and run
// predicates are forwarded to the wrapped task.
type Task struct {
	inner   plugin.Task
	policy  Policy
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger
}

// Wrap decorates t. Its breaker comes from breakers, keyed by task name.
func Wrap(t plugin.Task, p Policy, breakers *BreakerRegistry) *Task {
	if breakers == nil {
		breakers = NewBreakerRegistry(nil)
	}
	name := t.Metadata().Name
	return &Task{
		inner:   t,
		policy:  p,
		breaker: breakers.Get(name, p),
		logger:  breakers.logger.With("task", name),
	}
}

// Unwrap returns the decorated task.
func (t *Task) Unwrap() plugin.Task { return t.inner }

// Metadata returns the wrapped task's descriptor.
func (t *Task) Metadata() plugin.Descriptor { return t.inner.Metadata() }

// Initialize forwards to the wrapped task.
func (t *Task) Initialize() error { return t.inner.Initialize() }

// Cleanup forwards to the wrapped task.
func (t *Task) Cleanup() error { return t.inner.Cleanup() }

// HealthCheck reports the wrapped task's health. The breaker state is not
// consulted.
func (t *Task) HealthCheck() bool { return t.inner.HealthCheck() }

// Config forwards to the wrapped task when it is configurable.
func (t *Task) Config() plugin.Config {
	if c, ok := t.inner.(plugin.Configurable); ok {
		return c.Config()
	}
	return nil
}

// SetStatus forwards lifecycle reports to the wrapped task.
func (t *Task) SetStatus(status plugin.Status, lastErr error) {
	if st, ok := t.inner.(plugin.StatusTracker); ok {
		st.SetStatus(status, lastErr)
	}
}

// ShouldRun forwards to the wrapped task's predicate. Tasks without one
// always run.
func (t *Task) ShouldRun(ctx context.Context, input plugin.TaskInput, view state.View) bool {
	if c, ok := t.inner.(plugin.Conditional); ok {
		return c.ShouldRun(ctx, input, view)
	}
	return true
}

// Process runs the wrapped task's Process with retry and breaker protection.
func (t *Task) Process(ctx context.Context, input plugin.TaskInput, view state.View) (plugin.TaskOutput, error) {
	var out plugin.TaskOutput
	attempts := 0

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempts++

		result, err := t.breaker.Execute(func() (interface{}, error) {
			return t.inner.Process(ctx, input, view)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			t.logger.Debug("attempt failed", "attempt", attempts, "err", err)
			return err
		}

		out = result.(plugin.TaskOutput)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.policy.InitialInterval
	policy.MaxInterval = t.policy.MaxInterval
	policy.MaxElapsedTime = t.policy.MaxElapsedTime
	policy.Multiplier = t.policy.Multiplier
	policy.RandomizationFactor = t.policy.RandomizationFactor

	var b backoff.BackOff = policy
	if t.policy.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, t.policy.MaxRetries)
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err != nil {
		return plugin.TaskOutput{}, err
	}
	if attempts > 1 {
		out.Warnings = append(out.Warnings, "succeeded after retry")
		meta := make(map[string]any, len(out.Metadata)+1)
		for k, v := range out.Metadata {
			meta[k] = v
		}
		meta["attempts"] = attempts
		out.Metadata = meta
	}
	return out, nil
}
