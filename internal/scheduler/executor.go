package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// Executor drives one workflow invocation over the registry's plan. Each
// Execute call works on a plan snapshot taken at invocation start.
type Executor struct {
	registry    *Registry
	bus         *events.EventBus
	logger      *log.Logger
	locks       *ResourceLockManager
	observers   []Observer
	taskTimeout time.Duration
	maxParallel int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithEventBus publishes task and workflow events to bus.
func WithEventBus(bus *events.EventBus) ExecutorOption {
	return func(e *Executor) { e.bus = bus }
}

// WithLogger sets the executor's logger.
func WithLogger(l *log.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithTaskTimeout bounds every Process call unless the invocation overrides
// it per task. Zero means no timeout.
func WithTaskTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.taskTimeout = d }
}

// WithMaxParallel bounds how many members of one parallel group run at once.
// Zero means one goroutine per member.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) { e.maxParallel = n }
}

// WithLockManager shares a resource lock manager across executors.
func WithLockManager(m *ResourceLockManager) ExecutorOption {
	return func(e *Executor) {
		if m != nil {
			e.locks = m
		}
	}
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		logger:   log.New(io.Discard),
		locks:    NewResourceLockManager(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run tracks one invocation.
type run struct {
	input     plugin.TaskInput
	st        *state.SharedState
	view      state.View
	outputs   map[string]plugin.TaskOutput
	total     int
	failed    int
	skipped   int
	startedAt time.Time
}

// Execute runs the current plan stage by stage and returns one output per
// enabled task that was scheduled. Task failures are reported inside their
// outputs; the returned error is non-nil only when the plan is invalid or the
// invocation context ended, in which case the outputs produced so far are
// still returned alongside a *WorkflowError.
func (e *Executor) Execute(ctx context.Context, input plugin.TaskInput, st *state.SharedState) (map[string]plugin.TaskOutput, error) {
	if st == nil {
		return nil, errors.New("execute: shared state is required")
	}
	if input.SessionID == "" {
		input.SessionID = uuid.NewString()
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now()
	}

	plan, entries, err := e.registry.snapshot()
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	r := &run{
		input:     input,
		st:        st,
		view:      st.ReadOnlyView(),
		outputs:   make(map[string]plugin.TaskOutput, len(plan.SequentialOrder)),
		total:     len(plan.SequentialOrder),
		startedAt: time.Now(),
	}
	for _, o := range e.observers {
		o.RunStarted(input.SessionID, plan)
	}
	e.logger.Info("workflow started", "session", input.SessionID, "tasks", r.total, "stages", len(plan.Stages))

	runErr := e.runStages(ctx, plan, entries, r)

	for _, o := range e.observers {
		o.RunFinished(input.SessionID, r.outputs, runErr)
	}
	e.bus.Publish(events.WorkflowFinishedEvent{
		SessionID: input.SessionID,
		Err:       runErr,
		Duration:  time.Since(r.startedAt),
		Timestamp: time.Now(),
	})
	if runErr != nil {
		e.logger.Warn("workflow aborted", "session", input.SessionID, "err", runErr)
	} else {
		e.logger.Info("workflow finished", "session", input.SessionID,
			"ran", len(r.outputs), "failed", r.failed, "skipped", r.skipped, "elapsed", time.Since(r.startedAt))
	}
	return r.outputs, runErr
}

func (e *Executor) runStages(ctx context.Context, plan ExecutionPlan, entries map[string]*entry, r *run) error {
	for _, stage := range plan.Stages {
		if err := e.checkAborted(ctx, r); err != nil {
			return err
		}

		if len(stage.Parallel) > 0 {
			members := make([]*entry, 0, len(stage.Parallel))
			for _, name := range stage.Parallel {
				members = append(members, entries[name])
			}
			e.runGroup(ctx, stage.GroupID, members, r)
		}

		for _, name := range stage.Sequential {
			if plan.InParallelGroup(name) {
				continue
			}
			if err := e.checkAborted(ctx, r); err != nil {
				return err
			}
			ent := entries[name]
			if !e.shouldRun(ctx, ent, r) {
				continue
			}
			out := e.invoke(ctx, ent, NoGroup, r)
			e.merge(ent, out, r)
		}

		e.publishProgress(r)
	}
	return e.checkAborted(ctx, r)
}

// runGroup fans out the enabled members of one parallel group, waits for all
// of them, then merges their outputs in the group's recorded order. A member
// failing never cancels its siblings.
func (e *Executor) runGroup(ctx context.Context, groupID int, members []*entry, r *run) {
	enabled := make([]*entry, 0, len(members))
	for _, ent := range members {
		if e.shouldRun(ctx, ent, r) {
			enabled = append(enabled, ent)
		}
	}

	switch len(enabled) {
	case 0:
		return
	case 1:
		out := e.invoke(ctx, enabled[0], groupID, r)
		e.merge(enabled[0], out, r)
		return
	}

	names := make([]string, len(enabled))
	for i, ent := range enabled {
		names[i] = ent.desc.Name
	}
	started := time.Now()
	e.bus.Publish(events.GroupStartedEvent{
		SessionID: r.input.SessionID,
		GroupID:   groupID,
		Members:   names,
		Timestamp: started,
	})
	e.logger.Debug("parallel group started", "group", groupID, "members", names)

	outs := make([]plugin.TaskOutput, len(enabled))
	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for i, ent := range enabled {
		g.Go(func() error {
			outs[i] = e.invoke(ctx, ent, groupID, r)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, ent := range enabled {
		if outs[i].Failed() {
			failed++
		}
		e.merge(ent, outs[i], r)
	}

	e.bus.Publish(events.GroupFinishedEvent{
		SessionID: r.input.SessionID,
		GroupID:   groupID,
		Failed:    failed,
		Duration:  time.Since(started),
		Timestamp: time.Now(),
	})
}

// shouldRun applies the per-invocation enabled flag and, for conditional
// tasks, their run predicate.
func (e *Executor) shouldRun(ctx context.Context, ent *entry, r *run) bool {
	name := ent.desc.Name
	reason := ""
	switch {
	case !r.input.Enabled(name):
		reason = "disabled"
	case ent.desc.ExecutionMode == plugin.ModeConditional:
		if cond, ok := ent.task.(plugin.Conditional); ok && !safeShouldRun(ctx, cond, r.input, r.view) {
			reason = "condition not met"
		}
	}
	if reason == "" {
		return true
	}

	r.skipped++
	e.logger.Debug("task skipped", "task", name, "reason", reason)
	e.bus.Publish(events.TaskSkippedEvent{
		ID:        name,
		SessionID: r.input.SessionID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	return false
}

type processResult struct {
	out plugin.TaskOutput
	err error
}

// invoke runs one Process call with timeout and panic isolation and always
// returns an output. It does not touch shared state. The task's resources stay
// locked until Process itself returns, even when invoke gave up on it earlier.
func (e *Executor) invoke(ctx context.Context, ent *entry, groupID int, r *run) plugin.TaskOutput {
	name := ent.desc.Name
	e.registry.setStatus(ent, plugin.StatusRunning, nil)
	started := time.Now()
	e.bus.Publish(events.TaskStartedEvent{
		ID:        name,
		SessionID: r.input.SessionID,
		GroupID:   groupID,
		Timestamp: started,
	})

	timeout := e.taskTimeout
	if d, ok := r.input.Timeout(name); ok {
		timeout = d
	}
	taskCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan processResult, 1)
	go func() {
		release := e.locks.Acquire(ent.desc.Resources)
		defer release()
		defer func() {
			if rec := recover(); rec != nil {
				done <- processResult{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		if err := taskCtx.Err(); err != nil {
			done <- processResult{err: err}
			return
		}
		out, err := ent.task.Process(taskCtx, r.input, r.view)
		done <- processResult{out: out, err: err}
	}()

	res := awaitProcess(taskCtx, done)
	if res.err != nil && taskCtx.Err() != nil {
		if ctx.Err() != nil {
			res.err = fmt.Errorf("cancelled: %w", ctx.Err())
		} else {
			res.err = fmt.Errorf("timed out after %s: %w", timeout, taskCtx.Err())
		}
	}

	var out plugin.TaskOutput
	if res.err != nil {
		execErr := &TaskExecutionError{Task: name, Err: res.err}
		out = plugin.ErrorOutput(r.input.SessionID, execErr.Error())
	} else {
		out = res.out
		if out.SessionID == "" {
			out.SessionID = r.input.SessionID
		}
		if out.Timestamp.IsZero() {
			out.Timestamp = time.Now()
		}
		out.ClampConfidence()
	}
	out.ExecutionTime = time.Since(started)

	if out.Failed() {
		e.registry.setStatus(ent, plugin.StatusError, errors.New(out.Errors[0]))
		e.logger.Warn("task failed", "task", name, "errors", out.Errors, "elapsed", out.ExecutionTime)
		e.bus.Publish(events.TaskFailedEvent{
			ID:        name,
			SessionID: r.input.SessionID,
			Errors:    append([]string(nil), out.Errors...),
			Duration:  out.ExecutionTime,
			Timestamp: time.Now(),
		})
	} else {
		e.registry.setStatus(ent, plugin.StatusReady, nil)
		e.logger.Debug("task completed", "task", name, "method", out.Method, "elapsed", out.ExecutionTime)
		e.bus.Publish(events.TaskCompletedEvent{
			ID:         name,
			SessionID:  r.input.SessionID,
			Method:     out.Method,
			Confidence: out.Confidence,
			Duration:   out.ExecutionTime,
			Timestamp:  time.Now(),
		})
	}
	return out
}

// awaitProcess waits for a Process result or for ctx to end. A result that is
// already available wins over an expired context.
func awaitProcess(ctx context.Context, done <-chan processResult) processResult {
	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		select {
		case res := <-done:
			return res
		default:
			return processResult{err: ctx.Err()}
		}
	}
}

// stateRoutes maps each routed capability to the SharedState partition that
// receives the task's Result.
var stateRoutes = []struct {
	capability plugin.Capability
	write      func(*state.SharedState, string, any)
}{
	{plugin.CapabilityAnalysis, (*state.SharedState).SetAnalysis},
	{plugin.CapabilityValidation, (*state.SharedState).SetValidation},
	{plugin.CapabilityDecision, (*state.SharedState).SetDecision},
}

// merge records a finished task's output in the result map and SharedState.
// Only ever called on the driver goroutine.
func (e *Executor) merge(ent *entry, out plugin.TaskOutput, r *run) {
	name := ent.desc.Name
	r.outputs[name] = out
	if out.Failed() {
		r.failed++
	}
	for _, route := range stateRoutes {
		if ent.desc.Capabilities.Has(route.capability) {
			route.write(r.st, name, out.Result)
		}
	}
	r.st.SetOutcome(name, out.Confidence, out.Method)

	for _, o := range e.observers {
		o.TaskFinished(r.input.SessionID, ent.desc, out)
	}
}

// checkAborted returns a WorkflowError once the invocation context has ended
// and records an invocation-level warning in shared state.
func (e *Executor) checkAborted(ctx context.Context, r *run) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return nil
	}
	kind := ErrWorkflowCancelled
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		kind = ErrWorkflowTimeout
	}
	wfErr := &WorkflowError{Kind: kind, Completed: len(r.outputs), Err: ctxErr}
	r.st.AddWarning(fmt.Sprintf("invocation aborted: %v; %d of %d task outputs preserved", kind, len(r.outputs), r.total))
	return wfErr
}

func (e *Executor) publishProgress(r *run) {
	completed := len(r.outputs) - r.failed
	pending := r.total - len(r.outputs) - r.skipped
	if pending < 0 {
		pending = 0
	}
	e.bus.Publish(events.WorkflowProgressEvent{
		SessionID: r.input.SessionID,
		Total:     r.total,
		Completed: completed,
		Failed:    r.failed,
		Skipped:   r.skipped,
		Pending:   pending,
		Timestamp: time.Now(),
	})
}

func safeShouldRun(ctx context.Context, cond plugin.Conditional, input plugin.TaskInput, view state.View) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	return cond.ShouldRun(ctx, input, view)
}
