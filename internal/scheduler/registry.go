package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskflow/internal/plugin"
)

// entry is the registry's record of one task.
type entry struct {
	task    plugin.Task
	desc    plugin.Descriptor
	cfg     plugin.Config
	seq     uint64
	status  plugin.Status
	lastErr error
}

// Registry owns the catalog of tasks and the execution plan derived from it.
// The plan is rebuilt in full on every Register and Unregister.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
	plan    ExecutionPlan
	planErr error
	logger  *log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for warnings.
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.rebuildLocked()
	return r
}

// Register validates a task, initializes it and rebuilds the plan. Validation
// and initialization failures leave the registry unchanged. A plan failure
// (a cycle reintroduced after Unregister) keeps the task registered and is
// returned so the caller can react; GetExecutionPlan reports it until fixed.
func (r *Registry) Register(task plugin.Task) error {
	if task == nil {
		return &RegistrationError{Kind: ErrInvalidDescriptor, Err: errors.New("task is nil")}
	}

	desc := task.Metadata().Normalized()
	var cfg plugin.Config
	if c, ok := task.(plugin.Configurable); ok {
		cfg = c.Config()
	}
	if cfg == nil {
		cfg = plugin.Config{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A live instance registered again keeps its status untouched.
	if r.holdsLocked(task) {
		err := &RegistrationError{Kind: ErrDuplicateName, Task: desc.Name}
		r.logger.Warn("task registration rejected", "err", err)
		return err
	}

	report(task, plugin.StatusValidating, nil)
	if err := desc.Validate(); err != nil {
		return r.reject(task, &RegistrationError{Kind: ErrInvalidDescriptor, Task: desc.Name, Err: err})
	}
	if _, exists := r.entries[desc.Name]; exists {
		return r.reject(task, &RegistrationError{Kind: ErrDuplicateName, Task: desc.Name})
	}
	if problems := plugin.CheckConfig(desc, cfg); len(problems) > 0 {
		return r.reject(task, &ConfigValidationError{Task: desc.Name, Problems: problems})
	}
	report(task, plugin.StatusValidated, nil)

	report(task, plugin.StatusLoading, nil)
	var missing []string
	for _, dep := range desc.Dependencies {
		if _, ok := r.entries[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return r.reject(task, &MissingDependencyError{Task: desc.Name, Missing: missing})
	}
	report(task, plugin.StatusLoaded, nil)

	report(task, plugin.StatusInitializing, nil)
	if err := safeCall(task.Initialize); err != nil {
		return r.reject(task, &RegistrationError{Kind: ErrInitialization, Task: desc.Name, Err: err})
	}

	e := &entry{
		task:   task,
		desc:   desc,
		cfg:    cfg,
		seq:    r.nextSeq,
		status: plugin.StatusReady,
	}
	r.nextSeq++
	r.entries[desc.Name] = e
	report(task, plugin.StatusReady, nil)
	r.logger.Debug("task registered", "task", desc.Name, "priority", desc.Priority, "mode", desc.ExecutionMode)

	r.rebuildLocked()
	if r.planErr != nil {
		return fmt.Errorf("registered %q but plan is invalid: %w", desc.Name, r.planErr)
	}
	return nil
}

func (r *Registry) reject(task plugin.Task, err error) error {
	report(task, plugin.StatusError, err)
	r.logger.Warn("task registration rejected", "err", err)
	return err
}

func (r *Registry) holdsLocked(task plugin.Task) bool {
	typ := reflect.TypeOf(task)
	if !typ.Comparable() {
		return false
	}
	for _, e := range r.entries {
		if reflect.TypeOf(e.task) == typ && e.task == task {
			return true
		}
	}
	return false
}

// Unregister cleans up a task, removes it and rebuilds the plan. Tasks that
// depend on it are not rejected; their dependency is left dangling and is
// ignored by the plan builder. Use Dependents to check beforehand.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("unregister %q: %w", name, ErrTaskNotFound)
	}

	r.setStatusLocked(e, plugin.StatusUnloading, nil)
	cleanupErr := safeCall(e.task.Cleanup)
	delete(r.entries, name)
	if cleanupErr != nil {
		r.setStatusLocked(e, plugin.StatusError, cleanupErr)
	} else {
		r.setStatusLocked(e, plugin.StatusUnloaded, nil)
	}

	if deps := r.dependentsLocked(name); len(deps) > 0 {
		r.logger.Warn("unregistered task still has dependents", "task", name, "dependents", deps)
	}
	r.rebuildLocked()

	if cleanupErr != nil {
		return fmt.Errorf("unregister %q: cleanup: %w", name, cleanupErr)
	}
	return nil
}

// GetExecutionPlan returns a snapshot of the current plan, or the plan error.
func (r *Registry) GetExecutionPlan() (ExecutionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.planErr != nil {
		return ExecutionPlan{}, r.planErr
	}
	return r.plan.Clone(), nil
}

// GetTasksByCapability returns the names of tasks declaring c, in
// registration order.
func (r *Registry) GetTasksByCapability(c plugin.Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, e := range r.orderedLocked() {
		if e.desc.Capabilities.Has(c) {
			out = append(out, e.desc.Name)
		}
	}
	return out
}

// HealthCheckAll runs every task's HealthCheck concurrently. A failing check
// does not remove the task. Checks not started before ctx ends report false.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	ordered := r.orderedLocked()
	r.mu.RUnlock()

	results := make(map[string]bool, len(ordered))
	var mu sync.Mutex
	var g errgroup.Group
	for _, e := range ordered {
		g.Go(func() error {
			healthy := false
			if ctx.Err() == nil {
				healthy = safeHealthCheck(e.task)
			}
			if !healthy {
				r.logger.Warn("health check failed", "task", e.desc.Name)
			}
			mu.Lock()
			results[e.desc.Name] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Close unregisters every task, newest first, and joins cleanup errors.
func (r *Registry) Close() error {
	r.mu.RLock()
	ordered := r.orderedLocked()
	r.mu.RUnlock()

	var errs []error
	for i := len(ordered) - 1; i >= 0; i-- {
		if err := r.Unregister(ordered[i].desc.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns registered task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ordered := r.orderedLocked()
	out := make([]string, len(ordered))
	for i, e := range ordered {
		out[i] = e.desc.Name
	}
	return out
}

// Descriptor returns the normalized descriptor of a registered task.
func (r *Registry) Descriptor(name string) (plugin.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return plugin.Descriptor{}, false
	}
	return e.desc.Normalized(), true
}

// Status returns a registered task's lifecycle status.
func (r *Registry) Status(name string) (plugin.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return plugin.StatusUnloaded, false
	}
	return e.status, true
}

// LastError returns the error attached to a task's last status change.
func (r *Registry) LastError(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.lastErr
	}
	return nil
}

// Dependents returns the sorted names of tasks that declare name as a dependency.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependentsLocked(name)
}

func (r *Registry) dependentsLocked(name string) []string {
	var out []string
	for _, e := range r.entries {
		for _, dep := range e.desc.Dependencies {
			if dep == name {
				out = append(out, e.desc.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// snapshot returns the plan and the entries it references, for one Execute call.
func (r *Registry) snapshot() (ExecutionPlan, map[string]*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.planErr != nil {
		return ExecutionPlan{}, nil, r.planErr
	}
	entries := make(map[string]*entry, len(r.entries))
	for name, e := range r.entries {
		entries[name] = e
	}
	return r.plan.Clone(), entries, nil
}

func (r *Registry) setStatus(e *entry, status plugin.Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStatusLocked(e, status, err)
}

func (r *Registry) setStatusLocked(e *entry, status plugin.Status, err error) {
	e.status = status
	e.lastErr = err
	report(e.task, status, err)
}

func (r *Registry) orderedLocked() []*entry {
	ordered := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	return ordered
}

// rebuildLocked recomputes the plan. On failure the previous plan is dropped
// so no partial plan is ever exposed.
func (r *Registry) rebuildLocked() {
	ordered := r.orderedLocked()
	nodes := make([]planNode, len(ordered))
	for i, e := range ordered {
		nodes[i] = planNode{name: e.desc.Name, desc: e.desc, seq: e.seq}
	}
	plan, dangling, err := buildPlan(nodes)
	for task, deps := range dangling {
		r.logger.Warn("ignoring unregistered dependencies", "task", task, "missing", deps)
	}
	if err != nil {
		r.plan = ExecutionPlan{}
		r.planErr = err
		r.logger.Error("execution plan invalid", "err", err)
		return
	}
	r.plan = plan
	r.planErr = nil
}

func report(task plugin.Task, status plugin.Status, err error) {
	if t, ok := task.(plugin.StatusTracker); ok {
		t.SetStatus(status, err)
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func safeHealthCheck(task plugin.Task) (healthy bool) {
	defer func() {
		if rec := recover(); rec != nil {
			healthy = false
		}
	}()
	return task.HealthCheck()
}
