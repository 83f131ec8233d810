package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// fakeTask is a configurable plugin.Task for tests.
type fakeTask struct {
	*plugin.Base

	process   func(ctx context.Context, in plugin.TaskInput, view state.View) (plugin.TaskOutput, error)
	initErr   error
	healthy   bool
	cleanups  atomic.Int32
	calls     atomic.Int32
	condition func(view state.View) bool
}

func newFake(desc plugin.Descriptor, cfg plugin.Config) *fakeTask {
	return &fakeTask{Base: plugin.NewBase(desc, cfg), healthy: true}
}

func (f *fakeTask) Initialize() error { return f.initErr }
func (f *fakeTask) HealthCheck() bool { return f.healthy }

func (f *fakeTask) Cleanup() error {
	f.cleanups.Add(1)
	return nil
}

func (f *fakeTask) Process(ctx context.Context, in plugin.TaskInput, view state.View) (plugin.TaskOutput, error) {
	f.calls.Add(1)
	if f.process != nil {
		return f.process(ctx, in, view)
	}
	return plugin.TaskOutput{Result: f.Metadata().Name, Confidence: 1, Method: "fake"}, nil
}

// conditionalTask adds a ShouldRun predicate to fakeTask.
type conditionalTask struct {
	*fakeTask
	run bool
}

func (c *conditionalTask) ShouldRun(context.Context, plugin.TaskInput, state.View) bool {
	return c.run
}

func task(name string, prio int, mode plugin.ExecutionMode, deps ...string) *fakeTask {
	return newFake(plugin.Descriptor{
		Name:               name,
		Version:            "1.0.0",
		Capabilities:       plugin.Capabilities(plugin.CapabilityAnalysis),
		Dependencies:       deps,
		Priority:           prio,
		ExecutionMode:      mode,
		ParallelCompatible: mode == plugin.ModeParallel,
	}, nil)
}

func withCaps(t *fakeTask, caps ...plugin.Capability) *fakeTask {
	desc := t.Metadata()
	desc.Capabilities = plugin.Capabilities(caps...)
	t.Base = plugin.NewBase(desc, t.Config())
	return t
}

// mergeRecorder is an Observer capturing merge order.
type mergeRecorder struct {
	mu       sync.Mutex
	started  []string
	merged   []string
	finished []error
}

func (m *mergeRecorder) RunStarted(sessionID string, _ ExecutionPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, sessionID)
}

func (m *mergeRecorder) TaskFinished(_ string, desc plugin.Descriptor, _ plugin.TaskOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, desc.Name)
}

func (m *mergeRecorder) RunFinished(_ string, _ map[string]plugin.TaskOutput, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, err)
}

var errBoom = errors.New("boom")

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return -1
}

func newState() *state.SharedState {
	return state.New()
}
