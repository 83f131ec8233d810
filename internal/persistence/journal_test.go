package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/scheduler"
	"github.com/aristath/taskflow/internal/state"
)

type journalTask struct {
	*plugin.Base
	err error
}

func (j *journalTask) Process(context.Context, plugin.TaskInput, state.View) (plugin.TaskOutput, error) {
	if j.err != nil {
		return plugin.TaskOutput{}, j.err
	}
	return plugin.TaskOutput{Result: j.Metadata().Name, Confidence: 1, Method: "journal"}, nil
}

func newJournalTask(name string, prio int, err error, deps ...string) *journalTask {
	return &journalTask{
		Base: plugin.NewBase(plugin.Descriptor{
			Name:         name,
			Priority:     prio,
			Capabilities: plugin.Capabilities(plugin.CapabilityAnalysis),
			Dependencies: deps,
		}, nil),
		err: err,
	}
}

func TestJournal_RecordsExecutorRun(t *testing.T) {
	store := testStore(t)
	reg := scheduler.NewRegistry()
	require.NoError(t, reg.Register(newJournalTask("first", 10, nil)))
	require.NoError(t, reg.Register(newJournalTask("second", 20, errors.New("boom"), "first")))

	exec := scheduler.NewExecutor(reg, scheduler.WithObserver(NewJournal(store, nil)))
	input := plugin.NewInput("payload")
	_, err := exec.Execute(context.Background(), input, state.New())
	require.NoError(t, err)

	ctx := context.Background()
	run, err := store.GetRun(ctx, input.SessionID)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Equal(t, []string{"first", "second"}, run.Plan.SequentialOrder)

	records, err := store.Outputs(ctx, input.SessionID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Task)
	assert.Equal(t, `"first"`, records[0].Result)
	assert.Equal(t, "second", records[1].Task)
	require.Len(t, records[1].Errors, 1)
	assert.Contains(t, records[1].Errors[0], "boom")
}

func TestJournal_StoreFailuresDoNotPanic(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Close())

	j := NewJournal(store, nil)
	assert.NotPanics(t, func() {
		j.RunStarted("s", scheduler.ExecutionPlan{})
		j.TaskFinished("s", plugin.Descriptor{Name: "x"}, plugin.TaskOutput{})
		j.RunFinished("s", nil, nil)
	})
}
