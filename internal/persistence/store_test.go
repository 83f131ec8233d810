package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/scheduler"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func samplePlan() scheduler.ExecutionPlan {
	return scheduler.ExecutionPlan{
		SequentialOrder: []string{"a", "b", "c"},
		ParallelGroups:  map[int][]string{0: {"a", "b"}},
		DependencyGraph: map[string][]string{"a": {}, "b": {}, "c": {"a"}},
		Stages: []scheduler.Stage{
			{GroupID: 0, Parallel: []string{"a", "b"}, Sequential: []string{}},
			{GroupID: scheduler.NoGroup, Parallel: []string{}, Sequential: []string{"c"}},
		},
	}
}

func TestRunLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.StartRun(ctx, "s1", samplePlan()))

	run, err := store.GetRun(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.Equal(t, 3, run.TaskCount)
	assert.True(t, run.FinishedAt.IsZero())
	assert.Equal(t, samplePlan(), run.Plan)

	require.NoError(t, store.FinishRun(ctx, "s1", nil))
	run, err = store.GetRun(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, run.Status)
	assert.Empty(t, run.Error)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestFinishRun_Aborted(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.StartRun(ctx, "s1", samplePlan()))

	require.NoError(t, store.FinishRun(ctx, "s1", errors.New("invocation cancelled")))
	run, err := store.GetRun(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, RunAborted, run.Status)
	assert.Equal(t, "invocation cancelled", run.Error)
}

func TestMissingRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.FinishRun(ctx, "nope", nil), ErrRunNotFound)
}

func TestRecordOutputs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.StartRun(ctx, "s1", samplePlan()))

	require.NoError(t, store.RecordOutput(ctx, "s1", "b", plugin.TaskOutput{
		Result:        map[string]int{"lines": 4},
		Confidence:    0.75,
		Method:        "count",
		ExecutionTime: 12 * time.Millisecond,
		Warnings:      []string{"large file"},
	}))
	require.NoError(t, store.RecordOutput(ctx, "s1", "a", plugin.ErrorOutput("s1", "task \"a\": boom")))
	require.NoError(t, store.RecordOutput(ctx, "s1", "c", plugin.TaskOutput{Result: func() {}, Method: "odd"}))

	records, err := store.Outputs(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "b", records[0].Task)
	assert.Equal(t, 0, records[0].MergeIndex)
	assert.Equal(t, `{"lines":4}`, records[0].Result)
	assert.Equal(t, 0.75, records[0].Confidence)
	assert.Equal(t, 12*time.Millisecond, records[0].ExecutionTime)
	assert.Equal(t, []string{"large file"}, records[0].Warnings)
	assert.Empty(t, records[0].Errors)

	assert.Equal(t, "a", records[1].Task)
	assert.Equal(t, plugin.MethodError, records[1].Method)
	assert.Equal(t, []string{"task \"a\": boom"}, records[1].Errors)

	assert.NotEmpty(t, records[2].Result, "unencodable results fall back to their %v form")
}

func TestRecordOutput_DuplicateTaskRejected(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.StartRun(ctx, "s1", samplePlan()))
	require.NoError(t, store.RecordOutput(ctx, "s1", "a", plugin.TaskOutput{Method: "m"}))
	assert.Error(t, store.RecordOutput(ctx, "s1", "a", plugin.TaskOutput{Method: "m"}))
}

func TestRecordOutput_RequiresRun(t *testing.T) {
	store := testStore(t)
	err := store.RecordOutput(context.Background(), "ghost", "a", plugin.TaskOutput{Method: "m"})
	assert.Error(t, err)
}

func TestOutputs_EmptyNotNil(t *testing.T) {
	store := testStore(t)
	records, err := store.Outputs(context.Background(), "none")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestListRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.StartRun(ctx, id, samplePlan()))
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].SessionID)
	assert.Equal(t, "second", runs[1].SessionID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	a := testStore(t)
	b := testStore(t)
	ctx := context.Background()
	require.NoError(t, a.StartRun(ctx, "s1", samplePlan()))

	_, err := b.GetRun(ctx, "s1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestNewSQLiteStore_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	store, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.StartRun(ctx, "s1", samplePlan()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	run, err := reopened.GetRun(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", run.SessionID)
}
