package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskflow/internal/plugin"
)

func node(name string, seq uint64, prio int, mode plugin.ExecutionMode, compatible bool, deps ...string) planNode {
	return planNode{
		name: name,
		seq:  seq,
		desc: plugin.Descriptor{
			Name:               name,
			Priority:           prio,
			ExecutionMode:      mode,
			ParallelCompatible: compatible,
			Dependencies:       deps,
		},
	}
}

func TestBuildPlan_ReadyRounds(t *testing.T) {
	// A and C are ready first; A is parallel-eligible, C is sequential. B waits on A.
	plan, dangling, err := buildPlan([]planNode{
		node("A", 0, 10, plugin.ModeParallel, true),
		node("B", 1, 20, plugin.ModeParallel, true, "A"),
		node("C", 2, 5, plugin.ModeSequential, false),
	})
	require.NoError(t, err)
	assert.Empty(t, dangling)

	assert.Equal(t, []string{"A", "C", "B"}, plan.SequentialOrder)
	assert.Equal(t, map[int][]string{0: {"A"}, 1: {"B"}}, plan.ParallelGroups)
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, Stage{GroupID: 0, Parallel: []string{"A"}, Sequential: []string{"C"}}, plan.Stages[0])
	assert.Equal(t, 1, plan.Stages[1].GroupID)
	assert.Equal(t, []string{"B"}, plan.Stages[1].Parallel)
	assert.Empty(t, plan.Stages[1].Sequential)
	assert.Equal(t, []string{"A"}, plan.DependencyGraph["B"])
}

func TestBuildPlan_PriorityThenRegistrationOrder(t *testing.T) {
	plan, _, err := buildPlan([]planNode{
		node("late", 0, 50, plugin.ModeSequential, false),
		node("first", 1, 10, plugin.ModeSequential, false),
		node("tieA", 2, 30, plugin.ModeSequential, false),
		node("tieB", 3, 30, plugin.ModeSequential, false),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "tieA", "tieB", "late"}, plan.SequentialOrder)
	assert.Empty(t, plan.ParallelGroups)
	assert.Equal(t, NoGroup, plan.Stages[0].GroupID)
}

func TestBuildPlan_Partitioning(t *testing.T) {
	plan, _, err := buildPlan([]planNode{
		node("par", 0, 50, plugin.ModeParallel, true),
		node("incompatible", 1, 10, plugin.ModeParallel, false),
		node("cond", 2, 20, plugin.ModeConditional, true),
		node("par2", 3, 40, plugin.ModeParallel, true),
	})
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, []string{"par2", "par"}, plan.Stages[0].Parallel)
	assert.Equal(t, []string{"incompatible", "cond"}, plan.Stages[0].Sequential)
	assert.Equal(t, []string{"par2", "par", "incompatible", "cond"}, plan.SequentialOrder)
}

func TestBuildPlan_GroupIDsIncrease(t *testing.T) {
	plan, _, err := buildPlan([]planNode{
		node("a", 0, 10, plugin.ModeParallel, true),
		node("b", 1, 10, plugin.ModeSequential, false, "a"),
		node("c", 2, 10, plugin.ModeParallel, true, "b"),
		node("d", 3, 10, plugin.ModeParallel, true, "b"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, plan.GroupIDs())
	assert.Equal(t, []string{"c", "d"}, plan.ParallelGroups[1])

	id, ok := plan.GroupOf("d")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	assert.False(t, plan.InParallelGroup("b"))
}

func TestBuildPlan_Cycle(t *testing.T) {
	_, _, err := buildPlan([]planNode{
		node("ok", 0, 10, plugin.ModeSequential, false),
		node("x", 1, 10, plugin.ModeSequential, false, "y"),
		node("y", 2, 10, plugin.ModeSequential, false, "z"),
		node("z", 3, 10, plugin.ModeSequential, false, "x"),
	})
	var cycle *CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"x", "y", "z"}, cycle.Tasks)
}

func TestBuildPlan_Dangling(t *testing.T) {
	plan, dangling, err := buildPlan([]planNode{
		node("b", 0, 10, plugin.ModeSequential, false, "gone"),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"b": {"gone"}}, dangling)
	assert.Equal(t, []string{"b"}, plan.SequentialOrder)
}

func TestBuildPlan_Empty(t *testing.T) {
	plan, _, err := buildPlan(nil)
	require.NoError(t, err)
	assert.Empty(t, plan.SequentialOrder)
	assert.Empty(t, plan.Stages)
}
