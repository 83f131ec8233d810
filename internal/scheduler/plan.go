package scheduler

import (
	"sort"

	"github.com/aristath/taskflow/internal/plugin"
)

// NoGroup marks a stage without a parallel group.
const NoGroup = -1

// Stage is one ready round of the plan. The parallel group (if any) runs
// first, then the sequential members in order.
type Stage struct {
	GroupID    int
	Parallel   []string
	Sequential []string
}

// ExecutionPlan is the precomputed ordering derived from the dependency graph
// and priorities. Every task appears exactly once in SequentialOrder, parallel
// group members included.
type ExecutionPlan struct {
	SequentialOrder []string
	ParallelGroups  map[int][]string
	DependencyGraph map[string][]string
	Stages          []Stage
}

// Clone returns a deep copy so callers cannot mutate the registry's plan.
func (p ExecutionPlan) Clone() ExecutionPlan {
	cp := ExecutionPlan{
		SequentialOrder: append([]string(nil), p.SequentialOrder...),
		ParallelGroups:  make(map[int][]string, len(p.ParallelGroups)),
		DependencyGraph: make(map[string][]string, len(p.DependencyGraph)),
		Stages:          make([]Stage, len(p.Stages)),
	}
	for id, members := range p.ParallelGroups {
		cp.ParallelGroups[id] = append([]string(nil), members...)
	}
	for name, deps := range p.DependencyGraph {
		cp.DependencyGraph[name] = append([]string(nil), deps...)
	}
	for i, st := range p.Stages {
		cp.Stages[i] = Stage{
			GroupID:    st.GroupID,
			Parallel:   append([]string(nil), st.Parallel...),
			Sequential: append([]string(nil), st.Sequential...),
		}
	}
	return cp
}

// GroupIDs returns the parallel group ids in ascending order.
func (p ExecutionPlan) GroupIDs() []int {
	ids := make([]int, 0, len(p.ParallelGroups))
	for id := range p.ParallelGroups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// GroupOf returns the parallel group a task belongs to.
func (p ExecutionPlan) GroupOf(name string) (int, bool) {
	for id, members := range p.ParallelGroups {
		for _, m := range members {
			if m == name {
				return id, true
			}
		}
	}
	return NoGroup, false
}

// InParallelGroup reports whether the task is a member of any parallel group.
func (p ExecutionPlan) InParallelGroup(name string) bool {
	_, ok := p.GroupOf(name)
	return ok
}

// planNode is the view of a registered task the plan builder needs.
type planNode struct {
	name string
	desc plugin.Descriptor
	seq  uint64
}

// buildPlan runs Kahn's algorithm one ready round at a time. Each round is
// split into parallel-eligible and sequential members, both sorted by
// priority then registration order. nodes must be in registration order.
// Dependencies on names outside nodes are ignored and returned as dangling.
func buildPlan(nodes []planNode) (ExecutionPlan, map[string][]string, error) {
	plan := ExecutionPlan{
		SequentialOrder: make([]string, 0, len(nodes)),
		ParallelGroups:  make(map[int][]string),
		DependencyGraph: make(map[string][]string, len(nodes)),
	}

	index := make(map[string]planNode, len(nodes))
	for _, n := range nodes {
		index[n.name] = n
	}

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	dangling := make(map[string][]string)
	for _, n := range nodes {
		plan.DependencyGraph[n.name] = append([]string{}, n.desc.Dependencies...)
		for _, dep := range n.desc.Dependencies {
			if _, ok := index[dep]; !ok {
				dangling[n.name] = append(dangling[n.name], dep)
				continue
			}
			inDegree[n.name]++
			dependents[dep] = append(dependents[dep], n.name)
		}
	}

	remaining := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		remaining[n.name] = true
	}

	nextGroup := 0
	for len(remaining) > 0 {
		var parallel, sequential []planNode
		for _, n := range nodes {
			if !remaining[n.name] || inDegree[n.name] > 0 {
				continue
			}
			if n.desc.ParallelEligible() {
				parallel = append(parallel, n)
			} else {
				sequential = append(sequential, n)
			}
		}

		if len(parallel) == 0 && len(sequential) == 0 {
			stuck := make([]string, 0, len(remaining))
			for name := range remaining {
				stuck = append(stuck, name)
			}
			sort.Strings(stuck)
			return ExecutionPlan{}, dangling, &CircularDependencyError{Tasks: stuck}
		}

		sortByPriority(parallel)
		sortByPriority(sequential)

		stage := Stage{GroupID: NoGroup}
		if len(parallel) > 0 {
			stage.GroupID = nextGroup
			nextGroup++
			stage.Parallel = names(parallel)
			plan.ParallelGroups[stage.GroupID] = append([]string(nil), stage.Parallel...)
			plan.SequentialOrder = append(plan.SequentialOrder, stage.Parallel...)
		}
		stage.Sequential = names(sequential)
		plan.SequentialOrder = append(plan.SequentialOrder, stage.Sequential...)
		plan.Stages = append(plan.Stages, stage)

		for _, round := range [][]planNode{parallel, sequential} {
			for _, n := range round {
				delete(remaining, n.name)
				for _, dependent := range dependents[n.name] {
					inDegree[dependent]--
				}
			}
		}
	}

	return plan, dangling, nil
}

func sortByPriority(nodes []planNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].desc.Priority != nodes[j].desc.Priority {
			return nodes[i].desc.Priority < nodes[j].desc.Priority
		}
		return nodes[i].seq < nodes[j].seq
	})
}

func names(nodes []planNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.name
	}
	return out
}
