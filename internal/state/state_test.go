package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedState_PartitionsAreIndependent(t *testing.T) {
	s := New()
	s.SetAnalysis("a", 1)
	s.SetValidation("v", true)
	s.SetDecision("d", "ship")

	assert.Equal(t, map[string]any{"a": 1}, s.AnalysisResults())
	assert.Equal(t, map[string]any{"v": true}, s.ValidationResults())
	assert.Equal(t, map[string]any{"d": "ship"}, s.DecisionResults())
}

func TestSharedState_OutcomeOrder(t *testing.T) {
	s := New()
	s.SetOutcome("b", 0.5, "rule")
	s.SetOutcome("a", 1, "exact")
	s.SetOutcome("b", 0.7, "rule")

	assert.Equal(t, []string{"b", "a"}, s.MergeOrder(), "re-recording keeps the first position")
	assert.Equal(t, 0.7, s.Confidences()["b"])
	assert.Equal(t, "exact", s.Methods()["a"])
}

func TestSharedState_GettersReturnCopies(t *testing.T) {
	s := New()
	s.SetAnalysis("a", 1)
	s.SetOutcome("a", 1, "m")
	s.AddWarning("w")

	s.AnalysisResults()["a"] = 2
	s.Confidences()["a"] = 0
	s.Methods()["a"] = "x"
	order := s.MergeOrder()
	order[0] = "z"
	warnings := s.Warnings()
	warnings[0] = "changed"

	assert.Equal(t, 1, s.AnalysisResults()["a"])
	assert.Equal(t, 1.0, s.Confidences()["a"])
	assert.Equal(t, "m", s.Methods()["a"])
	assert.Equal(t, []string{"a"}, s.MergeOrder())
	assert.Equal(t, []string{"w"}, s.Warnings())
}

func TestView(t *testing.T) {
	s := New()
	v := s.ReadOnlyView()

	_, ok := v.Analysis("a")
	assert.False(t, ok)

	s.SetAnalysis("a", "found")
	s.SetValidation("a", 3)
	s.SetOutcome("a", 0.4, "m")
	s.SetDecision("c", false)
	s.SetOutcome("c", 1, "n")

	got, ok := v.Analysis("a")
	require.True(t, ok, "views observe later merges")
	assert.Equal(t, "found", got)

	got, ok = v.Validation("a")
	require.True(t, ok)
	assert.Equal(t, 3, got)

	got, ok = v.Decision("c")
	require.True(t, ok)
	assert.Equal(t, false, got)

	conf, ok := v.Confidence("a")
	require.True(t, ok)
	assert.Equal(t, 0.4, conf)

	method, ok := v.Method("c")
	require.True(t, ok)
	assert.Equal(t, "n", method)

	assert.Equal(t, []string{"a", "c"}, v.Completed())
}

func TestZeroViewIsEmpty(t *testing.T) {
	var v View
	_, ok := v.Analysis("x")
	assert.False(t, ok)
	_, ok = v.Confidence("x")
	assert.False(t, ok)
	_, ok = v.Method("x")
	assert.False(t, ok)
	assert.Empty(t, v.Completed())
}

func TestSharedState_ConcurrentReadsDuringWrites(t *testing.T) {
	s := New()
	v := s.ReadOnlyView()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				v.Analysis("a")
				v.Completed()
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.SetAnalysis("a", j)
		s.SetOutcome("a", 1, "m")
	}
	wg.Wait()
	assert.Equal(t, []string{"a"}, s.MergeOrder())
}
