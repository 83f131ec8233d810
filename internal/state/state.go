// Package state holds the per-invocation aggregate that an executor run
// writes task outputs into.
package state

import (
	"sort"
	"sync"
)

// SharedState is the single mutable structure of a workflow invocation. Only
// the executor writes to it, after a task has fully completed. Tasks read it
// through a View.
type SharedState struct {
	mu         sync.RWMutex
	analysis   map[string]any
	validation map[string]any
	decision   map[string]any
	confidence map[string]float64
	method     map[string]string
	order      []string // task names in merge order
	warnings   []string
}

// New creates an empty SharedState.
func New() *SharedState {
	return &SharedState{
		analysis:   make(map[string]any),
		validation: make(map[string]any),
		decision:   make(map[string]any),
		confidence: make(map[string]float64),
		method:     make(map[string]string),
	}
}

// SetAnalysis records an analysis result for a task.
func (s *SharedState) SetAnalysis(name string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis[name] = result
}

// SetValidation records a validation result for a task.
func (s *SharedState) SetValidation(name string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validation[name] = result
}

// SetDecision records a decision result for a task.
func (s *SharedState) SetDecision(name string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision[name] = result
}

// SetOutcome records the confidence and method of a completed task and
// appends it to the merge order.
func (s *SharedState) SetOutcome(name string, confidence float64, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.method[name]; !seen {
		s.order = append(s.order, name)
	}
	s.confidence[name] = confidence
	s.method[name] = method
}

// AddWarning records an invocation-level warning.
func (s *SharedState) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// AnalysisResults returns a copy of the analysis map.
func (s *SharedState) AnalysisResults() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAny(s.analysis)
}

// ValidationResults returns a copy of the validation map.
func (s *SharedState) ValidationResults() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAny(s.validation)
}

// DecisionResults returns a copy of the decision map.
func (s *SharedState) DecisionResults() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAny(s.decision)
}

// Confidences returns a copy of the confidence map.
func (s *SharedState) Confidences() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.confidence))
	for k, v := range s.confidence {
		out[k] = v
	}
	return out
}

// Methods returns a copy of the method map.
func (s *SharedState) Methods() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.method))
	for k, v := range s.method {
		out[k] = v
	}
	return out
}

// MergeOrder returns task names in the order their outcomes were recorded.
func (s *SharedState) MergeOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Warnings returns invocation-level warnings.
func (s *SharedState) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.warnings...)
}

// ReadOnlyView returns a view tasks can read from.
func (s *SharedState) ReadOnlyView() View {
	return View{s: s}
}

func copyAny(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// View is a read-only window onto a SharedState. The zero View reads as empty.
type View struct {
	s *SharedState
}

// Analysis returns the analysis result recorded for a task.
func (v View) Analysis(name string) (any, bool) {
	return v.lookup(func(s *SharedState) map[string]any { return s.analysis }, name)
}

// Validation returns the validation result recorded for a task.
func (v View) Validation(name string) (any, bool) {
	return v.lookup(func(s *SharedState) map[string]any { return s.validation }, name)
}

// Decision returns the decision result recorded for a task.
func (v View) Decision(name string) (any, bool) {
	return v.lookup(func(s *SharedState) map[string]any { return s.decision }, name)
}

func (v View) lookup(pick func(*SharedState) map[string]any, name string) (any, bool) {
	if v.s == nil {
		return nil, false
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	val, ok := pick(v.s)[name]
	return val, ok
}

// Confidence returns the confidence recorded for a task.
func (v View) Confidence(name string) (float64, bool) {
	if v.s == nil {
		return 0, false
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	c, ok := v.s.confidence[name]
	return c, ok
}

// Method returns the method tag recorded for a task.
func (v View) Method(name string) (string, bool) {
	if v.s == nil {
		return "", false
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	m, ok := v.s.method[name]
	return m, ok
}

// Completed returns the sorted names of tasks with a recorded outcome.
func (v View) Completed() []string {
	if v.s == nil {
		return nil
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	names := make([]string, 0, len(v.s.method))
	for name := range v.s.method {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
