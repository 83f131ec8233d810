package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/resilience"
	"github.com/aristath/taskflow/internal/state"
)

// SizeGateName is the registry name of the size gate task.
const SizeGateName = "size_gate"

// ErrMissingUpstream is returned when a dependency left no usable result.
var ErrMissingUpstream = errors.New("upstream result unavailable")

// missingUpstream reports that dep left no result. Retrying cannot produce one.
func missingUpstream(dep string) error {
	return resilience.Permanent(fmt.Errorf("%w: %s", ErrMissingUpstream, dep))
}

// GateResult is the size gate verdict.
type GateResult struct {
	ChangedLines int
	Limit        int
	Passed       bool
}

type sizeGateSettings struct {
	MaxChangedLines int `mapstructure:"max_changed_lines"`
}

// SizeGate fails the change when diffstat reports more changed lines than
// max_changed_lines.
type SizeGate struct {
	*plugin.Base
	limit int
}

// NewSizeGate creates the size gate. max_changed_lines is required.
func NewSizeGate(cfg plugin.Config) (*SizeGate, error) {
	var s sizeGateSettings
	if err := decodeSettings(SizeGateName, cfg, &s); err != nil {
		return nil, err
	}
	if s.MaxChangedLines < 0 {
		return nil, fmt.Errorf("%s: max_changed_lines must not be negative", SizeGateName)
	}
	desc := plugin.Descriptor{
		Name:           SizeGateName,
		Version:        "1.0.0",
		Description:    "Rejects changes above a line budget",
		Capabilities:   plugin.Capabilities(plugin.CapabilityValidation),
		Dependencies:   []string{DiffstatName},
		Priority:       30,
		ExecutionMode:  plugin.ModeSequential,
		RequiredConfig: plugin.ConfigSchema{"max_changed_lines": plugin.KindInt},
	}
	return &SizeGate{Base: plugin.NewBase(desc, cfg), limit: s.MaxChangedLines}, nil
}

func (t *SizeGate) Process(_ context.Context, _ plugin.TaskInput, view state.View) (plugin.TaskOutput, error) {
	raw, _ := view.Analysis(DiffstatName)
	stats, ok := raw.(Stats)
	if !ok {
		return plugin.TaskOutput{}, missingUpstream(DiffstatName)
	}
	res := GateResult{
		ChangedLines: stats.ChangedLines,
		Limit:        t.limit,
		Passed:       stats.ChangedLines <= t.limit,
	}
	out := plugin.TaskOutput{
		Result:     res,
		Confidence: 1,
		Method:     "threshold",
	}
	if !res.Passed {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d changed lines exceed the limit of %d", res.ChangedLines, res.Limit))
	}
	return out, nil
}
