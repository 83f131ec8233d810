package tasks

import (
	"context"
	"fmt"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// VerdictName is the registry name of the verdict task.
const VerdictName = "verdict"

// Decision values.
const (
	DecisionApprove = "approve"
	DecisionReview  = "review"
	DecisionBlock   = "block"
)

// Verdict is the final review decision.
type Verdict struct {
	Decision string
	Reasons  []string
}

// Blocking reports whether the change should not merge as is.
func (v Verdict) Blocking() bool { return v.Decision == DecisionBlock }

type verdictSettings struct {
	BlockOnMarkers bool `mapstructure:"block_on_markers"`
}

// VerdictTask combines the size gate and marker findings into a decision.
type VerdictTask struct {
	*plugin.Base
	blockOnMarkers bool
}

// NewVerdict creates the verdict task from its optional block_on_markers setting.
func NewVerdict(cfg plugin.Config) (*VerdictTask, error) {
	var s verdictSettings
	if err := decodeSettings(VerdictName, cfg, &s); err != nil {
		return nil, err
	}
	desc := plugin.Descriptor{
		Name:           VerdictName,
		Version:        "1.0.0",
		Description:    "Decides approve, review or block",
		Capabilities:   plugin.Capabilities(plugin.CapabilityDecision),
		Dependencies:   []string{SizeGateName, MarkerScanName},
		Priority:       40,
		ExecutionMode:  plugin.ModeSequential,
		OptionalConfig: plugin.ConfigSchema{"block_on_markers": plugin.KindBool},
	}
	return &VerdictTask{Base: plugin.NewBase(desc, cfg), blockOnMarkers: s.BlockOnMarkers}, nil
}

func (t *VerdictTask) Process(_ context.Context, _ plugin.TaskInput, view state.View) (plugin.TaskOutput, error) {
	v := Verdict{Decision: DecisionApprove}
	var warnings []string
	confidence := 1.0

	if raw, _ := view.Validation(SizeGateName); raw != nil {
		gate, ok := raw.(GateResult)
		if !ok {
			return plugin.TaskOutput{}, fmt.Errorf("%s: unexpected %s result %T", VerdictName, SizeGateName, raw)
		}
		if !gate.Passed {
			v.Decision = DecisionBlock
			v.Reasons = append(v.Reasons, fmt.Sprintf("size: %d changed lines over limit %d", gate.ChangedLines, gate.Limit))
		}
		confidence = min(confidence, confidenceOf(view, SizeGateName))
	} else {
		warnings = append(warnings, SizeGateName+" produced no result")
		confidence /= 2
		if v.Decision == DecisionApprove {
			v.Decision = DecisionReview
		}
	}

	if raw, _ := view.Analysis(MarkerScanName); raw != nil {
		findings, ok := raw.([]Finding)
		if !ok {
			return plugin.TaskOutput{}, fmt.Errorf("%s: unexpected %s result %T", VerdictName, MarkerScanName, raw)
		}
		if len(findings) > 0 {
			v.Reasons = append(v.Reasons, fmt.Sprintf("markers: %d found, first %q at %s:%d",
				len(findings), findings[0].Marker, findings[0].Path, findings[0].Line))
			switch {
			case t.blockOnMarkers:
				v.Decision = DecisionBlock
			case v.Decision == DecisionApprove:
				v.Decision = DecisionReview
			}
		}
		confidence = min(confidence, confidenceOf(view, MarkerScanName))
	} else {
		warnings = append(warnings, MarkerScanName+" produced no result")
		confidence /= 2
		if v.Decision == DecisionApprove {
			v.Decision = DecisionReview
		}
	}

	return plugin.TaskOutput{
		Result:     v,
		Confidence: confidence,
		Method:     "rules",
		Warnings:   warnings,
		Metadata:   map[string]any{"decision": v.Decision},
	}, nil
}

func confidenceOf(view state.View, name string) float64 {
	if c, ok := view.Confidence(name); ok {
		return c
	}
	return 0
}
