package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// NotifyName is the registry name of the notify task.
const NotifyName = "notify"

type notifySettings struct {
	Always bool `mapstructure:"always"`
}

// Notify writes the verdict to a writer. It only runs when the verdict is
// not an approval, unless always is set.
type Notify struct {
	*plugin.Base
	always bool

	mu sync.Mutex
	w  io.Writer
}

// NewNotify creates the notify task. A nil w discards notifications.
func NewNotify(cfg plugin.Config, w io.Writer) (*Notify, error) {
	var s notifySettings
	if err := decodeSettings(NotifyName, cfg, &s); err != nil {
		return nil, err
	}
	if w == nil {
		w = io.Discard
	}
	desc := plugin.Descriptor{
		Name:           NotifyName,
		Version:        "1.0.0",
		Description:    "Reports non-approving verdicts",
		Capabilities:   plugin.Capabilities(plugin.CapabilityNotification),
		Dependencies:   []string{VerdictName},
		Priority:       90,
		ExecutionMode:  plugin.ModeConditional,
		OptionalConfig: plugin.ConfigSchema{"always": plugin.KindBool},
	}
	return &Notify{Base: plugin.NewBase(desc, cfg), always: s.Always, w: w}, nil
}

// ShouldRun implements plugin.Conditional.
func (t *Notify) ShouldRun(_ context.Context, _ plugin.TaskInput, view state.View) bool {
	if t.always {
		return true
	}
	v, ok := verdictFrom(view)
	return !ok || v.Decision != DecisionApprove
}

// Process writes the verdict line to the task's writer.
func (t *Notify) Process(_ context.Context, input plugin.TaskInput, view state.View) (plugin.TaskOutput, error) {
	v, ok := verdictFrom(view)
	if !ok {
		return plugin.TaskOutput{}, missingUpstream(VerdictName)
	}
	msg := fmt.Sprintf("[%s] %s", input.SessionID, v.Decision)
	if len(v.Reasons) > 0 {
		msg += ": " + strings.Join(v.Reasons, "; ")
	}

	t.mu.Lock()
	_, err := fmt.Fprintln(t.w, msg)
	t.mu.Unlock()
	if err != nil {
		return plugin.TaskOutput{}, fmt.Errorf("write notification: %w", err)
	}
	return plugin.TaskOutput{
		Result:     msg,
		Confidence: 1,
		Method:     "writer",
	}, nil
}

func verdictFrom(view state.View) (Verdict, bool) {
	raw, _ := view.Decision(VerdictName)
	v, ok := raw.(Verdict)
	return v, ok
}
