package tasks

import (
	"io"

	"github.com/aristath/taskflow/internal/plugin"
)

// Names lists the built-in tasks in dependency order.
var Names = []string{DiffstatName, MarkerScanName, SizeGateName, VerdictName, NotifyName}

// Factory builds a configured task.
type Factory func(cfg plugin.Config) (plugin.Task, error)

// Factories returns the built-in factory table. notify writes to out.
func Factories(out io.Writer) map[string]Factory {
	return map[string]Factory{
		DiffstatName:   adapt(NewDiffstat),
		MarkerScanName: adapt(NewMarkerScan),
		SizeGateName:   adapt(NewSizeGate),
		VerdictName:    adapt(NewVerdict),
		NotifyName: adapt(func(cfg plugin.Config) (*Notify, error) {
			return NewNotify(cfg, out)
		}),
	}
}

func adapt[T plugin.Task](build func(plugin.Config) (T, error)) Factory {
	return func(cfg plugin.Config) (plugin.Task, error) {
		t, err := build(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
