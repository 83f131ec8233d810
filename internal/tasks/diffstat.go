package tasks

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// DiffstatName is the registry name of the diffstat task.
const DiffstatName = "diffstat"

// FileStat is the per-file line count reported by diffstat.
type FileStat struct {
	Path    string
	Added   int
	Removed int
	Binary  bool
}

// Stats is the diffstat result.
type Stats struct {
	Files        []FileStat
	Added        int
	Removed      int
	ChangedLines int
	Ignored      []string
}

type diffstatSettings struct {
	IgnorePaths []string `mapstructure:"ignore_paths"`
}

// Diffstat counts added and removed lines per file.
type Diffstat struct {
	*plugin.Base
	settings diffstatSettings
}

// NewDiffstat builds the task. ignore_paths takes doublestar globs.
func NewDiffstat(cfg plugin.Config) (*Diffstat, error) {
	var s diffstatSettings
	if err := decodeSettings(DiffstatName, cfg, &s); err != nil {
		return nil, err
	}
	for _, pattern := range s.IgnorePaths {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%s: invalid ignore pattern %q", DiffstatName, pattern)
		}
	}
	desc := plugin.Descriptor{
		Name:               DiffstatName,
		Version:            "1.0.0",
		Description:        "Counts changed lines per file",
		Capabilities:       plugin.Capabilities(plugin.CapabilityAnalysis),
		Priority:           10,
		ExecutionMode:      plugin.ModeParallel,
		ParallelCompatible: true,
		OptionalConfig:     plugin.ConfigSchema{"ignore_paths": plugin.KindList},
	}
	return &Diffstat{Base: plugin.NewBase(desc, cfg), settings: s}, nil
}

func (t *Diffstat) Process(_ context.Context, input plugin.TaskInput, _ state.View) (plugin.TaskOutput, error) {
	diff, err := diffFrom(input.Data)
	if err != nil {
		return plugin.TaskOutput{}, err
	}
	var stats Stats
	for _, f := range diff.Files {
		path := displayPath(f)
		if t.ignored(path) {
			stats.Ignored = append(stats.Ignored, path)
			continue
		}
		stats.Files = append(stats.Files, FileStat{Path: path, Added: f.Added, Removed: f.Removed, Binary: f.Binary})
		stats.Added += f.Added
		stats.Removed += f.Removed
	}
	stats.ChangedLines = stats.Added + stats.Removed

	out := plugin.TaskOutput{
		Result:     stats,
		Confidence: 1,
		Method:     "line_count",
		Metadata: map[string]any{
			"files":   len(stats.Files),
			"ignored": len(stats.Ignored),
		},
	}
	if len(diff.Files) == 0 {
		out.Warnings = append(out.Warnings, "diff contains no files")
	}
	return out, nil
}

func (t *Diffstat) ignored(path string) bool {
	for _, pattern := range t.settings.IgnorePaths {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

func displayPath(f FileChange) string {
	if f.Deleted() || f.Path == "" {
		return f.OldPath
	}
	return f.Path
}
