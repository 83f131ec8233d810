package tasks

import (
	"context"
	"strings"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

// MarkerScanName is the registry name of the marker scan task.
const MarkerScanName = "marker_scan"

// DefaultMarkers are matched when the config names none.
var DefaultMarkers = []string{"TODO", "FIXME", "XXX", "HACK", "PRIVATE KEY"}

// Finding is one marker occurrence on an added line.
type Finding struct {
	Path   string
	Line   int
	Marker string
	Text   string
}

type markerScanSettings struct {
	Markers []string `mapstructure:"markers"`
}

// MarkerScan looks for markers on added lines only.
type MarkerScan struct {
	*plugin.Base
	markers []string
}

// NewMarkerScan creates the marker scanner. DefaultMarkers apply when markers
// is not configured.
func NewMarkerScan(cfg plugin.Config) (*MarkerScan, error) {
	var s markerScanSettings
	if err := decodeSettings(MarkerScanName, cfg, &s); err != nil {
		return nil, err
	}
	if s.Markers == nil {
		s.Markers = DefaultMarkers
	}
	markers := make([]string, 0, len(s.Markers))
	for _, m := range s.Markers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	desc := plugin.Descriptor{
		Name:               MarkerScanName,
		Version:            "1.0.0",
		Description:        "Flags work-in-progress and secret markers in added lines",
		Capabilities:       plugin.Capabilities(plugin.CapabilityAnalysis, plugin.CapabilitySecurity),
		Priority:           20,
		ExecutionMode:      plugin.ModeParallel,
		ParallelCompatible: true,
		OptionalConfig:     plugin.ConfigSchema{"markers": plugin.KindList},
	}
	return &MarkerScan{Base: plugin.NewBase(desc, cfg), markers: markers}, nil
}

func (t *MarkerScan) Process(ctx context.Context, input plugin.TaskInput, _ state.View) (plugin.TaskOutput, error) {
	diff, err := diffFrom(input.Data)
	if err != nil {
		return plugin.TaskOutput{}, err
	}
	findings := []Finding{}
	scanned := 0
	for _, f := range diff.Files {
		if err := ctx.Err(); err != nil {
			return plugin.TaskOutput{}, err
		}
		for _, line := range f.Lines {
			scanned++
			for _, m := range t.markers {
				if strings.Contains(line.Text, m) {
					findings = append(findings, Finding{
						Path:   displayPath(f),
						Line:   line.Number,
						Marker: m,
						Text:   strings.TrimSpace(line.Text),
					})
				}
			}
		}
	}

	out := plugin.TaskOutput{
		Result:     findings,
		Confidence: 0.9,
		Method:     "substring",
		Metadata:   map[string]any{"lines_scanned": scanned},
	}
	if len(t.markers) == 0 {
		out.Warnings = append(out.Warnings, "no markers configured")
		out.Confidence = 0
	}
	return out, nil
}
