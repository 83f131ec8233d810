package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/state"
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func outcome(out plugin.TaskOutput, ran bool) string {
	switch {
	case !ran:
		return styleSkipped.Render("skipped")
	case out.Failed():
		return styleFailed.Render("failed")
	default:
		return styleOK.Render("ok")
	}
}

// writeReport prints one row per planned task, then warnings and errors.
func writeReport(w io.Writer, order []string, outputs map[string]plugin.TaskOutput, st *state.SharedState) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TASK", "STATUS", "METHOD", "CONFIDENCE", "TIME").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, name := range order {
		out, ran := outputs[name]
		if !ran {
			t.Row(name, outcome(out, ran), "-", "-", "-")
			continue
		}
		t.Row(name, outcome(out, ran), out.Method,
			fmt.Sprintf("%.2f", out.Confidence),
			out.ExecutionTime.Round(10*time.Microsecond).String())
	}
	fmt.Fprintln(w, t.Render())

	for _, name := range order {
		out, ok := outputs[name]
		if !ok {
			continue
		}
		for _, msg := range out.Errors {
			fmt.Fprintf(w, "%s %s: %s\n", styleFailed.Render("error"), name, msg)
		}
		for _, msg := range out.Warnings {
			fmt.Fprintf(w, "%s %s: %s\n", styleWarning.Render("warning"), name, msg)
		}
	}
	for _, msg := range st.Warnings() {
		fmt.Fprintf(w, "%s %s\n", styleWarning.Render("warning"), msg)
	}
	if decisions := st.DecisionResults(); len(decisions) > 0 {
		parts := make([]string, 0, len(decisions))
		for _, name := range order {
			if v, ok := decisions[name]; ok && v != nil {
				parts = append(parts, fmt.Sprintf("%s=%v", name, v))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(w, "decisions: %s\n", strings.Join(parts, ", "))
		}
	}
}

type jsonOutput struct {
	Result        any            `json:"result"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Confidence    float64        `json:"confidence"`
	Method        string         `json:"method"`
	ExecutionTime string         `json:"execution_time"`
	Errors        []string       `json:"errors,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

type jsonReport struct {
	SessionID string                `json:"session_id"`
	Order     []string              `json:"order"`
	Outputs   map[string]jsonOutput `json:"outputs"`
	Skipped   []string              `json:"skipped,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
}

func writeJSONReport(w io.Writer, sessionID string, order []string, outputs map[string]plugin.TaskOutput, st *state.SharedState) error {
	report := jsonReport{
		SessionID: sessionID,
		Order:     st.MergeOrder(),
		Outputs:   make(map[string]jsonOutput, len(outputs)),
		Warnings:  st.Warnings(),
	}
	for _, name := range order {
		out, ok := outputs[name]
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		report.Outputs[name] = jsonOutput{
			Result:        out.Result,
			Metadata:      out.Metadata,
			Confidence:    out.Confidence,
			Method:        out.Method,
			ExecutionTime: out.ExecutionTime.String(),
			Errors:        out.Errors,
			Warnings:      out.Warnings,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
