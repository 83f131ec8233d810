package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDiff = `diff --git a/app.go b/app.go
--- a/app.go
+++ b/app.go
@@ -1,2 +1,3 @@
 package app
-var a = 1
+var a = 2
+// TODO: tidy
`

// runCLI executes the root command against a temp project config.
func runCLI(t *testing.T, projectConfig string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "config.json")
	if projectConfig != "" {
		if err := os.WriteFile(projectPath, []byte(projectConfig), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--global-config", filepath.Join(dir, "missing-global.json"),
		"--config", projectPath,
	}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPlanCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "", "plan")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	for _, want := range []string{
		"parallel group 0: diffstat, marker_scan",
		"size_gate (after diffstat)",
		"order: diffstat -> marker_scan -> size_gate -> verdict -> notify",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plan output missing %q:\n%s", want, out)
		}
	}
}

func TestPlanCommandJSON(t *testing.T) {
	out, _, err := runCLI(t, `{"tasks": {"notify": {"enabled": false}}}`, "", "plan", "--json")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	var plan struct {
		SequentialOrder []string
	}
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if len(plan.SequentialOrder) != 4 {
		t.Errorf("Expected 4 planned tasks with notify disabled, got %v", plan.SequentialOrder)
	}
}

func TestRunCommandJSONFromStdin(t *testing.T) {
	out, stderr, err := runCLI(t, "", sampleDiff, "run", "--json", "--session", "sess-1")
	if err != nil {
		t.Fatalf("run failed: %v\nstderr: %s", err, stderr)
	}

	var report struct {
		SessionID string `json:"session_id"`
		Order     []string
		Outputs   map[string]struct {
			Result json.RawMessage
			Method string
		}
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.SessionID != "sess-1" {
		t.Errorf("Expected session sess-1, got %q", report.SessionID)
	}
	if len(report.Order) != 5 {
		t.Errorf("Expected 5 merged tasks, got %v", report.Order)
	}
	verdict := string(report.Outputs["verdict"].Result)
	if !strings.Contains(verdict, `"review"`) {
		t.Errorf("Expected a review verdict for a TODO marker, got %s", verdict)
	}
	if !strings.Contains(stderr, "[sess-1] review") {
		t.Errorf("Expected notification on stderr, got %q", stderr)
	}
}

func TestRunCommandTableFromFile(t *testing.T) {
	diffPath := filepath.Join(t.TempDir(), "change.diff")
	if err := os.WriteFile(diffPath, []byte(sampleDiff), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := runCLI(t, "", "", "run", diffPath, "--disable", "notify")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"diffstat", "marker_scan", "skipped", "TODO"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommandFailOnBlock(t *testing.T) {
	cfg := `{"tasks": {"size_gate": {"config": {"max_changed_lines": 1}}}}`
	_, _, err := runCLI(t, cfg, sampleDiff, "run", "--fail-on-block")
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("Expected ErrBlocked, got %v", err)
	}

	_, _, err = runCLI(t, cfg, sampleDiff, "run")
	if err != nil {
		t.Errorf("Expected no error without --fail-on-block, got %v", err)
	}
}

func TestRunCommandMissingFile(t *testing.T) {
	_, _, err := runCLI(t, "", "", "run", filepath.Join(t.TempDir(), "nope.diff"))
	if err == nil || !strings.Contains(err.Error(), "read diff") {
		t.Errorf("Expected read error, got %v", err)
	}
}

func TestRunCommandBadConfig(t *testing.T) {
	_, _, err := runCLI(t, `{"executor": {"max_parallel": -1}}`, "", "plan")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("Expected config error, got %v", err)
	}
}

func TestJournalAndHistory(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "journal.db")
	textfile := filepath.Join(dir, "metrics", "taskflow.prom")
	cfg := `{"journal": {"enabled": true, "path": "` + journal + `"},
	         "metrics": {"enabled": true, "textfile": "` + textfile + `"}}`

	if _, _, err := runCLI(t, cfg, sampleDiff, "run", "--session", "journaled"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	prom, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(prom), "taskflow_runs_total") {
		t.Errorf("textfile missing runs counter:\n%s", prom)
	}

	out, _, err := runCLI(t, cfg, "", "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "journaled") || !strings.Contains(out, "succeeded") {
		t.Errorf("history missing run:\n%s", out)
	}

	out, _, err = runCLI(t, cfg, "", "history", "journaled")
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(out, "verdict") {
		t.Errorf("history show missing outputs:\n%s", out)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	cfg := `{"journal": {"path": "` + filepath.Join(t.TempDir(), "absent.db") + `"}}`
	_, _, err := runCLI(t, cfg, "", "history")
	if err == nil || !strings.Contains(err.Error(), "no journal") {
		t.Errorf("Expected missing journal error, got %v", err)
	}
}
