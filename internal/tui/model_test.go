package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/scheduler"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)
	dir := t.TempDir()
	m := New(bus, config.DefaultConfig(), dir+"/global.json", dir+"/project.json")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func send(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModel_TracksTaskLifecycle(t *testing.T) {
	now := time.Now()
	m := send(newTestModel(t),
		events.TaskStartedEvent{ID: "diffstat", GroupID: 0, Timestamp: now},
		events.TaskStartedEvent{ID: "marker_scan", GroupID: 0, Timestamp: now},
		events.TaskCompletedEvent{ID: "diffstat", Method: "count", Confidence: 1, Duration: time.Millisecond},
		events.TaskFailedEvent{ID: "marker_scan", Errors: []string{`task "marker_scan": boom`}},
		events.TaskSkippedEvent{ID: "notify", Reason: "condition not met"},
	)

	require.Len(t, m.taskPane.taskOrder, 3)
	assert.Equal(t, StatusCompleted, m.taskPane.tasks["diffstat"].Status)
	assert.Equal(t, StatusFailed, m.taskPane.tasks["marker_scan"].Status)
	assert.Equal(t, StatusSkipped, m.taskPane.tasks["notify"].Status)
	assert.Contains(t, m.taskPane.tasks["marker_scan"].Lines, `  task "marker_scan": boom`)
	assert.Equal(t, 0, m.taskPane.tasks["diffstat"].GroupID)
	assert.Equal(t, scheduler.NoGroup, m.taskPane.tasks["notify"].GroupID)

	view := m.View()
	assert.Contains(t, view, "diffstat")
	assert.Contains(t, view, "Tasks")
}

func TestModel_SelectionMovesWithKeys(t *testing.T) {
	m := send(newTestModel(t),
		events.TaskStartedEvent{ID: "a"},
		events.TaskStartedEvent{ID: "b"},
		tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")},
	)
	sel, ok := m.taskPane.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.Name)

	m = send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	sel, _ = m.taskPane.Selected()
	assert.Equal(t, "b", sel.Name, "selection stops at the last task")

	m = send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	sel, _ = m.taskPane.Selected()
	assert.Equal(t, "a", sel.Name)
}

func TestModel_Progress(t *testing.T) {
	m := send(newTestModel(t),
		events.GroupStartedEvent{GroupID: 1, Members: []string{"x", "y"}},
		events.WorkflowProgressEvent{Total: 4, Completed: 1, Failed: 1, Skipped: 1, Pending: 1},
	)
	assert.Contains(t, m.progressPane.View(), "group 1: x, y")
	assert.Contains(t, m.progressPane.View(), "3/4")
	assert.False(t, m.Finished())

	m = send(m,
		events.GroupFinishedEvent{GroupID: 1},
		events.WorkflowFinishedEvent{Err: errors.New("workflow cancelled")},
	)
	assert.True(t, m.Finished())
	view := m.progressPane.View()
	assert.Contains(t, view, "aborted")
	assert.NotContains(t, view, "group 1")
}

func TestModel_FocusCycles(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, PaneTasks, m.focusedPane)
	m = send(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneProgress, m.focusedPane)
	m = send(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneTasks, m.focusedPane)
	m = send(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, PaneProgress, m.focusedPane)
}

func TestModel_SettingsToggle(t *testing.T) {
	m := send(newTestModel(t), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.True(t, m.showSettings)
	assert.Contains(t, m.View(), "Settings")

	m = send(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.showSettings)
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, strings.HasPrefix(next.(Model).View(), "Goodbye"))
}

func TestRenderBar(t *testing.T) {
	assert.Empty(t, renderBar(10, 0, 0, 0, 0))
	assert.Contains(t, renderBar(10, 2, 2, 0, 0), "2/2")
}

func TestSettingsApply(t *testing.T) {
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	s := NewSettingsPaneModel(cfg, dir+"/g.json", dir+"/p.json")
	s.taskTimeout = "45s"
	s.maxParallel = "3"
	s.logLevel = "debug"
	s.enabledTasks = []string{"diffstat", "verdict"}

	require.NoError(t, s.applyFormToConfig())
	assert.Equal(t, 45*time.Second, cfg.Executor.TaskTimeout.Std())
	assert.Equal(t, 3, cfg.Executor.MaxParallel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Tasks["diffstat"].IsEnabled())
	assert.False(t, cfg.Tasks["notify"].IsEnabled())

	s.maxParallel = "-2"
	assert.Error(t, s.applyFormToConfig())
}
