package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/scheduler"
)

// Task display statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// TaskState is what the pane knows about one task in the current run.
type TaskState struct {
	Name      string
	Status    string
	GroupID   int
	Lines     []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel shows the task list and the selected task's detail.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	taskOrder   []string // first-seen order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

func (m *TaskPaneModel) track(name string) *TaskState {
	if ts, ok := m.tasks[name]; ok {
		return ts
	}
	ts := &TaskState{Name: name, GroupID: scheduler.NoGroup}
	m.tasks[name] = ts
	m.taskOrder = append(m.taskOrder, name)
	if len(m.taskOrder) == 1 {
		m.selectedIdx = 0
	}
	return ts
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		ts := m.track(msg.ID)
		ts.Status = StatusRunning
		ts.GroupID = msg.GroupID
		ts.StartTime = msg.Timestamp
		where := "sequential"
		if msg.GroupID != scheduler.NoGroup {
			where = fmt.Sprintf("parallel group %d", msg.GroupID)
		}
		ts.Lines = append(ts.Lines, fmt.Sprintf("started (%s)", where))

	case events.TaskCompletedEvent:
		ts := m.track(msg.ID)
		ts.Status = StatusCompleted
		ts.Duration = msg.Duration
		ts.Lines = append(ts.Lines, fmt.Sprintf("completed in %v: method=%s confidence=%.2f", msg.Duration, msg.Method, msg.Confidence))

	case events.TaskFailedEvent:
		ts := m.track(msg.ID)
		ts.Status = StatusFailed
		ts.Duration = msg.Duration
		ts.Lines = append(ts.Lines, fmt.Sprintf("failed after %v", msg.Duration))
		for _, e := range msg.Errors {
			ts.Lines = append(ts.Lines, "  "+e)
		}

	case events.TaskSkippedEvent:
		ts := m.track(msg.ID)
		ts.Status = StatusSkipped
		ts.Lines = append(ts.Lines, "skipped: "+msg.Reason)
	}

	m.updateViewportContent()
	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 25
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, name := range m.taskOrder {
		ts := m.tasks[name]
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(ts.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusSkipped:
		return StyleStatusSkipped.Render("–")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Selected returns the selected task's state, if any.
func (m TaskPaneModel) Selected() (*TaskState, bool) {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.tasks[m.taskOrder[m.selectedIdx]], true
	}
	return nil, false
}

func (m *TaskPaneModel) updateViewportContent() {
	ts, ok := m.Selected()
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(ts.Lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-25-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
