package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskflow/internal/events"
)

// ProgressPaneModel shows invocation-wide counts and the active parallel group.
type ProgressPaneModel struct {
	total     int
	completed int
	failed    int
	skipped   int
	pending   int
	group     string // members of the running parallel group
	finished  bool
	runErr    error
	spinner   spinner.Model
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StyleStatusRunning)),
	}
}

// Init starts the spinner.
func (m ProgressPaneModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case events.WorkflowProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.pending = msg.Pending

	case events.GroupStartedEvent:
		m.group = fmt.Sprintf("group %d: %s", msg.GroupID, strings.Join(msg.Members, ", "))

	case events.GroupFinishedEvent:
		m.group = ""

	case events.WorkflowFinishedEvent:
		m.finished = true
		m.runErr = msg.Err
		m.group = ""
	}

	return m, nil
}

// Finished reports whether the workflow has ended.
func (m ProgressPaneModel) Finished() bool {
	return m.finished
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	heading := "Workflow " + m.spinner.View()
	switch {
	case m.finished && m.runErr != nil:
		heading = "Workflow " + StyleStatusFailed.Render("aborted")
	case m.finished:
		heading = "Workflow " + StyleStatusComplete.Render("finished")
	}
	title := StyleTitle.Render(heading)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Skipped:   %s\n", StyleStatusSkipped.Render(fmt.Sprintf("%d", m.skipped))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))
	b.WriteString("\n")

	if m.total > 0 {
		b.WriteString(renderBar(min(m.width-4, 40), m.total, m.completed, m.failed, m.skipped))
		b.WriteString("\n")
	}
	if m.group != "" {
		b.WriteString(StyleStatusRunning.Render(m.group))
		b.WriteString("\n")
	}
	if m.runErr != nil {
		b.WriteString(StyleStatusFailed.Render(m.runErr.Error()))
		b.WriteString("\n")
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func renderBar(width, total, completed, failed, skipped int) string {
	if width <= 0 || total <= 0 {
		return ""
	}
	completedWidth := (completed * width) / total
	failedWidth := (failed * width) / total
	skippedWidth := (skipped * width) / total
	pendingWidth := max(0, width-completedWidth-failedWidth-skippedWidth)

	bar := StyleStatusComplete.Render(strings.Repeat("=", completedWidth))
	bar += StyleStatusFailed.Render(strings.Repeat("!", failedWidth))
	bar += StyleStatusSkipped.Render(strings.Repeat("-", skippedWidth))
	bar += StyleStatusPending.Render(strings.Repeat(".", pendingWidth))
	return fmt.Sprintf("[%s]  %d/%d", bar, completed+failed+skipped, total)
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
