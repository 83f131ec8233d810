package tui

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskflow/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings
	saveTarget   string
	taskTimeout  string
	maxParallel  string
	logLevel     string
	enabledTasks []string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.saveTarget = "project"
	m.taskTimeout = m.config.Executor.TaskTimeout.String()
	m.maxParallel = strconv.Itoa(m.config.Executor.MaxParallel)
	m.logLevel = m.config.Logging.Level
	m.enabledTasks = m.enabledTasks[:0]
	for _, name := range m.taskNames() {
		if m.config.Tasks[name].IsEnabled() {
			m.enabledTasks = append(m.enabledTasks, name)
		}
	}
}

func (m *SettingsPaneModel) taskNames() []string {
	names := make([]string, 0, len(m.config.Tasks))
	for name := range m.config.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("must be zero or more")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	taskOptions := make([]huh.Option[string], 0, len(m.config.Tasks))
	for _, name := range m.taskNames() {
		taskOptions = append(taskOptions, huh.NewOption(name, name))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.taskflow/config.json)", "global"),
					huh.NewOption("Project (.taskflow/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("taskTimeout").
				Title("Task Timeout").
				Value(&m.taskTimeout).
				Placeholder("30s").
				Validate(validateDuration),

			huh.NewInput().
				Key("maxParallel").
				Title("Max Parallel (0 = unbounded)").
				Value(&m.maxParallel).
				Placeholder("0").
				Validate(validateNonNegative),

			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.logLevel),
		).Title("Executor"),

		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Key("enabledTasks").
				Title("Enabled Tasks").
				Options(taskOptions...).
				Value(&m.enabledTasks),
		).Title("Tasks"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.readForm()
		m.err = m.applyFormToConfig()

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}
		if m.err == nil {
			m.err = config.Save(m.config, targetPath)
		}
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// readForm pulls the submitted values out of the form. The bound pointers
// belong to whichever copy of the model built the form.
func (m *SettingsPaneModel) readForm() {
	m.saveTarget = m.form.GetString("saveTarget")
	m.taskTimeout = m.form.GetString("taskTimeout")
	m.maxParallel = m.form.GetString("maxParallel")
	m.logLevel = m.form.GetString("logLevel")
	if tasks, ok := m.form.Get("enabledTasks").([]string); ok {
		m.enabledTasks = tasks
	}
}

// applyFormToConfig copies form field values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() error {
	timeout, err := time.ParseDuration(m.taskTimeout)
	if m.taskTimeout == "" {
		timeout, err = 0, nil
	}
	if err != nil {
		return fmt.Errorf("task timeout: %w", err)
	}
	parallel, err := strconv.Atoi(m.maxParallel)
	if err != nil {
		return fmt.Errorf("max parallel: %w", err)
	}

	m.config.Executor.TaskTimeout = config.Duration(timeout)
	m.config.Executor.MaxParallel = parallel
	m.config.Logging.Level = m.logLevel

	enabled := make(map[string]bool, len(m.enabledTasks))
	for _, name := range m.enabledTasks {
		enabled[name] = true
	}
	for name, tc := range m.config.Tasks {
		on := enabled[name]
		tc.Enabled = &on
		m.config.Tasks[name] = tc
	}
	return m.config.Validate()
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	switch {
	case m.saved && m.form.State == huh.StateCompleted:
		content = StyleStatusComplete.Render("✓ Settings saved successfully!")
	case m.err != nil:
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	default:
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane, resetting the form when shown.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.loadFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
