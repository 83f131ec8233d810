package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/metrics"
	"github.com/aristath/taskflow/internal/persistence"
	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/scheduler"
	"github.com/aristath/taskflow/internal/state"
	"github.com/aristath/taskflow/internal/tasks"
	"github.com/aristath/taskflow/internal/tui"
)

// ErrBlocked is returned by run --fail-on-block when the verdict blocks.
var ErrBlocked = errors.New("verdict blocks the change")

type runOptions struct {
	tui         bool
	json        bool
	failOnBlock bool
	timeout     time.Duration
	sessionID   string
	disable     []string
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [diff-file]",
		Short: "Run the review workflow over a unified diff",
		Long: `Run every enabled task over a unified diff read from a file, or from
stdin when no file (or "-") is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			diff, err := readDiff(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			return a.run(cmd, diff, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show live progress in a terminal UI")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print outputs as JSON")
	cmd.Flags().BoolVar(&opts.failOnBlock, "fail-on-block", false, "Exit non-zero when the verdict blocks")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Deadline for the whole workflow (0 for none)")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Session ID (random when empty)")
	cmd.Flags().StringSliceVar(&opts.disable, "disable", nil, "Skip the named tasks for this run")
	return cmd
}

func readDiff(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read diff from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}
	return data, nil
}

func (a *app) run(cmd *cobra.Command, diff []byte, opts runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	// Notifications are held back while the TUI owns the terminal and kept
	// off stdout when it carries JSON.
	notifyOut := cmd.OutOrStdout()
	var held bytes.Buffer
	switch {
	case opts.tui:
		notifyOut = &held
	case opts.json:
		notifyOut = cmd.ErrOrStderr()
	}

	reg, err := a.registry(notifyOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			a.logger.Warn("cleanup failed", "err", err)
		}
	}()

	execOpts := []scheduler.ExecutorOption{
		scheduler.WithLogger(a.logger),
		scheduler.WithTaskTimeout(a.cfg.Executor.TaskTimeout.Std()),
		scheduler.WithMaxParallel(a.cfg.Executor.MaxParallel),
	}

	if a.cfg.Journal.Enabled {
		store, err := persistence.NewSQLiteStore(ctx, a.cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		execOpts = append(execOpts, scheduler.WithObserver(persistence.NewJournal(store, a.logger)))
	}

	var collector *metrics.Collector
	if a.cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		execOpts = append(execOpts, scheduler.WithObserver(collector))
	}

	var bus *events.EventBus
	if opts.tui {
		bus = events.NewEventBus()
		defer bus.Close()
		execOpts = append(execOpts, scheduler.WithEventBus(bus))
	}

	input := plugin.NewInput(diff)
	if opts.sessionID != "" {
		input.SessionID = opts.sessionID
	}
	for _, name := range opts.disable {
		input.Config[name] = map[string]any{plugin.OverrideEnabled: false}
	}

	st := state.New()
	executor := scheduler.NewExecutor(reg, execOpts...)

	var outputs map[string]plugin.TaskOutput
	var runErr error
	if opts.tui {
		outputs, runErr = a.executeWithTUI(ctx, executor, input, st, bus)
		dest := cmd.OutOrStdout()
		if opts.json {
			dest = cmd.ErrOrStderr()
		}
		if _, err := dest.Write(held.Bytes()); err != nil {
			return err
		}
	} else {
		outputs, runErr = executor.Execute(ctx, input, st)
	}

	if collector != nil {
		if err := writeTextfile(collector, a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn("metrics textfile not written", "path", a.cfg.Metrics.Textfile, "err", err)
		}
	}

	plan, planErr := reg.GetExecutionPlan()
	if planErr != nil && runErr == nil {
		return planErr
	}

	out := cmd.OutOrStdout()
	if opts.json {
		if err := writeJSONReport(out, input.SessionID, plan.SequentialOrder, outputs, st); err != nil {
			return err
		}
	} else {
		writeReport(out, plan.SequentialOrder, outputs, st)
	}

	if runErr != nil {
		return runErr
	}
	if opts.failOnBlock {
		if v, ok := outputs[tasks.VerdictName].Result.(tasks.Verdict); ok && v.Blocking() {
			return ErrBlocked
		}
	}
	return nil
}

// executeWithTUI runs the workflow while a Bubble Tea program renders bus
// events. It returns once the workflow has finished and the user quit.
func (a *app) executeWithTUI(ctx context.Context, executor *scheduler.Executor, input plugin.TaskInput, st *state.SharedState, bus *events.EventBus) (map[string]plugin.TaskOutput, error) {
	model := tui.New(bus, a.cfg, a.globalPath, a.projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	outputs, runErr := executor.Execute(ctx, input, st)

	select {
	case err := <-errChan:
		if err != nil {
			a.logger.Warn("tui exited with error", "err", err)
		}
	case <-ctx.Done():
		p.Quit()
		<-errChan
	}
	return outputs, runErr
}

func writeTextfile(c *metrics.Collector, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return c.WriteTextfile(path)
}
