package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/persistence"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List journaled runs, or show one run's outputs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Journal.Path
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no journal at %s: %w", path, err)
			}
			store, err := persistence.NewSQLiteStore(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(cmd, store, args[0])
			}
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			writeRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func writeRuns(w io.Writer, runs []*persistence.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-9s  %d tasks  %s", r.SessionID, r.Status, r.TaskCount, r.StartedAt.Format("2006-01-02 15:04:05"))
		if !r.FinishedAt.IsZero() {
			line += fmt.Sprintf("  (%s)", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintln(w, line)
	}
}

func showRun(cmd *cobra.Command, store persistence.Store, sessionID string) error {
	run, err := store.GetRun(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	outputs, err := store.Outputs(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	writeRuns(w, []*persistence.Run{run})
	for _, o := range outputs {
		fmt.Fprintf(w, "%2d. %-12s %-10s %.2f  %s\n", o.MergeIndex+1, o.Task, o.Method, o.Confidence, o.Result)
		if len(o.Errors) > 0 {
			fmt.Fprintf(w, "    errors: %s\n", strings.Join(o.Errors, "; "))
		}
		if len(o.Warnings) > 0 {
			fmt.Fprintf(w, "    warnings: %s\n", strings.Join(o.Warnings, "; "))
		}
	}
	return nil
}
