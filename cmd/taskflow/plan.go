package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/scheduler"
)

func newPlanCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the execution plan for the configured tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry(io.Discard)
			if err != nil {
				return err
			}
			defer reg.Close()

			plan, err := reg.GetExecutionPlan()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			writePlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func writePlan(w io.Writer, plan scheduler.ExecutionPlan) {
	for i, stage := range plan.Stages {
		fmt.Fprintf(w, "stage %d\n", i+1)
		if stage.GroupID != scheduler.NoGroup {
			fmt.Fprintf(w, "  parallel group %d: %s\n", stage.GroupID, strings.Join(stage.Parallel, ", "))
		}
		for _, name := range stage.Sequential {
			deps := plan.DependencyGraph[name]
			if len(deps) == 0 {
				fmt.Fprintf(w, "  %s\n", name)
				continue
			}
			fmt.Fprintf(w, "  %s (after %s)\n", name, strings.Join(deps, ", "))
		}
	}
	fmt.Fprintf(w, "order: %s\n", strings.Join(plan.SequentialOrder, " -> "))
}
