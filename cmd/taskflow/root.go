package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/catalog"
	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/logging"
	"github.com/aristath/taskflow/internal/scheduler"
)

// app holds what every subcommand needs after flags are parsed.
type app struct {
	globalPath  string
	projectPath string
	logLevel    string

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "Dependency-aware task runner for code review checks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.globalPath, "global-config", "", "Global config file (default ~/.taskflow/config.json)")
	root.PersistentFlags().StringVarP(&a.projectPath, "config", "c", "", "Project config file (default .taskflow/config.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newPlanCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	if a.globalPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			a.globalPath = config.FindFile(filepath.Join(home, config.DirName))
		}
	}
	if a.projectPath == "" {
		a.projectPath = config.FindFile(config.DirName)
	}

	cfg, err := config.Load(a.globalPath, a.projectPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging, cmd.ErrOrStderr())
	return nil
}

// registry builds a registry populated from the config. Notifications go to
// notifyOut. Callers close the registry.
func (a *app) registry(notifyOut io.Writer) (*scheduler.Registry, error) {
	reg := scheduler.NewRegistry(scheduler.WithRegistryLogger(a.logger))
	cat := catalog.New(notifyOut, catalog.WithLogger(a.logger))
	if _, err := cat.Populate(reg, a.cfg); err != nil {
		_ = reg.Close()
		return nil, err
	}
	return reg, nil
}
