// Package cli wires the resumeq command tree. The default command is check:
// a bare `resumeq` run by cron emits one decision and exits.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"resumeq/internal/config"
	"resumeq/pkg/logx"
)

var (
	flagConfig   string
	flagLogLevel string

	settings config.Settings
	log      logx.Logger
	logClose func() error
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resumeq",
		Short: "resumeq — auto-resume scheduler for deferred agent tasks",
		Long: "resumeq keeps a durable queue of deferred agent tasks and, on each\n" +
			"invocation, decides whether the host has capacity to resume one —\n" +
			"without ever contending with the interactive main session.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			settings, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagLogLevel != "" {
				settings.LogLevel = flagLogLevel
			}
			log, logClose, err = logx.New(logx.Config{
				Level:   settings.LogLevel,
				Console: settings.LogConsole,
				File: logx.FileConfig{
					Enabled: settings.LogFileEnabled,
					Path:    settings.LogFilePath,
				},
			})
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logClose != nil {
				_ = logClose()
			}
		},
		// Bare invocation decides; this is what cron calls.
		RunE:         func(cmd *cobra.Command, args []string) error { return runCheck(cmd) },
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "./config.json", "path to config file (json or yaml)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newCheckCmd(),
		newAddCmd(),
		newCompleteCmd(),
		newFailCmd(),
		newListCmd(),
		newWatchCmd(),
	)

	return root
}
