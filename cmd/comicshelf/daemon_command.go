package main

import (
	"github.com/spf13/cobra"

	"comicshelf/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var diagnostic bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the library daemon in the foreground",
		Long: `Run the library daemon in the foreground.

The daemon drains the task queue, runs scheduled batch jobs, and reacts to
library events until it receives SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				Diagnostic:  diagnostic,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging (source locations)")
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Also write a debug-level JSON log under the log directory's debug folder")
	return cmd
}
