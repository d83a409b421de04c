package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"comicshelf/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var contains string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := logs.CurrentPath(cfg.Paths.LogDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(line string) error {
				if contains != "" && !strings.Contains(line, contains) {
					return nil
				}
				_, err := fmt.Fprintln(out, line)
				return err
			}

			result, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				if err := emit(line); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, logs.FollowOptions{Offset: result.Offset}, emit)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&contains, "grep", "", "Only show lines containing this text")
	return cmd
}
