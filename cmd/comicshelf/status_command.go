package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"comicshelf/internal/config"
	"comicshelf/internal/daemon"
	"comicshelf/internal/options"
	"comicshelf/internal/preflight"
	"comicshelf/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, library, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()

				running, pid, err := daemon.ProcessInfo(cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Daemon running: %s", yesNo(running))
				if running && pid > 0 {
					fmt.Fprintf(out, " (pid %d)", pid)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Database: %s\n", st.Path())

				health, err := st.CheckHealth(cmd.Context())
				if err != nil {
					return fmt.Errorf("database health: %w", err)
				}
				fmt.Fprintf(out, "Schema version: %s\n", textOrDash(health.SchemaVersion))
				fmt.Fprintf(out, "Integrity OK: %s\n\n", yesNo(health.IntegrityOK))

				comics := health.Comics
				comicRows := make([][]string, 0, len(comicStates))
				for _, state := range comicStates {
					comicRows = append(comicRows, []string{string(state), strconv.Itoa(comics[state])})
				}
				fmt.Fprint(out, renderTable([]string{"Comic State", "Count"}, comicRows, []columnAlignment{alignLeft, alignRight}))

				stats := health.Tasks
				fmt.Fprintf(out, "Tasks: %d pending, %d claimed, %d finished, %d failed\n",
					stats.Pending, stats.Claimed, stats.Finished, stats.Failed)

				recent, err := st.ListExecutions(cmd.Context(), "", 5)
				if err != nil {
					return err
				}
				if len(recent) > 0 {
					fmt.Fprintln(out, "Recent executions:")
					for _, exec := range recent {
						fmt.Fprintf(out, "  %s  %-10s %s\n",
							exec.StartedAt.Local().Format(time.DateTime), exec.Status, displayLabel(exec.JobID))
					}
				}

				if checks {
					opts := options.New(st, cfg, ctx.logger())
					target := opts.OptionOr(cmd.Context(), options.KeyTargetDirectory, "")
					fmt.Fprintln(out)
					rows := [][]string{}
					for _, result := range preflight.RunAll(cmd.Context(), cfg, target) {
						rows = append(rows, []string{result.Name, yesNo(result.Passed), result.Detail})
					}
					fmt.Fprint(out, renderTable([]string{"Check", "Passed", "Detail"}, rows, nil))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&checks, "check", false, "Run preflight checks against directories and notification endpoints")
	return cmd
}
