package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"comicshelf/internal/config"
	"comicshelf/internal/jobs"
	"comicshelf/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect batch jobs and their executions",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsHistoryCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batch jobs with their schedule and pending work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				now := time.Now()
				defs := jobs.Definitions(nil, nil)
				rows := make([][]string, 0, len(defs))
				for _, def := range defs {
					spec := cfg.Schedule(def.JobID)
					next := "event only"
					if spec != "" {
						schedule, err := jobs.ParseSchedule(spec)
						if err != nil {
							next = "invalid schedule"
						} else {
							next = schedule.Next(now).Local().Format(time.DateTime)
						}
					}
					eligible, err := st.CountEligible(cmd.Context(), def.Kind)
					if err != nil {
						return fmt.Errorf("count eligible for %s: %w", def.JobID, err)
					}
					topics := make([]string, 0, len(def.Topics))
					for _, topic := range def.Topics {
						topics = append(topics, string(topic))
					}
					rows = append(rows, []string{
						displayLabel(def.JobID),
						def.JobID,
						textOrDash(spec),
						next,
						strconv.FormatInt(eligible, 10),
						textOrDash(strings.Join(topics, ", ")),
					})
				}
				table := renderTable(
					[]string{"Job", "ID", "Schedule", "Next Run", "Eligible", "Triggers"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newJobsHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [job-id]",
		Short: "Show recent job executions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = strings.TrimSpace(args[0])
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				executions, err := st.ListExecutions(cmd.Context(), jobID, limit)
				if err != nil {
					return err
				}
				if len(executions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded")
					return nil
				}
				rows := make([][]string, 0, len(executions))
				for _, exec := range executions {
					rows = append(rows, []string{
						displayLabel(exec.JobID),
						string(exec.Status),
						exec.StartedAt.Local().Format(time.DateTime),
						executionDuration(exec),
						strconv.FormatInt(exec.ReadCount, 10),
						strconv.FormatInt(exec.WriteCount, 10),
						strconv.FormatInt(exec.SkipCount, 10),
						exec.ExitMessage,
					})
				}
				table := renderTable(
					[]string{"Job", "Status", "Started", "Duration", "Read", "Written", "Skipped", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of executions to show")
	return cmd
}

func executionDuration(exec *store.Execution) string {
	if exec.EndedAt == nil {
		return "running"
	}
	return exec.EndedAt.Sub(exec.StartedAt).Round(time.Millisecond).String()
}

func textOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
