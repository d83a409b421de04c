package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"comicshelf/internal/config"
	"comicshelf/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the persisted task queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueuePruneCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				stats, err := st.TaskStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Pending", strconv.Itoa(stats.Pending)},
					{"Claimed", strconv.Itoa(stats.Claimed)},
					{"Finished", strconv.Itoa(stats.Finished)},
					{"Failed", strconv.Itoa(stats.Failed)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				records, err := st.ListTasks(cmd.Context(), pendingOnly)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						strconv.FormatInt(record.ID, 10),
						displayLabel(record.TaskType),
						formatProperties(record.Properties),
						taskState(record),
						record.EnqueuedAt.Local().Format(time.DateTime),
						record.Failure,
					})
				}
				table := renderTable(
					[]string{"ID", "Type", "Properties", "State", "Enqueued", "Failure"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only show tasks that have not been claimed")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove tasks that have not been claimed yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				removed, err := st.ClearPendingTasks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d pending task(s)\n", removed)
				return nil
			})
		},
	}
}

func newQueuePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				retention := olderThan
				if retention <= 0 {
					retention = time.Duration(cfg.Tasks.RetentionHours) * time.Hour
				}
				removed, err := st.PruneFinishedTasks(cmd.Context(), time.Now().Add(-retention))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished task(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only delete tasks finished before this age (default: configured retention)")
	return cmd
}

func taskState(record *store.PersistedTask) string {
	switch {
	case record.Failure != "":
		return "failed"
	case record.FinishedAt != nil:
		return "finished"
	case record.ClaimedAt != nil:
		return "claimed"
	default:
		return "pending"
	}
}

func formatProperties(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+props[key])
	}
	return strings.Join(parts, " ")
}
