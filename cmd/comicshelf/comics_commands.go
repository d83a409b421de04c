package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"comicshelf/internal/config"
	"comicshelf/internal/store"
	"comicshelf/internal/tasks"
)

var comicStates = []store.ComicState{
	store.ComicAdded,
	store.ComicUnprocessed,
	store.ComicContentsProcessed,
	store.ComicStable,
	store.ComicChanged,
	store.ComicDeleted,
}

func newComicsCommand(ctx *commandContext) *cobra.Command {
	comicsCmd := &cobra.Command{
		Use:   "comics",
		Short: "List comics and queue comic operations",
	}

	comicsCmd.AddCommand(newComicsListCommand(ctx))
	comicsCmd.AddCommand(newComicTaskCommand(ctx, "delete <id>...", "Mark comics for deletion",
		func(ids []int64) []tasks.Encoder { return []tasks.Encoder{&tasks.DeleteComics{ComicIDs: ids}} }))
	comicsCmd.AddCommand(newComicTaskCommand(ctx, "undelete <id>...", "Restore comics marked for deletion",
		func(ids []int64) []tasks.Encoder { return []tasks.Encoder{&tasks.UndeleteComics{ComicIDs: ids}} }))
	comicsCmd.AddCommand(newComicTaskCommand(ctx, "rescan <id>...", "Reprocess comic contents",
		perComic(func(id int64) tasks.Encoder { return &tasks.RescanComic{ComicID: id} })))
	comicsCmd.AddCommand(newComicTaskCommand(ctx, "convert <id>...", "Rewrite comics as CBZ archives",
		perComic(func(id int64) tasks.Encoder { return &tasks.ConvertComic{ComicID: id} })))
	comicsCmd.AddCommand(newComicsMoveCommand(ctx))

	return comicsCmd
}

func newComicsListCommand(ctx *commandContext) *cobra.Command {
	var stateFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List comics in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseComicStates(stateFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				comics, err := st.ListComics(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if len(comics) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No comics found")
					return nil
				}
				rows := make([][]string, 0, len(comics))
				for _, comic := range comics {
					rows = append(rows, []string{
						strconv.FormatInt(comic.ID, 10),
						string(comic.State),
						textOrDash(comic.Series),
						textOrDash(comic.IssueNumber),
						strconv.Itoa(comic.PageCount),
						comic.FilePath,
					})
				}
				table := renderTable(
					[]string{"ID", "State", "Series", "Issue", "Pages", "Path"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stateFlags, "state", "s", nil, "Filter by state (repeatable)")
	return cmd
}

func newComicsMoveCommand(ctx *commandContext) *cobra.Command {
	var destination string

	cmd := &cobra.Command{
		Use:   "move <id>... --to <dir>",
		Short: "Move comic archives into a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := strings.TrimSpace(destination)
			if dest == "" {
				return fmt.Errorf("--to is required")
			}
			expanded, err := config.ExpandPath(dest)
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}
			expanded, err = filepath.Abs(expanded)
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}
			ids, err := parseComicIDs(args)
			if err != nil {
				return err
			}
			return queueTasks(cmd, ctx, &tasks.MoveComics{ComicIDs: ids, Destination: expanded})
		},
	}

	cmd.Flags().StringVar(&destination, "to", "", "Destination directory")
	return cmd
}

func newComicTaskCommand(ctx *commandContext, use, short string, build func([]int64) []tasks.Encoder) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseComicIDs(args)
			if err != nil {
				return err
			}
			return queueTasks(cmd, ctx, build(ids)...)
		},
	}
}

// perComic queues one task per id for operations that take a single comic.
func perComic(build func(int64) tasks.Encoder) func([]int64) []tasks.Encoder {
	return func(ids []int64) []tasks.Encoder {
		out := make([]tasks.Encoder, 0, len(ids))
		for _, id := range ids {
			out = append(out, build(id))
		}
		return out
	}
}

func queueTasks(cmd *cobra.Command, ctx *commandContext, batch ...tasks.Encoder) error {
	return ctx.withStore(func(_ *config.Config, st *store.Store) error {
		out := cmd.OutOrStdout()
		for _, item := range batch {
			record, err := tasks.Enqueue(cmd.Context(), st, item)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Queued %s task %d\n", displayLabel(record.TaskType), record.ID)
		}
		return nil
	})
}

func parseComicStates(values []string) ([]store.ComicState, error) {
	var states []store.ComicState
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			state, ok := lookupComicState(part)
			if !ok {
				return nil, fmt.Errorf("unknown comic state %q", part)
			}
			states = append(states, state)
		}
	}
	return states, nil
}

func lookupComicState(value string) (store.ComicState, bool) {
	for _, state := range comicStates {
		if string(state) == value {
			return state, true
		}
	}
	return "", false
}
