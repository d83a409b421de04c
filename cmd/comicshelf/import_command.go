package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"comicshelf/internal/config"
	"comicshelf/internal/store"
	"comicshelf/internal/tasks"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Queue comic archives for import",
		Long: `Queue comic archives for import.

Each argument may be a file or a directory. Directories are walked
recursively and every file with a supported extension is queued. Files
already in the library are skipped by the daemon when the task runs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				paths, err := collectArchives(cfg, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(paths) == 0 {
					fmt.Fprintln(out, "No supported archives found")
					return nil
				}
				for _, path := range paths {
					if dryRun {
						fmt.Fprintf(out, "Would import %s\n", path)
						continue
					}
					record, err := tasks.Enqueue(cmd.Context(), st, &tasks.AddComic{Path: path})
					if err != nil {
						return fmt.Errorf("queue %s: %w", path, err)
					}
					fmt.Fprintf(out, "Queued %s (task %d)\n", path, record.ID)
				}
				if !dryRun {
					fmt.Fprintf(out, "%d archive(s) queued\n", len(paths))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List matching archives without queueing them")
	return cmd
}

func collectArchives(cfg *config.Config, args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	for _, arg := range args {
		root, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if cfg.SupportsExtension(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
