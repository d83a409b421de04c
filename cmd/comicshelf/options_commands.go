package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"comicshelf/internal/config"
	"comicshelf/internal/options"
	"comicshelf/internal/organizer"
)

func newOptionsCommand(ctx *commandContext) *cobra.Command {
	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "Show and edit runtime options stored in the database",
	}

	optionsCmd.AddCommand(newOptionsListCommand(ctx))
	optionsCmd.AddCommand(newOptionsGetCommand(ctx))
	optionsCmd.AddCommand(newOptionsSetCommand(ctx))
	optionsCmd.AddCommand(newOptionsUnsetCommand(ctx))

	return optionsCmd
}

func newOptionsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resolved options and where each value comes from",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOptions(func(_ *config.Config, opts *options.Store) error {
				entries, err := opts.All(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{entry.Key, entry.Value, entry.Source})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Option", "Value", "Source"}, rows, nil))
				return nil
			})
		},
	}
}

func newOptionsGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the resolved value of an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOptions(func(_ *config.Config, opts *options.Store) error {
				value, ok := opts.Option(cmd.Context(), args[0])
				if !ok {
					return fmt.Errorf("option %s is not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func newOptionsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a database override for an option",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			value := strings.TrimSpace(args[1])
			if err := validateOption(key, value); err != nil {
				return err
			}
			return ctx.withOptions(func(_ *config.Config, opts *options.Store) error {
				if err := opts.Set(cmd.Context(), key, value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
				return nil
			})
		},
	}
}

func newOptionsUnsetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a database override, reverting to the configured default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOptions(func(_ *config.Config, opts *options.Store) error {
				removed, err := opts.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s had no override\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed override for %s\n", args[0])
				return nil
			})
		},
	}
}

func validateOption(key, value string) error {
	if key == "" {
		return fmt.Errorf("option key is required")
	}
	switch key {
	case options.KeyRenamingRule:
		if err := organizer.ValidateRule(value); err != nil {
			return fmt.Errorf("invalid renaming rule: %w", err)
		}
	case options.KeyErrorThreshold, options.KeyChunkSize:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
	case options.KeyDeleteRemovedFiles, options.FeatureEventTriggers, options.FeatureSkipCachePrepare:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
	}
	return nil
}
