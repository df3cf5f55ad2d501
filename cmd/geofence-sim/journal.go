package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/geofence-simulator/internal/journal"
)

// JournalOptions holds flags for the journal commands.
type JournalOptions struct {
	*RootOptions
	Path     string
	Limit    int
	Commands bool
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect a simulator journal",
	}

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent journaled ticks or commands as JSON lines",
		Long: `Print the most recent journal entries, oldest first.

Examples:
  geofence-sim journal tail --journal ./sim.db
  geofence-sim journal tail --journal ./sim.db --limit 5 --commands`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalTail(cmd.Context(), cmd, opts)
		},
	}
	tail.Flags().StringVar(&opts.Path, "journal", "", "SQLite journal path (default SIM_JOURNAL_PATH)")
	tail.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of entries to print")
	tail.Flags().BoolVar(&opts.Commands, "commands", false, "print commands instead of ticks")

	cmd.AddCommand(tail)
	return cmd
}

func runJournalTail(ctx context.Context, cmd *cobra.Command, opts *JournalOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	path := opts.Path
	if path == "" {
		path = opts.cfg.JournalPath
	}
	if path == "" {
		return wrapExitError(ExitConfigFailure, "no journal", errors.New("set --journal or SIM_JOURNAL_PATH"))
	}

	j, err := journal.Open(path)
	if err != nil {
		return wrapExitError(ExitCommandError, "open journal", err)
	}
	defer j.Close()

	var entries []any
	if opts.Commands {
		cmds, err := j.RecentCommands(ctx, opts.Limit)
		if err != nil {
			return wrapExitError(ExitCommandError, "read commands", err)
		}
		for _, c := range cmds {
			entries = append(entries, c)
		}
	} else {
		ticks, err := j.RecentTicks(ctx, opts.Limit)
		if err != nil {
			return wrapExitError(ExitCommandError, "read ticks", err)
		}
		for _, t := range ticks {
			entries = append(entries, t)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
	return nil
}
