package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/geofence-simulator/internal/config"
)

// Exit codes returned by the CLI.
const (
	ExitFailure       = 1
	ExitCommandError  = 2
	ExitConfigFailure = 3
)

// ExitError carries a process exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func wrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// RootOptions holds global flags and the configuration they resolve to.
type RootOptions struct {
	EnvFiles  []string
	LogLevel  string
	LogFormat string

	cfg config.Config
}

// NewRootCommand creates the geofence-sim command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "geofence-sim",
		Short: "Geofence notification simulator",
		Long: `Simulates a small fleet of devices drifting around a map and reports
proximity and geofence containment notifications to connected observers.

Configuration comes from SIM_* and LOG_* environment variables, optionally
read from a .env file; flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.EnvFiles...)
			if err != nil {
				return wrapExitError(ExitConfigFailure, "invalid configuration", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.LogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = opts.LogFormat
			}
			cfg.Log.Output = cmd.ErrOrStderr()
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "env files to load before reading the environment (default .env)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}
