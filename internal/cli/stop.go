package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// StopOptions holds flags for the stop command.
type StopOptions struct {
	*RootOptions
	At string
}

// NewStopCommand creates the stop command.
func NewStopCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StopOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stop <run>",
		Short: "Mark a run as ended",
		Long: `Mark a run as ended. The stop time starts the per-dataset
reconstruction delay; the release command only considers ended runs.

The stop time is recorded once; repeating the command leaves the
original value.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "stop time as a unix timestamp (default: now)")

	return cmd
}

func runStop(opts *StopOptions, arg string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	run, err := parseRunNumber(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid run number", err)
	}

	stopTime := time.Now().Unix()
	if opts.At != "" {
		stopTime, err = strconv.ParseInt(opts.At, 10, 64)
		if err != nil || stopTime <= 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid stop time %q", opts.At))
		}
	}

	svc, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.store.SetRunStopTime(cmd.Context(), run, stopTime); err != nil {
		return WrapExitError(ExitCommandError, "failed to record stop time", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"run": run, "stopTime": stopTime})
	}
	return formatter.Success(fmt.Sprintf("✓ Run %d stopped at %d", run, stopTime))
}
