package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSetVersionCommand creates the set-version command.
func NewSetVersionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-version <run> <stream> <cmssw-version>",
		Short: "Record the online software version for a stream",
		Long: `Record the CMSSW version the online system used for a stream of a
run. Stream configuration maps it through the stream's version
override table to pick the offline version.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetVersion(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runSetVersion(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	run, err := parseRunNumber(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid run number", err)
	}
	stream, version := args[1], args[2]

	svc, err := openService(opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.store.SetStreamOnlineVersion(cmd.Context(), run, stream, version); err != nil {
		return WrapExitError(ExitCommandError, "failed to record online version", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"run": run, "stream": stream, "version": version})
	}
	return formatter.Success(fmt.Sprintf("✓ Run %d stream %s online version %s", run, stream, version))
}
