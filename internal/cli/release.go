package cli

import (
	"github.com/spf13/cobra"

	"github.com/t0ops/runconfig/internal/release"
)

// NewReleaseCommand creates the release command.
func NewReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release eligible datasets for reconstruction",
		Long: `Run one release pass: every dataset of an ended run whose
reconstruction delay has elapsed gets its prompt reconstruction
workflow submitted and is marked released.

The pass is idempotent; run it from a periodic timer.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelease(rootOpts, cmd)
		},
	}

	return cmd
}

func runRelease(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	svc, err := openService(opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	sched := release.New(svc.store, svc.policy, svc.submitter, svc.submitter, release.SystemClock{}, svc.log)
	if err := sched.ReleaseEligible(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "release pass failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"released": true})
	}
	return formatter.Success("✓ Release pass complete")
}
