package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t0ops/runconfig/internal/conferr"
	"github.com/t0ops/runconfig/internal/streamcfg"
)

// NewConfigureCommand creates the configure command.
func NewConfigureCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure <run> <stream>",
		Short: "Configure a stream of a run for processing",
		Long: `Configure one stream of a registered run: resolve its processing
style from policy, submit the repack or express workflow, plan replica
placement and record the release candidates for prompt reconstruction.

Configuring an already configured stream is a no-op.

Example:
  runconfig configure --config t0.yaml 370000 PhysicsA`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runConfigure(opts *RootOptions, args []string, cmd *cobra.Command) error {
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
	stream := args[1]

	svc, err := openService(opts)
	if err != nil {
		return err
	}
	defer svc.Close()

	engine := streamcfg.New(svc.store, svc.policy, svc.submitter, svc.submitter, svc.log)
	if err := engine.ConfigureStream(cmd.Context(), run, stream); err != nil {
		var cfgErr *conferr.ConfigError
		if errors.As(err, &cfgErr) {
			_ = formatter.Error(string(cfgErr.Code), cfgErr.Error(), nil)
			return WrapExitError(ExitFailure, "stream not configured", err)
		}
		return WrapExitError(ExitCommandError, "failed to configure stream", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"run": run, "stream": stream})
	}
	return formatter.Success(fmt.Sprintf("✓ Run %d stream %s configured", run, stream))
}
