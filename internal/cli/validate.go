package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/t0ops/runconfig/internal/policy"
)

// ValidationResult holds policy validation results.
type ValidationResult struct {
	Valid    bool `json:"valid"`
	Streams  int  `json:"streams"`
	Datasets int  `json:"datasets"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <policy-dir>",
		Short: "Validate the CUE offline configuration",
		Long: `Validate the CUE offline configuration without touching the database.

Checks that the global section is complete, every stream has a known
processing style with the sections that style requires, and every
dataset resolves a scenario and, where reconstruction is enabled, a
software version and global tag.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, policyDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	pol, err := policy.LoadDir(policyDir)
	if err != nil {
		var loadErr *policy.LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return WrapExitError(ExitFailure, "policy invalid", err)
		}
		_ = formatter.Error("POLICY_INVALID", err.Error(), nil)
		return WrapExitError(ExitFailure, "policy invalid", err)
	}

	formatter.VerboseLog("Loaded %d stream(s) and %d dataset(s) from %s",
		len(pol.Streams), len(pol.Datasets), policyDir)

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:    true,
			Streams:  len(pol.Streams),
			Datasets: len(pol.Datasets),
		})
	}
	return formatter.Success("✓ Policy valid")
}
