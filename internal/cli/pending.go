package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PendingRelease is one row of the pending command's output.
type PendingRelease struct {
	Run      uint32 `json:"run"`
	Dataset  string `json:"dataset"`
	Fileset  string `json:"fileset"`
	RunEnded bool   `json:"runEnded"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List datasets awaiting release",
		Long: `List every (run, dataset) pair recorded at stream configuration that
has not been released for reconstruction yet, including runs that are
still taking data.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(rootOpts, cmd)
		},
	}

	return cmd
}

func runPending(opts *RootOptions, cmd *cobra.Command) error {
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

	candidates, err := svc.store.FindUnreleased(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list pending releases", err)
	}

	rows := make([]PendingRelease, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, PendingRelease{
			Run:      c.Run,
			Dataset:  c.Dataset,
			Fileset:  c.Fileset,
			RunEnded: c.StopTime > 0,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(rows)
	}

	if len(rows) == 0 {
		return formatter.Success("No pending releases")
	}
	out := cmd.OutOrStdout()
	for _, r := range rows {
		state := "running"
		if r.RunEnded {
			state = "ended"
		}
		fmt.Fprintf(out, "run %d  %-30s  %-50s  %s\n", r.Run, r.Dataset, r.Fileset, state)
	}
	return nil
}
