package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/t0ops/runconfig/internal/conferr"
	"github.com/t0ops/runconfig/internal/ingest"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	HLTKey string
}

// triggerMenuFile is the on-disk form of a trigger menu dump.
type triggerMenuFile struct {
	Process string                         `json:"process"`
	Streams map[string]map[string][]string `json:"streams"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <run> [<menu-file>]",
		Short: "Register a new run from its trigger menu",
		Long: `Register a new run and record its stream, dataset and trigger path
topology from a trigger menu dump.

Without a menu file the run is recorded as a local data-taking run;
local runs are skipped by stream configuration.

Example:
  runconfig ingest --config t0.yaml 370000 menu.json --hlt-key /cdaq/physics/Run2023/v1.0`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.HLTKey, "hlt-key", "", "HLT configuration key for the run")

	return cmd
}

func runIngest(opts *IngestOptions, args []string, cmd *cobra.Command) error {
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

	var menu *ingest.TriggerConfig
	if len(args) == 2 {
		menu, err = readTriggerMenu(args[1])
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trigger menu", err)
		}
		formatter.VerboseLog("Trigger menu %s: process %s, %d stream(s)", args[1], menu.Process, len(menu.Mapping))
	}

	svc, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer svc.Close()

	ing := ingest.New(svc.store, svc.log)
	if err := ing.IngestRun(cmd.Context(), run, svc.policy.Global, menu, opts.HLTKey); err != nil {
		var cfgErr *conferr.ConfigError
		if errors.As(err, &cfgErr) {
			_ = formatter.Error(string(cfgErr.Code), cfgErr.Error(), nil)
			return WrapExitError(ExitFailure, "run rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to ingest run", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"run": run})
	}
	return formatter.Success(fmt.Sprintf("✓ Run %d registered", run))
}

func readTriggerMenu(path string) (*ingest.TriggerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var menu triggerMenuFile
	if err := json.Unmarshal(data, &menu); err != nil {
		return nil, fmt.Errorf("parse trigger menu %s: %w", path, err)
	}
	if menu.Process == "" {
		return nil, fmt.Errorf("trigger menu %s: process is required", path)
	}
	return &ingest.TriggerConfig{
		Process: menu.Process,
		Mapping: menu.Streams,
	}, nil
}
