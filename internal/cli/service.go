package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
	"github.com/t0ops/runconfig/internal/wmspec"
)

// ServiceConfig is the YAML service configuration shared by all
// commands that touch the database.
type ServiceConfig struct {
	// Database is the path to the SQLite configuration database,
	// created on first use.
	Database string `yaml:"database"`

	// PolicyDir holds the CUE offline configuration.
	PolicyDir string `yaml:"policyDir"`

	// SpecDir receives the workflow spec files written on stream
	// configuration and dataset release.
	SpecDir string `yaml:"specDir"`
}

// LoadServiceConfig reads and validates a service configuration file.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service config: %w", err)
	}
	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse service config %s: %w", path, err)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("service config %s: database is required", path)
	}
	if cfg.PolicyDir == "" {
		return nil, fmt.Errorf("service config %s: policyDir is required", path)
	}
	if cfg.SpecDir == "" {
		return nil, fmt.Errorf("service config %s: specDir is required", path)
	}
	return &cfg, nil
}

// service bundles the opened store, loaded policy and the spec-dir
// submitter for one command invocation.
type service struct {
	cfg       *ServiceConfig
	store     *store.Store
	policy    *policy.Policy
	submitter *wmspec.SpecDirSubmitter
	log       *slog.Logger
}

// openService loads the service config named by --config, opens the
// database and loads the policy.
func openService(opts *RootOptions) (*service, error) {
	if opts.Config == "" {
		return nil, NewExitError(ExitCommandError, "--config is required")
	}
	cfg, err := LoadServiceConfig(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid service configuration", err)
	}

	log := newLogger(opts)

	pol, err := policy.LoadDir(cfg.PolicyDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &service{
		cfg:       cfg,
		store:     st,
		policy:    pol,
		submitter: wmspec.NewSpecDirSubmitter(cfg.SpecDir, log),
		log:       log,
	}, nil
}

func (s *service) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Error("error closing database", "error", err)
	}
}

// parseRunNumber parses a positional run-number argument.
func parseRunNumber(arg string) (uint32, error) {
	run, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || run == 0 {
		return 0, fmt.Errorf("run number must be a positive integer, got %q", arg)
	}
	return uint32(run), nil
}

// newLogger configures logging based on the verbose flag. Logs go to
// stderr so JSON command output stays parseable.
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
