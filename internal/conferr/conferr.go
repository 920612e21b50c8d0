// Package conferr defines the error type shared by run ingestion,
// stream configuration and release scheduling.
package conferr

import (
	"errors"
	"fmt"
)

// ConfigError represents a fatal inconsistency between a run's trigger
// menu, the offline policy and the configuration store.
//
// Configuration errors include:
//   - Unassigned path: the trigger menu left a path without a dataset
//   - No datasets: a non-Ignore stream has zero mapped datasets
//   - Run not found: an operation referenced a run never ingested
//   - Release conflict: a (run, dataset) pair was already released
//
// ConfigError includes the run/stream/dataset context so operators can
// locate the offending menu or policy entry.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Run identifies the affected run, when known.
	Run uint32

	// Stream identifies the affected stream, when applicable.
	Stream string

	// Dataset identifies the affected dataset, when applicable.
	Dataset string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnassignedPath indicates the trigger menu contains paths
	// not assigned to any dataset.
	ErrCodeUnassignedPath ConfigErrorCode = "UNASSIGNED_PATH"

	// ErrCodeNoDatasets indicates a non-Ignore stream has no datasets.
	ErrCodeNoDatasets ConfigErrorCode = "NO_DATASETS"

	// ErrCodeRunNotFound indicates the run was never ingested.
	ErrCodeRunNotFound ConfigErrorCode = "RUN_NOT_FOUND"

	// ErrCodeReleaseConflict indicates a dataset release was attempted
	// twice for the same run.
	ErrCodeReleaseConflict ConfigErrorCode = "RELEASE_CONFLICT"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Run != 0 && e.Stream != "":
		return fmt.Sprintf("%s: %s (run=%d, stream=%s)", e.Code, e.Message, e.Run, e.Stream)
	case e.Run != 0 && e.Dataset != "":
		return fmt.Sprintf("%s: %s (run=%d, dataset=%s)", e.Code, e.Message, e.Run, e.Dataset)
	case e.Run != 0:
		return fmt.Sprintf("%s: %s (run=%d)", e.Code, e.Message, e.Run)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsConfigurationInconsistency returns true if the error stems from an
// inconsistent trigger menu or policy rather than an I/O failure.
// Uses errors.As to handle wrapped errors.
func IsConfigurationInconsistency(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeUnassignedPath || ce.Code == ErrCodeNoDatasets
	}
	return false
}

// NewUnassignedPath creates a ConfigError for a trigger menu with
// unassigned paths.
func NewUnassignedPath(run uint32, stream string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnassignedPath,
		Message: "trigger menu contains paths not assigned to a dataset",
		Run:     run,
		Stream:  stream,
	}
}

// NewNoDatasets creates a ConfigError for a stream without datasets.
func NewNoDatasets(run uint32, stream string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeNoDatasets,
		Message: "stream has no datasets but processing style is not Ignore",
		Run:     run,
		Stream:  stream,
	}
}

// NewRunNotFound creates a ConfigError for a missing run.
func NewRunNotFound(run uint32) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeRunNotFound,
		Message: "run has not been ingested",
		Run:     run,
	}
}

// NewReleaseConflict creates a ConfigError for a double release.
func NewReleaseConflict(run uint32, dataset string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeReleaseConflict,
		Message: "dataset already released for this run",
		Run:     run,
		Dataset: dataset,
	}
}
