package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store backed by a temp file.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a minimal run row.
func createTestRun(run uint32) RunInfo {
	return RunInfo{
		RunID:                run,
		Process:              "HLT",
		AcquisitionEra:       "Run2023A",
		BulkDataType:         "data",
		ProcessingSite:       "T0_CH_CERN",
		BulkInjectNode:       "T0_CH_CERN_Disk",
		ExpressInjectNode:    "T2_CH_CERN",
		ExpressSubscribeNode: "T2_CH_CERN",
		HLTKey:               "/cdaq/physics/Run2023/v1.0",
	}
}

// mustTx runs fn in a transaction and fails the test on error.
func mustTx(t *testing.T, s *Store, fn func(tx *sql.Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}
}

// ingestTestRun writes a run with one stream/dataset/trigger.
func ingestTestRun(t *testing.T, s *Store, run uint32, stream, dataset, path string) {
	t.Helper()
	mustTx(t, s, func(tx *sql.Tx) error {
		if err := s.InsertRun(tx, createTestRun(run)); err != nil {
			return err
		}
		if err := s.InsertStreamDataset(tx, run, stream, dataset); err != nil {
			return err
		}
		return s.InsertTriggerAssignment(tx, run, path, dataset)
	})
}
