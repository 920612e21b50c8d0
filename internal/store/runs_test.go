package store

import (
	"context"
	"database/sql"
	"testing"
)

func TestInsertRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	info := createTestRun(370000)
	info.Backfill = "1"
	info.ValidationMode = true
	mustTx(t, s, func(tx *sql.Tx) error {
		return s.InsertRun(tx, info)
	})

	got, err := s.GetRunInfo(ctx, 370000)
	if err != nil {
		t.Fatalf("GetRunInfo() failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRunInfo() returned nil for ingested run")
	}
	if got.Process != "HLT" {
		t.Errorf("Process = %q, want HLT", got.Process)
	}
	if got.Backfill != "1" {
		t.Errorf("Backfill = %q, want 1", got.Backfill)
	}
	if !got.ValidationMode {
		t.Error("ValidationMode = false, want true")
	}
	if got.StopTime != 0 {
		t.Errorf("StopTime = %d, want 0", got.StopTime)
	}
}

func TestGetRunInfo_MissingRun(t *testing.T) {
	s := createTestStore(t)

	got, err := s.GetRunInfo(context.Background(), 999999)
	if err != nil {
		t.Fatalf("GetRunInfo() failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetRunInfo() = %+v, want nil", got)
	}
}

func TestInsertRun_DuplicateIgnored(t *testing.T) {
	s := createTestStore(t)

	mustTx(t, s, func(tx *sql.Tx) error {
		return s.InsertRun(tx, createTestRun(370000))
	})

	second := createTestRun(370000)
	second.Process = "SomethingElse"
	mustTx(t, s, func(tx *sql.Tx) error {
		return s.InsertRun(tx, second)
	})

	got, err := s.GetRunInfo(context.Background(), 370000)
	if err != nil {
		t.Fatalf("GetRunInfo() failed: %v", err)
	}
	if got.Process != "HLT" {
		t.Errorf("Process = %q, want original HLT", got.Process)
	}
}

func TestSetRunStopTime_WriteOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *sql.Tx) error {
		return s.InsertRun(tx, createTestRun(370000))
	})

	if err := s.SetRunStopTime(ctx, 370000, 1000); err != nil {
		t.Fatalf("SetRunStopTime() failed: %v", err)
	}
	if err := s.SetRunStopTime(ctx, 370000, 2000); err != nil {
		t.Fatalf("SetRunStopTime() second call failed: %v", err)
	}

	got, err := s.GetRunInfo(ctx, 370000)
	if err != nil {
		t.Fatalf("GetRunInfo() failed: %v", err)
	}
	if got.StopTime != 1000 {
		t.Errorf("StopTime = %d, want first write 1000", got.StopTime)
	}
}

func TestStreamDatasets_SortedAndDeduplicated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *sql.Tx) error {
		if err := s.InsertRun(tx, createTestRun(370000)); err != nil {
			return err
		}
		for _, ds := range []string{"ZeroBias", "Cosmics", "Cosmics"} {
			if err := s.InsertStreamDataset(tx, 370000, "PhysicsA", ds); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.GetStreamDatasets(ctx, 370000, "PhysicsA")
	if err != nil {
		t.Fatalf("GetStreamDatasets() failed: %v", err)
	}
	want := []string{"Cosmics", "ZeroBias"}
	if len(got) != len(want) {
		t.Fatalf("GetStreamDatasets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dataset[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDatasetTriggers_Sorted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *sql.Tx) error {
		if err := s.InsertRun(tx, createTestRun(370000)); err != nil {
			return err
		}
		if err := s.InsertStreamDataset(tx, 370000, "PhysicsA", "Cosmics"); err != nil {
			return err
		}
		for _, p := range []string{"HLT_ZeroBias_v2", "HLT_Cosmics_v1"} {
			if err := s.InsertTriggerAssignment(tx, 370000, p, "Cosmics"); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.GetDatasetTriggers(ctx, 370000, "Cosmics")
	if err != nil {
		t.Fatalf("GetDatasetTriggers() failed: %v", err)
	}
	if len(got) != 2 || got[0] != "HLT_Cosmics_v1" || got[1] != "HLT_ZeroBias_v2" {
		t.Errorf("GetDatasetTriggers() = %v, want sorted paths", got)
	}
}

func TestStreamOnlineVersion_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ingestTestRun(t, s, 370000, "PhysicsA", "Cosmics", "HLT_Cosmics_v1")

	got, err := s.GetStreamOnlineVersion(ctx, 370000, "PhysicsA")
	if err != nil {
		t.Fatalf("GetStreamOnlineVersion() failed: %v", err)
	}
	if got != "" {
		t.Errorf("GetStreamOnlineVersion() = %q before any write, want empty", got)
	}

	if err := s.SetStreamOnlineVersion(ctx, 370000, "PhysicsA", "CMSSW_13_0_0"); err != nil {
		t.Fatalf("SetStreamOnlineVersion() failed: %v", err)
	}
	got, err = s.GetStreamOnlineVersion(ctx, 370000, "PhysicsA")
	if err != nil {
		t.Fatalf("GetStreamOnlineVersion() failed: %v", err)
	}
	if got != "CMSSW_13_0_0" {
		t.Errorf("GetStreamOnlineVersion() = %q, want CMSSW_13_0_0", got)
	}
}

func TestStreamStyle_SecondInsertFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ingestTestRun(t, s, 370000, "PhysicsA", "Cosmics", "HLT_Cosmics_v1")

	mustTx(t, s, func(tx *sql.Tx) error {
		return s.InsertStreamStyle(tx, 370000, "PhysicsA", "Bulk")
	})

	has, err := s.HasStreamStyle(ctx, 370000, "PhysicsA")
	if err != nil {
		t.Fatalf("HasStreamStyle() failed: %v", err)
	}
	if !has {
		t.Error("HasStreamStyle() = false after insert")
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.InsertStreamStyle(tx, 370000, "PhysicsA", "Express")
	})
	if err == nil {
		t.Error("second InsertStreamStyle() succeeded, want constraint failure")
	}
}

func TestReplicaNodes_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ingestTestRun(t, s, 370000, "PhysicsA", "Cosmics", "HLT_Cosmics_v1")

	mustTx(t, s, func(tx *sql.Tx) error {
		return s.InsertReplicaConfig(tx, 370000, "Cosmics", "", "T1_US_FNAL", "T1_US_FNAL_Disk")
	})

	archival, tape, disk, err := s.GetReplicaNodes(ctx, 370000, "Cosmics")
	if err != nil {
		t.Fatalf("GetReplicaNodes() failed: %v", err)
	}
	if archival != "" || tape != "T1_US_FNAL" || disk != "T1_US_FNAL_Disk" {
		t.Errorf("GetReplicaNodes() = (%q, %q, %q)", archival, tape, disk)
	}
}

func TestReplicaNodes_MissingDataset(t *testing.T) {
	s := createTestStore(t)

	archival, tape, disk, err := s.GetReplicaNodes(context.Background(), 370000, "Cosmics")
	if err != nil {
		t.Fatalf("GetReplicaNodes() failed: %v", err)
	}
	if archival != "" || tape != "" || disk != "" {
		t.Errorf("GetReplicaNodes() = (%q, %q, %q), want all empty", archival, tape, disk)
	}
}
