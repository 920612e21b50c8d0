package ingest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t0ops/runconfig/internal/conferr"
	"github.com/t0ops/runconfig/internal/policy"
	"github.com/t0ops/runconfig/internal/store"
)

func testService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, log), st
}

func testGlobal() policy.GlobalPolicy {
	return policy.GlobalPolicy{
		AcquisitionEra:       "Run2023A",
		BulkDataType:         "data",
		ProcessingSite:       "T0_CH_CERN",
		BulkInjectNode:       "T0_CH_CERN_Disk",
		ExpressInjectNode:    "T2_CH_CERN",
		ExpressSubscribeNode: "T2_CH_CERN",
	}
}

func testMenu() *TriggerConfig {
	return &TriggerConfig{
		Process: "HLT",
		Mapping: map[string]map[string][]string{
			"PhysicsA": {
				"Cosmics":  {"HLT_Cosmics_v1", "HLT_CosmicsSP_v2"},
				"ZeroBias": {"HLT_ZeroBias_v3"},
			},
			"Express": {
				"StreamExpress": {"HLT_Express_v1"},
			},
		},
	}
}

func TestIngestRun_RecordsTopology(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.IngestRun(ctx, 370000, testGlobal(), testMenu(), "/cdaq/physics/v1"))

	info, err := st.GetRunInfo(ctx, 370000)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "HLT", info.Process)
	assert.Equal(t, "Run2023A", info.AcquisitionEra)
	assert.Equal(t, "/cdaq/physics/v1", info.HLTKey)

	datasets, err := st.GetStreamDatasets(ctx, 370000, "PhysicsA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cosmics", "ZeroBias"}, datasets)

	paths, err := st.GetDatasetTriggers(ctx, 370000, "Cosmics")
	require.NoError(t, err)
	assert.Equal(t, []string{"HLT_CosmicsSP_v2", "HLT_Cosmics_v1"}, paths)
}

func TestIngestRun_LocalRun(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.IngestRun(ctx, 370000, testGlobal(), nil, ""))

	info, err := st.GetRunInfo(ctx, 370000)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "FakeProcessName", info.Process)
	assert.Equal(t, "FakeAcquisitionEra", info.AcquisitionEra)
	assert.Equal(t, "FakeBulkDataType", info.BulkDataType)

	datasets, err := st.GetStreamDatasets(ctx, 370000, "PhysicsA")
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestIngestRun_UnassignedPathNewRun(t *testing.T) {
	svc, _ := testService(t)

	menu := testMenu()
	menu.Mapping["PhysicsA"][UnassignedPathDataset] = []string{"HLT_Orphan_v1"}

	err := svc.IngestRun(context.Background(), 370000, testGlobal(), menu, "")
	require.Error(t, err)
	assert.True(t, conferr.IsConfigurationInconsistency(err))
}

func TestIngestRun_UnassignedPathOldRunAccepted(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	menu := testMenu()
	menu.Mapping["PhysicsA"][UnassignedPathDataset] = []string{"HLT_Orphan_v1"}

	require.NoError(t, svc.IngestRun(ctx, 230000, testGlobal(), menu, ""))

	// The sentinel entry is skipped, the rest of the menu lands.
	datasets, err := st.GetStreamDatasets(ctx, 230000, "PhysicsA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cosmics", "ZeroBias"}, datasets)
}

func TestIngestRun_FailureRollsBackEverything(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	menu := testMenu()
	menu.Mapping["Express"][UnassignedPathDataset] = []string{"HLT_Orphan_v1"}

	err := svc.IngestRun(ctx, 370000, testGlobal(), menu, "")
	require.Error(t, err)

	info, err := st.GetRunInfo(ctx, 370000)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestIngestRun_Idempotent(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.IngestRun(ctx, 370000, testGlobal(), testMenu(), ""))
	require.NoError(t, svc.IngestRun(ctx, 370000, testGlobal(), testMenu(), ""))

	datasets, err := st.GetStreamDatasets(ctx, 370000, "PhysicsA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cosmics", "ZeroBias"}, datasets)
}
