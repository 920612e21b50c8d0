package wmspec

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t0ops/runconfig/internal/placement"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readSpec(t *testing.T, dir, workflow string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, workflow+".json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestSubmit_WritesSpecFile(t *testing.T) {
	dir := t.TempDir()
	sub := NewSpecDirSubmitter(dir, discardLogger())

	req := WorkflowRequest{
		Run:            370000,
		AcquisitionEra: "Run2023A",
		Valid:          true,
		CMSSWVersion:   "CMSSW_13_0_0",
		SiteWhitelist:  []string{"T0_CH_CERN"},
		Outputs: []OutputModule{
			{DataTier: "RAW", EventContent: "ALL", PrimaryDataset: "Cosmics"},
		},
	}
	h, err := sub.Submit(context.Background(), "Repack_Run370000_StreamPhysicsA", "Repack", req)
	require.NoError(t, err)
	assert.Equal(t, "Repack_Run370000_StreamPhysicsA", h.ID())

	doc := readSpec(t, dir, "Repack_Run370000_StreamPhysicsA")
	assert.Equal(t, "Repack", doc["task"])
	request := doc["request"].(map[string]any)
	assert.Equal(t, float64(370000), request["run"])
	assert.Equal(t, "CMSSW_13_0_0", request["cmsswVersion"])
}

func TestSubmit_MutatorsRewriteSpec(t *testing.T) {
	dir := t.TempDir()
	sub := NewSpecDirSubmitter(dir, discardLogger())

	h, err := sub.Submit(context.Background(), "Express_Run370000_StreamExpress", "Express", WorkflowRequest{Run: 370000})
	require.NoError(t, err)

	require.NoError(t, h.AttachSubscriptions([]placement.SubscriptionRequest{
		{Dataset: "StreamExpress", DataTier: "FEVT", NonCustodialSites: []string{"T2_CH_CERN"}},
	}))
	require.NoError(t, h.SetOwner(DefaultOwner))
	require.NoError(t, h.SetPerformanceLimits(DefaultPerformanceLimits))

	doc := readSpec(t, dir, "Express_Run370000_StreamExpress")
	subs := doc["subscriptions"].([]any)
	require.Len(t, subs, 1)
	assert.Equal(t, "StreamExpress", subs[0].(map[string]any)["dataset"])

	owner := doc["owner"].(map[string]any)
	assert.Equal(t, "T0", owner["group"])

	perf := doc["performance"].(map[string]any)
	assert.Equal(t, float64(10485760), perf["maxRss"])
	assert.Equal(t, float64(604800), perf["softTimeout"])
}

func TestMergeOutputMapping(t *testing.T) {
	dir := t.TempDir()
	sub := NewSpecDirSubmitter(dir, discardLogger())

	h, err := sub.Submit(context.Background(), "Repack_Run370000_StreamPhysicsA", "Repack", WorkflowRequest{
		Run: 370000,
		Outputs: []OutputModule{
			{DataTier: "RAW", EventContent: "ALL", PrimaryDataset: "Cosmics"},
			{DataTier: "RAW", EventContent: "ALL", PrimaryDataset: "ZeroBias"},
			{DataTier: "DQMIO", EventContent: "DQM"},
		},
	})
	require.NoError(t, err)

	mapping := h.MergeOutputMapping()
	assert.Equal(t, map[string]string{
		"write_Cosmics_RAW":  "Cosmics",
		"write_ZeroBias_RAW": "ZeroBias",
	}, mapping)
}

func TestResources(t *testing.T) {
	cores, memory := Resources("ppEra_Run3", 8)
	assert.Equal(t, 8, cores)
	assert.Equal(t, 2000+800*8, memory)

	cores, memory = Resources("HeavyIonsEra_Run3", 4)
	assert.Equal(t, 4, cores)
	assert.Equal(t, 8200, memory)

	cores, memory = Resources("ppEra_Run3", 0)
	assert.Equal(t, 1, cores)
	assert.Equal(t, 2800, memory)
}

func TestCreateSubscription_RecordsInputFileset(t *testing.T) {
	dir := t.TempDir()
	sub := NewSpecDirSubmitter(dir, discardLogger())

	h, err := sub.Submit(context.Background(), "Express_Run370000_StreamExpress", "Express", WorkflowRequest{Run: 370000})
	require.NoError(t, err)

	err = sub.CreateSubscription(context.Background(), h, "Run370000_StreamExpress", true)
	require.NoError(t, err)

	doc := readSpec(t, dir, "Express_Run370000_StreamExpress")
	filesets := doc["inputFilesets"].([]any)
	require.Len(t, filesets, 1)
	fs := filesets[0].(map[string]any)
	assert.Equal(t, "Run370000_StreamExpress", fs["fileset"])
	assert.Equal(t, true, fs["alternativeClose"])
}

func TestCreateSubscription_ForeignHandleRejected(t *testing.T) {
	dir := t.TempDir()
	sub := NewSpecDirSubmitter(dir, discardLogger())

	err := sub.CreateSubscription(context.Background(), foreignHandle{}, "Run1_StreamA", false)
	require.Error(t, err)
}

type foreignHandle struct{}

func (foreignHandle) ID() string { return "foreign" }
func (foreignHandle) MergeOutputMapping() map[string]string { return nil }
func (foreignHandle) SetOwner(OwnerDetails) error { return nil }
func (foreignHandle) SetPerformanceLimits(PerformanceLimits) error { return nil }

func (foreignHandle) AttachSubscriptions([]placement.SubscriptionRequest) error { return nil }
