package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScenarios executes every conformance scenario under testdata.
func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarioDir("testdata")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			h, err := New(sc, t.TempDir())
			require.NoError(t, err)
			defer h.Close()

			require.NoError(t, h.Run(context.Background(), sc))
		})
	}
}

func TestHarnessRejectsBrokenPolicy(t *testing.T) {
	sc := &Scenario{
		Name:   "broken",
		Policy: `streams: { A: { style: "Sideways" } }`,
		Steps:  []Step{{Release: &ReleaseStep{}}},
	}
	_, err := New(sc, t.TempDir())
	require.Error(t, err)
}

func TestHarnessReportsUnexpectedSuccess(t *testing.T) {
	sc := &Scenario{
		Name: "unexpected-success",
		Policy: `
global: {
	acquisitionEra:   "Run2023A"
	bulkDataType:     "data"
	processingSite:   "T0_CH_CERN"
	defaultScramArch: "el8_amd64_gcc11"
}
`,
		Steps: []Step{
			{Ingest: &IngestStep{
				Run:     370000,
				Process: "HLT",
				Streams: map[string]map[string][]string{
					"PhysicsA": {"Cosmics": {"HLT_Cosmics_v1"}},
				},
				ExpectError: "UNASSIGNED_PATH",
			}},
		},
	}
	h, err := New(sc, t.TempDir())
	require.NoError(t, err)
	defer h.Close()

	err = h.Run(context.Background(), sc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "step 1")
}
