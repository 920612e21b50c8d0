package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPolicyCUE = `package offline

global: {
	acquisitionEra:       "Run2023A"
	bulkDataType:         "data"
	processingSite:       "T0_CH_CERN"
	bulkInjectNode:       "T0_CH_CERN_Disk"
	expressInjectNode:    "T2_CH_CERN"
	expressSubscribeNode: "T2_CH_CERN"
	dqmUploadUrl:         "https://cmsweb.cern.ch/dqm/offline"
	defaultScramArch:     "el8_amd64_gcc11"
	scramArches: {
		"CMSSW_13_0_0": "el8_amd64_gcc11"
	}
}

streams: {
	Default: {
		style: "Bulk"
		repack: {
			maxInputFiles: 500
		}
	}
	PhysicsA: {}
}

datasets: {
	Default: {
		scenario:  "ppEra_Run3"
		doReco:    false
		recoDelay: 172800
		writeAod:  true
	}
	Cosmics: {
		doReco:    true
		version:   "CMSSW_13_0_0"
		globalTag: "130X_dataRun3_Prompt_v1"
		tapeNode:  "T1_US_FNAL"
		diskNode:  "T1_US_FNAL_Disk"
	}
}
`

const testMenuJSON = `{
	"process": "HLT",
	"streams": {
		"PhysicsA": {
			"Cosmics": ["HLT_Cosmics_v1", "HLT_CosmicsHighRate_v2"]
		}
	}
}`

// testFixture is a complete on-disk service environment for one test.
type testFixture struct {
	ConfigPath string
	PolicyDir  string
	SpecDir    string
	MenuPath   string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	root := t.TempDir()

	policyDir := filepath.Join(root, "policy")
	require.NoError(t, os.Mkdir(policyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(policyDir, "offline.cue"), []byte(testPolicyCUE), 0o644))

	specDir := filepath.Join(root, "specs")
	dbPath := filepath.Join(root, "t0.db")

	configPath := filepath.Join(root, "t0.yaml")
	config := "database: " + dbPath + "\npolicyDir: " + policyDir + "\nspecDir: " + specDir + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	menuPath := filepath.Join(root, "menu.json")
	require.NoError(t, os.WriteFile(menuPath, []byte(testMenuJSON), 0o644))

	return &testFixture{
		ConfigPath: configPath,
		PolicyDir:  policyDir,
		SpecDir:    specDir,
		MenuPath:   menuPath,
	}
}

// execute runs the root command with the given arguments and returns
// captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
