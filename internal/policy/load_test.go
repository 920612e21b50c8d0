package policy

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basePolicy = `
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
	Express: {
		style: "Express"
		express: {
			scenario:  "ppEra_Run3"
			dataTiers: ["FEVT", "ALCARECO", "DQMIO"]
			globalTag: "130X_dataRun3_Express_v1"
			multicore: 8
		}
	}
	Calibration: {
		style: "Ignore"
	}
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
		globalTag: {
			default: "130X_dataRun3_Prompt_v1"
			acqEra: {
				"Run2023A": "130X_dataRun3_Prompt_v2"
			}
			maxRun: {
				"360000": "130X_dataRun3_Prompt_v0"
			}
		}
		tapeNode: "T1_US_FNAL"
		diskNode: "T1_US_FNAL_Disk"
	}
}
`

func compilePolicy(t *testing.T, src string) *Policy {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	p, err := Parse(v)
	require.NoError(t, err)
	return p
}

func TestParseGlobal(t *testing.T) {
	p := compilePolicy(t, basePolicy)

	assert.Equal(t, "Run2023A", p.Global.AcquisitionEra)
	assert.Equal(t, "T0_CH_CERN", p.Global.ProcessingSite)
	assert.Equal(t, "DQMIO", p.Global.DQMDataTier)
	assert.Equal(t, 150000, p.Global.BaseRequestPriority)
	assert.Equal(t, "el8_amd64_gcc11", p.Global.PlatformFor("CMSSW_13_0_0"))
	assert.Equal(t, "el8_amd64_gcc11", p.Global.PlatformFor("CMSSW_99_0_0"))
}

func TestStreamDefaultInheritance(t *testing.T) {
	p := compilePolicy(t, basePolicy)

	sc := p.StreamPolicyFor("PhysicsA")
	assert.Equal(t, "PhysicsA", sc.Name)
	assert.Equal(t, StyleBulk, sc.Style)
	require.NotNil(t, sc.Repack)
	assert.Equal(t, 500, sc.Repack.MaxInputFiles)
}

func TestStreamPolicyForUnknownStream(t *testing.T) {
	p := compilePolicy(t, basePolicy)

	sc := p.StreamPolicyFor("NeverSeenBefore")
	assert.Equal(t, StyleBulk, sc.Style)
	require.NotNil(t, sc.Repack)
	assert.Equal(t, 500, sc.Repack.MaxInputFiles)
}

func TestExpressStream(t *testing.T) {
	p := compilePolicy(t, basePolicy)

	sc := p.StreamPolicyFor("Express")
	assert.Equal(t, StyleExpress, sc.Style)
	assert.Nil(t, sc.Repack)
	require.NotNil(t, sc.Express)
	assert.Equal(t, "ppEra_Run3", sc.Express.Scenario)
	assert.Equal(t, []string{"FEVT", "ALCARECO", "DQMIO"}, sc.Express.DataTiers)
	assert.Equal(t, 8, sc.Express.Multicore)
	assert.True(t, sc.Express.WriteDQM)
}

func TestIgnoreStream(t *testing.T) {
	p := compilePolicy(t, basePolicy)

	sc := p.StreamPolicyFor("Calibration")
	assert.Equal(t, StyleIgnore, sc.Style)
	assert.Nil(t, sc.Repack)
	assert.Nil(t, sc.Express)
}

func TestDatasetDefaultInheritance(t *testing.T) {
	p := compilePolicy(t, basePolicy)

	dc := p.DatasetPolicyFor("Cosmics")
	assert.Equal(t, "ppEra_Run3", dc.Scenario)
	assert.True(t, dc.DoReco)
	assert.Equal(t, int64(172800), dc.RecoDelay)
	assert.True(t, dc.WriteAOD)
	assert.Equal(t, "T1_US_FNAL", dc.TapeNode)
}

func TestDatasetStructuredOverride(t *testing.T) {
	p := compilePolicy(t, basePolicy)
	dc := p.DatasetPolicyFor("Cosmics")

	assert.Equal(t, "CMSSW_13_0_0", dc.Version.Resolve("Run2023A", 370000))
	assert.Equal(t, "130X_dataRun3_Prompt_v2", dc.GlobalTag.Resolve("Run2023A", 370000))
	assert.Equal(t, "130X_dataRun3_Prompt_v1", dc.GlobalTag.Resolve("Run2023B", 370000))
	assert.Equal(t, "130X_dataRun3_Prompt_v1", dc.GlobalTag.Resolve("Run2023B", 350000))
}

func TestMaxOverSizeClampedToEdmSize(t *testing.T) {
	p := compilePolicy(t, `
global: {
	acquisitionEra:   "Run2023A"
	bulkDataType:     "data"
	processingSite:   "T0_CH_CERN"
	defaultScramArch: "el8_amd64_gcc11"
}
streams: {
	PhysicsA: {
		repack: {
			maxEdmSize:  10000000000
			maxOverSize: 99999999999
		}
	}
}
`)

	sc := p.StreamPolicyFor("PhysicsA")
	require.NotNil(t, sc.Repack)
	assert.Equal(t, int64(10000000000), sc.Repack.MaxOverSize)
}

func TestExpressStreamRequiresExpressSection(t *testing.T) {
	v := cuecontext.New().CompileString(`
global: {
	acquisitionEra:   "Run2023A"
	bulkDataType:     "data"
	processingSite:   "T0_CH_CERN"
	defaultScramArch: "el8_amd64_gcc11"
}
streams: {
	Express: { style: "Express" }
}
`)
	require.NoError(t, v.Err())

	_, err := Parse(v)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeMissingField, loadErr.Code)
}

func TestUnknownStyleRejected(t *testing.T) {
	v := cuecontext.New().CompileString(`
global: {
	acquisitionEra:   "Run2023A"
	bulkDataType:     "data"
	processingSite:   "T0_CH_CERN"
	defaultScramArch: "el8_amd64_gcc11"
}
streams: {
	PhysicsA: { style: "Turbo" }
}
`)
	require.NoError(t, v.Err())

	_, err := Parse(v)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeBadValue, loadErr.Code)
}

func TestRecoDatasetRequiresVersionAndGlobalTag(t *testing.T) {
	v := cuecontext.New().CompileString(`
global: {
	acquisitionEra:   "Run2023A"
	bulkDataType:     "data"
	processingSite:   "T0_CH_CERN"
	defaultScramArch: "el8_amd64_gcc11"
}
datasets: {
	Cosmics: {
		scenario: "ppEra_Run3"
		doReco:   true
	}
}
`)
	require.NoError(t, v.Err())

	_, err := Parse(v)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeMissingField, loadErr.Code)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "policy.cue"), []byte("package offline\n"+basePolicy), 0o644)
	require.NoError(t, err)

	p, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Run2023A", p.Global.AcquisitionEra)
	assert.Len(t, p.Streams, 4)
	assert.Len(t, p.Datasets, 2)
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir("/nonexistent/policy")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}
