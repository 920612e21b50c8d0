package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: sample scenario
policy: |
  global: {}
startTime: 1690000000
steps:
  - ingest:
      run: 370000
      process: HLT
      streams:
        PhysicsA:
          Cosmics: [HLT_Cosmics_v1]
  - advance: {seconds: 3600}
  - release: {}
assertions:
  - workflowCount: 0
`)

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", sc.Name)
	assert.Equal(t, int64(1690000000), sc.StartTime)
	require.Len(t, sc.Steps, 3)

	ing := sc.Steps[0].Ingest
	require.NotNil(t, ing)
	assert.Equal(t, uint32(370000), ing.Run)
	assert.Equal(t, []string{"HLT_Cosmics_v1"}, ing.Streams["PhysicsA"]["Cosmics"])

	require.NotNil(t, sc.Steps[1].Advance)
	assert.Equal(t, int64(3600), sc.Steps[1].Advance.Seconds)

	require.Len(t, sc.Assertions, 1)
	require.NotNil(t, sc.Assertions[0].WorkflowCount)
	assert.Equal(t, 0, *sc.Assertions[0].WorkflowCount)
}

func TestLoadScenario_MissingName(t *testing.T) {
	path := writeScenario(t, `
policy: "global: {}"
steps:
  - release: {}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_NoSteps(t *testing.T) {
	path := writeScenario(t, `
name: empty
policy: "global: {}"
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func TestLoadScenario_AmbiguousStep(t *testing.T) {
	path := writeScenario(t, `
name: ambiguous
policy: "global: {}"
steps:
  - release: {}
    advance: {seconds: 10}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
}

func TestLoadScenario_EmptyAssertion(t *testing.T) {
	path := writeScenario(t, `
name: empty-assertion
policy: "global: {}"
steps:
  - release: {}
assertions:
  - {}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion 1")
}

func TestLoadScenarioDir_SortedByFileName(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []struct{ file, name string }{
		{"b.yaml", "second"},
		{"a.yaml", "first"},
	} {
		content := "name: " + f.name + "\npolicy: \"global: {}\"\nsteps:\n  - release: {}\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.file), []byte(content), 0o644))
	}

	scenarios, err := LoadScenarioDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}
