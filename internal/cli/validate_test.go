package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidPolicy(t *testing.T) {
	fx := newTestFixture(t)

	out, err := execute(t, "validate", fx.PolicyDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Policy valid")
}

func TestValidateValidPolicyJSON(t *testing.T) {
	fx := newTestFixture(t)

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "json", "validate", fx.PolicyDir})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, float64(2), data["streams"])
	assert.Equal(t, float64(2), data["datasets"])
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, "validate", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "POLICY_DIR_NOT_FOUND")
}

func TestValidateBrokenPolicy(t *testing.T) {
	dir := t.TempDir()
	broken := `package offline

global: {
	acquisitionEra: "Run2023A"
	bulkDataType:   "data"
	processingSite: "T0_CH_CERN"
	defaultScramArch: "el8_amd64_gcc11"
}
streams: {
	PhysicsA: { style: "Sideways" }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "offline.cue"), []byte(broken), 0o644))

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "POLICY_BAD_VALUE")
}
