package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootListsSubcommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"validate", "ingest", "set-version", "configure", "stop", "release", "pending"} {
		assert.Contains(t, out, sub)
	}
}

func TestCommandsRequireConfig(t *testing.T) {
	_, err := execute(t, "pending")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidRunNumberRejected(t *testing.T) {
	fx := newTestFixture(t)
	for _, run := range []string{"abc", "0", "99999999999999"} {
		_, err := execute(t, "--config", fx.ConfigPath, "ingest", run)
		require.Error(t, err, "run %q", run)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	}
}
