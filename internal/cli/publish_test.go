package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_QueuesStoredEvent(t *testing.T) {
	db, dir := newTestDB(t)

	out, err := runCommand(t, "publish", "b", "--db", db, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "queued b for publication (2 pending)")

	// Re-publishing is a no-op that keeps the attempt history.
	out, err = runCommand(t, "publish", "b", "--db", db, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "(2 pending)")
}

func TestPublish_UnknownEvent(t *testing.T) {
	db, dir := newTestDB(t)

	_, err := runCommand(t, "publish", "zzz", "--db", db, "--data-dir", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
