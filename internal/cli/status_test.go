package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Text(t *testing.T) {
	db, dir := newTestDB(t)

	out, err := runCommand(t, "status", "--db", db, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "events:          2")
	assert.Contains(t, out, "pending queue:   1")
}

func TestStatus_JSON(t *testing.T) {
	db, dir := newTestDB(t)

	out, err := runCommand(t, "status", "--db", db, "--data-dir", dir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   StatusResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Events)
	assert.Equal(t, 1, resp.Data.PendingPublications)
	assert.Zero(t, resp.Data.DeadLettered)
}
