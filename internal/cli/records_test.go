package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfit/liftsync/internal/reconcile"
)

func TestRecordsList(t *testing.T) {
	db, dir := newTestDB(t)

	out, err := runCommand(t, "records", "list", "--db", db, "--data-dir", dir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []reconcile.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Push Day", resp.Data[0].Title, "most recent first")
}

func TestRecordsList_Limit(t *testing.T) {
	db, dir := newTestDB(t)

	out, err := runCommand(t, "records", "list", "--db", db, "--data-dir", dir, "--format", "json", "-n", "1")
	require.NoError(t, err)

	var resp struct {
		Data []reconcile.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestRecordsSearch(t *testing.T) {
	db, dir := newTestDB(t)

	out, err := runCommand(t, "records", "search", "leg", "--db", db, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Leg Day")
	assert.NotContains(t, out, "Push Day")

	out, err = runCommand(t, "records", "search", "swimming", "--db", db, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "no records")
}
