package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStatusAndClear(t *testing.T) {
	_, dir := newTestDB(t)

	// Drop a file straight into the cache dir; the cache rebuilds its
	// index from disk.
	cacheDir := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "abc123"), []byte("imgdata"), 0o644))

	out, err := runCommand(t, "cache", "status", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "entries:     1")
	assert.Contains(t, out, "total bytes: 7")

	// The file is brand new, so a 30-day clear removes nothing.
	out, err = runCommand(t, "cache", "clear", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 asset(s)")
}
