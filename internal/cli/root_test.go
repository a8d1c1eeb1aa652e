package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfit/liftsync/internal/event"
	"github.com/openfit/liftsync/internal/store"
)

// newTestDB creates a database seeded with workout events and returns its
// path together with the data dir.
func newTestDB(t *testing.T) (dbPath, dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	dbPath = filepath.Join(dataDir, "liftsync.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	for i, title := range []string{"Leg Day", "Push Day"} {
		ev := &event.Event{
			ID:        string(rune('a' + i)),
			AuthorKey: "alice",
			Kind:      event.KindWorkoutRecord,
			CreatedAt: int64(100 * (i + 1)),
			Signature: "sig",
			Tags:      []event.Tag{{"title", title}},
		}
		require.NoError(t, st.Put(ctx, ev, false))
	}
	require.NoError(t, st.EnqueuePublication(ctx, "a", `{"id":"a"}`))
	return dbPath, dataDir
}

// runCommand executes the CLI with args and returns captured stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "liftsync", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"status", "publish", "records", "queue", "prune", "cache"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := runCommand(t, "status", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMissingDatabaseIsCommandError(t *testing.T) {
	_, err := runCommand(t, "status", "--db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
