package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfit/liftsync/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id string) *event.Event {
	return &event.Event{
		ID:        id,
		AuthorKey: "alice",
		Kind:      event.KindWorkoutRecord,
		CreatedAt: 100,
		Content:   "session",
		Signature: "sig",
		Tags: []event.Tag{
			{"title", "Leg Day"},
			{"t", "legs"},
			{"t", "gym"},
		},
	}
}

func TestPut_IdempotentUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ev := testEvent("e1")

	require.NoError(t, s.Put(ctx, ev, false))
	require.NoError(t, s.Put(ctx, ev, false))

	// Exactly one row.
	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM events WHERE id = 'e1'").Scan(&count))
	assert.Equal(t, 1, count)

	// Same tag set as a single put.
	tags, err := s.Tags(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []event.Tag{{"title", "Leg Day"}, {"t", "legs"}, {"t", "gym"}}, tags)
}

func TestPut_ReceivedAtAdvances(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ev := testEvent("e1")

	require.NoError(t, s.Put(ctx, ev, false))
	first, err := s.ReceivedAt(ctx, "e1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Put(ctx, ev, false))
	second, err := s.ReceivedAt(ctx, "e1")
	require.NoError(t, err)

	assert.Greater(t, second, first)
}

func TestPut_SkipIfExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ev := testEvent("e1")

	require.NoError(t, s.Put(ctx, ev, false))
	before, err := s.ReceivedAt(ctx, "e1")
	require.NoError(t, err)
	tagsBefore, err := s.Tags(ctx, "e1")
	require.NoError(t, err)

	// Mutated re-put with skipIfExists must not alter anything.
	time.Sleep(5 * time.Millisecond)
	mutated := testEvent("e1")
	mutated.Content = "changed"
	mutated.Tags = []event.Tag{{"title", "Other"}}
	require.NoError(t, s.Put(ctx, mutated, true))

	after, err := s.ReceivedAt(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	tagsAfter, err := s.Tags(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, tagsBefore, tagsAfter)

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "session", got.Content)
}

func TestPut_TagReplaceAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := testEvent("e1")
	require.NoError(t, s.Put(ctx, ev, false))

	ev.Tags = []event.Tag{{"title", "Renamed"}}
	require.NoError(t, s.Put(ctx, ev, false))

	tags, err := s.Tags(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []event.Tag{{"title", "Renamed"}}, tags)
}

func TestGet_RoundTripPreservesTagOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ev := testEvent("e1")

	require.NoError(t, s.Put(ctx, ev, false))
	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, created := range []int64{100, 300, 200} {
		ev := testEvent(string(rune('a' + i)))
		ev.CreatedAt = created
		require.NoError(t, s.Put(ctx, ev, false))
	}
	note := testEvent("n")
	note.Kind = event.KindNote
	require.NoError(t, s.Put(ctx, note, false))

	got, err := s.ListByKind(ctx, event.KindWorkoutRecord, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(300), got[0].CreatedAt) // newest first
	assert.Equal(t, int64(200), got[1].CreatedAt)

	got, err = s.ListByKind(ctx, event.KindWorkoutRecord, 150, 250, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(200), got[0].CreatedAt)

	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDeleteEventsBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := testEvent("old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour).Unix()
	recent := testEvent("recent")
	recent.CreatedAt = time.Now().Unix()
	require.NoError(t, s.Put(ctx, old, false))
	require.NoError(t, s.Put(ctx, recent, false))
	require.NoError(t, s.UpsertFeedMembership(ctx, "old", "global", old.CreatedAt))

	n, err := s.DeleteEventsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	tags, err := s.Tags(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, tags)
	_, err = s.FeedMembership(ctx, "old", "global")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "recent")
	require.NoError(t, err)
}

func TestExecBatch_SkipsFailedStatements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := testEvent("e1")
	stmts, err := PutStatements(ev, time.Now())
	require.NoError(t, err)

	// A malformed statement in the middle must not block the rest.
	bad := Statement{SQL: "INSERT INTO nonexistent VALUES (1)"}
	batch := append([]Statement{bad}, stmts...)

	skipped, err := s.ExecBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestPutStatements_OrderMatchesPut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := testEvent("e1")
	stmts, err := PutStatements(ev, time.Now())
	require.NoError(t, err)

	skipped, err := s.ExecBatch(ctx, stmts)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	tags, err := s.Tags(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []event.Tag{{"title", "Leg Day"}, {"t", "legs"}, {"t", "gym"}}, tags)
}
