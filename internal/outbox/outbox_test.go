package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfit/liftsync/internal/event"
	"github.com/openfit/liftsync/internal/store"
)

// fakePublisher fails publishes for ids in failing until cleared.
type fakePublisher struct {
	mu        sync.Mutex
	failing   map[string]error
	published []string
}

func (p *fakePublisher) Publish(ctx context.Context, ev *event.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failing[ev.ID]; ok {
		return "", err
	}
	p.published = append(p.published, ev.ID)
	return ev.ID, nil
}

func (p *fakePublisher) publishedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func newTestQueue(t *testing.T, pub *fakePublisher) (*Queue, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	// High rate so tests don't wait on the limiter.
	q := New(st, pub, Config{RatePerSec: 10000})
	return q, st
}

func queuedEvent(id string) *event.Event {
	return &event.Event{
		ID:        id,
		AuthorKey: "alice",
		Kind:      event.KindWorkoutRecord,
		CreatedAt: 100,
		Signature: "sig",
		Tags:      []event.Tag{{"title", "Session"}},
	}
}

func TestProcess_PublishesAndRemoves(t *testing.T) {
	pub := &fakePublisher{}
	q, st := newTestQueue(t, pub)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedEvent("e1")))

	stats, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 1, Published: 1}, stats)
	assert.Equal(t, []string{"e1"}, pub.publishedIDs())

	// Removed from the queue, persisted to the event store, stamped.
	_, err = st.Publication(ctx, "e1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, "e1")
	require.NoError(t, err)
	at, err := st.PublishedAt(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, at.IsZero())
}

func TestProcess_AttemptRecordedBeforePublish(t *testing.T) {
	pub := &fakePublisher{failing: map[string]error{"e1": errors.New("relay down")}}
	q, st := newTestQueue(t, pub)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedEvent("e1")))

	stats, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 1, Failed: 1}, stats)

	// Attempt counted even though the publish failed; item stays queued.
	it, err := st.Publication(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Attempts)
}

func TestProcess_OneFailureDoesNotAbortBatch(t *testing.T) {
	pub := &fakePublisher{failing: map[string]error{"e1": errors.New("relay down")}}
	q, st := newTestQueue(t, pub)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedEvent("e1")))
	require.NoError(t, q.Enqueue(ctx, queuedEvent("e2")))
	require.NoError(t, q.Enqueue(ctx, queuedEvent("e3")))

	stats, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 3, Published: 2, Failed: 1}, stats)
	assert.Equal(t, []string{"e2", "e3"}, pub.publishedIDs())

	it, err := st.Publication(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Attempts)
}

func TestProcess_DeadLetterAfterFiveFailures(t *testing.T) {
	pub := &fakePublisher{failing: map[string]error{"e1": errors.New("relay down")}}
	q, st := newTestQueue(t, pub)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedEvent("e1")))

	for i := 0; i < 5; i++ {
		stats, err := q.Process(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed)
	}

	// attempts == 5: retained in storage, absent from pending processing.
	it, err := st.Publication(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 5, it.Attempts)

	stats, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)

	n, err := q.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcess_RecoversAfterTransientFailures(t *testing.T) {
	pub := &fakePublisher{failing: map[string]error{"e1": errors.New("relay down")}}
	q, st := newTestQueue(t, pub)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, queuedEvent("e1")))

	_, err := q.Process(ctx)
	require.NoError(t, err)
	_, err = q.Process(ctx)
	require.NoError(t, err)

	// Relay comes back before the cutoff.
	pub.mu.Lock()
	delete(pub.failing, "e1")
	pub.mu.Unlock()

	stats, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)

	_, err = st.Publication(ctx, "e1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_UnparseablePayloadDeadLetters(t *testing.T) {
	pub := &fakePublisher{}
	q, st := newTestQueue(t, pub)
	ctx := context.Background()

	require.NoError(t, st.EnqueuePublication(ctx, "bad", "{not json"))

	stats, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Attempted: 1, Failed: 1}, stats)

	it, err := st.Publication(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, 1, it.Attempts, "attempt must be counted so the item eventually dead-letters")
	assert.Empty(t, pub.publishedIDs())
}
