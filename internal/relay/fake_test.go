package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfit/liftsync/internal/event"
)

func seedEvent(id string, kind int, createdAt int64) *event.Event {
	return &event.Event{
		ID:        id,
		AuthorKey: "alice",
		Kind:      kind,
		CreatedAt: createdAt,
		Signature: "sig",
	}
}

func TestFake_FetchFiltersByKind(t *testing.T) {
	f := NewFake()
	f.Seed(
		seedEvent("e1", event.KindWorkoutRecord, 100),
		seedEvent("e2", event.KindNote, 200),
		seedEvent("e3", event.KindWorkoutRecord, 300),
	)

	got, err := f.Fetch(context.Background(), event.Filter{Kinds: []int{event.KindWorkoutRecord}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)
}

func TestFake_FetchHonorsLimitAndErr(t *testing.T) {
	f := NewFake()
	f.Seed(seedEvent("e1", 1, 100), seedEvent("e2", 1, 200))

	got, err := f.Fetch(context.Background(), event.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	f.FetchErr = errors.New("relay unreachable")
	_, err = f.Fetch(context.Background(), event.Filter{})
	assert.Error(t, err)
}

func TestFake_SubscribeDeliversSeeded(t *testing.T) {
	f := NewFake()
	f.Seed(seedEvent("e1", event.KindWorkoutRecord, 100))

	ch, cancel, err := f.Subscribe(context.Background(), event.Filter{Kinds: []int{event.KindWorkoutRecord}})
	require.NoError(t, err)
	defer cancel()

	ev := <-ch
	assert.Equal(t, "e1", ev.ID)

	cancel()
	_, open := <-ch
	assert.False(t, open, "channel closed after cancel")
}

func TestFake_PublishRoundTrips(t *testing.T) {
	f := NewFake()
	ev := seedEvent("e1", event.KindWorkoutRecord, 100)

	id, err := f.Publish(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "e1", id)
	require.Len(t, f.Published(), 1)

	// A published event is fetchable, like a real relay echo.
	got, err := f.Fetch(context.Background(), event.Filter{IDs: []string{"e1"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
