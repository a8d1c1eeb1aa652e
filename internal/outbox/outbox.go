// Package outbox drives at-least-once delivery of locally authored events
// to the relay network.
//
// Items wait in the store's publication_queue table. Processing is
// sequential, least-tried-oldest-first, paced by a rate limiter so a large
// backlog does not burst into relay rate limits. The attempt counter is
// bumped before the network publish: a crash mid-publish leaves a record of
// the attempt instead of an infinite free retry. An item leaves the queue
// only on confirmed publish; at maxAttempts it is soft dead-lettered
// (retained in storage, skipped by processing).
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/openfit/liftsync/internal/event"
	"github.com/openfit/liftsync/internal/store"
)

// DefaultMaxAttempts is the dead-letter cutoff.
const DefaultMaxAttempts = 5

// Publisher sends one event to the network and returns the id the relay
// confirmed. Implemented by the relay client.
type Publisher interface {
	Publish(ctx context.Context, ev *event.Event) (string, error)
}

// Config tunes queue processing. Zero fields take defaults.
type Config struct {
	MaxAttempts int     // dead-letter cutoff (default 5)
	BatchLimit  int     // items per Process call (default 50)
	RatePerSec  float64 // publish pacing (default 5/s)
}

func (c *Config) withDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
}

// Stats summarizes one Process run.
type Stats struct {
	Attempted int
	Published int
	Failed    int
}

// Queue is the outbound publication queue.
type Queue struct {
	store   *store.Store
	pub     Publisher
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Queue over the store's publication table.
func New(st *store.Store, pub Publisher, cfg Config) *Queue {
	cfg.withDefaults()
	return &Queue{
		store:   st,
		pub:     pub,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

// Enqueue queues an event for publication. The payload is the event's wire
// form so the queue survives restarts without re-deriving it.
func (q *Queue) Enqueue(ctx context.Context, ev *event.Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", ev.ID, err)
	}
	return q.store.EnqueuePublication(ctx, ev.ID, string(payload))
}

// PendingCount returns the number of items still eligible for retry.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.store.PublicationCount(ctx, q.cfg.MaxAttempts)
}

// Process publishes pending items sequentially. A failure of one item is
// logged and never aborts the rest of the batch; the item stays queued for
// the next cycle.
func (q *Queue) Process(ctx context.Context) (Stats, error) {
	var stats Stats

	items, err := q.store.PendingPublications(ctx, q.cfg.BatchLimit, q.cfg.MaxAttempts)
	if err != nil {
		return stats, fmt.Errorf("process queue: %w", err)
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Attempted++
		if err := q.publishOne(ctx, &items[i]); err != nil {
			stats.Failed++
			slog.Warn("publish failed, item stays queued",
				"event_id", items[i].EventID, "attempts", items[i].Attempts+1, "error", err)
			continue
		}
		stats.Published++
	}

	return stats, nil
}

func (q *Queue) publishOne(ctx context.Context, item *store.PublicationItem) error {
	ev, err := event.Unmarshal([]byte(item.Payload))
	if err != nil {
		// Unparseable payload: count the attempt so the item eventually
		// dead-letters instead of failing forever.
		_ = q.store.IncrementPublicationAttempt(ctx, item.EventID)
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}

	// Attempt is recorded before the publish.
	if err := q.store.IncrementPublicationAttempt(ctx, item.EventID); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	if _, err := q.pub.Publish(ctx, &ev); err != nil {
		return err
	}

	// Confirmed: persist the event locally, stamp the publish time, and only
	// then release the queue slot.
	if err := q.store.Put(ctx, &ev, true); err != nil {
		return fmt.Errorf("store published event: %w", err)
	}
	if err := q.store.MarkPublished(ctx, ev.ID, time.Now()); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	if err := q.store.RemovePublication(ctx, ev.ID); err != nil {
		return fmt.Errorf("remove queue item: %w", err)
	}

	slog.Debug("published event", "event_id", ev.ID, "kind", ev.Kind)
	return nil
}
