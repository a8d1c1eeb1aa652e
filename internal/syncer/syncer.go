// Package syncer is the engine facade: it wires the durable store, the
// write-coalescing buffer, the transaction serializer, the duplicate
// filter, the publication queue, and the relay client into the operations
// the application calls.
//
// Reads always serve from local storage first. The network, when reachable,
// only ever adds: remote events are ingested through the same pipeline as
// subscription traffic and merged into the local view without overwriting
// local fields.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openfit/liftsync/internal/dedup"
	"github.com/openfit/liftsync/internal/event"
	"github.com/openfit/liftsync/internal/netmon"
	"github.com/openfit/liftsync/internal/outbox"
	"github.com/openfit/liftsync/internal/reconcile"
	"github.com/openfit/liftsync/internal/relay"
	"github.com/openfit/liftsync/internal/store"
	"github.com/openfit/liftsync/internal/txserial"
	"github.com/openfit/liftsync/internal/writebuf"
)

// MaxContentSize bounds event content accepted for ingest or save.
const MaxContentSize = 64 << 10

// FeedWorkouts and FeedTemplates are the built-in feed categories.
const (
	FeedWorkouts  = "workouts"
	FeedTemplates = "templates"
	FeedNotes     = "notes"
)

// Options configures an Engine. Store is required; Relay and Monitor are
// optional (a nil Relay means offline-only operation).
type Options struct {
	Store     *store.Store
	Relay     relay.Client
	Monitor   *netmon.Monitor
	AuthorKey string

	Buffer        writebuf.Config
	Outbox        outbox.Config
	DedupCapacity int
	FetchLimit    int // max events pulled per remote fetch (default 500)
}

// Engine coordinates local-first reads and buffered, serialized writes.
type Engine struct {
	st    *store.Store
	relay relay.Client
	mon   *netmon.Monitor

	ser  *txserial.Serializer
	buf  *writebuf.Buffer
	seen *dedup.Filter
	out  *outbox.Queue

	authorKey   string
	maxAttempts int
	fetchLimit  int
}

// serialSink funnels buffered batches through the transaction serializer so
// no two batches ever run concurrently against the single-writer store.
type serialSink struct {
	st  *store.Store
	ser *txserial.Serializer
}

func (s *serialSink) ExecBatch(ctx context.Context, stmts []store.Statement) (int, error) {
	var skipped int
	err := s.ser.Do(ctx, "flush write batch", func() error {
		var execErr error
		skipped, execErr = s.st.ExecBatch(ctx, stmts)
		return execErr
	})
	return skipped, err
}

// New wires an engine from its parts.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("syncer: store is required")
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 500
	}

	e := &Engine{
		st:         opts.Store,
		relay:      opts.Relay,
		mon:        opts.Monitor,
		ser:        txserial.New(),
		seen:       dedup.New(opts.DedupCapacity),
		authorKey:  opts.AuthorKey,
		fetchLimit: opts.FetchLimit,
	}
	e.buf = writebuf.New(&serialSink{st: opts.Store, ser: e.ser}, opts.Buffer)

	if opts.Outbox.MaxAttempts <= 0 {
		opts.Outbox.MaxAttempts = outbox.DefaultMaxAttempts
	}
	e.maxAttempts = opts.Outbox.MaxAttempts
	if opts.Relay != nil {
		e.out = outbox.New(opts.Store, opts.Relay, opts.Outbox)
	}

	return e, nil
}

// Close drains the write buffer and stops the serializer. The store itself
// belongs to the caller.
func (e *Engine) Close() error {
	err := e.buf.Close()
	e.ser.Close()
	return err
}

// Online reports whether remote operations should be attempted.
func (e *Engine) Online() bool {
	if e.relay == nil {
		return false
	}
	if e.mon == nil {
		return true
	}
	return e.mon.Online()
}

// HandleEvent ingests one event from a subscription or fetch. Returns true
// when the event was accepted into the write pipeline, false when the
// duplicate filter already knew an equal-or-newer version.
//
// The write is buffered: durability follows within the buffer's debounce
// window, not before HandleEvent returns.
func (e *Engine) HandleEvent(ctx context.Context, ev *event.Event) (bool, error) {
	if ev.ID == "" {
		return false, &SyncError{Code: CodeMalformedRecord, Op: "handle event", Err: fmt.Errorf("missing event id")}
	}
	if len(ev.Content) > MaxContentSize {
		return false, &SyncError{Code: CodeCapacityExceeded, Op: "handle event",
			Err: fmt.Errorf("content %d bytes exceeds %d", len(ev.Content), MaxContentSize)}
	}
	if e.seen.ShouldSkip(ev.ID, ev.CreatedAt) {
		return false, nil
	}

	stmts, err := store.PutStatements(ev, time.Now())
	if err != nil {
		return false, classify("handle event", err)
	}
	for _, st := range stmts {
		e.buf.Write(st)
	}
	e.buf.Write(store.FeedMembershipStatement(ev.ID, feedCategory(ev.Kind), ev.CreatedAt, time.Now()))

	e.seen.Record(ev.ID, ev.CreatedAt)
	return true, nil
}

// Flush forces buffered writes to disk. Reads that must observe a just-
// ingested event call this first.
func (e *Engine) Flush(ctx context.Context) error {
	return classify("flush", e.buf.Flush(ctx))
}

// SaveWorkout persists a locally created workout and returns its event.
// The write is durable when SaveWorkout returns (local saves do not ride
// the debounce buffer).
func (e *Engine) SaveWorkout(ctx context.Context, w *event.Workout) (*event.Event, error) {
	if w.Title == "" {
		return nil, &SyncError{Code: CodeMalformedRecord, Op: "save workout", Err: fmt.Errorf("missing title")}
	}

	ev := workoutEvent(w)
	if ev.AuthorKey == "" {
		ev.AuthorKey = e.authorKey
	}
	if len(ev.Content) > MaxContentSize {
		return nil, &SyncError{Code: CodeCapacityExceeded, Op: "save workout",
			Err: fmt.Errorf("content %d bytes exceeds %d", len(ev.Content), MaxContentSize)}
	}

	err := e.ser.Do(ctx, "save workout", func() error {
		if err := e.st.Put(ctx, ev, false); err != nil {
			return err
		}
		return e.st.UpsertFeedMembership(ctx, ev.ID, FeedWorkouts, ev.CreatedAt)
	})
	if err != nil {
		return nil, classify("save workout", err)
	}
	e.seen.Record(ev.ID, ev.CreatedAt)
	return ev, nil
}

// workoutEvent builds the kind-1301 event for a workout. A missing event id
// gets a locally generated one; relays assign the canonical id at publish.
func workoutEvent(w *event.Workout) *event.Event {
	ev := &event.Event{
		ID:        w.EventID,
		AuthorKey: w.AuthorKey,
		Kind:      event.KindWorkoutRecord,
		CreatedAt: w.CreatedAt.Unix(),
		Tags:      []event.Tag{{"title", w.Title}},
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().Unix()
	}
	if !w.Start.IsZero() {
		ev.Tags = append(ev.Tags, event.Tag{"start", strconv.FormatInt(w.Start.Unix(), 10)})
	}
	if !w.End.IsZero() {
		ev.Tags = append(ev.Tags, event.Tag{"end", strconv.FormatInt(w.End.Unix(), 10)})
	}
	ev.Tags = append(ev.Tags, event.Tag{"completed", strconv.FormatBool(w.Completed)})
	for _, s := range w.Sets {
		ev.Tags = append(ev.Tags, event.Tag{
			"exercise",
			s.ExerciseRef,
			strconv.FormatFloat(s.WeightKg, 'f', -1, 64),
			strconv.Itoa(s.Reps),
			strconv.FormatFloat(s.RPE, 'f', -1, 64),
			s.SetType,
		})
	}
	return ev
}

// RunIngest subscribes to the relays and feeds every delivered event through
// the ingest pipeline until ctx ends or the subscription closes. Buffered
// writes survive subscription teardown; they flush on their own schedule.
func (e *Engine) RunIngest(ctx context.Context, f event.Filter) error {
	if e.relay == nil {
		return &SyncError{Code: CodeNetworkFetch, Op: "ingest", Err: fmt.Errorf("no relay configured")}
	}
	ch, cancel, err := e.relay.Subscribe(ctx, f)
	if err != nil {
		return &SyncError{Code: CodeNetworkFetch, Op: "ingest", Err: err}
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := e.HandleEvent(ctx, ev); err != nil {
				slog.Warn("skipping event from subscription", "event_id", ev.ID, "error", err)
			}
		}
	}
}

// GetAllRecords returns the merged local+remote workout view, most recent
// first. Offline (or on a relay failure) it degrades to the local view.
func (e *Engine) GetAllRecords(ctx context.Context) ([]reconcile.Record, error) {
	if err := e.Flush(ctx); err != nil {
		return nil, err
	}

	evs, err := e.st.ListByKind(ctx, event.KindWorkoutRecord, 0, 0, e.fetchLimit)
	if err != nil {
		return nil, classify("get records", err)
	}
	local := make([]reconcile.Record, 0, len(evs))
	for i := range evs {
		local = append(local, reconcile.FromEvent(&evs[i], reconcile.SourceLocal))
	}

	if !e.Online() {
		return reconcile.Merge(local, nil), nil
	}

	remote, err := e.fetchRemote(ctx)
	if err != nil {
		slog.Warn("remote fetch failed, serving local records", "error", err)
		return reconcile.Merge(local, nil), nil
	}
	return reconcile.Merge(local, remote), nil
}

// fetchRemote pulls workout records from the relays and feeds them through
// the ingest pipeline so the local store converges.
func (e *Engine) fetchRemote(ctx context.Context) ([]reconcile.Record, error) {
	f := event.Filter{
		Kinds: []int{event.KindWorkoutRecord},
		Limit: e.fetchLimit,
	}
	if e.authorKey != "" {
		f.Authors = []string{e.authorKey}
	}

	evs, err := e.relay.Fetch(ctx, f)
	if err != nil {
		return nil, &SyncError{Code: CodeNetworkFetch, Op: "fetch records", Err: err}
	}

	records := make([]reconcile.Record, 0, len(evs))
	for _, ev := range evs {
		if _, err := e.HandleEvent(ctx, ev); err != nil {
			slog.Warn("skipping malformed remote event", "event_id", ev.ID, "error", err)
			continue
		}
		records = append(records, reconcile.FromEvent(ev, reconcile.SourceRemote))
	}
	return records, nil
}

// SearchRecords filters the merged view by a case-folded substring match on
// title and content.
func (e *Engine) SearchRecords(ctx context.Context, query string) ([]reconcile.Record, error) {
	records, err := e.GetAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.Search(records, query), nil
}

// GetRecordsByDateRange filters the merged view to [start, end]; zero
// bounds are open.
func (e *Engine) GetRecordsByDateRange(ctx context.Context, start, end time.Time) ([]reconcile.Record, error) {
	records, err := e.GetAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.InRange(records, start, end), nil
}

// Status describes where a record stands in the sync lifecycle.
type Status struct {
	EventID         string    `json:"event_id"`
	IsLocal         bool      `json:"is_local"`
	IsPublished     bool      `json:"is_published"`
	LastPublished   time.Time `json:"last_published,omitempty"`
	PendingAttempts int       `json:"pending_attempts"`
	DeadLettered    bool      `json:"dead_lettered"`
}

// GetSyncStatus reports the sync lifecycle state of one event.
func (e *Engine) GetSyncStatus(ctx context.Context, eventID string) (*Status, error) {
	if err := e.Flush(ctx); err != nil {
		return nil, err
	}

	st := &Status{EventID: eventID}

	local, err := e.st.Has(ctx, eventID)
	if err != nil {
		return nil, classify("sync status", err)
	}
	st.IsLocal = local

	at, err := e.st.PublishedAt(ctx, eventID)
	if err != nil {
		return nil, classify("sync status", err)
	}
	if !at.IsZero() {
		st.IsPublished = true
		st.LastPublished = at
	}

	item, err := e.st.Publication(ctx, eventID)
	switch {
	case err == nil:
		st.PendingAttempts = item.Attempts
		st.DeadLettered = item.Attempts >= e.maxAttempts
	case errors.Is(err, store.ErrNotFound):
		// not queued: nothing to report
	default:
		return nil, classify("sync status", err)
	}

	return st, nil
}

// PublishRecord queues a stored event for relay publication and, when the
// network is reachable, drains the queue immediately.
func (e *Engine) PublishRecord(ctx context.Context, eventID string) error {
	if err := e.Flush(ctx); err != nil {
		return err
	}
	ev, err := e.st.Get(ctx, eventID)
	if err != nil {
		return classify("publish record", err)
	}
	if e.out == nil {
		return &SyncError{Code: CodeNetworkFetch, Op: "publish record", Err: fmt.Errorf("no relay configured")}
	}
	if err := e.out.Enqueue(ctx, ev); err != nil {
		return classify("publish record", err)
	}
	if !e.Online() {
		return nil // queued; the next online Process run delivers it
	}
	if _, err := e.out.Process(ctx); err != nil {
		return classify("publish record", err)
	}
	return nil
}

// ProcessOutbox drains the publication queue once. A no-op when offline.
func (e *Engine) ProcessOutbox(ctx context.Context) (outbox.Stats, error) {
	if e.out == nil || !e.Online() {
		return outbox.Stats{}, nil
	}
	stats, err := e.out.Process(ctx)
	return stats, classify("process outbox", err)
}

// ImportRemoteRecord fetches one event by id from the relays, ingests it,
// and returns its record view.
func (e *Engine) ImportRemoteRecord(ctx context.Context, eventID string) (*reconcile.Record, error) {
	if !e.Online() {
		return nil, &SyncError{Code: CodeNetworkFetch, Op: "import record", Err: fmt.Errorf("offline")}
	}

	evs, err := e.relay.Fetch(ctx, event.Filter{IDs: []string{eventID}, Limit: 1})
	if err != nil {
		return nil, &SyncError{Code: CodeNetworkFetch, Op: "import record", Err: err}
	}
	if len(evs) == 0 {
		return nil, &SyncError{Code: CodeNetworkFetch, Op: "import record",
			Err: fmt.Errorf("event %s not found on relays", eventID)}
	}

	ev := evs[0]
	if _, err := e.HandleEvent(ctx, ev); err != nil {
		return nil, err
	}
	if err := e.Flush(ctx); err != nil {
		return nil, err
	}

	rec := reconcile.FromEvent(ev, reconcile.SourceRemote)
	rec.Availability.Add(reconcile.SourceLocal)
	return &rec, nil
}

// Stats is a point-in-time snapshot of engine health.
type Stats struct {
	Online              bool   `json:"online"`
	BufferedWrites      int    `json:"buffered_writes"`
	DroppedWrites       uint64 `json:"dropped_writes"`
	PendingPublications int    `json:"pending_publications"`
}

// GetStats snapshots buffer depth, drop count, and queue depth.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		Online:         e.Online(),
		BufferedWrites: e.buf.Len(),
		DroppedWrites:  e.buf.Dropped(),
	}
	if e.out != nil {
		n, err := e.out.PendingCount(ctx)
		if err != nil {
			return nil, classify("stats", err)
		}
		s.PendingPublications = n
	}
	return s, nil
}

// feedCategory maps an event kind to its feed bucket.
func feedCategory(kind int) string {
	switch kind {
	case event.KindWorkoutRecord:
		return FeedWorkouts
	case event.KindExerciseTemplate, event.KindWorkoutTemplate:
		return FeedTemplates
	default:
		return FeedNotes
	}
}
