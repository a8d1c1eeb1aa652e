package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openfit/liftsync/internal/event"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Put persists an event and its tag set atomically.
//
// Re-insertion with the same id is idempotent: the payload is upserted
// (last write wins) and received_at advances to the most recent insert time.
// With skipIfExists, an already-present id is a cheap no-op that leaves
// received_at and tags untouched.
//
// Tag writes are replace-all: existing tags for the id are deleted, then the
// new list is inserted in original order with an explicit sort index. The
// whole operation commits or none of it does.
func (s *Store) Put(ctx context.Context, ev *event.Event, skipIfExists bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put event %s: begin tx: %w", ev.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	if skipIfExists {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", ev.ID).Scan(&one)
		if err == nil {
			return tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("put event %s: existence check: %w", ev.ID, err)
		}
	}

	raw, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("put event %s: marshal: %w", ev.ID, err)
	}

	// received_at is stored in milliseconds so repeated inserts of the same
	// id observably advance it.
	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, author_key, kind, created_at, content, sig, raw_payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author_key = excluded.author_key,
			kind = excluded.kind,
			created_at = excluded.created_at,
			content = excluded.content,
			sig = excluded.sig,
			raw_payload = excluded.raw_payload,
			received_at = excluded.received_at
	`, ev.ID, ev.AuthorKey, ev.Kind, ev.CreatedAt, ev.Content, ev.Signature, string(raw), now)
	if err != nil {
		return fmt.Errorf("put event %s: insert: %w", ev.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tags WHERE event_id = ?", ev.ID); err != nil {
		return fmt.Errorf("put event %s: clear tags: %w", ev.ID, err)
	}
	for i, tag := range ev.Tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_tags (event_id, name, value, sort_index)
			VALUES (?, ?, ?, ?)
		`, ev.ID, tag.Name(), tag.Value(), i)
		if err != nil {
			return fmt.Errorf("put event %s: insert tag %d: %w", ev.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put event %s: commit: %w", ev.ID, err)
	}
	return nil
}

// Get loads an event by id, or ErrNotFound.
// The event is reconstructed from its raw payload so tag order and elements
// beyond (name, value) survive the round trip.
func (s *Store) Get(ctx context.Context, id string) (*event.Event, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT raw_payload FROM events WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}

	ev, err := event.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &ev, nil
}

// Has reports whether an event id is present.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM events WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has event %s: %w", id, err)
	}
	return true, nil
}

// ReceivedAt returns the bookkeeping insert time of an event.
func (s *Store) ReceivedAt(ctx context.Context, id string) (int64, error) {
	var at int64
	err := s.db.QueryRowContext(ctx, "SELECT received_at FROM events WHERE id = ?", id).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("received_at %s: %w", id, err)
	}
	return at, nil
}

// Tags returns the stored tag rows for an event in sort-index order.
func (s *Store) Tags(ctx context.Context, id string) ([]event.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM event_tags WHERE event_id = ? ORDER BY sort_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("tags %s: %w", id, err)
	}
	defer rows.Close()

	var tags []event.Tag
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("tags %s: scan: %w", id, err)
		}
		tags = append(tags, event.Tag{name, value})
	}
	return tags, rows.Err()
}

// ListByKind returns events of a kind within [since, until], newest first.
// A zero since/until leaves that bound open; limit <= 0 defaults to 100.
func (s *Store) ListByKind(ctx context.Context, kind int, since, until int64, limit int) ([]event.Event, error) {
	query := "SELECT raw_payload FROM events WHERE kind = ?"
	args := []any{kind}
	if since > 0 {
		query += " AND created_at >= ?"
		args = append(args, since)
	}
	if until > 0 {
		query += " AND created_at <= ?"
		args = append(args, until)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kind %d: %w", kind, err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list kind %d: scan: %w", kind, err)
		}
		ev, err := event.Unmarshal([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("list kind %d: %w", kind, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EventCount returns the total number of stored events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// DeleteEventsBefore removes events whose created_at is older than cutoff,
// with their tags and feed membership rows. Returns the number of events
// removed. This is the only deletion path for events (age-based eviction).
func (s *Store) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete events: begin tx: %w", err)
	}
	defer tx.Rollback()

	unix := cutoff.Unix()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM event_tags WHERE event_id IN (SELECT id FROM events WHERE created_at < ?)
	`, unix); err != nil {
		return 0, fmt.Errorf("delete events: tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM feed_membership WHERE event_id IN (SELECT id FROM events WHERE created_at < ?)
	`, unix); err != nil {
		return 0, fmt.Errorf("delete events: feed rows: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", unix)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete events: commit: %w", err)
	}
	return n, nil
}

// PutStatements builds the buffered-write form of Put (no skip check):
// event upsert, tag clear, tag inserts, in dependency order. The statements
// must be applied in order within one batch - the tag delete must not race
// ahead of the event insert it depends on.
func PutStatements(ev *event.Event, receivedAt time.Time) ([]Statement, error) {
	raw, err := ev.Marshal()
	if err != nil {
		return nil, fmt.Errorf("put statements %s: marshal: %w", ev.ID, err)
	}

	stmts := []Statement{
		{
			SQL: `
				INSERT INTO events (id, author_key, kind, created_at, content, sig, raw_payload, received_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					author_key = excluded.author_key,
					kind = excluded.kind,
					created_at = excluded.created_at,
					content = excluded.content,
					sig = excluded.sig,
					raw_payload = excluded.raw_payload,
					received_at = excluded.received_at
			`,
			Args: []any{ev.ID, ev.AuthorKey, ev.Kind, ev.CreatedAt, ev.Content, ev.Signature, string(raw), receivedAt.UnixMilli()},
		},
		{
			SQL:  "DELETE FROM event_tags WHERE event_id = ?",
			Args: []any{ev.ID},
		},
	}
	for i, tag := range ev.Tags {
		stmts = append(stmts, Statement{
			SQL:  "INSERT INTO event_tags (event_id, name, value, sort_index) VALUES (?, ?, ?, ?)",
			Args: []any{ev.ID, tag.Name(), tag.Value(), i},
		})
	}
	return stmts, nil
}
