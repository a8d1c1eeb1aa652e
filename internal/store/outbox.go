package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PublicationItem is one locally authored event awaiting network publish.
//
// Attempts only ever increases. An item leaves the table on confirmed
// publish; once attempts reaches the dead-letter cutoff it stays in storage
// for inspection but is excluded from PendingPublications.
type PublicationItem struct {
	EventID     string
	Attempts    int
	CreatedAt   int64
	LastAttempt int64 // unix seconds, 0 if never attempted
	Payload     string
}

// EnqueuePublication adds an event to the outbound queue.
// Re-enqueueing an already queued id is a no-op (the original attempt
// history is preserved).
func (s *Store) EnqueuePublication(ctx context.Context, eventID, payload string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publication_queue (event_id, attempts, created_at, payload)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, time.Now().Unix(), payload)
	if err != nil {
		return fmt.Errorf("enqueue publication %s: %w", eventID, err)
	}
	return nil
}

// PendingPublications returns queue items still eligible for retry:
// attempts below maxAttempts, ordered least-tried then oldest first.
func (s *Store) PendingPublications(ctx context.Context, limit, maxAttempts int) ([]PublicationItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, attempts, created_at, COALESCE(last_attempt, 0), payload
		FROM publication_queue
		WHERE attempts < ?
		ORDER BY attempts ASC, created_at ASC
		LIMIT ?
	`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("pending publications: %w", err)
	}
	defer rows.Close()

	var out []PublicationItem
	for rows.Next() {
		var it PublicationItem
		if err := rows.Scan(&it.EventID, &it.Attempts, &it.CreatedAt, &it.LastAttempt, &it.Payload); err != nil {
			return nil, fmt.Errorf("pending publications: scan: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// IncrementPublicationAttempt bumps the attempt counter and stamps
// last_attempt. Called before the network publish so a crash mid-publish
// still leaves a record of the attempt.
func (s *Store) IncrementPublicationAttempt(ctx context.Context, eventID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE publication_queue SET attempts = attempts + 1, last_attempt = ?
		WHERE event_id = ?
	`, time.Now().Unix(), eventID)
	if err != nil {
		return fmt.Errorf("increment attempt %s: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemovePublication deletes a queue item after a confirmed publish.
func (s *Store) RemovePublication(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM publication_queue WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("remove publication %s: %w", eventID, err)
	}
	return nil
}

// PublicationCount returns the number of items still eligible for retry.
func (s *Store) PublicationCount(ctx context.Context, maxAttempts int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM publication_queue WHERE attempts < ?", maxAttempts,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("publication count: %w", err)
	}
	return n, nil
}

// DeadLetteredPublications returns items that exhausted their attempts.
// They are retained for inspection and never retried automatically.
func (s *Store) DeadLetteredPublications(ctx context.Context, limit, maxAttempts int) ([]PublicationItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, attempts, created_at, COALESCE(last_attempt, 0), payload
		FROM publication_queue
		WHERE attempts >= ?
		ORDER BY created_at ASC
		LIMIT ?
	`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("dead-lettered publications: %w", err)
	}
	defer rows.Close()

	var out []PublicationItem
	for rows.Next() {
		var it PublicationItem
		if err := rows.Scan(&it.EventID, &it.Attempts, &it.CreatedAt, &it.LastAttempt, &it.Payload); err != nil {
			return nil, fmt.Errorf("dead-lettered publications: scan: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Publication loads a single queue item regardless of attempt count,
// or ErrNotFound.
func (s *Store) Publication(ctx context.Context, eventID string) (*PublicationItem, error) {
	var it PublicationItem
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, attempts, created_at, COALESCE(last_attempt, 0), payload
		FROM publication_queue WHERE event_id = ?
	`, eventID).Scan(&it.EventID, &it.Attempts, &it.CreatedAt, &it.LastAttempt, &it.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("publication %s: %w", eventID, err)
	}
	return &it, nil
}
