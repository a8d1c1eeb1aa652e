package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeedEntry is one cached membership row: which feed category an event
// belongs to and when it was cached there.
type FeedEntry struct {
	EventID      string
	FeedCategory string
	CreatedAt    int64
	CachedAt     int64
}

// UpsertFeedMembership records that an event belongs to a feed category.
// Re-inserting the same (event, category) pair refreshes cached_at only.
func (s *Store) UpsertFeedMembership(ctx context.Context, eventID, category string, createdAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_membership (event_id, feed_category, created_at, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id, feed_category) DO UPDATE SET cached_at = excluded.cached_at
	`, eventID, category, createdAt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert feed membership %s/%s: %w", eventID, category, err)
	}
	return nil
}

// FeedMembershipStatement builds the buffered-write form of
// UpsertFeedMembership for inclusion in a coalesced batch.
func FeedMembershipStatement(eventID, category string, createdAt int64, cachedAt time.Time) Statement {
	return Statement{
		SQL: `
			INSERT INTO feed_membership (event_id, feed_category, created_at, cached_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(event_id, feed_category) DO UPDATE SET cached_at = excluded.cached_at
		`,
		Args: []any{eventID, category, createdAt, cachedAt.Unix()},
	}
}

// ListFeed returns membership rows for a category, newest events first.
func (s *Store) ListFeed(ctx context.Context, category string, limit int) ([]FeedEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, feed_category, created_at, cached_at
		FROM feed_membership
		WHERE feed_category = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed %s: %w", category, err)
	}
	defer rows.Close()

	var out []FeedEntry
	for rows.Next() {
		var e FeedEntry
		if err := rows.Scan(&e.EventID, &e.FeedCategory, &e.CreatedAt, &e.CachedAt); err != nil {
			return nil, fmt.Errorf("list feed %s: scan: %w", category, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FeedMembership loads a single membership row, or ErrNotFound.
func (s *Store) FeedMembership(ctx context.Context, eventID, category string) (*FeedEntry, error) {
	var e FeedEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, feed_category, created_at, cached_at
		FROM feed_membership
		WHERE event_id = ? AND feed_category = ?
	`, eventID, category).Scan(&e.EventID, &e.FeedCategory, &e.CreatedAt, &e.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("feed membership %s/%s: %w", eventID, category, err)
	}
	return &e, nil
}
