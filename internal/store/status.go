package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Well-known app_status keys.
const (
	StatusKeyOnline = "online"

	// statusKeyPublishedPrefix marks confirmed publishes: the value is the
	// RFC3339 time the relay accepted the event.
	statusKeyPublishedPrefix = "published:"
)

// SetStatus upserts an app status key.
func (s *Store) SetStatus(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_status (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set status %s: %w", key, err)
	}
	return nil
}

// GetStatus reads an app status key, or ErrNotFound.
func (s *Store) GetStatus(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM app_status WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get status %s: %w", key, err)
	}
	return value, nil
}

// MarkPublished records the confirmed publish time for an event.
func (s *Store) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	return s.SetStatus(ctx, statusKeyPublishedPrefix+eventID, at.UTC().Format(time.RFC3339))
}

// PublishedAt returns the confirmed publish time for an event, or zero time
// if it was never confirmed.
func (s *Store) PublishedAt(ctx context.Context, eventID string) (time.Time, error) {
	v, err := s.GetStatus(ctx, statusKeyPublishedPrefix+eventID)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("published at %s: %w", eventID, err)
	}
	return t, nil
}
