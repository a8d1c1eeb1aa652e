// Package reconcile merges local-origin and remote-origin views of the same
// logical record set.
package reconcile

import (
	"time"

	"github.com/openfit/liftsync/internal/event"
)

// Source identifies an origin a record is known from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Availability tracks which origins a logical record is known from.
// The source set is additive: once a record is known from both origins it
// contains both and is never reduced.
type Availability struct {
	Sources []Source `json:"sources"`
}

// Has reports whether the source is present.
func (a Availability) Has(s Source) bool {
	for _, have := range a.Sources {
		if have == s {
			return true
		}
	}
	return false
}

// Add inserts a source if absent, preserving insertion order.
func (a *Availability) Add(s Source) {
	if !a.Has(s) {
		a.Sources = append(a.Sources, s)
	}
}

// Union adds every source of other.
func (a *Availability) Union(other Availability) {
	for _, s := range other.Sources {
		a.Add(s)
	}
}

// Record is the application-level view of a synced record (e.g. a workout).
//
// ID is the logical identity: the content-hash event id, or the resolved
// addressable (author, kind, identifier) triple. Two records with equal IDs
// are the same logical record regardless of origin.
type Record struct {
	ID           string       `json:"id"`
	EventID      string       `json:"event_id"`
	Kind         int          `json:"kind"`
	AuthorKey    string       `json:"author_key"`
	Title        string       `json:"title"`
	Content      string       `json:"content,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	Availability Availability `json:"availability"`
}

// FromEvent builds a record from a raw event, tagged with its origin.
// The title falls back to the title tag when present.
func FromEvent(ev *event.Event, src Source) Record {
	title, _ := ev.TagValue("title")
	r := Record{
		ID:        ev.IdentityKey(),
		EventID:   ev.ID,
		Kind:      ev.Kind,
		AuthorKey: ev.AuthorKey,
		Title:     title,
		Content:   ev.Content,
		Timestamp: time.Unix(ev.CreatedAt, 0).UTC(),
	}
	r.Availability.Add(src)
	return r
}

// FromWorkout builds a record from a parsed workout, tagged with its origin.
func FromWorkout(w *event.Workout, src Source) Record {
	ts := w.Start
	if ts.IsZero() {
		ts = w.CreatedAt
	}
	r := Record{
		ID:        w.EventID,
		EventID:   w.EventID,
		Kind:      event.KindWorkoutRecord,
		AuthorKey: w.AuthorKey,
		Title:     w.Title,
		Timestamp: ts,
	}
	r.Availability.Add(src)
	return r
}
