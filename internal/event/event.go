package event

import (
	"encoding/json"
	"fmt"
)

// Kind values for the record types the engine understands.
// Kinds in the 30000-39999 range are addressable: the newest event with the
// same (author, kind, identifier) triple supersedes older ones.
const (
	KindNote             = 1
	KindWorkoutRecord    = 1301
	KindExerciseTemplate = 33401
	KindWorkoutTemplate  = 33402
)

// Tag is an ordered list of strings. The first element is the tag name,
// the second (when present) is the primary value.
type Tag []string

// Name returns the tag name, or "" for an empty tag.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the tag's primary value, or "" if the tag has no value.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Event is an immutable signed record exchanged with relays.
//
// Events are identified by a content-derived ID and are never mutated after
// creation. The engine persists every event it sees; domain parsing is
// layered on top and never blocks raw storage.
type Event struct {
	ID        string `json:"id"`
	AuthorKey string `json:"pubkey"`
	Kind      int    `json:"kind"`
	CreatedAt int64  `json:"created_at"` // unix seconds
	Content   string `json:"content"`
	Signature string `json:"sig"`
	Tags      []Tag  `json:"tags"`
}

// TagValue returns the primary value of the first tag with the given name,
// and whether such a tag exists.
func (e *Event) TagValue(name string) (string, bool) {
	for _, t := range e.Tags {
		if t.Name() == name {
			return t.Value(), true
		}
	}
	return "", false
}

// TagValues returns the primary values of every tag with the given name,
// in tag order.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if t.Name() == name {
			out = append(out, t.Value())
		}
	}
	return out
}

// Identifier returns the "d" tag value used by addressable events.
func (e *Event) Identifier() string {
	v, _ := e.TagValue("d")
	return v
}

// Addressable reports whether the event is identified by its
// (author, kind, identifier) triple rather than by content hash.
func (e *Event) Addressable() bool {
	return e.Kind >= 30000 && e.Kind < 40000
}

// IdentityKey returns the logical identity of the event: the addressable
// triple for addressable kinds, the content ID otherwise. Two events with
// the same identity key describe the same logical record.
func (e *Event) IdentityKey() string {
	if e.Addressable() {
		return fmt.Sprintf("%d:%s:%s", e.Kind, e.AuthorKey, e.Identifier())
	}
	return e.ID
}

// Marshal serializes the event to its JSON wire form.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses an event from its JSON wire form.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}
