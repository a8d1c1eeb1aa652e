package event

import (
	"encoding/json"
	"fmt"
)

// Filter selects events by kind, author, id, tag value, and time window.
// The zero Filter matches every event.
//
// On the wire, tag criteria are keyed as "#<name>" per the relay protocol;
// MarshalJSON produces that shape.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   int64 // unix seconds, 0 means unbounded
	Until   int64 // unix seconds, 0 means unbounded
	Limit   int
}

// MarshalJSON renders the filter in relay wire form.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses the relay wire form.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("unmarshal filter: %w", err)
	}
	*f = Filter{}
	for k, v := range m {
		var err error
		switch {
		case k == "ids":
			err = json.Unmarshal(v, &f.IDs)
		case k == "authors":
			err = json.Unmarshal(v, &f.Authors)
		case k == "kinds":
			err = json.Unmarshal(v, &f.Kinds)
		case k == "since":
			err = json.Unmarshal(v, &f.Since)
		case k == "until":
			err = json.Unmarshal(v, &f.Until)
		case k == "limit":
			err = json.Unmarshal(v, &f.Limit)
		case len(k) > 1 && k[0] == '#':
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			var values []string
			if err = json.Unmarshal(v, &values); err == nil {
				f.Tags[k[1:]] = values
			}
		}
		if err != nil {
			return fmt.Errorf("unmarshal filter key %q: %w", k, err)
		}
	}
	return nil
}

// Matches reports whether the event satisfies every criterion of the filter.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, e.AuthorKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && e.CreatedAt > f.Until {
		return false
	}
	for name, values := range f.Tags {
		matched := false
		for _, have := range e.TagValues(name) {
			if contains(values, have) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}
