package reconcile

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Merge unions a local-origin record set with a remote-origin view of the
// same logical records, keyed by logical id.
//
// Local is the source of truth for conflicting fields: a remote record with
// a known id never replaces the local record's fields, only its availability
// sources are unioned. Remote-only records pass through unchanged. The merge
// never drops a record that exists in only one origin and never loses a
// source tag.
//
// The result is sorted by primary timestamp, most recent first.
func Merge(local, remote []Record) []Record {
	merged := make([]Record, len(local))
	index := make(map[string]int, len(local))
	for i, r := range local {
		merged[i] = r
		index[r.ID] = i
	}

	for _, r := range remote {
		if i, ok := index[r.ID]; ok {
			merged[i].Availability.Union(r.Availability)
			continue
		}
		index[r.ID] = len(merged)
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].ID < merged[j].ID // deterministic tiebreak
	})
	return merged
}

// Search returns records whose title or content contains the query,
// case-folded. An empty query matches everything.
func Search(records []Record, query string) []Record {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return records
	}

	var out []Record
	for _, r := range records {
		if strings.Contains(fold.String(r.Title), q) || strings.Contains(fold.String(r.Content), q) {
			out = append(out, r)
		}
	}
	return out
}

// InRange returns records whose primary timestamp falls within
// [start, end]. A zero bound is open.
func InRange(records []Record, start, end time.Time) []Record {
	var out []Record
	for _, r := range records {
		if !start.IsZero() && r.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}
