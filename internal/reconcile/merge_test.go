package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, title string, ts int64, sources ...Source) Record {
	r := Record{
		ID:        id,
		EventID:   id,
		Kind:      1301,
		AuthorKey: "alice",
		Title:     title,
		Timestamp: time.Unix(ts, 0).UTC(),
	}
	for _, s := range sources {
		r.Availability.Add(s)
	}
	return r
}

func TestMerge_ProvenanceUnion(t *testing.T) {
	local := []Record{rec("w1", "Leg Day", 100, SourceLocal)}
	remote := []Record{rec("w1", "Leg Day (edited remotely)", 100, SourceRemote)}

	merged := Merge(local, remote)
	require.Len(t, merged, 1)

	// Local fields win; sources union.
	assert.Equal(t, "Leg Day", merged[0].Title)
	assert.True(t, merged[0].Availability.Has(SourceLocal))
	assert.True(t, merged[0].Availability.Has(SourceRemote))
}

func TestMerge_SingleOriginPassthrough(t *testing.T) {
	local := []Record{rec("w1", "Local Only", 100, SourceLocal)}
	remote := []Record{rec("w2", "Remote Only", 200, SourceRemote)}

	merged := Merge(local, remote)
	require.Len(t, merged, 2)

	byID := map[string]Record{merged[0].ID: merged[0], merged[1].ID: merged[1]}
	assert.Equal(t, []Source{SourceLocal}, byID["w1"].Availability.Sources)
	assert.Equal(t, []Source{SourceRemote}, byID["w2"].Availability.Sources)
}

func TestMerge_SortsMostRecentFirst(t *testing.T) {
	local := []Record{
		rec("a", "Oldest", 100, SourceLocal),
		rec("b", "Newest", 300, SourceLocal),
	}
	remote := []Record{rec("c", "Middle", 200, SourceRemote)}

	merged := Merge(local, remote)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
}

func TestMerge_EmptySides(t *testing.T) {
	only := []Record{rec("w1", "Solo", 100, SourceLocal)}

	assert.Len(t, Merge(only, nil), 1)
	assert.Len(t, Merge(nil, only), 1)
	assert.Empty(t, Merge(nil, nil))
}

func TestMerge_DuplicateRemote(t *testing.T) {
	// The same logical record delivered twice by different relays.
	remote := []Record{
		rec("w1", "Session", 100, SourceRemote),
		rec("w1", "Session", 100, SourceRemote),
	}
	merged := Merge(nil, remote)
	require.Len(t, merged, 1)
	assert.Equal(t, []Source{SourceRemote}, merged[0].Availability.Sources)
}

func TestMerge_Golden(t *testing.T) {
	local := []Record{
		rec("w1", "Leg Day", 300, SourceLocal),
		rec("w2", "Push Day", 100, SourceLocal),
	}
	remote := []Record{
		rec("w1", "Leg Day (remote)", 300, SourceRemote),
		rec("w3", "Pull Day", 200, SourceRemote),
	}

	merged := Merge(local, remote)
	data, err := json.MarshalIndent(merged, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "merge_basic", data)
}

func TestSearch_CaseFolded(t *testing.T) {
	records := []Record{
		rec("w1", "Leg Day", 100, SourceLocal),
		rec("w2", "PUSH day", 200, SourceLocal),
		rec("w3", "Stretching", 300, SourceLocal),
	}

	got := Search(records, "day")
	require.Len(t, got, 2)

	got = Search(records, "PUSH")
	require.Len(t, got, 1)
	assert.Equal(t, "w2", got[0].ID)

	assert.Len(t, Search(records, ""), 3)
	assert.Empty(t, Search(records, "swimming"))
}

func TestSearch_MatchesContent(t *testing.T) {
	r := rec("w1", "Untitled", 100, SourceLocal)
	r.Content = "worked on Squat form"
	got := Search([]Record{r}, "squat")
	assert.Len(t, got, 1)
}

func TestInRange(t *testing.T) {
	records := []Record{
		rec("a", "A", 100, SourceLocal),
		rec("b", "B", 200, SourceLocal),
		rec("c", "C", 300, SourceLocal),
	}

	got := InRange(records, time.Unix(150, 0), time.Unix(250, 0))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	// Open bounds.
	assert.Len(t, InRange(records, time.Time{}, time.Unix(200, 0)), 2)
	assert.Len(t, InRange(records, time.Unix(200, 0), time.Time{}), 2)
	assert.Len(t, InRange(records, time.Time{}, time.Time{}), 3)
}
