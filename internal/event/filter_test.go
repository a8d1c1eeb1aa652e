package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Matches(t *testing.T) {
	ev := &Event{
		ID:        "e1",
		AuthorKey: "alice",
		Kind:      KindWorkoutRecord,
		CreatedAt: 100,
		Tags:      []Tag{{"t", "legs"}},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter matches all", Filter{}, true},
		{"kind match", Filter{Kinds: []int{KindWorkoutRecord}}, true},
		{"kind mismatch", Filter{Kinds: []int{KindNote}}, false},
		{"author match", Filter{Authors: []string{"alice"}}, true},
		{"author mismatch", Filter{Authors: []string{"bob"}}, false},
		{"id match", Filter{IDs: []string{"e1"}}, true},
		{"since inclusive", Filter{Since: 100}, true},
		{"since excludes older", Filter{Since: 101}, false},
		{"until excludes newer", Filter{Until: 99}, false},
		{"tag match", Filter{Tags: map[string][]string{"t": {"legs", "arms"}}}, true},
		{"tag mismatch", Filter{Tags: map[string][]string{"t": {"arms"}}}, false},
		{"tag absent", Filter{Tags: map[string][]string{"p": {"bob"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}
}

func TestFilter_JSONWireShape(t *testing.T) {
	f := Filter{
		Kinds:   []int{1301},
		Authors: []string{"alice"},
		Tags:    map[string][]string{"t": {"legs"}},
		Since:   50,
		Limit:   10,
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	// Tag criteria must serialize under "#<name>" keys.
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "#t")
	assert.Contains(t, m, "kinds")
	assert.NotContains(t, m, "until")

	var got Filter
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, f, got)
}
