package event

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ParseError indicates an event could not be converted to a domain record.
//
// Raw storage and domain parsing are decoupled: an event that fails to parse
// is still durably stored, it is only excluded from typed views.
type ParseError struct {
	EventID string
	Kind    int
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse event %s (kind %d): %s", e.EventID, e.Kind, e.Reason)
}

// IsParseError reports whether err is a ParseError, unwrapping as needed.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ExerciseSet is a single set within a workout record.
type ExerciseSet struct {
	ExerciseRef string  // address of the exercise template
	WeightKg    float64 // 0 for bodyweight
	Reps        int
	RPE         float64 // 0 when not recorded
	SetType     string  // "normal", "warmup", "drop", "failure"
}

// Workout is the typed view of a kind-1301 workout record event.
type Workout struct {
	EventID   string
	AuthorKey string
	Title     string
	Start     time.Time
	End       time.Time
	Completed bool
	Sets      []ExerciseSet
	CreatedAt time.Time
}

// ParseWorkout converts a workout record event into its typed form.
// Returns a ParseError for wrong kinds or missing required tags.
func ParseWorkout(e *Event) (*Workout, error) {
	if e.Kind != KindWorkoutRecord {
		return nil, &ParseError{EventID: e.ID, Kind: e.Kind, Reason: "not a workout record"}
	}

	title, ok := e.TagValue("title")
	if !ok || title == "" {
		return nil, &ParseError{EventID: e.ID, Kind: e.Kind, Reason: "missing title tag"}
	}

	w := &Workout{
		EventID:   e.ID,
		AuthorKey: e.AuthorKey,
		Title:     title,
		CreatedAt: time.Unix(e.CreatedAt, 0).UTC(),
	}

	if v, ok := e.TagValue("start"); ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ParseError{EventID: e.ID, Kind: e.Kind, Reason: "bad start tag: " + v}
		}
		w.Start = time.Unix(sec, 0).UTC()
	}
	if v, ok := e.TagValue("end"); ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ParseError{EventID: e.ID, Kind: e.Kind, Reason: "bad end tag: " + v}
		}
		w.End = time.Unix(sec, 0).UTC()
	}
	if v, ok := e.TagValue("completed"); ok {
		w.Completed = v == "true"
	}

	for _, t := range e.Tags {
		if t.Name() != "exercise" {
			continue
		}
		set, err := parseExerciseTag(t)
		if err != nil {
			return nil, &ParseError{EventID: e.ID, Kind: e.Kind, Reason: err.Error()}
		}
		w.Sets = append(w.Sets, set)
	}

	return w, nil
}

// parseExerciseTag decodes an exercise tag of the form
// ["exercise", <ref>, <weight>, <reps>, <rpe>, <set type>].
// Trailing elements are optional.
func parseExerciseTag(t Tag) (ExerciseSet, error) {
	if t.Value() == "" {
		return ExerciseSet{}, fmt.Errorf("exercise tag missing reference")
	}
	set := ExerciseSet{ExerciseRef: t.Value(), SetType: "normal"}

	if len(t) > 2 && t[2] != "" {
		w, err := strconv.ParseFloat(t[2], 64)
		if err != nil {
			return ExerciseSet{}, fmt.Errorf("exercise tag bad weight %q", t[2])
		}
		set.WeightKg = w
	}
	if len(t) > 3 && t[3] != "" {
		reps, err := strconv.Atoi(t[3])
		if err != nil {
			return ExerciseSet{}, fmt.Errorf("exercise tag bad reps %q", t[3])
		}
		set.Reps = reps
	}
	if len(t) > 4 && t[4] != "" {
		rpe, err := strconv.ParseFloat(t[4], 64)
		if err != nil {
			return ExerciseSet{}, fmt.Errorf("exercise tag bad rpe %q", t[4])
		}
		set.RPE = rpe
	}
	if len(t) > 5 && t[5] != "" {
		set.SetType = t[5]
	}
	return set, nil
}
