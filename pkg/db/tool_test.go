package db

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestToolInstanceJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	instances := []*ToolInstance{
		{
			ID:        "a1",
			Title:     "Pack for the move",
			CreatedAt: created,
			Payload: &ChecklistPayload{Items: []ChecklistItem{
				{Text: "Get boxes"},
				{Text: "Label rooms"},
			}},
		},
		{
			ID:        "b2",
			Title:     "How are you feeling?",
			CreatedAt: created,
			Payload: &MoodTrackerPayload{
				Options: DefaultMoodOptions,
				Log:     []MoodEntry{{Mood: "calm", At: created}},
			},
		},
		{
			ID:        "c3",
			Title:     "Slow breathing",
			CreatedAt: created,
			Payload:   &BreathingPayload{Inhale: 4, Hold: 7, Exhale: 8},
		},
		{
			ID:        "d4",
			Title:     "You've got this",
			CreatedAt: created,
			Payload: &AffirmationPayload{
				Affirmations: []string{"You are enough.", "One step at a time."},
				ButtonLabel:  "I needed that",
			},
		},
	}

	for _, in := range instances {
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("Marshal(%s) error = %v", in.Kind(), err)
		}
		if !strings.Contains(string(data), `"kind":"`+string(in.Kind())+`"`) {
			t.Fatalf("Marshal(%s) missing kind tag: %s", in.Kind(), data)
		}

		var out ToolInstance
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", in.Kind(), err)
		}
		if out.ID != in.ID || out.Title != in.Title {
			t.Fatalf("round trip changed identity: got %+v, want %+v", out, in)
		}
		if out.Kind() != in.Kind() {
			t.Fatalf("round trip changed kind: got %q, want %q", out.Kind(), in.Kind())
		}
	}
}

func TestToolInstancePayloadSurvivesRoundTrip(t *testing.T) {
	in := &ToolInstance{
		ID:    "x",
		Title: "Slow breathing",
		Payload: &BreathingPayload{
			Inhale: 3, Hold: 5, Exhale: 6,
		},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out ToolInstance
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	b, ok := out.Payload.(*BreathingPayload)
	if !ok {
		t.Fatalf("payload type = %T, want *BreathingPayload", out.Payload)
	}
	if b.Inhale != 3 || b.Hold != 5 || b.Exhale != 6 {
		t.Fatalf("payload = %+v, want 3/5/6", b)
	}
}

func TestToolInstanceUnknownKindRejected(t *testing.T) {
	data := []byte(`{"id":"x","kind":"juggling","title":"nope","payload":{}}`)
	var out ToolInstance
	if err := json.Unmarshal(data, &out); err == nil {
		t.Fatalf("Unmarshal() error = nil, want unknown kind error")
	}
}

func TestToolInstanceMarshalWithoutPayloadFails(t *testing.T) {
	in := &ToolInstance{ID: "x", Title: "empty"}
	if _, err := json.Marshal(in); err == nil {
		t.Fatalf("Marshal() error = nil, want missing payload error")
	}
}

func TestToolKindValid(t *testing.T) {
	for _, k := range []ToolKind{ToolKindChecklist, ToolKindMoodTracker, ToolKindBreathingExercise, ToolKindAffirmationCard} {
		if !k.Valid() {
			t.Fatalf("%q.Valid() = false, want true", k)
		}
	}
	if ToolKind("juggling").Valid() {
		t.Fatalf(`ToolKind("juggling").Valid() = true, want false`)
	}
}
