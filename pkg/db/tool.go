// Tool instances materialized for the user: checklists, mood trackers,
// breathing exercises and affirmation cards.
package db

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolKind enumerates the closed set of tool kinds.
type ToolKind string

const (
	ToolKindChecklist         ToolKind = "checklist"
	ToolKindMoodTracker       ToolKind = "mood_tracker"
	ToolKindBreathingExercise ToolKind = "breathing_exercise"
	ToolKindAffirmationCard   ToolKind = "affirmation_card"
)

// Valid reports whether k is one of the known kinds.
func (k ToolKind) Valid() bool {
	switch k {
	case ToolKindChecklist, ToolKindMoodTracker, ToolKindBreathingExercise, ToolKindAffirmationCard:
		return true
	}
	return false
}

// MoodLogLimit bounds the mood log per tracker; the oldest entry is evicted
// first.
const MoodLogLimit = 10

// DefaultMoodOptions is the fixed option set offered by every mood tracker.
var DefaultMoodOptions = []string{"calm", "happy", "anxious", "sad", "angry"}

// ToolPayload is the closed union of per-kind tool state. Exactly one
// concrete payload type exists per ToolKind; consumption sites type-switch
// over all four variants and treat anything else as an error.
type ToolPayload interface {
	Kind() ToolKind
	isToolPayload()
}

// ChecklistPayload holds the open items of a checklist. Completing an item
// removes it; an instance whose last item is completed is removed entirely
// from its kind's array.
type ChecklistPayload struct {
	Items []ChecklistItem `json:"items"`
}

// ChecklistItem is one open checklist entry.
type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

func (*ChecklistPayload) Kind() ToolKind { return ToolKindChecklist }
func (*ChecklistPayload) isToolPayload() {}

// MoodTrackerPayload holds the selectable moods and a bounded log of picks.
type MoodTrackerPayload struct {
	Options []string    `json:"options"`
	Log     []MoodEntry `json:"log"`
}

// MoodEntry is one logged mood.
type MoodEntry struct {
	Mood string    `json:"mood"`
	At   time.Time `json:"at"`
}

func (*MoodTrackerPayload) Kind() ToolKind { return ToolKindMoodTracker }
func (*MoodTrackerPayload) isToolPayload() {}

// BreathingPayload is a fixed breathing cycle in seconds, immutable after
// creation.
type BreathingPayload struct {
	Inhale int `json:"inhale"`
	Hold   int `json:"hold"`
	Exhale int `json:"exhale"`
}

func (*BreathingPayload) Kind() ToolKind { return ToolKindBreathingExercise }
func (*BreathingPayload) isToolPayload() {}

// AffirmationPayload holds short affirming sentences and the label of the
// accept button. The pressed state lives in the UI only and is not persisted.
type AffirmationPayload struct {
	Affirmations []string `json:"affirmations"`
	ButtonLabel  string   `json:"buttonLabel"`
}

func (*AffirmationPayload) Kind() ToolKind { return ToolKindAffirmationCard }
func (*AffirmationPayload) isToolPayload() {}

// ToolInstance is one materialized tool shown to the user.
type ToolInstance struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Payload   ToolPayload
}

// Kind returns the payload kind, or the empty kind for a bare instance.
func (t *ToolInstance) Kind() ToolKind {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.Kind()
}

// Clone returns a deep copy of the instance.
func (t *ToolInstance) Clone() *ToolInstance {
	if t == nil {
		return nil
	}
	out := &ToolInstance{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt}
	switch p := t.Payload.(type) {
	case *ChecklistPayload:
		cp := &ChecklistPayload{Items: make([]ChecklistItem, len(p.Items))}
		copy(cp.Items, p.Items)
		out.Payload = cp
	case *MoodTrackerPayload:
		out.Payload = &MoodTrackerPayload{
			Options: append([]string(nil), p.Options...),
			Log:     append([]MoodEntry(nil), p.Log...),
		}
	case *BreathingPayload:
		cp := *p
		out.Payload = &cp
	case *AffirmationPayload:
		out.Payload = &AffirmationPayload{
			Affirmations: append([]string(nil), p.Affirmations...),
			ButtonLabel:  p.ButtonLabel,
		}
	}
	return out
}

// ToolSet maps each kind to its ordered instances, oldest first. New
// instances append; the slice for a kind is never replaced wholesale.
type ToolSet map[ToolKind][]*ToolInstance

// Clone returns a deep copy of the set.
func (s ToolSet) Clone() ToolSet {
	if s == nil {
		return nil
	}
	out := make(ToolSet, len(s))
	for kind, instances := range s {
		copied := make([]*ToolInstance, len(instances))
		for i, inst := range instances {
			copied[i] = inst.Clone()
		}
		out[kind] = copied
	}
	return out
}

// toolInstanceJSON is the persisted form of ToolInstance, tagged by kind.
type toolInstanceJSON struct {
	ID        string          `json:"id"`
	Kind      ToolKind        `json:"kind"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the instance with its kind tag.
func (t *ToolInstance) MarshalJSON() ([]byte, error) {
	if t.Payload == nil {
		return nil, fmt.Errorf("tool instance %s has no payload", t.ID)
	}
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toolInstanceJSON{
		ID:        t.ID,
		Kind:      t.Payload.Kind(),
		Title:     t.Title,
		CreatedAt: t.CreatedAt,
		Payload:   payload,
	})
}

// UnmarshalJSON decodes the kind tag first, then the matching payload
// variant. An unknown kind is an error, not a silently skipped entry.
func (t *ToolInstance) UnmarshalJSON(data []byte) error {
	var raw toolInstanceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var payload ToolPayload
	switch raw.Kind {
	case ToolKindChecklist:
		payload = &ChecklistPayload{}
	case ToolKindMoodTracker:
		payload = &MoodTrackerPayload{}
	case ToolKindBreathingExercise:
		payload = &BreathingPayload{}
	case ToolKindAffirmationCard:
		payload = &AffirmationPayload{}
	default:
		return fmt.Errorf("unknown tool kind %q", raw.Kind)
	}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return err
		}
	}
	t.ID = raw.ID
	t.Title = raw.Title
	t.CreatedAt = raw.CreatedAt
	t.Payload = payload
	return nil
}
