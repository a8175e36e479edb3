package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/utils"
)

// ToolRegistry turns a tool request into a fully populated instance, one
// generation call per tool. A synthesis failure yields no instance at all;
// half-built tools never reach the conversation.
type ToolRegistry struct {
	generator Generator
	logger    *slog.Logger
}

func NewToolRegistry(generator Generator) *ToolRegistry {
	return &ToolRegistry{generator: generator, logger: utils.GetLogger()}
}

// planningWords mark a checklist topic as a concrete project rather than a
// wellbeing routine, which shifts the item phrasing toward milestones.
var planningWords = []string{
	"project", "plan", "launch", "deadline", "milestone", "business",
	"startup", "app", "website", "product", "exam", "thesis", "essay",
	"interview", "portfolio", "campaign", "move", "moving", "wedding",
	"trip", "event", "renovat", "organize", "organise",
}

func isProjectTopic(topic string) bool {
	lower := strings.ToLower(topic)
	for _, w := range planningWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Synthesize builds a new tool instance of the given kind. Theme steers the
// content and may be empty; searchContext carries fresh facts worth folding in.
func (r *ToolRegistry) Synthesize(ctx context.Context, kind db.ToolKind, theme, searchContext string) (*db.ToolInstance, error) {
	theme = strings.TrimSpace(theme)
	var (
		title   string
		payload db.ToolPayload
		err     error
	)
	switch kind {
	case db.ToolKindChecklist:
		title, payload, err = r.synthesizeChecklist(ctx, theme, searchContext)
	case db.ToolKindMoodTracker:
		title, payload, err = r.synthesizeMoodTracker(ctx, theme)
	case db.ToolKindBreathingExercise:
		title, payload, err = r.synthesizeBreathing(ctx, theme)
	case db.ToolKindAffirmationCard:
		title, payload, err = r.synthesizeAffirmation(ctx, theme, searchContext)
	default:
		return nil, fmt.Errorf("unknown tool kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return &db.ToolInstance{
		ID:        db.NewToolInstanceID(),
		Title:     title,
		CreatedAt: time.Now(),
		Payload:   payload,
	}, nil
}

func (r *ToolRegistry) synthesizeChecklist(ctx context.Context, theme, searchContext string) (string, db.ToolPayload, error) {
	var sb strings.Builder
	sb.WriteString("You are building a small checklist for a wellbeing companion app.\n")
	if theme == "" {
		sb.WriteString("Topic: gentle steps to feel a little better today.\n")
	} else {
		fmt.Fprintf(&sb, "Topic: %s\n", theme)
	}
	if isProjectTopic(theme) {
		sb.WriteString("This is a concrete plan, so phrase items as small milestones that move the plan forward.\n")
	} else {
		sb.WriteString("Phrase items as small, kind actions; no pressure, no jargon.\n")
	}
	if searchContext != "" {
		fmt.Fprintf(&sb, "Useful background:\n%s\n", searchContext)
	}
	sb.WriteString("\nWrite a short encouraging title and 3 to 5 short actionable items, each a single sentence.\n")
	sb.WriteString(`Output JSON object only: {"title": "...", "items": ["...", "..."]}`)

	var out struct {
		Title string   `json:"title"`
		Items []string `json:"items"`
	}
	if err := r.generator.GenerateStructured(ctx, sb.String(), &out); err != nil {
		return "", nil, fmt.Errorf("synthesize checklist: %w", err)
	}
	items := make([]db.ChecklistItem, 0, len(out.Items))
	for _, item := range out.Items {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, db.ChecklistItem{Text: item})
		}
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("synthesize checklist: %w: no items", ErrSchemaMismatch)
	}
	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = "A few small steps"
	}
	return title, &db.ChecklistPayload{Items: items}, nil
}

func (r *ToolRegistry) synthesizeMoodTracker(ctx context.Context, theme string) (string, db.ToolPayload, error) {
	var sb strings.Builder
	sb.WriteString("You are titling a mood tracker card for a wellbeing companion app.\n")
	if theme != "" {
		fmt.Fprintf(&sb, "The user is dealing with: %s\n", theme)
	}
	sb.WriteString("Write one short, warm title inviting the user to log how they feel.\n")
	sb.WriteString(`Output JSON object only: {"title": "..."}`)

	var out struct {
		Title string `json:"title"`
	}
	if err := r.generator.GenerateStructured(ctx, sb.String(), &out); err != nil {
		return "", nil, fmt.Errorf("synthesize mood tracker: %w", err)
	}
	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = "How are you feeling?"
	}
	options := make([]string, len(db.DefaultMoodOptions))
	copy(options, db.DefaultMoodOptions)
	return title, &db.MoodTrackerPayload{Options: options, Log: []db.MoodEntry{}}, nil
}

func (r *ToolRegistry) synthesizeBreathing(ctx context.Context, theme string) (string, db.ToolPayload, error) {
	var sb strings.Builder
	sb.WriteString("You are configuring a guided breathing exercise for a wellbeing companion app.\n")
	if theme == "" {
		sb.WriteString("Default to the 4-7-8 pattern unless there is a reason not to.\n")
	} else {
		fmt.Fprintf(&sb, "The user needs it for: %s. The 4-7-8 pattern is a good starting point.\n", theme)
	}
	sb.WriteString("Write a short calming title and the phase lengths in whole seconds, each between 1 and 60.\n")
	sb.WriteString(`Output JSON object only: {"title": "...", "inhale": 4, "hold": 7, "exhale": 8}`)

	var out struct {
		Title  string `json:"title"`
		Inhale int    `json:"inhale"`
		Hold   int    `json:"hold"`
		Exhale int    `json:"exhale"`
	}
	if err := r.generator.GenerateStructured(ctx, sb.String(), &out); err != nil {
		return "", nil, fmt.Errorf("synthesize breathing exercise: %w", err)
	}
	for _, secs := range []int{out.Inhale, out.Hold, out.Exhale} {
		if secs < 1 || secs > 60 {
			return "", nil, fmt.Errorf("synthesize breathing exercise: %w: phase length %d out of range", ErrSchemaMismatch, secs)
		}
	}
	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = "Slow breathing"
	}
	return title, &db.BreathingPayload{Inhale: out.Inhale, Hold: out.Hold, Exhale: out.Exhale}, nil
}

func (r *ToolRegistry) synthesizeAffirmation(ctx context.Context, theme, searchContext string) (string, db.ToolPayload, error) {
	var sb strings.Builder
	sb.WriteString("You are writing an affirmation card for a wellbeing companion app.\n")
	if theme == "" {
		sb.WriteString("Theme: steady self-kindness.\n")
	} else {
		fmt.Fprintf(&sb, "Theme: %s\n", theme)
	}
	if searchContext != "" {
		fmt.Fprintf(&sb, "Useful background:\n%s\n", searchContext)
	}
	sb.WriteString("\nWrite a short title and 2 to 4 first-person affirmations, each one sentence, grounded and never saccharine.\n")
	sb.WriteString(`Output JSON object only: {"title": "...", "affirmations": ["...", "..."]}`)

	var out struct {
		Title        string   `json:"title"`
		Affirmations []string `json:"affirmations"`
	}
	if err := r.generator.GenerateStructured(ctx, sb.String(), &out); err != nil {
		return "", nil, fmt.Errorf("synthesize affirmation card: %w", err)
	}
	affirmations := make([]string, 0, len(out.Affirmations))
	for _, a := range out.Affirmations {
		if a = strings.TrimSpace(a); a != "" {
			affirmations = append(affirmations, a)
		}
	}
	if len(affirmations) == 0 {
		return "", nil, fmt.Errorf("synthesize affirmation card: %w: no affirmations", ErrSchemaMismatch)
	}
	title := strings.TrimSpace(out.Title)
	if title == "" {
		title = "A little encouragement"
	}
	return title, &db.AffirmationPayload{Affirmations: affirmations, ButtonLabel: "I needed that"}, nil
}

// GenerateMoreChecklistItems asks for one or two fresh items for an existing
// checklist, excluding what is already open and what was recently completed.
func (r *ToolRegistry) GenerateMoreChecklistItems(ctx context.Context, instance *db.ToolInstance, completedTasks []string) ([]string, error) {
	payload, ok := instance.Payload.(*db.ChecklistPayload)
	if !ok {
		return nil, fmt.Errorf("not a checklist: %q", instance.Kind())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are extending the checklist %q in a wellbeing companion app.\n", instance.Title)
	if len(payload.Items) > 0 {
		sb.WriteString("Already on the list:\n")
		for _, item := range payload.Items {
			fmt.Fprintf(&sb, "- %s\n", item.Text)
		}
	}
	if len(completedTasks) > 0 {
		sb.WriteString("Recently completed, do not repeat:\n")
		for _, task := range completedTasks {
			fmt.Fprintf(&sb, "- %s\n", task)
		}
	}
	sb.WriteString("\nSuggest 1 to 2 new items in the same spirit, each a single short sentence, none overlapping the lists above.\n")
	sb.WriteString(`Output JSON object only: {"items": ["..."]}`)

	var out struct {
		Items []string `json:"items"`
	}
	if err := r.generator.GenerateStructured(ctx, sb.String(), &out); err != nil {
		return nil, fmt.Errorf("generate checklist items: %w", err)
	}
	items := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("generate checklist items: %w: no items", ErrSchemaMismatch)
	}
	if len(items) > 2 {
		items = items[:2]
	}
	return items, nil
}
