package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/solace-ai/solace/pkg/db"
)

func TestDecideDistressAlwaysBreathing(t *testing.T) {
	// The generator is rigged to misroute; the keyword guard must win
	// without ever calling it.
	gen := &fakeGenerator{replies: []string{"MOOD_TRACKER"}}
	router := NewAgentRouter(gen, true)

	utterances := []string{
		"I can't breathe, I'm panicking",
		"PANIC is setting in",
		"i feel like i'm hyperventilating again",
	}
	for _, utterance := range utterances {
		directives := router.Decide(context.Background(), utterance, nil)
		if len(directives) != 1 || directives[0].Kind != DirectiveCreateBreathing {
			t.Errorf("Decide(%q) = %+v, want single breathing directive", utterance, directives)
		}
	}
	if gen.promptCount() != 0 {
		t.Errorf("generator called %d times for distress messages, want 0", gen.promptCount())
	}
}

func TestDecideParsesCompoundDirectives(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"CHECKLIST: moving house | MOOD_TRACKER"}}
	router := NewAgentRouter(gen, true)

	directives := router.Decide(context.Background(), "I'm moving and it's a lot", nil)
	if len(directives) != 2 {
		t.Fatalf("Decide() = %+v, want 2 directives", directives)
	}
	if directives[0].Kind != DirectiveCreateChecklist || directives[0].Arg != "moving house" {
		t.Errorf("first directive = %+v", directives[0])
	}
	if directives[1].Kind != DirectiveCreateMoodTracker {
		t.Errorf("second directive = %+v", directives[1])
	}
}

func TestDecideToleratesNoise(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  DirectiveKind
		arg   string
	}{
		{"lowercase with bullet", "- checklist: plan the wedding", DirectiveCreateChecklist, "plan the wedding"},
		{"numbered", "4. CHECKLIST: study schedule", DirectiveCreateChecklist, "study schedule"},
		{"quoted", `"MORE_ITEMS"`, DirectiveMoreChecklistItems, ""},
		{"trailing punctuation", "CHAT.", DirectiveChat, ""},
		{"spaced form", "ADD ITEM: water the plants", DirectiveAddChecklistItem, "water the plants"},
		{"preamble line", "Sure, here's my pick:\nAFFIRMATION: exam nerves", DirectiveCreateAffirmation, "exam nerves"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{replies: []string{tt.reply}}
			router := NewAgentRouter(gen, true)
			directives := router.Decide(context.Background(), "hello", nil)
			if len(directives) != 1 {
				t.Fatalf("Decide() = %+v, want 1 directive", directives)
			}
			if directives[0].Kind != tt.want || directives[0].Arg != tt.arg {
				t.Errorf("directive = %+v, want kind %q arg %q", directives[0], tt.want, tt.arg)
			}
		})
	}
}

func TestDecideMalformedFallsBackToChat(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"I think maybe a list would be nice?"}}
	router := NewAgentRouter(gen, true)

	directives := router.Decide(context.Background(), "hello", nil)
	if len(directives) != 1 || directives[0].Kind != DirectiveChat {
		t.Fatalf("Decide() = %+v, want single chat directive", directives)
	}
}

func TestDecideTransportFailureFallsBackToChat(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unreachable")}
	router := NewAgentRouter(gen, true)

	directives := router.Decide(context.Background(), "hello", nil)
	if len(directives) != 1 || directives[0].Kind != DirectiveChat {
		t.Fatalf("Decide() = %+v, want single chat directive", directives)
	}
}

func TestDecideDropsSearchWhenDisabled(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"SEARCH: weather in oslo"}}
	router := NewAgentRouter(gen, false)

	directives := router.Decide(context.Background(), "what's the weather in Oslo?", nil)
	if len(directives) != 1 || directives[0].Kind != DirectiveChat {
		t.Fatalf("Decide() = %+v, want single chat directive", directives)
	}
	if strings.Contains(gen.lastPrompt(), "SEARCH") {
		t.Error("decision prompt still advertises SEARCH with search disabled")
	}
}

func TestDecisionPromptCarriesRecentHistory(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"CHAT"}}
	router := NewAgentRouter(gen, true)

	history := []db.Message{
		{Role: db.RoleUser, Content: "ancient message"},
		{Role: db.RoleUser, Content: "old message"},
		{Role: db.RoleAgent, Content: "old reply"},
		{Role: db.RoleUser, Content: "middle message"},
		{Role: db.RoleAgent, Tool: &db.ToolRef{Kind: db.ToolKindMoodTracker, ID: "t1"}},
		{Role: db.RoleUser, Content: "recent message"},
		{Role: db.RoleAgent, Content: "recent reply"},
	}
	router.Decide(context.Background(), "and now?", history)

	prompt := gen.lastPrompt()
	if strings.Contains(prompt, "ancient message") {
		t.Error("prompt includes history beyond the window")
	}
	if !strings.Contains(prompt, "recent message") || !strings.Contains(prompt, "recent reply") {
		t.Error("prompt is missing recent history")
	}
	if !strings.Contains(prompt, "[displayed a mood tracker tool]") {
		t.Error("tool card not summarized in history")
	}
	if !strings.Contains(prompt, "and now?") {
		t.Error("prompt is missing the latest user message")
	}
}

func TestParseToolMarkers(t *testing.T) {
	reply := `Let's take this one step at a time. <tool kind="checklist" theme="packing for the move" />
And it might help to notice how you're feeling. <tool kind='mood_tracker' />`

	markers, cleaned := ParseToolMarkers(reply)
	if len(markers) != 2 {
		t.Fatalf("markers = %+v, want 2", markers)
	}
	if markers[0].Kind != db.ToolKindChecklist || markers[0].Theme != "packing for the move" {
		t.Errorf("first marker = %+v", markers[0])
	}
	if markers[1].Kind != db.ToolKindMoodTracker || markers[1].Theme != "" {
		t.Errorf("second marker = %+v", markers[1])
	}
	if strings.Contains(cleaned, "<tool") {
		t.Errorf("cleaned text still contains a tag: %q", cleaned)
	}
	if !strings.Contains(cleaned, "one step at a time") || !strings.Contains(cleaned, "how you're feeling") {
		t.Errorf("cleaned text lost prose: %q", cleaned)
	}
}

func TestParseToolMarkersIgnoresMalformed(t *testing.T) {
	reply := `Try this. <tool kind="juggling" /> Or this. <tool /> Done.`

	markers, cleaned := ParseToolMarkers(reply)
	if len(markers) != 0 {
		t.Fatalf("markers = %+v, want none", markers)
	}
	if strings.Contains(cleaned, "<tool") {
		t.Errorf("malformed tags not stripped: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Try this.") || !strings.Contains(cleaned, "Done.") {
		t.Errorf("cleaned text lost prose: %q", cleaned)
	}
}

func TestParseToolMarkersPlainText(t *testing.T) {
	markers, cleaned := ParseToolMarkers("Just a normal reply.")
	if len(markers) != 0 {
		t.Fatalf("markers = %+v, want none", markers)
	}
	if cleaned != "Just a normal reply." {
		t.Errorf("cleaned = %q", cleaned)
	}
}

func TestDistinctMarkerKinds(t *testing.T) {
	markers := []ToolMarker{
		{Kind: db.ToolKindChecklist},
		{Kind: db.ToolKindChecklist},
		{Kind: db.ToolKindMoodTracker},
	}
	kinds := DistinctMarkerKinds(markers)
	if len(kinds) != 2 || kinds[0] != db.ToolKindChecklist || kinds[1] != db.ToolKindMoodTracker {
		t.Errorf("DistinctMarkerKinds() = %v", kinds)
	}
}
