package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/event"
)

func newChatService(t *testing.T, cfg *config.AppConfig, gen *fakeGenerator) (*ChatService, *ConversationService) {
	t.Helper()
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	store := newTestStore(t)
	memory := NewMemoryService(store, &fakeEmbedder{})
	svc := NewChatService(
		cfg,
		store,
		gen,
		NewToolRegistry(gen),
		NewAgentRouter(gen, cfg.SearchEnabled()),
		memory,
		NewMemoryExtractionService(gen, memory),
		NewPromptBuilder(cfg),
		event.NewEmitter(),
	)
	return svc, store
}

// anyPromptContains scans every prompt the generator has seen so far. Useful
// when detached extraction may append prompts concurrently.
func anyPromptContains(g *fakeGenerator, substr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prompts {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

func markerConfig() *config.AppConfig {
	mode := config.RouterModeMarker
	return &config.AppConfig{Chat: config.ChatConfig{Router: &mode}}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	svc, store := newChatService(t, nil, &fakeGenerator{})

	if _, err := svc.Send(context.Background(), "   \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Send() error = %v, want ErrEmptyMessage", err)
	}
	if got := len(store.History()); got != 0 {
		t.Errorf("history = %d messages after rejected send, want 0", got)
	}
}

func TestSendDeciderChatReply(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"CHAT", "warm reply", "NONE"}}
	svc, store := newChatService(t, nil, gen)

	msg, err := svc.Send(context.Background(), "rough day today")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Role != db.RoleAgent || msg.Content != "warm reply" {
		t.Errorf("reply = %s %q", msg.Role, msg.Content)
	}

	history := store.History()
	if len(history) != 2 {
		t.Fatalf("history = %d messages, want 2", len(history))
	}
	if history[0].Role != db.RoleUser || history[0].Content != "rough day today" {
		t.Errorf("user message = %s %q", history[0].Role, history[0].Content)
	}
	if len(store.Tools()) != 0 {
		t.Errorf("tools created on a plain chat turn: %v", store.Tools())
	}
}

func TestSendDeciderCreatesChecklist(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"CHECKLIST: moving house",
		`Here you go: {"title":"Moving house","items":["Book movers","Pack boxes"]}`,
		"one step at a time",
		"NONE",
	}}
	svc, store := newChatService(t, nil, gen)

	msg, err := svc.Send(context.Background(), "the move is next month and I haven't started")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "one step at a time" {
		t.Errorf("reply = %q", msg.Content)
	}

	lists := store.Tools()[db.ToolKindChecklist]
	if len(lists) != 1 {
		t.Fatalf("checklists = %d, want 1", len(lists))
	}
	if lists[0].Title != "Moving house" {
		t.Errorf("title = %q", lists[0].Title)
	}
	items := lists[0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 2 || items[0].Text != "Book movers" {
		t.Errorf("items = %+v", items)
	}

	// Tool card lands before the reply so the reply prompt saw finished state.
	history := store.History()
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want 3", len(history))
	}
	if history[1].Tool == nil || history[1].Tool.Kind != db.ToolKindChecklist || history[1].Tool.ID != lists[0].ID {
		t.Errorf("tool card = %+v", history[1].Tool)
	}
	if !anyPromptContains(gen, `You just put a checklist called "Moving house"`) {
		t.Error("reply prompt missing the tool system note")
	}
}

func TestSendDeciderSynthesisFailureLeavesStateClean(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"CHECKLIST: moving house",
		"I cannot produce structured output, sorry.",
		"still here for you",
		"NONE",
	}}
	svc, store := newChatService(t, nil, gen)

	msg, err := svc.Send(context.Background(), "help me plan the move")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "still here for you" {
		t.Errorf("reply = %q", msg.Content)
	}
	if got := len(store.Tools()); got != 0 {
		t.Errorf("tools = %d after failed synthesis, want 0", got)
	}
	if got := len(store.History()); got != 2 {
		t.Errorf("history = %d messages, want user and reply only", got)
	}
}

func TestSendDeciderGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unreachable")}
	svc, store := newChatService(t, nil, gen)

	msg, err := svc.Send(context.Background(), "hello?")
	if err != nil {
		t.Fatalf("Send() error = %v, want graceful fallback", err)
	}
	if msg.Content != fallbackReply {
		t.Errorf("reply = %q, want the fallback line", msg.Content)
	}
	if got := len(store.History()); got != 2 {
		t.Errorf("history = %d messages, want 2", got)
	}
	if got := len(store.Memories()); got != 0 {
		t.Errorf("memories = %d after failed generation, want 0", got)
	}
}

func TestSendSecondTurnRejectedWhileBusy(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"CHAT", "slow reply", "NONE"}, block: make(chan struct{})}
	svc, store := newChatService(t, nil, gen)

	type result struct {
		msg *db.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := svc.Send(context.Background(), "first message")
		done <- result{msg, err}
	}()

	// The user message lands before the blocked generation call, so its
	// arrival means the turn is held.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(store.History()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(store.History()) != 1 {
		t.Fatal("first turn never started")
	}

	if _, err := svc.Send(context.Background(), "second message"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("concurrent Send() error = %v, want ErrTurnInFlight", err)
	}

	close(gen.block)
	res := <-done
	if res.err != nil {
		t.Fatalf("first Send() error = %v", res.err)
	}
	if res.msg.Content != "slow reply" {
		t.Errorf("first reply = %q", res.msg.Content)
	}
	if got := len(store.History()); got != 2 {
		t.Errorf("history = %d messages, rejected turn must not append", got)
	}
}

func TestSendMarkerCreatesToolAndStripsMarker(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		`Let's get it out of your head and onto a list. <tool kind="checklist" theme="the move" />`,
		`{"title":"Moving house","items":["Book movers","Pack boxes"]}`,
		"NONE",
	}}
	svc, store := newChatService(t, markerConfig(), gen)

	msg, err := svc.Send(context.Background(), "everything about the move is piling up")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "Let's get it out of your head and onto a list." {
		t.Errorf("reply = %q, marker not stripped", msg.Content)
	}

	lists := store.Tools()[db.ToolKindChecklist]
	if len(lists) != 1 || lists[0].Title != "Moving house" {
		t.Fatalf("checklists = %+v", lists)
	}

	// Marker mode stores the reply first, then the tool card.
	history := store.History()
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want 3", len(history))
	}
	if history[1].Tool != nil {
		t.Errorf("history[1] is a tool card, want the reply text")
	}
	if history[2].Tool == nil || history[2].Tool.Kind != db.ToolKindChecklist {
		t.Errorf("history[2] = %+v, want the tool card", history[2])
	}
}

func TestSendMarkerOnlyMarkerGetsPlaceholderText(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		`<tool kind="breathing_exercise" />`,
		`{"title":"Slow down","inhale":4,"hold":7,"exhale":8}`,
		"NONE",
	}}
	svc, store := newChatService(t, markerConfig(), gen)

	msg, err := svc.Send(context.Background(), "I need to calm down")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "I put something on your screen that might help." {
		t.Errorf("reply = %q", msg.Content)
	}
	if got := len(store.Tools()[db.ToolKindBreathingExercise]); got != 1 {
		t.Errorf("breathing exercises = %d, want 1", got)
	}
}

func TestSendMarkerGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unreachable")}
	svc, store := newChatService(t, markerConfig(), gen)

	msg, err := svc.Send(context.Background(), "hello?")
	if err != nil {
		t.Fatalf("Send() error = %v, want graceful fallback", err)
	}
	if msg.Content != fallbackReply {
		t.Errorf("reply = %q", msg.Content)
	}
	if got := len(store.Tools()); got != 0 {
		t.Errorf("tools = %d after failed generation, want 0", got)
	}
}

func TestSendDeciderSearchFlow(t *testing.T) {
	queries := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		queries <- req.Query
		json.NewEncoder(w).Encode(map[string]string{"answer": "Chamomile is caffeine free and mildly sedative."})
	}))
	defer srv.Close()

	enabled := true
	cfg := &config.AppConfig{Search: config.SearchConfig{Enabled: &enabled, BaseURL: &srv.URL}}
	gen := &fakeGenerator{replies: []string{
		"SEARCH: chamomile tea sleep",
		"a cup before bed might be worth trying",
		"NONE",
	}}
	svc, _ := newChatService(t, cfg, gen)
	svc.SetSearchService(NewSearchService(cfg))

	msg, err := svc.Send(context.Background(), "would chamomile tea help me sleep?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "a cup before bed might be worth trying" {
		t.Errorf("reply = %q", msg.Content)
	}

	select {
	case q := <-queries:
		if q != "chamomile tea sleep" {
			t.Errorf("search query = %q", q)
		}
	default:
		t.Fatal("search endpoint never called")
	}
	if !anyPromptContains(gen, "Background you just looked up:\nChamomile is caffeine free") {
		t.Error("reply prompt missing the search context")
	}
}

func TestSendDeciderSearchFailureDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	enabled := true
	cfg := &config.AppConfig{Search: config.SearchConfig{Enabled: &enabled, BaseURL: &srv.URL}}
	gen := &fakeGenerator{replies: []string{"SEARCH: chamomile tea sleep", "no luck looking that up", "NONE"}}
	svc, _ := newChatService(t, cfg, gen)
	svc.SetSearchService(NewSearchService(cfg))

	msg, err := svc.Send(context.Background(), "would chamomile tea help me sleep?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "no luck looking that up" {
		t.Errorf("reply = %q", msg.Content)
	}
	if anyPromptContains(gen, "Background you just looked up:") {
		t.Error("failed search still injected context into the prompt")
	}
}

func TestSendDeciderAddItemStartsChecklistWhenMissing(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"ADD_ITEM: buy milk", "on the list", "NONE"}}
	svc, store := newChatService(t, nil, gen)

	if _, err := svc.Send(context.Background(), "oh and remind me to buy milk"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	lists := store.Tools()[db.ToolKindChecklist]
	if len(lists) != 1 {
		t.Fatalf("checklists = %d, want a fresh one", len(lists))
	}
	if lists[0].Title != "Things to do" {
		t.Errorf("title = %q", lists[0].Title)
	}
	items := lists[0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 1 || items[0].Text != "buy milk" {
		t.Errorf("items = %+v", items)
	}
	if !anyPromptContains(gen, `started a checklist for the user and put "buy milk" on it`) {
		t.Error("reply prompt missing the new-checklist note")
	}
}

func TestSendDeciderAddItemAppendsToExistingChecklist(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"ADD_ITEM: chargers", "added", "NONE"}}
	svc, store := newChatService(t, nil, gen)
	if err := store.AddTool(testChecklist("Packing", "passports")); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	if _, err := svc.Send(context.Background(), "add chargers to the list too"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	items := store.Tools()[db.ToolKindChecklist][0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 2 || items[1].Text != "chargers" {
		t.Errorf("items = %+v", items)
	}
	if !anyPromptContains(gen, `added "chargers" to the user's checklist`) {
		t.Error("reply prompt missing the added-item note")
	}
}

func TestSendDeciderMoreItemsExtendsChecklist(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"MORE_ITEMS",
		`{"items":["Label boxes","Defrost the freezer","One too many"]}`,
		"fresh ideas on the list",
		"NONE",
	}}
	svc, store := newChatService(t, nil, gen)
	if err := store.AddTool(testChecklist("Packing", "passports")); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	if _, err := svc.Send(context.Background(), "what else should go on it?"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	items := store.Tools()[db.ToolKindChecklist][0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 3 {
		t.Fatalf("items = %+v, want original plus two generated", items)
	}
	if items[1].Text != "Label boxes" || items[2].Text != "Defrost the freezer" {
		t.Errorf("generated items = %q, %q", items[1].Text, items[2].Text)
	}
	if !anyPromptContains(gen, `added 2 new items to the checklist "Packing"`) {
		t.Error("reply prompt missing the extension note")
	}
}

func TestCompleteChecklistItemGeneratesReaction(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"nice work on that one"}}
	svc, store := newChatService(t, nil, gen)
	inst := testChecklist("Packing", "passports", "chargers")
	if err := store.AddTool(inst); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	text, msg, err := svc.CompleteChecklistItem(context.Background(), inst.ID, 0)
	if err != nil {
		t.Fatalf("CompleteChecklistItem() error = %v", err)
	}
	if text != "passports" {
		t.Errorf("completed text = %q", text)
	}
	if msg == nil || msg.Content != "nice work on that one" {
		t.Errorf("reaction = %+v", msg)
	}

	items := store.Tools()[db.ToolKindChecklist][0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 1 || items[0].Text != "chargers" {
		t.Errorf("remaining items = %+v", items)
	}
	if tasks := store.CompletedTasks(); len(tasks) != 1 || tasks[0] != "passports" {
		t.Errorf("completed tasks = %v", tasks)
	}
	if !strings.Contains(gen.lastPrompt(), `The user just checked off "passports"`) {
		t.Errorf("reaction prompt = %q", gen.lastPrompt())
	}
}

func TestCompleteChecklistItemFollowUpDegradesToFallback(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unreachable")}
	svc, store := newChatService(t, nil, gen)
	inst := testChecklist("Packing", "passports")
	if err := store.AddTool(inst); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	text, msg, err := svc.CompleteChecklistItem(context.Background(), inst.ID, 0)
	if err != nil {
		t.Fatalf("CompleteChecklistItem() error = %v", err)
	}
	if text != "passports" {
		t.Errorf("completed text = %q", text)
	}
	if msg == nil || msg.Content != fallbackReply {
		t.Errorf("reaction = %+v, want the fallback line", msg)
	}
	if tasks := store.CompletedTasks(); len(tasks) != 1 {
		t.Errorf("completed tasks = %v, completion must stick", tasks)
	}
}

func TestCompleteChecklistItemBusyConversation(t *testing.T) {
	svc, store := newChatService(t, nil, &fakeGenerator{})
	inst := testChecklist("Packing", "passports")
	if err := store.AddTool(inst); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	convID := store.ActiveID()
	if !svc.beginTurn(convID) {
		t.Fatal("could not occupy the turn")
	}
	defer svc.endTurn(convID)

	if _, _, err := svc.CompleteChecklistItem(context.Background(), inst.ID, 0); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("CompleteChecklistItem() error = %v, want ErrTurnInFlight", err)
	}
	items := store.Tools()[db.ToolKindChecklist][0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 1 {
		t.Errorf("items = %+v, busy turn must not mutate", items)
	}
}

func TestCompleteChecklistItemUnknownTool(t *testing.T) {
	svc, _ := newChatService(t, nil, &fakeGenerator{})
	if _, _, err := svc.CompleteChecklistItem(context.Background(), "missing", 0); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("CompleteChecklistItem() error = %v, want ErrToolNotFound", err)
	}
}

func TestLogMoodGeneratesReaction(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"thanks for telling me"}}
	svc, store := newChatService(t, nil, gen)
	if err := store.AddTool(testMoodTracker("How are you?")); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	msg, err := svc.LogMood(context.Background(), "calm")
	if err != nil {
		t.Fatalf("LogMood() error = %v", err)
	}
	if msg == nil || msg.Content != "thanks for telling me" {
		t.Errorf("reaction = %+v", msg)
	}

	log := store.Tools()[db.ToolKindMoodTracker][0].Payload.(*db.MoodTrackerPayload).Log
	if len(log) != 1 || log[0].Mood != "calm" {
		t.Errorf("mood log = %+v", log)
	}
	if !strings.Contains(gen.lastPrompt(), `they feel "calm"`) {
		t.Errorf("reaction prompt = %q", gen.lastPrompt())
	}
}

func TestLogMoodWithoutTracker(t *testing.T) {
	svc, _ := newChatService(t, nil, &fakeGenerator{})
	if _, err := svc.LogMood(context.Background(), "calm"); !errors.Is(err, ErrNoMoodTracker) {
		t.Fatalf("LogMood() error = %v, want ErrNoMoodTracker", err)
	}
}

func TestCommitAffirmation(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"glad it landed"}}
	svc, store := newChatService(t, nil, gen)
	inst := &db.ToolInstance{
		ID:        db.NewToolInstanceID(),
		Title:     "Small anchors",
		CreatedAt: time.Now(),
		Payload:   &db.AffirmationPayload{Affirmations: []string{"I can take this one step at a time."}, ButtonLabel: "I needed that"},
	}
	if err := store.AddTool(inst); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	msg, err := svc.CommitAffirmation(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("CommitAffirmation() error = %v", err)
	}
	if msg == nil || msg.Content != "glad it landed" {
		t.Errorf("reaction = %+v", msg)
	}
	if !strings.Contains(gen.lastPrompt(), `pressed "I needed that" on the affirmation card "Small anchors"`) {
		t.Errorf("reaction prompt = %q", gen.lastPrompt())
	}
}

func TestCommitAffirmationWrongKind(t *testing.T) {
	svc, store := newChatService(t, nil, &fakeGenerator{})
	inst := testChecklist("Packing", "passports")
	if err := store.AddTool(inst); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	if _, err := svc.CommitAffirmation(context.Background(), inst.ID); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("CommitAffirmation() on a checklist error = %v, want ErrToolNotFound", err)
	}
	if _, err := svc.CommitAffirmation(context.Background(), "missing"); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("CommitAffirmation() on unknown id error = %v, want ErrToolNotFound", err)
	}
}

func TestFollowUpRequiresNote(t *testing.T) {
	svc, _ := newChatService(t, nil, &fakeGenerator{})
	if _, err := svc.FollowUp(context.Background(), "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("FollowUp() error = %v, want ErrEmptyMessage", err)
	}
}

func TestAddChecklistItemDirect(t *testing.T) {
	svc, store := newChatService(t, nil, &fakeGenerator{})
	inst := testChecklist("Packing", "passports")
	if err := store.AddTool(inst); err != nil {
		t.Fatalf("AddTool() error = %v", err)
	}

	toolID, err := svc.AddChecklistItem("water the plants")
	if err != nil {
		t.Fatalf("AddChecklistItem() error = %v", err)
	}
	if toolID != inst.ID {
		t.Errorf("toolID = %q, want %q", toolID, inst.ID)
	}
	items := store.Tools()[db.ToolKindChecklist][0].Payload.(*db.ChecklistPayload).Items
	if len(items) != 2 || items[1].Text != "water the plants" {
		t.Errorf("items = %+v", items)
	}
	if got := len(store.History()); got != 0 {
		t.Errorf("history = %d messages, direct edits must not chat", got)
	}
}
