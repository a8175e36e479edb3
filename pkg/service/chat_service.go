package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/event"
	"github.com/solace-ai/solace/pkg/utils"
)

var (
	// ErrTurnInFlight is returned while a reply is still being generated for
	// the conversation. One turn at a time.
	ErrTurnInFlight = errors.New("a reply is already being generated for this conversation")
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message must not be empty")
)

// ChatService runs a full conversational turn: append the user message,
// route it, execute tool directives, gather memories, generate the reply,
// and hand the exchange to the memory extractor. Tool interactions outside
// the chat box (checking off an item, logging a mood) come back through the
// follow-up path so Sol can react to them.
type ChatService struct {
	cfg       *config.AppConfig
	store     *ConversationService
	generator Generator
	registry  *ToolRegistry
	router    *AgentRouter
	memory    *MemoryService
	extractor *MemoryExtractionService
	prompts   *PromptBuilder
	emitter   *event.Emitter
	search    *SearchService
	logger    *slog.Logger

	inFlight sync.Map // conversation id -> struct{}
}

func NewChatService(
	cfg *config.AppConfig,
	store *ConversationService,
	generator Generator,
	registry *ToolRegistry,
	router *AgentRouter,
	memory *MemoryService,
	extractor *MemoryExtractionService,
	prompts *PromptBuilder,
	emitter *event.Emitter,
) *ChatService {
	if emitter == nil {
		emitter = event.NewEmitter()
	}
	return &ChatService{
		cfg:       cfg,
		store:     store,
		generator: generator,
		registry:  registry,
		router:    router,
		memory:    memory,
		extractor: extractor,
		prompts:   prompts,
		emitter:   emitter,
		logger:    utils.GetLogger(),
	}
}

// SetSearchService wires the optional search collaborator.
func (s *ChatService) SetSearchService(search *SearchService) {
	s.search = search
}

func (s *ChatService) beginTurn(convID string) bool {
	_, loaded := s.inFlight.LoadOrStore(convID, struct{}{})
	return !loaded
}

func (s *ChatService) endTurn(convID string) {
	s.inFlight.Delete(convID)
}

// Send runs one user turn against the active conversation and returns the
// agent's reply message.
func (s *ChatService) Send(ctx context.Context, text string) (*db.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	convID := s.store.ActiveID()
	if !s.beginTurn(convID) {
		return nil, ErrTurnInFlight
	}
	defer s.endTurn(convID)

	if _, err := s.store.AppendMessage(db.RoleUser, text); err != nil {
		return nil, err
	}

	if s.cfg.RouterMode() == config.RouterModeMarker {
		return s.sendMarker(ctx, convID, text)
	}
	return s.sendDecider(ctx, convID, text)
}

// sendDecider is the default strategy: a separate decision call picks the
// directives, tools are synthesized before the reply, and the reply prompt
// sees the finished tool state.
func (s *ChatService) sendDecider(ctx context.Context, convID, text string) (*db.Message, error) {
	directives := s.router.Decide(ctx, text, s.store.History())

	var (
		noteParts     []string
		searchContext string
	)
	for _, d := range directives {
		switch d.Kind {
		case DirectiveChat:
			// Nothing to do; the reply itself is the action.
		case DirectiveSearch:
			query := d.Arg
			if query == "" {
				query = text
			}
			answer, err := s.runSearch(ctx, query)
			if err != nil {
				s.logger.Warn("Search failed; replying without it", "query", query, "error", err)
				continue
			}
			if searchContext != "" {
				searchContext += "\n\n"
			}
			searchContext += answer
		case DirectiveCreateChecklist:
			if note := s.createTool(ctx, convID, db.ToolKindChecklist, d.Arg, searchContext); note != "" {
				noteParts = append(noteParts, note)
			}
		case DirectiveAddChecklistItem:
			if note := s.addChecklistItem(convID, d.Arg); note != "" {
				noteParts = append(noteParts, note)
			}
		case DirectiveMoreChecklistItems:
			if note := s.extendChecklist(ctx); note != "" {
				noteParts = append(noteParts, note)
			}
		case DirectiveCreateBreathing:
			if note := s.createTool(ctx, convID, db.ToolKindBreathingExercise, d.Arg, ""); note != "" {
				noteParts = append(noteParts, note)
			}
		case DirectiveCreateMoodTracker:
			if note := s.createTool(ctx, convID, db.ToolKindMoodTracker, d.Arg, ""); note != "" {
				noteParts = append(noteParts, note)
			}
		case DirectiveCreateAffirmation:
			if note := s.createTool(ctx, convID, db.ToolKindAffirmationCard, d.Arg, searchContext); note != "" {
				noteParts = append(noteParts, note)
			}
		}
	}

	memories := s.retrieveMemories(ctx, text)
	prompt := s.prompts.BuildReply(s.store.Active(), memories, strings.Join(noteParts, " "), searchContext)

	reply, genErr := s.generator.Generate(ctx, prompt)
	if genErr != nil {
		s.logger.Error("Reply generation failed", "conversationId", convID, "error", genErr)
		reply = fallbackReply
	}
	msg, err := s.store.AppendMessage(db.RoleAgent, reply)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		s.extractor.ExtractAsync(convID, text, reply)
	}
	return msg, nil
}

// sendMarker is the single-call strategy: the reply itself carries tool
// markers, which are stripped before the text is stored and shown.
func (s *ChatService) sendMarker(ctx context.Context, convID, text string) (*db.Message, error) {
	memories := s.retrieveMemories(ctx, text)
	prompt := s.prompts.BuildReply(s.store.Active(), memories, "", "")

	raw, genErr := s.generator.Generate(ctx, prompt)
	if genErr != nil {
		s.logger.Error("Reply generation failed", "conversationId", convID, "error", genErr)
		return s.store.AppendMessage(db.RoleAgent, fallbackReply)
	}

	markers, cleaned := ParseToolMarkers(raw)
	if cleaned == "" {
		cleaned = "I put something on your screen that might help."
	}
	msg, err := s.store.AppendMessage(db.RoleAgent, cleaned)
	if err != nil {
		return nil, err
	}

	for _, kind := range DistinctMarkerKinds(markers) {
		s.emitter.Emit(event.ToolPendingEvent{ConversationID: convID, Kind: string(kind)})
	}
	for _, marker := range markers {
		s.createTool(ctx, convID, marker.Kind, marker.Theme, "")
	}

	s.extractor.ExtractAsync(convID, text, cleaned)
	return msg, nil
}

// createTool synthesizes one tool, adds it to the conversation with a tool
// card in the history, and returns a system-note fragment for the reply
// prompt. A synthesis failure leaves the conversation untouched.
func (s *ChatService) createTool(ctx context.Context, convID string, kind db.ToolKind, theme, searchContext string) string {
	s.emitter.Emit(event.ToolPendingEvent{ConversationID: convID, Kind: string(kind), Theme: theme})

	inst, err := s.registry.Synthesize(ctx, kind, theme, searchContext)
	if err != nil {
		s.logger.Warn("Tool synthesis failed", "kind", kind, "error", err)
		return ""
	}
	if err := s.store.AddTool(inst); err != nil {
		s.logger.Error("Failed to add tool", "kind", kind, "error", err)
		return ""
	}
	if err := s.store.AppendToolMessage(db.ToolRef{Kind: kind, ID: inst.ID}); err != nil {
		s.logger.Error("Failed to append tool card", "kind", kind, "error", err)
	}
	return fmt.Sprintf("You just put a %s called %q on the user's screen.", humanToolKind(kind), inst.Title)
}

// addChecklistItem drops one user-stated item onto the most recent checklist,
// starting a fresh list when none exists yet.
func (s *ChatService) addChecklistItem(convID, item string) string {
	item = strings.TrimSpace(item)
	if item == "" {
		return ""
	}
	_, err := s.store.AddChecklistItems([]string{item})
	if err == nil {
		return fmt.Sprintf("You just added %q to the user's checklist.", item)
	}
	if !errors.Is(err, ErrNoChecklist) {
		s.logger.Warn("Failed to add checklist item", "error", err)
		return ""
	}

	inst := &db.ToolInstance{
		ID:        db.NewToolInstanceID(),
		Title:     "Things to do",
		CreatedAt: time.Now(),
		Payload:   &db.ChecklistPayload{Items: []db.ChecklistItem{{Text: item}}},
	}
	if err := s.store.AddTool(inst); err != nil {
		s.logger.Error("Failed to start checklist", "error", err)
		return ""
	}
	if err := s.store.AppendToolMessage(db.ToolRef{Kind: db.ToolKindChecklist, ID: inst.ID}); err != nil {
		s.logger.Error("Failed to append tool card", "error", err)
	}
	return fmt.Sprintf("You just started a checklist for the user and put %q on it.", item)
}

// extendChecklist generates fresh items for the most recent checklist.
func (s *ChatService) extendChecklist(ctx context.Context) string {
	inst, err := s.store.MostRecentTool(db.ToolKindChecklist)
	if err != nil {
		s.logger.Warn("No checklist to extend")
		return ""
	}
	items, err := s.registry.GenerateMoreChecklistItems(ctx, inst, s.store.CompletedTasks())
	if err != nil {
		s.logger.Warn("Failed to generate checklist items", "error", err)
		return ""
	}
	if _, err := s.store.AddChecklistItems(items); err != nil {
		s.logger.Warn("Failed to add generated items", "error", err)
		return ""
	}
	return fmt.Sprintf("You just added %d new items to the checklist %q.", len(items), inst.Title)
}

func (s *ChatService) runSearch(ctx context.Context, query string) (string, error) {
	if s.search == nil {
		return "", ErrSearchDisabled
	}
	return s.search.Search(ctx, query)
}

// retrieveMemories is best-effort: a failed lookup degrades to no memories.
func (s *ChatService) retrieveMemories(ctx context.Context, query string) []string {
	memories, err := s.memory.Retrieve(ctx, query, s.cfg.MemoryTopK())
	if err != nil {
		s.logger.Warn("Memory retrieval failed", "error", err)
		return nil
	}
	return memories
}

// followUp generates one reply to a system note without a new user message.
// Caller holds the turn.
func (s *ChatService) followUp(ctx context.Context, note string) (*db.Message, error) {
	memories := s.retrieveMemories(ctx, note)
	prompt := s.prompts.BuildReply(s.store.Active(), memories, note, "")
	reply, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("Follow-up generation failed", "error", err)
		reply = fallbackReply
	}
	return s.store.AppendMessage(db.RoleAgent, reply)
}

// FollowUp reacts to something that happened outside the chat box, described
// by a system note the user never sees verbatim.
func (s *ChatService) FollowUp(ctx context.Context, note string) (*db.Message, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrEmptyMessage
	}
	convID := s.store.ActiveID()
	if !s.beginTurn(convID) {
		return nil, ErrTurnInFlight
	}
	defer s.endTurn(convID)
	return s.followUp(ctx, note)
}

// CompleteChecklistItem checks off one item and has Sol react to it. The
// completed text is returned even when the reply itself degrades.
func (s *ChatService) CompleteChecklistItem(ctx context.Context, toolID string, index int) (string, *db.Message, error) {
	convID := s.store.ActiveID()
	if !s.beginTurn(convID) {
		return "", nil, ErrTurnInFlight
	}
	defer s.endTurn(convID)

	text, err := s.store.CompleteChecklistItem(toolID, index)
	if err != nil {
		return "", nil, err
	}
	note := fmt.Sprintf("The user just checked off %q from their checklist. React briefly and naturally.", text)
	msg, err := s.followUp(ctx, note)
	if err != nil {
		s.logger.Error("Follow-up after completion failed", "error", err)
		return text, nil, nil
	}
	return text, msg, nil
}

// LogMood records a mood tap and has Sol react to it.
func (s *ChatService) LogMood(ctx context.Context, mood string) (*db.Message, error) {
	convID := s.store.ActiveID()
	if !s.beginTurn(convID) {
		return nil, ErrTurnInFlight
	}
	defer s.endTurn(convID)

	if err := s.store.LogMood(mood); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("The user just logged that they feel %q on the mood tracker. Acknowledge it briefly and warmly.", mood)
	msg, err := s.followUp(ctx, note)
	if err != nil {
		s.logger.Error("Follow-up after mood log failed", "error", err)
		return nil, nil
	}
	return msg, nil
}

// CommitAffirmation reacts to the user pressing the button on an affirmation
// card. The card itself does not change.
func (s *ChatService) CommitAffirmation(ctx context.Context, toolID string) (*db.Message, error) {
	convID := s.store.ActiveID()
	if !s.beginTurn(convID) {
		return nil, ErrTurnInFlight
	}
	defer s.endTurn(convID)

	inst, err := s.store.FindTool(toolID)
	if err != nil {
		return nil, err
	}
	payload, ok := inst.Payload.(*db.AffirmationPayload)
	if !ok {
		return nil, ErrToolNotFound
	}
	note := fmt.Sprintf("The user just pressed %q on the affirmation card %q. Acknowledge it briefly and warmly.", payload.ButtonLabel, inst.Title)
	msg, err := s.followUp(ctx, note)
	if err != nil {
		s.logger.Error("Follow-up after affirmation failed", "error", err)
		return nil, nil
	}
	return msg, nil
}

// AddChecklistItem adds one explicit item to the most recent checklist
// without a generated reply, for direct UI edits.
func (s *ChatService) AddChecklistItem(text string) (string, error) {
	return s.store.AddChecklistItems([]string{text})
}
