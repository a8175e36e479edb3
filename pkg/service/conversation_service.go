package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/event"
	"github.com/solace-ai/solace/pkg/utils"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrToolNotFound         = errors.New("tool not found")
	ErrItemNotFound         = errors.New("checklist item not found")
	ErrNoChecklist          = errors.New("no checklist in this conversation")
	ErrNoMoodTracker        = errors.New("no mood tracker in this conversation")
)

// DefaultConversationTitle names conversations until the user or the agent
// renames them.
const DefaultConversationTitle = "New Chat"

// ConversationService owns the whole agent state document: every conversation
// with its history, tools and memories, plus the active-conversation pointer.
// Mutations run under a single lock, persist the full document in one write,
// and emit an event only after the write succeeded.
type ConversationService struct {
	database *gorm.DB
	emitter  *event.Emitter
	logger   *slog.Logger

	mu  sync.Mutex
	doc *db.Document
}

// NewConversationService opens the state table, then loads the persisted
// document or seeds a fresh one with a single empty conversation.
func NewConversationService(database *gorm.DB, emitter *event.Emitter) (*ConversationService, error) {
	if emitter == nil {
		emitter = event.NewEmitter()
	}
	s := &ConversationService{
		database: database,
		emitter:  emitter,
		logger:   utils.GetLogger(),
	}
	if err := s.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate agent state: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// AutoMigrate creates the agent state table.
func (s *ConversationService) AutoMigrate() error {
	return s.database.AutoMigrate(&db.StateRecord{})
}

func (s *ConversationService) load() error {
	var rec db.StateRecord
	err := s.database.First(&rec, "key = ?", db.StateKey).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.doc = db.NewDocument()
		conv := s.newConversation(DefaultConversationTitle)
		s.doc.Conversations[conv.ID] = conv
		s.doc.ActiveID = conv.ID
		if err := s.persist(); err != nil {
			return fmt.Errorf("seed agent state: %w", err)
		}
		s.logger.Info("Seeded fresh agent state", "conversationId", conv.ID)
		return nil
	case err != nil:
		return fmt.Errorf("load agent state: %w", err)
	}

	doc := db.NewDocument()
	if err := json.Unmarshal(rec.Data, doc); err != nil {
		return fmt.Errorf("decode agent state: %w", err)
	}
	if doc.Conversations == nil {
		doc.Conversations = map[string]*db.Conversation{}
	}
	s.doc = doc
	s.healActivePointer()
	s.logger.Info("Loaded agent state", "conversations", len(doc.Conversations), "activeId", doc.ActiveID)
	return nil
}

// healActivePointer repairs a document whose active pointer no longer refers
// to a live conversation. Called with s.mu effectively held (startup only).
func (s *ConversationService) healActivePointer() {
	if _, ok := s.doc.Conversations[s.doc.ActiveID]; ok {
		return
	}
	if id := latestConversationID(s.doc); id != "" {
		s.doc.ActiveID = id
		return
	}
	conv := s.newConversation(DefaultConversationTitle)
	s.doc.Conversations[conv.ID] = conv
	s.doc.ActiveID = conv.ID
}

// latestConversationID returns the most recently created conversation, using
// the lexicographic order of ULIDs. Empty when the document has none.
func latestConversationID(doc *db.Document) string {
	latest := ""
	for id := range doc.Conversations {
		if id > latest {
			latest = id
		}
	}
	return latest
}

func (s *ConversationService) newConversation(title string) *db.Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultConversationTitle
	}
	now := time.Now()
	return &db.Conversation{
		ID:        db.NewConversationID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		History:   []db.Message{},
		Tools:     db.ToolSet{},
	}
}

// persist writes the whole document as one row. Caller holds s.mu.
func (s *ConversationService) persist() error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode agent state: %w", err)
	}
	rec := db.StateRecord{Key: db.StateKey, Data: data, UpdatedAt: time.Now()}
	if err := s.database.Save(&rec).Error; err != nil {
		return fmt.Errorf("save agent state: %w", err)
	}
	return nil
}

// mutate applies fn to the document, persists, and emits the returned events.
// If fn or the write fails the in-memory document is rolled back, so readers
// never observe state that is not on disk.
func (s *ConversationService) mutate(fn func(doc *db.Document) ([]event.Event, error)) error {
	var events []event.Event
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		snapshot := s.doc.Clone()
		evs, err := fn(s.doc)
		if err != nil {
			s.doc = snapshot
			return err
		}
		if err := s.persist(); err != nil {
			s.doc = snapshot
			return err
		}
		events = evs
		return nil
	}()
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.emitter.Emit(ev)
	}
	return nil
}

func activeConversation(doc *db.Document) (*db.Conversation, error) {
	conv, ok := doc.Conversations[doc.ActiveID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// ============================================================================
// Conversation lifecycle
// ============================================================================

// CreateConversation starts a new conversation and makes it active.
func (s *ConversationService) CreateConversation(title string) (*db.Conversation, error) {
	var created *db.Conversation
	err := s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv := s.newConversation(title)
		doc.Conversations[conv.ID] = conv
		doc.ActiveID = conv.ID
		created = conv.Clone()
		return []event.Event{
			event.ConversationCreatedEvent{ConversationID: conv.ID},
			event.ConversationActivatedEvent{ConversationID: conv.ID},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetActive switches the active conversation.
func (s *ConversationService) SetActive(id string) error {
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		if _, ok := doc.Conversations[id]; !ok {
			return nil, ErrConversationNotFound
		}
		if doc.ActiveID == id {
			return nil, nil
		}
		doc.ActiveID = id
		return []event.Event{event.ConversationActivatedEvent{ConversationID: id}}, nil
	})
}

// Delete removes a conversation. When the active one goes, the most recently
// created survivor takes over; deleting the last conversation seeds a fresh
// empty one so there is always somewhere to talk.
func (s *ConversationService) Delete(id string) error {
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		if _, ok := doc.Conversations[id]; !ok {
			return nil, ErrConversationNotFound
		}
		delete(doc.Conversations, id)
		events := []event.Event{}
		if doc.ActiveID == id {
			next := latestConversationID(doc)
			if next == "" {
				conv := s.newConversation(DefaultConversationTitle)
				doc.Conversations[conv.ID] = conv
				next = conv.ID
				events = append(events, event.ConversationCreatedEvent{ConversationID: conv.ID})
			}
			doc.ActiveID = next
			events = append(events, event.ConversationActivatedEvent{ConversationID: next})
		}
		events = append(events, event.ConversationDeletedEvent{ConversationID: id, NextActiveID: doc.ActiveID})
		return events, nil
	})
}

// SetTitle renames a conversation.
func (s *ConversationService) SetTitle(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title must not be empty")
	}
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, ok := doc.Conversations[id]
		if !ok {
			return nil, ErrConversationNotFound
		}
		conv.Title = title
		conv.UpdatedAt = time.Now()
		return nil, nil
	})
}

// ============================================================================
// Messages
// ============================================================================

// AppendMessage adds a plain text message to the active conversation and
// returns a copy of the stored message.
func (s *ConversationService) AppendMessage(role db.Role, content string) (*db.Message, error) {
	var stored db.Message
	err := s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, err := activeConversation(doc)
		if err != nil {
			return nil, err
		}
		msg := db.Message{Role: role, Content: content, SentAt: time.Now()}
		conv.History = append(conv.History, msg)
		conv.UpdatedAt = msg.SentAt
		stored = msg
		return []event.Event{event.MessageAppendedEvent{ConversationID: conv.ID, Role: string(role)}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// AppendToolMessage adds a tool card to the active conversation's history so
// transcripts show where a tool appeared.
func (s *ConversationService) AppendToolMessage(ref db.ToolRef) error {
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, err := activeConversation(doc)
		if err != nil {
			return nil, err
		}
		msg := db.Message{Role: db.RoleAgent, Tool: &ref, SentAt: time.Now()}
		conv.History = append(conv.History, msg)
		conv.UpdatedAt = msg.SentAt
		return []event.Event{event.MessageAppendedEvent{ConversationID: conv.ID, Role: string(db.RoleAgent)}}, nil
	})
}

// ============================================================================
// Tools
// ============================================================================

// AddTool appends a synthesized tool instance to the active conversation.
func (s *ConversationService) AddTool(instance *db.ToolInstance) error {
	if instance == nil || instance.Payload == nil {
		return errors.New("tool instance missing payload")
	}
	kind := instance.Kind()
	if !kind.Valid() {
		return fmt.Errorf("invalid tool kind %q", kind)
	}
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, err := activeConversation(doc)
		if err != nil {
			return nil, err
		}
		if conv.Tools == nil {
			conv.Tools = db.ToolSet{}
		}
		conv.Tools[kind] = append(conv.Tools[kind], instance.Clone())
		conv.UpdatedAt = time.Now()
		return []event.Event{event.ToolCreatedEvent{
			ConversationID: conv.ID,
			Kind:           string(kind),
			ToolID:         instance.ID,
		}}, nil
	})
}

// CompleteChecklistItem removes the item at index from the instance with the
// given id, records it in the completed-task log, and drops the instance when
// its last item goes. Returns the completed item's text.
func (s *ConversationService) CompleteChecklistItem(toolID string, index int) (string, error) {
	var completed string
	err := s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, err := activeConversation(doc)
		if err != nil {
			return nil, err
		}
		lists := conv.Tools[db.ToolKindChecklist]
		pos := -1
		for i, inst := range lists {
			if inst.ID == toolID {
				pos = i
				break
			}
		}
		if pos == -1 {
			return nil, ErrToolNotFound
		}
		inst := lists[pos]
		payload, ok := inst.Payload.(*db.ChecklistPayload)
		if !ok {
			return nil, ErrToolNotFound
		}
		if index < 0 || index >= len(payload.Items) {
			return nil, ErrItemNotFound
		}
		completed = payload.Items[index].Text
		payload.Items = append(payload.Items[:index], payload.Items[index+1:]...)

		conv.CompletedTasks = append(conv.CompletedTasks, completed)
		if over := len(conv.CompletedTasks) - db.CompletedTaskLimit; over > 0 {
			conv.CompletedTasks = conv.CompletedTasks[over:]
		}
		conv.UpdatedAt = time.Now()

		events := []event.Event{event.TaskCompletedEvent{
			ConversationID: conv.ID,
			ToolID:         inst.ID,
			Text:           completed,
		}}
		if len(payload.Items) == 0 {
			conv.Tools[db.ToolKindChecklist] = append(lists[:pos], lists[pos+1:]...)
			if len(conv.Tools[db.ToolKindChecklist]) == 0 {
				delete(conv.Tools, db.ToolKindChecklist)
			}
			events = append(events, event.ToolRemovedEvent{
				ConversationID: conv.ID,
				Kind:           string(db.ToolKindChecklist),
				ToolID:         inst.ID,
			})
		}
		return events, nil
	})
	if err != nil {
		return "", err
	}
	return completed, nil
}

// AddChecklistItems appends items to the most recently created checklist and
// returns its id. Blank items are skipped.
func (s *ConversationService) AddChecklistItems(items []string) (string, error) {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	if len(cleaned) == 0 {
		return "", errors.New("no items to add")
	}
	var toolID string
	err := s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, err := activeConversation(doc)
		if err != nil {
			return nil, err
		}
		lists := conv.Tools[db.ToolKindChecklist]
		if len(lists) == 0 {
			return nil, ErrNoChecklist
		}
		inst := lists[len(lists)-1]
		payload, ok := inst.Payload.(*db.ChecklistPayload)
		if !ok {
			return nil, ErrNoChecklist
		}
		for _, item := range cleaned {
			payload.Items = append(payload.Items, db.ChecklistItem{Text: item})
		}
		conv.UpdatedAt = time.Now()
		toolID = inst.ID
		return []event.Event{event.ToolUpdatedEvent{
			ConversationID: conv.ID,
			Kind:           string(db.ToolKindChecklist),
			ToolID:         inst.ID,
		}}, nil
	})
	if err != nil {
		return "", err
	}
	return toolID, nil
}

// LogMood records a mood on the most recently created mood tracker, evicting
// the oldest entry once the log is full.
func (s *ConversationService) LogMood(mood string) error {
	mood = strings.TrimSpace(mood)
	if mood == "" {
		return errors.New("mood must not be empty")
	}
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, err := activeConversation(doc)
		if err != nil {
			return nil, err
		}
		trackers := conv.Tools[db.ToolKindMoodTracker]
		if len(trackers) == 0 {
			return nil, ErrNoMoodTracker
		}
		inst := trackers[len(trackers)-1]
		payload, ok := inst.Payload.(*db.MoodTrackerPayload)
		if !ok {
			return nil, ErrNoMoodTracker
		}
		payload.Log = append(payload.Log, db.MoodEntry{Mood: mood, At: time.Now()})
		if over := len(payload.Log) - db.MoodLogLimit; over > 0 {
			payload.Log = payload.Log[over:]
		}
		conv.UpdatedAt = time.Now()
		return []event.Event{event.MoodLoggedEvent{
			ConversationID: conv.ID,
			ToolID:         inst.ID,
			Mood:           mood,
		}}, nil
	})
}

// ============================================================================
// Memories
// ============================================================================

// AddMemory appends an extracted memory to the given conversation. The target
// is addressed by id because extraction runs detached and the active
// conversation may have changed underneath it.
func (s *ConversationService) AddMemory(convID string, entry db.MemoryEntry) error {
	entry.Text = strings.TrimSpace(entry.Text)
	if entry.Text == "" {
		return errors.New("memory text must not be empty")
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}
	return s.mutate(func(doc *db.Document) ([]event.Event, error) {
		conv, ok := doc.Conversations[convID]
		if !ok {
			return nil, ErrConversationNotFound
		}
		conv.Memories = append(conv.Memories, entry)
		conv.UpdatedAt = time.Now()
		return []event.Event{event.MemoryAddedEvent{ConversationID: convID, Text: entry.Text}}, nil
	})
}

// ============================================================================
// Read accessors (all return copies)
// ============================================================================

// ActiveID returns the id of the active conversation.
func (s *ConversationService) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.ActiveID
}

// Active returns a copy of the active conversation.
func (s *ConversationService) Active() *db.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := activeConversation(s.doc)
	if err != nil {
		return nil
	}
	return conv.Clone()
}

// Get returns a copy of the conversation with the given id.
func (s *ConversationService) Get(id string) (*db.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.doc.Conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// Conversations returns copies of every conversation, newest first.
func (s *ConversationService) Conversations() []*db.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*db.Conversation, 0, len(s.doc.Conversations))
	for _, conv := range s.doc.Conversations {
		out = append(out, conv.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// History returns a copy of the active conversation's message history.
func (s *ConversationService) History() []db.Message {
	conv := s.Active()
	if conv == nil {
		return nil
	}
	return conv.History
}

// Tools returns a copy of the active conversation's tool instances.
func (s *ConversationService) Tools() db.ToolSet {
	conv := s.Active()
	if conv == nil {
		return db.ToolSet{}
	}
	return conv.Tools
}

// Memories returns a copy of the active conversation's extracted memories.
func (s *ConversationService) Memories() []db.MemoryEntry {
	conv := s.Active()
	if conv == nil {
		return nil
	}
	return conv.Memories
}

// CompletedTasks returns a copy of the active conversation's completed-task log.
func (s *ConversationService) CompletedTasks() []string {
	conv := s.Active()
	if conv == nil {
		return nil
	}
	return conv.CompletedTasks
}

// FindTool resolves a tool instance in the active conversation by id.
func (s *ConversationService) FindTool(toolID string) (*db.ToolInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := activeConversation(s.doc)
	if err != nil {
		return nil, err
	}
	for _, instances := range conv.Tools {
		for _, inst := range instances {
			if inst.ID == toolID {
				return inst.Clone(), nil
			}
		}
	}
	return nil, ErrToolNotFound
}

// MostRecentTool returns a copy of the newest instance of the given kind in
// the active conversation.
func (s *ConversationService) MostRecentTool(kind db.ToolKind) (*db.ToolInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := activeConversation(s.doc)
	if err != nil {
		return nil, err
	}
	instances := conv.Tools[kind]
	if len(instances) == 0 {
		return nil, ErrToolNotFound
	}
	return instances[len(instances)-1].Clone(), nil
}
