package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	ConversationCreated   = "conversation.created"
	ConversationActivated = "conversation.activated"
	ConversationDeleted   = "conversation.deleted"
	MessageAppended       = "message.appended"
	ToolPending           = "tool.pending"
	ToolCreated           = "tool.created"
	ToolUpdated           = "tool.updated"
	ToolRemoved           = "tool.removed"
	TaskCompleted         = "task.completed"
	MoodLogged            = "mood.logged"
	MemoryAdded           = "memory.added"
)

// ============================================================================
// Conversation Events
// ============================================================================

// ConversationCreatedEvent is emitted when a conversation is created.
type ConversationCreatedEvent struct {
	ConversationID string `json:"conversationId"`
}

func (e ConversationCreatedEvent) EventName() string { return ConversationCreated }

// ConversationActivatedEvent is emitted when the active conversation changes.
type ConversationActivatedEvent struct {
	ConversationID string `json:"conversationId"`
}

func (e ConversationActivatedEvent) EventName() string { return ConversationActivated }

// ConversationDeletedEvent is emitted when a conversation is deleted.
// NextActiveID carries the conversation that became active afterwards.
type ConversationDeletedEvent struct {
	ConversationID string `json:"conversationId"`
	NextActiveID   string `json:"nextActiveId"`
}

func (e ConversationDeletedEvent) EventName() string { return ConversationDeleted }

// MessageAppendedEvent is emitted when a message lands in a conversation's
// history, whether a user turn, an agent reply, or a tool card.
type MessageAppendedEvent struct {
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
}

func (e MessageAppendedEvent) EventName() string { return MessageAppended }

// ============================================================================
// Tool Events
// ============================================================================

// ToolPendingEvent is emitted when a tool has been requested but not yet
// synthesized, so clients can show a placeholder.
type ToolPendingEvent struct {
	ConversationID string `json:"conversationId"`
	Kind           string `json:"kind"`
	Theme          string `json:"theme,omitempty"`
}

func (e ToolPendingEvent) EventName() string { return ToolPending }

// ToolCreatedEvent is emitted when a tool instance is added to a conversation.
type ToolCreatedEvent struct {
	ConversationID string `json:"conversationId"`
	Kind           string `json:"kind"`
	ToolID         string `json:"toolId"`
}

func (e ToolCreatedEvent) EventName() string { return ToolCreated }

// ToolUpdatedEvent is emitted when an existing tool instance changes in place,
// e.g. fresh items landing on a checklist.
type ToolUpdatedEvent struct {
	ConversationID string `json:"conversationId"`
	Kind           string `json:"kind"`
	ToolID         string `json:"toolId"`
}

func (e ToolUpdatedEvent) EventName() string { return ToolUpdated }

// ToolRemovedEvent is emitted when a tool instance is removed, e.g. a
// checklist whose last item was completed.
type ToolRemovedEvent struct {
	ConversationID string `json:"conversationId"`
	Kind           string `json:"kind"`
	ToolID         string `json:"toolId"`
}

func (e ToolRemovedEvent) EventName() string { return ToolRemoved }

// TaskCompletedEvent is emitted when a checklist item is checked off.
type TaskCompletedEvent struct {
	ConversationID string `json:"conversationId"`
	ToolID         string `json:"toolId"`
	Text           string `json:"text"`
}

func (e TaskCompletedEvent) EventName() string { return TaskCompleted }

// MoodLoggedEvent is emitted when a mood is recorded on a mood tracker.
type MoodLoggedEvent struct {
	ConversationID string `json:"conversationId"`
	ToolID         string `json:"toolId"`
	Mood           string `json:"mood"`
}

func (e MoodLoggedEvent) EventName() string { return MoodLogged }

// ============================================================================
// Memory Events
// ============================================================================

// MemoryAddedEvent is emitted when the extractor stores a new memory.
type MemoryAddedEvent struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

func (e MemoryAddedEvent) EventName() string { return MemoryAdded }
