// State types for conversations, messages and extracted memories.
package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// CompletedTaskLimit bounds the completed-task log per conversation; the
// oldest entry is evicted first.
const CompletedTaskLimit = 20

// Conversation is one chat session with its full history, tool instances,
// extracted memories and completed-task log.
type Conversation struct {
	ID             string        `json:"id"` // ULID; lexicographic order is creation order
	Title          string        `json:"title"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	History        []Message     `json:"history"`
	Tools          ToolSet       `json:"tools"`
	Memories       []MemoryEntry `json:"memories"`
	CompletedTasks []string      `json:"completedTasks"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one history entry, immutable once appended. Content carries
// plain text; Tool instead marks the point where a tool instance was shown.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content,omitempty"`
	Tool    *ToolRef  `json:"tool,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// ToolRef points a history entry at a tool instance.
type ToolRef struct {
	Kind ToolKind `json:"kind"`
	ID   string   `json:"id"`
}

// MemoryEntry is one extracted fact about the user. Embedding may be absent
// when the entry was stored without a vector; ranking scores such entries
// zero instead of dropping them.
type MemoryEntry struct {
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.History != nil {
		out.History = make([]Message, len(c.History))
		for i, msg := range c.History {
			out.History[i] = msg
			if msg.Tool != nil {
				ref := *msg.Tool
				out.History[i].Tool = &ref
			}
		}
	}
	out.Tools = c.Tools.Clone()
	if c.Memories != nil {
		out.Memories = make([]MemoryEntry, len(c.Memories))
		for i, m := range c.Memories {
			out.Memories[i] = m
			out.Memories[i].Embedding = append([]float64(nil), m.Embedding...)
		}
	}
	out.CompletedTasks = append([]string(nil), c.CompletedTasks...)
	return out
}

// NewConversationID returns a fresh conversation id. IDs are ULIDs minted
// with a monotonic entropy source, so ids sort lexicographically in creation
// order even within the same millisecond.
func NewConversationID() string {
	return ulid.Make().String()
}

// NewToolInstanceID returns a fresh unique tool instance id.
func NewToolInstanceID() string {
	return uuid.New().String()
}
