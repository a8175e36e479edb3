// Persisted root state: one JSON document in a single-row table.
package db

import "time"

// StateKey is the fixed key of the single state row.
const StateKey = "root"

// StateRecord is the database row carrying the serialized Document.
// Every mutation rewrites Data in full; there is no incremental log, so a
// stored document is never partially written.
type StateRecord struct {
	Key       string    `json:"key" gorm:"primaryKey;size:40"`
	Data      []byte    `json:"-" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StateRecord) TableName() string {
	return "agent_state"
}

// Document is the persisted root state: every conversation plus the id of
// the one currently active. ActiveID always references an existing
// conversation; the store self-heals it on delete.
type Document struct {
	Conversations map[string]*Conversation `json:"conversations"`
	ActiveID      string                   `json:"activeId"`
}

// NewDocument returns an empty document ready for its first conversation.
func NewDocument() *Document {
	return &Document{Conversations: map[string]*Conversation{}}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Conversations: make(map[string]*Conversation, len(d.Conversations)),
		ActiveID:      d.ActiveID,
	}
	for id, conv := range d.Conversations {
		out.Conversations[id] = conv.Clone()
	}
	return out
}
