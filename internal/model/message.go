package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType defines the type of message content
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"

	// MessageTypeSystem marks service-generated notices. Never accepted from clients.
	MessageTypeSystem MessageType = "system"
)

// DeletedPlaceholder replaces the content of a tombstoned message on output
const DeletedPlaceholder = "This message was deleted"

// Message represents a chat message
type Message struct {
	ID             uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationID uuid.UUID   `json:"conversation_id" gorm:"type:uuid;not null;uniqueIndex:idx_messages_conv_seq,priority:1"`
	Seq            int64       `json:"seq" gorm:"not null;uniqueIndex:idx_messages_conv_seq,priority:2"`
	SenderID       *uuid.UUID  `json:"sender_id" gorm:"type:uuid;index"` // nil for system messages
	Content        string      `json:"content" gorm:"type:text"`
	Type           MessageType `json:"message_type" gorm:"type:varchar(20);not null;default:'text'"`
	ReplyToID      *uuid.UUID  `json:"reply_to_id,omitempty" gorm:"type:uuid"`
	CreatedAt      time.Time   `json:"created_at" gorm:"not null"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	IsDeleted      bool        `json:"is_deleted" gorm:"not null;default:false"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"`

	Reactions ReactionSet   `json:"reactions" gorm:"-"`
	ReplyTo   *ReplyPreview `json:"reply_to,omitempty" gorm:"-"`
}

// IsSystem reports whether the message was generated by the service
func (m *Message) IsSystem() bool {
	return m.SenderID == nil
}

// SentBy reports whether userID authored the message
func (m *Message) SentBy(userID uuid.UUID) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// Clone deep-copies the message
func (m *Message) Clone() *Message {
	cp := *m
	cp.Reactions = m.Reactions.Clone()
	if m.ReplyTo != nil {
		rp := *m.ReplyTo
		cp.ReplyTo = &rp
	}
	return &cp
}

// Presented returns a copy safe to hand to readers: tombstoned content is
// replaced by the placeholder.
func (m *Message) Presented() *Message {
	cp := m.Clone()
	if cp.IsDeleted {
		cp.Content = DeletedPlaceholder
	}
	return cp
}

// ReplyPreview is the resolved target of a reply
type ReplyPreview struct {
	ID        uuid.UUID   `json:"id"`
	SenderID  *uuid.UUID  `json:"sender_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"message_type"`
	IsDeleted bool        `json:"is_deleted"`
}

// PreviewOf builds the reply preview of target, tombstone aware
func PreviewOf(target *Message) *ReplyPreview {
	p := &ReplyPreview{
		ID:        target.ID,
		SenderID:  target.SenderID,
		Content:   target.Content,
		Type:      target.Type,
		IsDeleted: target.IsDeleted,
	}
	if target.IsDeleted {
		p.Content = DeletedPlaceholder
	}
	return p
}

// Reaction is a single user's emoji on a message. One row per (message, user).
type Reaction struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Emoji     string    `gorm:"size:32;not null"`
	UpdatedAt time.Time
}

func (Reaction) TableName() string { return "message_reactions" }

// ReactionSet keys the current emoji by user id
type ReactionSet map[uuid.UUID]string

// Clone copies the set, never returning nil
func (s ReactionSet) Clone() ReactionSet {
	out := make(ReactionSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
