package model

import (
	"time"

	"github.com/google/uuid"
)

// ConversationType defines whether the conversation is direct (1-1) or group
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeGroup  ConversationType = "group"
)

// Conversation represents a chat conversation (1-1 or group)
type Conversation struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type        ConversationType `json:"type" gorm:"type:varchar(20);not null"`
	Title       string           `json:"title,omitempty" gorm:"size:100"`       // group only
	Description string           `json:"description,omitempty" gorm:"size:500"` // group only
	ImageURL    string           `json:"image_url,omitempty" gorm:"size:500"`   // group only
	CreatorID   *uuid.UUID       `json:"creator_id,omitempty" gorm:"type:uuid"`

	// DirectKey is the sorted participant pair of a direct conversation.
	// Its unique index is what makes direct conversations unique per pair.
	DirectKey *string `json:"-" gorm:"size:80;uniqueIndex"`

	// LastSeq is the per-conversation sequence counter owned by the message log
	LastSeq int64 `json:"-" gorm:"not null;default:0"`

	LastMessageID  *uuid.UUID `json:"last_message_id,omitempty" gorm:"type:uuid"`
	LastMessageSeq int64      `json:"last_message_seq" gorm:"not null;default:0"`
	LastMessageAt  time.Time  `json:"last_message_at" gorm:"not null;index"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DissolvedAt *time.Time `json:"dissolved_at,omitempty"`

	Participants ParticipantSet `json:"participants" gorm:"-"`
}

// IsGroup reports whether the conversation is a group
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationTypeGroup
}

// IsActiveParticipant reports whether userID currently belongs to the conversation
func (c *Conversation) IsActiveParticipant(userID uuid.UUID) bool {
	p, ok := c.Participants[userID]
	return ok && p.Active()
}

// ActiveParticipantIDs returns the ids of participants that have not left
func (c *Conversation) ActiveParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for id, p := range c.Participants {
		if p.Active() {
			ids = append(ids, id)
		}
	}
	return ids
}

// DirectKey returns the canonical key of an unordered user pair
func DirectKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}

// MemberRole defines the role of a member in a conversation
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Participant is a user's membership and read state in a conversation
type Participant struct {
	ConversationID    uuid.UUID  `json:"-" gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID  `json:"user_id" gorm:"type:uuid;primaryKey;index"`
	Role              MemberRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt          time.Time  `json:"joined_at" gorm:"not null"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty" gorm:"type:uuid"`
	LastReadSeq       int64      `json:"last_read_seq" gorm:"not null;default:0"`
	UnreadCount       int        `json:"unread_count" gorm:"not null;default:0"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	LeftAt            *time.Time `json:"left_at,omitempty"`

	// Populated from the identity resolver, never stored
	DisplayName string `json:"display_name,omitempty" gorm:"-"`
	Avatar      string `json:"avatar,omitempty" gorm:"-"`
}

func (Participant) TableName() string { return "conversation_participants" }

// Active reports whether the participant is still a member
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// ParticipantSet keys participant state by user id, one entry per user
type ParticipantSet map[uuid.UUID]*Participant

// Admins returns the number of active admins
func (s ParticipantSet) Admins() int {
	n := 0
	for _, p := range s {
		if p.Active() && p.Role == MemberRoleAdmin {
			n++
		}
	}
	return n
}

// Oldest returns the active participant with the earliest join time, skipping exclude
func (s ParticipantSet) Oldest(exclude uuid.UUID) *Participant {
	var oldest *Participant
	for id, p := range s {
		if id == exclude || !p.Active() {
			continue
		}
		if oldest == nil || p.JoinedAt.Before(oldest.JoinedAt) ||
			(p.JoinedAt.Equal(oldest.JoinedAt) && p.UserID.String() < oldest.UserID.String()) {
			oldest = p
		}
	}
	return oldest
}

// Clone deep-copies the set
func (s ParticipantSet) Clone() ParticipantSet {
	out := make(ParticipantSet, len(s))
	for id, p := range s {
		cp := *p
		out[id] = &cp
	}
	return out
}

// ReadPointer identifies a message position for read tracking
type ReadPointer struct {
	MessageID uuid.UUID
	Seq       int64
}
