package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/model"
)

// ConversationStore is the durable table of conversations, membership and read state
type ConversationStore interface {
	CreateDirect(ctx context.Context, userA, userB uuid.UUID) (*model.Conversation, error)
	CreateGroup(ctx context.Context, creatorID uuid.UUID, title string, participantIDs []uuid.UUID) (*model.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	AddParticipant(ctx context.Context, convID, actorID, userID uuid.UUID) (*model.Conversation, error)
	RemoveParticipant(ctx context.Context, convID, actorID, userID uuid.UUID) (*RemovalResult, error)
	SetRole(ctx context.Context, convID, actorID, userID uuid.UUID, role model.MemberRole) error
	UpdateGroupInfo(ctx context.Context, convID, actorID uuid.UUID, info GroupInfo) (*model.Conversation, error)
	UpdateLastMessage(ctx context.Context, convID, messageID uuid.UUID, seq int64, at time.Time) error
	IncrementUnread(ctx context.Context, convID, exceptUserID uuid.UUID, seq int64) error
	MarkRead(ctx context.Context, convID, userID uuid.UUID, ptr model.ReadPointer) (int, error)
	RecountUnread(ctx context.Context, convID uuid.UUID) error
	Archive(ctx context.Context, convID, userID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]*model.Conversation, string, error)
	ScanIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
}

// MessageStore is the append-mostly message log
type MessageStore interface {
	Append(ctx context.Context, p AppendParams) (*model.Message, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Message, error)
	Edit(ctx context.Context, id, editorID uuid.UUID, content string) (*model.Message, error)
	Delete(ctx context.Context, id, actorID uuid.UUID) (*model.Message, error)
	SetReaction(ctx context.Context, id, userID uuid.UUID, emoji string) (*model.Message, error)
	ClearReaction(ctx context.Context, id, userID uuid.UUID) (*model.Message, error)
	ListByConversation(ctx context.Context, convID uuid.UUID, beforeSeq int64, limit int) ([]*model.Message, error)
	Latest(ctx context.Context, convID uuid.UUID) (*model.Message, error)
	CountUnread(ctx context.Context, convID uuid.UUID, afterSeq int64, userID uuid.UUID) (int, error)
	TombstoneConversation(ctx context.Context, convID uuid.UUID) error
}

// UserStore is the read side of the identity system
type UserStore interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error)
	GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error)
}

// AppendParams describes a message to append. A nil SenderID marks a system message.
type AppendParams struct {
	ConversationID uuid.UUID
	SenderID       *uuid.UUID
	Content        string
	Type           model.MessageType
	ReplyToID      *uuid.UUID
}

// GroupInfo holds optional group metadata updates; nil fields are left unchanged
type GroupInfo struct {
	Title       *string
	Description *string
	ImageURL    *string
}

// RemovalResult reports the side effects of removing a participant
type RemovalResult struct {
	Conversation *model.Conversation
	// PromotedUserID is set when the last admin left and another member was promoted
	PromotedUserID *uuid.UUID
	// Dissolved is set when nobody is left in the group
	Dissolved bool
}
