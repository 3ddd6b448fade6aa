package model

import (
	"time"

	"github.com/google/uuid"
)

// ========== Conversation DTOs ==========

type CreateConversationRequest struct {
	Type           ConversationType `json:"type" binding:"required,oneof=direct group"`
	Title          string           `json:"title" binding:"max=100"` // required for group
	ParticipantIDs []uuid.UUID      `json:"participant_ids" binding:"required,min=1"`
}

type UpdateConversationRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=100"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	ImageURL    *string `json:"image_url" binding:"omitempty,max=500"`
}

type AddParticipantRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type SetRoleRequest struct {
	Role MemberRole `json:"role" binding:"required,oneof=admin member"`
}

type ConversationListRequest struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=20"`
}

// ConversationResponse is a conversation as seen by one participant
type ConversationResponse struct {
	Conversation
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	NextCursor    string                 `json:"next_cursor,omitempty"`
}

// ConflictResponse is returned when a direct conversation already exists
type ConflictResponse struct {
	Error          string    `json:"error"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// ========== Message DTOs ==========

type SendMessageRequest struct {
	Content     string      `json:"content" binding:"required,max=10000"`
	MessageType MessageType `json:"message_type" binding:"omitempty,oneof=text image video"`
	ReplyToID   *uuid.UUID  `json:"reply_to_id"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

type MarkReadRequest struct {
	MessageID uuid.UUID `json:"message_id" binding:"required"`
}

type MarkReadResponse struct {
	UnreadCount int `json:"unread_count"`
}

type MessageListRequest struct {
	Before int64 `form:"before"` // cursor: sequence number to page back from, 0 = newest
	Limit  int   `form:"limit,default=50"`
}

type MessageListResponse struct {
	Messages   []*Message `json:"messages"`
	NextBefore int64      `json:"next_before,omitempty"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocket event types
const (
	WSEventMessage        = string(NotificationMessage)
	WSEventMessageUpdated = string(NotificationMessageUpdated)
	WSEventTyping         = "typing"
	WSEventStopTyping     = "stop_typing"
	WSEventRead           = "read"
	WSEventOnline         = "online"
	WSEventOffline        = "offline"
)

type TypingEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
}

type OnlineEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	IsOnline bool      `json:"is_online"`
}

type ReadEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
