package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is the kind of event pushed to a recipient
type NotificationType string

const (
	NotificationMessage        NotificationType = "message"
	NotificationMessageUpdated NotificationType = "message_updated"
)

// Notification is the payload handed to the notification sink for one recipient
type Notification struct {
	Type           NotificationType `json:"type"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	MessageID      uuid.UUID        `json:"message_id"`
	SenderID       *uuid.UUID       `json:"sender_id"`
	CreatedAt      time.Time        `json:"created_at"`

	// Preview carries the sender's display name and content for push sinks.
	// Realtime clients re-fetch the message instead.
	Preview *NotificationPreview `json:"-"`
}

// NotificationPreview is the human-readable part of a push notification
type NotificationPreview struct {
	SenderName string
	Content    string
	Type       MessageType
}
