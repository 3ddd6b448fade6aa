package notification

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/model"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const previewLimit = 120

// DeviceStore is where push registrations live
type DeviceStore interface {
	GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error)
	DeleteDevicesByToken(ctx context.Context, tokens []string) error
}

// ProfileSource resolves display names and notification settings
type ProfileSource interface {
	Resolve(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, error)
}

// Multicaster is the part of the FCM client the sink uses
type Multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// PushSink sends FCM push notifications for new messages. Updates and
// service notices are left to the realtime sink.
type PushSink struct {
	client   Multicaster
	devices  DeviceStore
	profiles ProfileSource
	log      *zap.Logger
}

// NewFCMClient initializes Firebase messaging from a service account file.
// It returns nil when no credentials are configured.
func NewFCMClient(ctx context.Context, credentialsFile string) (*messaging.Client, error) {
	if credentialsFile == "" {
		return nil, nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return client, nil
}

func NewPushSink(client Multicaster, devices DeviceStore, profiles ProfileSource, log *zap.Logger) *PushSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &PushSink{client: client, devices: devices, profiles: profiles, log: log.Named("push")}
}

func (s *PushSink) Name() string { return "push" }

// Notify pushes a new-message notification to all of userID's devices,
// honoring the user's notification setting
func (s *PushSink) Notify(ctx context.Context, userID uuid.UUID, n model.Notification) error {
	if n.Type != model.NotificationMessage || n.SenderID == nil {
		return nil
	}

	profiles, err := s.profiles.Resolve(ctx, []uuid.UUID{userID})
	if err != nil {
		return err
	}
	if !profiles[userID].NotificationsEnabled {
		return nil
	}

	devices, err := s.devices.GetUserDevices(ctx, userID)
	if err != nil {
		return err
	}
	tokens := model.PushTokens(devices)
	if len(tokens) == 0 {
		return nil
	}

	br, err := s.client.SendEachForMulticast(ctx, buildMessage(tokens, n))
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}
	if br.FailureCount > 0 {
		s.prune(ctx, tokens, br)
	}
	return nil
}

// prune drops tokens FCM no longer recognizes and logs the other failures
func (s *PushSink) prune(ctx context.Context, tokens []string, br *messaging.BatchResponse) {
	var dead []string
	for i, resp := range br.Responses {
		if resp.Success {
			continue
		}
		if messaging.IsUnregistered(resp.Error) {
			dead = append(dead, tokens[i])
			continue
		}
		s.log.Warn("fcm delivery failed", zap.Error(resp.Error))
	}
	if err := s.devices.DeleteDevicesByToken(ctx, dead); err != nil {
		s.log.Warn("pruning dead tokens failed", zap.Error(err))
	}
}

func buildMessage(tokens []string, n model.Notification) *messaging.MulticastMessage {
	title, body := "New message", ""
	if p := n.Preview; p != nil {
		if p.SenderName != "" {
			title = p.SenderName
		}
		body = previewBody(p)
	}

	data := map[string]string{
		"type":            string(n.Type),
		"conversation_id": n.ConversationID.String(),
		"message_id":      n.MessageID.String(),
		"created_at":      n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if n.SenderID != nil {
		data["sender_id"] = n.SenderID.String()
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ClickAction: "FLUTTER_NOTIFICATION_CLICK",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

func previewBody(p *model.NotificationPreview) string {
	switch p.Type {
	case model.MessageTypeImage:
		return "Sent a photo"
	case model.MessageTypeVideo:
		return "Sent a video"
	}
	body := []rune(p.Content)
	if len(body) > previewLimit {
		return string(body[:previewLimit-1]) + "…"
	}
	return string(body)
}
