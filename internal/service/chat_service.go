package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/metrics"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/repository"
	"go.uber.org/zap"
)

// Notifier accepts notifications for asynchronous delivery. notify.Dispatcher
// implements it.
type Notifier interface {
	Enqueue(userID uuid.UUID, n model.Notification) bool
}

const (
	DefaultConversationPage = 20
	MaxConversationPage     = 100
	DefaultMessagePage      = 50
	MaxMessagePage          = 100
)

// errCannot is what callers see for conversations and messages they may not
// touch, whether or not the target exists.
var errCannot = apperr.Forbidden("You can't do that")

// ChatService orchestrates the conversation and message stores and produces
// notifications for message events
type ChatService struct {
	convs    repository.ConversationStore
	msgs     repository.MessageStore
	identity IdentityResolver
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewChatService(
	convs repository.ConversationStore,
	msgs repository.MessageStore,
	identity IdentityResolver,
	notifier Notifier,
	log *zap.Logger,
	m *metrics.Metrics,
) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		convs:    convs,
		msgs:     msgs,
		identity: identity,
		notifier: notifier,
		log:      log.Named("chat"),
		metrics:  m,
	}
}

// ========== Conversations ==========

// CreateConversation dispatches on the request type
func (s *ChatService) CreateConversation(ctx context.Context, creatorID uuid.UUID, req model.CreateConversationRequest) (*model.Conversation, error) {
	switch req.Type {
	case model.ConversationTypeDirect:
		peers := repository.DedupeExcluding(req.ParticipantIDs, creatorID)
		if len(peers) != 1 {
			return nil, apperr.InvalidArgument("a direct conversation needs exactly one other participant")
		}
		return s.CreateDirectConversation(ctx, creatorID, peers[0])
	case model.ConversationTypeGroup:
		return s.CreateGroupConversation(ctx, creatorID, req.Title, req.ParticipantIDs)
	default:
		return nil, apperr.InvalidArgument("unknown conversation type %q", req.Type)
	}
}

// CreateDirectConversation creates the conversation of an unordered pair.
// When it already exists the existing conversation is returned together with
// an AlreadyExists error.
func (s *ChatService) CreateDirectConversation(ctx context.Context, creatorID, peerID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.convs.CreateDirect(ctx, creatorID, peerID)
	if err != nil {
		return conv, err
	}
	s.log.Info("direct conversation created", zap.Stringer("conversation_id", conv.ID))
	return conv, nil
}

// CreateGroupConversation creates a group with the creator as its only admin
// and posts the opening system message
func (s *ChatService) CreateGroupConversation(ctx context.Context, creatorID uuid.UUID, title string, participantIDs []uuid.UUID) (*model.Conversation, error) {
	conv, err := s.convs.CreateGroup(ctx, creatorID, title, participantIDs)
	if err != nil {
		return nil, err
	}
	names := s.names(ctx, creatorID)
	s.postSystem(ctx, conv, creatorID, fmt.Sprintf("%s created the group", names[creatorID]))

	s.log.Info("group created",
		zap.Stringer("conversation_id", conv.ID),
		zap.Int("participants", len(conv.Participants)))
	return s.convs.Get(ctx, conv.ID)
}

// GetConversation returns the conversation as seen by userID
func (s *ChatService) GetConversation(ctx context.Context, convID, userID uuid.UUID) (*model.ConversationResponse, error) {
	conv, err := s.participantConversation(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.present(ctx, userID, []*model.Conversation{conv})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// ListConversations pages through the caller's visible conversations, most
// recently active first
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*model.ConversationListResponse, error) {
	limit = clampPage(limit, DefaultConversationPage, MaxConversationPage)
	convs, next, err := s.convs.ListForUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, err
	}
	out, err := s.present(ctx, userID, convs)
	if err != nil {
		return nil, err
	}
	return &model.ConversationListResponse{Conversations: out, NextCursor: next}, nil
}

// present adds the viewer's unread count, the last message and participant
// profiles. Direct conversations take the peer's name and avatar.
func (s *ChatService) present(ctx context.Context, viewerID uuid.UUID, convs []*model.Conversation) ([]model.ConversationResponse, error) {
	var userIDs, lastIDs []uuid.UUID
	for _, c := range convs {
		for id := range c.Participants {
			userIDs = append(userIDs, id)
		}
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}

	profiles, err := s.identity.Resolve(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	lasts, err := s.msgs.GetMany(ctx, lastIDs)
	if err != nil {
		return nil, err
	}

	out := make([]model.ConversationResponse, 0, len(convs))
	for _, c := range convs {
		for id, p := range c.Participants {
			p.DisplayName = profiles[id].DisplayName
			p.Avatar = profiles[id].Avatar
			if !c.IsGroup() && id != viewerID {
				c.Title = p.DisplayName
				c.ImageURL = p.Avatar
			}
		}
		resp := model.ConversationResponse{Conversation: *c}
		if p, ok := c.Participants[viewerID]; ok {
			resp.UnreadCount = p.UnreadCount
		}
		if c.LastMessageID != nil {
			if last, ok := lasts[*c.LastMessageID]; ok {
				resp.LastMessage = last.Presented()
			}
		}
		out = append(out, resp)
	}
	return out, nil
}

// UpdateGroupInfo changes group metadata; only admins may do it
func (s *ChatService) UpdateGroupInfo(ctx context.Context, convID, actorID uuid.UUID, req model.UpdateConversationRequest) (*model.Conversation, error) {
	conv, err := s.convs.UpdateGroupInfo(ctx, convID, actorID, repository.GroupInfo{
		Title:       req.Title,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		return nil, hideMissing(err)
	}
	if req.Title != nil {
		names := s.names(ctx, actorID)
		s.postSystem(ctx, conv, actorID, fmt.Sprintf("%s renamed the group to %q", names[actorID], conv.Title))
	}
	return conv, nil
}

// AddParticipant adds userID to a group; only admins may do it
func (s *ChatService) AddParticipant(ctx context.Context, convID, actorID, userID uuid.UUID) (*model.Conversation, error) {
	before, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, hideMissing(err)
	}
	conv, err := s.convs.AddParticipant(ctx, convID, actorID, userID)
	if err != nil {
		return nil, hideMissing(err)
	}
	if !before.IsActiveParticipant(userID) {
		names := s.names(ctx, actorID, userID)
		s.postSystem(ctx, conv, actorID, fmt.Sprintf("%s added %s", names[actorID], names[userID]))
	}
	return conv, nil
}

// RemoveParticipant removes userID from a group. Admins may remove anyone and
// members may remove themselves. The last admin leaving promotes the oldest
// remaining member; the last member leaving dissolves the group.
func (s *ChatService) RemoveParticipant(ctx context.Context, convID, actorID, userID uuid.UUID) error {
	res, err := s.convs.RemoveParticipant(ctx, convID, actorID, userID)
	if err != nil {
		return hideMissing(err)
	}

	if res.Dissolved {
		if err := s.msgs.TombstoneConversation(context.WithoutCancel(ctx), convID); err != nil {
			s.log.Error("tombstoning dissolved group failed", zap.Stringer("conversation_id", convID), zap.Error(err))
		}
		s.log.Info("group dissolved", zap.Stringer("conversation_id", convID))
		return nil
	}

	names := s.names(ctx, actorID, userID)
	if actorID == userID {
		s.postSystem(ctx, res.Conversation, actorID, fmt.Sprintf("%s left", names[userID]))
	} else {
		s.postSystem(ctx, res.Conversation, actorID, fmt.Sprintf("%s removed %s", names[actorID], names[userID]))
	}
	if res.PromotedUserID != nil {
		promoted := s.names(ctx, *res.PromotedUserID)
		s.postSystem(ctx, res.Conversation, actorID, fmt.Sprintf("%s is now an admin", promoted[*res.PromotedUserID]))
	}
	return nil
}

// SetRole changes a participant's role; only admins may do it
func (s *ChatService) SetRole(ctx context.Context, convID, actorID, userID uuid.UUID, role model.MemberRole) error {
	return hideMissing(s.convs.SetRole(ctx, convID, actorID, userID, role))
}

// ArchiveConversation hides the conversation for userID until the next message
func (s *ChatService) ArchiveConversation(ctx context.Context, convID, userID uuid.UUID) error {
	return hideMissing(s.convs.Archive(ctx, convID, userID))
}

// ========== Messages ==========

// SendMessage appends a message and fans it out. Once the append succeeded
// the message is returned even if the follow-up bookkeeping fails; the
// reconciler repairs what was missed.
func (s *ChatService) SendMessage(ctx context.Context, convID, senderID uuid.UUID, req model.SendMessageRequest) (*model.Message, error) {
	conv, err := s.participantConversation(ctx, convID, senderID)
	if err != nil {
		return nil, err
	}

	msgType := req.MessageType
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if msgType == model.MessageTypeSystem {
		return nil, apperr.InvalidArgument("system messages cannot be sent")
	}

	msg, err := s.msgs.Append(ctx, repository.AppendParams{
		ConversationID: convID,
		SenderID:       &senderID,
		Content:        req.Content,
		Type:           msgType,
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.MessageSent(string(msgType))

	s.afterAppend(context.WithoutCancel(ctx), conv, msg, senderID)

	if err := s.attachReply(ctx, msg); err != nil {
		s.log.Warn("reply preview unavailable", zap.Stringer("message_id", msg.ID), zap.Error(err))
	}
	return msg.Presented(), nil
}

// afterAppend advances the last-message pointer and unread counters and
// queues notifications for everyone but actorID, who caused the message.
// Failures are logged, never returned.
func (s *ChatService) afterAppend(ctx context.Context, conv *model.Conversation, msg *model.Message, actorID uuid.UUID) {
	log := s.log.With(zap.Stringer("conversation_id", conv.ID), zap.Int64("seq", msg.Seq))

	if err := s.convs.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.Seq, msg.CreatedAt); err != nil {
		log.Error("updating last message failed", zap.Error(err))
	}

	var senderID uuid.UUID
	if msg.SenderID != nil {
		senderID = *msg.SenderID
		if err := s.convs.IncrementUnread(ctx, conv.ID, senderID, msg.Seq); err != nil {
			log.Error("incrementing unread failed", zap.Error(err))
		}
		// the sender has read everything up to their own message
		ptr := model.ReadPointer{MessageID: msg.ID, Seq: msg.Seq}
		if _, err := s.convs.MarkRead(ctx, conv.ID, senderID, ptr); err != nil && !errors.Is(err, apperr.ErrInvalidArgument) {
			log.Warn("advancing sender read pointer failed", zap.Error(err))
		}
	}

	n := model.Notification{
		Type:           model.NotificationMessage,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		CreatedAt:      msg.CreatedAt,
		Preview:        &model.NotificationPreview{Content: msg.Content, Type: msg.Type},
	}
	if msg.SenderID != nil {
		n.Preview.SenderName = s.names(ctx, senderID)[senderID]
	}
	s.fanOut(conv, actorID, n)
}

// fanOut queues n for every active participant except skip
func (s *ChatService) fanOut(conv *model.Conversation, skip uuid.UUID, n model.Notification) {
	if s.notifier == nil {
		return
	}
	for _, id := range conv.ActiveParticipantIDs() {
		if id == skip {
			continue
		}
		s.notifier.Enqueue(id, n)
	}
}

// postSystem appends a service notice about a change made by actorID. It is
// best effort: the membership change it describes has already happened.
func (s *ChatService) postSystem(ctx context.Context, conv *model.Conversation, actorID uuid.UUID, text string) {
	ctx = context.WithoutCancel(ctx)
	msg, err := s.msgs.Append(ctx, repository.AppendParams{
		ConversationID: conv.ID,
		Content:        text,
		Type:           model.MessageTypeSystem,
	})
	if err != nil {
		s.log.Warn("posting system message failed", zap.Stringer("conversation_id", conv.ID), zap.Error(err))
		return
	}
	s.metrics.MessageSent(string(model.MessageTypeSystem))
	s.afterAppend(ctx, conv, msg, actorID)
}

// ListMessages pages backward through a conversation, newest first
func (s *ChatService) ListMessages(ctx context.Context, convID, userID uuid.UUID, before int64, limit int) (*model.MessageListResponse, error) {
	if _, err := s.participantConversation(ctx, convID, userID); err != nil {
		return nil, err
	}
	if before < 0 {
		return nil, apperr.InvalidArgument("before must not be negative")
	}
	limit = clampPage(limit, DefaultMessagePage, MaxMessagePage)

	page, err := s.msgs.ListByConversation(ctx, convID, before, limit)
	if err != nil {
		return nil, err
	}

	var replyIDs []uuid.UUID
	for _, m := range page {
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}
	targets, err := s.msgs.GetMany(ctx, replyIDs)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Message, len(page))
	for i, m := range page {
		if m.ReplyToID != nil {
			if t, ok := targets[*m.ReplyToID]; ok {
				m.ReplyTo = model.PreviewOf(t)
			}
		}
		out[i] = m.Presented()
	}

	resp := &model.MessageListResponse{Messages: out}
	if len(page) == limit && page[len(page)-1].Seq > 1 {
		resp.NextBefore = page[len(page)-1].Seq
	}
	return resp, nil
}

// EditMessage replaces the content of the caller's own message
func (s *ChatService) EditMessage(ctx context.Context, messageID, editorID uuid.UUID, content string) (*model.Message, error) {
	_, conv, err := s.participantMessage(ctx, messageID, editorID)
	if err != nil {
		return nil, err
	}
	msg, err := s.msgs.Edit(ctx, messageID, editorID, content)
	if err != nil {
		return nil, err
	}
	s.fanOut(conv, editorID, updatedNotification(msg))
	if err := s.attachReply(ctx, msg); err != nil {
		s.log.Warn("reply preview unavailable", zap.Stringer("message_id", msg.ID), zap.Error(err))
	}
	return msg.Presented(), nil
}

// DeleteMessage tombstones the caller's own message. Deleting twice is a no-op.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, actorID uuid.UUID) error {
	before, conv, err := s.participantMessage(ctx, messageID, actorID)
	if err != nil {
		return err
	}
	msg, err := s.msgs.Delete(ctx, messageID, actorID)
	if err != nil {
		return err
	}
	if !before.IsDeleted {
		s.fanOut(conv, actorID, updatedNotification(msg))
	}
	return nil
}

// React sets the caller's reaction, replacing any previous one
func (s *ChatService) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*model.Message, error) {
	if _, _, err := s.participantMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}
	msg, err := s.msgs.SetReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	return msg.Presented(), nil
}

// Unreact clears the caller's reaction
func (s *ChatService) Unreact(ctx context.Context, messageID, userID uuid.UUID) error {
	if _, _, err := s.participantMessage(ctx, messageID, userID); err != nil {
		return err
	}
	_, err := s.msgs.ClearReaction(ctx, messageID, userID)
	return err
}

// MarkRead moves the caller's read pointer to messageID and returns how many
// messages remain unread. Moving the pointer backward is rejected.
func (s *ChatService) MarkRead(ctx context.Context, convID, userID, messageID uuid.UUID) (int, error) {
	if _, err := s.participantConversation(ctx, convID, userID); err != nil {
		return 0, err
	}
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, apperr.InvalidArgument("message does not belong to this conversation")
		}
		return 0, err
	}
	if msg.ConversationID != convID {
		return 0, apperr.InvalidArgument("message does not belong to this conversation")
	}
	return s.convs.MarkRead(ctx, convID, userID, model.ReadPointer{MessageID: msg.ID, Seq: msg.Seq})
}

// ParticipantIDs returns the active participants of a conversation the caller belongs to
func (s *ChatService) ParticipantIDs(ctx context.Context, convID, userID uuid.UUID) ([]uuid.UUID, error) {
	conv, err := s.participantConversation(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	return conv.ActiveParticipantIDs(), nil
}

// ========== helpers ==========

func (s *ChatService) participantConversation(ctx context.Context, convID, userID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.convs.Get(ctx, convID)
	if err != nil {
		return nil, hideMissing(err)
	}
	if !conv.IsActiveParticipant(userID) {
		return nil, errCannot
	}
	return conv, nil
}

func (s *ChatService) participantMessage(ctx context.Context, messageID, userID uuid.UUID) (*model.Message, *model.Conversation, error) {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, nil, hideMissing(err)
	}
	conv, err := s.participantConversation(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

func (s *ChatService) attachReply(ctx context.Context, msg *model.Message) error {
	if msg.ReplyToID == nil {
		return nil
	}
	target, err := s.msgs.Get(ctx, *msg.ReplyToID)
	if err != nil {
		return err
	}
	msg.ReplyTo = model.PreviewOf(target)
	return nil
}

// names resolves display names, falling back to the unknown-user name
func (s *ChatService) names(ctx context.Context, ids ...uuid.UUID) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(ids))
	profiles, err := s.identity.Resolve(ctx, ids)
	if err != nil {
		s.log.Warn("resolving identities failed", zap.Error(err))
	}
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			out[id] = p.DisplayName
		} else {
			out[id] = model.UnknownProfile(id).DisplayName
		}
	}
	return out
}

func updatedNotification(msg *model.Message) model.Notification {
	return model.Notification{
		Type:           model.NotificationMessageUpdated,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		CreatedAt:      time.Now().UTC(),
	}
}

// hideMissing turns not-found into the generic forbidden error so callers
// cannot probe for conversations they do not belong to
func hideMissing(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return errCannot
	}
	return err
}

func clampPage(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
