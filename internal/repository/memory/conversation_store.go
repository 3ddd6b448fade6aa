package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/repository"
)

// ConversationStore holds conversations and participant state in maps under
// one mutex. It reads the linked MessageStore for unread counts, which is
// allowed by the MessageStore lock order.
type ConversationStore struct {
	mu     sync.RWMutex
	convs  map[uuid.UUID]*model.Conversation
	direct map[string]uuid.UUID

	messages *MessageStore
}

func newConversationStore(messages *MessageStore) *ConversationStore {
	return &ConversationStore{
		convs:    make(map[uuid.UUID]*model.Conversation),
		direct:   make(map[string]uuid.UUID),
		messages: messages,
	}
}

func (s *ConversationStore) isLive(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	return ok && c.DissolvedAt == nil
}

func clone(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Participants = c.Participants.Clone()
	return &cp
}

// live returns the stored conversation; callers hold s.mu
func (s *ConversationStore) live(id uuid.UUID) (*model.Conversation, error) {
	c, ok := s.convs[id]
	if !ok || c.DissolvedAt != nil {
		return nil, apperr.NotFound("conversation not found")
	}
	return c, nil
}

func (s *ConversationStore) CreateDirect(_ context.Context, userA, userB uuid.UUID) (*model.Conversation, error) {
	if userA == userB {
		return nil, apperr.InvalidArgument("a direct conversation needs two different users")
	}
	key := model.DirectKey(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.direct[key]; ok {
		return clone(s.convs[id]), apperr.AlreadyExists("direct conversation already exists")
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:            uuid.New(),
		Type:          model.ConversationTypeDirect,
		DirectKey:     &key,
		CreatorID:     &userA,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Participants: model.ParticipantSet{
			userA: {ConversationID: uuid.Nil, UserID: userA, Role: model.MemberRoleMember, JoinedAt: now},
			userB: {ConversationID: uuid.Nil, UserID: userB, Role: model.MemberRoleMember, JoinedAt: now},
		},
	}
	for _, p := range conv.Participants {
		p.ConversationID = conv.ID
	}
	s.convs[conv.ID] = conv
	s.direct[key] = conv.ID
	return clone(conv), nil
}

func (s *ConversationStore) CreateGroup(_ context.Context, creatorID uuid.UUID, title string, participantIDs []uuid.UUID) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.InvalidArgument("a group needs a title")
	}
	others := repository.DedupeExcluding(participantIDs, creatorID)
	if len(others) < 1 {
		return nil, apperr.InvalidArgument("a group needs at least one other participant")
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:            uuid.New(),
		Type:          model.ConversationTypeGroup,
		Title:         title,
		CreatorID:     &creatorID,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
		Participants:  model.ParticipantSet{},
	}
	conv.Participants[creatorID] = &model.Participant{
		ConversationID: conv.ID, UserID: creatorID, Role: model.MemberRoleAdmin, JoinedAt: now,
	}
	for _, id := range others {
		conv.Participants[id] = &model.Participant{
			ConversationID: conv.ID, UserID: id, Role: model.MemberRoleMember, JoinedAt: now,
		}
	}

	s.mu.Lock()
	s.convs[conv.ID] = conv
	s.mu.Unlock()
	return clone(conv), nil
}

func (s *ConversationStore) Get(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return clone(c), nil
}

func (s *ConversationStore) AddParticipant(_ context.Context, convID, actorID, userID uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.live(convID)
	if err != nil {
		return nil, err
	}
	if err := repository.RequireGroupAdmin(c, actorID); err != nil {
		return nil, err
	}

	if p, ok := c.Participants[userID]; ok && p.Active() {
		return clone(c), nil
	}
	now := time.Now().UTC()
	c.Participants[userID] = &model.Participant{
		ConversationID:    convID,
		UserID:            userID,
		Role:              model.MemberRoleMember,
		JoinedAt:          now,
		LastReadSeq:       c.LastMessageSeq,
		LastReadMessageID: c.LastMessageID,
	}
	c.UpdatedAt = now
	return clone(c), nil
}

func (s *ConversationStore) RemoveParticipant(_ context.Context, convID, actorID, userID uuid.UUID) (*repository.RemovalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.live(convID)
	if err != nil {
		return nil, err
	}
	if err := repository.AuthorizeRemoval(c, actorID, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	target := c.Participants[userID]
	wasAdmin := target.Role == model.MemberRoleAdmin
	target.LeftAt = &now
	target.Role = model.MemberRoleMember
	c.UpdatedAt = now

	result := &repository.RemovalResult{}
	if next := c.Participants.Oldest(userID); next == nil {
		c.DissolvedAt = &now
		result.Dissolved = true
		s.messages.closeLog(convID)
	} else if wasAdmin && c.Participants.Admins() == 0 {
		next.Role = model.MemberRoleAdmin
		promoted := next.UserID
		result.PromotedUserID = &promoted
	}
	result.Conversation = clone(c)
	return result, nil
}

func (s *ConversationStore) SetRole(_ context.Context, convID, actorID, userID uuid.UUID, role model.MemberRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.live(convID)
	if err != nil {
		return err
	}
	if err := repository.CheckRoleChange(c, actorID, userID, role); err != nil {
		return err
	}
	c.Participants[userID].Role = role
	return nil
}

func (s *ConversationStore) UpdateGroupInfo(_ context.Context, convID, actorID uuid.UUID, info repository.GroupInfo) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.live(convID)
	if err != nil {
		return nil, err
	}
	if err := repository.RequireGroupAdmin(c, actorID); err != nil {
		return nil, err
	}
	if info.Title != nil {
		title := strings.TrimSpace(*info.Title)
		if title == "" {
			return nil, apperr.InvalidArgument("a group needs a title")
		}
		c.Title = title
	}
	if info.Description != nil {
		c.Description = *info.Description
	}
	if info.ImageURL != nil {
		c.ImageURL = *info.ImageURL
	}
	c.UpdatedAt = time.Now().UTC()
	return clone(c), nil
}

func (s *ConversationStore) UpdateLastMessage(_ context.Context, convID, messageID uuid.UUID, seq int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	if seq <= c.LastMessageSeq {
		return nil
	}
	id := messageID
	c.LastMessageID = &id
	c.LastMessageSeq = seq
	c.LastMessageAt = at
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// IncrementUnread recounts instead of adding one, so a MarkRead that lands
// between the append and this call is not counted twice.
func (s *ConversationStore) IncrementUnread(ctx context.Context, convID, exceptUserID uuid.UUID, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	for id, p := range c.Participants {
		if id == exceptUserID || !p.Active() || p.LastReadSeq >= seq {
			continue
		}
		n, err := s.messages.CountUnread(ctx, convID, p.LastReadSeq, id)
		if err != nil {
			return err
		}
		p.UnreadCount = n
		p.ArchivedAt = nil
	}
	return nil
}

func (s *ConversationStore) MarkRead(ctx context.Context, convID, userID uuid.UUID, ptr model.ReadPointer) (int, error) {
	msg, err := s.messages.Get(ctx, ptr.MessageID)
	if err != nil || msg.ConversationID != convID || msg.Seq != ptr.Seq {
		return 0, apperr.InvalidArgument("message does not belong to this conversation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.live(convID)
	if err != nil {
		return 0, err
	}
	p, ok := c.Participants[userID]
	if !ok || !p.Active() {
		return 0, apperr.NotFound("participant not found")
	}

	switch {
	case ptr.Seq > p.LastReadSeq:
		remaining, err := s.messages.CountUnread(ctx, convID, ptr.Seq, userID)
		if err != nil {
			return 0, err
		}
		id := ptr.MessageID
		p.LastReadMessageID = &id
		p.LastReadSeq = ptr.Seq
		p.UnreadCount = remaining
		return remaining, nil
	case ptr.Seq == p.LastReadSeq:
		return p.UnreadCount, nil
	default:
		return p.UnreadCount, apperr.InvalidArgument("read pointer cannot move backward")
	}
}

func (s *ConversationStore) RecountUnread(ctx context.Context, convID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	for id, p := range c.Participants {
		if !p.Active() {
			continue
		}
		n, err := s.messages.CountUnread(ctx, convID, p.LastReadSeq, id)
		if err != nil {
			return err
		}
		p.UnreadCount = n
	}
	return nil
}

func (s *ConversationStore) Archive(_ context.Context, convID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.live(convID)
	if err != nil {
		return err
	}
	p, ok := c.Participants[userID]
	if !ok || !p.Active() {
		return apperr.NotFound("participant not found")
	}
	now := time.Now().UTC()
	p.ArchivedAt = &now
	return nil
}

func (s *ConversationStore) ListForUser(_ context.Context, userID uuid.UUID, cursor string, limit int) ([]*model.Conversation, string, error) {
	cur, err := repository.DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	var visible []*model.Conversation
	for _, c := range s.convs {
		if c.DissolvedAt != nil {
			continue
		}
		p, ok := c.Participants[userID]
		if !ok || !p.Active() || p.ArchivedAt != nil {
			continue
		}
		if cur != nil && !cur.Before(c.LastMessageAt, c.ID) {
			continue
		}
		visible = append(visible, clone(c))
	}
	s.mu.RUnlock()

	sort.Slice(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.ID.String() > b.ID.String()
	})

	next := ""
	if len(visible) > limit {
		visible = visible[:limit]
		last := visible[len(visible)-1]
		next = repository.EncodeCursor(repository.ListCursor{LastMessageAt: last.LastMessageAt, ID: last.ID})
	}
	return visible, next, nil
}

func (s *ConversationStore) ScanIDs(_ context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.convs))
	for id, c := range s.convs {
		if c.DissolvedAt == nil && id.String() > afterID.String() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
