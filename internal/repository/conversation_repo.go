package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository is the PostgreSQL ConversationStore
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateDirect creates the direct conversation of an unordered pair, or
// returns the existing one together with an AlreadyExists error.
func (r *ConversationRepository) CreateDirect(ctx context.Context, userA, userB uuid.UUID) (*model.Conversation, error) {
	if userA == userB {
		return nil, apperr.InvalidArgument("a direct conversation needs two different users")
	}

	key := model.DirectKey(userA, userB)
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:            uuid.New(),
		Type:          model.ConversationTypeDirect,
		DirectKey:     &key,
		CreatorID:     &userA,
		LastMessageAt: now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		members := []model.Participant{
			{ConversationID: conv.ID, UserID: userA, Role: model.MemberRoleMember, JoinedAt: now},
			{ConversationID: conv.ID, UserID: userB, Role: model.MemberRoleMember, JoinedAt: now},
		}
		return tx.Create(&members).Error
	})
	if isUniqueViolation(err) {
		existing, ferr := r.findDirect(ctx, key)
		if ferr != nil {
			return nil, ferr
		}
		return existing, apperr.AlreadyExists("direct conversation already exists")
	}
	if err != nil {
		return nil, wrap(err, "create direct conversation")
	}

	return r.Get(ctx, conv.ID)
}

func (r *ConversationRepository) findDirect(ctx context.Context, key string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).Where("direct_key = ?", key).First(&conv).Error; err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if err := r.loadParticipants(r.db.WithContext(ctx), []*model.Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a group with the creator as its sole admin
func (r *ConversationRepository) CreateGroup(ctx context.Context, creatorID uuid.UUID, title string, participantIDs []uuid.UUID) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.InvalidArgument("a group needs a title")
	}
	others := DedupeExcluding(participantIDs, creatorID)
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
	}

	members := make([]model.Participant, 0, len(others)+1)
	members = append(members, model.Participant{
		ConversationID: conv.ID, UserID: creatorID, Role: model.MemberRoleAdmin, JoinedAt: now,
	})
	for _, id := range others {
		members = append(members, model.Participant{
			ConversationID: conv.ID, UserID: id, Role: model.MemberRoleMember, JoinedAt: now,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, wrap(err, "create group conversation")
	}

	return r.Get(ctx, conv.ID)
}

// Get finds a live conversation by ID with its participants
func (r *ConversationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	db := r.db.WithContext(ctx)
	var conv model.Conversation
	if err := db.Where("id = ? AND dissolved_at IS NULL", id).First(&conv).Error; err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if err := r.loadParticipants(db, []*model.Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

// lockForUpdate loads a conversation row under SELECT ... FOR UPDATE so
// membership changes on one conversation are serialized.
func (r *ConversationRepository) lockForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Conversation, error) {
	var conv model.Conversation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND dissolved_at IS NULL", id).
		First(&conv).Error
	if err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if err := r.loadParticipants(tx, []*model.Conversation{&conv}); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) loadParticipants(db *gorm.DB, convs []*model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(convs))
	byID := make(map[uuid.UUID]*model.Conversation, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
		c.Participants = model.ParticipantSet{}
		byID[c.ID] = c
	}

	var rows []model.Participant
	if err := db.Where("conversation_id IN ?", ids).Find(&rows).Error; err != nil {
		return apperr.Internal(err, "load participants")
	}
	for i := range rows {
		p := rows[i]
		byID[p.ConversationID].Participants[p.UserID] = &p
	}
	return nil
}

// AddParticipant adds userID to a group. Only admins may add members; a
// previously departed member is reactivated with an empty unread state.
func (r *ConversationRepository) AddParticipant(ctx context.Context, convID, actorID, userID uuid.UUID) (*model.Conversation, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := r.lockForUpdate(tx, convID)
		if err != nil {
			return err
		}
		if err := RequireGroupAdmin(conv, actorID); err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing, ok := conv.Participants[userID]; ok {
			if existing.Active() {
				return nil
			}
			return tx.Model(&model.Participant{}).
				Where("conversation_id = ? AND user_id = ?", convID, userID).
				Updates(map[string]interface{}{
					"left_at":              nil,
					"archived_at":          nil,
					"role":                 model.MemberRoleMember,
					"joined_at":            now,
					"last_read_seq":        conv.LastMessageSeq,
					"last_read_message_id": conv.LastMessageID,
					"unread_count":         0,
				}).Error
		}

		return tx.Create(&model.Participant{
			ConversationID:    convID,
			UserID:            userID,
			Role:              model.MemberRoleMember,
			JoinedAt:          now,
			LastReadSeq:       conv.LastMessageSeq,
			LastReadMessageID: conv.LastMessageID,
		}).Error
	})
	if err != nil {
		return nil, wrap(err, "add participant")
	}
	return r.Get(ctx, convID)
}

// RemoveParticipant removes userID from a group. Admins may remove anyone;
// members may only remove themselves (leave). When the last admin leaves the
// oldest remaining member is promoted; when nobody remains the group dissolves.
func (r *ConversationRepository) RemoveParticipant(ctx context.Context, convID, actorID, userID uuid.UUID) (*RemovalResult, error) {
	result := &RemovalResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := r.lockForUpdate(tx, convID)
		if err != nil {
			return err
		}
		if err := AuthorizeRemoval(conv, actorID, userID); err != nil {
			return err
		}

		target := conv.Participants[userID]
		wasAdmin := target.Role == model.MemberRoleAdmin
		now := time.Now().UTC()

		if err := tx.Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ?", convID, userID).
			Updates(map[string]interface{}{"left_at": now, "role": model.MemberRoleMember}).Error; err != nil {
			return err
		}
		target.LeftAt = &now
		target.Role = model.MemberRoleMember

		if next := conv.Participants.Oldest(userID); next == nil {
			if err := tx.Model(&model.Conversation{}).Where("id = ?", convID).
				Updates(map[string]interface{}{"dissolved_at": now, "updated_at": now}).Error; err != nil {
				return err
			}
			conv.DissolvedAt = &now
			result.Dissolved = true
		} else if wasAdmin && conv.Participants.Admins() == 0 {
			if err := tx.Model(&model.Participant{}).
				Where("conversation_id = ? AND user_id = ?", convID, next.UserID).
				Update("role", model.MemberRoleAdmin).Error; err != nil {
				return err
			}
			next.Role = model.MemberRoleAdmin
			promoted := next.UserID
			result.PromotedUserID = &promoted
		}

		result.Conversation = conv
		return nil
	})
	if err != nil {
		return nil, wrap(err, "remove participant")
	}
	return result, nil
}

// SetRole changes a member's role. A group always keeps at least one admin.
func (r *ConversationRepository) SetRole(ctx context.Context, convID, actorID, userID uuid.UUID, role model.MemberRole) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := r.lockForUpdate(tx, convID)
		if err != nil {
			return err
		}
		if err := CheckRoleChange(conv, actorID, userID, role); err != nil {
			return err
		}
		return tx.Model(&model.Participant{}).
			Where("conversation_id = ? AND user_id = ?", convID, userID).
			Update("role", role).Error
	})
	return wrap(err, "set role")
}

// UpdateGroupInfo updates title/description/image of a group (admins only)
func (r *ConversationRepository) UpdateGroupInfo(ctx context.Context, convID, actorID uuid.UUID, info GroupInfo) (*model.Conversation, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := r.lockForUpdate(tx, convID)
		if err != nil {
			return err
		}
		if err := RequireGroupAdmin(conv, actorID); err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if info.Title != nil {
			title := strings.TrimSpace(*info.Title)
			if title == "" {
				return apperr.InvalidArgument("a group needs a title")
			}
			updates["title"] = title
		}
		if info.Description != nil {
			updates["description"] = *info.Description
		}
		if info.ImageURL != nil {
			updates["image_url"] = *info.ImageURL
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", convID).Updates(updates).Error
	})
	if err != nil {
		return nil, wrap(err, "update group info")
	}
	return r.Get(ctx, convID)
}

// UpdateLastMessage advances the denormalized last-message pointer. The
// pointer only moves forward, so out-of-order callers cannot regress it.
func (r *ConversationRepository) UpdateLastMessage(ctx context.Context, convID, messageID uuid.UUID, seq int64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND last_message_seq < ?", convID, seq).
		Updates(map[string]interface{}{
			"last_message_id":  messageID,
			"last_message_seq": seq,
			"last_message_at":  at,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return apperr.Internal(res.Error, "update last message")
	}
	if res.RowsAffected == 0 {
		return r.exists(ctx, convID)
	}
	return nil
}

func (r *ConversationRepository) exists(ctx context.Context, convID uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", convID).Count(&count).Error; err != nil {
		return apperr.Internal(err, "load conversation")
	}
	if count == 0 {
		return apperr.NotFound("conversation not found")
	}
	return nil
}

// IncrementUnread refreshes the unread count of every active participant
// except the sender and brings archived conversations back into their lists.
// Participants whose read pointer already covers seq are skipped. The count
// is recomputed from the read pointer rather than incremented, so a read
// racing the send cannot leave it one too high.
func (r *ConversationRepository) IncrementUnread(ctx context.Context, convID, exceptUserID uuid.UUID, seq int64) error {
	err := r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id <> ? AND left_at IS NULL AND last_read_seq < ?", convID, exceptUserID, seq).
		Updates(map[string]interface{}{
			"unread_count": gorm.Expr(unreadAfter("conversation_participants.last_read_seq")),
			"archived_at":  nil,
		}).Error
	return wrap(err, "increment unread")
}

// unreadAfter counts messages after pos that were not authored by the
// participant and are not system notices.
func unreadAfter(pos string) string {
	return `(SELECT COUNT(*) FROM messages m
	WHERE m.conversation_id = conversation_participants.conversation_id
	AND m.seq > ` + pos + `
	AND m.sender_id IS NOT NULL
	AND m.sender_id <> conversation_participants.user_id)`
}

// MarkRead advances the participant's read pointer with a compare-and-set on
// the sequence number and returns the remaining unread count. Re-marking the
// current position is a no-op; an older position is rejected.
func (r *ConversationRepository) MarkRead(ctx context.Context, convID, userID uuid.UUID, ptr model.ReadPointer) (int, error) {
	db := r.db.WithContext(ctx)

	var belongs int64
	if err := db.Model(&model.Message{}).
		Where("id = ? AND conversation_id = ? AND seq = ?", ptr.MessageID, convID, ptr.Seq).
		Count(&belongs).Error; err != nil {
		return 0, apperr.Internal(err, "load message")
	}
	if belongs == 0 {
		return 0, apperr.InvalidArgument("message does not belong to this conversation")
	}

	res := db.Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL AND last_read_seq < ?", convID, userID, ptr.Seq).
		Updates(map[string]interface{}{
			"last_read_message_id": ptr.MessageID,
			"last_read_seq":        ptr.Seq,
			"unread_count":         gorm.Expr(unreadAfter("?"), ptr.Seq),
		})
	if res.Error != nil {
		return 0, apperr.Internal(res.Error, "mark read")
	}

	var p model.Participant
	if err := db.Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).First(&p).Error; err != nil {
		return 0, notFoundOr(err, "participant")
	}
	if res.RowsAffected == 0 && p.LastReadSeq > ptr.Seq {
		return p.UnreadCount, apperr.InvalidArgument("read pointer cannot move backward")
	}
	return p.UnreadCount, nil
}

// RecountUnread recomputes every active participant's unread count from the message log
func (r *ConversationRepository) RecountUnread(ctx context.Context, convID uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("conversation_id = ? AND left_at IS NULL", convID).
		Update("unread_count", gorm.Expr(unreadAfter("conversation_participants.last_read_seq"))).Error
	return wrap(err, "recount unread")
}

// Archive hides the conversation for one participant only
func (r *ConversationRepository) Archive(ctx context.Context, convID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", convID, userID).
		Update("archived_at", time.Now().UTC())
	if res.Error != nil {
		return apperr.Internal(res.Error, "archive conversation")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("participant not found")
	}
	return nil
}

// ListForUser returns the user's visible conversations, most recent activity first
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]*model.Conversation, string, error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	db := r.db.WithContext(ctx)
	query := db.Model(&model.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ? AND cp.left_at IS NULL AND cp.archived_at IS NULL", userID).
		Where("conversations.dissolved_at IS NULL").
		Order("conversations.last_message_at DESC, conversations.id DESC").
		Limit(limit + 1)
	if c != nil {
		query = query.Where("(conversations.last_message_at, conversations.id) < (?, ?)", c.LastMessageAt, c.ID)
	}

	var rows []model.Conversation
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", apperr.Internal(err, "list conversations")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = EncodeCursor(ListCursor{LastMessageAt: last.LastMessageAt, ID: last.ID})
	}

	convs := make([]*model.Conversation, len(rows))
	for i := range rows {
		convs[i] = &rows[i]
	}
	if err := r.loadParticipants(db, convs); err != nil {
		return nil, "", err
	}
	return convs, next, nil
}

// ScanIDs pages through live conversation ids in id order
func (r *ConversationRepository) ScanIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id > ? AND dissolved_at IS NULL", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperr.Internal(err, "scan conversations")
	}
	return ids, nil
}
