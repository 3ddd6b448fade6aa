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

// MessageRepository is the PostgreSQL MessageStore
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a message with the next sequence number of its conversation.
// The counter lives on the conversation row; incrementing it takes the row
// lock, so concurrent appends to one conversation commit in sequence order.
func (r *MessageRepository) Append(ctx context.Context, p AppendParams) (*model.Message, error) {
	if err := ValidateAppend(p); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Type:           p.Type,
		ReplyToID:      p.ReplyToID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.ReplyToID != nil {
			var count int64
			if err := tx.Model(&model.Message{}).
				Where("id = ? AND conversation_id = ?", *p.ReplyToID, p.ConversationID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperr.NotFound("reply target not found")
			}
		}

		var seq int64
		res := tx.Raw(
			"UPDATE conversations SET last_seq = last_seq + 1 WHERE id = ? AND dissolved_at IS NULL RETURNING last_seq",
			p.ConversationID,
		).Scan(&seq)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("conversation not found")
		}

		msg.Seq = seq
		msg.CreatedAt = time.Now().UTC()
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, wrap(err, "append message")
	}

	msg.Reactions = model.ReactionSet{}
	return msg, nil
}

// ValidateAppend checks the parts of an append that need no storage access
func ValidateAppend(p AppendParams) error {
	if strings.TrimSpace(p.Content) == "" {
		return apperr.InvalidArgument("message content is empty")
	}
	switch p.Type {
	case model.MessageTypeText, model.MessageTypeImage, model.MessageTypeVideo:
		if p.SenderID == nil {
			return apperr.InvalidArgument("user messages need a sender")
		}
	case model.MessageTypeSystem:
		if p.SenderID != nil {
			return apperr.InvalidArgument("system messages have no sender")
		}
	default:
		return apperr.InvalidArgument("unknown message type %q", p.Type)
	}
	return nil
}

// Get finds a message by ID with its reactions
func (r *MessageRepository) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	db := r.db.WithContext(ctx)
	var msg model.Message
	if err := db.Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, notFoundOr(err, "message")
	}
	if err := r.loadReactions(db, []*model.Message{&msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMany finds messages by ID; missing ids are simply absent from the result
func (r *MessageRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Message, error) {
	out := make(map[uuid.UUID]*model.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Message
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "load messages")
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

func (r *MessageRepository) loadReactions(db *gorm.DB, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(msgs))
	byID := make(map[uuid.UUID]*model.Message, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
		m.Reactions = model.ReactionSet{}
		byID[m.ID] = m
	}

	var rows []model.Reaction
	if err := db.Where("message_id IN ?", ids).Find(&rows).Error; err != nil {
		return apperr.Internal(err, "load reactions")
	}
	for _, row := range rows {
		byID[row.MessageID].Reactions[row.UserID] = row.Emoji
	}
	return nil
}

// lockMessage loads a message under SELECT ... FOR UPDATE
func lockMessage(tx *gorm.DB, id uuid.UUID) (*model.Message, error) {
	var msg model.Message
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, notFoundOr(err, "message")
	}
	return &msg, nil
}

// Edit replaces the content of a live message. Only its sender may edit.
func (r *MessageRepository) Edit(ctx context.Context, id, editorID uuid.UUID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.InvalidArgument("message content is empty")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := lockMessage(tx, id)
		if err != nil {
			return err
		}
		if err := CheckEdit(msg, editorID); err != nil {
			return err
		}
		return tx.Model(&model.Message{}).Where("id = ?", id).
			Updates(map[string]interface{}{"content": content, "edited_at": time.Now().UTC()}).Error
	})
	if err != nil {
		return nil, wrap(err, "edit message")
	}
	return r.Get(ctx, id)
}

// Delete tombstones a message: the content is cleared while id, sender,
// timestamps and reply reference are kept so replies stay resolvable.
func (r *MessageRepository) Delete(ctx context.Context, id, actorID uuid.UUID) (*model.Message, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := lockMessage(tx, id)
		if err != nil {
			return err
		}
		if !msg.SentBy(actorID) {
			return apperr.Forbidden("only the sender can delete a message")
		}
		if msg.IsDeleted {
			return nil
		}
		return tx.Model(&model.Message{}).Where("id = ?", id).
			Updates(map[string]interface{}{"is_deleted": true, "deleted_at": time.Now().UTC(), "content": ""}).Error
	})
	if err != nil {
		return nil, wrap(err, "delete message")
	}
	return r.Get(ctx, id)
}

// CheckEdit enforces sender-only edits of live messages
func CheckEdit(msg *model.Message, editorID uuid.UUID) error {
	if !msg.SentBy(editorID) {
		return apperr.Forbidden("only the sender can edit a message")
	}
	if msg.IsDeleted {
		return apperr.Gone("message was deleted")
	}
	return nil
}

// SetReaction records userID's emoji, replacing any previous one
func (r *MessageRepository) SetReaction(ctx context.Context, id, userID uuid.UUID, emoji string) (*model.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, apperr.InvalidArgument("emoji is empty")
	}
	db := r.db.WithContext(ctx)
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	row := model.Reaction{MessageID: id, UserID: userID, Emoji: emoji, UpdatedAt: time.Now().UTC()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"emoji", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, apperr.Internal(err, "set reaction")
	}
	return r.Get(ctx, id)
}

// ClearReaction removes userID's reaction; clearing a missing reaction is fine
func (r *MessageRepository) ClearReaction(ctx context.Context, id, userID uuid.UUID) (*model.Message, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", id, userID).
		Delete(&model.Reaction{}).Error
	if err != nil {
		return nil, apperr.Internal(err, "clear reaction")
	}
	return r.Get(ctx, id)
}

// ListByConversation returns up to limit messages with seq < beforeSeq (all
// when beforeSeq is 0), newest first. Paging by sequence keeps pages stable
// while new messages are appended.
func (r *MessageRepository) ListByConversation(ctx context.Context, convID uuid.UUID, beforeSeq int64, limit int) ([]*model.Message, error) {
	db := r.db.WithContext(ctx)
	query := db.Where("conversation_id = ?", convID).Order("seq DESC").Limit(limit)
	if beforeSeq > 0 {
		query = query.Where("seq < ?", beforeSeq)
	}

	var rows []model.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, apperr.Internal(err, "list messages")
	}
	msgs := make([]*model.Message, len(rows))
	for i := range rows {
		msgs[i] = &rows[i]
	}
	if err := r.loadReactions(db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Latest returns the highest-sequence message of a conversation
func (r *MessageRepository) Latest(ctx context.Context, convID uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("seq DESC").
		First(&msg).Error
	if err != nil {
		return nil, notFoundOr(err, "message")
	}
	return &msg, nil
}

// CountUnread counts messages after afterSeq not sent by userID, system notices excluded
func (r *MessageRepository) CountUnread(ctx context.Context, convID uuid.UUID, afterSeq int64, userID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND seq > ?", convID, afterSeq).
		Where("sender_id IS NOT NULL AND sender_id <> ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, apperr.Internal(err, "count unread")
	}
	return int(count), nil
}

// TombstoneConversation soft-deletes every message of a dissolved conversation
func (r *MessageRepository) TombstoneConversation(ctx context.Context, convID uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND is_deleted = ?", convID, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": time.Now().UTC(), "content": ""}).Error
	return wrap(err, "tombstone conversation")
}
