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

// MessageStore keeps one append-only log per conversation.
//
// Lock order: a conversation log's mutex may be held while taking s.mu,
// never the other way around.
type MessageStore struct {
	mu    sync.RWMutex
	logs  map[uuid.UUID]*conversationLog
	index map[uuid.UUID]*model.Message

	conversationLive func(uuid.UUID) bool
}

// conversationLog is the serialization point of one conversation: sequence
// allocation and every mutation of its messages happen under its mutex.
type conversationLog struct {
	mu     sync.Mutex
	seq    int64
	msgs   []*model.Message // ascending seq
	closed bool             // dissolved: no further appends
}

func newMessageStore() *MessageStore {
	return &MessageStore{
		logs:  make(map[uuid.UUID]*conversationLog),
		index: make(map[uuid.UUID]*model.Message),
	}
}

func (s *MessageStore) log(convID uuid.UUID) *conversationLog {
	s.mu.RLock()
	l, ok := s.logs[convID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.logs[convID]; !ok {
		l = &conversationLog{}
		s.logs[convID] = l
	}
	return l
}

func (s *MessageStore) lookup(id uuid.UUID) (*model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.index[id]
	return m, ok
}

// Append assigns the next sequence number of the conversation and stores the message
func (s *MessageStore) Append(ctx context.Context, p repository.AppendParams) (*model.Message, error) {
	if err := repository.ValidateAppend(p); err != nil {
		return nil, err
	}
	if s.conversationLive != nil && !s.conversationLive(p.ConversationID) {
		return nil, apperr.NotFound("conversation not found")
	}

	l := s.log(p.ConversationID)
	l.mu.Lock()
	defer l.mu.Unlock()

	// The liveness check above ran unlocked; a dissolve may have closed
	// the log since.
	if l.closed {
		return nil, apperr.NotFound("conversation not found")
	}

	// Nothing is written if the caller already gave up.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.ReplyToID != nil {
		target, ok := s.lookup(*p.ReplyToID)
		if !ok || target.ConversationID != p.ConversationID {
			return nil, apperr.NotFound("reply target not found")
		}
	}

	l.seq++
	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: p.ConversationID,
		Seq:            l.seq,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Type:           p.Type,
		ReplyToID:      p.ReplyToID,
		CreatedAt:      time.Now().UTC(),
		Reactions:      model.ReactionSet{},
	}
	l.msgs = append(l.msgs, msg)

	s.mu.Lock()
	s.index[msg.ID] = msg
	s.mu.Unlock()

	return msg.Clone(), nil
}

// mutate runs fn on the stored message under its conversation's lock
func (s *MessageStore) mutate(id uuid.UUID, fn func(*model.Message) error) (*model.Message, error) {
	msg, ok := s.lookup(id)
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	l := s.log(msg.ConversationID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := fn(msg); err != nil {
		return nil, err
	}
	return msg.Clone(), nil
}

func (s *MessageStore) Get(_ context.Context, id uuid.UUID) (*model.Message, error) {
	return s.mutate(id, func(*model.Message) error { return nil })
}

func (s *MessageStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Message, error) {
	out := make(map[uuid.UUID]*model.Message, len(ids))
	for _, id := range ids {
		msg, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out[id] = msg
	}
	return out, nil
}

func (s *MessageStore) Edit(_ context.Context, id, editorID uuid.UUID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.InvalidArgument("message content is empty")
	}
	return s.mutate(id, func(m *model.Message) error {
		if err := repository.CheckEdit(m, editorID); err != nil {
			return err
		}
		now := time.Now().UTC()
		m.Content = content
		m.EditedAt = &now
		return nil
	})
}

func (s *MessageStore) Delete(_ context.Context, id, actorID uuid.UUID) (*model.Message, error) {
	return s.mutate(id, func(m *model.Message) error {
		if !m.SentBy(actorID) {
			return apperr.Forbidden("only the sender can delete a message")
		}
		if m.IsDeleted {
			return nil
		}
		tombstone(m, time.Now().UTC())
		return nil
	})
}

func tombstone(m *model.Message, at time.Time) {
	m.IsDeleted = true
	m.DeletedAt = &at
	m.Content = ""
}

func (s *MessageStore) SetReaction(_ context.Context, id, userID uuid.UUID, emoji string) (*model.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, apperr.InvalidArgument("emoji is empty")
	}
	return s.mutate(id, func(m *model.Message) error {
		m.Reactions[userID] = emoji
		return nil
	})
}

func (s *MessageStore) ClearReaction(_ context.Context, id, userID uuid.UUID) (*model.Message, error) {
	return s.mutate(id, func(m *model.Message) error {
		delete(m.Reactions, userID)
		return nil
	})
}

func (s *MessageStore) ListByConversation(_ context.Context, convID uuid.UUID, beforeSeq int64, limit int) ([]*model.Message, error) {
	l := s.log(convID)
	l.mu.Lock()
	defer l.mu.Unlock()

	// msgs is sorted by seq, so find the first index at or past the cursor
	end := len(l.msgs)
	if beforeSeq > 0 {
		end = sort.Search(len(l.msgs), func(i int) bool { return l.msgs[i].Seq >= beforeSeq })
	}

	out := make([]*model.Message, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.msgs[i].Clone())
	}
	return out, nil
}

func (s *MessageStore) Latest(_ context.Context, convID uuid.UUID) (*model.Message, error) {
	l := s.log(convID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.msgs) == 0 {
		return nil, apperr.NotFound("message not found")
	}
	return l.msgs[len(l.msgs)-1].Clone(), nil
}

func (s *MessageStore) CountUnread(_ context.Context, convID uuid.UUID, afterSeq int64, userID uuid.UUID) (int, error) {
	l := s.log(convID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return countUnread(l.msgs, afterSeq, userID), nil
}

func countUnread(msgs []*model.Message, afterSeq int64, userID uuid.UUID) int {
	n := 0
	for i := len(msgs) - 1; i >= 0 && msgs[i].Seq > afterSeq; i-- {
		if !msgs[i].IsSystem() && !msgs[i].SentBy(userID) {
			n++
		}
	}
	return n
}

// closeLog rejects every later Append to the conversation.
func (s *MessageStore) closeLog(convID uuid.UUID) {
	l := s.log(convID)
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (s *MessageStore) TombstoneConversation(_ context.Context, convID uuid.UUID) error {
	l := s.log(convID)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true

	now := time.Now().UTC()
	for _, m := range l.msgs {
		if !m.IsDeleted {
			tombstone(m, now)
		}
	}
	return nil
}
