package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/notify"
	"github.com/quocanhngo/talkcore/internal/notify/notifytest"
	"github.com/quocanhngo/talkcore/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineNotifier delivers synchronously so tests can assert right after a call
type inlineNotifier struct{ sink notify.Sink }

func (n inlineNotifier) Enqueue(userID uuid.UUID, note model.Notification) bool {
	_ = n.sink.Notify(context.Background(), userID, note)
	return true
}

type fixture struct {
	svc   *ChatService
	convs *memory.ConversationStore
	msgs  *memory.MessageStore
	rec   *notifytest.Recorder
	dir   StaticDirectory
}

func newFixture(t *testing.T, names ...string) (*fixture, []uuid.UUID) {
	t.Helper()
	convs, msgs := memory.NewStores()
	dir := StaticDirectory{}
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = uuid.New()
		dir[ids[i]] = model.Profile{UserID: ids[i], DisplayName: name, NotificationsEnabled: true}
	}
	rec := &notifytest.Recorder{}
	return &fixture{
		svc:   NewChatService(convs, msgs, dir, inlineNotifier{rec}, nil, nil),
		convs: convs,
		msgs:  msgs,
		rec:   rec,
		dir:   dir,
	}, ids
}

func (f *fixture) unread(t *testing.T, convID, userID uuid.UUID) int {
	t.Helper()
	conv, err := f.convs.Get(context.Background(), convID)
	require.NoError(t, err)
	return conv.Participants[userID].UnreadCount
}

func text(content string) model.SendMessageRequest {
	return model.SendMessageRequest{Content: content, MessageType: model.MessageTypeText}
}

func TestDirectConversationScenario(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	alice, bob := ids[0], ids[1]
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, alice, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{bob},
	})
	require.NoError(t, err)

	hello, err := f.svc.SendMessage(ctx, conv.ID, alice, text("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), hello.Seq)

	hi, err := f.svc.SendMessage(ctx, conv.ID, bob, text("hi"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), hi.Seq)

	assert.Equal(t, 1, f.unread(t, conv.ID, alice))
	assert.Equal(t, 0, f.unread(t, conv.ID, bob))

	n, err := f.svc.MarkRead(ctx, conv.ID, alice, hi.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.unread(t, conv.ID, alice))

	require.NoError(t, f.svc.DeleteMessage(ctx, hi.ID, bob))

	page, err := f.svc.ListMessages(ctx, conv.ID, alice, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	deleted := page.Messages[0]
	assert.Equal(t, int64(2), deleted.Seq)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, deleted.Content)
	assert.True(t, deleted.CreatedAt.Equal(hi.CreatedAt))
	assert.Equal(t, bob, *deleted.SenderID)
	assert.Equal(t, "hello", page.Messages[1].Content)
}

func TestCreateDirectTwiceReturnsExisting(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()

	first, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	again, err := f.svc.CreateDirectConversation(ctx, ids[1], ids[0])
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.svc.CreateConversation(ctx, ids[0], model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{ids[0]},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestGroupRemovalScenario(t *testing.T) {
	f, ids := newFixture(t, "Admin", "Bea", "Cal")
	admin, bea, cal := ids[0], ids[1], ids[2]
	ctx := context.Background()

	conv, err := f.svc.CreateGroupConversation(ctx, admin, "Climbing", []uuid.UUID{bea, cal})
	require.NoError(t, err)

	before, err := f.svc.SendMessage(ctx, conv.ID, cal, text("see you saturday"))
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveParticipant(ctx, conv.ID, admin, cal))

	_, err = f.svc.SendMessage(ctx, conv.ID, cal, text("wait"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	page, err := f.svc.ListMessages(ctx, conv.ID, bea, 0, 50)
	require.NoError(t, err)
	var found *model.Message
	for _, m := range page.Messages {
		if m.ID == before.ID {
			found = m
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, cal, *found.SenderID)
	assert.Equal(t, "see you saturday", found.Content)
	assert.Equal(t, "Admin removed Cal", page.Messages[0].Content)
	assert.True(t, page.Messages[0].IsSystem())
}

func TestGroupCreationPostsSystemMessageOutsideUnread(t *testing.T) {
	f, ids := newFixture(t, "Admin", "Bea")
	ctx := context.Background()

	conv, err := f.svc.CreateGroupConversation(ctx, ids[0], "Book club", []uuid.UUID{ids[1]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), conv.LastMessageSeq)

	page, err := f.svc.ListMessages(ctx, conv.ID, ids[1], 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Nil(t, page.Messages[0].SenderID)
	assert.Equal(t, model.MessageTypeSystem, page.Messages[0].Type)
	assert.Equal(t, "Admin created the group", page.Messages[0].Content)
	assert.Zero(t, f.unread(t, conv.ID, ids[1]))

	_, err = f.svc.SendMessage(ctx, conv.ID, ids[0], model.SendMessageRequest{Content: "x", MessageType: model.MessageTypeSystem})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestSystemMessagesSkipTheActor(t *testing.T) {
	f, ids := newFixture(t, "Admin", "Bea", "Cal")
	admin, bea, cal := ids[0], ids[1], ids[2]
	ctx := context.Background()

	conv, err := f.svc.CreateGroupConversation(ctx, admin, "Team", []uuid.UUID{bea})
	require.NoError(t, err)
	assert.Empty(t, f.rec.For(admin))
	require.Len(t, f.rec.For(bea), 1)
	assert.Nil(t, f.rec.For(bea)[0].SenderID)

	f.rec.Reset()
	_, err = f.svc.AddParticipant(ctx, conv.ID, admin, cal)
	require.NoError(t, err)
	assert.Empty(t, f.rec.For(admin))
	assert.Len(t, f.rec.For(bea), 1)
	assert.Len(t, f.rec.For(cal), 1)

	f.rec.Reset()
	title := "Team 2"
	_, err = f.svc.UpdateGroupInfo(ctx, conv.ID, admin, model.UpdateConversationRequest{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, f.rec.For(admin))
	assert.Len(t, f.rec.For(cal), 1)

	f.rec.Reset()
	require.NoError(t, f.svc.RemoveParticipant(ctx, conv.ID, admin, cal))
	assert.Empty(t, f.rec.For(admin))
	assert.Empty(t, f.rec.For(cal))
	assert.Len(t, f.rec.For(bea), 1)
}

// readBetweenStore runs beforeIncrement once, after the message is appended
// but before unread counters move.
type readBetweenStore struct {
	*memory.ConversationStore
	beforeIncrement func()
}

func (s *readBetweenStore) IncrementUnread(ctx context.Context, convID, exceptUserID uuid.UUID, seq int64) error {
	if fn := s.beforeIncrement; fn != nil {
		s.beforeIncrement = nil
		fn()
	}
	return s.ConversationStore.IncrementUnread(ctx, convID, exceptUserID, seq)
}

func TestReadLandingBeforeUnreadBumpIsNotCountedTwice(t *testing.T) {
	convs, msgs := memory.NewStores()
	alice, bob := uuid.New(), uuid.New()
	store := &readBetweenStore{ConversationStore: convs}
	svc := NewChatService(store, msgs, StaticDirectory{}, nil, nil, nil)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, alice, model.CreateConversationRequest{
		Type: model.ConversationTypeDirect, ParticipantIDs: []uuid.UUID{bob},
	})
	require.NoError(t, err)

	first, err := svc.SendMessage(ctx, conv.ID, alice, text("one"))
	require.NoError(t, err)

	store.beforeIncrement = func() {
		_, err := convs.MarkRead(ctx, conv.ID, bob, model.ReadPointer{MessageID: first.ID, Seq: first.Seq})
		require.NoError(t, err)
	}
	_, err = svc.SendMessage(ctx, conv.ID, alice, text("two"))
	require.NoError(t, err)

	got, err := convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	want, err := msgs.CountUnread(ctx, conv.ID, got.Participants[bob].LastReadSeq, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, want)
	assert.Equal(t, want, got.Participants[bob].UnreadCount)
}

func TestConcurrentSendsKeepOrder(t *testing.T) {
	f, ids := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	conv, err := f.svc.CreateGroupConversation(ctx, ids[0], "Busy", ids[1:])
	require.NoError(t, err)

	const n = 60
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, conv.ID, ids[i%3], text(fmt.Sprintf("m%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	page, err := f.svc.ListMessages(ctx, conv.ID, ids[0], 0, 100)
	require.NoError(t, err)
	require.Len(t, page.Messages, n+1)
	for i, m := range page.Messages {
		assert.Equal(t, int64(n+1-i), m.Seq)
	}

	got, err := f.convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), got.LastMessageSeq)
}

func TestSendNotifiesOtherParticipants(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, conv.ID, ids[0], text("ping"))
	require.NoError(t, err)

	assert.Empty(t, f.rec.For(ids[0]))
	got := f.rec.For(ids[1])
	require.Len(t, got, 1)
	assert.Equal(t, model.NotificationMessage, got[0].Type)
	assert.Equal(t, conv.ID, got[0].ConversationID)
	assert.Equal(t, msg.ID, got[0].MessageID)
	assert.Equal(t, ids[0], *got[0].SenderID)
	require.NotNil(t, got[0].Preview)
	assert.Equal(t, "Alice", got[0].Preview.SenderName)
}

func TestNotificationFailureDoesNotFailSend(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	f.rec.Err = fmt.Errorf("sink unavailable")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, conv.ID, ids[0], text("still sent"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, 1, f.unread(t, conv.ID, ids[1]))
}

func TestEditAndDeleteEmitUpdatesWithoutUnread(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	alice, bob := ids[0], ids[1]
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, conv.ID, alice, text("draft"))
	require.NoError(t, err)
	f.rec.Reset()

	_, err = f.svc.EditMessage(ctx, msg.ID, bob, "not yours")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.EditMessage(ctx, msg.ID, alice, "v2")
	require.NoError(t, err)
	edited, err := f.svc.EditMessage(ctx, msg.ID, alice, "v3")
	require.NoError(t, err)
	assert.Equal(t, "v3", edited.Content)
	assert.True(t, edited.CreatedAt.Equal(msg.CreatedAt))
	assert.Equal(t, alice, *edited.SenderID)

	require.NoError(t, f.svc.DeleteMessage(ctx, msg.ID, alice))
	require.NoError(t, f.svc.DeleteMessage(ctx, msg.ID, alice))

	_, err = f.svc.EditMessage(ctx, msg.ID, alice, "v4")
	assert.ErrorIs(t, err, apperr.ErrGone)

	got := f.rec.For(bob)
	require.Len(t, got, 3)
	for _, n := range got {
		assert.Equal(t, model.NotificationMessageUpdated, n.Type)
	}
	assert.Equal(t, 1, f.unread(t, conv.ID, bob))
}

func TestReplyToDeletedMessageShowsPlaceholder(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	target, err := f.svc.SendMessage(ctx, conv.ID, ids[0], text("original"))
	require.NoError(t, err)
	reply, err := f.svc.SendMessage(ctx, conv.ID, ids[1], model.SendMessageRequest{Content: "agreed", ReplyToID: &target.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, "original", reply.ReplyTo.Content)
	assert.Equal(t, model.MessageTypeText, reply.Type)

	require.NoError(t, f.svc.DeleteMessage(ctx, target.ID, ids[0]))

	page, err := f.svc.ListMessages(ctx, conv.ID, ids[1], 0, 10)
	require.NoError(t, err)
	require.NotNil(t, page.Messages[0].ReplyTo)
	assert.Equal(t, target.ID, page.Messages[0].ReplyTo.ID)
	assert.True(t, page.Messages[0].ReplyTo.IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, page.Messages[0].ReplyTo.Content)

	missing := uuid.New()
	_, err = f.svc.SendMessage(ctx, conv.ID, ids[1], model.SendMessageRequest{Content: "?", ReplyToID: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReactionsReplaceAndNeverNotify(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, conv.ID, ids[0], text("nice"))
	require.NoError(t, err)
	f.rec.Reset()

	_, err = f.svc.React(ctx, msg.ID, ids[1], "👍")
	require.NoError(t, err)
	got, err := f.svc.React(ctx, msg.ID, ids[1], "🎉")
	require.NoError(t, err)
	assert.Equal(t, model.ReactionSet{ids[1]: "🎉"}, got.Reactions)

	require.NoError(t, f.svc.Unreact(ctx, msg.ID, ids[1]))
	require.NoError(t, f.svc.Unreact(ctx, msg.ID, ids[1]))
	assert.Empty(t, f.rec.Deliveries())

	_, err = f.svc.React(ctx, msg.ID, uuid.New(), "👀")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestMarkReadBothOrders(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	var sent []*model.Message
	for i := 0; i < 3; i++ {
		m, err := f.svc.SendMessage(ctx, conv.ID, ids[1], text(fmt.Sprint(i)))
		require.NoError(t, err)
		sent = append(sent, m)
	}

	n, err := f.svc.MarkRead(ctx, conv.ID, ids[0], sent[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = f.svc.MarkRead(ctx, conv.ID, ids[0], sent[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.MarkRead(ctx, conv.ID, ids[0], sent[0].ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, 1, f.unread(t, conv.ID, ids[0]))

	_, err = f.svc.MarkRead(ctx, conv.ID, ids[0], uuid.New())
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestNonParticipantsGetGenericForbidden(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob", "Eve")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, conv.ID, ids[0], text("private"))
	require.NoError(t, err)

	eve := ids[2]
	_, errExisting := f.svc.GetConversation(ctx, conv.ID, eve)
	_, errMissing := f.svc.GetConversation(ctx, uuid.New(), eve)
	assert.ErrorIs(t, errExisting, apperr.ErrForbidden)
	assert.ErrorIs(t, errMissing, apperr.ErrForbidden)
	assert.Equal(t, errExisting.Error(), errMissing.Error())

	_, err = f.svc.ListMessages(ctx, conv.ID, eve, 0, 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, msg.ID, eve), apperr.ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, uuid.New(), eve), apperr.ErrForbidden)
}

func TestListConversationsUsesPeerProfile(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob", "Cal")
	ctx := context.Background()
	direct, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, direct.ID, ids[1], text("hey"))
	require.NoError(t, err)
	group, err := f.svc.CreateGroupConversation(ctx, ids[0], "Trip", ids[1:])
	require.NoError(t, err)

	resp, err := f.svc.ListConversations(ctx, ids[0], "", 0)
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 2)
	assert.Equal(t, group.ID, resp.Conversations[0].ID)
	assert.Equal(t, "Trip", resp.Conversations[0].Title)

	d := resp.Conversations[1]
	assert.Equal(t, "Bob", d.Title)
	assert.Equal(t, 1, d.UnreadCount)
	require.NotNil(t, d.LastMessage)
	assert.Equal(t, "hey", d.LastMessage.Content)
	assert.Equal(t, "Alice", d.Participants[ids[0]].DisplayName)
}

func TestLastAdminLeavingPromotesAndEmptyGroupDissolves(t *testing.T) {
	f, ids := newFixture(t, "Admin", "Bea")
	admin, bea := ids[0], ids[1]
	ctx := context.Background()
	conv, err := f.svc.CreateGroupConversation(ctx, admin, "Duo", []uuid.UUID{bea})
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, conv.ID, bea, text("bye"))
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveParticipant(ctx, conv.ID, admin, admin))
	got, err := f.svc.GetConversation(ctx, conv.ID, bea)
	require.NoError(t, err)
	assert.Equal(t, model.MemberRoleAdmin, got.Participants[bea].Role)

	page, err := f.svc.ListMessages(ctx, conv.ID, bea, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "Bea is now an admin", page.Messages[0].Content)
	assert.Equal(t, "Admin left", page.Messages[1].Content)

	require.NoError(t, f.svc.RemoveParticipant(ctx, conv.ID, bea, bea))
	_, err = f.svc.GetConversation(ctx, conv.ID, bea)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	stored, err := f.msgs.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
}

func TestAddParticipantPostsSystemMessage(t *testing.T) {
	f, ids := newFixture(t, "Admin", "Bea", "Cal")
	ctx := context.Background()
	conv, err := f.svc.CreateGroupConversation(ctx, ids[0], "Team", []uuid.UUID{ids[1]})
	require.NoError(t, err)

	_, err = f.svc.AddParticipant(ctx, conv.ID, ids[1], ids[2])
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	updated, err := f.svc.AddParticipant(ctx, conv.ID, ids[0], ids[2])
	require.NoError(t, err)
	assert.True(t, updated.IsActiveParticipant(ids[2]))

	page, err := f.svc.ListMessages(ctx, conv.ID, ids[2], 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "Admin added Cal", page.Messages[0].Content)

	title := "Team 2"
	_, err = f.svc.UpdateGroupInfo(ctx, conv.ID, ids[1], model.UpdateConversationRequest{Title: &title})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	renamed, err := f.svc.UpdateGroupInfo(ctx, conv.ID, ids[0], model.UpdateConversationRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Team 2", renamed.Title)
}

func TestArchiveHidesUntilNextMessage(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)

	require.NoError(t, f.svc.ArchiveConversation(ctx, conv.ID, ids[1]))
	resp, err := f.svc.ListConversations(ctx, ids[1], "", 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Conversations)

	_, err = f.svc.SendMessage(ctx, conv.ID, ids[0], text("still there?"))
	require.NoError(t, err)
	resp, err = f.svc.ListConversations(ctx, ids[1], "", 10)
	require.NoError(t, err)
	assert.Len(t, resp.Conversations, 1)
}

func TestListMessagesPagination(t *testing.T) {
	f, ids := newFixture(t, "Alice", "Bob")
	ctx := context.Background()
	conv, err := f.svc.CreateDirectConversation(ctx, ids[0], ids[1])
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.svc.SendMessage(ctx, conv.ID, ids[0], text(fmt.Sprint(i)))
		require.NoError(t, err)
	}

	page, err := f.svc.ListMessages(ctx, conv.ID, ids[1], 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.NextBefore)

	page, err = f.svc.ListMessages(ctx, conv.ID, ids[1], page.NextBefore, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.NextBefore)

	page, err = f.svc.ListMessages(ctx, conv.ID, ids[1], page.NextBefore, 2)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.Zero(t, page.NextBefore)
}
