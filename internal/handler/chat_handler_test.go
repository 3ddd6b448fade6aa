package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/middleware"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/repository/memory"
	"github.com/quocanhngo/talkcore/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardNotifier struct{}

func (discardNotifier) Enqueue(uuid.UUID, model.Notification) bool { return true }

const testUserHeader = "X-Test-User"

// newTestRouter wires the chat routes over memory stores. The caller is taken
// from a header instead of a JWT.
func newTestRouter(t *testing.T, names ...string) (*gin.Engine, []uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	convs, msgs := memory.NewStores()
	dir := service.StaticDirectory{}
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = uuid.New()
		dir[ids[i]] = model.Profile{UserID: ids[i], DisplayName: name}
	}
	h := NewChatHandler(service.NewChatService(convs, msgs, dir, discardNotifier{}, nil, nil), nil)

	r := gin.New()
	api := r.Group("/api/v1", func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(testUserHeader))
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		middleware.SetUser(c, id, dir[id].DisplayName)
		c.Next()
	})
	RegisterChatRoutes(api, h, nil)
	return r, ids
}

func do(t *testing.T, r http.Handler, user uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(testUserHeader, user.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createDirect(t *testing.T, r http.Handler, a, b uuid.UUID) model.Conversation {
	t.Helper()
	w := do(t, r, a, http.MethodPost, "/conversations", gin.H{"type": "direct", "participant_ids": []uuid.UUID{b}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[model.Conversation](t, w)
}

func TestCreateDirectConflict(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob")
	conv := createDirect(t, r, ids[0], ids[1])

	w := do(t, r, ids[1], http.MethodPost, "/conversations", gin.H{"type": "direct", "participant_ids": []uuid.UUID{ids[0]}})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, conv.ID, decode[model.ConflictResponse](t, w).ConversationID)
}

func TestCreateConversationValidation(t *testing.T) {
	r, ids := newTestRouter(t, "Alice")

	w := do(t, r, ids[0], http.MethodPost, "/conversations", gin.H{"type": "channel", "participant_ids": []uuid.UUID{uuid.New()}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, ids[0], http.MethodPost, "/conversations", gin.H{"type": "direct", "participant_ids": []uuid.UUID{ids[0]}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForbiddenLooksTheSameAsMissing(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob", "Mallory")
	conv := createDirect(t, r, ids[0], ids[1])

	foreign := do(t, r, ids[2], http.MethodGet, "/conversations/"+conv.ID.String(), nil)
	missing := do(t, r, ids[2], http.MethodGet, "/conversations/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusForbidden, foreign.Code)
	assert.Equal(t, http.StatusForbidden, missing.Code)
	assert.JSONEq(t, foreign.Body.String(), missing.Body.String())
	assert.Equal(t, "You can't do that", decode[model.ErrorResponse](t, foreign).Error)

	w := do(t, r, ids[2], http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", gin.H{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMessageLifecycle(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob")
	alice, bob := ids[0], ids[1]
	conv := createDirect(t, r, alice, bob)
	base := "/conversations/" + conv.ID.String()

	w := do(t, r, alice, http.MethodPost, base+"/messages", gin.H{"content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	hello := decode[model.Message](t, w)
	assert.Equal(t, int64(1), hello.Seq)

	w = do(t, r, bob, http.MethodGet, "/conversations/"+conv.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[model.ConversationResponse](t, w).UnreadCount)

	w = do(t, r, bob, http.MethodPost, base+"/read", gin.H{"message_id": hello.ID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[model.MarkReadResponse](t, w).UnreadCount)

	w = do(t, r, bob, http.MethodPatch, "/messages/"+hello.ID.String(), gin.H{"content": "not mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, alice, http.MethodPatch, "/messages/"+hello.ID.String(), gin.H{"content": "hello!"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello!", decode[model.Message](t, w).Content)

	w = do(t, r, bob, http.MethodPut, "/messages/"+hello.ID.String()+"/reactions", gin.H{"emoji": "👍"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "👍", decode[model.Message](t, w).Reactions[bob])

	w = do(t, r, bob, http.MethodDelete, "/messages/"+hello.ID.String()+"/reactions", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, alice, http.MethodDelete, "/messages/"+hello.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, alice, http.MethodPatch, "/messages/"+hello.ID.String(), gin.H{"content": "again"})
	assert.Equal(t, http.StatusGone, w.Code)

	w = do(t, r, bob, http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[model.MessageListResponse](t, w)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, model.DeletedPlaceholder, page.Messages[0].Content)
	assert.True(t, page.Messages[0].IsDeleted)
}

func TestReplyToMissingMessage(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob")
	conv := createDirect(t, r, ids[0], ids[1])

	w := do(t, r, ids[0], http.MethodPost, "/conversations/"+conv.ID.String()+"/messages",
		gin.H{"content": "re", "reply_to_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkReadBackwardRejected(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob")
	alice, bob := ids[0], ids[1]
	conv := createDirect(t, r, alice, bob)
	base := "/conversations/" + conv.ID.String()

	first := decode[model.Message](t, do(t, r, alice, http.MethodPost, base+"/messages", gin.H{"content": "1"}))
	second := decode[model.Message](t, do(t, r, alice, http.MethodPost, base+"/messages", gin.H{"content": "2"}))

	w := do(t, r, bob, http.MethodPost, base+"/read", gin.H{"message_id": second.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, bob, http.MethodPost, base+"/read", gin.H{"message_id": first.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupMembershipRoutes(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob", "Carol")
	alice, bob, carol := ids[0], ids[1], ids[2]

	w := do(t, r, alice, http.MethodPost, "/conversations", gin.H{"type": "group", "title": "Trip", "participant_ids": []uuid.UUID{bob}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decode[model.Conversation](t, w)
	base := "/conversations/" + group.ID.String()

	w = do(t, r, bob, http.MethodPost, base+"/participants", gin.H{"user_id": carol})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, alice, http.MethodPost, base+"/participants", gin.H{"user_id": carol})
	require.Equal(t, http.StatusOK, w.Code)
	added := decode[model.Conversation](t, w)
	assert.True(t, added.IsActiveParticipant(carol))

	w = do(t, r, alice, http.MethodPut, base+"/participants/"+bob.String()+"/role", gin.H{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, alice, http.MethodPut, base+"/participants/"+bob.String()+"/role", gin.H{"role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)

	title := "Trip 2"
	w = do(t, r, bob, http.MethodPatch, base, gin.H{"title": title})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, title, decode[model.Conversation](t, w).Title)

	w = do(t, r, carol, http.MethodDelete, base+"/participants/"+carol.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, carol, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestArchiveHidesUntilNextMessage(t *testing.T) {
	r, ids := newTestRouter(t, "Alice", "Bob")
	alice, bob := ids[0], ids[1]
	conv := createDirect(t, r, alice, bob)

	w := do(t, r, bob, http.MethodDelete, "/conversations/"+conv.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	list := decode[model.ConversationListResponse](t, do(t, r, bob, http.MethodGet, "/conversations", nil))
	assert.Empty(t, list.Conversations)

	do(t, r, alice, http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", gin.H{"content": "ping"})

	list = decode[model.ConversationListResponse](t, do(t, r, bob, http.MethodGet, "/conversations", nil))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 1, list.Conversations[0].UnreadCount)
}

func TestBadInput(t *testing.T) {
	r, ids := newTestRouter(t, "Alice")

	w := do(t, r, ids[0], http.MethodGet, "/conversations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, ids[0], http.MethodGet, "/conversations?cursor=!!!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", bytes.NewBufferString("{"))
	req.Header.Set(testUserHeader, ids[0].String())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
