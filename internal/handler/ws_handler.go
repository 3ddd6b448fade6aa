package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/talkcore/internal/middleware"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/service"
	"github.com/quocanhngo/talkcore/internal/ws"
	"github.com/quocanhngo/talkcore/pkg/auth"
	"go.uber.org/zap"
)

const wsEventTimeout = 5 * time.Second

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub         *ws.Hub
	chatService *service.ChatService
	jwtManager  *auth.JWTManager
	revoked     middleware.RevocationList
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// NewWSHandler builds the handler. An empty origins list or a single "*"
// accepts any origin.
func NewWSHandler(hub *ws.Hub, chatService *service.ChatService, jwtManager *auth.JWTManager, revoked middleware.RevocationList, origins []string, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &WSHandler{
		hub:         hub,
		chatService: chatService,
		jwtManager:  jwtManager,
		revoked:     revoked,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
			},
		},
		log: log.Named("ws"),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection
// Client connects with: ws://host/ws?token=<jwt_token>
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// Browsers cannot set headers on a WebSocket handshake
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, ok := middleware.Authenticate(c, h.jwtManager, h.revoked, tokenString)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, claims.UserID, claims.Name)
	h.hub.Register(client)
	h.log.Debug("connected", zap.Stringer("user_id", claims.UserID))

	go client.WritePump()
	go client.ReadPump(h.handleWSMessage)
}

// conversationPayload is the inbound shape of typing and read events
type conversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

// decodeConversationPayload re-encodes the loosely typed event payload into
// conversationPayload. A payload without a conversation is rejected.
func decodeConversationPayload(v interface{}) (conversationPayload, error) {
	var p conversationPayload
	raw, err := json.Marshal(v)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.ConversationID == uuid.Nil {
		return p, errors.New("conversation_id is required")
	}
	return p, nil
}

// handleWSMessage processes incoming WebSocket messages from clients.
// Messages are sent over HTTP; the socket only carries ephemeral signals.
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), wsEventTimeout)
	defer cancel()

	payload, err := decodeConversationPayload(event.Payload)
	if err != nil {
		h.log.Debug("bad payload", zap.String("type", event.Type), zap.Stringer("user_id", client.UserID), zap.Error(err))
		return
	}

	switch event.Type {
	case model.WSEventTyping, model.WSEventStopTyping:
		h.handleTyping(ctx, client, event.Type, payload)
	case model.WSEventRead:
		h.handleRead(ctx, client, payload)
	default:
		h.log.Debug("unknown event", zap.String("type", event.Type))
	}
}

// handleTyping relays typing indicators to the other participants
func (h *WSHandler) handleTyping(ctx context.Context, client *ws.Client, kind string, p conversationPayload) {
	ids, err := h.chatService.ParticipantIDs(ctx, p.ConversationID, client.UserID)
	if err != nil {
		return
	}
	h.hub.SendToUsers(ctx, others(ids, client.UserID), &model.WSEvent{
		Type: kind,
		Payload: model.TypingEvent{
			ConversationID: p.ConversationID,
			UserID:         client.UserID,
			Name:           client.Name,
		},
	})
}

// handleRead advances the read pointer and tells the other participants
func (h *WSHandler) handleRead(ctx context.Context, client *ws.Client, p conversationPayload) {
	if _, err := h.chatService.MarkRead(ctx, p.ConversationID, client.UserID, p.MessageID); err != nil {
		h.log.Debug("read rejected", zap.Stringer("user_id", client.UserID), zap.Error(err))
		return
	}
	ids, err := h.chatService.ParticipantIDs(ctx, p.ConversationID, client.UserID)
	if err != nil {
		return
	}
	h.hub.SendToUsers(ctx, others(ids, client.UserID), &model.WSEvent{
		Type: model.WSEventRead,
		Payload: model.ReadEvent{
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
			UserID:         client.UserID,
			ReadAt:         time.Now().UTC(),
		},
	})
}

func others(ids []uuid.UUID, self uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
