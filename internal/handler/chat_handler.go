package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/middleware"
	"github.com/quocanhngo/talkcore/internal/model"
	"github.com/quocanhngo/talkcore/internal/service"
	"go.uber.org/zap"
)

// ChatHandler handles conversation and message HTTP endpoints
type ChatHandler struct {
	chatService *service.ChatService
	log         *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{chatService: chatService, log: log.Named("handler")}
}

// ========== Conversations ==========

// CreateConversation godoc
// @Summary Create a conversation
// @Description Creates a direct or group conversation. A direct conversation that already exists yields 409 with its id.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.CreateConversationRequest true "Create conversation request"
// @Success 201 {object} model.Conversation
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ConflictResponse
// @Router /conversations [post]
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req model.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.chatService.CreateConversation(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) && conv != nil {
			c.JSON(http.StatusConflict, model.ConflictResponse{
				Error:          "Conversation already exists",
				ConversationID: conv.ID,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// ListConversations godoc
// @Summary List the caller's conversations
// @Description Most recent activity first. Archived conversations are hidden until they receive a new message.
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param cursor query string false "Opaque cursor from a previous page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} model.ConversationListResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /conversations [get]
func (h *ChatHandler) ListConversations(c *gin.Context) {
	var req model.ConversationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	resp, err := h.chatService.ListConversations(c.Request.Context(), middleware.UserID(c), req.Cursor, req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetConversation godoc
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.ConversationResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.chatService.GetConversation(c.Request.Context(), convID, middleware.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// UpdateConversation godoc
// @Summary Update group info
// @Description Admins may change the title, description and image of a group.
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.UpdateConversationRequest true "Fields to change"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id} [patch]
func (h *ChatHandler) UpdateConversation(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.chatService.UpdateGroupInfo(c.Request.Context(), convID, middleware.UserID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ArchiveConversation godoc
// @Summary Archive a conversation for the caller
// @Tags Conversations
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 204
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id} [delete]
func (h *ChatHandler) ArchiveConversation(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chatService.ArchiveConversation(c.Request.Context(), convID, middleware.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddParticipant godoc
// @Summary Add a member to a group
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.AddParticipantRequest true "User to add"
// @Success 200 {object} model.Conversation
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/participants [post]
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.AddParticipantRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.chatService.AddParticipant(c.Request.Context(), convID, middleware.UserID(c), req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// RemoveParticipant godoc
// @Summary Remove a member from a group, or leave it
// @Tags Conversations
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Success 204
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/participants/{userId} [delete]
func (h *ChatHandler) RemoveParticipant(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := h.chatService.RemoveParticipant(c.Request.Context(), convID, middleware.UserID(c), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetRole godoc
// @Summary Change a member's role
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param userId path string true "User ID"
// @Param body body model.SetRoleRequest true "New role"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/participants/{userId}/role [put]
func (h *ChatHandler) SetRole(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	var req model.SetRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.chatService.SetRole(c.Request.Context(), convID, middleware.UserID(c), userID, req.Role); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Role updated"})
}

// ========== Messages ==========

// ListMessages godoc
// @Summary Get messages of a conversation
// @Description Newest first. Pass next_before from the previous page to page back.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param before query int false "Only messages with a lower sequence number"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} model.MessageListResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) ListMessages(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	resp, err := h.chatService.ListMessages(c.Request.Context(), convID, middleware.UserID(c), req.Before, req.Limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SendMessage godoc
// @Summary Send a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.SendMessageRequest true "Message"
// @Success 201 {object} model.Message
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), convID, middleware.UserID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead godoc
// @Summary Mark a conversation read up to a message
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.MarkReadRequest true "Last read message"
// @Success 200 {object} model.MarkReadResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}

	unread, err := h.chatService.MarkRead(c.Request.Context(), convID, middleware.UserID(c), req.MessageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MarkReadResponse{UnreadCount: unread})
}

// EditMessage godoc
// @Summary Edit a message
// @Description Only the sender may edit. Deleted messages cannot be edited.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.EditMessageRequest true "New content"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Failure 410 {object} model.ErrorResponse
// @Router /messages/{id} [patch]
func (h *ChatHandler) EditMessage(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.EditMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.EditMessage(c.Request.Context(), msgID, middleware.UserID(c), req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage godoc
// @Summary Delete a message
// @Description Only the sender may delete. The message stays in history as a placeholder.
// @Tags Messages
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 204
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id} [delete]
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chatService.DeleteMessage(c.Request.Context(), msgID, middleware.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// React godoc
// @Summary React to a message
// @Description Replaces the caller's previous reaction on the message.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.ReactionRequest true "Emoji"
// @Success 200 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id}/reactions [put]
func (h *ChatHandler) React(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.ReactionRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.React(c.Request.Context(), msgID, middleware.UserID(c), req.Emoji)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Unreact godoc
// @Summary Remove the caller's reaction
// @Tags Messages
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 204
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id}/reactions [delete]
func (h *ChatHandler) Unreact(c *gin.Context) {
	msgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.chatService.Unreact(c.Request.Context(), msgID, middleware.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ========== helpers ==========

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses. Every forbidden
// outcome reads the same so callers learn nothing about what exists.
func (h *ChatHandler) respondError(c *gin.Context, err error) {
	var e *apperr.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Msg
	}

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: msg})
	case apperr.KindForbidden:
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "You can't do that"})
	case apperr.KindAlreadyExists:
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: msg})
	case apperr.KindInvalidArgument:
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: msg})
	case apperr.KindGone:
		c.JSON(http.StatusGone, model.ErrorResponse{Error: msg})
	default:
		_ = c.Error(err)
		h.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Something went wrong"})
	}
}
