package handler

import "github.com/gin-gonic/gin"

// RegisterChatRoutes mounts the conversation and message API on an
// authenticated group. sendLimit guards the routes that produce messages
// and may be nil.
func RegisterChatRoutes(r *gin.RouterGroup, h *ChatHandler, sendLimit gin.HandlerFunc) {
	limited := []gin.HandlerFunc{}
	if sendLimit != nil {
		limited = append(limited, sendLimit)
	}

	convs := r.Group("/conversations")
	{
		convs.GET("", h.ListConversations)
		convs.POST("", append(limited, h.CreateConversation)...)
		convs.GET("/:id", h.GetConversation)
		convs.PATCH("/:id", h.UpdateConversation)
		convs.DELETE("/:id", h.ArchiveConversation)

		convs.POST("/:id/participants", h.AddParticipant)
		convs.DELETE("/:id/participants/:userId", h.RemoveParticipant)
		convs.PUT("/:id/participants/:userId/role", h.SetRole)

		convs.GET("/:id/messages", h.ListMessages)
		convs.POST("/:id/messages", append(limited, h.SendMessage)...)
		convs.POST("/:id/read", h.MarkRead)
	}

	msgs := r.Group("/messages")
	{
		msgs.PATCH("/:id", append(limited, h.EditMessage)...)
		msgs.DELETE("/:id", h.DeleteMessage)
		msgs.PUT("/:id/reactions", h.React)
		msgs.DELETE("/:id/reactions", h.Unreact)
	}
}
