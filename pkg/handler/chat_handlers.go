// Chat HTTP handlers
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solace-ai/solace/pkg/service"
)

// ChatHandler handles the chat turn endpoint.
type ChatHandler struct {
	chatService *service.ChatService
	store       *service.ConversationService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService, store *service.ConversationService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		store:       store,
	}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Send)
}

// Send handles one user turn.
// POST /api/chat
func (h *ChatHandler) Send(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chatService.Send(c.Request.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTurnInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply":          msg.Content,
		"sentAt":         msg.SentAt,
		"conversationId": h.store.ActiveID(),
	})
}
