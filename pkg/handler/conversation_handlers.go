// Conversation HTTP handlers
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/service"
)

// ConversationHandler exposes conversation lifecycle and history.
type ConversationHandler struct {
	store *service.ConversationService
}

func NewConversationHandler(store *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.GET("", h.List)
		conversations.POST("", h.Create)
		conversations.GET("/:id", h.Get)
		conversations.GET("/:id/messages", h.GetMessages)
		conversations.POST("/:id/activate", h.Activate)
		conversations.PUT("/:id/title", h.SetTitle)
		conversations.DELETE("/:id", h.Delete)
	}
}

// conversationSummary is the list-view shape: enough to render a sidebar
// without shipping histories and embeddings.
type conversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  int       `json:"messages"`
	Active    bool      `json:"active"`
}

func summarize(conv *db.Conversation, activeID string) conversationSummary {
	return conversationSummary{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  len(conv.History),
		Active:    conv.ID == activeID,
	}
}

// List returns all conversations, newest first.
// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	activeID := h.store.ActiveID()
	conversations := h.store.Conversations()
	summaries := make([]conversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summaries = append(summaries, summarize(conv, activeID))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries, "activeId": activeID})
}

// Create starts a new conversation and makes it active.
// POST /api/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	// The body is optional; a bare POST creates an untitled conversation.
	_ = c.ShouldBindJSON(&req)

	conv, err := h.store.CreateConversation(req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, summarize(conv, conv.ID))
}

// Get returns one conversation with history and tools. Memories stay out;
// they have their own endpoint.
// GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             conv.ID,
		"title":          conv.Title,
		"createdAt":      conv.CreatedAt,
		"updatedAt":      conv.UpdatedAt,
		"history":        conv.History,
		"tools":          conv.Tools,
		"completedTasks": conv.CompletedTasks,
		"active":         conv.ID == h.store.ActiveID(),
	})
}

// GetMessages returns a conversation's history.
// GET /api/conversations/:id/messages
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conv, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": conv.History})
}

// Activate switches the active conversation.
// POST /api/conversations/:id/activate
func (h *ConversationHandler) Activate(c *gin.Context) {
	if err := h.store.SetActive(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation activated", "activeId": c.Param("id")})
}

// SetTitle renames a conversation.
// PUT /api/conversations/:id/title
func (h *ConversationHandler) SetTitle(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SetTitle(c.Param("id"), req.Title); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation title updated"})
}

// Delete removes a conversation; another one (or a fresh one) takes over as
// active.
// DELETE /api/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted", "activeId": h.store.ActiveID()})
}
