// Tool interaction HTTP handlers
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/service"
)

// ToolHandler exposes the active conversation's tools and the interactions
// that come back from them: checking off items, logging moods, committing
// affirmations.
type ToolHandler struct {
	chatService *service.ChatService
	store       *service.ConversationService
}

func NewToolHandler(chatService *service.ChatService, store *service.ConversationService) *ToolHandler {
	return &ToolHandler{
		chatService: chatService,
		store:       store,
	}
}

// RegisterRoutes registers tool routes
func (h *ToolHandler) RegisterRoutes(r *gin.RouterGroup) {
	tools := r.Group("/tools")
	{
		tools.GET("", h.List)
		tools.POST("/checklist/items", h.AddChecklistItem)
		tools.POST("/checklist/:toolId/complete", h.CompleteChecklistItem)
		tools.POST("/mood", h.LogMood)
		tools.POST("/affirmation/:toolId/commit", h.CommitAffirmation)
	}
}

// List returns the active conversation's tool instances grouped by kind.
// GET /api/tools
func (h *ToolHandler) List(c *gin.Context) {
	tools := h.store.Tools()
	if tools == nil {
		tools = db.ToolSet{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

// CompleteChecklistItem checks off one item by index.
// POST /api/tools/checklist/:toolId/complete
func (h *ToolHandler) CompleteChecklistItem(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	completed, reply, err := h.chatService.CompleteChecklistItem(c.Request.Context(), c.Param("toolId"), *req.Index)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrToolNotFound), errors.Is(err, service.ErrItemNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrTurnInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := gin.H{"completed": completed}
	if reply != nil {
		resp["reply"] = reply.Content
	}
	c.JSON(http.StatusOK, resp)
}

// AddChecklistItem adds one explicit item to the most recent checklist.
// POST /api/tools/checklist/items
func (h *ToolHandler) AddChecklistItem(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	toolID, err := h.chatService.AddChecklistItem(req.Text)
	if err != nil {
		if errors.Is(err, service.ErrNoChecklist) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"toolId": toolID})
}

// LogMood records a mood tap on the most recent mood tracker.
// POST /api/tools/mood
func (h *ToolHandler) LogMood(c *gin.Context) {
	var req struct {
		Mood string `json:"mood" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.chatService.LogMood(c.Request.Context(), req.Mood)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoMoodTracker):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrTurnInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := gin.H{"mood": req.Mood}
	if reply != nil {
		resp["reply"] = reply.Content
	}
	c.JSON(http.StatusOK, resp)
}

// CommitAffirmation reacts to the affirmation card's button.
// POST /api/tools/affirmation/:toolId/commit
func (h *ToolHandler) CommitAffirmation(c *gin.Context) {
	reply, err := h.chatService.CommitAffirmation(c.Request.Context(), c.Param("toolId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrToolNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrTurnInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := gin.H{"committed": true}
	if reply != nil {
		resp["reply"] = reply.Content
	}
	c.JSON(http.StatusOK, resp)
}
