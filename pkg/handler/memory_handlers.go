// Memory API handlers
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solace-ai/solace/pkg/service"
)

// MemoryHandler exposes the active conversation's extracted memories.
type MemoryHandler struct {
	store         *service.ConversationService
	memoryService *service.MemoryService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(store *service.ConversationService, memoryService *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{
		store:         store,
		memoryService: memoryService,
	}
}

// RegisterRoutes registers memory routes
func (h *MemoryHandler) RegisterRoutes(r *gin.RouterGroup) {
	memories := r.Group("/memories")
	{
		memories.GET("", h.ListMemories)
		memories.POST("/search", h.SearchMemories)
	}
}

// ListMemories lists the active conversation's memories, embeddings omitted.
// GET /api/memories
func (h *MemoryHandler) ListMemories(c *gin.Context) {
	type memoryView struct {
		Text    string    `json:"text"`
		AddedAt time.Time `json:"addedAt"`
	}
	entries := h.store.Memories()
	out := make([]memoryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, memoryView{Text: entry.Text, AddedAt: entry.AddedAt})
	}
	c.JSON(http.StatusOK, gin.H{"memories": out})
}

// SearchMemories ranks the active conversation's memories against a query.
// POST /api/memories/search
func (h *MemoryHandler) SearchMemories(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
		TopK  int    `json:"topK"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.memoryService.Retrieve(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
