package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solace-ai/solace/pkg/models"
)

// GetModelPresets returns the provider preset catalogue the model settings
// screen offers before any model is configured.
func GetModelPresets(c *gin.Context) {
	presets, err := models.LoadPresets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to load model presets: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": presets})
}
