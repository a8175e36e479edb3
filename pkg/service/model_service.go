package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/models"
	"github.com/solace-ai/solace/pkg/utils"
)

var (
	ErrModelNotConfigured = errors.New("model not configured")
	ErrSchemaMismatch     = errors.New("model output did not match expected schema")
)

// Generator produces text from a locally hosted language model.
// GenerateStructured expects the prompt to demand JSON-only output and
// unmarshals the reply into out, returning ErrSchemaMismatch when the
// model produced something else.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

// Embedder turns a piece of text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ModelService resolves configured models and exposes them as Generator
// and Embedder. Model configs live in ~/.solace/models.json; which ones
// are used for generation and embedding comes from the app config.
type ModelService struct {
	cfg    *config.AppConfig
	logger *slog.Logger

	mu        sync.Mutex
	chatName  string
	chatModel einoModel.ToolCallingChatModel
	embedName string
	embedder  embedding.Embedder
}

func NewModelService(cfg *config.AppConfig) *ModelService {
	return &ModelService{
		cfg:    cfg,
		logger: utils.GetLogger(),
	}
}

// Generate sends a single-user-turn prompt and returns the reply text.
func (m *ModelService) Generate(ctx context.Context, prompt string) (string, error) {
	chatModel, err := m.chatModelFromConfig(ctx)
	if err != nil {
		return "", err
	}
	resp, err := chatModel.Generate(ctx, []*schema.Message{{Role: schema.User, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return resp.Content, nil
}

// GenerateStructured generates a reply and unmarshals it into out. The
// reply is first trimmed to its outermost JSON value since local models
// tend to wrap JSON in prose or markdown fences.
func (m *ModelService) GenerateStructured(ctx context.Context, prompt string, out any) error {
	raw, err := m.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	trimmed := trimToJSON(raw)
	if trimmed == "" {
		m.logger.Warn("Model reply contained no JSON", "reply", raw)
		return fmt.Errorf("%w: no JSON value in reply", ErrSchemaMismatch)
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		m.logger.Warn("Failed to parse model JSON", "error", err, "reply", trimmed)
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

// Embed embeds one text and returns its vector.
func (m *ModelService) Embed(ctx context.Context, text string) ([]float64, error) {
	embedder, err := m.embedderFromConfig(ctx)
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return vectors[0], nil
}

// trimToJSON cuts a reply down to its outermost JSON object or array.
func trimToJSON(s string) string {
	objIdx := strings.Index(s, "{")
	arrIdx := strings.Index(s, "[")
	switch {
	case objIdx == -1 && arrIdx == -1:
		return ""
	case arrIdx == -1 || (objIdx != -1 && objIdx < arrIdx):
		end := strings.LastIndex(s, "}")
		if end < objIdx {
			return ""
		}
		return s[objIdx : end+1]
	default:
		end := strings.LastIndex(s, "]")
		if end < arrIdx {
			return ""
		}
		return s[arrIdx : end+1]
	}
}

// chatModelFromConfig returns the chat model named by the app config,
// creating and caching it on first use.
func (m *ModelService) chatModelFromConfig(ctx context.Context) (einoModel.ToolCallingChatModel, error) {
	name := m.cfg.GenerationModel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chatModel != nil && m.chatName == name {
		return m.chatModel, nil
	}
	modelConfig, err := m.resolveModel(name, models.TaskTypeChat)
	if err != nil {
		return nil, err
	}
	chatModel, err := m.CreateChatModel(ctx, modelConfig)
	if err != nil {
		return nil, err
	}
	m.chatModel, m.chatName = chatModel, name
	return chatModel, nil
}

// embedderFromConfig returns the embedder named by the app config,
// creating and caching it on first use.
func (m *ModelService) embedderFromConfig(ctx context.Context) (embedding.Embedder, error) {
	name := m.cfg.EmbeddingModel()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedder != nil && m.embedName == name {
		return m.embedder, nil
	}
	modelConfig, err := m.resolveModel(name, models.TaskTypeTextEmbedding)
	if err != nil {
		return nil, err
	}
	embedder, err := m.CreateEmbedder(ctx, modelConfig)
	if err != nil {
		return nil, err
	}
	m.embedder, m.embedName = embedder, name
	return embedder, nil
}

// resolveModel finds a registered model by name or model identifier. An
// empty name falls back to the first model supporting the task.
func (m *ModelService) resolveModel(name, task string) (*models.ModelConfig, error) {
	modelsList, err := models.LoadModels()
	if err != nil {
		return nil, err
	}
	for _, mc := range modelsList {
		mc.Normalize()
		if name != "" && mc.Name != name && mc.Model != name {
			continue
		}
		if mc.SupportsTask(task) {
			return mc, nil
		}
	}
	return nil, fmt.Errorf("%w: no model for task %s (name %q)", ErrModelNotConfigured, task, name)
}

// CreateChatModel creates an eino chat model from config
func (m *ModelService) CreateChatModel(ctx context.Context, config *models.ModelConfig) (einoModel.ToolCallingChatModel, error) {
	if config == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	switch config.Provider {
	case "openai", "custom":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI-compatible model: %w", err)
		}
		return chatModel, nil

	case "ollama":
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: config.BaseUrl,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", config.Provider)
	}
}

// CreateEmbedder creates an eino embedder from config
func (m *ModelService) CreateEmbedder(ctx context.Context, config *models.ModelConfig) (embedding.Embedder, error) {
	if config == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	switch config.Provider {
	case "openai", "custom":
		embedder, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI-compatible embedder: %w", err)
		}
		return embedder, nil

	case "ollama":
		embedder, err := ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: config.BaseUrl,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama embedder: %w", err)
		}
		return embedder, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", config.Provider)
	}
}

// GetModelList fetch model list
// Supports optional query parameter:
// - task_types: filter by task type (e.g., "chat", "text_embedding")
func (m *ModelService) GetModelList(c *gin.Context) {
	modelsList, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}

	taskTypesFilter := c.Query("task_types")

	filteredModels := make([]*models.ModelConfig, 0, len(modelsList))
	for _, mm := range modelsList {
		mm.Normalize()
		mm.ApiKey = utils.MaskSensitiveString(mm.ApiKey)

		if taskTypesFilter != "" && !mm.SupportsTask(taskTypesFilter) {
			continue
		}

		filteredModels = append(filteredModels, mm)
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": filteredModels})
}

// AddModel add a new model
func (m *ModelService) AddModel(c *gin.Context) {
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Invalid parameters"})
		return
	}
	req.Normalize()
	if req.Name == "" || req.Provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Name and provider required"})
		return
	}
	if _, ok := models.SupportedModelProviders[req.Provider]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Unsupported model provider"})
		return
	}
	if req.Provider != "ollama" && req.BaseUrl == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Base URL required for OpenAI-compatible servers"})
		return
	}
	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}
	for _, mm := range currentModels {
		if mm.Name == req.Name {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Model name already exists"})
			return
		}
	}
	req.ID = uuid.New().String()
	currentModels = append(currentModels, &req)
	if err := models.SaveModels(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to save model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "Added successfully"})
}

// EditModel update an existing model
func (m *ModelService) EditModel(c *gin.Context) {
	id := c.Param("id")
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Invalid parameters"})
		return
	}
	req.Normalize()
	if req.Name == "" || req.Provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Name and provider required"})
		return
	}
	if _, ok := models.SupportedModelProviders[req.Provider]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Unsupported model provider"})
		return
	}

	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}
	found := false
	for i, mm := range currentModels {
		if mm.ID == id {
			// Name uniqueness check
			for _, other := range currentModels {
				if other.Name == req.Name && other.ID != id {
					c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Model name already exists"})
					return
				}
			}
			currentModels[i] = &req
			currentModels[i].ID = id // keep ID unchanged
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "Model not found"})
		return
	}
	if err := models.SaveModels(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to save model"})
		return
	}

	// Invalidate cached clients so the next call picks up the edit
	m.mu.Lock()
	m.chatModel, m.chatName = nil, ""
	m.embedder, m.embedName = nil, ""
	m.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "Updated successfully"})
}

// DeleteModel delete model
func (m *ModelService) DeleteModel(c *gin.Context) {
	id := c.Param("id")
	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}
	idx := -1
	for i, mm := range currentModels {
		if mm.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "Model not found"})
		return
	}
	currentModels = append(currentModels[:idx], currentModels[idx+1:]...)
	if err := models.SaveModels(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to save model"})
		return
	}

	m.mu.Lock()
	m.chatModel, m.chatName = nil, ""
	m.embedder, m.embedName = nil, ""
	m.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "Deleted successfully"})
}

// TestModelConnection connectivity test for model provider
func (m *ModelService) TestModelConnection(c *gin.Context) {
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Invalid parameters: " + err.Error()})
		return
	}
	req.Normalize()
	if _, ok := models.SupportedModelProviders[req.Provider]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Unsupported model provider"})
		return
	}

	ctx := c.Request.Context()

	if req.SupportsTask(models.TaskTypeChat) {
		chatModel, err := m.CreateChatModel(ctx, &req)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Model init failed: " + err.Error()})
			return
		}
		if _, err := chatModel.Generate(ctx, []*schema.Message{{Role: schema.User, Content: "Hi"}}); err != nil {
			c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Connection failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200, "success": true, "message": "Connection successful"})
		return
	}

	if req.SupportsTask(models.TaskTypeTextEmbedding) {
		embedder, err := m.CreateEmbedder(ctx, &req)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Embedder init failed: " + err.Error()})
			return
		}
		if _, err := embedder.EmbedStrings(ctx, []string{"Hi"}); err != nil {
			c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Connection failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 200, "success": true, "message": "Connection successful"})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "No testable task type configured"})
}

// GetProviderApiKeys returns saved API keys and base URLs for a specific provider
func (m *ModelService) GetProviderApiKeys(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Provider parameter required"})
		return
	}

	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}

	apiKeySet := make(map[string]struct{})
	baseUrlSet := make(map[string]struct{})

	for _, mm := range currentModels {
		if mm.Provider == provider {
			if mm.ApiKey != "" {
				apiKeySet[mm.ApiKey] = struct{}{}
			}
			if mm.BaseUrl != "" {
				baseUrlSet[mm.BaseUrl] = struct{}{}
			}
		}
	}

	type KeyInfo struct {
		Value   string `json:"value"`
		Display string `json:"display"`
	}

	var apiKeys []KeyInfo
	for key := range apiKeySet {
		apiKeys = append(apiKeys, KeyInfo{
			Value:   key,
			Display: utils.MaskSensitiveString(key),
		})
	}

	var baseUrls []string
	for url := range baseUrlSet {
		baseUrls = append(baseUrls, url)
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"data": gin.H{
			"api_keys":  apiKeys,
			"base_urls": baseUrls,
		},
	})
}
