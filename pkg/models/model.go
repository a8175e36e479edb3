package models

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const modelFileName = ".solace/models.json"

// ============================================================
// Task Type Constants
// ============================================================

const (
	TaskTypeChat          = "chat"           // Conversational text generation
	TaskTypeTextEmbedding = "text_embedding" // Text to vector
)

// SupportedTaskTypes all valid task type values
var SupportedTaskTypes = map[string]struct{}{
	TaskTypeChat:          {},
	TaskTypeTextEmbedding: {},
}

// SupportedModelProviders supported model providers. Only locally hosted
// backends are allowed: Ollama, or any server speaking the OpenAI API
// (llama.cpp, LM Studio, vLLM, Ollama's own /v1 endpoint).
var SupportedModelProviders = map[string]struct{}{
	"ollama": {},
	"openai": {},
	"custom": {},
}

// ModelConfig describes one configured model endpoint.
// Extra stores provider specific additional parameters.
type ModelConfig struct {
	ID        string                 `json:"id"`         // Assigned on creation
	Name      string                 `json:"name"`       // Display name, unique
	Provider  string                 `json:"provider"`   // ollama | openai | custom
	Model     string                 `json:"model"`      // Model identifier
	BaseUrl   string                 `json:"base_url"`   // API endpoint
	ApiKey    string                 `json:"api_key"`    // API key (OpenAI-compatible servers may ignore it)
	TaskTypes []string               `json:"task_types"` // chat, text_embedding
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

func (m *ModelConfig) Normalize() {
	if m.Provider == "" {
		m.Provider = "ollama"
	}
	if len(m.TaskTypes) == 0 {
		m.TaskTypes = []string{TaskTypeChat}
	}
	if m.BaseUrl == "" && m.Provider == "ollama" {
		m.BaseUrl = "http://localhost:11434"
	}
}

// SupportsTask reports whether the model is configured for the given task type.
func (m *ModelConfig) SupportsTask(task string) bool {
	for _, t := range m.TaskTypes {
		if t == task {
			return true
		}
	}
	return false
}

// DefaultModels seeds a first-run models.json: a local Ollama chat model and
// a local Ollama embedding model.
func DefaultModels() []*ModelConfig {
	return []*ModelConfig{
		{
			Name:      "local-chat",
			Provider:  "ollama",
			Model:     "llama3.1:8b",
			BaseUrl:   "http://localhost:11434",
			TaskTypes: []string{TaskTypeChat},
		},
		{
			Name:      "local-embed",
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseUrl:   "http://localhost:11434",
			TaskTypes: []string{TaskTypeTextEmbedding},
		},
	}
}

// EnsureDefaultModels writes a starter models.json on first run. An existing
// file, even one holding an empty list, is left alone.
func EnsureDefaultModels() (string, error) {
	path := getModelFilePath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	defaults := DefaultModels()
	for _, m := range defaults {
		m.ID = uuid.New().String()
	}
	if err := SaveModels(defaults); err != nil {
		return "", err
	}
	return path, nil
}

// Get model storage file path
func getModelFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return modelFileName // fallback
	}
	return filepath.Join(home, modelFileName)
}

// Load model list
func LoadModels() ([]*ModelConfig, error) {
	path := getModelFilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []*ModelConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []*ModelConfig
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	return models, nil
}

// Save model list
func SaveModels(models []*ModelConfig) error {
	path := getModelFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
