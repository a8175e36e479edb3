package models

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed presets.json
var presetsFS embed.FS

const presetsFileName = ".solace/model_providers.json"

// ModelPreset is one suggested model for a provider, shown in the model
// settings screen before the user has configured anything.
type ModelPreset struct {
	Model       string   `json:"model"`
	Name        string   `json:"name"`
	TaskTypes   []string `json:"task_types"`
	Description string   `json:"description,omitempty"`
}

// ProviderPreset groups the suggested models and extra form fields for one
// provider. Only locally hosted providers ship as presets.
type ProviderPreset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	BaseURL     string        `json:"base_url"`
	Presets     []ModelPreset `json:"presets"`
	ExtraFields []ExtraField  `json:"extra_fields,omitempty"`
}

// ExtraField describes an additional input a provider's config form needs.
type ExtraField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
}

// PresetsConfig holds all provider presets.
type PresetsConfig struct {
	Providers []ProviderPreset `json:"providers"`
}

// getPresetsFilePath returns the full path to the user's presets file.
func getPresetsFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return presetsFileName
	}
	return filepath.Join(home, presetsFileName)
}

// loadEmbeddedPresets reads the presets shipped with the binary.
func loadEmbeddedPresets() (*PresetsConfig, error) {
	data, err := presetsFS.ReadFile("presets.json")
	if err != nil {
		return nil, err
	}
	var config PresetsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadPresets reads the user's presets file, seeding it from the embedded
// copy on first use. A user file that fails to parse is rebuilt the same way.
func LoadPresets() (*PresetsConfig, error) {
	path := getPresetsFilePath()

	if data, err := os.ReadFile(path); err == nil {
		var config PresetsConfig
		if err := json.Unmarshal(data, &config); err == nil {
			return &config, nil
		}
	}

	config, err := loadEmbeddedPresets()
	if err != nil {
		return nil, err
	}

	// Seeding is best effort; the embedded copy still serves this call.
	_ = SavePresets(config)

	return config, nil
}

// SavePresets writes the presets config to the user's home directory.
func SavePresets(config *PresetsConfig) error {
	path := getPresetsFilePath()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
