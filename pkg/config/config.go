package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.solace/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8844
// chat:
//   router: decider
//   memory_top_k: 4
// search:
//   enabled: true
//   base_url: http://localhost:8990
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Chat    ChatConfig    `yaml:"chat"`
	Search  SearchConfig  `yaml:"search"`
	Storage StorageConfig `yaml:"storage"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type ChatConfig struct {
	// GenerationModel and EmbeddingModel name entries in models.json.
	// Empty means "first model capable of the task".
	GenerationModel *string `yaml:"generation_model"`
	EmbeddingModel  *string `yaml:"embedding_model"`

	// Router selects how tool intents are detected: "decider" issues a
	// separate decision prompt, "marker" scans the reply for inline tags.
	Router *string `yaml:"router"`

	MemoryTopK *int    `yaml:"memory_top_k"`
	Persona    *string `yaml:"persona"`
}

type SearchConfig struct {
	Enabled *bool   `yaml:"enabled"`
	BaseURL *string `yaml:"base_url"`
}

type StorageConfig struct {
	// Path to the sqlite file holding the persisted agent state.
	// Empty means ~/.solace/solace.db.
	Path *string `yaml:"path"`
}

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 8844
	DefaultMemoryTopK = 4

	RouterModeDecider = "decider"
	RouterModeMarker  = "marker"
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".solace")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// DefaultStoragePath returns the default sqlite file path for agent state.
func DefaultStoragePath() (string, error) {
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "solace.db"), nil
}

// Load reads ~/.solace/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}
	// Defaults are applied via the accessor helpers.

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	switch mode := cfg.RouterMode(); mode {
	case RouterModeDecider, RouterModeMarker:
	default:
		return nil, "", fmt.Errorf("invalid chat.router %q in %s (want %q or %q)", mode, configFile, RouterModeDecider, RouterModeMarker)
	}

	if k := cfg.MemoryTopK(); k < 1 {
		return nil, "", fmt.Errorf("invalid chat.memory_top_k %d in %s", k, configFile)
	}

	if cfg.SearchEnabled() && strings.TrimSpace(cfg.SearchBaseURL()) == "" {
		return nil, "", fmt.Errorf("search.enabled is set but search.base_url is empty in %s", configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Chat:   ChatConfig{Router: ptr(RouterModeDecider), MemoryTopK: ptr(DefaultMemoryTopK)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil {
		return DefaultHost
	}
	if c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil {
		return DefaultPort
	}
	if c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) GenerationModel() string {
	if c == nil || c.Chat.GenerationModel == nil {
		return ""
	}
	return strings.TrimSpace(*c.Chat.GenerationModel)
}

func (c *AppConfig) EmbeddingModel() string {
	if c == nil || c.Chat.EmbeddingModel == nil {
		return ""
	}
	return strings.TrimSpace(*c.Chat.EmbeddingModel)
}

func (c *AppConfig) RouterMode() string {
	if c == nil || c.Chat.Router == nil {
		return RouterModeDecider
	}
	v := strings.TrimSpace(*c.Chat.Router)
	if v == "" {
		return RouterModeDecider
	}
	return v
}

func (c *AppConfig) MemoryTopK() int {
	if c == nil || c.Chat.MemoryTopK == nil {
		return DefaultMemoryTopK
	}
	return *c.Chat.MemoryTopK
}

func (c *AppConfig) Persona() string {
	if c == nil || c.Chat.Persona == nil {
		return ""
	}
	return strings.TrimSpace(*c.Chat.Persona)
}

func (c *AppConfig) SearchEnabled() bool {
	if c == nil || c.Search.Enabled == nil {
		return false
	}
	return *c.Search.Enabled
}

func (c *AppConfig) SearchBaseURL() string {
	if c == nil || c.Search.BaseURL == nil {
		return ""
	}
	return strings.TrimSpace(*c.Search.BaseURL)
}

func (c *AppConfig) StoragePath() string {
	if c == nil || c.Storage.Path == nil {
		return ""
	}
	return strings.TrimSpace(*c.Storage.Path)
}

func ptr[T any](v T) *T { return &v }
