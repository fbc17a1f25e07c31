// Package config loads and persists the Deskmate configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultConfigPath is where Load looks when no explicit path is given.
const DefaultConfigPath = "~/.deskmate/deskmate.json"

// AllowedUser is one allowlist entry. Either field may be "*" as a wildcard.
type AllowedUser struct {
	ClientType string `json:"clientType"`
	UserID     string `json:"userId"`
}

// GatewayConfig holds the core orchestration settings. Immutable after load.
type GatewayConfig struct {
	BotName      string        `json:"botName"`
	WorkingDir   string        `json:"workingDir"`
	AllowedUsers []AllowedUser `json:"allowedUsers"`
	MaxTurns     int           `json:"maxTurns"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	StoragePath  string        `json:"storagePath,omitempty"`
}

// SessionConfig controls session idle expiration and pruning.
type SessionConfig struct {
	IdleTimeoutMinutes   int `json:"idleTimeoutMinutes"`
	PruneIntervalMinutes int `json:"pruneIntervalMinutes"`
}

// ApprovalConfig controls the approval workflow.
type ApprovalConfig struct {
	RequireForAll        bool     `json:"requireForAll"`
	TimeoutSeconds       int      `json:"timeoutSeconds"`
	FolderTimeoutSeconds int      `json:"folderTimeoutSeconds"`
	AutoApproveCommands  []string `json:"autoApproveCommands,omitempty"`
}

// TelegramConfig configures the Telegram front-end.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
}

// AgentConfig configures the agent provider backend.
type AgentConfig struct {
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens"`
}

// Config represents the merged deskmate configuration
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Session  SessionConfig  `json:"session"`
	Approval ApprovalConfig `json:"approval"`
	Telegram TelegramConfig `json:"telegram"`
	Agent    AgentConfig    `json:"agent"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BotName:  "Deskmate",
			MaxTurns: 20,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:   180,
			PruneIntervalMinutes: 10,
		},
		Approval: ApprovalConfig{
			TimeoutSeconds:       300,
			FolderTimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 8192,
		},
	}
}

// Load reads configuration from path, or the default location when path is
// empty. A missing file yields defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	path = ExpandHome(path)

	cfg := Defaults()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.Gateway.WorkingDir == "" {
		home, _ := os.UserHomeDir()
		cfg.Gateway.WorkingDir = filepath.Join(home, ".deskmate", "workspace")
	}
	cfg.Gateway.WorkingDir = ExpandHome(cfg.Gateway.WorkingDir)
	if cfg.Gateway.StoragePath != "" {
		cfg.Gateway.StoragePath = ExpandHome(cfg.Gateway.StoragePath)
	}

	return cfg, nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
