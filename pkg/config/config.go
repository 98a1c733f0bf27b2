package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

// Intake modes supported by the telegram channel.
const (
	IntakeModePoll    = "poll"
	IntakeModeWebhook = "webhook"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Relay     RelayConfig     `json:"relay,omitempty"`
	Gateway   GatewayConfig   `json:"gateway,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures the Telegram channel.
//
// Mode selects how updates are ingested: "poll" (long polling, default)
// or "webhook" (push endpoint served by the gateway).
type TelegramConfig struct {
	Token     string   `json:"token"`
	Mode      string   `json:"mode,omitempty"`
	Proxy     string   `json:"proxy,omitempty"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	// Default names the backend used for completions: "gemini" or "openai".
	Default string       `json:"default,omitempty"`
	Gemini  GeminiConfig `json:"gemini"`
	OpenAI  OpenAIConfig `json:"openai,omitempty"`
}

// GeminiConfig configures the native generateContent backend.
type GeminiConfig struct {
	APIKeyEnv             string `json:"api_key_env,omitempty"`
	Model                 string `json:"model,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible alternate backend.
type OpenAIConfig struct {
	APIKeyEnv             string `json:"api_key_env,omitempty"`
	Model                 string `json:"model,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// RelayConfig bounds the network hops of one relay.
type RelayConfig struct {
	SendTimeoutSeconds     int `json:"send_timeout_seconds,omitempty"`
	DownloadTimeoutSeconds int `json:"download_timeout_seconds,omitempty"`
	CompleteTimeoutSeconds int `json:"complete_timeout_seconds,omitempty"`
}

// GatewayConfig configures the webhook/health HTTP server.
type GatewayConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// IntakeMode returns the normalized intake mode, defaulting to long polling.
func (c *Config) IntakeMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.Channels.Telegram.Mode))
	if mode == "" {
		return IntakeModePoll
	}

	return mode
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is GEMBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("GEMBOT_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("GEMBOT_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
