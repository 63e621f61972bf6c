package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	envConfigPath   = "QUALICHAT_CONFIG"
	envGeminiAPIKey = "GEMINI_API_KEY"
	envOpenAIAPIKey = "OPENAI_API_KEY"
	envJWTSecret    = "QUALICHAT_JWT_SECRET"
	envRedisAddr    = "REDIS_ADDR"
	envSearchAPIURL = "QUALIWO_SEARCH_API_URL"
	envTelegramBot  = "TELEGRAM_BOT_TOKEN"
	envServerPort   = "PORT"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Providers ProvidersConfig `json:"providers"`
	Shop      ShopConfig      `json:"shop"`
	Auth      AuthConfig      `json:"auth"`
	Channels  ChannelsConfig  `json:"channels"`
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// AgentConfig contains reasoning-loop defaults.
type AgentConfig struct {
	MaxIterations      int     `json:"max_iterations"`
	ToolTimeoutSeconds int     `json:"tool_timeout_seconds"`
	MaxTokens          int     `json:"max_tokens"`
	Temperature        float64 `json:"temperature"`
}

// ProvidersConfig stores per-provider connection settings, in priority order:
// gemini first, openai as fallback.
type ProvidersConfig struct {
	Gemini GeminiProviderConfig `json:"gemini"`
	OpenAI OpenAIProviderConfig `json:"openai"`
}

// GeminiProviderConfig configures the Gemini provider client.
type GeminiProviderConfig struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key,omitempty"`
	Model                 string `json:"model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	Model                 string `json:"model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// ShopConfig configures the catalog, cart, and payment collaborators.
type ShopConfig struct {
	SearchBaseURL        string `json:"search_base_url"`
	SearchTimeoutSeconds int    `json:"search_timeout_seconds"`
	RedisAddr            string `json:"redis_addr,omitempty"`
	RedisPassword        string `json:"redis_password,omitempty"`
	RedisDB              int    `json:"redis_db,omitempty"`
	DefaultSearchLimit   int    `json:"default_search_limit"`
}

// AuthConfig configures the bearer-identity boundary.
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// ServerConfig configures HTTP bind settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
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
	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a runnable configuration without a config file on disk.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			Gemini: GeminiProviderConfig{Enabled: true},
			OpenAI: OpenAIProviderConfig{Enabled: true},
		},
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if key := strings.TrimSpace(os.Getenv(envGeminiAPIKey)); key != "" {
		cfg.Providers.Gemini.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv(envOpenAIAPIKey)); key != "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(envJWTSecret)); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if addr := strings.TrimSpace(os.Getenv(envRedisAddr)); addr != "" {
		cfg.Shop.RedisAddr = addr
	}
	if baseURL := strings.TrimSpace(os.Getenv(envSearchAPIURL)); baseURL != "" {
		cfg.Shop.SearchBaseURL = baseURL
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramBot)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if raw := strings.TrimSpace(os.Getenv(envServerPort)); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = 6
	}
	if cfg.Agent.ToolTimeoutSeconds <= 0 {
		cfg.Agent.ToolTimeoutSeconds = 10
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = 2048
	}
	if cfg.Agent.Temperature <= 0 {
		cfg.Agent.Temperature = 0.7
	}
	if cfg.Providers.Gemini.Model == "" {
		cfg.Providers.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Providers.Gemini.RequestTimeoutSeconds <= 0 {
		cfg.Providers.Gemini.RequestTimeoutSeconds = 60
	}
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Providers.OpenAI.RequestTimeoutSeconds <= 0 {
		cfg.Providers.OpenAI.RequestTimeoutSeconds = 60
	}
	if cfg.Shop.SearchBaseURL == "" {
		cfg.Shop.SearchBaseURL = "https://apiquali.vercel.app"
	}
	if cfg.Shop.SearchTimeoutSeconds <= 0 {
		cfg.Shop.SearchTimeoutSeconds = 10
	}
	if cfg.Shop.DefaultSearchLimit <= 0 {
		cfg.Shop.DefaultSearchLimit = 10
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
}

func findConfigPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(envConfigPath)); override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("config file %s: %w", override, err)
		}
		return override, nil
	}

	if _, err := os.Stat("config.json"); err == nil {
		return "config.json", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	fallback := filepath.Join(home, ".qualichat", "config.json")
	if _, err := os.Stat(fallback); err != nil {
		return "", fmt.Errorf("no config.json found in working directory or %s", fallback)
	}

	return fallback, nil
}
