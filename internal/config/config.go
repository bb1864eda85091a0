// Package config provides configuration loading for the document assistant.
// Supports YAML files, .env files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/doc-assistant/internal/domain"
)

// Config holds all configuration for the assistant.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Render        RenderConfig        `yaml:"render"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"` // 0 keeps SSE streams open
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// LLMConfig holds hosted inference settings.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"-"` // environment only
	VisionModel    string        `yaml:"vision_model"`
	ChatModel      string        `yaml:"chat_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // 0 blocks indefinitely
	MaxRetries     int           `yaml:"max_retries"`
}

// AnalysisConfig holds sampling parameters for the three model calls.
type AnalysisConfig struct {
	VisionTemperature float64       `yaml:"vision_temperature"`
	VisionMaxTokens   int           `yaml:"vision_max_tokens"`
	ChatTemperature   float64       `yaml:"chat_temperature"`
	ChatMaxTokens     int           `yaml:"chat_max_tokens"`
	TopP              float64       `yaml:"top_p"`
	TypingDelay       time.Duration `yaml:"typing_delay"`
}

// RenderConfig holds rasterization settings.
type RenderConfig struct {
	DPI      float64 `yaml:"dpi"`
	MaxPages int     `yaml:"max_pages"` // 0 means unlimited
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A missing GROQ_API_KEY is reported as a config error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the assistant's defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     0,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   32 << 20,
			AllowedOrigins:   []string{"*"},
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			VisionModel:    "llama-3.2-90b-vision-preview",
			ChatModel:      "llama-3.3-70b-versatile",
			RequestTimeout: 2 * time.Minute,
			MaxRetries:     2,
		},
		Analysis: AnalysisConfig{
			VisionTemperature: 0,
			VisionMaxTokens:   3990,
			ChatTemperature:   0.7,
			ChatMaxTokens:     1024,
			TopP:              1,
			TypingDelay:       10 * time.Millisecond,
		},
		Render: RenderConfig{
			DPI:      200,
			MaxPages: 0,
		},
		Session: SessionConfig{
			IdleTTL:       2 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "doc-assistant",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return domain.ConfigError("GROQ_API_KEY not found in environment variables", nil)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	if c.LLM.BaseURL == "" {
		return domain.ConfigError("llm.base_url is required", nil)
	}

	if c.LLM.VisionModel == "" || c.LLM.ChatModel == "" {
		return domain.ConfigError("llm.vision_model and llm.chat_model are required", nil)
	}

	if c.LLM.MaxRetries < 0 {
		return domain.ConfigError("llm.max_retries cannot be negative", nil)
	}

	if c.Analysis.VisionMaxTokens < 1 || c.Analysis.ChatMaxTokens < 1 {
		return domain.ConfigError("max token limits must be positive", nil)
	}

	if c.Analysis.TopP <= 0 || c.Analysis.TopP > 1 {
		return domain.ConfigError(fmt.Sprintf("top_p must be in (0, 1], got %v", c.Analysis.TopP), nil)
	}

	if c.Render.DPI <= 0 {
		return domain.ConfigError("render.dpi must be positive", nil)
	}

	if c.Render.MaxPages < 0 {
		return domain.ConfigError("render.max_pages cannot be negative", nil)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return domain.ConfigError("server.max_upload_bytes must be positive", nil)
	}

	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = strings.TrimRight(v, "/")
	}

	if v := os.Getenv("VISION_MODEL"); v != "" {
		cfg.LLM.VisionModel = v
	}

	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.LLM.ChatModel = v
	}

	if v := os.Getenv("LLM_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.RequestTimeout = d
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("RENDER_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.MaxPages = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
