package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel   OTelConfig
	LLM    LLMConfig
	Source SourceConfig
	Cache  CacheConfig
	Client ClientConfig
	Env    string
	Port   string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

type LLMConfig struct {
	Provider    string // "openai" or "anthropic"
	APIKey      string
	BaseURL     string // Optional: for custom endpoints
	Model       string
	MaxTokens   int
	Temperature float64
}

// SourceConfig describes how LaTeX source is fetched for a paper id.
// The command receives the paper id as its single argument and must print
// the expanded source on stdout.
type SourceConfig struct {
	Command string
	Timeout time.Duration
}

type CacheConfig struct {
	RedisURL string // empty = in-process cache only
	TTL      time.Duration
}

// ClientConfig is used by the chat client binary only.
type ClientConfig struct {
	ServerURL    string
	StallTimeout time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeChat   ServiceType = "chat"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the relay server
//   - .env.chat for the terminal client
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("PAPERTALK_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("PAPERTALK_ENV", "development"),
		Port: getEnv("PORT", "3001"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "papertalk-relay"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("PAPERTALK_ENV", "development"),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			APIKey:      getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8192),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
		},
		Source: SourceConfig{
			Command: getEnv("SOURCE_COMMAND", "arxiv-to-prompt"),
			Timeout: time.Duration(getEnvInt("SOURCE_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      time.Duration(getEnvInt("SOURCE_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},
		Client: ClientConfig{
			ServerURL:    getEnv("SERVER_URL", "http://localhost:3001"),
			StallTimeout: time.Duration(getEnvInt("STREAM_STALL_SECONDS", 60)) * time.Second,
		},
	}

	if serviceType == ServiceTypeServer && cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("LLM_API_KEY (or OPENAI_API_KEY) is required")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c CacheConfig) RedisEnabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}
