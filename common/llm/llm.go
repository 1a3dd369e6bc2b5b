package llm

import (
	"context"
	"fmt"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Role constants for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config holds LLM client configuration.
type Config struct {
	Provider string // "openai" or "anthropic"
	APIKey   string // Required: API key for the provider
	BaseURL  string // Optional: custom API endpoint
	Model    string // Model name (e.g., "gpt-4o", "claude-sonnet-4-5-20250514")
}

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string // Text content
}

// Request contains the full turn list for one completion call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64 // nil = model default
}

// DeltaFunc receives each incremental text delta of a streaming completion,
// in arrival order. Returning an error aborts the stream.
type DeltaFunc func(delta string) error

// Client is a chat-completion client with both buffered and streaming modes.
//
// Complete issues one upstream request and returns the full response text.
// Stream opens one upstream streaming request, invokes onDelta for every
// incremental chunk, and returns the provider's accumulated full text once
// the stream ends. Both make exactly one attempt; retries are the caller's
// decision.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (string, error)
	Model() string
}

// New creates a Client for the configured provider.
// Defaults to OpenAI if no provider is specified.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
