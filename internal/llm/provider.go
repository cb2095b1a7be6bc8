package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default models per provider.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
)

// ErrEmptyCompletion is returned when the model produced no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// Provider sends completion requests to one LLM service.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string

	// BaseURL overrides the service endpoint, e.g. for a compatible proxy.
	BaseURL string
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s API key is not configured", cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
