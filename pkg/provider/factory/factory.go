// Package factory selects a provider adapter from a model identifier.
// Dispatch is a deterministic string-prefix match: "claude-*" and
// "anthropic:*" map to Anthropic, "gpt-*" and "openai:*" to OpenAI,
// "ollama:*" to Ollama. Unknown prefixes fall back to the configured
// default provider and model pair.
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/provider"
	"github.com/simstudio/copilot-gateway/pkg/provider/anthropic"
	"github.com/simstudio/copilot-gateway/pkg/provider/ollama"
	"github.com/simstudio/copilot-gateway/pkg/provider/openai"
)

// Config holds the environment-level provider settings the factory
// falls back to when no per-user key is supplied.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaURL       string

	// DefaultProvider and DefaultModel are used when the model
	// identifier matches no known prefix.
	DefaultProvider string
	DefaultModel    string

	Timeout    time.Duration
	MaxRetries int
}

// Factory builds provider adapters by model prefix.
type Factory struct {
	cfg Config
}

// New creates a Factory. DefaultProvider defaults to "anthropic" and
// OllamaURL to the local daemon address.
func New(cfg Config) *Factory {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-3-5-sonnet-20241022"
	}
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = "http://localhost:11434"
	}
	return &Factory{cfg: cfg}
}

// ProviderNameForModel returns the provider a model identifier maps to,
// or "" when the prefix is unknown. Used to look up per-user API keys
// before the adapter is constructed.
func ProviderNameForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"), strings.HasPrefix(model, "anthropic:"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "openai:"):
		return "openai"
	case strings.HasPrefix(model, "ollama:"):
		return "ollama"
	default:
		return ""
	}
}

// ForModel resolves the adapter and effective model name for a request.
// userAPIKey, when non-empty, takes precedence over the configured key.
// A provider that requires a key and has none resolves to an
// api.APIError of type provider_config, raised before any stream starts.
func (f *Factory) ForModel(model, userAPIKey string) (provider.Provider, string, error) {
	name := ProviderNameForModel(model)
	if name == "" {
		name = f.cfg.DefaultProvider
		model = f.cfg.DefaultModel
	}

	switch name {
	case "anthropic":
		key := firstNonEmpty(userAPIKey, f.cfg.AnthropicAPIKey)
		if key == "" {
			return nil, "", api.NewProviderConfigError("no Anthropic API key configured for model " + model)
		}
		p, err := anthropic.New(anthropic.Config{
			APIKey:     key,
			Timeout:    f.cfg.Timeout,
			MaxRetries: f.cfg.MaxRetries,
		})
		if err != nil {
			return nil, "", api.NewProviderConfigError(err.Error())
		}
		return p, stripScheme(model, "anthropic:"), nil

	case "openai":
		key := firstNonEmpty(userAPIKey, f.cfg.OpenAIAPIKey)
		if key == "" {
			return nil, "", api.NewProviderConfigError("no OpenAI API key configured for model " + model)
		}
		p, err := openai.New(openai.Config{
			APIKey:     key,
			BaseURL:    f.cfg.OpenAIBaseURL,
			Timeout:    f.cfg.Timeout,
			MaxRetries: f.cfg.MaxRetries,
		})
		if err != nil {
			return nil, "", api.NewProviderConfigError(err.Error())
		}
		return p, stripScheme(model, "openai:"), nil

	case "ollama":
		p, err := ollama.New(ollama.Config{
			BaseURL:    f.cfg.OllamaURL,
			Timeout:    f.cfg.Timeout,
			MaxRetries: f.cfg.MaxRetries,
		})
		if err != nil {
			return nil, "", api.NewProviderConfigError(err.Error())
		}
		return p, stripScheme(model, "ollama:"), nil

	default:
		return nil, "", api.NewProviderConfigError(fmt.Sprintf("unknown default provider %q", name))
	}
}

// stripScheme removes an explicit provider scheme prefix from a model
// identifier, leaving bare names like "claude-3-5-sonnet" untouched.
func stripScheme(model, scheme string) string {
	return strings.TrimPrefix(model, scheme)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
