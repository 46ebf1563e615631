package scanning

import (
	"context"
	"fmt"
	"strings"
)

// Provider names a model backend.
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
)

// Config selects and configures a Scanner. APIKey is passed in explicitly;
// scanners never read credentials from the environment.
type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
}

// ParseProvider parses a provider name, case-insensitively.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return ProviderGroq, nil
	case ProviderGroq, ProviderOpenAI, ProviderGemini, ProviderOllama:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q (valid: groq, openai, gemini, ollama)", s)
	}
}

// APIKeyEnvVar is the conventional environment variable holding the key for
// p, or "" when the provider needs none.
func APIKeyEnvVar(p Provider) string {
	switch p {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// WithDefaults fills in the model and base URL for the provider.
func (c Config) WithDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderGroq
	}
	switch c.Provider {
	case ProviderGroq:
		if c.Model == "" {
			c.Model = "meta-llama/llama-4-scout-17b-16e-instruct"
		}
		if c.BaseURL == "" {
			c.BaseURL = "https://api.groq.com/openai/v1"
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = "gpt-4o-mini"
		}
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
	case ProviderGemini:
		if c.Model == "" {
			c.Model = "gemini-2.5-pro"
		}
	case ProviderOllama:
		if c.Model == "" {
			c.Model = "llava"
		}
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:11434"
		}
	}
	return c
}

// New creates the Scanner described by cfg
func New(ctx context.Context, cfg Config) (Scanner, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Provider {
	case ProviderGroq, ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case ProviderOllama:
		return NewOllama(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
