// Package llm wraps the text generation providers behind a single Completer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ErrNotConfigured is returned when no provider credential or endpoint is set.
var ErrNotConfigured = errors.New("text generation provider not configured")

// ErrEmptyCompletion is returned when the provider answered with no text.
var ErrEmptyCompletion = errors.New("provider returned an empty completion")

// Request is one chat completion with a system instruction and a user turn.
type Request struct {
	System    string
	User      string
	MaxTokens int
	// Model overrides the client default when set.
	Model string
}

// Completion is the provider's answer plus reported usage.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Completer produces a single completion. Implementations never retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// Configured reports whether the config has enough to reach a provider.
// OpenAI needs a key; Ollama needs an endpoint.
func (c Config) Configured() bool {
	switch c.Provider {
	case ProviderOllama:
		return c.BaseURL != ""
	case ProviderOpenAI, "":
		return c.APIKey != ""
	default:
		return false
	}
}

// New builds the Completer for cfg.Provider. An unconfigured provider
// yields a Completer that always fails with ErrNotConfigured so the
// server still starts.
func New(cfg Config, logger *slog.Logger) (Completer, error) {
	if !cfg.Configured() {
		logger.Warn("text generation disabled, provider not configured", "provider", cfg.Provider)
		return Unconfigured{}, nil
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg, httpClient, logger), nil
	case ProviderOllama:
		return NewOllama(cfg, httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Unconfigured is the Completer used when no provider is set up.
type Unconfigured struct{}

// Complete always returns ErrNotConfigured.
func (Unconfigured) Complete(context.Context, Request) (Completion, error) {
	return Completion{}, ErrNotConfigured
}
