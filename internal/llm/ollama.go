package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/alreadydone/alreadydone-server/internal/metrics"
)

// Ollama talks to a self-hosted Ollama server through its native chat API.
type Ollama struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

// NewOllama creates an Ollama client. A trailing /v1 on the base URL is ignored.
func NewOllama(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Ollama, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", base, err)
	}

	return &Ollama{
		client: api.NewClient(u, httpClient),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Complete sends one non-streaming chat request.
func (c *Ollama) Complete(ctx context.Context, req Request) (Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream: &stream,
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	var resp api.ChatResponse
	start := time.Now()
	err := c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.LLMRequest(ProviderOllama, model, "error", elapsed)
		c.logger.Error("ollama request failed", "model", model, "duration", elapsed, "error", err)
		return Completion{}, fmt.Errorf("ollama chat: %w", err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		metrics.LLMRequest(ProviderOllama, model, "empty", elapsed)
		return Completion{}, ErrEmptyCompletion
	}

	metrics.LLMRequest(ProviderOllama, model, "success", elapsed)
	metrics.LLMTokens(ProviderOllama, model, resp.PromptEvalCount, resp.EvalCount)

	return Completion{
		Text:             resp.Message.Content,
		Model:            model,
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
	}, nil
}
