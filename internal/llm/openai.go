package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alreadydone/alreadydone-server/internal/metrics"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI client. BaseURL may point at a compatible gateway.
func NewOpenAI(cfg Config, httpClient *http.Client, logger *slog.Logger) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpClient

	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logger,
	}
}

// Complete sends one chat completion request.
func (c *OpenAI) Complete(ctx context.Context, req Request) (Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens: req.MaxTokens,
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.LLMRequest(ProviderOpenAI, model, "error", elapsed)
		c.logger.Error("openai request failed", "model", model, "duration", elapsed, "error", err)
		return Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.LLMRequest(ProviderOpenAI, model, "empty", elapsed)
		return Completion{}, ErrEmptyCompletion
	}

	metrics.LLMRequest(ProviderOpenAI, model, "success", elapsed)
	metrics.LLMTokens(ProviderOpenAI, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.logger.Debug("openai completion received",
		"model", model,
		"duration", elapsed,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
