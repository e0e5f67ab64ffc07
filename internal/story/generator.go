package story

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/llm"
)

// DefaultMaxTokens leaves headroom above MaxWords for the theme line.
const DefaultMaxTokens = 1024

// Prompt is one fully rendered generation request.
type Prompt struct {
	System   string
	User     string
	Category domain.DesireCategory
}

// Result is the parsed model output.
type Result struct {
	Theme string
	Body  string
}

// Generator turns a prompt into a theme and a bounded body.
type Generator struct {
	completer llm.Completer
	maxTokens int
	model     string
	logger    *slog.Logger
}

// GeneratorOptions tunes requests sent to the provider.
type GeneratorOptions struct {
	MaxTokens int
	// Model overrides the provider client's default.
	Model string
}

// NewGenerator creates a generation client over completer.
func NewGenerator(completer llm.Completer, opts GeneratorOptions, logger *slog.Logger) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Generator{
		completer: completer,
		maxTokens: opts.MaxTokens,
		model:     opts.Model,
		logger:    logger,
	}
}

// Generate makes exactly one provider call and parses its answer.
func (g *Generator) Generate(ctx context.Context, p Prompt) (Result, error) {
	out, err := g.completer.Complete(ctx, llm.Request{
		System:    p.System,
		User:      p.User,
		MaxTokens: g.maxTokens,
		Model:     g.model,
	})
	if errors.Is(err, llm.ErrNotConfigured) {
		return Result{}, apperr.NotConfigured("story generation is not configured").WithCause(err)
	}
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.CodeUpstream, "story generation failed")
	}

	theme, body := ParseResponse(out.Text)
	body = Truncate(body, MaxBodyRunes)
	if strings.TrimSpace(body) == "" {
		return Result{}, apperr.Upstream("provider returned no story text")
	}

	theme = Truncate(FallbackTheme(p.Category, theme), MaxThemeRunes)

	g.logger.Debug("story generated",
		"model", out.Model,
		"theme", theme,
		"body_runes", len([]rune(body)),
	)
	return Result{Theme: theme, Body: body}, nil
}
