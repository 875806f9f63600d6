// Package critique writes a short adversarial credibility critique of an
// article. It is optional and never blocks the report.
package critique

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const stage = "critique"

var schema = generation.Object("Critique", generation.String("article"))

// Critique is the generated text.
type Critique struct {
	Text string `json:"article"`
}

// Generator produces critiques.
type Generator struct {
	gen     *generation.Client
	prompts *prompt.Manager
	logger  *slog.Logger
}

// New returns a critique generator. logger may be nil.
func New(gen *generation.Client, prompts *prompt.Manager, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.WithComponent("critique")
	}
	return &Generator{gen: gen, prompts: prompts, logger: logger}
}

// Generate returns the critique for article.
func (g *Generator) Generate(ctx context.Context, article string) (*Critique, error) {
	msgs, err := g.prompts.Messages(prompt.Critique, map[string]any{"Article": article})
	if err != nil {
		return nil, fmt.Errorf("render critique prompt: %w", err)
	}
	c, err := generation.Generate[Critique](ctx, g.gen, stage, schema, msgs, generation.Temperature(0.3))
	if err != nil {
		return nil, err
	}
	c.Text = strings.TrimSpace(c.Text)
	return c, nil
}

// TryGenerate is Generate for callers that must not fail: errors are logged
// and yield an empty critique.
func (g *Generator) TryGenerate(ctx context.Context, articleID, article string) string {
	c, err := g.Generate(ctx, article)
	if err != nil {
		g.logger.Warn("critique skipped", "article_id", articleID, "error", err)
		return ""
	}
	return c.Text
}
