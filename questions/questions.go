// Package questions writes the ranked investigative questions a reader
// should ask about an article, grounded in the gathered evidence.
package questions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const stage = "questions"

var schema = generation.Object("Questions",
	generation.ArrayOf("questions", generation.ObjectField("",
		generation.String("rationale"),
		generation.String("question_text"),
	)),
).WithArrayKey("questions")

// Question is one investigative question, most important first.
type Question struct {
	Rationale string `json:"rationale"`
	Text      string `json:"question_text"`
}

type reply struct {
	Questions []Question `json:"questions"`
}

// Generator produces exactly Count questions of at most MaxChars runes.
type Generator struct {
	gen      *generation.Client
	prompts  *prompt.Manager
	count    int
	maxChars int
	logger   *slog.Logger
}

// Option customises the generator.
type Option func(*Generator)

// WithCount sets the required number of questions (default 10).
func WithCount(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.count = n
		}
	}
}

// WithMaxChars sets the per-question length limit (default 300).
func WithMaxChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New returns a question generator.
func New(gen *generation.Client, prompts *prompt.Manager, opts ...Option) *Generator {
	g := &Generator{gen: gen, prompts: prompts, count: 10, maxChars: 300}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.WithComponent("questions")
	}
	return g
}

// Generate returns the questions in importance order. evidence is the
// rendered evidence history. A wrong count or an over-long question is a
// grounding violation and is never coerced.
func (g *Generator) Generate(ctx context.Context, article, evidence string) ([]Question, error) {
	msgs, err := g.prompts.Messages(prompt.Questions, map[string]any{
		"Count":    g.count,
		"MaxChars": g.maxChars,
		"Article":  article,
		"History":  evidence,
	})
	if err != nil {
		return nil, fmt.Errorf("render questions prompt: %w", err)
	}
	out, err := generation.Generate[reply](ctx, g.gen, stage, schema, msgs, generation.Temperature(0.1))
	if err != nil {
		return nil, err
	}

	questions := make([]Question, len(out.Questions))
	for i, q := range out.Questions {
		q.Text = strings.TrimSpace(q.Text)
		if n := utf8.RuneCountInString(q.Text); n > g.maxChars {
			return nil, g.fail(errorspkg.NewGroundingError(stage, "question_length", errorspkg.ErrQuestionLength,
				"question %d has %d characters, limit %d: %q", i+1, n, g.maxChars, logging.Trim(q.Text, 80)))
		}
		questions[i] = q
	}
	if len(questions) != g.count {
		return nil, g.fail(errorspkg.NewGroundingError(stage, "question_count", errorspkg.ErrQuestionCount,
			"generated %d questions, %d required", len(questions), g.count))
	}
	return questions, nil
}

func (g *Generator) fail(err *errorspkg.GroundingError) error {
	g.logger.Error("question generation failed", "stage", err.Stage, "invariant", err.Invariant, "detail", err.Detail)
	return err
}
