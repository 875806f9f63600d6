package evidence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const evaluatorStage = "evaluator"

var verdictSchema = generation.Object("Evaluation",
	generation.String("evaluation_reasoning"),
	generation.Bool("has_sufficient_information"),
)

// Evaluator judges whether the accumulated evidence is enough to assess the article.
type Evaluator struct {
	gen     *generation.Client
	prompts *prompt.Manager
	logger  *slog.Logger
}

// NewEvaluator returns an evaluator.
func NewEvaluator(gen *generation.Client, prompts *prompt.Manager, logger *slog.Logger) *Evaluator {
	return &Evaluator{gen: gen, prompts: prompts, logger: logger.With("stage", evaluatorStage)}
}

// Evaluate reads the condensed view of the whole history.
func (e *Evaluator) Evaluate(ctx context.Context, article string, history *History) (Verdict, error) {
	condensed, err := history.Condensed()
	if err != nil {
		return Verdict{}, err
	}
	msgs, err := e.prompts.Messages(prompt.Evaluator, map[string]any{
		"Article": article,
		"History": condensed,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("render evaluator prompt: %w", err)
	}
	v, err := generation.Generate[Verdict](ctx, e.gen, evaluatorStage, verdictSchema, msgs, generation.Temperature(0))
	if err != nil {
		return Verdict{}, err
	}
	e.logger.Debug("sufficiency verdict", "sufficient", v.Sufficient, "entries", history.Len())
	return *v, nil
}
