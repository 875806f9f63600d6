package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const queryStage = "query"

var querySchema = generation.Object("QueryReasoning",
	generation.ArrayOf("queries_with_rationale", generation.ObjectField("",
		generation.String("rationale"),
		generation.String("query"),
	)),
).WithArrayKey("queries_with_rationale")

type queryReply struct {
	Queries []struct {
		Rationale string `json:"rationale"`
		Query     string `json:"query"`
	} `json:"queries_with_rationale"`
}

// QueryGenerator writes search queries for an article.
type QueryGenerator struct {
	gen     *generation.Client
	prompts *prompt.Manager
	count   int
	logger  *slog.Logger
}

// NewQueryGenerator returns a generator producing count queries per call.
func NewQueryGenerator(gen *generation.Client, prompts *prompt.Manager, count int, logger *slog.Logger) *QueryGenerator {
	return &QueryGenerator{gen: gen, prompts: prompts, count: count, logger: logger.With("stage", queryStage)}
}

// Generate returns exactly count queries. The first round sees only the
// article; later rounds also see the history and the evaluator's feedback.
// Fewer usable queries than count is a grounding violation; extra queries
// are dropped.
func (g *QueryGenerator) Generate(ctx context.Context, article string, history *History, feedback string) ([]Query, error) {
	data := map[string]any{
		"FollowUp": history.Len() > 0,
		"Count":    g.count,
		"Article":  article,
		"History":  "",
		"Feedback": feedback,
	}
	if history.Len() > 0 {
		rendered, err := history.JSON()
		if err != nil {
			return nil, err
		}
		data["History"] = rendered
	}
	msgs, err := g.prompts.Messages(prompt.Query, data)
	if err != nil {
		return nil, fmt.Errorf("render query prompt: %w", err)
	}

	reply, err := generation.Generate[queryReply](ctx, g.gen, queryStage, querySchema, msgs,
		generation.Temperature(0.3), generation.TopP(1))
	if err != nil {
		return nil, err
	}

	queries := make([]Query, 0, len(reply.Queries))
	for _, q := range reply.Queries {
		text := strings.TrimSpace(q.Query)
		if text == "" {
			continue
		}
		queries = append(queries, Query{Text: text, Rationale: strings.TrimSpace(q.Rationale)})
	}
	if len(queries) < g.count {
		err := errorspkg.NewGroundingError(queryStage, "query_count", errorspkg.ErrQueryCount,
			"generated %d queries, %d required", len(queries), g.count)
		g.logger.Error("query generation failed", "stage", err.Stage, "invariant", err.Invariant, "generated", len(queries))
		return nil, err
	}
	if len(queries) > g.count {
		g.logger.Debug("dropping extra queries", "generated", len(queries), "kept", g.count)
		queries = queries[:g.count]
	}
	return queries, nil
}
