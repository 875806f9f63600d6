package evidence

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/graph"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const (
	nodeGenerate = "generate"
	nodeRetrieve = "retrieve"
	nodeEvaluate = "evaluate"
	nodeGate     = "gate"
	nodeFinish   = "finish"

	branchContinue = "continue"
	branchDone     = "done"
)

// Loop gathers evidence for an article over up to MaxIterations rounds.
type Loop struct {
	queries   *QueryGenerator
	evaluator *Evaluator
	retriever Searcher
	graph     *graph.Graph[*loopState]
	cfg       *Config
	logger    *slog.Logger
}

type loopState struct {
	articleID string
	article   string
	history   *History
	rounds    []Round
	current   Round
	pending   []Query
	allowed   []string
	seen      map[string]struct{}
}

// NewLoop wires the query generator, the retriever and the evaluator.
func NewLoop(gen *generation.Client, prompts *prompt.Manager, retriever Searcher, opts ...Option) (*Loop, error) {
	if gen == nil || prompts == nil || retriever == nil {
		return nil, fmt.Errorf("evidence: generation client, prompts and retriever are required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.WithComponent("evidence")
	}
	l := &Loop{
		queries:   NewQueryGenerator(gen, prompts, cfg.QueriesPerRound, logger),
		evaluator: NewEvaluator(gen, prompts, logger),
		retriever: retriever,
		cfg:       cfg,
		logger:    logger,
	}
	g, err := graph.NewBuilder[*loopState]("evidence").
		Start(nodeGenerate, l.generate).
		Step(nodeRetrieve, l.retrieve).
		Step(nodeEvaluate, l.evaluate).
		Condition(nodeGate, l.gate, map[string]string{
			branchContinue: nodeGenerate,
			branchDone:     nodeFinish,
		}).
		End(nodeFinish, nil).
		Edge(nodeGenerate, nodeRetrieve).
		Edge(nodeRetrieve, nodeEvaluate).
		Edge(nodeEvaluate, nodeGate).
		MaxVisits(cfg.MaxIterations + 1).
		Build()
	if err != nil {
		return nil, err
	}
	l.graph = g
	return l, nil
}

// Run executes the loop for one article. articleID is excluded from every
// search; article is the canonical text shown to the model.
func (l *Loop) Run(ctx context.Context, articleID, article string) (out *Outcome, err error) {
	ctx, span := telemetry.Start(ctx, "evidence.loop", attribute.String("article_id", articleID))
	defer func() { telemetry.End(span, err) }()

	state := &loopState{
		articleID: articleID,
		article:   article,
		history:   NewHistory(),
		seen:      make(map[string]struct{}),
	}
	if _, err := l.graph.Run(ctx, state); err != nil {
		return nil, err
	}

	out = &Outcome{
		Rounds:  state.rounds,
		History: state.history,
		Allowed: state.allowed,
	}
	if n := len(state.rounds); n > 0 {
		out.Verdict = state.rounds[n-1].Verdict
	}
	metrics.LoopRounds.Observe(float64(len(out.Rounds)))
	span.SetAttributes(attribute.Int("rounds", len(out.Rounds)), attribute.Int("allowed", len(out.Allowed)))
	l.logger.Info("evidence gathered",
		"article_id", articleID,
		"rounds", len(out.Rounds),
		"queries", out.QueryCount(),
		"segments", len(out.Allowed),
		"sufficient", out.Verdict.Sufficient,
	)
	return out, nil
}

func (l *Loop) generate(ctx context.Context, s *loopState) error {
	feedback := ""
	if n := len(s.rounds); n > 0 {
		feedback = s.rounds[n-1].Verdict.Reasoning
	}
	queries, err := l.queries.Generate(ctx, s.article, s.history, feedback)
	if err != nil {
		return err
	}
	s.current = Round{Number: len(s.rounds) + 1}
	s.pending = queries
	return nil
}

// retrieve runs the round's queries strictly in generation order.
func (l *Loop) retrieve(ctx context.Context, s *loopState) error {
	for i, q := range s.pending {
		result, err := l.retriever.Search(ctx, q.Text, s.article, []string{s.articleID})
		if err != nil {
			return fmt.Errorf("round %d query %d: %w", s.current.Number, i+1, err)
		}
		s.current.Queries = append(s.current.Queries, QueryRun{
			Query:     q.Text,
			Rationale: q.Rationale,
			Ranked:    result.Ranked,
			Curated:   result.Curated,
		})
		s.history.Append(q, result.Curated)
		for _, id := range result.CuratedIDs() {
			if _, ok := s.seen[id]; ok {
				continue
			}
			s.seen[id] = struct{}{}
			s.allowed = append(s.allowed, id)
		}
	}
	s.pending = nil
	return nil
}

func (l *Loop) evaluate(ctx context.Context, s *loopState) error {
	verdict, err := l.evaluator.Evaluate(ctx, s.article, s.history)
	if err != nil {
		return err
	}
	s.current.Verdict = verdict
	s.rounds = append(s.rounds, s.current)
	l.logger.Info("round complete",
		"article_id", s.articleID,
		"round", s.current.Number,
		"queries", len(s.current.Queries),
		"sufficient", verdict.Sufficient,
	)
	return nil
}

func (l *Loop) gate(ctx context.Context, s *loopState) (string, error) {
	last := s.rounds[len(s.rounds)-1]
	if last.Verdict.Sufficient || len(s.rounds) >= l.cfg.MaxIterations {
		return branchDone, nil
	}
	return branchContinue, nil
}
