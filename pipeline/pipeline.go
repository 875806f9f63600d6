// Package pipeline wires the per-article stages together: evidence gathering,
// question generation, the optional critique and the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/ai-factcheck/article"
	"github.com/sweetpotato0/ai-factcheck/evidence"
	"github.com/sweetpotato0/ai-factcheck/graph"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
	"github.com/sweetpotato0/ai-factcheck/questions"
	"github.com/sweetpotato0/ai-factcheck/report"
	"github.com/sweetpotato0/ai-factcheck/tracking"
)

// Gatherer runs the evidence loop for one article.
type Gatherer interface {
	Run(ctx context.Context, articleID, article string) (*evidence.Outcome, error)
}

// QuestionGenerator turns the article and its evidence into ranked questions.
type QuestionGenerator interface {
	Generate(ctx context.Context, article, evidence string) ([]questions.Question, error)
}

// Reporter writes the grounded report.
type Reporter interface {
	Generate(ctx context.Context, in report.Input) (*report.Report, error)
}

// Critic produces an optional rewrite of the article. An empty result means
// no critique; it never fails the article.
type Critic interface {
	TryGenerate(ctx context.Context, articleID, article string) string
}

// Stages groups the components a Processor drives.
type Stages struct {
	Evidence  Gatherer
	Questions QuestionGenerator
	Report    Reporter
	Critic    Critic // optional
}

// Processor runs every stage for one article and assembles the tracking record.
// Stages run strictly in order: evidence, questions, critique, report.
type Processor struct {
	stages Stages
	graph  *graph.Graph[*articleState]
	logger *slog.Logger
}

type articleState struct {
	id        string
	text      string
	outcome   *evidence.Outcome
	evidence  string
	questions []questions.Question
	critique  string
	report    *report.Report
}

// NewProcessor validates the stages and builds the stage graph.
func NewProcessor(stages Stages, logger *slog.Logger) (*Processor, error) {
	var errs []error
	if stages.Evidence == nil {
		errs = append(errs, errors.New("evidence stage is required"))
	}
	if stages.Questions == nil {
		errs = append(errs, errors.New("question stage is required"))
	}
	if stages.Report == nil {
		errs = append(errs, errors.New("report stage is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if logger == nil {
		logger = logging.WithComponent("pipeline")
	}

	p := &Processor{stages: stages, logger: logger}
	g, err := graph.NewBuilder[*articleState]("article").
		Start("evidence", p.gatherNode).
		Step("questions", p.questionsNode).
		Condition("critic_gate", p.criticGate, map[string]string{
			"run":  "critique",
			"skip": "report",
		}).
		Step("critique", p.critiqueNode).
		End("report", p.reportNode).
		Edge("evidence", "questions").
		Edge("questions", "critic_gate").
		Edge("critique", "report").
		MaxVisits(1).
		Build()
	if err != nil {
		return nil, err
	}
	p.graph = g
	return p, nil
}

// Process runs the pipeline for one article.
func (p *Processor) Process(ctx context.Context, a article.Article) (rec *tracking.Record, err error) {
	ctx, span := telemetry.Start(ctx, "pipeline.process", attribute.String("article_id", a.ID))
	defer func() { telemetry.End(span, err) }()

	text, err := a.Canonical()
	if err != nil {
		return nil, fmt.Errorf("article %s: %w", a.ID, err)
	}
	start := time.Now()
	p.logger.Info("article started", "article_id", a.ID, "title", logging.Trim(a.Title(), 80))

	state := &articleState{id: a.ID, text: text}
	if _, err := p.graph.Run(ctx, state); err != nil {
		p.logger.Error("article failed", "article_id", a.ID, "error", err)
		return nil, fmt.Errorf("article %s: %w", a.ID, err)
	}

	rec = &tracking.Record{
		Iterations: state.outcome.Rounds,
		Questions:  state.questions,
		Report:     *state.report,
		Critique:   state.critique,
	}
	p.logger.Info("article completed",
		"article_id", a.ID,
		"rounds", len(rec.Iterations),
		"questions", len(rec.Questions),
		"sentences", len(rec.Report.Sentences),
		"words", rec.Report.WordCount(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return rec, nil
}

func (p *Processor) gatherNode(ctx context.Context, s *articleState) error {
	outcome, err := p.stages.Evidence.Run(ctx, s.id, s.text)
	if err != nil {
		return err
	}
	rendered, err := outcome.History.EvidenceJSON()
	if err != nil {
		return fmt.Errorf("render evidence: %w", err)
	}
	s.outcome = outcome
	s.evidence = rendered
	return nil
}

func (p *Processor) questionsNode(ctx context.Context, s *articleState) error {
	qs, err := p.stages.Questions.Generate(ctx, s.text, s.evidence)
	if err != nil {
		return err
	}
	s.questions = qs
	return nil
}

func (p *Processor) criticGate(ctx context.Context, s *articleState) (string, error) {
	if p.stages.Critic == nil {
		return "skip", nil
	}
	return "run", nil
}

func (p *Processor) critiqueNode(ctx context.Context, s *articleState) error {
	s.critique = strings.TrimSpace(p.stages.Critic.TryGenerate(ctx, s.id, s.text))
	return nil
}

func (p *Processor) reportNode(ctx context.Context, s *articleState) error {
	r, err := p.stages.Report.Generate(ctx, report.Input{
		Article:   s.text,
		Evidence:  s.evidence,
		Questions: s.questions,
		Allowed:   s.outcome.Allowed,
	})
	if err != nil {
		return err
	}
	s.report = r
	return nil
}
