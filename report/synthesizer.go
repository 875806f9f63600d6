package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
	"github.com/sweetpotato0/ai-factcheck/prompt"
	"github.com/sweetpotato0/ai-factcheck/questions"
)

const (
	stagePrimary = "report"
	stageChunk   = "report_chunk"
	stagePolish  = "report_polish"
)

// Input is everything the report is grounded in.
type Input struct {
	Article   string
	Evidence  string // rendered evidence history
	Questions []questions.Question
	Allowed   []string // curated segment ids, the only citable ids
}

// Synthesizer writes the report, falling back to chunked generation plus a
// polishing pass when the single-call path fails.
type Synthesizer struct {
	gen     *generation.Client
	prompts *prompt.Manager
	cfg     *Config
	logger  *slog.Logger
}

// New returns a synthesizer.
func New(gen *generation.Client, prompts *prompt.Manager, opts ...Option) *Synthesizer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.WithComponent("report")
	}
	return &Synthesizer{gen: gen, prompts: prompts, cfg: cfg, logger: logger}
}

// Generate returns a report whose citations are all in in.Allowed.
func (s *Synthesizer) Generate(ctx context.Context, in Input) (out *Report, err error) {
	ctx, span := telemetry.Start(ctx, "report.generate", attribute.Int("questions", len(in.Questions)))
	defer func() { telemetry.End(span, err) }()

	allowed := make(map[string]struct{}, len(in.Allowed))
	for _, id := range in.Allowed {
		allowed[id] = struct{}{}
	}
	allowedJSON, err := json.Marshal(nonNil(in.Allowed))
	if err != nil {
		return nil, err
	}

	questionsJSON, err := questions.Render(in.Questions)
	if err != nil {
		return nil, err
	}
	out, err = s.section(ctx, stagePrimary, in, questionsJSON, string(allowedJSON), allowed)
	if err == nil {
		metrics.ReportPath.WithLabelValues("primary").Inc()
		span.SetAttributes(attribute.String("path", "primary"))
		return out, nil
	}
	if errorspkg.Fatal(err) {
		return nil, err
	}
	s.logger.Warn("primary report generation failed, falling back to chunks", "error", err)

	out, path, err := s.fallback(ctx, in, string(allowedJSON), allowed)
	if err != nil {
		return nil, err
	}
	metrics.ReportPath.WithLabelValues(path).Inc()
	span.SetAttributes(attribute.String("path", path))
	return out, nil
}

// section generates a report for the given questions and validates it.
func (s *Synthesizer) section(ctx context.Context, stage string, in Input, questionsJSON, allowedJSON string, allowed map[string]struct{}) (*Report, error) {
	msgs, err := s.prompts.Messages(prompt.Report, map[string]any{
		"WordLimit":    s.cfg.WordLimit,
		"MaxCitations": s.cfg.MaxCitations,
		"Article":      in.Article,
		"History":      in.Evidence,
		"Questions":    questionsJSON,
		"Allowed":      allowedJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("render report prompt: %w", err)
	}
	r, err := generation.Generate[Report](ctx, s.gen, stage, reportSchema, msgs, generation.Temperature(0.1))
	if err != nil {
		return nil, err
	}
	if err := validate(stage, r, allowed, s.cfg.MaxCitations); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Synthesizer) fallback(ctx context.Context, in Input, allowedJSON string, allowed map[string]struct{}) (*Report, string, error) {
	chunks, err := s.chunk(in.Questions, len(in.Evidence))
	if err != nil {
		return nil, "", err
	}
	var (
		draft   []Sentence
		lastErr error
	)
	for i, c := range chunks {
		r, err := s.section(ctx, stageChunk, in, c, allowedJSON, allowed)
		if err != nil {
			if errorspkg.Fatal(err) {
				return nil, "", err
			}
			lastErr = err
			metrics.ReportChunkFailures.Inc()
			s.logger.Warn("report chunk failed, skipping", "chunk", i+1, "chunks", len(chunks), "error", err)
			continue
		}
		draft = append(draft, r.Sentences...)
	}
	if len(draft) == 0 {
		return nil, "", fmt.Errorf("%w: %d chunks, last error: %v", errorspkg.ErrAllChunksFailed, len(chunks), lastErr)
	}

	polished, err := s.polish(ctx, in.Article, draft, allowedJSON, allowed)
	switch {
	case err == nil:
		return polished, "chunked", nil
	case errors.Is(err, errorspkg.ErrGeneration):
		s.logger.Warn("polish failed, keeping concatenated chunks", "sentences", len(draft), "error", err)
		return &Report{Sentences: draft}, "chunked_unpolished", nil
	default:
		return nil, "", err
	}
}

// chunk splits the questions so that each chunk's JSON plus the evidence
// stays within ChunkCharLimit. A chunk always holds at least one question.
func (s *Synthesizer) chunk(qs []questions.Question, evidenceLen int) ([]string, error) {
	var (
		chunks []string
		start  int
		cur    string
	)
	for i := range qs {
		candidate, err := questions.RenderFrom(qs[start:i+1], start+1)
		if err != nil {
			return nil, err
		}
		if i > start && len(candidate)+evidenceLen > s.cfg.ChunkCharLimit {
			chunks = append(chunks, cur)
			start = i
			if candidate, err = questions.RenderFrom(qs[i:i+1], i+1); err != nil {
				return nil, err
			}
		}
		cur = candidate
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	s.logger.Debug("split questions for fallback", "questions", len(qs), "chunks", len(chunks))
	return chunks, nil
}

type draftSentence struct {
	Text      string   `json:"sentence_text"`
	Citations []string `json:"citations"`
}

func (s *Synthesizer) polish(ctx context.Context, article string, draft []Sentence, allowedJSON string, allowed map[string]struct{}) (*Report, error) {
	view := make([]draftSentence, len(draft))
	for i, d := range draft {
		view[i] = draftSentence{Text: d.Text, Citations: nonNil(d.Citations)}
	}
	draftJSON, err := json.MarshalIndent(view, "", "    ")
	if err != nil {
		return nil, err
	}
	msgs, err := s.prompts.Messages(prompt.ReportPolish, map[string]any{
		"WordLimit":    s.cfg.WordLimit,
		"MaxCitations": s.cfg.MaxCitations,
		"Article":      article,
		"Draft":        string(draftJSON),
		"Allowed":      allowedJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("render polish prompt: %w", err)
	}
	r, err := generation.Generate[Report](ctx, s.gen, stagePolish, reportSchema, msgs, generation.Temperature(0.1))
	if err != nil {
		return nil, err
	}
	if err := validate(stagePolish, r, allowed, s.cfg.MaxCitations); err != nil {
		return nil, err
	}
	return r, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
