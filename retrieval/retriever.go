package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

// Retriever runs lexical search, neural reranking and LLM curation.
type Retriever struct {
	index   Index
	scorer  Scorer
	curator *curator
	cfg     *Config
	logger  *slog.Logger
}

// New creates a retriever. All collaborators are required.
func New(index Index, scorer Scorer, gen *generation.Client, prompts *prompt.Manager, opts ...Option) (*Retriever, error) {
	if index == nil || scorer == nil {
		return nil, fmt.Errorf("retrieval: index and scorer are required")
	}
	if gen == nil || prompts == nil {
		return nil, fmt.Errorf("retrieval: generation client and prompts are required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.WithComponent("retrieval")
	}
	return &Retriever{
		index:   index,
		scorer:  scorer,
		curator: newCurator(gen, prompts, cfg, logger),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Search returns the reranked candidates for query and the curated subset.
// Hits whose parent document is in excluded are dropped before scoring.
func (r *Retriever) Search(ctx context.Context, query, articleContext string, excluded []string) (result *Result, err error) {
	ctx, span := telemetry.Start(ctx, "retrieval.search", attribute.String("query", logging.Trim(query, 120)))
	defer func() { telemetry.End(span, err) }()

	candidates, err := r.lexical(ctx, query, excluded)
	if err != nil {
		return nil, err
	}
	ranked, err := r.rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	metrics.RetrievalCandidates.Observe(float64(len(ranked)))
	if len(ranked) == 0 {
		r.logger.Warn("no candidates for query", "query", logging.Trim(query, 120))
		return &Result{Ranked: ranked, Curated: []Segment{}}, nil
	}

	curated, err := r.curator.curate(ctx, query, articleContext, ranked)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("ranked", len(ranked)), attribute.Int("curated", len(curated)))
	return &Result{Ranked: ranked, Curated: curated}, nil
}

func (r *Retriever) lexical(ctx context.Context, query string, excluded []string) ([]Segment, error) {
	hits, err := r.index.Search(ctx, query, r.cfg.LexicalTopK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	segments := make([]Segment, 0, len(hits))
	for i, hit := range hits {
		if _, drop := skip[ParentID(hit.DocID)]; drop {
			continue
		}
		stored, err := r.index.Fetch(ctx, hit.DocID)
		if err != nil {
			return nil, fmt.Errorf("fetch segment %s: %w", hit.DocID, err)
		}
		segments = append(segments, Segment{
			ID:           hit.DocID,
			URL:          stored.URL,
			Title:        stored.Title,
			Headings:     stored.Headings,
			Text:         stored.Segment,
			StartChar:    stored.StartChar,
			EndChar:      stored.EndChar,
			LexicalScore: hit.Score,
			LexicalRank:  i + 1,
		})
	}
	r.logger.Debug("lexical search", "hits", len(hits), "kept", len(segments))
	return segments, nil
}

func (r *Retriever) rerank(ctx context.Context, query string, segments []Segment) ([]Segment, error) {
	if len(segments) == 0 {
		return segments, nil
	}
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Title + "\n\n" + s.Text
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(segments) {
		return nil, fmt.Errorf("rerank: scorer returned %d scores for %d candidates", len(scores), len(segments))
	}
	for i := range segments {
		segments[i].RerankScore = scores[i]
	}
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].RerankScore > segments[j].RerankScore
	})
	if len(segments) > r.cfg.RerankTopK {
		segments = segments[:r.cfg.RerankTopK]
	}
	for i := range segments {
		segments[i].Rank = i + 1
	}
	return segments, nil
}
