// Package cohere scores candidate segments with Cohere's rerank endpoint.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

const (
	defaultEndpoint = "https://api.cohere.com/v1/rerank"
	defaultModel    = "rerank-english-v3.0"
	// batchSize is the per-request document cap of the rerank API.
	batchSize = 1000
)

// Scorer implements retrieval.Scorer. Throttled or failing requests are
// retried; after that the fallback scorer, if any, takes over.
type Scorer struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
	retries  uint64
	fallback retrieval.Scorer
	logger   *slog.Logger
}

type Option func(*Scorer)

func WithModel(model string) Option {
	return func(s *Scorer) {
		if model != "" {
			s.model = model
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Scorer) {
		if client != nil {
			s.http = client
		}
	}
}

func WithEndpoint(endpoint string) Option {
	return func(s *Scorer) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithRetries sets how many times a throttled or 5xx batch is retried.
func WithRetries(n uint64) Option {
	return func(s *Scorer) { s.retries = n }
}

func WithFallback(f retrieval.Scorer) Option {
	return func(s *Scorer) {
		if f != nil {
			s.fallback = f
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(apiKey string, opts ...Option) *Scorer {
	s := &Scorer{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		retries:  3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("reranker.cohere")
	}
	return s
}

// Score returns one score per text, in input order.
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" || s.apiKey == "" {
		return s.degrade(ctx, query, texts, fmt.Errorf("cohere: missing query or api key"))
	}
	scores := make([]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		batch := texts[start:min(start+batchSize, len(texts))]
		var got []float64
		op := func() error {
			var err error
			got, err = s.rerank(ctx, query, batch)
			return err
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			return s.degrade(ctx, query, texts, err)
		}
		scores = append(scores, got...)
	}
	return scores, nil
}

func (s *Scorer) rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model":     s.model,
		"query":     query,
		"documents": docs,
		"top_n":     len(docs),
	})
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("cohere: status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("cohere: status %d: %s", resp.StatusCode, logging.Trim(string(raw), 200)))
	}

	results := gjson.GetBytes(raw, "results").Array()
	if len(results) != len(docs) {
		return nil, backoff.Permanent(fmt.Errorf("cohere: %d results for %d documents", len(results), len(docs)))
	}
	scores := make([]float64, len(docs))
	for _, r := range results {
		i := int(r.Get("index").Int())
		if i < 0 || i >= len(docs) {
			return nil, backoff.Permanent(fmt.Errorf("cohere: result index %d out of range", i))
		}
		scores[i] = r.Get("relevance_score").Float()
	}
	return scores, nil
}

func (s *Scorer) degrade(ctx context.Context, query string, texts []string, cause error) ([]float64, error) {
	if s.fallback == nil {
		return nil, cause
	}
	s.logger.Warn("cohere rerank unavailable, using fallback scorer", "error", cause)
	return s.fallback.Score(ctx, query, texts)
}
