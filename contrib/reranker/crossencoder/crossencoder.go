// Package crossencoder scores query/passage pairs with a cross-encoder served
// by a text-embeddings-inference style /rerank endpoint, for example
// cross-encoder/ms-marco-MiniLM-L6-v2.
package crossencoder

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

	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

// Client implements retrieval.Scorer.
type Client struct {
	endpoint   string
	batchSize  int
	rawScores  bool
	httpClient *http.Client
	fallback   retrieval.Scorer
	logger     *slog.Logger
}

// Option customises the client.
type Option func(*Client)

// WithBatchSize caps the number of texts per request (default 32).
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithRawScores asks the server for logits instead of sigmoid scores.
func WithRawScores(raw bool) Option {
	return func(c *Client) { c.rawScores = raw }
}

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithFallback sets the scorer used when the server cannot be reached.
func WithFallback(s retrieval.Scorer) Option {
	return func(c *Client) {
		if s != nil {
			c.fallback = s
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("crossencoder: base url is required")
	}
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/rerank",
		batchSize:  32,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.WithComponent("reranker.crossencoder")
	}
	return c, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score implements retrieval.Scorer.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch, err := c.scoreBatch(ctx, query, texts[start:end])
		if err != nil {
			if c.fallback == nil || ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("cross-encoder unavailable, using fallback scorer", "error", err)
			return c.fallback.Score(ctx, query, texts)
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

func (c *Client) scoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: c.rawScores, Truncate: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("rerank returned %d scores for %d texts", len(results), len(texts))
	}
	scores := make([]float64, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}
