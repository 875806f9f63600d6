// Package elasticsearch implements retrieval.Index on an Elasticsearch
// index whose similarity is configured as BM25 with the corpus parameters.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

// Config describes the cluster and index.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	K1        float64
	B         float64
	RM3       retrieval.RM3
	Logger    *slog.Logger
	Transport http.RoundTripper
}

// Client wraps go-elasticsearch with the segment index helpers.
type Client struct {
	es    *elasticsearch.Client
	index string
	k1    float64
	b     float64
	rm3   retrieval.RM3
	log   *slog.Logger
}

// New instantiates the Elasticsearch client.
func New(cfg Config) (*Client, error) {
	if cfg.Index == "" {
		return nil, fmt.Errorf("elasticsearch: index name is required")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("elasticsearch")
	}
	c := &Client{es: es, index: cfg.Index, k1: cfg.K1, b: cfg.B, rm3: cfg.RM3, log: logger}
	if c.k1 <= 0 {
		c.k1 = 0.9
	}
	if c.b <= 0 {
		c.b = 0.4
	}
	return c, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: ping elasticsearch: %v", errorspkg.ErrConnectivity, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: elasticsearch ping failed: %s", errorspkg.ErrConnectivity, res.Status())
	}
	return nil
}

// EnsureIndex creates the index with a BM25 similarity when it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"similarity": map[string]any{
					"default": map[string]any{"type": "BM25", "k1": c.k1, "b": c.b},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"url":        map[string]any{"type": "keyword", "index": false},
				"title":      map[string]any{"type": "text"},
				"headings":   map[string]any{"type": "text"},
				"segment":    map[string]any{"type": "text"},
				"start_char": map[string]any{"type": "integer", "index": false},
				"end_char":   map[string]any{"type": "integer", "index": false},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal index body: %w", err)
	}
	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(data)))
	}
	c.log.Info("created segment index", "index", c.index, "k1", c.k1, "b", c.b)
	return nil
}

// Load bulk-indexes a JSONL corpus and returns the number of records sent.
func (c *Client) Load(ctx context.Context, r io.Reader) (int, error) {
	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client: c.es,
		Index:  c.index,
	})
	if err != nil {
		return 0, fmt.Errorf("create bulk indexer: %w", err)
	}
	var failed atomic.Int64
	count := 0
	readErr := retrieval.ReadCorpus(r, func(rec retrieval.CorpusRecord) error {
		payload, err := json.Marshal(rec.StoredSegment)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.DocID, err)
		}
		count++
		return indexer.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: rec.DocID,
			Body:       bytes.NewReader(payload),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				c.log.Warn("bulk index item failed", "segment_id", item.DocumentID, "error", err, "reason", res.Error.Reason)
			},
		})
	})
	if err := indexer.Close(ctx); err != nil {
		return count, fmt.Errorf("flush bulk indexer: %w", err)
	}
	if readErr != nil {
		return count, readErr
	}
	if n := failed.Load(); n > 0 {
		return count, fmt.Errorf("bulk index: %d of %d segments failed", n, count)
	}
	return count, nil
}

// Search implements retrieval.Index. With RM3 enabled a feedback pass runs
// first and the expanded, weighted query is issued as a second search.
func (c *Client) Search(ctx context.Context, query string, k int) ([]retrieval.Hit, error) {
	if !c.rm3.Enabled() {
		hits, _, err := c.search(ctx, matchQuery(query), k)
		return hits, err
	}
	fb, docs, err := c.search(ctx, matchQuery(query), c.rm3.FeedbackDocs)
	if err != nil {
		return nil, err
	}
	if len(fb) == 0 {
		return nil, nil
	}
	feedback := make([]retrieval.FeedbackDoc, len(fb))
	for i := range fb {
		feedback[i] = retrieval.FeedbackDoc{Text: docs[i].Title + " " + docs[i].Segment, Score: fb[i].Score}
	}
	terms := c.rm3.Expand(query, feedback)
	hits, _, err := c.search(ctx, weightedQuery(terms), k)
	return hits, err
}

// Fetch implements retrieval.Index.
func (c *Client) Fetch(ctx context.Context, docID string) (retrieval.StoredSegment, error) {
	req := esapi.GetRequest{Index: c.index, DocumentID: docID}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return retrieval.StoredSegment{}, fmt.Errorf("get %s: %w", docID, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return retrieval.StoredSegment{}, fmt.Errorf("segment %s: %w", docID, errorspkg.ErrNotFound)
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return retrieval.StoredSegment{}, fmt.Errorf("get %s failed: %s", docID, strings.TrimSpace(string(data)))
	}
	var parsed struct {
		Source retrieval.StoredSegment `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return retrieval.StoredSegment{}, fmt.Errorf("decode get response: %w", err)
	}
	return parsed.Source, nil
}

func (c *Client) search(ctx context.Context, query map[string]any, size int) ([]retrieval.Hit, []retrieval.StoredSegment, error) {
	payload, err := json.Marshal(map[string]any{
		"size":    size,
		"query":   query,
		"_source": []string{"title", "segment"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal search body: %w", err)
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string                  `json:"_id"`
				Score  float64                 `json:"_score"`
				Source retrieval.StoredSegment `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]retrieval.Hit, 0, len(parsed.Hits.Hits))
	docs := make([]retrieval.StoredSegment, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, retrieval.Hit{DocID: h.ID, Score: h.Score})
		docs = append(docs, h.Source)
	}
	return hits, docs, nil
}

func matchQuery(query string) map[string]any {
	return map[string]any{
		"multi_match": map[string]any{
			"query":  query,
			"fields": []string{"title", "segment"},
		},
	}
}

func weightedQuery(terms []retrieval.WeightedTerm) map[string]any {
	should := make([]map[string]any, 0, len(terms))
	for _, t := range terms {
		should = append(should, map[string]any{
			"multi_match": map[string]any{
				"query":  t.Term,
				"fields": []string{"title", "segment"},
				"boost":  t.Weight,
			},
		})
	}
	return map[string]any{"bool": map[string]any{"should": should}}
}
