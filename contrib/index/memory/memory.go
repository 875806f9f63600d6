// Package memory provides an in-process BM25 index with RM3 expansion for
// small corpora and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

// Option customises the index.
type Option func(*Index)

// WithBM25 overrides the BM25 parameters (defaults k1=0.9, b=0.4).
func WithBM25(k1, b float64) Option {
	return func(idx *Index) {
		if k1 > 0 && b >= 0 && b <= 1 {
			idx.k1 = k1
			idx.b = b
		}
	}
}

// WithRM3 configures pseudo-relevance feedback. A zero value disables it.
func WithRM3(rm3 retrieval.RM3) Option {
	return func(idx *Index) {
		idx.rm3 = rm3
	}
}

// Index is a thread-safe in-memory BM25 index keyed by segment id.
type Index struct {
	mu          sync.RWMutex
	docFreq     map[string]int
	postings    map[string]map[string]int
	docLength   map[string]int
	segments    map[string]retrieval.StoredSegment
	totalLength int
	k1          float64
	b           float64
	rm3         retrieval.RM3
}

// New creates an empty index.
func New(opts ...Option) *Index {
	idx := &Index{
		docFreq:   make(map[string]int),
		postings:  make(map[string]map[string]int),
		docLength: make(map[string]int),
		segments:  make(map[string]retrieval.StoredSegment),
		k1:        0.9,
		b:         0.4,
		rm3:       retrieval.DefaultRM3(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Load indexes every record of a JSONL corpus.
func (idx *Index) Load(r io.Reader) (int, error) {
	n := 0
	err := retrieval.ReadCorpus(r, func(rec retrieval.CorpusRecord) error {
		idx.Add(rec.DocID, rec.StoredSegment)
		n++
		return nil
	})
	return n, err
}

// Add indexes title and text of a segment. Re-adding an id is ignored.
func (idx *Index) Add(id string, seg retrieval.StoredSegment) {
	terms := retrieval.Tokenize(seg.Title + " " + seg.Segment)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.segments[id]; exists {
		return
	}
	idx.segments[id] = seg
	idx.docLength[id] = len(terms)
	idx.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := idx.postings[term]; !ok {
			idx.postings[term] = make(map[string]int)
		}
		idx.postings[term][id]++
		if _, exists := seen[term]; !exists {
			idx.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

// Count returns the number of indexed segments.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.segments)
}

// Search implements retrieval.Index.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]retrieval.Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	weights := make(map[string]float64)
	for _, t := range retrieval.Tokenize(query) {
		weights[t]++
	}
	hits := idx.score(weights, k)
	if !idx.rm3.Enabled() || len(hits) == 0 {
		return hits, nil
	}

	fbCount := min(len(hits), idx.rm3.FeedbackDocs)
	feedback := make([]retrieval.FeedbackDoc, fbCount)
	for i := range feedback {
		seg := idx.segments[hits[i].DocID]
		feedback[i] = retrieval.FeedbackDoc{Text: seg.Title + " " + seg.Segment, Score: hits[i].Score}
	}
	expanded := make(map[string]float64)
	for _, wt := range idx.rm3.Expand(query, feedback) {
		expanded[wt.Term] = wt.Weight
	}
	return idx.score(expanded, k), nil
}

// Fetch implements retrieval.Index.
func (idx *Index) Fetch(ctx context.Context, docID string) (retrieval.StoredSegment, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seg, ok := idx.segments[docID]
	if !ok {
		return retrieval.StoredSegment{}, fmt.Errorf("segment %s: %w", docID, errorspkg.ErrNotFound)
	}
	return seg, nil
}

// score ranks documents by weighted BM25. Callers hold the read lock.
func (idx *Index) score(weights map[string]float64, limit int) []retrieval.Hit {
	docCount := len(idx.segments)
	if docCount == 0 || len(weights) == 0 {
		return nil
	}
	avgLen := float64(idx.totalLength) / float64(docCount)
	scores := make(map[string]float64)
	for term, weight := range weights {
		postings := idx.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := idx.docFreq[term]
		idf := math.Log((float64(docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for id, tf := range postings {
			docLen := float64(idx.docLength[id])
			numerator := float64(tf) * (idx.k1 + 1)
			denominator := float64(tf) + idx.k1*(1-idx.b+idx.b*(docLen/avgLen))
			scores[id] += weight * idf * (numerator / denominator)
		}
	}
	results := make([]retrieval.Hit, 0, len(scores))
	for id, score := range scores {
		results = append(results, retrieval.Hit{DocID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].DocID < results[j].DocID
		}
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
