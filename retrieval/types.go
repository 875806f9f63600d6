package retrieval

import (
	"context"
	"strings"
)

// Hit is one lexical match returned by an Index.
type Hit struct {
	DocID string
	Score float64
}

// StoredSegment holds the fields an Index keeps for a segment.
type StoredSegment struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Headings  string `json:"headings"`
	Segment   string `json:"segment"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
}

// Index is the lexical retrieval backend.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
	Fetch(ctx context.Context, docID string) (StoredSegment, error)
}

// Scorer assigns a relevance score to each (query, text) pair. The returned
// slice is index-aligned with texts.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Segment is a materialized, scored unit of evidence.
type Segment struct {
	ID           string  `json:"segment_id"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Headings     string  `json:"headings"`
	Text         string  `json:"segment"`
	StartChar    int     `json:"start_char"`
	EndChar      int     `json:"end_char"`
	LexicalScore float64 `json:"bm25rm3_score"`
	LexicalRank  int     `json:"bm25rm3_rank"`
	RerankScore  float64 `json:"rerank_score"`
	Rank         int     `json:"reranker_rank"`
}

// DocumentID returns the parent document id, the part before '#'.
func (s Segment) DocumentID() string {
	return ParentID(s.ID)
}

// ParentID strips the segment suffix from an id.
func ParentID(segmentID string) string {
	doc, _, _ := strings.Cut(segmentID, "#")
	return doc
}

// Result is the outcome of a search.
type Result struct {
	// Ranked holds the reranked candidates, each with its 1-based Rank.
	Ranked []Segment
	// Curated holds at most MaxSelected segments, most relevant first.
	Curated []Segment
}

// CuratedIDs lists the curated segment ids in order.
func (r *Result) CuratedIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Curated))
	for i, s := range r.Curated {
		ids[i] = s.ID
	}
	return ids
}
