// Package evidence runs the iterative evidence-gathering loop for one
// article: query generation, hybrid retrieval and sufficiency evaluation.
package evidence

import (
	"context"

	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

// Query is a search query with the reason it was issued.
type Query struct {
	Text      string `json:"query"`
	Rationale string `json:"rationale"`
}

// Verdict is the sufficiency evaluator's answer for the accumulated evidence.
type Verdict struct {
	Reasoning  string `json:"evaluation_reasoning"`
	Sufficient bool   `json:"has_sufficient_information"`
}

// QueryRun records what one query retrieved.
type QueryRun struct {
	Query     string              `json:"query"`
	Rationale string              `json:"rationale"`
	Ranked    []retrieval.Segment `json:"reranked_segments"`
	Curated   []retrieval.Segment `json:"llm_selected_segments"`
}

// Round is one iteration of the loop.
type Round struct {
	Number  int
	Queries []QueryRun
	Verdict Verdict
}

// Outcome is everything the loop gathered for an article.
type Outcome struct {
	Rounds  []Round
	History *History
	Verdict Verdict
	// Allowed lists every curated segment id in first-seen order.
	Allowed []string
}

// QueryCount returns the number of queries recorded across all rounds.
func (o *Outcome) QueryCount() int {
	n := 0
	for _, r := range o.Rounds {
		n += len(r.Queries)
	}
	return n
}

// AllowedSet returns Allowed as a set.
func (o *Outcome) AllowedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.Allowed))
	for _, id := range o.Allowed {
		set[id] = struct{}{}
	}
	return set
}

// Searcher is the retrieval stage the loop depends on.
type Searcher interface {
	Search(ctx context.Context, query, articleContext string, excluded []string) (*retrieval.Result, error)
}
