package retrieval

import "context"

// OverlapScorer scores texts by the share of distinct query terms they
// contain. It needs no model server and backs the HTTP scorers when their
// endpoint is unavailable.
type OverlapScorer struct{}

// Score implements Scorer.
func (OverlapScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	qterms := make(map[string]struct{})
	for _, t := range Tokenize(query) {
		qterms[t] = struct{}{}
	}
	scores := make([]float64, len(texts))
	if len(qterms) == 0 {
		return scores, nil
	}
	for i, text := range texts {
		seen := make(map[string]struct{})
		for _, t := range Tokenize(text) {
			if _, ok := qterms[t]; ok {
				seen[t] = struct{}{}
			}
		}
		scores[i] = float64(len(seen)) / float64(len(qterms))
	}
	return scores, nil
}
