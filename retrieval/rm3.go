package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var termPattern = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

// stopwords keeps feedback expansion from drifting toward function words.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "she": {}, "that": {}, "the": {},
	"their": {}, "they": {}, "this": {}, "to": {}, "was": {}, "were": {}, "which": {}, "who": {},
	"will": {}, "with": {}, "what": {}, "when": {}, "where": {}, "how": {}, "why": {}, "not": {},
}

// Tokenize lowercases text and splits it into letter or digit runs.
func Tokenize(text string) []string {
	return termPattern.FindAllString(strings.ToLower(text), -1)
}

// WeightedTerm is one term of an expanded query.
type WeightedTerm struct {
	Term   string
	Weight float64
}

// FeedbackDoc is a pseudo-relevant document used for expansion.
type FeedbackDoc struct {
	Text  string
	Score float64
}

// RM3 configures relevance-model query expansion.
type RM3 struct {
	FeedbackDocs   int
	FeedbackTerms  int
	OriginalWeight float64
}

// DefaultRM3 mirrors the usual Anserini setting of 10 docs, 10 terms, 0.5.
func DefaultRM3() RM3 {
	return RM3{FeedbackDocs: 10, FeedbackTerms: 10, OriginalWeight: 0.5}
}

// Enabled reports whether expansion should run.
func (r RM3) Enabled() bool {
	return r.FeedbackDocs > 0 && r.FeedbackTerms > 0 && r.OriginalWeight < 1
}

// Expand interpolates the original query with a relevance model estimated
// from the top feedback documents. Weights sum to one.
func (r RM3) Expand(query string, feedback []FeedbackDoc) []WeightedTerm {
	original := make(map[string]float64)
	qterms := Tokenize(query)
	for _, t := range qterms {
		original[t] += 1 / float64(len(qterms))
	}
	if len(feedback) > r.FeedbackDocs {
		feedback = feedback[:r.FeedbackDocs]
	}

	// Scores are turned into a posterior over feedback docs.
	maxScore := math.Inf(-1)
	for _, d := range feedback {
		maxScore = math.Max(maxScore, d.Score)
	}
	var norm float64
	posterior := make([]float64, len(feedback))
	for i, d := range feedback {
		posterior[i] = math.Exp(d.Score - maxScore)
		norm += posterior[i]
	}

	model := make(map[string]float64)
	for i, d := range feedback {
		terms := Tokenize(d.Text)
		if len(terms) == 0 || norm == 0 {
			continue
		}
		tf := make(map[string]int)
		for _, t := range terms {
			if _, stop := stopwords[t]; stop {
				continue
			}
			tf[t]++
		}
		for t, n := range tf {
			model[t] += float64(n) / float64(len(terms)) * posterior[i] / norm
		}
	}

	expansion := topTerms(model, r.FeedbackTerms)
	var expNorm float64
	for _, wt := range expansion {
		expNorm += wt.Weight
	}

	merged := make(map[string]float64, len(original)+len(expansion))
	for t, w := range original {
		merged[t] += r.OriginalWeight * w
	}
	for _, wt := range expansion {
		if expNorm > 0 {
			merged[wt.Term] += (1 - r.OriginalWeight) * wt.Weight / expNorm
		}
	}
	if expNorm == 0 {
		for t := range merged {
			merged[t] = original[t]
		}
	}
	return topTerms(merged, 0)
}

func topTerms(weights map[string]float64, limit int) []WeightedTerm {
	out := make([]WeightedTerm, 0, len(weights))
	for t, w := range weights {
		out = append(out, WeightedTerm{Term: t, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight == out[j].Weight {
			return out[i].Term < out[j].Term
		}
		return out[i].Weight > out[j].Weight
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
