// Package report synthesizes the citation-grounded trustworthiness report and
// shortens it to the word budget.
package report

import (
	"strings"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
)

// Sentence is one report sentence with the segments backing it.
type Sentence struct {
	Rationale string   `json:"rationale"`
	Text      string   `json:"sentence_text"`
	Citations []string `json:"citations"`
}

// Report is an ordered list of sentences.
type Report struct {
	Sentences []Sentence `json:"sentences"`
}

// WordCount counts whitespace-separated tokens over all sentences.
func (r *Report) WordCount() int {
	return CountWords(r.Texts())
}

// Texts returns the sentence texts in order.
func (r *Report) Texts() []string {
	texts := make([]string, len(r.Sentences))
	for i, s := range r.Sentences {
		texts[i] = s.Text
	}
	return texts
}

// CountWords counts whitespace-separated tokens.
func CountWords(texts []string) int {
	n := 0
	for _, t := range texts {
		n += len(strings.Fields(t))
	}
	return n
}

var reportSchema = generation.Object("Report",
	generation.ArrayOf("sentences", generation.ObjectField("",
		generation.String("rationale"),
		generation.String("sentence_text"),
		generation.ArrayOf("citations", generation.Field{Type: generation.TypeString}),
	)),
).WithArrayKey("sentences")

// validate checks every citation against allowed and the per-sentence cap.
// Violations are returned, never filtered.
func validate(stage string, r *Report, allowed map[string]struct{}, maxCitations int) error {
	for i, s := range r.Sentences {
		if len(s.Citations) > maxCitations {
			return errorspkg.NewGroundingError(stage, "citation_cap", errorspkg.ErrCitation,
				"sentence %d has %d citations, limit %d", i+1, len(s.Citations), maxCitations)
		}
		for _, c := range s.Citations {
			if _, ok := allowed[c]; !ok {
				return errorspkg.NewGroundingError(stage, "citation_set", errorspkg.ErrCitation,
					"sentence %d cites %q, which is not a curated segment", i+1, c)
			}
		}
	}
	return nil
}
