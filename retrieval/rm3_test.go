package retrieval

import (
	"math"
	"testing"
)

func TestRM3ExpandKeepsOriginalWeight(t *testing.T) {
	rm3 := RM3{FeedbackDocs: 2, FeedbackTerms: 3, OriginalWeight: 0.5}
	terms := rm3.Expand("hawaiian pizza", []FeedbackDoc{
		{Text: "Sam Panopoulos invented Hawaiian pizza in Chatham Ontario", Score: 2},
		{Text: "The Satellite restaurant in Chatham served pizza", Score: 1},
		{Text: "ignored third document about volcanoes volcanoes", Score: 0.5},
	})

	var total, originalMass float64
	weights := make(map[string]float64)
	for _, wt := range terms {
		total += wt.Weight
		weights[wt.Term] = wt.Weight
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("weights must sum to 1, got %f", total)
	}
	for _, q := range []string{"hawaiian", "pizza"} {
		if weights[q] < 0.25 {
			t.Fatalf("original term %s lost weight: %f", q, weights[q])
		}
		originalMass += weights[q]
	}
	if originalMass <= 0.5 {
		t.Fatalf("query terms also appear in feedback and should exceed 0.5, got %f", originalMass)
	}
	if _, ok := weights["volcanoes"]; ok {
		t.Fatalf("documents beyond FeedbackDocs must not contribute")
	}
	if _, ok := weights["in"]; ok {
		t.Fatalf("stopwords must not be expansion terms")
	}
}

func TestRM3WithoutFeedbackReturnsQuery(t *testing.T) {
	terms := DefaultRM3().Expand("Chatham 1962", nil)
	if len(terms) != 2 || terms[0].Weight != 0.5 || terms[1].Weight != 0.5 {
		t.Fatalf("unexpected terms %+v", terms)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Café-owner's 1962 menu!")
	want := []string{"café", "owner", "s", "1962", "menu"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
