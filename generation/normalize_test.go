package generation

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		path string
		want string
	}{
		{"plain object", `{"a": "b"}`, "a", "b"},
		{"fenced", "Here you go:\n```json\n{\"a\": \"fenced\"}\n```\nthanks", "a", "fenced"},
		{"prose around object", `The answer is {"a": "inline"} as requested.`, "a", "inline"},
		{"trailing comma", `{"a": "x", "b": [1, 2,],}`, "b.1", "2"},
		{"bold markers", `{"a": "**loud**"}`, "a", "loud"},
		{"bare array wrapped", `["id1", "id2"]`, "segment_ids.1", "id2"},
		{"bracketed preamble before object", "[Answer] {\"sentences\": [{\"text\": \"Claim.\", \"citations\": [\"d#1\"]}]}", "sentences.0.text", "Claim."},
		{"bare array of objects", `[{"a": "first"}, {"a": "second"}]`, "segment_ids.1.a", "second"},
		{"unterminated fence", "```json\n{\"a\": \"cut\"", "a", "cut"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw, "segment_ids")
			if err != nil {
				t.Fatalf("Normalize(%q): %v", tc.raw, err)
			}
			if v := gjson.Get(got, tc.path).String(); v != tc.want {
				t.Fatalf("path %s = %q, want %q (doc %s)", tc.path, v, tc.want, got)
			}
		})
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	if _, err := Normalize("   ", "k"); err == nil {
		t.Fatalf("expected error for blank input")
	}
}

func TestNormalizeBareArrayWithoutKey(t *testing.T) {
	_, err := Normalize(`[1, 2]`, "")
	if err == nil || !strings.Contains(err.Error(), "bare array") {
		t.Fatalf("expected bare array error, got %v", err)
	}
}

func TestFirstJSONSpanRespectsStrings(t *testing.T) {
	span, ok := firstJSONSpan(`note {"text": "a } inside", "n": 1} trailing }`)
	if !ok {
		t.Fatalf("expected a span")
	}
	if span != `{"text": "a } inside", "n": 1}` {
		t.Fatalf("unexpected span %q", span)
	}
}
