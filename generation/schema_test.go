package generation

import (
	"errors"
	"testing"
)

var sentenceSchema = Object("Report",
	ArrayOf("sentences", ObjectField("",
		String("rationale"),
		String("sentence_text"),
		ArrayOf("citations", Field{Type: TypeString}),
	)),
	String("note").Optional(),
)

func TestSchemaValidateAccepts(t *testing.T) {
	doc := `{"sentences": [{"rationale": "r", "sentence_text": "s", "citations": ["a#1"], "extra": 1}]}`
	if err := sentenceSchema.Validate([]byte(doc)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchemaValidateRejects(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"sentences": [`,
		"top-level array":   `[1]`,
		"missing field":     `{"sentences": [{"rationale": "r", "citations": []}]}`,
		"null required":     `{"sentences": null}`,
		"wrong element":     `{"sentences": [{"rationale": "r", "sentence_text": "s", "citations": [3]}]}`,
		"wrong type":        `{"sentences": "nope"}`,
		"optional mistyped": `{"sentences": [], "note": 4}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := sentenceSchema.Validate([]byte(doc))
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestSchemaIntegerAndKeysWithDots(t *testing.T) {
	s := Object("Scores", Integer("v2.1"), Number("score"))
	if err := s.Validate([]byte(`{"v2.1": 3, "score": 0.5}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Validate([]byte(`{"v2.1": 3.5, "score": 0.5}`)); err == nil {
		t.Fatalf("expected integer mismatch")
	}
}
