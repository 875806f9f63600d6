package questions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// Render lays the questions out as {"question_1": {"question", "rationale"}, ...}
// indented four spaces, the shape the report prompt and the tracking store use.
func Render(qs []Question) (string, error) {
	return RenderFrom(qs, 1)
}

// RenderFrom is Render with numbering starting at first, so a chunk of a
// longer list keeps its original ranks.
func RenderFrom(qs []Question, first int) (string, error) {
	doc := "{}"
	for i, q := range qs {
		entry, err := sjson.Set("{}", "question", q.Text)
		if err != nil {
			return "", err
		}
		if entry, err = sjson.Set(entry, "rationale", q.Rationale); err != nil {
			return "", err
		}
		if doc, err = sjson.SetRaw(doc, fmt.Sprintf("question_%d", first+i), entry); err != nil {
			return "", fmt.Errorf("render questions: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(doc), "", "    "); err != nil {
		return "", fmt.Errorf("render questions: %w", err)
	}
	return buf.String(), nil
}
