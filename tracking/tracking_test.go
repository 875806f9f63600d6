package tracking

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sweetpotato0/ai-factcheck/evidence"
	"github.com/sweetpotato0/ai-factcheck/questions"
	"github.com/sweetpotato0/ai-factcheck/report"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

func sampleRecord() Record {
	seg := retrieval.Segment{ID: "msmarco_v2.1_doc_01_1#0_0", URL: "https://a", Title: "T", Text: "Chatham & Ontario", Rank: 1}
	return Record{
		Iterations: []evidence.Round{
			{
				Number: 1,
				Queries: []evidence.QueryRun{
					{Query: "q1", Rationale: "r1", Ranked: []retrieval.Segment{seg}, Curated: []retrieval.Segment{seg}},
					{Query: "q2", Rationale: "r2", Ranked: []retrieval.Segment{}, Curated: []retrieval.Segment{}},
				},
				Verdict: evidence.Verdict{Reasoning: "need more", Sufficient: false},
			},
			{
				Number:  2,
				Queries: []evidence.QueryRun{{Query: "q3", Rationale: "r3"}},
				Verdict: evidence.Verdict{Reasoning: "enough", Sufficient: true},
			},
		},
		Questions: []questions.Question{{Text: "Who?", Rationale: "source"}, {Text: "When?", Rationale: "date"}},
		Report: report.Report{Sentences: []report.Sentence{
			{Text: "The claim is disputed.", Rationale: "r", Citations: []string{"msmarco_v2.1_doc_01_1#0_0"}},
			{Text: "No sources.", Rationale: "r"},
		}},
		Critique: "Rewritten article.",
	}
}

func TestRecordMarshalLayout(t *testing.T) {
	raw, err := EncodeRecord(sampleRecord())
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	out := string(raw)
	order := []string{`"iteration_1"`, `"query_1"`, `"query_2"`, `"evaluation"`, `"iteration_2"`,
		`"question_generation"`, `"question_1"`, `"report_generation"`, `"sentence_1"`, `"sentence_2"`, `"critique"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out[last+1:], key)
		if idx < 0 {
			t.Fatalf("%s missing or out of order in %s", key, out)
		}
		last += idx + 1
	}
	if !strings.Contains(out, `{"has_sufficient_information":false,"evaluation_reasoning":"need more"}`) {
		t.Fatalf("unexpected evaluation layout: %s", out)
	}
	if !strings.Contains(out, `"sentence_2":{"sentence":"No sources.","rationale":"r","citations":[]}`) {
		t.Fatalf("missing citations must encode as []: %s", out)
	}
	if !strings.Contains(out, "Chatham & Ontario") {
		t.Fatalf("text must not be HTML-escaped: %s", out)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	raw, err := EncodeRecord(sampleRecord())
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	rec, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if len(rec.Iterations) != 2 || len(rec.Iterations[0].Queries) != 2 || rec.Iterations[1].Number != 2 {
		t.Fatalf("unexpected iterations %+v", rec.Iterations)
	}
	if !rec.Iterations[1].Verdict.Sufficient || rec.Iterations[0].Queries[0].Curated[0].Text != "Chatham & Ontario" {
		t.Fatalf("unexpected iteration content %+v", rec.Iterations)
	}
	if len(rec.Questions) != 2 || rec.Questions[1].Text != "When?" {
		t.Fatalf("unexpected questions %+v", rec.Questions)
	}
	if !rec.Submitted() || rec.Report.Sentences[0].Citations[0] != "msmarco_v2.1_doc_01_1#0_0" {
		t.Fatalf("unexpected report %+v", rec.Report)
	}
	if rec.Critique != "Rewritten article." {
		t.Fatalf("unexpected critique %q", rec.Critique)
	}
}

func TestDecodeOrdersNumberedKeysNumerically(t *testing.T) {
	raw := `{"question_generation": {"question_10": {"question": "ten"}, "question_2": {"question": "two"}, "question_1": {"question": "one"}},
		"report_generation": {}}`
	rec, err := DecodeRecord([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	var got []string
	for _, q := range rec.Questions {
		got = append(got, q.Text)
	}
	if strings.Join(got, ",") != "one,two,ten" {
		t.Fatalf("unexpected order %v", got)
	}
	if rec.Submitted() {
		t.Fatalf("empty report must not count as submitted")
	}
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	if _, err := DecodeRecord([]byte(`[1, 2]`)); err == nil {
		t.Fatalf("expected error for non-object record")
	}
	if _, err := DecodeRecord([]byte(`{"iteration_1": `)); err == nil {
		t.Fatalf("expected error for truncated record")
	}
}

func TestFileStoreRewritesWholeFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "tracking.json")
	store, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	for _, id := range []string{"B2", "A1"} {
		if err := store.Save(ctx, id, sampleRecord()); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	// Replacing keeps the original position.
	changed := sampleRecord()
	changed.Critique = "second pass"
	if err := store.Save(ctx, "B2", changed); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "{\n    \"B2\": {\n        \"iteration_1\": {") {
		t.Fatalf("unexpected layout:\n%s", text[:min(len(text), 200)])
	}
	if strings.Index(text, `"B2"`) > strings.Index(text, `"A1"`) {
		t.Fatalf("articles must keep insertion order")
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil || len(generic) != 2 {
		t.Fatalf("file must be one json object with two articles: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	loaded, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ids := loaded.IDs(); len(ids) != 2 || ids[0] != "B2" || ids[1] != "A1" {
		t.Fatalf("unexpected ids %v", ids)
	}
	rec, _ := loaded.Get("B2")
	if rec.Critique != "second pass" {
		t.Fatalf("replacement not persisted: %q", rec.Critique)
	}
	if ok, _ := reopened.Has(ctx, "A1"); !ok {
		t.Fatalf("Has must report stored article")
	}
}

func TestOpenFileMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenFile(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("missing file must open empty: %v", err)
	}
	if data, _ := store.Load(context.Background()); data.Len() != 0 {
		t.Fatalf("expected empty store")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("[1]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(bad); err == nil {
		t.Fatalf("expected error for non-object file")
	}
	if _, err := OpenFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := sampleRecord()
	if err := store.Save(ctx, "A1", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.Questions[0].Text = "mutated"
	data, _ := store.Load(ctx)
	got, ok := data.Get("A1")
	if !ok || got.Questions[0].Text != "Who?" {
		t.Fatalf("store must not share state with callers: %+v", got.Questions)
	}
}
