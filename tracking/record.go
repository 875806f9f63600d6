// Package tracking persists the per-article record of everything the pipeline
// produced: loop iterations, questions, the report and the critique.
package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/sweetpotato0/ai-factcheck/evidence"
	"github.com/sweetpotato0/ai-factcheck/questions"
	"github.com/sweetpotato0/ai-factcheck/report"
)

const (
	iterationPrefix = "iteration_"
	queryPrefix     = "query_"
	questionPrefix  = "question_"
	sentencePrefix  = "sentence_"

	keyEvaluation = "evaluation"
	keyQuestions  = "question_generation"
	keyReport     = "report_generation"
	keyCritique   = "critique"
)

// Record is the tracked output for one article.
//
// On the wire it is an object with numbered keys in insertion order:
//
//	{
//	    "iteration_1": {"query_1": {...}, ..., "evaluation": {...}},
//	    "question_generation": {"question_1": {"question", "rationale"}},
//	    "report_generation": {"sentence_1": {"sentence", "rationale", "citations"}},
//	    "critique": "..."
//	}
type Record struct {
	Iterations []evidence.Round
	Questions  []questions.Question
	Report     report.Report
	Critique   string
}

// Submitted reports whether the record carries a report to submit.
func (r *Record) Submitted() bool {
	return len(r.Report.Sentences) > 0
}

type sentenceEntry struct {
	Sentence  string   `json:"sentence"`
	Rationale string   `json:"rationale"`
	Citations []string `json:"citations"`
}

type evaluationEntry struct {
	Sufficient bool   `json:"has_sufficient_information"`
	Reasoning  string `json:"evaluation_reasoning"`
}

type questionEntry struct {
	Question  string `json:"question"`
	Rationale string `json:"rationale"`
}

// MarshalJSON implements json.Marshaler with stable key order.
func (r Record) MarshalJSON() ([]byte, error) {
	doc := []byte("{}")
	var err error
	for i, round := range r.Iterations {
		iteration := []byte("{}")
		for k, q := range round.Queries {
			if iteration, err = setValue(iteration, queryPrefix+strconv.Itoa(k+1), q); err != nil {
				return nil, err
			}
		}
		verdict := evaluationEntry{Sufficient: round.Verdict.Sufficient, Reasoning: round.Verdict.Reasoning}
		if iteration, err = setValue(iteration, keyEvaluation, verdict); err != nil {
			return nil, err
		}
		number := round.Number
		if number == 0 {
			number = i + 1
		}
		if doc, err = sjson.SetRawBytes(doc, iterationPrefix+strconv.Itoa(number), iteration); err != nil {
			return nil, fmt.Errorf("tracking: %w", err)
		}
	}

	qs := []byte("{}")
	for i, q := range r.Questions {
		if qs, err = setValue(qs, questionPrefix+strconv.Itoa(i+1), questionEntry{Question: q.Text, Rationale: q.Rationale}); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetRawBytes(doc, keyQuestions, qs); err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}

	sentences := []byte("{}")
	for i, s := range r.Report.Sentences {
		citations := s.Citations
		if citations == nil {
			citations = []string{}
		}
		entry := sentenceEntry{Sentence: s.Text, Rationale: s.Rationale, Citations: citations}
		if sentences, err = setValue(sentences, sentencePrefix+strconv.Itoa(i+1), entry); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetRawBytes(doc, keyReport, sentences); err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}

	if r.Critique != "" {
		if doc, err = setValue(doc, keyCritique, r.Critique); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbered keys are ordered by
// their number, not by position in the document.
func (r *Record) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("tracking: invalid record json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("tracking: record must be an object")
	}
	*r = Record{}

	for _, it := range numbered(root, iterationPrefix) {
		round := evidence.Round{Number: it.number}
		for _, q := range numbered(it.value, queryPrefix) {
			var run evidence.QueryRun
			if err := json.Unmarshal([]byte(q.value.Raw), &run); err != nil {
				return fmt.Errorf("tracking: %s.%s: %w", it.key, q.key, err)
			}
			round.Queries = append(round.Queries, run)
		}
		if ev := it.value.Get(keyEvaluation); ev.Exists() {
			if err := json.Unmarshal([]byte(ev.Raw), &round.Verdict); err != nil {
				return fmt.Errorf("tracking: %s.evaluation: %w", it.key, err)
			}
		}
		r.Iterations = append(r.Iterations, round)
	}

	for _, q := range numbered(root.Get(keyQuestions), questionPrefix) {
		r.Questions = append(r.Questions, questions.Question{
			Text:      q.value.Get("question").String(),
			Rationale: q.value.Get("rationale").String(),
		})
	}

	for _, s := range numbered(root.Get(keyReport), sentencePrefix) {
		sentence := report.Sentence{
			Text:      s.value.Get("sentence").String(),
			Rationale: s.value.Get("rationale").String(),
			Citations: []string{},
		}
		for _, c := range s.value.Get("citations").Array() {
			sentence.Citations = append(sentence.Citations, c.String())
		}
		r.Report.Sentences = append(r.Report.Sentences, sentence)
	}

	r.Critique = root.Get(keyCritique).String()
	return nil
}

type numberedEntry struct {
	key    string
	number int
	value  gjson.Result
}

// numbered collects the members of obj named prefix<N>, sorted by N.
func numbered(obj gjson.Result, prefix string) []numberedEntry {
	var entries []numberedEntry
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if !strings.HasPrefix(k, prefix) {
			return true
		}
		n, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err != nil {
			return true
		}
		entries = append(entries, numberedEntry{key: k, number: n, value: value})
		return true
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].number < entries[j].number })
	return entries
}

func setValue(doc []byte, key string, v any) ([]byte, error) {
	raw, err := marshal(v)
	if err != nil {
		return nil, fmt.Errorf("tracking: encode %s: %w", key, err)
	}
	out, err := sjson.SetRawBytes(doc, key, raw)
	if err != nil {
		return nil, fmt.Errorf("tracking: set %s: %w", key, err)
	}
	return out, nil
}

// marshal encodes without HTML escaping; article text routinely contains
// ampersands and angle brackets.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
