package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/sweetpotato0/ai-factcheck/retrieval"
)

// dedupPrefixRunes is how much segment text participates in the dedup key.
const dedupPrefixRunes = 100

// HistorySegment is the reduced view of a curated segment kept in History.
type HistorySegment struct {
	SegmentID string `json:"segment_id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Text      string `json:"segment_text"`
}

// HistoryEntry is one query with its curated segments.
type HistoryEntry struct {
	Query     string
	Rationale string
	Segments  []HistorySegment
}

// History is the append-only record of queries and curated segments for one
// article. Entries are keyed query_1..query_N in append order.
type History struct {
	entries []HistoryEntry
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records q with its curated segments and returns the entry key.
func (h *History) Append(q Query, curated []retrieval.Segment) string {
	segments := make([]HistorySegment, len(curated))
	for i, s := range curated {
		segments[i] = HistorySegment{SegmentID: s.ID, URL: s.URL, Title: s.Title, Text: s.Text}
	}
	h.entries = append(h.entries, HistoryEntry{Query: q.Text, Rationale: q.Rationale, Segments: segments})
	return entryKey(len(h.entries))
}

// Len returns the number of entries.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Entries returns a copy of the entries.
func (h *History) Entries() []HistoryEntry {
	if h == nil {
		return nil
	}
	return append([]HistoryEntry(nil), h.entries...)
}

// JSON renders the history as shown to the query generator.
func (h *History) JSON() (string, error) {
	return h.render("retrieved_segments")
}

// EvidenceJSON renders the history as shown to the question and report stages.
func (h *History) EvidenceJSON() (string, error) {
	return h.render("llm_selected_segments")
}

// Condensed renders the deduplicated view the sufficiency evaluator reads:
// rationales are dropped, segments keep only their text, a segment already
// seen under an earlier query (same url and text prefix) is dropped, and
// entries left without segments are omitted.
func (h *History) Condensed() (string, error) {
	seen := make(map[string]struct{})
	doc := "{}"
	for i, e := range h.Entries() {
		texts := make([]map[string]string, 0, len(e.Segments))
		for _, s := range e.Segments {
			key := dedupKey(s.URL, s.Text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			texts = append(texts, map[string]string{"segment_text": s.Text})
		}
		if len(texts) == 0 {
			continue
		}
		entry, err := orderedEntry(e.Query, "", false, "retrieved_segments", texts)
		if err != nil {
			return "", err
		}
		if doc, err = sjson.SetRaw(doc, entryKey(i+1), entry); err != nil {
			return "", fmt.Errorf("render history: %w", err)
		}
	}
	return indent(doc, "  ")
}

func (h *History) render(segmentsKey string) (string, error) {
	doc := "{}"
	for i, e := range h.Entries() {
		segments := e.Segments
		if segments == nil {
			segments = []HistorySegment{}
		}
		entry, err := orderedEntry(e.Query, e.Rationale, true, segmentsKey, segments)
		if err != nil {
			return "", err
		}
		if doc, err = sjson.SetRaw(doc, entryKey(i+1), entry); err != nil {
			return "", fmt.Errorf("render history: %w", err)
		}
	}
	return indent(doc, "    ")
}

// orderedEntry builds {"query", ["rationale"], segmentsKey} preserving key order.
func orderedEntry(query, rationale string, withRationale bool, segmentsKey string, segments any) (string, error) {
	entry, err := sjson.Set("{}", "query", query)
	if err != nil {
		return "", err
	}
	if withRationale {
		if entry, err = sjson.Set(entry, "rationale", rationale); err != nil {
			return "", err
		}
	}
	raw, err := marshal(segments)
	if err != nil {
		return "", err
	}
	return sjson.SetRaw(entry, segmentsKey, raw)
}

func entryKey(n int) string {
	return fmt.Sprintf("query_%d", n)
}

func dedupKey(url, text string) string {
	runes := []rune(text)
	if len(runes) > dedupPrefixRunes {
		runes = runes[:dedupPrefixRunes]
	}
	sum := sha256.Sum256([]byte(url + "_" + string(runes)))
	return hex.EncodeToString(sum[:])
}

func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func indent(doc, prefix string) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(doc), "", prefix); err != nil {
		return "", fmt.Errorf("indent history: %w", err)
	}
	return buf.String(), nil
}
