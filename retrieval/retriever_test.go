package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/message"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

type stubLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
	last    string
}

func (s *stubLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := ""
	if len(s.replies) > 0 {
		idx := s.calls
		if idx >= len(s.replies) {
			idx = len(s.replies) - 1
		}
		reply = s.replies[idx]
	}
	s.calls++
	s.last, _ = message.Find(req.Messages, message.RoleUser)
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, reply)}, nil
}

type stubIndex struct {
	hits    []Hit
	stored  map[string]StoredSegment
	fetched []string
}

func (s *stubIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k < len(s.hits) {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

func (s *stubIndex) Fetch(ctx context.Context, docID string) (StoredSegment, error) {
	s.fetched = append(s.fetched, docID)
	seg, ok := s.stored[docID]
	if !ok {
		return StoredSegment{}, fmt.Errorf("no segment %s", docID)
	}
	return seg, nil
}

// stubScorer scores a text by the number embedded in its title.
type stubScorer struct {
	texts []string
}

func (s *stubScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	s.texts = texts
	out := make([]float64, len(texts))
	for i, t := range texts {
		var v float64
		fmt.Sscanf(t, "score %g", &v)
		out[i] = v
	}
	return out, nil
}

func segID(doc, n int) string {
	return fmt.Sprintf("msmarco_v2.1_doc_%02d_%d#%d_%d", doc, doc*7, n, n*100)
}

// newFixture indexes one segment per score; the lexical order is the reverse
// of the rerank order so reranking is observable.
func newFixture(scores ...float64) *stubIndex {
	idx := &stubIndex{stored: make(map[string]StoredSegment)}
	for i, score := range scores {
		id := segID(i+1, 1)
		idx.hits = append(idx.hits, Hit{DocID: id, Score: float64(len(scores) - i)})
		idx.stored[id] = StoredSegment{
			URL:     fmt.Sprintf("https://example.com/%d", i+1),
			Title:   fmt.Sprintf("score %g", score),
			Segment: fmt.Sprintf("segment body %d", i+1),
		}
	}
	return idx
}

func newTestRetriever(t *testing.T, idx Index, llm agent.LLMClient, opts ...Option) *Retriever {
	t.Helper()
	gen, err := generation.NewClient(context.Background(), llm,
		generation.WithoutConnectivityCheck(),
		generation.WithBackoffUnit(time.Millisecond),
		generation.WithLogger(logging.Discard()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	prompts, err := prompt.NewLibrary("")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	r, err := New(idx, &stubScorer{}, gen, prompts, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func ids(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}

func TestSearchExcludesSourceAndReranks(t *testing.T) {
	idx := newFixture(1, 5, 3, 4)
	excluded := ParentID(segID(2, 1))
	llm := &stubLLM{replies: []string{fmt.Sprintf(`{"segment_ids": [%q]}`, segID(4, 1))}}
	r := newTestRetriever(t, idx, llm)
	scorer := r.scorer.(*stubScorer)

	res, err := r.Search(context.Background(), "query", "article", []string{excluded})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Ranked) != 3 {
		t.Fatalf("expected 3 candidates after exclusion, got %d", len(res.Ranked))
	}
	for _, id := range idx.fetched {
		if ParentID(id) == excluded {
			t.Fatalf("excluded document %s was fetched", id)
		}
	}
	want := []string{segID(4, 1), segID(3, 1), segID(1, 1)}
	for i, seg := range res.Ranked {
		if seg.ID != want[i] || seg.Rank != i+1 {
			t.Fatalf("rank %d: got %s (rank %d), want %s", i+1, seg.ID, seg.Rank, want[i])
		}
	}
	if res.Ranked[0].LexicalRank != 4 {
		t.Fatalf("lexical rank must reflect the original hit position, got %d", res.Ranked[0].LexicalRank)
	}
	if !strings.HasPrefix(scorer.texts[0], "score 1\n\nsegment body 1") {
		t.Fatalf("scorer must see title and text, got %q", scorer.texts[0])
	}
	if got := res.CuratedIDs(); len(got) != 1 || got[0] != segID(4, 1) {
		t.Fatalf("unexpected curated set %v", got)
	}
}

func TestSearchTruncatesToRerankTopK(t *testing.T) {
	idx := newFixture(1, 2, 3, 4, 5, 6)
	llm := &stubLLM{replies: []string{`{"segment_ids": []}`}}
	r := newTestRetriever(t, idx, llm, WithRerankTopK(4), WithShownTopK(2))

	res, err := r.Search(context.Background(), "q", "a", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Ranked) != 4 {
		t.Fatalf("expected 4 ranked candidates, got %d", len(res.Ranked))
	}
	if strings.Contains(llm.last, segID(4, 1)) || !strings.Contains(llm.last, segID(5, 1)) {
		t.Fatalf("curator must only see the top shown candidates")
	}
}

func TestHallucinatedIDReplacedByHighestUnusedCandidate(t *testing.T) {
	idx := newFixture(5, 4, 3, 2, 1)
	reply := fmt.Sprintf(`{"segment_ids": [%q, "msmarco_v2.1_doc_99_1#0_0", %q]}`, segID(3, 1), segID(1, 1))
	llm := &stubLLM{replies: []string{reply}}
	r := newTestRetriever(t, idx, llm)

	res, err := r.Search(context.Background(), "q", "a", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{segID(3, 1), segID(2, 1), segID(1, 1)}
	got := res.CuratedIDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestCuratedSetCappedAndDeduplicated(t *testing.T) {
	idx := newFixture(5, 4, 3, 2, 1)
	reply := fmt.Sprintf(`[%q, %q, %q, %q, %q]`, segID(1, 1), segID(1, 1), segID(2, 1), segID(4, 1), segID(5, 1))
	r := newTestRetriever(t, idx, &stubLLM{replies: []string{reply}})

	res, err := r.Search(context.Background(), "q", "a", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := res.CuratedIDs()
	if len(got) != 3 || got[0] != segID(1, 1) || got[1] != segID(2, 1) || got[2] != segID(4, 1) {
		t.Fatalf("unexpected curated set %v", got)
	}
}

func TestEmptySelectionForcesTopCandidate(t *testing.T) {
	idx := newFixture(1, 9, 2)
	r := newTestRetriever(t, idx, &stubLLM{replies: []string{`{"segment_ids": []}`}})

	res, err := r.Search(context.Background(), "q", "a", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := res.CuratedIDs(); len(got) != 1 || got[0] != segID(2, 1) {
		t.Fatalf("expected top reranked candidate, got %v", got)
	}
}

func TestCurationFailureRecoversIDsFromRawOutput(t *testing.T) {
	idx := newFixture(3, 2, 1)
	raw := fmt.Sprintf("I would pick %s and msmarco_v2.1_doc_42_1#7_1 here", segID(2, 1))
	llm := &stubLLM{replies: []string{raw}}
	r := newTestRetriever(t, idx, llm)

	res, err := r.Search(context.Background(), "q", "a", nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if llm.calls != 3 {
		t.Fatalf("expected all structured attempts to be used, got %d", llm.calls)
	}
	want := []string{segID(2, 1), segID(1, 1)}
	if got := res.CuratedIDs(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

// cancellingLLM cancels the run while the curator waits on it.
type cancellingLLM struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	c.calls++
	c.cancel()
	return nil, context.Canceled
}

func TestCurationCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	llm := &cancellingLLM{cancel: cancel}
	r := newTestRetriever(t, newFixture(3, 2, 1), llm)

	res, err := r.Search(ctx, "q", "a", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Fatalf("no curated set may be recorded after cancellation, got %v", res.CuratedIDs())
	}
	if llm.calls != 1 {
		t.Fatalf("cancellation must stop retries, got %d calls", llm.calls)
	}
}

func TestNoCandidatesSkipsCuration(t *testing.T) {
	idx := newFixture(1)
	llm := &stubLLM{}
	r := newTestRetriever(t, idx, llm)

	res, err := r.Search(context.Background(), "q", "a", []string{ParentID(segID(1, 1))})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Ranked) != 0 || len(res.Curated) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if llm.calls != 0 {
		t.Fatalf("curation must not run without candidates")
	}
}

func TestCuratedAlwaysSubsetOfShown(t *testing.T) {
	replies := []string{
		`{"segment_ids": ["x#1", "y#2", "z#3", "w#4"]}`,
		`{"segment_ids": []}`,
		fmt.Sprintf(`{"segment_ids": [%q, %q]}`, segID(6, 1), segID(1, 1)),
	}
	for _, reply := range replies {
		idx := newFixture(6, 5, 4, 3, 2, 1)
		r := newTestRetriever(t, idx, &stubLLM{replies: []string{reply}}, WithShownTopK(4))
		res, err := r.Search(context.Background(), "q", "a", nil)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		shown := make(map[string]bool)
		for _, s := range res.Ranked[:4] {
			shown[s.ID] = true
		}
		if len(res.Curated) == 0 || len(res.Curated) > 3 {
			t.Fatalf("reply %s: curated size %d", reply, len(res.Curated))
		}
		for _, id := range res.CuratedIDs() {
			if !shown[id] {
				t.Fatalf("reply %s: curated id %s was not shown", reply, id)
			}
		}
	}
}
