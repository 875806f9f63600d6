package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sweetpotato0/ai-factcheck/article"
	"github.com/sweetpotato0/ai-factcheck/pipeline"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/questions"
	"github.com/sweetpotato0/ai-factcheck/report"
	"github.com/sweetpotato0/ai-factcheck/tracking"
)

type stubProcessor struct {
	seen  []string
	fail  map[string]error
	panic string
}

func (s *stubProcessor) Process(ctx context.Context, a article.Article) (*tracking.Record, error) {
	s.seen = append(s.seen, a.ID)
	if a.ID == s.panic {
		panic("stage blew up")
	}
	if err := s.fail[a.ID]; err != nil {
		return nil, err
	}
	return &tracking.Record{
		Questions: []questions.Question{{Text: "q for " + a.ID}},
		Report:    report.Report{Sentences: []report.Sentence{{Text: "one two three", Citations: []string{}}}},
	}, nil
}

type stubPublisher struct {
	events []pipeline.Event
	err    error
}

func (p *stubPublisher) Publish(ctx context.Context, ev pipeline.Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

func articles(ids ...string) []article.Article {
	out := make([]article.Article, len(ids))
	for i, id := range ids {
		out[i] = article.New(id, map[string]any{"title": "T " + id})
	}
	return out
}

func TestRunProcessesSequentiallyAndContinuesAfterFailure(t *testing.T) {
	proc := &stubProcessor{fail: map[string]error{"B": errors.New("grounding violated")}}
	store := tracking.NewMemoryStore()
	pub := &stubPublisher{}
	r, err := New(proc, store, WithPublisher(pub), WithRunID("run1"), WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := r.Run(context.Background(), articles("A", "B", "C"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(proc.seen, ",") != "A,B,C" {
		t.Fatalf("unexpected order %v", proc.seen)
	}
	if summary.Processed != 2 || summary.Failed != 1 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Failures["B"] == nil {
		t.Fatalf("failure for B not recorded")
	}
	data, _ := store.Load(context.Background())
	if ids := data.IDs(); strings.Join(ids, ",") != "A,C" {
		t.Fatalf("failed article must not be saved: %v", ids)
	}
	if len(pub.events) != 3 || pub.events[1].Status != pipeline.StatusFailed || pub.events[2].Sentences != 1 {
		t.Fatalf("unexpected events %+v", pub.events)
	}
	if pub.events[0].RunID != "run1" || pub.events[0].Words != 3 {
		t.Fatalf("unexpected event payload %+v", pub.events[0])
	}
}

func TestRunSkipsTrackedArticles(t *testing.T) {
	proc := &stubProcessor{}
	store := tracking.NewMemoryStore()
	if err := store.Save(context.Background(), "A", tracking.Record{}); err != nil {
		t.Fatal(err)
	}
	r, _ := New(proc, store, WithLogger(logging.Discard()))

	summary, err := r.Run(context.Background(), articles("A", "B"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 1 || strings.Join(proc.seen, ",") != "B" {
		t.Fatalf("unexpected summary %+v seen %v", summary, proc.seen)
	}
}

func TestRunWithoutResumeReprocesses(t *testing.T) {
	proc := &stubProcessor{}
	store := tracking.NewMemoryStore()
	_ = store.Save(context.Background(), "A", tracking.Record{})
	r, _ := New(proc, store, WithResume(false), WithLogger(logging.Discard()))

	if _, err := r.Run(context.Background(), articles("A")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(proc.seen) != 1 {
		t.Fatalf("expected A to be reprocessed")
	}
}

func TestRunHonoursStartIndex(t *testing.T) {
	proc := &stubProcessor{}
	r, _ := New(proc, tracking.NewMemoryStore(), WithStartIndex(2), WithLogger(logging.Discard()))
	if _, err := r.Run(context.Background(), articles("A", "B", "C", "D")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(proc.seen, ",") != "C,D" {
		t.Fatalf("unexpected order %v", proc.seen)
	}

	r, _ = New(proc, tracking.NewMemoryStore(), WithStartIndex(10), WithLogger(logging.Discard()))
	if summary, err := r.Run(context.Background(), articles("A")); err != nil || summary.Processed != 0 {
		t.Fatalf("start index beyond input must be a no-op: %+v %v", summary, err)
	}
}

func TestRunRecoversFromPanics(t *testing.T) {
	proc := &stubProcessor{panic: "A"}
	r, _ := New(proc, tracking.NewMemoryStore(), WithLogger(logging.Discard()))
	summary, err := r.Run(context.Background(), articles("A", "B"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunIgnoresPublisherErrors(t *testing.T) {
	pub := &stubPublisher{err: errors.New("broker down")}
	r, _ := New(&stubProcessor{}, tracking.NewMemoryStore(), WithPublisher(pub), WithLogger(logging.Discard()))
	summary, err := r.Run(context.Background(), articles("A"))
	if err != nil || summary.Processed != 1 {
		t.Fatalf("publisher errors must not fail the run: %+v %v", summary, err)
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc := &stubProcessor{}
	r, _ := New(proc, tracking.NewMemoryStore(), WithLogger(logging.Discard()))
	if _, err := r.Run(ctx, articles("A")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(proc.seen) != 0 {
		t.Fatalf("no article should run after cancellation")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, tracking.NewMemoryStore()); err == nil {
		t.Fatalf("expected error without processor")
	}
	if _, err := New(&stubProcessor{}, nil); err == nil {
		t.Fatalf("expected error without store")
	}
}
