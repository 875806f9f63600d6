package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sweetpotato0/ai-factcheck/agent"
	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/message"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

type stubLLM struct {
	reply string
	calls int
	temps []float64
	user  string
}

func (s *stubLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	s.calls++
	s.temps = append(s.temps, req.Options.Temperature)
	s.user, _ = message.Find(req.Messages, message.RoleUser)
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, s.reply)}, nil
}

func replyWith(texts ...string) string {
	out := reply{}
	for i, text := range texts {
		out.Questions = append(out.Questions, Question{Rationale: fmt.Sprintf("because %d", i+1), Text: text})
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func numbered(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("Who funds source %d?", i+1)
	}
	return texts
}

func newGenerator(t *testing.T, llm agent.LLMClient, opts ...Option) *Generator {
	t.Helper()
	gen, err := generation.NewClient(context.Background(), llm,
		generation.WithoutConnectivityCheck(),
		generation.WithBackoffUnit(time.Millisecond),
		generation.WithLogger(logging.Discard()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(gen, prompt.NewManager(), opts...)
}

func TestGenerateReturnsTenQuestionsInOrder(t *testing.T) {
	llm := &stubLLM{reply: replyWith(numbered(10)...)}
	g := newGenerator(t, llm)

	qs, err := g.Generate(context.Background(), `{"title": "t"}`, `{"query_1": {}}`)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(qs) != 10 || qs[0].Text != "Who funds source 1?" || qs[9].Rationale != "because 10" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if llm.temps[0] != 0.1 {
		t.Fatalf("expected temperature 0.1, got %v", llm.temps[0])
	}
	if !strings.Contains(llm.user, `{"query_1": {}}`) {
		t.Fatalf("evidence must reach the prompt")
	}
}

func TestGenerateRejectsWrongCount(t *testing.T) {
	g := newGenerator(t, &stubLLM{reply: replyWith(numbered(9)...)})
	_, err := g.Generate(context.Background(), "{}", "{}")
	if !errorspkg.Is(err, errorspkg.ErrQuestionCount) || !errorspkg.Is(err, errorspkg.ErrGrounding) {
		t.Fatalf("expected question count error, got %v", err)
	}
}

func TestGenerateRejectsLongQuestion(t *testing.T) {
	texts := numbered(10)
	texts[3] = strings.Repeat("é", 301)
	g := newGenerator(t, &stubLLM{reply: replyWith(texts...)})
	_, err := g.Generate(context.Background(), "{}", "{}")
	if !errorspkg.Is(err, errorspkg.ErrQuestionLength) {
		t.Fatalf("expected question length error, got %v", err)
	}
}

func TestGenerateCountsRunesNotBytes(t *testing.T) {
	texts := numbered(10)
	texts[0] = strings.Repeat("é", 300)
	g := newGenerator(t, &stubLLM{reply: replyWith(texts...)})
	if _, err := g.Generate(context.Background(), "{}", "{}"); err != nil {
		t.Fatalf("300 runes must be accepted: %v", err)
	}
}

func TestRenderFromKeepsRanks(t *testing.T) {
	out, err := RenderFrom([]Question{{Rationale: "r", Text: "q?"}}, 4)
	if err != nil {
		t.Fatalf("RenderFrom: %v", err)
	}
	want := "{\n    \"question_4\": {\n        \"question\": \"q?\",\n        \"rationale\": \"r\"\n    }\n}"
	if out != want {
		t.Fatalf("got\n%s\nwant\n%s", out, want)
	}
	if empty, _ := Render(nil); empty != "{}" {
		t.Fatalf("empty list renders as %q", empty)
	}
}
