package critique

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/message"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

type stubLLM struct {
	reply string
	temps []float64
}

func (s *stubLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	s.temps = append(s.temps, req.Options.Temperature)
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, s.reply)}, nil
}

func newGenerator(t *testing.T, llm agent.LLMClient) *Generator {
	t.Helper()
	gen, err := generation.NewClient(context.Background(), llm,
		generation.WithoutConnectivityCheck(),
		generation.WithBackoffUnit(time.Millisecond),
		generation.WithLogger(logging.Discard()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return New(gen, prompt.NewManager(), logging.Discard())
}

func TestGenerate(t *testing.T) {
	llm := &stubLLM{reply: `{"article": "  The cited study was never peer reviewed. "}`}
	g := newGenerator(t, llm)

	c, err := g.Generate(context.Background(), `{"title": "x"}`)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Text != "The cited study was never peer reviewed." || llm.temps[0] != 0.3 {
		t.Fatalf("unexpected critique %q at temperature %v", c.Text, llm.temps[0])
	}
}

func TestTryGenerateSwallowsFailures(t *testing.T) {
	g := newGenerator(t, &stubLLM{reply: "no critique today"})
	if got := g.TryGenerate(context.Background(), "A1", "{}"); got != "" {
		t.Fatalf("expected empty critique, got %q", got)
	}
}
