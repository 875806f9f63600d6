package generation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sweetpotato0/ai-factcheck/agent"
	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/message"
)

// Prober performs the two connectivity checks: a cheap listing call at
// construction and a one-off capability check of the configured model that
// runs lazily and is memoized.
type Prober struct {
	llm    agent.LLMClient
	model  string
	logger *slog.Logger

	once sync.Once
	err  error
}

// NewProber creates a prober for the given model.
func NewProber(llm agent.LLMClient, model string, logger *slog.Logger) *Prober {
	return &Prober{llm: llm, model: model, logger: logger}
}

// Connect verifies the service answers. Providers that cannot list models are
// assumed reachable until the first call.
func (p *Prober) Connect(ctx context.Context) error {
	lister, ok := p.llm.(agent.ModelLister)
	if !ok {
		p.logger.Debug("provider cannot list models, skipping connectivity probe")
		return nil
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: list models: %v", errorspkg.ErrConnectivity, err)
	}
	p.logger.Info("connected to generation service", "available_models", len(models))
	if p.model != "" && len(models) > 0 && !slices.Contains(models, p.model) {
		p.logger.Warn("configured model not listed by service", "model", p.model)
	}
	return nil
}

// CheckModel confirms the configured model can actually serve a request.
// The first result, success or failure, is reused for every later call.
func (p *Prober) CheckModel(ctx context.Context) error {
	p.once.Do(func() {
		p.logger.Info("testing configured model", "model", p.model)
		resp, err := p.llm.Generate(ctx, &agent.GenerateRequest{
			Messages: []*message.Message{message.NewMessage(message.RoleUser, "Hi")},
			Options: agent.Options{
				Model:       p.model,
				Temperature: 0,
				TopP:        1,
				MaxTokens:   3,
			},
		})
		if err != nil {
			p.err = fmt.Errorf("%w: model %s failed capability probe: %v", errorspkg.ErrConnectivity, p.model, err)
			p.logger.Error("configured model failed", "model", p.model, "error", err)
			return
		}
		p.logger.Info("model works", "model", p.model, "reply_length", len(resp.Text()))
	})
	return p.err
}
