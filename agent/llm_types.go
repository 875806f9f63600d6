package agent

import (
	"context"

	"github.com/sweetpotato0/ai-factcheck/message"
)

// LLMClient is the generation service boundary. Implementations return the raw
// assistant text; they do not repair or validate it.
type LLMClient interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// ModelLister is implemented by providers that can enumerate servable models.
// It backs the cheap connectivity probe done at construction time.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Options are the per-call sampling parameters.
// Zero values mean "provider default" except Temperature, which is always sent.
type Options struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int64
}

// GenerateRequest bundles inputs for a non-streaming LLM invocation.
type GenerateRequest struct {
	Messages []*message.Message
	Options  Options
}

// GenerateResponse captures the LLM reply for non-streaming calls.
type GenerateResponse struct {
	Message *message.Message
	Model   string
}

// Text returns the reply content; nil-safe.
func (r *GenerateResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Text()
}
