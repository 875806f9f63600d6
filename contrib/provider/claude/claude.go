// Package claude adapts Anthropic's Messages API to agent.LLMClient.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// MaxTokens caps the output budget; the API rejects budgets above the
	// model's limit, so larger per-call requests are clamped to it.
	MaxTokens  int64
	MaxRetries int
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 8192,
	}
}

// Provider implements agent.LLMClient and agent.ModelLister.
type Provider struct {
	config *Config
	client anthropic.Client
}

var (
	_ agent.LLMClient   = (*Provider)(nil)
	_ agent.ModelLister = (*Provider)(nil)
)

// New creates a new Claude provider using official SDK
func New(config *Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 8192
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	// System messages go into the dedicated field, not the conversation.
	var systemPrompts []string
	conversation := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleUser:
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			conversation = append(conversation, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	model := req.Options.Model
	if model == "" {
		model = p.config.Model
	}
	maxTokens := p.config.MaxTokens
	if req.Options.MaxTokens > 0 && req.Options.MaxTokens < maxTokens {
		maxTokens = req.Options.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    conversation,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Options.Temperature),
	}
	if len(systemPrompts) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(systemPrompts, "\n")}}
	}
	// The API accepts temperature or top_p, not both; top_p 1 is its default.
	if req.Options.TopP > 0 && req.Options.TopP < 1 && req.Options.Temperature == 0 {
		params.TopP = anthropic.Float(req.Options.TopP)
	}

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range apiMessage.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, text.String()),
		Model:   string(apiMessage.Model),
	}, nil
}

// ListModels implements agent.ModelLister.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("Claude list models: %w", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}
