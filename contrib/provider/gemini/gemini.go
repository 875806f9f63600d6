// Package gemini adapts Google's Gemini models to agent.LLMClient through the
// generative-ai-go SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey    string
	Model     string
	Endpoint  string
	MaxTokens int32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:    apiKey,
		Model:     "gemini-1.5-flash",
		MaxTokens: 8192,
	}
}

// Provider implements agent.LLMClient and agent.ModelLister.
type Provider struct {
	config *Config
	client *genai.Client
}

var (
	_ agent.LLMClient   = (*Provider)(nil)
	_ agent.ModelLister = (*Provider)(nil)
)

// New dials the Gemini API. Close releases the underlying connection.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil || config.APIKey == "" {
		return nil, errors.New("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	system, history, last, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	name := req.Options.Model
	if name == "" {
		name = p.config.Model
	}
	model := p.client.GenerativeModel(name)
	model.SetTemperature(float32(req.Options.Temperature))
	if req.Options.TopP > 0 {
		model.SetTopP(float32(req.Options.TopP))
	}
	maxTokens := p.config.MaxTokens
	if req.Options.MaxTokens > 0 && (maxTokens <= 0 || req.Options.MaxTokens < int64(maxTokens)) {
		maxTokens = int32(req.Options.MaxTokens)
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	session := model.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, text),
		Model:   name,
	}, nil
}

// ListModels implements agent.ModelLister. Names are returned without the
// "models/" resource prefix so they can be passed back as Options.Model.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	it := p.client.ListModels(ctx)
	var names []string
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Gemini list models: %w", err)
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}

// convertMessages splits a conversation into Gemini's shape: a system
// instruction, prior turns as chat history, and the final user turn to send.
func convertMessages(msgs []*message.Message) (string, []*genai.Content, string, error) {
	var system []string
	var turns []*message.Message
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Role == message.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != message.RoleUser {
		return "", nil, "", errors.New("Gemini request must end with a user message")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == message.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return strings.Join(system, "\n"), history, turns[len(turns)-1].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in Gemini response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("Gemini candidate has no content (finish reason %s)", cand.FinishReason)
	}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}
