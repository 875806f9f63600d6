package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/sweetpotato0/ai-factcheck/agent"
	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/message"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/pkg/telemetry"
)

// Client wraps a generation service with output repair, schema validation and
// bounded retries. One Client is built per run and shared by every stage.
type Client struct {
	llm       agent.LLMClient
	cfg       *Config
	truncator Truncator
	prober    *Prober
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient builds the client and runs the cheap connectivity probe unless disabled.
func NewClient(ctx context.Context, llm agent.LLMClient, opts ...Option) (*Client, error) {
	if llm == nil {
		return nil, fmt.Errorf("generation: llm client is required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = logging.WithComponent("generation")
	}
	c := &Client{
		llm:       llm,
		cfg:       cfg,
		truncator: NewTruncator(cfg.MaxContextTokens, cfg.ReservedOutputTokens, cfg.CharsPerToken),
		prober:    NewProber(llm, cfg.Model, logger),
		logger:    logger.With("model", cfg.Model),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if !cfg.SkipConnectivity {
		if err := c.prober.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.cfg.Model }

// CheckModel runs the memoized capability probe.
func (c *Client) CheckModel(ctx context.Context) error { return c.prober.CheckModel(ctx) }

// Generate asks the model for a response matching schema and decodes it into T.
// It only returns successfully with a schema-valid value; otherwise the error
// is a *errors.GenerationError carrying the last raw output, or a
// connectivity error when the model probe fails.
func Generate[T any](ctx context.Context, c *Client, stage string, schema Schema, msgs []*message.Message, opts ...CallOption) (*T, error) {
	call := callConfig{
		temperature: c.cfg.Temperature,
		topP:        c.cfg.TopP,
		maxRetries:  c.cfg.MaxRetries,
	}
	for _, opt := range opts {
		opt(&call)
	}
	arrayKey := schema.ArrayKey
	if arrayKey == "" {
		arrayKey = c.cfg.ArrayKey
	}

	ctx, span := telemetry.Start(ctx, "generation."+stage,
		attribute.String("schema", schema.Name),
		attribute.Int("max_retries", call.maxRetries),
	)
	logger := c.logger.With("stage", stage)

	var (
		out     *T
		lastRaw string
		attempt int
	)
	operation := func() error {
		current := attempt
		attempt++

		input, truncated := c.truncator.Apply(msgs, current)
		if truncated {
			metrics.InputTruncations.WithLabelValues(stage).Inc()
			system, _ := message.Find(input, message.RoleSystem)
			user, _ := message.Find(input, message.RoleUser)
			logger.Warn("truncated input for retry",
				"attempt", current+1,
				"system_chars", len([]rune(system)),
				"user_chars", len([]rune(user)),
			)
		}

		raw, err := c.call(ctx, stage, input, call)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			metrics.GenerationAttempts.WithLabelValues(stage, "call_error").Inc()
			logger.Warn("generation call failed", "attempt", current+1, "error", err)
			return err
		}
		lastRaw = raw

		if strings.TrimSpace(raw) == "" {
			metrics.GenerationAttempts.WithLabelValues(stage, "empty").Inc()
			if perr := c.prober.CheckModel(ctx); perr != nil {
				return backoff.Permanent(perr)
			}
			return fmt.Errorf("empty response")
		}

		normalized, err := Normalize(raw, arrayKey)
		if err != nil {
			metrics.GenerationAttempts.WithLabelValues(stage, "invalid_json").Inc()
			logger.Warn("failed to parse JSON", "attempt", current+1, "error", err, "raw", logging.Trim(raw, 200))
			return err
		}
		if err := schema.Validate([]byte(normalized)); err != nil {
			metrics.GenerationAttempts.WithLabelValues(stage, "schema").Inc()
			logger.Warn("schema validation failed", "attempt", current+1, "error", err)
			return err
		}
		var value T
		if err := json.Unmarshal([]byte(normalized), &value); err != nil {
			metrics.GenerationAttempts.WithLabelValues(stage, "schema").Inc()
			logger.Warn("decode failed", "attempt", current+1, "error", err)
			return fmt.Errorf("decode %s: %w", schema.Name, err)
		}
		metrics.GenerationAttempts.WithLabelValues(stage, "ok").Inc()
		out = &value
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.newBackOff(), uint64(call.maxRetries-1)),
		ctx,
	)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logger.Debug("retrying generation", "attempt", attempt, "wait", wait)
	})
	if err == nil && out != nil {
		telemetry.End(span, nil)
		return out, nil
	}
	if err == nil {
		err = fmt.Errorf("no value produced")
	}
	if errors.Is(err, errorspkg.ErrConnectivity) {
		telemetry.End(span, err)
		return nil, err
	}
	metrics.GenerationFailures.WithLabelValues(stage).Inc()
	genErr := &errorspkg.GenerationError{
		Stage:    stage,
		Attempts: attempt,
		LastRaw:  lastRaw,
		Err:      err,
	}
	logger.Error("generation failed", "attempts", attempt, "error", err)
	telemetry.End(span, genErr)
	return nil, genErr
}

func (c *Client) call(ctx context.Context, stage string, msgs []*message.Message, call callConfig) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	c.recordPromptSize(stage, msgs)
	resp, err := c.llm.Generate(ctx, &agent.GenerateRequest{
		Messages: msgs,
		Options: agent.Options{
			Model:       c.cfg.Model,
			Temperature: call.temperature,
			TopP:        call.topP,
			MaxTokens:   c.cfg.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (c *Client) recordPromptSize(stage string, msgs []*message.Message) {
	tokens := 0
	if c.cfg.tokens != nil {
		for _, m := range msgs {
			tokens += c.cfg.tokens.CountTokens(m.Text())
		}
	} else if c.cfg.CharsPerToken > 0 {
		tokens = message.TotalLength(msgs) / c.cfg.CharsPerToken
	}
	metrics.PromptTokens.WithLabelValues(stage).Observe(float64(tokens))
	c.logger.Debug("sending prompt", "stage", stage, "prompt_tokens", tokens, "chars", message.TotalLength(msgs))
}

// newBackOff yields BackoffUnit, 2*BackoffUnit, 4*BackoffUnit, ... without jitter.
func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffUnit
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = c.cfg.BackoffUnit << 10
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
