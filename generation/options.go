package generation

import (
	"log/slog"
	"time"
)

// Config controls the structured generation client.
type Config struct {
	Model                string        // Model id sent with every request
	Temperature          float64       // Default temperature when a call does not override it
	TopP                 float64       // Default nucleus sampling parameter
	MaxOutputTokens      int64         // Output token budget per call
	MaxContextTokens     int           // Context window used to derive the truncation budget
	ReservedOutputTokens int           // Tokens withheld from the input budget for the reply
	CharsPerToken        int           // Character-per-token approximation
	MaxRetries           int           // Attempts per call, including the first
	BackoffUnit          time.Duration // Attempt k sleeps BackoffUnit * 2^k
	RequestsPerSecond    float64       // Client-side rate limit; zero disables it
	ArrayKey             string        // Default wrapping key for bare array replies
	SkipConnectivity     bool          // Skip the construction-time probe

	tokens TokenCounter
	logger *slog.Logger
}

// TokenCounter estimates prompt size for accounting.
type TokenCounter interface {
	CountTokens(text string) int
}

// Option customises the client configuration.
type Option func(*Config)

// WithModel sets the model id.
func WithModel(model string) Option {
	return func(cfg *Config) {
		if model != "" {
			cfg.Model = model
		}
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(cfg *Config) {
		if t >= 0 {
			cfg.Temperature = t
		}
	}
}

// WithTopP sets the default nucleus sampling parameter.
func WithTopP(p float64) Option {
	return func(cfg *Config) {
		if p > 0 && p <= 1 {
			cfg.TopP = p
		}
	}
}

// WithMaxOutputTokens caps the reply length.
func WithMaxOutputTokens(n int64) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxOutputTokens = n
		}
	}
}

// WithContextBudget overrides the token budget used for retry truncation.
func WithContextBudget(maxContextTokens, reservedOutputTokens int) Option {
	return func(cfg *Config) {
		if maxContextTokens > reservedOutputTokens && reservedOutputTokens >= 0 {
			cfg.MaxContextTokens = maxContextTokens
			cfg.ReservedOutputTokens = reservedOutputTokens
		}
	}
}

// WithMaxRetries sets the default number of attempts.
func WithMaxRetries(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxRetries = n
		}
	}
}

// WithBackoffUnit sets the base sleep between attempts.
func WithBackoffUnit(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.BackoffUnit = d
		}
	}
}

// WithRateLimit throttles calls to the generation service.
func WithRateLimit(rps float64) Option {
	return func(cfg *Config) {
		if rps >= 0 {
			cfg.RequestsPerSecond = rps
		}
	}
}

// WithArrayKey sets the default key bare arrays are wrapped into.
func WithArrayKey(key string) Option {
	return func(cfg *Config) {
		if key != "" {
			cfg.ArrayKey = key
		}
	}
}

// WithoutConnectivityCheck skips the construction-time probe.
func WithoutConnectivityCheck() Option {
	return func(cfg *Config) {
		cfg.SkipConnectivity = true
	}
}

// WithTokenCounter plugs in a tokenizer for prompt accounting.
func WithTokenCounter(tc TokenCounter) Option {
	return func(cfg *Config) {
		if tc != nil {
			cfg.tokens = tc
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Model:                "qwen2.5:7b",
		Temperature:          0.3,
		TopP:                 0.1,
		MaxOutputTokens:      100000,
		MaxContextTokens:     50000,
		ReservedOutputTokens: 1500,
		CharsPerToken:        4,
		MaxRetries:           3,
		BackoffUnit:          time.Second,
		ArrayKey:             "segment_ids",
	}
}

// CallOption overrides sampling for a single Generate call.
type CallOption func(*callConfig)

type callConfig struct {
	temperature float64
	topP        float64
	maxRetries  int
}

// Temperature overrides the temperature for one call.
func Temperature(t float64) CallOption {
	return func(c *callConfig) { c.temperature = t }
}

// TopP overrides the nucleus sampling parameter for one call.
func TopP(p float64) CallOption {
	return func(c *callConfig) { c.topP = p }
}

// MaxRetries overrides the attempt count for one call.
func MaxRetries(n int) CallOption {
	return func(c *callConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}
