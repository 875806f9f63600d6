package report

import "log/slog"

// Config controls report synthesis.
type Config struct {
	WordLimit      int // soft budget communicated to the model
	MaxCitations   int // hard per-sentence cap
	ChunkCharLimit int // question chunk + evidence size ceiling for the fallback path

	logger *slog.Logger
}

// Option customises the synthesizer config.
type Option func(*Config)

// WithWordLimit sets the word budget.
func WithWordLimit(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.WordLimit = n
		}
	}
}

// WithMaxCitations sets the per-sentence citation cap.
func WithMaxCitations(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxCitations = n
		}
	}
}

// WithChunkCharLimit sets the fallback chunk ceiling in characters.
func WithChunkCharLimit(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.ChunkCharLimit = n
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
		WordLimit:      250,
		MaxCitations:   3,
		ChunkCharLimit: 60000,
	}
}
