package retrieval

import (
	"log/slog"

	"github.com/sweetpotato0/ai-factcheck/generation"
)

// Config configures the retriever funnel.
type Config struct {
	LexicalTopK   int    // hits requested from the index
	RerankTopK    int    // candidates kept after reranking
	ShownTopK     int    // candidates shown to the curator
	MaxSelected   int    // upper bound on curated segments
	SegmentPrefix string // id stem used when scanning raw curator output

	logger *slog.Logger
}

// Option customises the retriever config.
type Option func(*Config)

// WithLexicalTopK sets how many lexical hits are requested.
func WithLexicalTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.LexicalTopK = k
		}
	}
}

// WithRerankTopK limits how many candidates survive reranking.
func WithRerankTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.RerankTopK = k
		}
	}
}

// WithShownTopK sets how many reranked candidates the curator sees.
func WithShownTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.ShownTopK = k
		}
	}
}

// WithMaxSelected caps the curated set.
func WithMaxSelected(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxSelected = n
		}
	}
}

// WithSegmentPrefix overrides the id stem used for raw-output recovery.
func WithSegmentPrefix(prefix string) Option {
	return func(cfg *Config) {
		cfg.SegmentPrefix = prefix
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
		LexicalTopK:   1000,
		RerankTopK:    100,
		ShownTopK:     20,
		MaxSelected:   3,
		SegmentPrefix: generation.DefaultSegmentPrefix,
	}
}
