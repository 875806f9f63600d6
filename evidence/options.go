package evidence

import "log/slog"

// Config controls the loop.
type Config struct {
	MaxIterations   int // rounds before the loop stops without a sufficient verdict
	QueriesPerRound int

	logger *slog.Logger
}

// Option customises the loop config.
type Option func(*Config)

// WithMaxIterations caps the number of rounds.
func WithMaxIterations(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxIterations = n
		}
	}
}

// WithQueriesPerRound sets how many queries each round must produce.
func WithQueriesPerRound(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.QueriesPerRound = n
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
		MaxIterations:   5,
		QueriesPerRound: 5,
	}
}
