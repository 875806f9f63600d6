package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const stageCompress = "compress"

var compressSchema = generation.Object("Sentences",
	generation.ArrayOf("sentences", generation.Field{Type: generation.TypeString}),
).WithArrayKey("sentences")

type compressReply struct {
	Sentences []string `json:"sentences"`
}

// Outcome of a compression run.
const (
	OutcomeSkipped    = "skipped"    // already within the limit
	OutcomeCompressed = "compressed" // brought within the limit
	OutcomePartial    = "partial"    // rounds exhausted, shorter but still over
	OutcomeReverted   = "reverted"   // a round failed, original sentences kept
)

// Compression describes what the compressor did.
type Compression struct {
	Outcome string
	Rounds  int
	Before  int
	After   int
}

// Compressor rewrites over-long reports sentence by sentence, never changing
// the number of sentences.
type Compressor struct {
	gen       *generation.Client
	prompts   *prompt.Manager
	limit     int
	target    int
	minRemove int
	maxRounds int
	logger    *slog.Logger
}

// CompressorOption customises the compressor.
type CompressorOption func(*Compressor)

// WithBudget sets the word limit and the per-round target below it.
func WithBudget(limit, target int) CompressorOption {
	return func(c *Compressor) {
		if limit > 0 && target > 0 && target <= limit {
			c.limit, c.target = limit, target
		}
	}
}

// WithMaxRounds caps the rewrite rounds.
func WithMaxRounds(n int) CompressorOption {
	return func(c *Compressor) {
		if n > 0 {
			c.maxRounds = n
		}
	}
}

// WithCompressorLogger overrides the component logger.
func WithCompressorLogger(l *slog.Logger) CompressorOption {
	return func(c *Compressor) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompressor returns a compressor with a 250 word limit, 240 word target,
// and 5 rounds.
func NewCompressor(gen *generation.Client, prompts *prompt.Manager, opts ...CompressorOption) *Compressor {
	c := &Compressor{
		gen:       gen,
		prompts:   prompts,
		limit:     250,
		target:    240,
		minRemove: 20,
		maxRounds: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.WithComponent("report.compressor")
	}
	return c
}

// Compress returns the sentences shortened to the limit where possible.
// On a sentence-count mismatch or a generation failure the original
// sentences are returned unchanged. A round that does not shorten the text
// is discarded, so the result is the shortest version seen. Only
// connectivity and context errors are returned as errors.
func (c *Compressor) Compress(ctx context.Context, sentences []string) ([]string, Compression, error) {
	before := CountWords(sentences)
	result := Compression{Outcome: OutcomeSkipped, Before: before, After: before}
	if before <= c.limit {
		return sentences, result, nil
	}

	current := sentences
	words := before
	for round := 1; round <= c.maxRounds && words > c.limit; round++ {
		result.Rounds = round
		next, err := c.shorten(ctx, current, words)
		if err != nil {
			if errorspkg.Fatal(err) {
				return nil, result, err
			}
			c.logger.Warn("compression failed, reverting", "round", round, "error", err)
			return c.revert(sentences, result)
		}
		if len(next) != len(sentences) {
			c.logger.Warn("compression changed the sentence count, reverting",
				"round", round, "expected", len(sentences), "got", len(next))
			return c.revert(sentences, result)
		}
		if n := CountWords(next); n >= words {
			c.logger.Debug("compression round did not shorten, keeping previous", "round", round, "words", n, "best", words)
			continue
		}
		current = next
		words = CountWords(current)
		c.logger.Debug("compression round", "round", round, "words", words)
	}

	result.After = words
	result.Outcome = OutcomeCompressed
	if words > c.limit {
		result.Outcome = OutcomePartial
	}
	metrics.CompressionOutcomes.WithLabelValues(result.Outcome).Inc()
	c.logger.Info("report compressed", "before", before, "after", words, "rounds", result.Rounds)
	return current, result, nil
}

// CompressReport applies Compress to a report, carrying citations and
// rationales over by position.
func (c *Compressor) CompressReport(ctx context.Context, r *Report) (*Report, Compression, error) {
	texts, result, err := c.Compress(ctx, r.Texts())
	if err != nil {
		return nil, result, err
	}
	out := &Report{Sentences: make([]Sentence, len(r.Sentences))}
	for i, s := range r.Sentences {
		s.Text = texts[i]
		out.Sentences[i] = s
	}
	return out, result, nil
}

func (c *Compressor) revert(original []string, result Compression) ([]string, Compression, error) {
	result.Outcome = OutcomeReverted
	result.After = result.Before
	metrics.CompressionOutcomes.WithLabelValues(result.Outcome).Inc()
	return original, result, nil
}

func (c *Compressor) shorten(ctx context.Context, sentences []string, words int) ([]string, error) {
	listed, err := json.MarshalIndent(sentences, "", "    ")
	if err != nil {
		return nil, err
	}
	msgs, err := c.prompts.Messages(prompt.Compress, map[string]any{
		"Limit":     c.limit,
		"WordCount": words,
		"Remove":    max(words-c.target, c.minRemove),
		"Target":    c.target,
		"Sentences": len(sentences),
		"Report":    string(listed),
	})
	if err != nil {
		return nil, fmt.Errorf("render compress prompt: %w", err)
	}
	reply, err := generation.Generate[compressReply](ctx, c.gen, stageCompress, compressSchema, msgs,
		generation.Temperature(0), generation.MaxRetries(3))
	if err != nil {
		return nil, err
	}
	return reply.Sentences, nil
}
