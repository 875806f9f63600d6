// Package runner drives the article pipeline over a whole topics file.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweetpotato0/ai-factcheck/article"
	"github.com/sweetpotato0/ai-factcheck/pipeline"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/tracking"
)

// Processor handles a single article.
type Processor interface {
	Process(ctx context.Context, a article.Article) (*tracking.Record, error)
}

// Summary counts what a run did.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	// Failures maps article ids to the error that aborted them.
	Failures map[string]error
}

// Runner processes articles one at a time, persisting after each.
type Runner struct {
	processor  Processor
	store      tracking.Store
	publisher  pipeline.Publisher
	runID      string
	startIndex int
	resume     bool
	logger     *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithPublisher sends a completion event after every article.
func WithPublisher(p pipeline.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithRunID tags completion events.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithStartIndex skips the first n articles of the input.
func WithStartIndex(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.startIndex = n
		}
	}
}

// WithResume controls whether articles already in the store are skipped.
// Enabled by default.
func WithResume(enabled bool) Option {
	return func(r *Runner) { r.resume = enabled }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner.
func New(processor Processor, store tracking.Store, opts ...Option) (*Runner, error) {
	if processor == nil {
		return nil, fmt.Errorf("runner: processor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("runner: tracking store is required")
	}
	r := &Runner{
		processor: processor,
		store:     store,
		resume:    true,
		logger:    logging.WithComponent("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run processes articles in order. A failing article is logged, counted and
// left out of the store; the run continues with the next one. Run stops
// early only when the context ends or the store cannot be written.
func (r *Runner) Run(ctx context.Context, articles []article.Article) (Summary, error) {
	summary := Summary{Failures: make(map[string]error)}
	if r.startIndex >= len(articles) {
		r.logger.Warn("start index beyond input", "start_index", r.startIndex, "articles", len(articles))
		return summary, nil
	}
	todo := articles[r.startIndex:]
	r.logger.Info("run started", "run_id", r.runID, "articles", len(todo), "start_index", r.startIndex)

	for i, a := range todo {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if r.resume {
			done, err := r.store.Has(ctx, a.ID)
			if err != nil {
				return summary, fmt.Errorf("check %s: %w", a.ID, err)
			}
			if done {
				summary.Skipped++
				metrics.ArticlesProcessed.WithLabelValues("skipped").Inc()
				r.logger.Info("article already tracked, skipping", "article_id", a.ID)
				continue
			}
		}

		r.logger.Info("processing article", "article_id", a.ID, "position", r.startIndex+i+1, "of", len(articles))
		start := time.Now()
		rec, err := r.process(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			summary.Failures[a.ID] = err
			metrics.ArticlesProcessed.WithLabelValues(pipeline.StatusFailed).Inc()
			r.logger.Error("article aborted", "article_id", a.ID, "error", err)
			r.publish(ctx, r.event(a.ID, pipeline.StatusFailed, nil, err, start))
			continue
		}

		if err := r.store.Save(ctx, a.ID, *rec); err != nil {
			return summary, fmt.Errorf("save %s: %w", a.ID, err)
		}
		summary.Processed++
		metrics.ArticlesProcessed.WithLabelValues(pipeline.StatusProcessed).Inc()
		r.publish(ctx, r.event(a.ID, pipeline.StatusProcessed, rec, nil, start))
	}

	r.logger.Info("run finished",
		"run_id", r.runID,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// process shields the run from a panicking stage.
func (r *Runner) process(ctx context.Context, a article.Article) (rec *tracking.Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic processing %s: %v", a.ID, p)
		}
	}()
	return r.processor.Process(ctx, a)
}

func (r *Runner) event(articleID, status string, rec *tracking.Record, err error, start time.Time) pipeline.Event {
	ev := pipeline.Event{
		RunID:      r.runID,
		ArticleID:  articleID,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	if rec != nil {
		ev.Rounds = len(rec.Iterations)
		ev.Questions = len(rec.Questions)
		ev.Sentences = len(rec.Report.Sentences)
		ev.Words = rec.Report.WordCount()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (r *Runner) publish(ctx context.Context, ev pipeline.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Warn("completion event not published", "article_id", ev.ArticleID, "error", err)
	}
}
