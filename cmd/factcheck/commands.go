package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/article"
	"github.com/sweetpotato0/ai-factcheck/critique"
	"github.com/sweetpotato0/ai-factcheck/evidence"
	"github.com/sweetpotato0/ai-factcheck/pipeline"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/prompt"
	"github.com/sweetpotato0/ai-factcheck/questions"
	"github.com/sweetpotato0/ai-factcheck/report"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
	"github.com/sweetpotato0/ai-factcheck/runner"
	"github.com/sweetpotato0/ai-factcheck/submission"
)

func runCommand(ctx context.Context, a *app) error {
	cfg := a.cfg
	articles, err := article.LoadTopicsFile(cfg.TopicsPath, article.WithHTMLCleaning(cfg.CleanHTML))
	if err != nil {
		return err
	}
	prompts, err := prompt.NewLibrary(cfg.PromptsDir)
	if err != nil {
		return err
	}
	gen, err := a.generationClient(ctx)
	if err != nil {
		return err
	}
	idx, err := a.index(ctx)
	if err != nil {
		return err
	}
	scorer, err := a.scorer()
	if err != nil {
		return err
	}
	retriever, err := retrieval.New(idx, scorer, gen, prompts,
		retrieval.WithLexicalTopK(cfg.Retrieval.LexicalTopK),
		retrieval.WithRerankTopK(cfg.Retrieval.RerankTopK),
		retrieval.WithShownTopK(cfg.Retrieval.ShownTopK),
		retrieval.WithMaxSelected(cfg.Retrieval.MaxSelected),
		retrieval.WithLogger(logging.WithComponent("retrieval")))
	if err != nil {
		return err
	}
	loop, err := evidence.NewLoop(gen, prompts, retriever,
		evidence.WithMaxIterations(cfg.MaxQueryIterations),
		evidence.WithQueriesPerRound(cfg.QueriesPerRound))
	if err != nil {
		return err
	}

	stages := pipeline.Stages{
		Evidence:  loop,
		Questions: questions.New(gen, prompts, questions.WithCount(cfg.QuestionCount)),
		Report: report.New(gen, prompts,
			report.WithWordLimit(cfg.Report.WordLimit),
			report.WithMaxCitations(cfg.Report.MaxCitations)),
	}
	if cfg.Critique {
		stages.Critic = critique.New(gen, prompts, logging.WithComponent("critique"))
	}
	processor, err := pipeline.NewProcessor(stages, logging.WithComponent("pipeline"))
	if err != nil {
		return err
	}

	store, err := a.trackingStore(ctx)
	if err != nil {
		return err
	}
	opts := []runner.Option{
		runner.WithRunID(cfg.RunID),
		runner.WithStartIndex(cfg.StartIndex),
		runner.WithResume(cfg.Resume),
		runner.WithLogger(a.log),
	}
	pub, err := a.publisher()
	if err != nil {
		return err
	}
	if pub != nil {
		opts = append(opts, runner.WithPublisher(pub))
	}
	r, err := runner.New(processor, store, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	summary, err := r.Run(ctx, articles)
	a.log.Info("run finished",
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("elapsed", time.Since(start)))
	return err
}

func produceCommand(ctx context.Context, a *app) error {
	cfg := a.cfg
	articles, err := article.LoadTopicsFile(cfg.TopicsPath)
	if err != nil {
		return err
	}
	store, err := a.trackingStore(ctx)
	if err != nil {
		return err
	}
	data, err := store.Load(ctx)
	if err != nil {
		return err
	}

	opts := []submission.Option{submission.WithLogger(logging.WithComponent("submission"))}
	if cfg.Report.Compress {
		prompts, err := prompt.NewLibrary(cfg.PromptsDir)
		if err != nil {
			return err
		}
		gen, err := a.generationClient(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, submission.WithShortener(report.NewCompressor(gen, prompts,
			report.WithBudget(cfg.Report.WordLimit, cfg.Report.WordLimit*24/25))))
	}
	producer, err := submission.New(cfg.TeamID, cfg.RunID, opts...)
	if err != nil {
		return err
	}
	run, err := producer.Build(ctx, article.IDs(articles), data)
	if err != nil {
		return err
	}
	task1, task2, err := producer.Write(cfg.OutputDir, run)
	if err != nil {
		return err
	}
	a.log.Info("submission written",
		slog.String("task1", task1),
		slog.String("task2", task2),
		slog.Int("reports", len(run.Reports)),
		slog.Int("missing", len(run.Missing)))
	return nil
}

// indexCommand loads the segment corpus. With the memory backend it only
// parses the corpus, which is a cheap way to validate the file.
func indexCommand(ctx context.Context, a *app) error {
	cfg := a.cfg
	if cfg.Index.Backend != "elasticsearch" {
		_, err := a.index(ctx)
		return err
	}
	es, err := a.elasticsearch(ctx)
	if err != nil {
		return err
	}
	if err := es.EnsureIndex(ctx); err != nil {
		return err
	}
	f, err := os.Open(cfg.Index.Corpus)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	jobID := uuid.NewString()
	a.log.Info("bulk load started", slog.String("job_id", jobID), slog.String("index", cfg.Index.Name))
	n, err := es.Load(ctx, f)
	if err != nil {
		return fmt.Errorf("bulk load %s after %d segments: %w", jobID, n, err)
	}
	a.log.Info("bulk load finished", slog.String("job_id", jobID), slog.Int("segments", n))
	return nil
}

// modelsCommand lists the provider's models and reports whether the
// configured one is among them.
func modelsCommand(ctx context.Context, a *app) error {
	llm, err := a.llmClient(ctx)
	if err != nil {
		return err
	}
	lister, ok := llm.(agent.ModelLister)
	if !ok {
		return errNoLister
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return err
	}
	slices.Sort(models)
	for _, m := range models {
		marker := " "
		if m == a.cfg.Model {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, m)
	}
	if !slices.Contains(models, a.cfg.Model) {
		return fmt.Errorf("configured model %q is not available", a.cfg.Model)
	}
	return nil
}
