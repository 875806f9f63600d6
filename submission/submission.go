// Package submission turns tracked results into the two run files: the
// ranked questions (task 1) and the citation-bearing reports (task 2).
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/report"
	"github.com/sweetpotato0/ai-factcheck/tracking"
)

// Shortener brings a report under the word budget without changing its
// sentence count.
type Shortener interface {
	CompressReport(ctx context.Context, r *report.Report) (*report.Report, report.Compression, error)
}

// Metadata heads every task-2 line.
type Metadata struct {
	TeamID        string `json:"team_id"`
	RunID         string `json:"run_id"`
	TopicID       string `json:"topic_id"`
	Type          string `json:"type"`
	UseStarterKit int    `json:"use_starter_kit"`
}

// Response is one report sentence as submitted.
type Response struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}

// ReportLine is one task-2 line.
type ReportLine struct {
	Metadata  Metadata   `json:"metadata"`
	Responses []Response `json:"responses"`
}

// Run is the rendered submission.
type Run struct {
	Task1   string
	Reports []ReportLine
	// Missing lists topic ids with no tracked record.
	Missing      []string
	Compressions map[string]report.Compression
}

// Producer renders runs for one team and run id.
type Producer struct {
	teamID    string
	runID     string
	shortener Shortener
	logger    *slog.Logger
}

// Option customises a Producer.
type Option func(*Producer)

// WithShortener enables the compression pass for over-long reports.
func WithShortener(s Shortener) Option {
	return func(p *Producer) { p.shortener = s }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a producer.
func New(teamID, runID string, opts ...Option) (*Producer, error) {
	if strings.TrimSpace(teamID) == "" || strings.TrimSpace(runID) == "" {
		return nil, errors.New("submission: team id and run id are required")
	}
	p := &Producer{teamID: teamID, runID: runID, logger: logging.WithComponent("submission")}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Task1Name and Task2Name are the run identifiers written into each file.
func (p *Producer) Task1Name() string { return p.runID + "-task-1" }
func (p *Producer) Task2Name() string { return p.runID + "-task-2" }

// Build renders the submission for topicIDs, in that order. Topics without a
// record are logged and skipped.
func (p *Producer) Build(ctx context.Context, topicIDs []string, data *tracking.Data) (*Run, error) {
	run := &Run{Compressions: make(map[string]report.Compression)}
	var task1 strings.Builder
	for _, id := range topicIDs {
		rec, ok := data.Get(id)
		if !ok {
			p.logger.Error("article not found in tracking data, skipping", "article_id", id)
			run.Missing = append(run.Missing, id)
			continue
		}
		for i, q := range rec.Questions {
			fmt.Fprintf(&task1, "%s\t%s\t%s\t%d\t%s\n", id, p.teamID, p.Task1Name(), i+1, tsvField(q.Text))
		}

		final := &rec.Report
		if p.shortener != nil {
			shortened, result, err := p.shortener.CompressReport(ctx, final)
			if err != nil {
				return nil, fmt.Errorf("compress %s: %w", id, err)
			}
			run.Compressions[id] = result
			if result.Outcome != report.OutcomeSkipped {
				p.logger.Info("report length adjusted", "article_id", id,
					"outcome", result.Outcome, "before", result.Before, "after", result.After)
			}
			final = shortened
		}

		line := ReportLine{
			Metadata: Metadata{
				TeamID:        p.teamID,
				RunID:         p.Task2Name(),
				TopicID:       id,
				Type:          "automatic",
				UseStarterKit: 1,
			},
			Responses: make([]Response, len(final.Sentences)),
		}
		for i, s := range final.Sentences {
			citations := s.Citations
			if citations == nil {
				citations = []string{}
			}
			line.Responses[i] = Response{Text: s.Text, Citations: citations}
		}
		run.Reports = append(run.Reports, line)
	}
	run.Task1 = strings.TrimSpace(task1.String())
	return run, nil
}

// Write stores the run under dir as <run_id>-task-1 and <run_id>-task-2 and
// returns both paths.
func (p *Producer) Write(dir string, run *Run) (task1Path, task2Path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("submission: create %s: %w", dir, err)
	}
	task1Path = filepath.Join(dir, p.Task1Name())
	if err := os.WriteFile(task1Path, []byte(run.Task1), 0o644); err != nil {
		return "", "", fmt.Errorf("submission: write task 1: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, line := range run.Reports {
		if err := enc.Encode(line); err != nil {
			return "", "", fmt.Errorf("submission: encode %s: %w", line.Metadata.TopicID, err)
		}
	}
	task2Path = filepath.Join(dir, p.Task2Name())
	if err := os.WriteFile(task2Path, buf.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("submission: write task 2: %w", err)
	}
	p.logger.Info("submission written",
		"task1", task1Path,
		"task2", task2Path,
		"reports", len(run.Reports),
		"missing", len(run.Missing),
	)
	return task1Path, task2Path, nil
}

// tsvField collapses every whitespace run, tabs and newlines included, to a
// single space so a question always stays in its column on one line.
func tsvField(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
