package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	errorspkg "github.com/sweetpotato0/ai-factcheck/errors"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/message"
	"github.com/sweetpotato0/ai-factcheck/pkg/metrics"
	"github.com/sweetpotato0/ai-factcheck/prompt"
)

const curatorStage = "curator"

var selectionSchema = generation.Object("SelectedSegments",
	generation.ArrayOf("segment_ids", generation.Field{Type: generation.TypeString}),
).WithArrayKey("segment_ids")

type selection struct {
	SegmentIDs []string `json:"segment_ids"`
}

type shownCandidate struct {
	SegmentID string `json:"segment_id"`
	Title     string `json:"title"`
	Text      string `json:"segment_text"`
}

type curator struct {
	gen     *generation.Client
	prompts *prompt.Manager
	cfg     *Config
	logger  *slog.Logger
}

func newCurator(gen *generation.Client, prompts *prompt.Manager, cfg *Config, logger *slog.Logger) *curator {
	return &curator{gen: gen, prompts: prompts, cfg: cfg, logger: logger.With("stage", curatorStage)}
}

// curate asks the model for the most relevant shown candidates and repairs
// the answer so it only ever names shown candidates.
func (c *curator) curate(ctx context.Context, query, article string, ranked []Segment) ([]Segment, error) {
	shown := ranked
	if len(shown) > c.cfg.ShownTopK {
		shown = shown[:c.cfg.ShownTopK]
	}
	msgs, err := c.messages(query, article, shown)
	if err != nil {
		return nil, err
	}
	ids, err := c.selectIDs(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return c.validate(ids, shown), nil
}

func (c *curator) messages(query, article string, shown []Segment) ([]*message.Message, error) {
	candidates := make([]shownCandidate, len(shown))
	for i, s := range shown {
		candidates[i] = shownCandidate{SegmentID: s.ID, Title: s.Title, Text: s.Text}
	}
	payload, err := json.MarshalIndent(candidates, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode candidates: %w", err)
	}
	return c.prompts.Messages(prompt.Curator, map[string]any{
		"Article":    article,
		"Query":      query,
		"Candidates": string(payload),
		"Shown":      len(shown),
		"Max":        c.cfg.MaxSelected,
	})
}

// selectIDs runs the curation call. When every structured attempt fails the
// ids are recovered from the last raw output; connectivity failures and
// cancellation propagate.
func (c *curator) selectIDs(ctx context.Context, msgs []*message.Message) ([]string, error) {
	sel, err := generation.Generate[selection](ctx, c.gen, curatorStage, selectionSchema, msgs,
		generation.Temperature(0), generation.TopP(1))
	if err == nil {
		return sel.SegmentIDs, nil
	}
	var genErr *errorspkg.GenerationError
	if errorspkg.Fatal(err) || !errorspkg.As(err, &genErr) {
		return nil, err
	}
	ids := generation.ScanSegmentIDs(genErr.LastRaw, c.cfg.SegmentPrefix)
	metrics.CurationFallbacks.WithLabelValues("scan").Inc()
	c.logger.Warn("curation failed, recovered ids from raw output", "recovered", len(ids), "error", err)
	return ids, nil
}

// validate keeps shown ids in order, replaces each hallucinated id with the
// highest-ranked candidate that is neither picked nor requested, drops
// duplicates and guarantees a non-empty result.
func (c *curator) validate(ids []string, shown []Segment) []Segment {
	byID := make(map[string]int, len(shown))
	for i, s := range shown {
		byID[s.ID] = i
	}
	requested := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			requested[id] = struct{}{}
		}
	}

	used := make(map[string]struct{}, c.cfg.MaxSelected)
	curated := make([]Segment, 0, c.cfg.MaxSelected)
	next := 0
	for _, id := range ids {
		if len(curated) == c.cfg.MaxSelected {
			break
		}
		if idx, ok := byID[id]; ok {
			if _, dup := used[id]; dup {
				continue
			}
			used[id] = struct{}{}
			curated = append(curated, shown[idx])
			continue
		}
		metrics.CurationFallbacks.WithLabelValues("hallucination").Inc()
		sub := -1
		for ; next < len(shown); next++ {
			cand := shown[next].ID
			_, picked := used[cand]
			_, wanted := requested[cand]
			if !picked && !wanted {
				sub = next
				next++
				break
			}
		}
		if sub < 0 {
			c.logger.Warn("hallucinated segment id dropped, no unused candidates left", "segment_id", id)
			continue
		}
		c.logger.Warn("hallucinated segment id replaced", "segment_id", id, "substitute", shown[sub].ID)
		used[shown[sub].ID] = struct{}{}
		curated = append(curated, shown[sub])
	}

	if len(curated) == 0 && len(shown) > 0 {
		metrics.CurationFallbacks.WithLabelValues("forced_top1").Inc()
		c.logger.Warn("curation selected nothing, forcing top candidate", "segment_id", shown[0].ID)
		curated = append(curated, shown[0])
	}
	return curated
}
