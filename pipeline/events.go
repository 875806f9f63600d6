package pipeline

import (
	"context"
	"time"
)

// Event statuses.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Event announces that an article finished, successfully or not.
type Event struct {
	RunID      string    `json:"run_id"`
	ArticleID  string    `json:"article_id"`
	Status     string    `json:"status"`
	Rounds     int       `json:"rounds"`
	Questions  int       `json:"questions"`
	Sentences  int       `json:"sentences"`
	Words      int       `json:"words"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher delivers completion events. Publishing is best effort: the runner
// logs failures and carries on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
