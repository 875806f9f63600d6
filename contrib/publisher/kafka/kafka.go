// Package kafka publishes article completion events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sweetpotato0/ai-factcheck/pipeline"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
)

// Config holds the writer settings.
type Config struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements pipeline.Publisher. Messages are keyed by article id
// so every event for an article lands on the same partition.
type Publisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ pipeline.Publisher = (*Publisher)(nil)

// New creates a publisher writing to cfg.Topic.
func New(cfg Config) (*Publisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       cfg.Topic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: cfg.MaxAttempts,
	})
	return newPublisher(writer, cfg), nil
}

func newPublisher(w messageWriter, cfg Config) *Publisher {
	p := &Publisher{writer: w, topic: cfg.Topic, timeout: cfg.WriteTimeout, logger: cfg.Logger}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}
	if p.logger == nil {
		p.logger = logging.WithComponent("publisher.kafka")
	}
	return p
}

// Publish implements pipeline.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev pipeline.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ArticleID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(ev.RunID)},
			{Key: "status", Value: []byte(ev.Status)},
		},
		Time: ev.FinishedAt,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", p.topic, err)
	}
	p.logger.Debug("completion event published", "article_id", ev.ArticleID, "status", ev.Status)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
