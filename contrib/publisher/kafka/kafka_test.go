package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/ai-factcheck/pipeline"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
)

type stubWriter struct {
	msgs     []kafka.Message
	err      error
	closed   bool
	deadline bool
}

func (s *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, s.deadline = ctx.Deadline()
	s.msgs = append(s.msgs, msgs...)
	return s.err
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestPublishEncodesEvent(t *testing.T) {
	w := &stubWriter{}
	p := newPublisher(w, Config{Topic: "factcheck.done", Logger: logging.Discard()})

	finished := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := pipeline.Event{RunID: "run1", ArticleID: "msmarco_v2.1_doc_01_1", Status: pipeline.StatusProcessed, Sentences: 4, FinishedAt: finished}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	require.True(t, w.deadline)

	msg := w.msgs[0]
	require.Equal(t, "msmarco_v2.1_doc_01_1", string(msg.Key))
	require.Equal(t, finished, msg.Time)
	require.Equal(t, []kafka.Header{
		{Key: "run_id", Value: []byte("run1")},
		{Key: "status", Value: []byte("processed")},
	}, msg.Headers)

	var decoded pipeline.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, ev, decoded)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishWrapsWriterErrors(t *testing.T) {
	w := &stubWriter{err: errors.New("leader not available")}
	p := newPublisher(w, Config{Topic: "t", Logger: logging.Discard()})
	err := p.Publish(context.Background(), pipeline.Event{ArticleID: "A"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "leader not available")
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Brokers: []string{" "}, Topic: "t"})
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	p, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
