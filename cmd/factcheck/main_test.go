package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/ai-factcheck/config"
	"github.com/sweetpotato0/ai-factcheck/contrib/reranker/cohere"
	"github.com/sweetpotato0/ai-factcheck/contrib/reranker/crossencoder"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
	"github.com/sweetpotato0/ai-factcheck/tracking"
	"github.com/sweetpotato0/ai-factcheck/tracking/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("FACTCHECK_CONFIG", "")
	t.Setenv("FACTCHECK_OUTPUT_DIR", t.TempDir())
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	a := &app{cfg: cfg, log: logging.Discard()}
	t.Cleanup(a.close)
	return a
}

func TestOpsRouter(t *testing.T) {
	healthy := true
	router := newOpsRouter(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("redis down")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	healthy = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis down")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAppHealthReportsFailingCheck(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.health(context.Background()))
	a.addCheck("mongo", func(context.Context) error { return errors.New("no primary") })
	require.ErrorContains(t, a.health(context.Background()), "mongo: no primary")
}

func TestScorerSelection(t *testing.T) {
	a := newTestApp(t)

	s, err := a.scorer()
	require.NoError(t, err)
	require.IsType(t, retrieval.OverlapScorer{}, s)

	a.cfg.Reranker = config.RerankerConfig{Backend: "crossencoder", URL: "http://localhost:8080"}
	s, err = a.scorer()
	require.NoError(t, err)
	require.IsType(t, &crossencoder.Client{}, s)

	a.cfg.Reranker = config.RerankerConfig{Backend: "cohere", APIKey: "k"}
	s, err = a.scorer()
	require.NoError(t, err)
	require.IsType(t, &cohere.Scorer{}, s)
}

func TestTrackingStoreSelection(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	s, err := a.trackingStore(ctx)
	require.NoError(t, err)
	fs, ok := s.(*tracking.FileStore)
	require.True(t, ok)
	require.Equal(t, filepath.Join(a.cfg.OutputDir, "tracking_data_TREMA_UNH_run_2.json"), fs.Path())

	a.cfg.Tracking = config.TrackingConfig{Backend: config.TrackingSQLite, Path: filepath.Join(t.TempDir(), "db", "tracking.db")}
	s, err = a.trackingStore(ctx)
	require.NoError(t, err)
	require.IsType(t, &store.SQLStore{}, s)
	require.NoError(t, s.Save(ctx, "a1", tracking.Record{}))
	has, err := s.Has(ctx, "a1")
	require.NoError(t, err)
	require.True(t, has)

	a.cfg.Tracking = config.TrackingConfig{Backend: "etcd"}
	_, err = a.trackingStore(ctx)
	require.Error(t, err)
}

func TestPublisherDisabledWithoutBrokers(t *testing.T) {
	a := newTestApp(t)
	p, err := a.publisher()
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestIndexMemoryRequiresCorpus(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Index.Corpus = filepath.Join(t.TempDir(), "missing.jsonl")
	_, err := a.index(context.Background())
	require.Error(t, err)
}
