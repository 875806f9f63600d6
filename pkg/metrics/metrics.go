package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generation metrics
	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_generation_attempts_total",
			Help: "Structured generation attempts by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_generation_failures_total",
			Help: "Structured generation calls that exhausted retries",
		},
		[]string{"stage"},
	)

	PromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factcheck_prompt_tokens",
			Help:    "Estimated prompt tokens per generation call",
			Buckets: prometheus.ExponentialBuckets(256, 2, 10),
		},
		[]string{"stage"},
	)

	InputTruncations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_input_truncations_total",
			Help: "Retries that had to truncate the prompt",
		},
		[]string{"stage"},
	)

	// Retrieval metrics
	RetrievalCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factcheck_retrieval_candidates",
			Help:    "Candidates surviving exclusion and reranking per query",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	CurationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_curation_fallbacks_total",
			Help: "Curation fallback actions by kind",
		},
		[]string{"kind"},
	)

	// Loop metrics
	LoopRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factcheck_loop_rounds",
			Help:    "Evidence loop rounds executed per article",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	// Report metrics
	ReportPath = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_report_path_total",
			Help: "Report synthesis path taken",
		},
		[]string{"path"},
	)

	ReportChunkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factcheck_report_chunk_failures_total",
			Help: "Fallback report chunks that failed and were skipped",
		},
	)

	CompressionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_compression_outcomes_total",
			Help: "Compression loop outcomes",
		},
		[]string{"outcome"},
	)

	// Article metrics
	ArticlesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_articles_total",
			Help: "Articles handled by the batch runner",
		},
		[]string{"status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
