// Package metrics defines the Prometheus collectors shared across the
// Scribe service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	DocJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scribe_doc_jobs_enqueued_total",
			Help: "Total number of documentation generation jobs enqueued",
		},
	)

	DocJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_doc_jobs_completed_total",
			Help: "Total number of documentation generation jobs finished",
		},
		[]string{"status"},
	)

	DocJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scribe_doc_job_duration_seconds",
			Help:    "Time taken to generate documentation for a file",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"model", "kind", "outcome"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_llm_tokens_used_total",
			Help: "Total number of tokens consumed by LLM requests",
		},
		[]string{"model", "direction"},
	)

	GitHubRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_github_requests_total",
			Help: "Total number of GitHub API requests",
		},
		[]string{"outcome"},
	)

	EmbeddingBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scribe_embedding_batches_total",
			Help: "Total number of embedding batches requested",
		},
	)

	VectorSearches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scribe_vector_searches_total",
			Help: "Total number of vector similarity searches executed",
		},
	)

	VectorSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scribe_vector_search_duration_seconds",
			Help:    "Time taken to run a vector similarity search",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_cache_errors_total",
			Help: "Total number of cache errors",
		},
		[]string{"cache", "operation"},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scribe_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scribe_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
