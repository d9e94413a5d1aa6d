// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline and the query path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "neuroclimabot"
)

// Ingestion metrics track document and stage outcomes.
var (
	// DocumentsTotal counts ingested documents by bucket and overall status.
	DocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Total number of documents ingested",
	}, []string{"bucket", "status"})

	// StagesTotal counts pipeline stage runs by stage and status.
	StagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stages_total",
		Help:      "Total number of pipeline stage runs",
	}, []string{"stage", "status"})

	// StageDuration is a histogram of stage duration in seconds.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stage runs in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~102s
	}, []string{"stage"})
)

// Query metrics track the retrieval orchestrator.
var (
	// QueriesTotal counts answered queries by terminal status.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Total number of queries answered",
	}, []string{"status"})

	// QueryDuration is a histogram of end-to-end query duration in seconds.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "End-to-end query duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~102s
	}, []string{"status"})

	// RetrievalCandidatesTotal counts retrieval candidates by source.
	RetrievalCandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retrieval_candidates_total",
		Help:      "Total number of retrieval candidates returned per source",
	}, []string{"source"})

	// ParseFallbacks is the running count of delimited responses that
	// needed a non-primary parse strategy.
	ParseFallbacks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "response_parse_fallbacks",
		Help:      "Number of responses parsed with a fallback strategy",
	})
)

// Provider metrics track LLM API usage.
var (
	// ProviderRequestsTotal is the total number of chat completion requests.
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total number of chat completion requests",
	}, []string{"model"})

	// ProviderErrorsTotal is the total number of chat completion errors.
	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_errors_total",
		Help:      "Total number of chat completion errors",
	}, []string{"model"})

	// ProviderTokensTotal is the total number of tokens consumed.
	ProviderTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_tokens_total",
		Help:      "Total number of tokens consumed",
	}, []string{"model", "type"})

	// ProviderDuration is a histogram of chat completion duration in seconds.
	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_duration_seconds",
		Help:      "Duration of chat completion requests in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~102s
	}, []string{"model"})
)

// Evaluation metrics mirror the async evaluation worker's state.
var (
	// EvaluationQueueDepth is the number of exchanges waiting for evaluation.
	EvaluationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "evaluation_queue_depth",
		Help:      "Number of exchanges waiting for evaluation",
	})

	// EvaluationDropped is the number of pending exchanges dropped on overflow.
	EvaluationDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "evaluation_dropped",
		Help:      "Number of pending exchanges dropped on queue overflow",
	})

	// EvaluationEvaluated is the number of exchanges evaluated since start.
	EvaluationEvaluated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "evaluation_evaluated",
		Help:      "Number of exchanges evaluated since start",
	})

	// EvaluationMeanScore is the running mean score per evaluation metric.
	EvaluationMeanScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "evaluation_mean_score",
		Help:      "Running mean score per evaluation metric",
	}, []string{"metric"})
)

// Process metrics track build identity and component health.
var (
	// BuildInfo carries the version and Go runtime labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build version information",
	}, []string{"version", "go_version"})

	// StartTime is the unix timestamp when the process started.
	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "start_time_seconds",
		Help:      "Unix timestamp when the process started",
	})

	// ComponentStatus tracks component health (1=healthy, 0=unhealthy).
	ComponentStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "component_status",
		Help:      "Health status of components (1=healthy, 0=unhealthy)",
	}, []string{"component"})
)
