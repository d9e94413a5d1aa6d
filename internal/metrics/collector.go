package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/version"
)

// MetricsProvider is an interface for components that provide metrics.
type MetricsProvider interface {
	// CollectMetrics collects current metrics from the component.
	CollectMetrics(ctx context.Context) error
}

// Collector manages metric collection from various components.
type Collector struct {
	mu        sync.RWMutex
	providers map[string]MetricsProvider
	interval  time.Duration
	stopCh    chan struct{}
	running   bool
}

// NewCollector creates a new metrics collector.
func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		providers: make(map[string]MetricsProvider),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Register adds a metrics provider to the collector.
func (c *Collector) Register(name string, provider MetricsProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider
}

// Unregister removes a metrics provider from the collector.
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, name)
}

// Start begins periodic metric collection.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	StartTime.Set(float64(time.Now().Unix()))
	BuildInfo.WithLabelValues(version.Get().Version, runtime.Version()).Set(1)

	// Initial collection
	c.collect(ctx)

	// Start periodic collection
	go c.run(ctx)

	return nil
}

// Stop halts periodic metric collection.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	close(c.stopCh)
	c.running = false
	return nil
}

// run is the main collection loop.
func (c *Collector) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// collect gathers metrics from all registered providers.
func (c *Collector) collect(ctx context.Context) {
	c.mu.RLock()
	providers := make(map[string]MetricsProvider, len(c.providers))
	for k, v := range c.providers {
		providers[k] = v
	}
	c.mu.RUnlock()

	for name, provider := range providers {
		if err := provider.CollectMetrics(ctx); err != nil {
			ComponentStatus.WithLabelValues(name).Set(0)
		} else {
			ComponentStatus.WithLabelValues(name).Set(1)
		}
	}
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a handler for a specific registry.
func HandlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordDocument records one ingested document's outcome.
func RecordDocument(bucket, status string) {
	DocumentsTotal.WithLabelValues(bucket, status).Inc()
}

// RecordStage records one pipeline stage run.
func RecordStage(stage, status string, duration time.Duration) {
	StagesTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordQuery records one answered query.
func RecordQuery(status string, duration time.Duration) {
	QueriesTotal.WithLabelValues(status).Inc()
	QueryDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRetrievalCandidates records how many candidates a source returned.
func RecordRetrievalCandidates(source string, count int) {
	if count > 0 {
		RetrievalCandidatesTotal.WithLabelValues(source).Add(float64(count))
	}
}

// RecordProviderRequest records a chat completion request.
func RecordProviderRequest(model string, duration time.Duration, promptTokens, completionTokens int, err error) {
	ProviderRequestsTotal.WithLabelValues(model).Inc()
	ProviderDuration.WithLabelValues(model).Observe(duration.Seconds())

	if promptTokens > 0 {
		ProviderTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ProviderTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}

	if err != nil {
		ProviderErrorsTotal.WithLabelValues(model).Inc()
	}
}

// UpdateEvaluationMetrics mirrors the evaluation worker's snapshot.
func UpdateEvaluationMetrics(queueDepth int, dropped, evaluated int64, meanScores map[string]float64) {
	EvaluationQueueDepth.Set(float64(queueDepth))
	EvaluationDropped.Set(float64(dropped))
	EvaluationEvaluated.Set(float64(evaluated))
	for metric, score := range meanScores {
		EvaluationMeanScore.WithLabelValues(metric).Set(score)
	}
}

// UpdateParseFallbacks mirrors the response parser's fallback count.
func UpdateParseFallbacks(count int64) {
	ParseFallbacks.Set(float64(count))
}
