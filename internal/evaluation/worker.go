package evaluation

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// Stats are the worker's running aggregates.
type Stats struct {
	Enqueued      int64              `json:"enqueued"`
	Sampled       int64              `json:"sampled_out"`
	Completed     int64              `json:"completed"`
	Failed        int64              `json:"failed"`
	Dropped       int64              `json:"dropped"`
	QueueDepth    int                `json:"queue_depth"`
	MetricAverage map[string]float64 `json:"metric_averages"`
}

// TraceSink receives finished records, for external inspection or
// persistence. Implementations must not block for long.
type TraceSink interface {
	Record(rec *Record)
}

// Worker drains the evaluation queue on an interval and scores each
// record on every metric. Records within a batch are evaluated
// concurrently; the metrics of a single record run sequentially.
type Worker struct {
	cfg    config.EvaluationConfig
	queue  *Queue
	judge  Judge
	sink   TraceSink
	logger *slog.Logger

	mu          sync.Mutex
	enqueued    int64
	sampled     int64
	completed   int64
	failed      int64
	metricSums  map[string]float64
	metricCount map[string]int64

	randFn func() float64

	cancel context.CancelFunc
	done   chan struct{}
}

// WorkerOption configures the worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithTraceSink registers a sink for finished records.
func WithTraceSink(sink TraceSink) WorkerOption {
	return func(w *Worker) {
		w.sink = sink
	}
}

// withRandFn overrides the sampling source, for tests.
func withRandFn(fn func() float64) WorkerOption {
	return func(w *Worker) {
		w.randFn = fn
	}
}

// NewWorker creates a worker over the queue. Call Start to begin the
// evaluation loop.
func NewWorker(cfg config.EvaluationConfig, queue *Queue, judge Judge, opts ...WorkerOption) *Worker {
	w := &Worker{
		cfg:         cfg,
		queue:       queue,
		judge:       judge,
		logger:      slog.Default(),
		metricSums:  make(map[string]float64),
		metricCount: make(map[string]int64),
		randFn:      rand.Float64,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue records a response for evaluation, subject to sampling.
// Returns the record's status: pending when queued, skipped when
// sampled out or evaluation is disabled.
func (w *Worker) Enqueue(rec *Record) string {
	if !w.cfg.Enabled || w.randFn() >= w.cfg.SampleRate {
		rec.Status = StatusSkipped
		w.mu.Lock()
		w.sampled++
		w.mu.Unlock()
		return StatusSkipped
	}

	if dropped := w.queue.Push(rec); dropped {
		w.logger.Warn("evaluation queue full, dropped oldest pending record",
			"capacity", w.cfg.QueueCapacity)
	}
	w.mu.Lock()
	w.enqueued++
	w.mu.Unlock()
	return StatusPending
}

// Start launches the interval loop. It returns immediately; call Stop
// to drain and shut down.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	interval := time.Duration(w.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop, finishes the in-flight batch, and logs any
// remaining queue depth.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done

	if remaining := w.queue.Len(); remaining > 0 {
		w.logger.Info("evaluation worker stopped with queued records remaining",
			"remaining", remaining)
	}
}

// tick drains one batch and evaluates it.
func (w *Worker) tick(ctx context.Context) {
	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	batch := w.queue.PopN(batchSize)
	if len(batch) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range batch {
		g.Go(func() error {
			w.evaluate(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()
}

// evaluate scores one record across all metrics. A record already
// popped from the queue is always driven to a terminal status.
func (w *Worker) evaluate(ctx context.Context, rec *Record) {
	rec.Status = StatusInProgress
	rec.Scores = make(map[string]float64)
	rec.Explanations = make(map[string]string)

	var sum float64
	for _, metric := range AllMetrics() {
		score, err := w.judge.Score(ctx, metric, rec)
		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			w.mu.Lock()
			w.failed++
			w.mu.Unlock()
			w.logger.Warn("evaluation failed",
				"record_id", rec.ID,
				"metric", metric,
				"error", err)
			w.emit(rec)
			return
		}
		rec.Scores[metric] = score.Value
		rec.Explanations[metric] = score.Explanation
		sum += score.Value

		if threshold := w.cfg.MetricAlertThreshold(metric); score.Value < threshold {
			w.logger.Warn("evaluation metric below alert threshold",
				"record_id", rec.ID,
				"metric", metric,
				"score", score.Value,
				"threshold", threshold,
				"query", truncate(rec.Query, 120))
		}
	}

	rec.OverallScore = sum / float64(len(AllMetrics()))
	now := time.Now().UTC()
	rec.EvaluatedAt = &now
	rec.Status = StatusCompleted

	w.mu.Lock()
	w.completed++
	for metric, value := range rec.Scores {
		w.metricSums[metric] += value
		w.metricCount[metric]++
	}
	w.mu.Unlock()

	w.logger.Debug("evaluation completed",
		"record_id", rec.ID,
		"overall_score", rec.OverallScore)
	w.emit(rec)
}

func (w *Worker) emit(rec *Record) {
	if w.sink != nil {
		w.sink.Record(rec)
	}
}

// Stats returns a snapshot of the running aggregates.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	averages := make(map[string]float64, len(w.metricSums))
	for metric, sum := range w.metricSums {
		if n := w.metricCount[metric]; n > 0 {
			averages[metric] = sum / float64(n)
		}
	}
	return Stats{
		Enqueued:      w.enqueued,
		Sampled:       w.sampled,
		Completed:     w.completed,
		Failed:        w.failed,
		Dropped:       w.queue.Dropped(),
		QueueDepth:    w.queue.Len(),
		MetricAverage: averages,
	}
}
