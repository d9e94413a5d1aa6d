// Package app is the composition root: it builds every component from
// configuration in dependency order and hands out the two top-level
// entry points, the ingestion orchestrator and the query orchestrator.
// Optional collaborators that fail to build leave the app in a degraded
// mode instead of failing startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/evaluation"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/graphstore"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/ingestion"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/metrics"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/queryclass"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/respond"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/retrieval"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/session"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/status"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/stp"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/summarize"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

// App holds every wired component for the process lifetime.
type App struct {
	Cfg    *config.Config
	Logger *slog.Logger

	Provider  providers.ChatProvider
	Embedder  *embed.Embedder
	Vectors   *vectorstore.Store
	Graph     *graphstore.Store
	Tracker   *status.Tracker
	Sessions  *session.Store
	Ingestion *ingestion.Orchestrator
	Tasks     *ingestion.TaskManager
	Source    *ingestion.ObjectSource
	Query     *retrieval.Orchestrator
	EvalQueue *evaluation.Queue
	EvalWork  *evaluation.Worker
	Metrics   *metrics.Collector

	generator  *respond.Generator
	metricsSrv *http.Server
}

// New builds the full component graph. Required components (vector
// store, embedder, LLM provider) fail construction; optional ones
// (graph store, redis-backed tracker and sessions) degrade with a
// warning.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Cfg: cfg, Logger: logger}

	a.Provider = providers.NewOpenAIChatProvider(cfg.LLM,
		providers.WithChatLogger(logger),
		providers.WithRateLimit(cfg.LLM.RateLimit))

	a.Embedder = embed.New(cfg.Embedder, cfg.STP.Enabled, embed.WithLogger(logger))

	vectors, err := vectorstore.New(cfg.Vector, vectorstore.Dimensions{
		Chunk:   cfg.Embedder.ChunkDimensions,
		Summary: cfg.Embedder.SummaryDimensions,
		STP:     cfg.Embedder.STPDimensions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store; %w", err)
	}
	a.Vectors = vectors

	if cfg.Graph.Enabled {
		graph, gerr := graphstore.New(cfg.Graph, logger)
		if gerr != nil {
			logger.Warn("graph store unavailable, graph stage and graph search disabled", "error", gerr)
		} else {
			a.Graph = graph
		}
	}

	a.Tracker = status.New(cfg.Redis, logger)
	a.Sessions = session.New(cfg.Redis, cfg.Session, logger)

	if cfg.Objects.Enabled {
		source, serr := ingestion.NewObjectSource(context.Background(), cfg.Objects)
		if serr != nil {
			logger.Warn("object store unavailable, object-store routes disabled", "error", serr)
		} else {
			a.Source = source
		}
	}

	a.buildIngestion()
	if err := a.buildQueryPath(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildIngestion wires the document pipeline.
func (a *App) buildIngestion() {
	cfg := a.Cfg
	extractor := extract.NewHTTPExtractor(cfg.Extractor.Endpoint,
		extract.WithExtractorLogger(a.Logger))
	summarizer := summarize.New(a.Provider, a.Logger)

	var graphExtractor *graphstore.Extractor
	if a.Graph != nil {
		graphExtractor = graphstore.NewExtractor(cfg.Graph, a.Graph, a.Logger)
	}

	var stpPipeline *stp.Pipeline
	if cfg.STP.Enabled {
		stpPipeline = stp.New(cfg.STP,
			stp.NewBoundaryClient(cfg.STP.BoundaryURL, stp.WithBoundaryLogger(a.Logger)),
			stp.NewClassifierClient(cfg.STP.ClassifierURL),
			a.Provider, a.Embedder, a.Vectors, a.Logger)
	}

	a.Ingestion = ingestion.New(cfg.Ingestion, extractor, summarizer, a.Embedder,
		a.Vectors, graphExtractor, stpPipeline, a.Tracker,
		ingestion.WithLogger(a.Logger))
	a.Tasks = ingestion.NewTaskManager(a.Logger)
}

// buildQueryPath wires the retrieval orchestrator and its evaluation
// worker.
func (a *App) buildQueryPath() error {
	cfg := a.Cfg

	classifier, err := queryclass.New(a.Provider, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to load query classifier; %w", err)
	}

	a.EvalQueue = evaluation.NewQueue(cfg.Evaluation.QueueCapacity)
	a.EvalWork = evaluation.NewWorker(cfg.Evaluation, a.EvalQueue,
		evaluation.NewLLMJudge(a.Provider),
		evaluation.WithWorkerLogger(a.Logger))

	generator := respond.NewGenerator(a.Provider, a.Logger)
	a.generator = generator
	refiner := retrieval.NewRefiner(a.Provider, cfg.Retrieval.HistoryWindow, a.Logger)

	tipping := respond.NewTippingPointClient(
		cfg.Retrieval.TippingPointURL,
		cfg.Retrieval.TippingPointMaxChars,
		time.Duration(cfg.Retrieval.TippingPointTimeoutSec)*time.Second,
		respond.WithTippingPointLogger(a.Logger))

	opts := []retrieval.OrchestratorOption{
		retrieval.WithOrchestratorLogger(a.Logger),
		retrieval.WithTippingPointResolver(tipping),
		retrieval.WithSessionStore(a.Sessions),
		retrieval.WithEvaluationSink(a.EvalWork),
	}
	if cfg.Retrieval.RerankerURL != "" {
		opts = append(opts, retrieval.WithReranker(
			retrieval.NewRerankerClient(cfg.Retrieval.RerankerURL,
				retrieval.WithRerankerLogger(a.Logger))))
	}
	if cfg.Retrieval.GraphSearchURL != "" {
		opts = append(opts, retrieval.WithGraphSearcher(
			retrieval.NewGraphSearchClient(cfg.Retrieval.GraphSearchURL,
				cfg.Retrieval.GraphMinSimilarity,
				cfg.Retrieval.GraphInContextBoost,
				a.Embedder,
				retrieval.WithGraphSearchLogger(a.Logger))))
	}

	a.Query = retrieval.NewOrchestrator(cfg.Retrieval, classifier, refiner,
		a.Vectors, a.Embedder, generator, opts...)
	return nil
}

// Start launches the background services: the evaluation worker, the
// metrics collector and exposure endpoint, and the periodic task
// cleanup loop.
func (a *App) Start(ctx context.Context) {
	a.EvalWork.Start(ctx)

	if a.Cfg.Metrics.Enabled {
		a.startMetrics(ctx)
	}

	retention := time.Duration(a.Cfg.Ingestion.TaskRetentionHours) * time.Hour
	if retention <= 0 {
		retention = time.Duration(config.DefaultTaskRetentionHours) * time.Hour
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := a.Tasks.Cleanup(retention); removed > 0 {
					a.Logger.Info("cleaned up terminated tasks", "removed", removed)
				}
			}
		}
	}()
}

// startMetrics registers the component probes, starts the periodic
// collector, and serves the scrape endpoint.
func (a *App) startMetrics(ctx context.Context) {
	interval := time.Duration(a.Cfg.Metrics.CollectIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultMetricsCollectInterval) * time.Second
	}

	a.Metrics = metrics.NewCollector(interval)
	a.Metrics.Register("tracker", trackerProbe{a.Tracker})
	a.Metrics.Register("evaluation", evaluationProbe{a.EvalWork})
	a.Metrics.Register("responses", parserProbe{a.generator})
	if a.Graph != nil {
		a.Metrics.Register("graph", graphProbe{a.Graph})
	}
	_ = a.Metrics.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsSrv = &http.Server{Addr: a.Cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn("metrics endpoint stopped", "addr", a.Cfg.Metrics.ListenAddr, "error", err)
		}
	}()
}

// trackerProbe reports redis connectivity for the status tracker.
type trackerProbe struct{ t *status.Tracker }

func (p trackerProbe) CollectMetrics(ctx context.Context) error {
	return p.t.Ping(ctx)
}

// graphProbe reports graph store health.
type graphProbe struct{ g *graphstore.Store }

func (p graphProbe) CollectMetrics(ctx context.Context) error {
	return p.g.Health(ctx)
}

// evaluationProbe mirrors the evaluation worker's snapshot into gauges.
type evaluationProbe struct{ w *evaluation.Worker }

func (p evaluationProbe) CollectMetrics(ctx context.Context) error {
	s := p.w.Stats()
	metrics.UpdateEvaluationMetrics(s.QueueDepth, s.Dropped, s.Completed, s.MetricAverage)
	return nil
}

// parserProbe mirrors the response parser's fallback count.
type parserProbe struct{ g *respond.Generator }

func (p parserProbe) CollectMetrics(ctx context.Context) error {
	metrics.UpdateParseFallbacks(p.g.ParseFallbacks())
	return nil
}

// Close shuts the app down: stops background services and releases
// store connections.
func (a *App) Close() {
	if a.EvalWork != nil {
		a.EvalWork.Stop()
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if a.Metrics != nil {
		_ = a.Metrics.Stop(context.Background())
	}
	if a.Tasks != nil {
		a.Tasks.Shutdown()
	}
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Logger.Warn("failed to close session store", "error", err)
		}
	}
	if a.Tracker != nil {
		if err := a.Tracker.Close(); err != nil {
			a.Logger.Warn("failed to close status tracker", "error", err)
		}
	}
	if a.Graph != nil {
		if err := a.Graph.Close(); err != nil {
			a.Logger.Warn("failed to close graph store", "error", err)
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			a.Logger.Warn("failed to close vector store", "error", err)
		}
	}
}
