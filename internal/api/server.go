// Package api exposes the HTTP surface: query answering, document and
// batch ingestion over the object store, object-created webhooks,
// background task inspection, and health.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/ingestion"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/retrieval"
)

// QueryService answers one question through the retrieval orchestrator.
type QueryService interface {
	Answer(ctx context.Context, req retrieval.QueryRequest) (retrieval.QueryResponse, error)
}

// IngestService runs the per-document pipeline and its batch drivers.
type IngestService interface {
	ProcessDocument(ctx context.Context, data []byte, filename string, b bucket.Bucket, flags ingestion.StageFlags) ingestion.DocumentResult
	ProcessAllBuckets(ctx context.Context, source ingestion.DocumentSource, flags ingestion.StageFlags, opts ingestion.BatchOptions) ingestion.BatchResult
	ProcessBuckets(ctx context.Context, source ingestion.DocumentSource, buckets []bucket.Bucket, flags ingestion.StageFlags, opts ingestion.BatchOptions) ingestion.BatchResult
}

// TaskService tracks background ingestion jobs.
type TaskService interface {
	Create(kind string, metadata map[string]any, run func(ctx context.Context) (any, error)) string
	Get(id string) (ingestion.Task, error)
	List() ([]ingestion.Task, ingestion.TaskCounts)
	Cleanup(maxAge time.Duration) int
	Pause()
	Resume()
	Clear() int
}

// HealthCheck probes one component.
type HealthCheck func(ctx context.Context) error

// Server serves the HTTP API.
type Server struct {
	query  QueryService
	ingest IngestService
	tasks  TaskService
	source ingestion.DocumentSource
	checks map[string]HealthCheck
	logger *slog.Logger

	httpSrv *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithAPILogger sets the logger.
func WithAPILogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthCheck registers a named component probe for /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithDocumentSource enables the object-store routes (process, batch,
// inventory, webhook). Without a source those routes report 503.
func WithDocumentSource(source ingestion.DocumentSource) Option {
	return func(s *Server) {
		s.source = source
	}
}

// NewServer builds the API server. It does not listen until Start.
func NewServer(addr string, query QueryService, ingest IngestService, tasks TaskService, opts ...Option) *Server {
	s := &Server{
		query:  query,
		ingest: ingest,
		tasks:  tasks,
		checks: make(map[string]HealthCheck),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// handler wires the route table.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/ingest", s.handleIngestInline)

	mux.HandleFunc("POST /process/document", s.handleProcessDocument)
	mux.HandleFunc("POST /process/{stage}", s.handleProcessStage)
	mux.HandleFunc("POST /batch/process-all", s.handleBatchAll)
	mux.HandleFunc("POST /batch/process-bucket", s.handleBatchBucket)

	mux.HandleFunc("GET /tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("DELETE /tasks/cleanup", s.handleTasksCleanup)
	mux.HandleFunc("POST /queue/add-task", s.handleQueueAddTask)
	mux.HandleFunc("GET /queue/status", s.handleQueueStatus)
	mux.HandleFunc("POST /queue/control", s.handleQueueControl)

	mux.HandleFunc("GET /minio/buckets", s.handleBucketsInventory)
	mux.HandleFunc("GET /minio/bucket/{bucket}/objects", s.handleBucketObjects)
	mux.HandleFunc("POST /webhook/minio-events", s.handleObjectEvents)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens in the background. The returned channel receives the
// terminal serve error, if any.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
