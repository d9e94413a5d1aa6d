// Package ingestion drives the per-document pipeline: one extraction
// shared by every stage, bounded-concurrency stage dispatch, per-stage
// embedding and persistence, and a durable status record. Stage failures
// are isolated; one stage never aborts its siblings.
package ingestion

import (
	"log/slog"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/graphstore"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/status"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/stp"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/summarize"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

// Overall and per-stage statuses.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
	StatusSkipped        = "skipped"
)

// StageFlags selects which sub-pipelines run for a document.
type StageFlags struct {
	Chunking      bool `json:"include_chunking"`
	Summarization bool `json:"include_summarization"`
	GraphRAG      bool `json:"include_graphrag"`
	STP           bool `json:"include_stp"`
}

// Any reports whether at least one stage is enabled.
func (f StageFlags) Any() bool {
	return f.Chunking || f.Summarization || f.GraphRAG || f.STP
}

// Stages returns the enabled stage set in pipeline order, the set the
// status tracker judges "fully processed" against.
func (f StageFlags) Stages() []status.Stage {
	var stages []status.Stage
	if f.Chunking {
		stages = append(stages, status.StageChunks)
	}
	if f.Summarization {
		stages = append(stages, status.StageSummary)
	}
	if f.GraphRAG {
		stages = append(stages, status.StageGraphRAG)
	}
	if f.STP {
		stages = append(stages, status.StageSTP)
	}
	return stages
}

// MaskFor forces off the stages a bucket does not support. Scientific
// data files are tabular; graph extraction and the STP pipeline are
// disabled for them regardless of the request.
func (f StageFlags) MaskFor(b bucket.Bucket) StageFlags {
	masked := f
	if !b.SupportsGraph() {
		masked.GraphRAG = false
	}
	if !b.SupportsSTP() {
		masked.STP = false
	}
	return masked
}

// StageResult is the outcome of one sub-pipeline for one document.
type StageResult struct {
	Status  string         `json:"status"`
	Counts  map[string]int `json:"counts,omitempty"`
	Message string         `json:"message,omitempty"`
}

// DocumentResult is the outcome of one document's ingestion. For news
// workbooks, Rows carries one result per expanded article row.
type DocumentResult struct {
	DocIdent      string                       `json:"doc_ident"`
	Bucket        bucket.Bucket                `json:"bucket"`
	OverallStatus string                       `json:"overall_status"`
	Stages        map[status.Stage]StageResult `json:"results,omitempty"`
	ArticlesFound int                          `json:"articles_found,omitempty"`
	Rows          []DocumentResult             `json:"rows,omitempty"`
	Message       string                       `json:"message,omitempty"`
	ProcessedAt   time.Time                    `json:"processing_timestamp"`
}

// Orchestrator owns the ingestion pipeline components. Constructed once
// in the composition root and shared.
type Orchestrator struct {
	cfg        config.IngestionConfig
	extractor  extract.Extractor
	summarizer *summarize.Summarizer
	embedder   *embed.Embedder
	vectors    *vectorstore.Store
	graph      *graphstore.Extractor
	stp        *stp.Pipeline
	tracker    *status.Tracker
	logger     *slog.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New assembles the ingestion orchestrator. The graph extractor and STP
// pipeline may be nil when their feature flags are off; the matching
// stages then report skipped.
func New(cfg config.IngestionConfig, extractor extract.Extractor, summarizer *summarize.Summarizer,
	embedder *embed.Embedder, vectors *vectorstore.Store, graph *graphstore.Extractor,
	stpPipeline *stp.Pipeline, tracker *status.Tracker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		extractor:  extractor,
		summarizer: summarizer,
		embedder:   embedder,
		vectors:    vectors,
		graph:      graph,
		stp:        stpPipeline,
		tracker:    tracker,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// foldOverall reduces per-stage outcomes to the document's overall
// status. Skipped stages count as neither success nor failure.
func foldOverall(stages map[status.Stage]StageResult) string {
	succeeded, failed := 0, 0
	for _, r := range stages {
		switch r.Status {
		case StatusSuccess, StatusPartialSuccess:
			succeeded++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case failed == 0 && succeeded > 0:
		return StatusSuccess
	case failed > 0 && succeeded > 0:
		return StatusPartialSuccess
	case failed > 0:
		return StatusFailed
	default:
		return StatusSuccess
	}
}
