package graphstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// minGraphChars is the minimum document length for graph extraction;
// shorter documents are skipped without failing.
const minGraphChars = 100

// Extraction statuses.
const (
	ExtractSuccess        = "success"
	ExtractPartialSuccess = "partial_success"
	ExtractSkipped        = "skipped"
	ExtractFailed         = "failed"
)

// ExtractionResult reports the outcome of one graph extraction.
type ExtractionResult struct {
	Status     string         `json:"status"`
	DocumentID string         `json:"document_id,omitempty"`
	Counts     TransferCounts `json:"counts"`
	Message    string         `json:"message,omitempty"`
}

// Extractor drives the external graph indexer and transfers its
// artifacts into the store.
type Extractor struct {
	cfg    config.GraphConfig
	store  *Store
	client *http.Client
	logger *slog.Logger
}

// ExtractorOption configures the extractor.
type ExtractorOption func(*Extractor)

// WithIndexerClient replaces the HTTP client used for indexer calls.
func WithIndexerClient(client *http.Client) ExtractorOption {
	return func(e *Extractor) { e.client = client }
}

// NewExtractor creates a graph extractor backed by the store.
func NewExtractor(cfg config.GraphConfig, store *Store, logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		cfg:    cfg,
		store:  store,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// entityTypesFor returns the allowed entity-type set per bucket.
func entityTypesFor(b bucket.Bucket) []string {
	switch b {
	case bucket.ResearchPapers:
		return []string{"organization", "person", "location", "climate_phenomenon", "methodology", "dataset"}
	case bucket.Policy:
		return []string{"organization", "person", "location", "regulation", "obligation", "deadline"}
	case bucket.News:
		return []string{"organization", "person", "location", "event", "climate_phenomenon"}
	default:
		return []string{"organization", "location", "variable", "measurement"}
	}
}

// indexRequest is the payload sent to the graph indexer.
type indexRequest struct {
	Text        string   `json:"text"`
	DocIdent    string   `json:"doc_ident"`
	Bucket      string   `json:"bucket"`
	EntityTypes []string `json:"entity_types"`
}

// indexResponse is the indexer's reply. OutputDir points at the
// directory holding the parquet artifacts for this run.
type indexResponse struct {
	OutputDir string `json:"output_dir"`
	Error     string `json:"error,omitempty"`
}

// Extract runs graph extraction for one document: invoke the indexer,
// allocate a graph document, and transfer the artifacts. Documents
// under the length floor are skipped.
func (e *Extractor) Extract(ctx context.Context, fullText, docIdent string, b bucket.Bucket) ExtractionResult {
	text := strings.TrimSpace(fullText)
	if len(text) < minGraphChars {
		e.logger.Info("document too short for graph extraction",
			"doc", docIdent,
			"chars", len(text))
		return ExtractionResult{Status: ExtractSkipped, Message: "document below minimum length"}
	}

	outputDir, err := e.runIndexer(ctx, text, docIdent, b)
	if err != nil {
		e.logger.Error("graph indexing failed", "doc", docIdent, "error", err)
		return ExtractionResult{Status: ExtractFailed, Message: err.Error()}
	}

	documentID, err := e.store.AllocateDocument(ctx, docIdent, b)
	if err != nil {
		return ExtractionResult{Status: ExtractFailed, Message: err.Error()}
	}

	counts, status, err := e.store.Transfer(ctx, documentID, outputDir)
	if err != nil {
		return ExtractionResult{Status: ExtractFailed, DocumentID: documentID, Message: err.Error()}
	}

	result := ExtractionResult{
		Status:     ExtractSuccess,
		DocumentID: documentID,
		Counts:     counts,
	}
	if status == TransferPartialSuccess {
		result.Status = ExtractPartialSuccess
		result.Message = "some artifacts failed to transfer"
	}

	e.logger.Info("graph extraction complete",
		"doc", docIdent,
		"bucket", b,
		"status", result.Status,
		"entities", counts.Entities,
		"relationships", counts.Relationships,
		"text_units", counts.TextUnits)
	return result
}

// runIndexer posts the document to the indexer service and resolves the
// artifact output directory.
func (e *Extractor) runIndexer(ctx context.Context, text, docIdent string, b bucket.Bucket) (string, error) {
	payload, err := json.Marshal(indexRequest{
		Text:        text,
		DocIdent:    docIdent,
		Bucket:      string(b),
		EntityTypes: entityTypesFor(b),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode index request; %w", err)
	}

	url := strings.TrimRight(e.cfg.IndexerURL, "/") + "/index"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create index request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("indexer request failed; %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read indexer response; %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ir indexResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return "", fmt.Errorf("failed to decode indexer response; %w", err)
	}
	if ir.Error != "" {
		return "", fmt.Errorf("indexer error: %s", ir.Error)
	}
	if ir.OutputDir == "" {
		return e.cfg.ArtifactsDir, nil
	}
	return ir.OutputDir, nil
}
