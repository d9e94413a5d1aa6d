// Package embed generates dense vectors through an OpenAI-compatible
// embeddings endpoint serving multiple models. Three selectors are
// available: chunk (large dim), summary (mid dim), and stp (small dim,
// present only when the social-tipping-point pipeline is enabled).
package embed

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

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// Selector picks which embedding model serves a request.
type Selector string

const (
	SelectorChunk   Selector = "chunk"
	SelectorSummary Selector = "summary"
	SelectorSTP     Selector = "stp"
)

// model pairs a served model name with its output dimension.
type model struct {
	name string
	dims int
}

// Embedder is a batched embeddings client. A zero vector is the sentinel
// for "embedding failed"; callers must treat all-zero vectors as degraded
// rather than erroring.
type Embedder struct {
	baseURL    string
	models     map[Selector]model
	batchSize  int
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		e.logger = logger
	}
}

// WithEmbedHTTPClient sets the HTTP client to use.
func WithEmbedHTTPClient(client *http.Client) Option {
	return func(e *Embedder) {
		e.httpClient = client
	}
}

// New creates an Embedder from configuration. The stp selector is
// registered only when stpEnabled is set.
func New(cfg config.EmbedderConfig, stpEnabled bool, opts ...Option) *Embedder {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	e := &Embedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		models: map[Selector]model{
			SelectorChunk:   {name: cfg.ChunkModel, dims: cfg.ChunkDimensions},
			SelectorSummary: {name: cfg.SummaryModel, dims: cfg.SummaryDimensions},
		},
		batchSize:  cfg.BatchSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	if stpEnabled {
		e.models[SelectorSTP] = model{name: cfg.STPModel, dims: cfg.STPDimensions}
	}
	if e.batchSize <= 0 {
		e.batchSize = 32
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Dimensions returns the vector dimension for a selector, or 0 when the
// selector is not registered.
func (e *Embedder) Dimensions(sel Selector) int {
	return e.models[sel].dims
}

// Embed generates one vector per input text, in input order. Blank inputs
// map to zero vectors without calling the endpoint. A failed batch yields
// zero vectors for every text in that batch; the error is logged and the
// remaining batches continue.
func (e *Embedder) Embed(ctx context.Context, texts []string, sel Selector) ([][]float32, error) {
	m, ok := e.models[sel]
	if !ok {
		return nil, fmt.Errorf("embedding selector %q not registered", sel)
	}

	out := make([][]float32, len(texts))

	// Collect non-blank texts, remembering their positions.
	var pending []string
	var positions []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, m.dims)
			continue
		}
		pending = append(pending, t)
		positions = append(positions, i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := min(start+e.batchSize, len(pending))
		batch := pending[start:end]

		vectors, err := e.embedBatch(ctx, batch, m)
		if err != nil {
			e.logger.Error("embedding batch failed; emitting zero vectors",
				"selector", sel,
				"batch_start", start,
				"batch_size", len(batch),
				"error", err)
			vectors = make([][]float32, len(batch))
			for i := range vectors {
				vectors[i] = make([]float32, m.dims)
			}
		}

		for i, v := range vectors {
			out[positions[start+i]] = v
		}
	}

	return out, nil
}

// EmbedOne is a convenience wrapper for single-text embedding.
func (e *Embedder) EmbedOne(ctx context.Context, text string, sel Selector) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text}, sel)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// IsZero reports whether v is the all-zero failure sentinel.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// embedBatch performs one API call and validates dimensions.
func (e *Embedder) embedBatch(ctx context.Context, batch []string, m model) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: m.name, Input: batch})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response; %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp embeddingsResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response; %w", err)
	}

	if len(apiResp.Data) != len(batch) {
		return nil, fmt.Errorf("embeddings count mismatch: sent %d, got %d", len(batch), len(apiResp.Data))
	}

	vectors := make([][]float32, len(batch))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("embeddings index %d out of range", d.Index)
		}
		if len(d.Embedding) != m.dims {
			return nil, fmt.Errorf("dimension mismatch for model %s: want %d, got %d", m.name, m.dims, len(d.Embedding))
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}
