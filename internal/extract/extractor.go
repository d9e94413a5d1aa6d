package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Extractor parses document bytes into an ordered element sequence.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) ([]Element, error)
}

// HTTPExtractor calls an unstructured-style partition endpoint that
// accepts a multipart file upload and returns a JSON element array.
type HTTPExtractor struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPExtractorOption configures the HTTPExtractor.
type HTTPExtractorOption func(*HTTPExtractor)

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(client *http.Client) HTTPExtractorOption {
	return func(e *HTTPExtractor) {
		e.httpClient = client
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *slog.Logger) HTTPExtractorOption {
	return func(e *HTTPExtractor) {
		e.logger = logger
	}
}

// NewHTTPExtractor creates an extractor backed by a partition service.
func NewHTTPExtractor(endpoint string, opts ...HTTPExtractorOption) *HTTPExtractor {
	e := &HTTPExtractor{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// wireElement matches the partition service response shape.
type wireElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber int            `json:"page_number"`
		Extra      map[string]any `json:"-"`
	} `json:"metadata"`
}

// Extract uploads the document and decodes the returned element list.
// Extraction failure is terminal for the document; callers must not run
// any stage on a partial element list.
func (e *HTTPExtractor) Extract(ctx context.Context, data []byte, filename string) ([]Element, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document body for %q", filename)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart form; %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write document bytes; %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart form; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request; %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response; %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service error %d: %s", resp.StatusCode, string(respBody))
	}

	var wire []wireElement
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response; %w", err)
	}

	elements := make([]Element, 0, len(wire))
	for _, w := range wire {
		elements = append(elements, Element{
			Type:       ElementType(w.Type),
			Text:       w.Text,
			PageNumber: w.Metadata.PageNumber,
		})
	}

	e.logger.Debug("document extracted",
		"filename", filename,
		"elements", len(elements))

	return elements, nil
}
