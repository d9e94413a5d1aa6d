package stp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Classification labels produced by the binary relevance model.
const (
	LabelSTP    = "STP"
	LabelNonSTP = "Non-STP"
)

// Classification is the label and confidence for one chunk.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// IsSTP reports whether the chunk was labeled relevant.
func (c Classification) IsSTP() bool {
	return c.Label == LabelSTP
}

// ClassifierClient calls the pretrained social-tipping-point text
// classifier over HTTP.
type ClassifierClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClassifierOption configures the ClassifierClient.
type ClassifierOption func(*ClassifierClient)

// WithClassifierHTTPClient sets the HTTP client to use.
func WithClassifierHTTPClient(client *http.Client) ClassifierOption {
	return func(c *ClassifierClient) {
		c.httpClient = client
	}
}

// WithClassifierLogger sets the logger.
func WithClassifierLogger(logger *slog.Logger) ClassifierOption {
	return func(c *ClassifierClient) {
		c.logger = logger
	}
}

// NewClassifierClient creates a classifier against the given endpoint.
func NewClassifierClient(url string, opts ...ClassifierOption) *ClassifierClient {
	c := &ClassifierClient{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type classifyRequest struct {
	Texts []string `json:"texts"`
}

type classifyResponse struct {
	Results []Classification `json:"results"`
}

// Classify labels a batch of chunk texts. The result slice is parallel
// to the input.
func (c *ClassifierClient) Classify(ctx context.Context, texts []string) ([]Classification, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(classifyRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create classify request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read classify response; %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier service error %d: %s", resp.StatusCode, string(respBody))
	}

	var cr classifyResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, fmt.Errorf("failed to parse classify response; %w", err)
	}
	if len(cr.Results) != len(texts) {
		return nil, fmt.Errorf("classification count mismatch: sent %d, got %d", len(texts), len(cr.Results))
	}
	return cr.Results, nil
}
