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

// BoundaryClient scores the topical boundary between two adjacent
// sentences via a pretrained cross-segment classifier served over HTTP.
type BoundaryClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// BoundaryOption configures the BoundaryClient.
type BoundaryOption func(*BoundaryClient)

// WithBoundaryHTTPClient sets the HTTP client to use.
func WithBoundaryHTTPClient(client *http.Client) BoundaryOption {
	return func(c *BoundaryClient) {
		c.httpClient = client
	}
}

// WithBoundaryLogger sets the logger.
func WithBoundaryLogger(logger *slog.Logger) BoundaryOption {
	return func(c *BoundaryClient) {
		c.logger = logger
	}
}

// NewBoundaryClient creates a boundary scorer against the given endpoint.
func NewBoundaryClient(url string, opts ...BoundaryOption) *BoundaryClient {
	c := &BoundaryClient{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type boundaryRequest struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type boundaryResponse struct {
	Score float64 `json:"score"`
}

// Score returns the boundary probability in [0,1] between two sentences.
func (c *BoundaryClient) Score(ctx context.Context, left, right string) (float64, error) {
	body, err := json.Marshal(boundaryRequest{Left: left, Right: right})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal boundary request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create boundary request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("boundary request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read boundary response; %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("boundary service error %d: %s", resp.StatusCode, string(respBody))
	}

	var br boundaryResponse
	if err := json.Unmarshal(respBody, &br); err != nil {
		return 0, fmt.Errorf("failed to parse boundary response; %w", err)
	}
	if br.Score < 0 || br.Score > 1 {
		return 0, fmt.Errorf("boundary score %f out of range", br.Score)
	}
	return br.Score, nil
}
