package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// RerankerClient scores (query, text) pairs with a cross-encoder served
// over HTTP and returns the top candidates by rerank score.
type RerankerClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// RerankerOption configures the client.
type RerankerOption func(*RerankerClient)

// WithRerankerHTTPClient sets the HTTP client to use.
func WithRerankerHTTPClient(client *http.Client) RerankerOption {
	return func(c *RerankerClient) {
		c.httpClient = client
	}
}

// WithRerankerLogger sets the logger.
func WithRerankerLogger(logger *slog.Logger) RerankerOption {
	return func(c *RerankerClient) {
		c.logger = logger
	}
}

// NewRerankerClient creates a cross-encoder client.
func NewRerankerClient(url string, opts ...RerankerOption) *RerankerClient {
	c := &RerankerClient{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank rescans the candidates with the cross-encoder and returns the
// top k by rerank score. On any failure the original order is returned
// truncated to k, so reranking never loses results.
func (c *RerankerClient) Rerank(ctx context.Context, query string, candidates []Candidate, k int) []Candidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) <= k && len(candidates) <= 1 {
		return candidates
	}

	scores, err := c.score(ctx, query, candidates)
	if err != nil {
		c.logger.Warn("reranker unavailable, keeping native order", "error", err)
		if len(candidates) > k {
			return candidates[:k]
		}
		return candidates
	}

	reranked := make([]Candidate, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		reranked[i].Score = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })
	if len(reranked) > k {
		reranked = reranked[:k]
	}
	return reranked
}

func (c *RerankerClient) score(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	texts := make([]string, len(candidates))
	for i, cand := range candidates {
		texts[i] = cand.Text
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rerank response; %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker error %d: %s", resp.StatusCode, string(respBody))
	}

	var rr rerankResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response; %w", err)
	}
	if len(rr.Scores) != len(candidates) {
		return nil, fmt.Errorf("rerank score count mismatch: sent %d, got %d", len(candidates), len(rr.Scores))
	}
	return rr.Scores, nil
}
