package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
)

// GraphSearchClient queries the graph indexer's local-search endpoint
// and filters its loosely ranked output by cosine similarity to the
// query embedding. Items below the minimum similarity are dropped;
// items the endpoint marks as in-context get a uniform score boost.
type GraphSearchClient struct {
	url            string
	minSimilarity  float64
	inContextBoost float64
	embedder       *embed.Embedder
	httpClient     *http.Client
	logger         *slog.Logger
}

// GraphSearchOption configures the client.
type GraphSearchOption func(*GraphSearchClient)

// WithGraphSearchHTTPClient sets the HTTP client to use.
func WithGraphSearchHTTPClient(client *http.Client) GraphSearchOption {
	return func(c *GraphSearchClient) {
		c.httpClient = client
	}
}

// WithGraphSearchLogger sets the logger.
func WithGraphSearchLogger(logger *slog.Logger) GraphSearchOption {
	return func(c *GraphSearchClient) {
		c.logger = logger
	}
}

// NewGraphSearchClient creates a local-search client.
func NewGraphSearchClient(url string, minSimilarity, inContextBoost float64, embedder *embed.Embedder, opts ...GraphSearchOption) *GraphSearchClient {
	if inContextBoost <= 0 {
		inContextBoost = 1.0
	}
	c := &GraphSearchClient{
		url:            url,
		minSimilarity:  minSimilarity,
		inContextBoost: inContextBoost,
		embedder:       embedder,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type localSearchRequest struct {
	Question       string `json:"question"`
	CommunityLevel int    `json:"community_level"`
	ResponseType   string `json:"response_type"`
}

// graphItem is one entry in any of the local-search context sections.
// The endpoint's field names vary by section; Text() picks the first
// populated text-bearing field.
type graphItem struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	Content     string `json:"content"`
	Text        string `json:"text"`
	Source      string `json:"source"`
	InContext   bool   `json:"in_context"`
}

func (g graphItem) label() string {
	if g.Title != "" {
		return g.Title
	}
	return g.Name
}

func (g graphItem) body() string {
	for _, s := range []string{g.Description, g.Summary, g.Content, g.Text} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return g.label()
}

type localSearchContext struct {
	Entities      []graphItem `json:"entities"`
	Relationships []graphItem `json:"relationships"`
	Reports       []graphItem `json:"reports"`
	Claims        []graphItem `json:"claims"`
	Sources       []graphItem `json:"sources"`
}

type localSearchResponse struct {
	Context localSearchContext `json:"context"`
	Titles  []string           `json:"titles"`
}

// Search queries the endpoint and returns similarity-filtered graph
// candidates. A transport or decode failure returns the error; the
// orchestrator treats it as an empty source.
func (c *GraphSearchClient) Search(ctx context.Context, query string) ([]Candidate, error) {
	body, err := json.Marshal(localSearchRequest{
		Question:       query,
		CommunityLevel: 2,
		ResponseType:   "multiple paragraphs",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal local-search request; %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create local-search request; %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local-search request failed; %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read local-search response; %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local-search error %d: %s", resp.StatusCode, string(respBody))
	}

	parsed, err := decodeLocalSearch(respBody)
	if err != nil {
		return nil, err
	}

	items := collectItems(parsed.Context)
	if len(items) == 0 {
		return nil, nil
	}
	return c.scoreItems(ctx, query, items)
}

// decodeLocalSearch handles both a bare response object and the
// single-element array wrapper some endpoint versions emit.
func decodeLocalSearch(raw []byte) (*localSearchResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var wrapped []localSearchResponse
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse local-search response; %w", err)
		}
		if len(wrapped) == 0 {
			return &localSearchResponse{}, nil
		}
		return &wrapped[0], nil
	}

	var parsed localSearchResponse
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse local-search response; %w", err)
	}
	return &parsed, nil
}

// collectItems flattens the context sections, remembering provenance.
func collectItems(ctx localSearchContext) []graphItem {
	var items []graphItem
	for _, section := range [][]graphItem{ctx.Entities, ctx.Relationships, ctx.Reports, ctx.Claims, ctx.Sources} {
		items = append(items, section...)
	}
	return items
}

// scoreItems embeds the query and every item body, keeps items whose
// cosine similarity clears the minimum, and applies the in-context
// boost uniformly.
func (c *GraphSearchClient) scoreItems(ctx context.Context, query string, items []graphItem) ([]Candidate, error) {
	texts := make([]string, 0, len(items)+1)
	texts = append(texts, query)
	for _, it := range items {
		texts = append(texts, it.body())
	}

	vectors, err := c.embedder.Embed(ctx, texts, embed.SelectorSummary)
	if err != nil {
		return nil, fmt.Errorf("failed to embed graph items; %w", err)
	}
	queryVec := vectors[0]
	if embed.IsZero(queryVec) {
		return nil, fmt.Errorf("query embedding unavailable")
	}

	var out []Candidate
	dropped := 0
	for i, it := range items {
		vec := vectors[i+1]
		if embed.IsZero(vec) {
			dropped++
			continue
		}
		score := cosine(queryVec, vec)
		if it.InContext {
			score *= c.inContextBoost
		}
		if score < c.minSimilarity {
			dropped++
			continue
		}
		out = append(out, Candidate{
			Source:   SourceGraph,
			DocIdent: it.Source,
			Title:    it.label(),
			Text:     it.body(),
			Score:    score,
		})
	}
	if dropped > 0 {
		c.logger.Debug("graph items dropped below similarity threshold",
			"dropped", dropped,
			"kept", len(out),
			"min_similarity", c.minSimilarity)
	}
	return out, nil
}

// cosine returns the cosine similarity of two equal-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
