package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/session"
)

// keyedEmbeddingsServer returns axis-aligned vectors keyed on a content
// word, so cosine similarity is 1 for matching texts and 0 otherwise.
func keyedEmbeddingsServer(t *testing.T, dims int, keyword string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float32, dims)
			if strings.Contains(strings.ToLower(text), keyword) {
				vec[0] = 1
			} else {
				vec[1] = 1
			}
			data[i] = map[string]any{"embedding": vec, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func newTestEmbedder(baseURL string) *embed.Embedder {
	return embed.New(config.EmbedderConfig{
		BaseURL:           baseURL,
		ChunkModel:        "chunk-model",
		ChunkDimensions:   8,
		SummaryModel:      "summary-model",
		SummaryDimensions: 8,
	}, false, embed.WithLogger(logging.Discard()))
}

func TestFuseSortsAndBreaksTies(t *testing.T) {
	chunks := []Candidate{
		{Source: SourceChunk, DocIdent: "a.pdf", Text: "a", Score: 0.8},
		{Source: SourceChunk, DocIdent: "b.pdf", Text: "b", Score: 0.5},
	}
	summaries := []Candidate{{Source: SourceSummary, DocIdent: "c.pdf", Text: "c", Score: 0.8}}
	graph := []Candidate{{Source: SourceGraph, DocIdent: "d.pdf", Text: "d", Score: 0.9}}

	merged := fuse(chunks, summaries, graph)
	require.Len(t, merged, 4)
	assert.Equal(t, "d.pdf", merged[0].DocIdent)
	// Equal scores: chunk outranks summary.
	assert.Equal(t, "a.pdf", merged[1].DocIdent)
	assert.Equal(t, "c.pdf", merged[2].DocIdent)
	assert.Equal(t, "b.pdf", merged[3].DocIdent)
}

func TestFuseInsertionOrderTieBreak(t *testing.T) {
	first := []Candidate{{Source: SourceChunk, DocIdent: "first", Text: "x", Score: 0.5}}
	second := []Candidate{{Source: SourceChunk, DocIdent: "second", Text: "y", Score: 0.5}}

	merged := fuse(first, second)
	require.Len(t, merged, 2)
	assert.Equal(t, "first", merged[0].DocIdent)
}

func TestAssembleContextHonorsBudget(t *testing.T) {
	candidates := []Candidate{
		{Source: SourceChunk, DocIdent: "a.pdf", Text: strings.Repeat("alpha ", 30), Score: 0.9},
		{Source: SourceChunk, DocIdent: "b.pdf", Text: strings.Repeat("beta ", 30), Score: 0.8},
		{Source: SourceChunk, DocIdent: "c.pdf", Text: strings.Repeat("gamma ", 30), Score: 0.7},
	}

	block, used := assembleContext(candidates, 450)
	assert.LessOrEqual(t, len(block), 450)
	require.NotEmpty(t, used)
	assert.Less(t, len(used), 3)
	assert.Equal(t, "a.pdf", used[0].DocIdent)
	assert.Contains(t, block, "[chunk | a.pdf")
}

func TestAssembleContextEmptyInput(t *testing.T) {
	block, used := assembleContext(nil, 1000)
	assert.Empty(t, block)
	assert.Empty(t, used)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestGraphSearchFiltersBySimilarity(t *testing.T) {
	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Single-element array wrapper, as some endpoint versions emit.
		json.NewEncoder(w).Encode([]map[string]any{{
			"context": map[string]any{
				"entities": []map[string]any{
					{"title": "Solar Cooperatives", "description": "solar adoption spreads through cooperatives", "source": "energy.pdf"},
					{"title": "Unrelated", "description": "tax treaties between member states", "source": "tax.pdf"},
				},
				"reports": []map[string]any{
					{"title": "Adoption Report", "summary": "solar uptake accelerates regionally", "source": "energy.pdf", "in_context": true},
				},
			},
		}})
	}))
	defer graphSrv.Close()

	embSrv := keyedEmbeddingsServer(t, 8, "solar")
	defer embSrv.Close()

	c := NewGraphSearchClient(graphSrv.URL, 0.5, 1.1, newTestEmbedder(embSrv.URL),
		WithGraphSearchLogger(logging.Discard()))

	hits, err := c.Search(context.Background(), "how does solar adoption spread")
	require.NoError(t, err)
	require.Len(t, hits, 2)

	for _, h := range hits {
		assert.Equal(t, SourceGraph, h.Source)
		assert.NotEqual(t, "Unrelated", h.Title)
	}

	// The in-context report gets the uniform boost over plain cosine.
	var boosted, plain float64
	for _, h := range hits {
		if h.Title == "Adoption Report" {
			boosted = h.Score
		} else {
			plain = h.Score
		}
	}
	assert.InDelta(t, 1.1, boosted, 1e-6)
	assert.InDelta(t, 1.0, plain, 1e-6)
}

func TestGraphSearchBareObjectResponse(t *testing.T) {
	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"context": map[string]any{
				"sources": []map[string]any{
					{"text": "solar panels on rooftops", "source": "energy.pdf"},
				},
			},
		})
	}))
	defer graphSrv.Close()

	embSrv := keyedEmbeddingsServer(t, 8, "solar")
	defer embSrv.Close()

	c := NewGraphSearchClient(graphSrv.URL, 0.5, 1.1, newTestEmbedder(embSrv.URL),
		WithGraphSearchLogger(logging.Discard()))

	hits, err := c.Search(context.Background(), "solar")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "energy.pdf", hits[0].DocIdent)
}

func TestGraphSearchEmptyContext(t *testing.T) {
	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"context": map[string]any{}})
	}))
	defer graphSrv.Close()

	c := NewGraphSearchClient(graphSrv.URL, 0.5, 1.1, nil, WithGraphSearchLogger(logging.Discard()))
	hits, err := c.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRerankerReorders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Score texts in reverse of their arrival order, so the
		// cross-encoder disagrees with the native ranking.
		scores := make([]float64, len(req.Texts))
		for i := range scores {
			scores[i] = float64(i + 1)
		}
		json.NewEncoder(w).Encode(rerankResponse{Scores: scores})
	}))
	defer srv.Close()

	c := NewRerankerClient(srv.URL, WithRerankerLogger(logging.Discard()))
	candidates := []Candidate{
		{Source: SourceChunk, DocIdent: "a", Text: "a", Score: 0.9},
		{Source: SourceChunk, DocIdent: "b", Text: "b", Score: 0.8},
		{Source: SourceChunk, DocIdent: "c", Text: "c", Score: 0.7},
	}

	out := c.Rerank(context.Background(), "q", candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].DocIdent)
	assert.Equal(t, float64(3), out[0].Score)
	assert.Equal(t, "b", out[1].DocIdent)
}

func TestRerankerFailureKeepsNativeOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewRerankerClient(srv.URL, WithRerankerLogger(logging.Discard()))
	candidates := []Candidate{
		{Source: SourceChunk, DocIdent: "a", Text: "a", Score: 0.9},
		{Source: SourceChunk, DocIdent: "b", Text: "b", Score: 0.8},
		{Source: SourceChunk, DocIdent: "c", Text: "c", Score: 0.7},
	}

	out := c.Rerank(context.Background(), "q", candidates, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].DocIdent)
	assert.Equal(t, 0.9, out[0].Score)
}

type capturingProvider struct {
	lastSystem string
	lastUser   string
	reply      string
}

func (p *capturingProvider) Name() string    { return "capture" }
func (p *capturingProvider) Available() bool { return true }

func (p *capturingProvider) Complete(_ context.Context, req providers.ChatRequest) (string, error) {
	if len(req.Messages) > 0 {
		p.lastSystem = req.Messages[0].Content
	}
	if len(req.Messages) > 1 {
		p.lastUser = req.Messages[1].Content
	}
	return p.reply, nil
}

func TestRefinerStartFixesGrammarOnly(t *testing.T) {
	p := &capturingProvider{reply: "How does carbon pricing work?"}
	r := NewRefiner(p, 6, logging.Discard())

	out := r.Refine(context.Background(), "how do carbon pricing works", session.ConversationStart, nil)
	assert.Equal(t, "How does carbon pricing work?", out)
	assert.Contains(t, p.lastSystem, "Fix grammar")
	assert.NotContains(t, p.lastUser, "Conversation history")
}

func TestRefinerContinueRewritesWithHistory(t *testing.T) {
	p := &capturingProvider{reply: "How does the EU carbon border mechanism affect steel imports?"}
	r := NewRefiner(p, 6, logging.Discard())

	history := []session.Message{
		{Role: session.RoleUser, Content: "What is CBAM?"},
		{Role: session.RoleAssistant, Content: "CBAM is the EU carbon border adjustment mechanism."},
	}
	out := r.Refine(context.Background(), "how does it affect steel", session.ConversationContinue, history)
	assert.Contains(t, out, "carbon border mechanism")
	assert.Contains(t, p.lastSystem, "self-contained")
	assert.Contains(t, p.lastUser, "CBAM is the EU carbon border adjustment mechanism.")
}

func TestRefinerDegradesToOriginal(t *testing.T) {
	r := NewRefiner(nil, 6, logging.Discard())
	assert.Equal(t, "raw query", r.Refine(context.Background(), "raw query", session.ConversationStart, nil))
}
