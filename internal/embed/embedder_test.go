package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

func testConfig(baseURL string) config.EmbedderConfig {
	return config.EmbedderConfig{
		BaseURL:           baseURL,
		ChunkModel:        "chunk-model",
		ChunkDimensions:   4,
		SummaryModel:      "summary-model",
		SummaryDimensions: 3,
		STPModel:          "stp-model",
		STPDimensions:     2,
		BatchSize:         2,
		TimeoutSeconds:    5,
	}
}

// fakeEmbeddings returns a deterministic non-zero vector per input.
func fakeEmbeddings(dims int, n int) []map[string]any {
	data := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = float32(i + 1)
		}
		data[i] = map[string]any{"embedding": vec, "index": i}
	}
	return data
}

func TestEmbedBatchesAndOrder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "chunk-model", req.Model)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": fakeEmbeddings(4, len(req.Input))})
	}))
	defer srv.Close()

	e := New(testConfig(srv.URL), true)
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"}, SelectorChunk)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Batch size 2 means two API calls for three texts.
	assert.Equal(t, int32(2), calls.Load())
	for _, v := range vecs {
		assert.Len(t, v, 4)
		assert.False(t, IsZero(v))
	}
}

func TestEmbedBlankInputsAreZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Blank inputs must never reach the endpoint.
		for _, in := range req.Input {
			assert.NotEmpty(t, in)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": fakeEmbeddings(3, len(req.Input))})
	}))
	defer srv.Close()

	e := New(testConfig(srv.URL), false)
	vecs, err := e.Embed(context.Background(), []string{"", "real text", "   "}, SelectorSummary)
	require.NoError(t, err)

	assert.True(t, IsZero(vecs[0]))
	assert.False(t, IsZero(vecs[1]))
	assert.True(t, IsZero(vecs[2]))
	assert.Len(t, vecs[0], 3)
}

func TestEmbedFailedBatchYieldsZeroVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := New(testConfig(srv.URL), false)
	vecs, err := e.Embed(context.Background(), []string{"a", "b"}, SelectorChunk)
	require.NoError(t, err)

	for _, v := range vecs {
		assert.True(t, IsZero(v))
		assert.Len(t, v, 4)
	}
}

func TestEmbedDimensionMismatchFailsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Wrong dimension: 5 instead of 4.
		_ = json.NewEncoder(w).Encode(map[string]any{"data": fakeEmbeddings(5, 1)})
	}))
	defer srv.Close()

	e := New(testConfig(srv.URL), false)
	vecs, err := e.Embed(context.Background(), []string{"a"}, SelectorChunk)
	require.NoError(t, err)
	assert.True(t, IsZero(vecs[0]))
}

func TestSTPSelectorGating(t *testing.T) {
	e := New(testConfig("http://unused"), false)
	_, err := e.Embed(context.Background(), []string{"a"}, SelectorSTP)
	assert.Error(t, err)

	e = New(testConfig("http://unused"), true)
	assert.Equal(t, 2, e.Dimensions(SelectorSTP))
}
