package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Name() string    { return "stub" }
func (p *stubProvider) Available() bool { return true }

func (p *stubProvider) Complete(context.Context, providers.ChatRequest) (string, error) {
	return p.reply, p.err
}

func TestGenerateParsesReply(t *testing.T) {
	p := &stubProvider{reply: "===TITLE_START===\nGrid Flexibility\n===TITLE_END===\n" +
		"===CONTENT_START===\nStorage smooths peaks.\n===CONTENT_END==="}
	g := NewGenerator(p, logging.Discard())

	resp, err := g.Generate(context.Background(), "system", "user", ModeStart, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "Grid Flexibility", resp.Title)
	assert.Equal(t, "Storage smooths peaks.", resp.Content)
	assert.False(t, resp.ParseFallback)
}

func TestGenerateCountsFallbacks(t *testing.T) {
	p := &stubProvider{reply: "just plain text with no delimiters whatsoever in the reply body"}
	g := NewGenerator(p, logging.Discard())

	resp, err := g.Generate(context.Background(), "system", "user", ModeContinue, time.Time{})
	require.NoError(t, err)
	assert.True(t, resp.ParseFallback)
	assert.Equal(t, int64(1), g.ParseFallbacks())
}

func TestGenerateProviderError(t *testing.T) {
	g := NewGenerator(&stubProvider{err: fmt.Errorf("llm down")}, logging.Discard())
	_, err := g.Generate(context.Background(), "system", "user", ModeStart, time.Time{})
	assert.Error(t, err)
}

func TestTippingPointLookup(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = req.Text
		json.NewEncoder(w).Encode(map[string]string{
			"tipping_point": "Community energy cooperatives can trigger rapid local adoption.",
		})
	}))
	defer srv.Close()

	c := NewTippingPointClient(srv.URL, 500, time.Second, WithTippingPointLogger(logging.Discard()))
	content := "The question was about solar. " +
		"Rooftop adoption follows visible neighborhood installations. " +
		"Peer effects compound once visibility crosses a threshold. " +
		"Community programs accelerate this. " +
		"Costs keep falling. " +
		"In conclusion, adoption snowballs."

	got := c.Lookup(context.Background(), content)
	assert.Equal(t, "Community energy cooperatives can trigger rapid local adoption.", got)
	// The lookup is driven by the response signature, not the query.
	assert.Contains(t, received, "Peer effects")
	assert.NotContains(t, received, "The question was about solar")
}

func TestTippingPointLookupDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewTippingPointClient(srv.URL, 500, time.Second, WithTippingPointLogger(logging.Discard()))
	assert.Equal(t, NoTippingPoint, c.Lookup(context.Background(), "Some response content here."))
}

func TestTippingPointEmptyContent(t *testing.T) {
	c := NewTippingPointClient("http://unreachable.invalid", 500, time.Second)
	assert.Equal(t, NoTippingPoint, c.Lookup(context.Background(), ""))
}
