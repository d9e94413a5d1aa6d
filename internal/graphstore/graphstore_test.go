package graphstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
)

func newTestGraphStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.GraphConfig{
		Enabled:  true,
		Path:     filepath.Join(t.TempDir(), "graph.db"),
		MaxNodes: 10,
		MaxEdges: 10,
	}
	s, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeArtifacts(t *testing.T, dir string) {
	t.Helper()

	embedding := make([]float64, 16)
	embedding[0] = 1

	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "entities.parquet"), []entityRow{
		{ID: "e1", Title: "Gulf Stream", Type: "climate_phenomenon", Description: "Atlantic current", Degree: 2, Embedding: embedding},
		{ID: "e2", Title: "AMOC", Type: "climate_phenomenon", Description: "Overturning circulation", Degree: 1},
		{ID: "e3", Title: "Orphan Entity", Type: "location", Description: "no relationships"},
	}))

	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "relationships.parquet"), []relationshipRow{
		{ID: "r1", Source: "Gulf Stream", Target: "AMOC", Description: "weakening linked to collapse risk", Weight: 0.9},
	}))

	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "create_final_communities.parquet"), []communityRow{
		{ID: "c1", Community: 0, Title: "", Level: 0, RelationshipIDs: []string{"r1"}},
	}))

	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "community_reports.parquet"), []communityReportRow{
		{Community: 0, Title: "Ocean Circulation", Summary: "Currents and their coupling.", Rating: 7.5},
	}))

	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "covariates.parquet"), []claimRow{
		{ID: "cl1", Subject: "Gulf Stream", CovariateType: "claim", Status: "TRUE", Description: "Observed slowdown"},
		{ID: "cv1", Subject: "AMOC", CovariateType: "measurement", Description: "not a claim"},
	}))

	require.NoError(t, parquet.WriteFile(filepath.Join(dir, "text_units.parquet"), []textUnitRow{
		{ID: "t1", Text: "The Gulf Stream is weakening.", NTokens: 7, EntityIDs: []string{"e1"}, Embedding: embedding},
	}))
}

func TestTransferAndCounts(t *testing.T) {
	s := newTestGraphStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeArtifacts(t, dir)

	docID, err := s.AllocateDocument(ctx, "ocean.pdf", bucket.ResearchPapers)
	require.NoError(t, err)

	counts, status, err := s.Transfer(ctx, docID, dir)
	require.NoError(t, err)
	assert.Equal(t, TransferSuccess, status)
	assert.Equal(t, 3, counts.Entities)
	assert.Equal(t, 1, counts.Relationships)
	assert.Equal(t, 1, counts.Communities)
	assert.Equal(t, 1, counts.Claims, "only covariates typed as claims survive")
	assert.Equal(t, 1, counts.TextUnits)

	stored, err := s.Counts(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, counts, stored)
}

func TestDocumentGraphPrunesOrphans(t *testing.T) {
	s := newTestGraphStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeArtifacts(t, dir)

	docID, err := s.AllocateDocument(ctx, "ocean.pdf", bucket.ResearchPapers)
	require.NoError(t, err)
	_, _, err = s.Transfer(ctx, docID, dir)
	require.NoError(t, err)

	graph, err := s.DocumentGraph(ctx, "ocean.pdf")
	require.NoError(t, err)

	assert.Len(t, graph.Entities, 2, "entities without relationships are pruned")
	for _, n := range graph.Entities {
		assert.NotEqual(t, "Orphan Entity", n.Title)
		assert.NotEmpty(t, n.CreatedAt)
	}
	require.Len(t, graph.Relationships, 1)
	assert.Equal(t, "Gulf Stream", graph.Relationships[0].Source)

	require.Len(t, graph.Communities, 1)
	assert.Equal(t, "Ocean Circulation", graph.Communities[0].Title)
	assert.Equal(t, "Currents and their coupling.", graph.Communities[0].Summary)
	assert.Equal(t, 1, graph.Communities[0].MemberCount, "member count equals resolved list length")
}

func TestDocumentGraphUnknownDocument(t *testing.T) {
	s := newTestGraphStore(t)
	_, err := s.DocumentGraph(context.Background(), "missing.pdf")
	assert.ErrorContains(t, err, "no graph for document")
}

func TestStructuredSearch(t *testing.T) {
	s := newTestGraphStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeArtifacts(t, dir)

	docID, err := s.AllocateDocument(ctx, "ocean.pdf", bucket.ResearchPapers)
	require.NoError(t, err)
	_, _, err = s.Transfer(ctx, docID, dir)
	require.NoError(t, err)

	hits, err := s.StructuredSearch(ctx, "gulf stream weakening", nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, HitEntity, hits[0].Kind)
	assert.Equal(t, "Gulf Stream", hits[0].Title)

	// Bucket filter excludes other corpora.
	b := bucket.Policy
	hits, err = s.StructuredSearch(ctx, "gulf stream", &b, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHealth(t *testing.T) {
	s := newTestGraphStore(t)
	assert.NoError(t, s.Health(context.Background()))
}

func TestNormalizeEmbedding(t *testing.T) {
	padded := normalizeEmbedding([]float32{1, 2})
	assert.Len(t, padded, EmbeddingDims)
	assert.Equal(t, float32(1), padded[0])
	assert.Equal(t, float32(0), padded[2])

	long := make([]float32, EmbeddingDims+10)
	for i := range long {
		long[i] = 1
	}
	truncated := normalizeEmbedding(long)
	assert.Len(t, truncated, EmbeddingDims)

	assert.True(t, isZeroVector(normalizeEmbedding(nil)))
}

func TestCommunityMemberFallback(t *testing.T) {
	c := communityRow{EntityIDs: []string{"a"}, RelationshipIDs: []string{"b"}, TextUnitIDs: []string{"c"}}
	assert.Equal(t, []string{"a"}, c.memberIDs())

	c.EntityIDs = nil
	assert.Equal(t, []string{"b"}, c.memberIDs())

	c.RelationshipIDs = nil
	assert.Equal(t, []string{"c"}, c.memberIDs())
}

func TestExtractorSkipsShortDocuments(t *testing.T) {
	s := newTestGraphStore(t)
	e := NewExtractor(s.cfg, s, logging.Discard())

	result := e.Extract(context.Background(), "too short", "tiny.pdf", bucket.News)
	assert.Equal(t, ExtractSkipped, result.Status)
}

func TestExtractorIndexerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "indexer down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestGraphStore(t)
	cfg := s.cfg
	cfg.IndexerURL = srv.URL
	e := NewExtractor(cfg, s, logging.Discard(), WithIndexerClient(srv.Client()))

	longText := make([]byte, 200)
	for i := range longText {
		longText[i] = 'a'
	}
	result := e.Extract(context.Background(), string(longText), "doc.pdf", bucket.Policy)
	assert.Equal(t, ExtractFailed, result.Status)
	assert.Contains(t, result.Message, "500")
}
