package retrieval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/evaluation"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/queryclass"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/respond"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/session"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

type stubClassifier struct {
	result queryclass.Result
}

func (c *stubClassifier) Classify(context.Context, string, string) queryclass.Result {
	return c.result
}

type stubVectors struct {
	mu           sync.Mutex
	chunkHits    []vectorstore.SearchResult
	summaryHits  []vectorstore.SearchResult
	chunkCalls   int
	summaryCalls int
	chunkDelay   time.Duration
	summaryDelay time.Duration
}

func (v *stubVectors) SearchChunks(ctx context.Context, _ []float32, _ *bucket.Bucket, _ int) ([]vectorstore.SearchResult, error) {
	v.mu.Lock()
	v.chunkCalls++
	v.mu.Unlock()
	if v.chunkDelay > 0 {
		select {
		case <-time.After(v.chunkDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return v.chunkHits, nil
}

func (v *stubVectors) SearchSummaries(ctx context.Context, _ []float32, _ int, _ float64) ([]vectorstore.SearchResult, error) {
	v.mu.Lock()
	v.summaryCalls++
	v.mu.Unlock()
	if v.summaryDelay > 0 {
		select {
		case <-time.After(v.summaryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return v.summaryHits, nil
}

type stubGraph struct {
	hits []Candidate
}

func (g *stubGraph) Search(context.Context, string) ([]Candidate, error) {
	return g.hits, nil
}

type stubTipping struct {
	reply    string
	lastText string
}

func (s *stubTipping) Lookup(_ context.Context, content string) string {
	s.lastText = content
	return s.reply
}

type captureSink struct {
	mu      sync.Mutex
	records []*evaluation.Record
}

func (s *captureSink) Enqueue(rec *evaluation.Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return evaluation.StatusPending
}

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]*session.Session)}
}

func (m *memorySessions) GetOrCreate(_ context.Context, id, userID, language string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	if id == "" {
		id = "sess-1"
	}
	sess := &session.Session{ID: id, UserID: userID, Language: language}
	m.sessions[id] = sess
	return sess, nil
}

func (m *memorySessions) Append(_ context.Context, id string, msg session.Message) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[id]
	sess.Messages = append(sess.Messages, msg)
	return sess, nil
}

func (m *memorySessions) SetTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].Title = title
	return nil
}

const delimitedReply = "===TITLE_START===\nCarbon Border Mechanisms\n===TITLE_END===\n" +
	"===CONTENT_START===\nCBAM prices embedded emissions while EUDR targets deforestation risk.\n===CONTENT_END==="

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		MaxResponseSeconds:   30,
		SourceTimeoutSeconds: 5,
		TopKChunks:           10,
		TopKSummaries:        3,
		TopKRerank:           5,
		RerankCutoffStart:    5,
		RerankCutoffContinue: 6,
		ContextCharBudget:    8000,
		HistoryWindow:        6,
	}
}

func climateClassification() *stubClassifier {
	return &stubClassifier{result: queryclass.Result{
		Category:       queryclass.CategoryClimateQuestion,
		Confidence:     0.9,
		ShouldRetrieve: true,
		Method:         queryclass.MethodLLM,
	}}
}

func newTestOrchestrator(t *testing.T, classifier QueryClassifier, vectors VectorSearcher, reply string, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	embSrv := keyedEmbeddingsServer(t, 8, "")
	t.Cleanup(embSrv.Close)

	provider := &capturingProvider{reply: reply}
	generator := respond.NewGenerator(provider, logging.Discard())
	refiner := NewRefiner(nil, 6, logging.Discard())

	opts = append(opts, WithOrchestratorLogger(logging.Discard()))
	return NewOrchestrator(retrievalConfig(), classifier, refiner, vectors,
		newTestEmbedder(embSrv.URL), generator, opts...)
}

func policyChunkHit() vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:       "c1",
		DocIdent: "eu-climate-law.pdf",
		Bucket:   bucket.Policy,
		Content:  "CBAM applies to imports of carbon-intensive goods.",
		Score:    0.87,
		Source:   vectorstore.SourceChunk,
	}
}

func TestAnswerRetrievalPath(t *testing.T) {
	vectors := &stubVectors{chunkHits: []vectorstore.SearchResult{policyChunkHit()}}
	graph := &stubGraph{hits: []Candidate{{
		Source: SourceGraph, DocIdent: "eu-climate-law.pdf",
		Title: "CBAM", Text: "CBAM interacts with deforestation rules.", Score: 0.6,
	}}}
	tipping := &stubTipping{reply: "Border pricing can trigger supply-chain decarbonization."}
	sink := &captureSink{}

	o := newTestOrchestrator(t, climateClassification(), vectors, delimitedReply,
		WithGraphSearcher(graph),
		WithTippingPointResolver(tipping),
		WithEvaluationSink(sink),
	)

	resp, err := o.Answer(context.Background(), QueryRequest{Query: "How does CBAM interact with EUDR?"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "Carbon Border Mechanisms", resp.Title)
	assert.Contains(t, resp.Answer, "CBAM prices embedded emissions")
	assert.Equal(t, "Border pricing can trigger supply-chain decarbonization.", resp.SocialTippingPoint)
	assert.Equal(t, len(resp.Sources), resp.TotalReferences)

	foundPolicy := false
	for _, s := range resp.Sources {
		if s.Bucket == string(bucket.Policy) {
			foundPolicy = true
		}
	}
	assert.True(t, foundPolicy, "sources must include the policy chunk hit")

	// The tipping-point lookup sees the response content, not the query.
	assert.Contains(t, tipping.lastText, "CBAM prices embedded emissions")
	assert.NotContains(t, tipping.lastText, "How does CBAM interact")

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "How does CBAM interact with EUDR?", rec.Query)
	assert.NotEmpty(t, rec.ChunksContext)
	assert.NotEmpty(t, rec.GraphContext)
	assert.Equal(t, session.ConversationStart, rec.ConversationType)
}

func TestAnswerShortCircuit(t *testing.T) {
	classifier := &stubClassifier{result: queryclass.Result{
		Category:       queryclass.CategoryBotIdentity,
		Confidence:     1,
		ShouldRetrieve: false,
		DirectReply:    "I'm a climate-document assistant.",
		Method:         queryclass.MethodExact,
	}}
	vectors := &stubVectors{}
	sink := &captureSink{}

	o := newTestOrchestrator(t, classifier, vectors, delimitedReply, WithEvaluationSink(sink))

	resp, err := o.Answer(context.Background(), QueryRequest{Query: "who made you?"})
	require.NoError(t, err)

	assert.Equal(t, "I'm a climate-document assistant.", resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.TotalReferences)
	assert.Equal(t, respond.NoTippingPoint, resp.SocialTippingPoint)
	assert.Zero(t, vectors.chunkCalls)
	assert.Zero(t, vectors.summaryCalls)
	assert.Empty(t, sink.records)
}

func TestAnswerEmptyRetrievalUsesFallback(t *testing.T) {
	vectors := &stubVectors{}
	o := newTestOrchestrator(t, climateClassification(), vectors,
		"===TITLE_START===\nNo Coverage\n===TITLE_END===\n"+
			"===CONTENT_START===\nNo indexed documents covered this question.\n===CONTENT_END===")

	resp, err := o.Answer(context.Background(), QueryRequest{Query: "obscure question"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.TotalReferences)
	assert.Contains(t, resp.Answer, "No indexed documents")
	assert.Equal(t, 1, vectors.chunkCalls)
}

func TestAnswerEmptyQueryRejected(t *testing.T) {
	o := newTestOrchestrator(t, climateClassification(), &stubVectors{}, delimitedReply)
	_, err := o.Answer(context.Background(), QueryRequest{Query: "   "})
	assert.Error(t, err)
}

func TestAnswerFanOutRunsConcurrently(t *testing.T) {
	vectors := &stubVectors{
		chunkHits:    []vectorstore.SearchResult{policyChunkHit()},
		chunkDelay:   150 * time.Millisecond,
		summaryDelay: 150 * time.Millisecond,
	}

	o := newTestOrchestrator(t, climateClassification(), vectors, delimitedReply)

	start := time.Now()
	resp, err := o.Answer(context.Background(), QueryRequest{Query: "carbon pricing"})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, StatusSuccess, resp.Status)
	// Sequential sources would need at least 300ms for the delays alone.
	assert.Less(t, elapsed, 280*time.Millisecond,
		"sources must run in parallel, observed %s", elapsed)
}

func TestAnswerRecordsSessionTurns(t *testing.T) {
	sessions := newMemorySessions()
	vectors := &stubVectors{chunkHits: []vectorstore.SearchResult{policyChunkHit()}}

	o := newTestOrchestrator(t, climateClassification(), vectors, delimitedReply,
		WithSessionStore(sessions))

	resp, err := o.Answer(context.Background(), QueryRequest{Query: "what is CBAM", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", resp.SessionID)

	sess := sessions.sessions["sess-1"]
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, session.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, "Carbon Border Mechanisms", sess.Title)
}

func TestAnswerContinueTurnHasNoTitle(t *testing.T) {
	sessions := newMemorySessions()
	sessions.sessions["sess-1"] = &session.Session{
		ID: "sess-1",
		Messages: []session.Message{
			{Role: session.RoleUser, Content: "what is CBAM"},
			{Role: session.RoleAssistant, Content: "CBAM is a border carbon price."},
		},
	}
	vectors := &stubVectors{chunkHits: []vectorstore.SearchResult{policyChunkHit()}}

	o := newTestOrchestrator(t, climateClassification(), vectors,
		"===CONTENT_START===\nIt covers steel, cement, and fertilizer imports.\n===CONTENT_END===",
		WithSessionStore(sessions))

	resp, err := o.Answer(context.Background(), QueryRequest{Query: "which sectors does it cover", SessionID: "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, session.ConversationContinue, resp.ConversationType)
	assert.Empty(t, resp.Title)
	assert.Contains(t, resp.Answer, "steel, cement")
}

type blockingProvider struct{}

func (blockingProvider) Name() string    { return "blocking" }
func (blockingProvider) Available() bool { return true }

func (blockingProvider) Complete(ctx context.Context, _ providers.ChatRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnswerTimeoutReply(t *testing.T) {
	cfg := retrievalConfig()
	cfg.MaxResponseSeconds = 1

	embSrv := keyedEmbeddingsServer(t, 8, "")
	t.Cleanup(embSrv.Close)

	generator := respond.NewGenerator(blockingProvider{}, logging.Discard())
	vectors := &stubVectors{chunkHits: []vectorstore.SearchResult{policyChunkHit()}}
	o := NewOrchestrator(cfg, climateClassification(), NewRefiner(nil, 6, logging.Discard()),
		vectors, newTestEmbedder(embSrv.URL), generator,
		WithOrchestratorLogger(logging.Discard()))

	resp, err := o.Answer(context.Background(), QueryRequest{Query: "slow question"})
	require.NoError(t, err)

	assert.Equal(t, StatusTimeout, resp.Status)
	assert.Equal(t, timeoutReply, resp.Answer)
	assert.Empty(t, resp.Sources)
}
