// Package retrieval drives the query path: classify the query, refine
// it against conversation history, fan out to the chunk, summary, and
// graph sources in parallel, fuse and rerank the hits, assemble a
// score-priority context, generate the delimited response, resolve the
// social tipping point from the response text, and enqueue the exchange
// for async quality evaluation. The whole path runs under one
// wall-clock budget and degrades instead of erroring.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/evaluation"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/metrics"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/queryclass"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/respond"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/session"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

// timeoutReply is the canonical answer when the wall-clock budget is
// exhausted before a response could be generated.
const timeoutReply = "Your question is taking longer than expected to process. Please try again in a moment."

// failureReply covers exhaustion of both the primary and fallback
// generation paths.
const failureReply = "I could not produce an answer right now. Please try rephrasing your question or ask again shortly."

// VectorSearcher is the slice of the vector store the orchestrator
// needs.
type VectorSearcher interface {
	SearchChunks(ctx context.Context, vector []float32, b *bucket.Bucket, k int) ([]vectorstore.SearchResult, error)
	SearchSummaries(ctx context.Context, vector []float32, kPerCollection int, minScore float64) ([]vectorstore.SearchResult, error)
}

// GraphSearcher resolves graph-context candidates for a query.
type GraphSearcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// Reranker reorders fused candidates with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, k int) []Candidate
}

// TippingPointResolver maps response content to a social tipping point.
type TippingPointResolver interface {
	Lookup(ctx context.Context, responseContent string) string
}

// QueryClassifier decides whether retrieval should run.
type QueryClassifier interface {
	Classify(ctx context.Context, query, conversationContext string) queryclass.Result
}

// EvaluationSink accepts finished exchanges for async scoring.
type EvaluationSink interface {
	Enqueue(rec *evaluation.Record) string
}

// SessionStore is the slice of the session store the orchestrator needs.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id, userID, language string) (*session.Session, error)
	Append(ctx context.Context, id string, msg session.Message) (*session.Session, error)
	SetTitle(ctx context.Context, id, title string) error
}

// QueryRequest is one user question.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// SourceRef is one cited retrieval hit.
type SourceRef struct {
	Source   string  `json:"source"`
	DocIdent string  `json:"doc_ident"`
	Bucket   string  `json:"bucket,omitempty"`
	Score    float64 `json:"score"`
}

// QueryResponse is the orchestrator's reply shape.
type QueryResponse struct {
	Answer             string      `json:"answer"`
	Title              string      `json:"title"`
	SocialTippingPoint string      `json:"social_tipping_point"`
	Sources            []SourceRef `json:"sources"`
	TotalReferences    int         `json:"total_references"`
	SessionID          string      `json:"session_id,omitempty"`
	ConversationType   string      `json:"conversation_type,omitempty"`
	Status             string      `json:"status"`
}

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusTimeout = "timeout"
	StatusFailed  = "failed"
)

// Orchestrator is the query-path state machine.
type Orchestrator struct {
	cfg        config.RetrievalConfig
	classifier QueryClassifier
	refiner    *Refiner
	vectors    VectorSearcher
	embedder   *embed.Embedder
	graph      GraphSearcher
	reranker   Reranker
	generator  *respond.Generator
	tipping    TippingPointResolver
	sessions   SessionStore
	evaluator  EvaluationSink
	logger     *slog.Logger
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithGraphSearcher wires the graph source.
func WithGraphSearcher(g GraphSearcher) OrchestratorOption {
	return func(o *Orchestrator) { o.graph = g }
}

// WithReranker wires the cross-encoder.
func WithReranker(r Reranker) OrchestratorOption {
	return func(o *Orchestrator) { o.reranker = r }
}

// WithTippingPointResolver wires the tipping-point lookup.
func WithTippingPointResolver(t TippingPointResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.tipping = t }
}

// WithSessionStore wires conversational memory.
func WithSessionStore(s SessionStore) OrchestratorOption {
	return func(o *Orchestrator) { o.sessions = s }
}

// WithEvaluationSink wires the async evaluation queue.
func WithEvaluationSink(e EvaluationSink) OrchestratorOption {
	return func(o *Orchestrator) { o.evaluator = e }
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator wires the query path. classifier, refiner, vectors,
// embedder, and generator are required; everything else degrades
// gracefully when absent.
func NewOrchestrator(
	cfg config.RetrievalConfig,
	classifier QueryClassifier,
	refiner *Refiner,
	vectors VectorSearcher,
	embedder *embed.Embedder,
	generator *respond.Generator,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		refiner:    refiner,
		vectors:    vectors,
		embedder:   embedder,
		generator:  generator,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer runs one query end to end. The only error it returns is an
// empty query; every downstream failure degrades into the reply body.
func (o *Orchestrator) Answer(ctx context.Context, req QueryRequest) (resp QueryResponse, err error) {
	start := time.Now()
	defer func() {
		status := resp.Status
		if status == "" {
			status = StatusFailed
		}
		metrics.RecordQuery(status, time.Since(start))
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return QueryResponse{}, fmt.Errorf("query must not be empty")
	}

	budget := time.Duration(o.cfg.MaxResponseSeconds) * time.Second
	if budget <= 0 {
		budget = time.Duration(config.DefaultMaxResponseSeconds) * time.Second
	}
	deadline := time.Now().Add(budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	sess := o.loadSession(ctx, req)
	convType := session.ConversationStart
	var history []session.Message
	if sess != nil {
		convType = sess.ConversationType()
		history = sess.Recent(o.historyWindow())
	}

	classification := o.classifier.Classify(ctx, query, formatHistory(history, o.historyWindow()))
	o.logger.Debug("query classified",
		"category", classification.Category,
		"method", classification.Method,
		"should_retrieve", classification.ShouldRetrieve)

	if classification.ShortCircuit() {
		return o.finish(ctx, sess, query, o.shortCircuitReply(ctx, query, classification, convType)), nil
	}

	refined := query
	if classification.EnhancedQuery != "" {
		refined = classification.EnhancedQuery
	}
	refined = o.refiner.Refine(ctx, refined, convType, history)

	candidates := o.fanOut(ctx, refined)
	if ctx.Err() != nil {
		return o.finish(ctx, sess, query, timeoutResponse(convType)), nil
	}

	if len(candidates) == 0 {
		return o.finish(ctx, sess, query, o.generateNoContext(ctx, refined, convType, deadline)), nil
	}

	selected := o.rerank(ctx, refined, candidates, convType)
	contextBlock, used := assembleContext(selected, o.cfg.ContextCharBudget)

	answer := o.generate(ctx, refined, contextBlock, used, convType, deadline)
	o.enqueueEvaluation(query, answer, used, sess, convType)
	return o.finish(ctx, sess, query, answer), nil
}

func (o *Orchestrator) historyWindow() int {
	if o.cfg.HistoryWindow > 0 {
		return o.cfg.HistoryWindow
	}
	return config.DefaultHistoryWindow
}

// loadSession resolves conversational memory; a missing store or a
// store failure yields a stateless turn.
func (o *Orchestrator) loadSession(ctx context.Context, req QueryRequest) *session.Session {
	if o.sessions == nil {
		return nil
	}
	sess, err := o.sessions.GetOrCreate(ctx, req.SessionID, req.UserID, req.Language)
	if err != nil {
		o.logger.Warn("session unavailable, answering statelessly", "error", err)
		return nil
	}
	return sess
}

// shortCircuitReply answers conversational and bot-identity queries
// without retrieval.
func (o *Orchestrator) shortCircuitReply(ctx context.Context, query string, classification queryclass.Result, convType string) QueryResponse {
	answer := classification.DirectReply
	if answer == "" {
		resp, err := o.generator.Generate(ctx,
			"You are a friendly climate-document assistant. Reply briefly and warmly.",
			query, respond.ModeContinue, time.Time{})
		if err != nil {
			answer = "Hello! Ask me anything about climate science, policy, or social tipping points."
		} else {
			answer = resp.Content
		}
	}
	return QueryResponse{
		Answer:             answer,
		SocialTippingPoint: respond.NoTippingPoint,
		Sources:            []SourceRef{},
		ConversationType:   convType,
		Status:             StatusSuccess,
	}
}

// fanOut runs the three source searches concurrently, each under its
// own timeout. A source that fails or times out contributes nothing.
func (o *Orchestrator) fanOut(ctx context.Context, query string) []Candidate {
	sourceTimeout := time.Duration(o.cfg.SourceTimeoutSeconds) * time.Second
	if sourceTimeout <= 0 {
		sourceTimeout = time.Duration(config.DefaultSourceTimeout) * time.Second
	}

	var chunkHits, summaryHits, graphHits []Candidate
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, sourceTimeout)
		defer cancel()

		vec, err := o.embedder.EmbedOne(sctx, query, embed.SelectorChunk)
		if err != nil || embed.IsZero(vec) {
			o.logger.Warn("chunk query embedding unavailable", "error", err)
			return
		}
		results, err := o.vectors.SearchChunks(sctx, vec, nil, o.topKChunks())
		if err != nil {
			o.logger.Warn("chunk search failed", "error", err)
			return
		}
		chunkHits = fromSearchResults(results, SourceChunk)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, sourceTimeout)
		defer cancel()

		vec, err := o.embedder.EmbedOne(sctx, query, embed.SelectorSummary)
		if err != nil || embed.IsZero(vec) {
			o.logger.Warn("summary query embedding unavailable", "error", err)
			return
		}
		results, err := o.vectors.SearchSummaries(sctx, vec, o.topKSummaries(), o.cfg.SummaryMinScore)
		if err != nil {
			o.logger.Warn("summary search failed", "error", err)
			return
		}
		summaryHits = fromSearchResults(results, SourceSummary)
	}()

	if o.graph != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sourceTimeout)
			defer cancel()

			hits, err := o.graph.Search(sctx, query)
			if err != nil {
				o.logger.Warn("graph search failed", "error", err)
				return
			}
			graphHits = hits
		}()
	}

	wg.Wait()

	metrics.RecordRetrievalCandidates(SourceChunk, len(chunkHits))
	metrics.RecordRetrievalCandidates(SourceSummary, len(summaryHits))
	metrics.RecordRetrievalCandidates(SourceGraph, len(graphHits))
	return fuse(chunkHits, summaryHits, graphHits)
}

func (o *Orchestrator) topKChunks() int {
	if o.cfg.TopKChunks > 0 {
		return o.cfg.TopKChunks
	}
	return config.DefaultTopKChunks
}

func (o *Orchestrator) topKSummaries() int {
	if o.cfg.TopKSummaries > 0 {
		return o.cfg.TopKSummaries
	}
	return config.DefaultTopKSummaries
}

// rerank applies the cross-encoder when the fused set is larger than
// the conversation-type cutoff.
func (o *Orchestrator) rerank(ctx context.Context, query string, candidates []Candidate, convType string) []Candidate {
	cutoff := o.cfg.RerankCutoffStart
	if convType == session.ConversationContinue {
		cutoff = o.cfg.RerankCutoffContinue
	}
	if cutoff <= 0 {
		cutoff = config.DefaultRerankCutoffStart
	}
	topK := o.cfg.TopKRerank
	if topK <= 0 {
		topK = config.DefaultTopKRerank
	}

	if o.reranker == nil || len(candidates) <= cutoff {
		if len(candidates) > topK {
			return candidates[:topK]
		}
		return candidates
	}
	return o.reranker.Rerank(ctx, query, candidates, topK)
}

const answerSystemPrompt = "You are a climate-document assistant. Answer using only the provided " +
	"context. Cite no sources inline; be precise and concise. If the context does not cover the " +
	"question, say what is missing."

const noContextSystemPrompt = "You are a climate-document assistant. No supporting documents were " +
	"found for this question. Answer carefully from general climate knowledge and say that no " +
	"indexed documents covered it."

// generate produces the final delimited response over the assembled
// context.
func (o *Orchestrator) generate(ctx context.Context, query, contextBlock string, used []Candidate, convType string, deadline time.Time) QueryResponse {
	mode := modeFor(convType)
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\n%s",
		contextBlock, query, respond.FormatInstructions(mode))

	resp, err := o.generator.Generate(ctx, answerSystemPrompt, userPrompt, mode, deadline)
	if err != nil {
		if ctx.Err() != nil {
			return timeoutResponse(convType)
		}
		o.logger.Error("response generation failed", "error", err)
		return failureResponse(convType)
	}

	return QueryResponse{
		Answer:             resp.Content,
		Title:              resp.Title,
		SocialTippingPoint: o.lookupTippingPoint(ctx, resp.Content),
		Sources:            sourceRefs(used),
		TotalReferences:    len(used),
		ConversationType:   convType,
		Status:             StatusSuccess,
	}
}

// generateNoContext is the fallback when every source came back empty.
func (o *Orchestrator) generateNoContext(ctx context.Context, query, convType string, deadline time.Time) QueryResponse {
	mode := modeFor(convType)
	userPrompt := fmt.Sprintf("Question: %s\n\n%s", query, respond.FormatInstructions(mode))

	resp, err := o.generator.Generate(ctx, noContextSystemPrompt, userPrompt, mode, deadline)
	if err != nil {
		if ctx.Err() != nil {
			return timeoutResponse(convType)
		}
		o.logger.Error("fallback generation failed", "error", err)
		return failureResponse(convType)
	}
	return QueryResponse{
		Answer:             resp.Content,
		Title:              resp.Title,
		SocialTippingPoint: o.lookupTippingPoint(ctx, resp.Content),
		Sources:            []SourceRef{},
		ConversationType:   convType,
		Status:             StatusSuccess,
	}
}

// lookupTippingPoint resolves the tipping point from the response
// content, never from the query.
func (o *Orchestrator) lookupTippingPoint(ctx context.Context, content string) string {
	if o.tipping == nil {
		return respond.NoTippingPoint
	}
	return o.tipping.Lookup(ctx, content)
}

// enqueueEvaluation records the exchange for async scoring. It never
// blocks the reply.
func (o *Orchestrator) enqueueEvaluation(query string, resp QueryResponse, used []Candidate, sess *session.Session, convType string) {
	if o.evaluator == nil || resp.Status != StatusSuccess {
		return
	}

	rec := evaluation.NewRecord(query, resp.Answer)
	rec.TippingPoint = resp.SocialTippingPoint
	rec.ConversationType = convType
	if sess != nil {
		rec.SessionID = sess.ID
	}
	for _, c := range used {
		switch c.Source {
		case SourceChunk:
			rec.ChunksContext = append(rec.ChunksContext, c.Text)
		case SourceSummary:
			rec.SummariesContext = append(rec.SummariesContext, c.Text)
		default:
			rec.GraphContext = append(rec.GraphContext, c.Text)
		}
	}
	o.evaluator.Enqueue(rec)
}

// finish records the turn in the session and stamps the reply.
func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, query string, resp QueryResponse) QueryResponse {
	if sess == nil || o.sessions == nil {
		return resp
	}

	resp.SessionID = sess.ID

	// Session writes ride on a fresh context: the query budget may
	// already be spent.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := o.sessions.Append(wctx, sess.ID, session.Message{Role: session.RoleUser, Content: query}); err != nil {
		o.logger.Warn("failed to record user message", "session_id", sess.ID, "error", err)
		return resp
	}
	if _, err := o.sessions.Append(wctx, sess.ID, session.Message{Role: session.RoleAssistant, Content: resp.Answer}); err != nil {
		o.logger.Warn("failed to record assistant message", "session_id", sess.ID, "error", err)
	}
	if resp.Title != "" && sess.Title == "" {
		if err := o.sessions.SetTitle(wctx, sess.ID, resp.Title); err != nil {
			o.logger.Warn("failed to set session title", "session_id", sess.ID, "error", err)
		}
	}
	return resp
}

func modeFor(convType string) respond.Mode {
	if convType == session.ConversationContinue {
		return respond.ModeContinue
	}
	return respond.ModeStart
}

func sourceRefs(used []Candidate) []SourceRef {
	refs := make([]SourceRef, 0, len(used))
	for _, c := range used {
		refs = append(refs, SourceRef{
			Source:   c.Source,
			DocIdent: c.DocIdent,
			Bucket:   string(c.Bucket),
			Score:    c.Score,
		})
	}
	return refs
}

func timeoutResponse(convType string) QueryResponse {
	return QueryResponse{
		Answer:             timeoutReply,
		Title:              titleFor(convType, "Request Timed Out"),
		SocialTippingPoint: respond.NoTippingPoint,
		Sources:            []SourceRef{},
		ConversationType:   convType,
		Status:             StatusTimeout,
	}
}

func failureResponse(convType string) QueryResponse {
	return QueryResponse{
		Answer:             failureReply,
		Title:              titleFor(convType, "Something Went Wrong"),
		SocialTippingPoint: respond.NoTippingPoint,
		Sources:            []SourceRef{},
		ConversationType:   convType,
		Status:             StatusFailed,
	}
}

func titleFor(convType, title string) string {
	if convType == session.ConversationContinue {
		return ""
	}
	return title
}
