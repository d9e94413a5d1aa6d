// Package stp implements the social-tipping-point sub-pipeline: semantic
// chunking, binary relevance classification, rephrasing, qualifying-factor
// assessment, and insertion into the dedicated STP vector store. The
// pipeline reuses upstream extraction artifacts and never re-invokes the
// extractor; its status is reported independently of the other ingestion
// stages.
package stp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

// Pipeline statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Result reports one pipeline run.
type Result struct {
	Status       string `json:"status"`
	STPChunks    int    `json:"stp_chunks"`
	NonSTPChunks int    `json:"non_stp_chunks"`
	StoredChunks int    `json:"stored_chunks"`
	Message      string `json:"message,omitempty"`
}

// Pipeline wires the five stages together. Rephrasing and factor
// generation for classified chunks run in parallel at a small batch
// width; everything else is strictly sequential.
type Pipeline struct {
	cfg        config.STPConfig
	chunker    *SemanticChunker
	classifier *ClassifierClient
	rephraser  *Rephraser
	factors    *FactorGenerator
	embedder   *embed.Embedder
	store      *vectorstore.Store
	logger     *slog.Logger
}

// New assembles the pipeline from its stage components.
func New(cfg config.STPConfig, boundary *BoundaryClient, classifier *ClassifierClient,
	provider providers.ChatProvider, embedder *embed.Embedder, store *vectorstore.Store,
	logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		chunker:    NewSemanticChunker(cfg, boundary, logger),
		classifier: classifier,
		rephraser:  NewRephraser(provider, logger),
		factors:    NewFactorGenerator(provider, logger),
		embedder:   embedder,
		store:      store,
		logger:     logger,
	}
}

// Enabled reports whether the pipeline is switched on.
func (p *Pipeline) Enabled() bool {
	return p.cfg.Enabled
}

// ProcessElements runs the pipeline over pre-extracted elements. This is
// the path used during document ingestion; the element list comes from
// the single upstream extraction.
func (p *Pipeline) ProcessElements(ctx context.Context, elements []extract.Element, docName string) Result {
	if !p.cfg.Enabled {
		return Result{Status: StatusSkipped, Message: "stp pipeline disabled"}
	}
	chunks, err := p.chunker.ChunkElements(ctx, elements)
	if err != nil {
		return Result{Status: StatusFailed, Message: fmt.Sprintf("semantic chunking failed: %v", err)}
	}
	return p.run(ctx, chunks, docName)
}

// ProcessText runs the pipeline over a plain text string, the form used
// for news article rows.
func (p *Pipeline) ProcessText(ctx context.Context, text, docName string) Result {
	if !p.cfg.Enabled {
		return Result{Status: StatusSkipped, Message: "stp pipeline disabled"}
	}
	chunks, err := p.chunker.ChunkText(ctx, text)
	if err != nil {
		return Result{Status: StatusFailed, Message: fmt.Sprintf("semantic chunking failed: %v", err)}
	}
	return p.run(ctx, chunks, docName)
}

// enrichedChunk is a relevance-positive chunk after stages 3 and 4.
type enrichedChunk struct {
	chunk      SemanticChunk
	confidence float64
	rephrased  string
	factors    string
}

// run drives stages 2 through 5 over the semantic chunks.
func (p *Pipeline) run(ctx context.Context, chunks []SemanticChunk, docName string) Result {
	if len(chunks) == 0 {
		return Result{Status: StatusSuccess, Message: "no chunks produced"}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	classifications, err := p.classifier.Classify(ctx, texts)
	if err != nil {
		return Result{Status: StatusFailed, Message: fmt.Sprintf("classification failed: %v", err)}
	}

	var positive []SemanticChunk
	var confidences []float64
	nonSTP := 0
	for i, cl := range classifications {
		if cl.IsSTP() {
			positive = append(positive, chunks[i])
			confidences = append(confidences, cl.Confidence)
		} else {
			nonSTP++
		}
	}

	p.logger.Info("stp classification complete",
		"doc", docName,
		"stp_chunks", len(positive),
		"non_stp_chunks", nonSTP)

	if len(positive) == 0 {
		return Result{Status: StatusSuccess, NonSTPChunks: nonSTP}
	}

	enriched := p.enrich(ctx, positive, confidences)

	stored, err := p.insert(ctx, enriched, docName)
	if err != nil {
		return Result{
			Status:       StatusFailed,
			STPChunks:    len(positive),
			NonSTPChunks: nonSTP,
			Message:      fmt.Sprintf("insert failed: %v", err),
		}
	}

	return Result{
		Status:       StatusSuccess,
		STPChunks:    len(positive),
		NonSTPChunks: nonSTP,
		StoredChunks: stored,
	}
}

// enrich runs rephrasing and factor generation across the positive
// chunks, both calls in parallel per chunk, batched at the configured
// width so the LLM endpoint is not flooded.
func (p *Pipeline) enrich(ctx context.Context, chunks []SemanticChunk, confidences []float64) []enrichedChunk {
	batch := p.cfg.RephraseBatch
	if batch <= 0 {
		batch = config.DefaultSTPRephraseBatch
	}

	enriched := make([]enrichedChunk, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				var rephrased, factors string
				var inner sync.WaitGroup
				inner.Add(2)
				go func() {
					defer inner.Done()
					rephrased = p.rephraser.Rephrase(ctx, chunks[i].Text)
				}()
				go func() {
					defer inner.Done()
					factors = p.factors.Generate(ctx, chunks[i].Text)
				}()
				inner.Wait()

				enriched[i] = enrichedChunk{
					chunk:      chunks[i],
					confidence: confidences[i],
					rephrased:  rephrased,
					factors:    factors,
				}
			}(i)
		}
		wg.Wait()
	}
	return enriched
}

// insert embeds the rephrased content and upserts into the STP store in
// batches. Dimension-mismatched records are dropped by the store.
func (p *Pipeline) insert(ctx context.Context, enriched []enrichedChunk, docName string) (int, error) {
	batch := p.cfg.InsertBatch
	if batch <= 0 {
		batch = config.DefaultSTPInsertBatch
	}

	stored := 0
	for start := 0; start < len(enriched); start += batch {
		end := min(start+batch, len(enriched))
		slice := enriched[start:end]

		texts := make([]string, len(slice))
		for i, e := range slice {
			texts[i] = e.rephrased
		}
		vectors, err := p.embedder.Embed(ctx, texts, embed.SelectorSTP)
		if err != nil {
			return stored, fmt.Errorf("stp embedding failed; %w", err)
		}

		records := make([]vectorstore.STPRecord, len(slice))
		for i, e := range slice {
			records[i] = vectorstore.STPRecord{
				ID:                e.chunk.ID,
				ChunkID:           e.chunk.ID,
				DocName:           docName,
				OriginalText:      e.chunk.Text,
				RephrasedText:     e.rephrased,
				Confidence:        e.confidence,
				QualifyingFactors: e.factors,
				TokenCount:        e.chunk.TokenCount,
				Embedding:         vectors[i],
			}
		}

		n, err := p.store.InsertSTPRecords(ctx, records)
		if err != nil {
			return stored, err
		}
		stored += n
	}
	return stored, nil
}
