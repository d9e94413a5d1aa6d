package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/chunkers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/graphstore"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/metrics"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/status"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/stp"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

// ProcessDocument runs the full per-document pipeline. The extractor is
// invoked exactly once; every enabled stage consumes the shared element
// list. News spreadsheets bypass extraction and expand into per-row
// virtual documents.
func (o *Orchestrator) ProcessDocument(ctx context.Context, data []byte, filename string, b bucket.Bucket, flags StageFlags) DocumentResult {
	result := DocumentResult{
		DocIdent:    filename,
		Bucket:      b,
		ProcessedAt: time.Now().UTC(),
	}
	defer func() { metrics.RecordDocument(string(b), result.OverallStatus) }()

	if !flags.Any() {
		result.OverallStatus = StatusFailed
		result.Message = "no stages enabled"
		return result
	}
	if len(data) == 0 {
		result.OverallStatus = StatusFailed
		result.Message = "empty document body"
		return result
	}

	flags = flags.MaskFor(b)
	if !flags.Any() {
		result.OverallStatus = StatusFailed
		result.Message = "no stages remain after bucket masking"
		return result
	}

	if b == bucket.News && bucket.IsSpreadsheet(filename) {
		result = o.processNewsWorkbook(ctx, data, filename, flags)
		return result
	}

	elements, err := o.extractor.Extract(ctx, data, filename)
	if err != nil {
		// Extraction failure is terminal; no stage runs on a partial list.
		o.logger.Error("extraction failed", "doc", filename, "bucket", b, "error", err)
		result.OverallStatus = StatusFailed
		result.Message = fmt.Sprintf("extraction failed: %v", err)
		return result
	}

	result.Stages = o.runStages(ctx, stageInput{
		docIdent: filename,
		bucket:   b,
		elements: elements,
	}, flags)
	result.OverallStatus = foldOverall(result.Stages)

	o.logger.Info("document ingested",
		"doc", filename,
		"bucket", b,
		"overall_status", result.OverallStatus)
	return result
}

// processNewsWorkbook expands a spreadsheet into per-row virtual
// documents and runs the pipeline over each. Mixed row outcomes yield
// partial_success; the workbook fails only when every row fails.
func (o *Orchestrator) processNewsWorkbook(ctx context.Context, data []byte, filename string, flags StageFlags) DocumentResult {
	result := DocumentResult{
		DocIdent:    filename,
		Bucket:      bucket.News,
		ProcessedAt: time.Now().UTC(),
	}

	articles, err := extract.ParseArticleRows(data, filename)
	if err != nil {
		result.OverallStatus = StatusFailed
		result.Message = err.Error()
		return result
	}
	result.ArticlesFound = len(articles)

	succeeded, failed := 0, 0
	for _, article := range articles {
		rowResult := o.processArticleRow(ctx, article, filename, flags)
		result.Rows = append(result.Rows, rowResult)
		if rowResult.OverallStatus == StatusFailed {
			failed++
		} else {
			succeeded++
		}
	}

	switch {
	case failed == 0:
		result.OverallStatus = StatusSuccess
	case succeeded == 0:
		result.OverallStatus = StatusFailed
		result.Message = "all article rows failed"
	default:
		result.OverallStatus = StatusPartialSuccess
		result.Message = fmt.Sprintf("%d of %d article rows failed", failed, len(articles))
	}
	return result
}

// processArticleRow runs the stage set over one expanded article row.
// The row's content string substitutes for extracted elements.
func (o *Orchestrator) processArticleRow(ctx context.Context, article extract.ArticleRow, workbook string, flags StageFlags) DocumentResult {
	ident := article.Ident(workbook)
	result := DocumentResult{
		DocIdent:    ident,
		Bucket:      bucket.News,
		ProcessedAt: time.Now().UTC(),
	}

	elements := []extract.Element{{Type: extract.ElementNarrativeText, Text: article.Content}}
	if article.Title != "" {
		elements = append([]extract.Element{{Type: extract.ElementTitle, Text: article.Title}}, elements...)
	}

	result.Stages = o.runStages(ctx, stageInput{
		docIdent: ident,
		bucket:   bucket.News,
		elements: elements,
		rowIndex: article.RowIndex,
		rowText:  article.Content,
	}, flags)
	result.OverallStatus = foldOverall(result.Stages)
	return result
}

// stageInput is the shared input every stage reads from. rowIndex is
// non-zero only for news article rows.
type stageInput struct {
	docIdent string
	bucket   bucket.Bucket
	elements []extract.Element
	rowIndex int
	rowText  string
}

// runStages dispatches the enabled stages under the stage worker pool
// and collects their results. Each stage computes, embeds, inserts, and
// marks its own status; a stage failure never aborts its siblings.
func (o *Orchestrator) runStages(ctx context.Context, in stageInput, flags StageFlags) map[status.Stage]StageResult {
	type stageRun struct {
		stage status.Stage
		run   func(context.Context) StageResult
	}

	var runs []stageRun
	if flags.Chunking {
		runs = append(runs, stageRun{status.StageChunks, func(ctx context.Context) StageResult {
			return o.runChunking(ctx, in)
		}})
	}
	if flags.Summarization {
		runs = append(runs, stageRun{status.StageSummary, func(ctx context.Context) StageResult {
			return o.runSummarization(ctx, in)
		}})
	}
	if flags.GraphRAG {
		runs = append(runs, stageRun{status.StageGraphRAG, func(ctx context.Context) StageResult {
			return o.runGraphRAG(ctx, in)
		}})
	}
	if flags.STP {
		runs = append(runs, stageRun{status.StageSTP, func(ctx context.Context) StageResult {
			return o.runSTP(ctx, in)
		}})
	}

	workers := o.cfg.WorkerCount
	if workers <= 0 {
		workers = 3
	}
	sem := make(chan struct{}, workers)

	results := make(map[status.Stage]StageResult, len(runs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, r := range runs {
		wg.Add(1)
		go func(r stageRun) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			res := r.run(ctx)
			metrics.RecordStage(string(r.stage), res.Status, time.Since(start))
			mu.Lock()
			results[r.stage] = res
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	return results
}

// runChunking chunks the elements, embeds the chunk texts, inserts them
// into the bucket collection, and marks chunks_done.
func (o *Orchestrator) runChunking(ctx context.Context, in stageInput) StageResult {
	chunker := chunkers.ForBucket(in.bucket, o.logger)
	chunks, err := chunker.Chunk(ctx, in.elements, in.docIdent)
	if err != nil {
		return StageResult{Status: StatusFailed, Message: fmt.Sprintf("chunking failed: %v", err)}
	}
	if len(chunks) == 0 {
		o.logger.Warn("chunker produced no chunks", "doc", in.docIdent, "bucket", in.bucket)
		return StageResult{Status: StatusSuccess, Counts: map[string]int{"chunks_count": 0}}
	}

	if in.rowIndex > 0 {
		tagRowChunks(chunks, in.docIdent, in.rowIndex)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.Embed(ctx, texts, embed.SelectorChunk)
	if err != nil {
		return StageResult{Status: StatusFailed, Message: fmt.Sprintf("chunk embedding failed: %v", err)}
	}

	records := make([]vectorstore.ChunkRecord, len(chunks))
	for i := range chunks {
		records[i] = vectorstore.ChunkRecord{Chunk: chunks[i], Embedding: vectors[i]}
	}
	if err := o.vectors.InsertChunks(ctx, records); err != nil {
		return StageResult{Status: StatusFailed, Message: fmt.Sprintf("chunk insert failed: %v", err)}
	}

	counts := map[string]int{"chunks_count": len(chunks)}
	o.markDone(ctx, status.StageChunks, in, counts)
	return StageResult{Status: StatusSuccess, Counts: counts}
}

// runSummarization generates one summary, embeds it, inserts it, and
// marks summary_done.
func (o *Orchestrator) runSummarization(ctx context.Context, in stageInput) StageResult {
	sc := extract.BuildStructuredContent(in.elements)
	summary, err := o.summarizer.Summarize(ctx, sc, in.bucket, in.docIdent)
	if err != nil {
		return StageResult{Status: StatusFailed, Message: fmt.Sprintf("summarization failed: %v", err)}
	}

	vector, err := o.embedder.EmbedOne(ctx, summary.Text, embed.SelectorSummary)
	if err != nil {
		return StageResult{Status: StatusFailed, Message: fmt.Sprintf("summary embedding failed: %v", err)}
	}

	if err := o.vectors.InsertSummary(ctx, vectorstore.SummaryRecord{Summary: summary, Embedding: vector}); err != nil {
		return StageResult{Status: StatusFailed, Message: fmt.Sprintf("summary insert failed: %v", err)}
	}

	counts := map[string]int{"summaries_count": 1}
	o.markDone(ctx, status.StageSummary, in, counts)
	return StageResult{Status: StatusSuccess, Counts: counts}
}

// runGraphRAG extracts graph artifacts from the full text and transfers
// them into the graph store. Partial transfer still marks the stage done
// with the counts that landed.
func (o *Orchestrator) runGraphRAG(ctx context.Context, in stageInput) StageResult {
	if o.graph == nil {
		return StageResult{Status: StatusSkipped, Message: "graph extraction disabled"}
	}

	fullText := in.rowText
	if fullText == "" {
		fullText = extract.FullText(in.elements)
	}

	res := o.graph.Extract(ctx, fullText, in.docIdent, in.bucket)
	stageRes := StageResult{
		Message: res.Message,
		Counts: map[string]int{
			"entities_count":      res.Counts.Entities,
			"relationships_count": res.Counts.Relationships,
			"communities_count":   res.Counts.Communities,
			"claims_count":        res.Counts.Claims,
			"text_units_count":    res.Counts.TextUnits,
		},
	}

	switch res.Status {
	case graphstore.ExtractSuccess:
		stageRes.Status = StatusSuccess
	case graphstore.ExtractPartialSuccess:
		stageRes.Status = StatusPartialSuccess
	case graphstore.ExtractSkipped:
		return StageResult{Status: StatusSkipped, Message: res.Message}
	default:
		return StageResult{Status: StatusFailed, Message: res.Message}
	}

	o.markDone(ctx, status.StageGraphRAG, in, stageRes.Counts)
	return stageRes
}

// runSTP drives the social-tipping-point sub-pipeline over the shared
// elements, or over the row text for news article rows.
func (o *Orchestrator) runSTP(ctx context.Context, in stageInput) StageResult {
	if o.stp == nil {
		return StageResult{Status: StatusSkipped, Message: "stp pipeline disabled"}
	}

	var res stp.Result
	if in.rowText != "" {
		res = o.stp.ProcessText(ctx, in.rowText, in.docIdent)
	} else {
		res = o.stp.ProcessElements(ctx, in.elements, in.docIdent)
	}

	counts := map[string]int{
		"stp_chunks":     res.STPChunks,
		"non_stp_chunks": res.NonSTPChunks,
		"stp_stored":     res.StoredChunks,
	}

	switch res.Status {
	case stp.StatusSuccess:
		o.markDone(ctx, status.StageSTP, in, counts)
		return StageResult{Status: StatusSuccess, Counts: counts}
	case stp.StatusSkipped:
		return StageResult{Status: StatusSkipped, Message: res.Message}
	default:
		return StageResult{Status: StatusFailed, Counts: counts, Message: res.Message}
	}
}

// tagRowChunks stamps chunks expanded from a news workbook row with
// their owning article identifier and 1-based sheet row.
func tagRowChunks(chunks []chunkers.Chunk, ident string, row int) {
	for i := range chunks {
		chunks[i].DocName = ident
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any, 1)
		}
		chunks[i].Metadata[chunkers.MetaRowIndex] = row
	}
}

// markDone records stage completion. A tracker failure is logged but
// does not fail the stage; the data already committed.
func (o *Orchestrator) markDone(ctx context.Context, stage status.Stage, in stageInput, counts map[string]int) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.MarkDone(ctx, stage, in.docIdent, in.bucket, counts); err != nil {
		o.logger.Error("failed to record stage status",
			"stage", stage,
			"doc", in.docIdent,
			"error", err)
	}
}
