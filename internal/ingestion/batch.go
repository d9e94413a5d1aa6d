package ingestion

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// BatchOptions scopes a batch run.
type BatchOptions struct {
	// MaxDocumentsPerBucket caps how many documents each bucket
	// processes; zero means unlimited.
	MaxDocumentsPerBucket int

	// SkipProcessed consults the status tracker with the current stage
	// set and skips documents already fully processed under it.
	SkipProcessed bool
}

// BucketResult summarizes one bucket's batch run.
type BucketResult struct {
	Bucket    bucket.Bucket    `json:"bucket"`
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Documents []DocumentResult `json:"documents,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// BatchResult summarizes a whole batch run.
type BatchResult struct {
	Buckets     []BucketResult `json:"buckets"`
	Processed   int            `json:"processed"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// ProcessAllBuckets runs batch ingestion over every bucket.
func (o *Orchestrator) ProcessAllBuckets(ctx context.Context, source DocumentSource, flags StageFlags, opts BatchOptions) BatchResult {
	return o.ProcessBuckets(ctx, source, bucket.All(), flags, opts)
}

// ProcessBuckets runs batch ingestion over the given buckets. Documents
// within each bucket are processed under the configured concurrency
// cap; one document's failure never aborts the batch.
func (o *Orchestrator) ProcessBuckets(ctx context.Context, source DocumentSource, buckets []bucket.Bucket, flags StageFlags, opts BatchOptions) BatchResult {
	result := BatchResult{StartedAt: time.Now().UTC()}

	for _, b := range buckets {
		br := o.processBucket(ctx, source, b, flags, opts)
		result.Buckets = append(result.Buckets, br)
		result.Processed += br.Processed
		result.Skipped += br.Skipped
		result.Failed += br.Failed
	}

	result.CompletedAt = time.Now().UTC()
	o.logger.Info("batch ingestion complete",
		"buckets", len(buckets),
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result
}

// processBucket expands one bucket's document set and drives each
// document through the pipeline under the concurrency cap.
func (o *Orchestrator) processBucket(ctx context.Context, source DocumentSource, b bucket.Bucket, flags StageFlags, opts BatchOptions) BucketResult {
	br := BucketResult{Bucket: b}

	names, err := source.ListDocuments(ctx, b)
	if err != nil {
		br.Message = err.Error()
		o.logger.Error("failed to list bucket documents", "bucket", b, "error", err)
		return br
	}
	if opts.MaxDocumentsPerBucket > 0 && len(names) > opts.MaxDocumentsPerBucket {
		names = names[:opts.MaxDocumentsPerBucket]
	}

	// The skip gate is judged against the stage set of this run, after
	// bucket masking, so a document can be complete under one
	// configuration and pending under another.
	maskedStages := flags.MaskFor(b).Stages()

	concurrency := o.cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultBatchConcurrency
	}

	type outcome struct {
		skipped bool
		result  DocumentResult
	}
	outcomes := make([]outcome, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range names {
		g.Go(func() error {
			if opts.SkipProcessed && o.tracker != nil {
				done, serr := o.tracker.IsFullyProcessed(gctx, name, b, maskedStages)
				if serr != nil {
					o.logger.Warn("status lookup failed, processing anyway",
						"doc", name, "bucket", b, "error", serr)
				} else if done {
					outcomes[i] = outcome{skipped: true}
					return nil
				}
			}

			data, ferr := source.FetchDocument(gctx, b, name)
			if ferr != nil {
				outcomes[i] = outcome{result: DocumentResult{
					DocIdent:      name,
					Bucket:        b,
					OverallStatus: StatusFailed,
					Message:       ferr.Error(),
					ProcessedAt:   time.Now().UTC(),
				}}
				return nil
			}

			outcomes[i] = outcome{result: o.ProcessDocument(gctx, data, name, b, flags)}
			return nil
		})
	}
	_ = g.Wait()

	for _, oc := range outcomes {
		if oc.skipped {
			br.Skipped++
			continue
		}
		br.Documents = append(br.Documents, oc.result)
		if oc.result.OverallStatus == StatusFailed {
			br.Failed++
		} else {
			br.Processed++
		}
	}
	return br
}
