package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/app"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/ingestion"
)

var (
	ingestSource        string
	ingestBuckets       []string
	ingestChunking      bool
	ingestSummarization bool
	ingestGraphRAG      bool
	ingestSTP           bool
	ingestMaxDocs       int
	ingestSkipProcessed bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run batch ingestion over a document directory",
	Long: "Ingest walks a source directory laid out as one subdirectory per bucket " +
		"(researchpapers, policy, scientificdata, news) and drives every recognized " +
		"document through the enabled pipeline stages. The batch runs as a background " +
		"task; the command waits for it and prints the per-bucket summary as JSON.",
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "directory with per-bucket document subdirectories (required)")
	ingestCmd.Flags().StringSliceVar(&ingestBuckets, "bucket", nil, "bucket(s) to process; all processable buckets when unset")
	ingestCmd.Flags().BoolVar(&ingestChunking, "chunks", true, "run the chunking stage")
	ingestCmd.Flags().BoolVar(&ingestSummarization, "summary", true, "run the summarization stage")
	ingestCmd.Flags().BoolVar(&ingestGraphRAG, "graphrag", true, "run the graph extraction stage")
	ingestCmd.Flags().BoolVar(&ingestSTP, "stp", true, "run the social-tipping-point stage")
	ingestCmd.Flags().IntVar(&ingestMaxDocs, "max-documents", 0, "cap documents per bucket; 0 = unlimited")
	ingestCmd.Flags().BoolVar(&ingestSkipProcessed, "skip-processed", false, "skip documents already fully processed under this stage set")
	_ = ingestCmd.MarkFlagRequired("source")
}

func runIngest(cmd *cobra.Command, args []string) error {
	flags := ingestion.StageFlags{
		Chunking:      ingestChunking,
		Summarization: ingestSummarization,
		GraphRAG:      ingestGraphRAG,
		STP:           ingestSTP,
	}
	if !flags.Any() {
		return fmt.Errorf("at least one stage must be enabled")
	}

	buckets, err := parseBuckets(ingestBuckets)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, logManager.Logger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := ingestion.NewFSSource(ingestSource)
	opts := ingestion.BatchOptions{
		MaxDocumentsPerBucket: ingestMaxDocs,
		SkipProcessed:         ingestSkipProcessed,
	}

	taskID := a.Tasks.Create("batch_ingest", map[string]any{
		"source":  ingestSource,
		"buckets": ingestBuckets,
	}, func(taskCtx context.Context) (any, error) {
		if len(buckets) > 0 {
			return a.Ingestion.ProcessBuckets(taskCtx, source, buckets, flags, opts), nil
		}
		return a.Ingestion.ProcessAllBuckets(taskCtx, source, flags, opts), nil
	})

	task, err := waitForTask(ctx, a.Tasks, taskID)
	if err != nil {
		return err
	}
	if task.Status == ingestion.TaskFailed {
		return fmt.Errorf("batch ingestion failed: %s", task.Error)
	}

	out, err := json.MarshalIndent(task.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode batch result; %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// waitForTask polls until the task terminates or the context is
// cancelled.
func waitForTask(ctx context.Context, tasks *ingestion.TaskManager, id string) (ingestion.Task, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		task, err := tasks.Get(id)
		if err != nil {
			return ingestion.Task{}, err
		}
		if task.Status == ingestion.TaskCompleted || task.Status == ingestion.TaskFailed {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return ingestion.Task{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseBuckets(names []string) ([]bucket.Bucket, error) {
	var out []bucket.Bucket
	for _, name := range names {
		b, err := bucket.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
