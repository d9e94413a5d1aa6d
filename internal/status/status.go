// Package status tracks per-(document, bucket) ingestion progress in
// Redis: one boolean and a set of counts per pipeline stage. "Fully
// processed" is always judged against the stage set the caller asks
// about, not a fixed list.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// Stage identifies one ingestion sub-pipeline.
type Stage string

const (
	StageChunks   Stage = "chunks"
	StageSummary  Stage = "summary"
	StageGraphRAG Stage = "graphrag"
	StageSTP      Stage = "stp"
)

// AllStages lists every stage in pipeline order.
func AllStages() []Stage {
	return []Stage{StageChunks, StageSummary, StageGraphRAG, StageSTP}
}

// Status is the processing record for one (document, bucket) pair.
type Status struct {
	DocIdent  string         `json:"doc_ident"`
	Bucket    bucket.Bucket  `json:"bucket"`
	Done      map[Stage]bool `json:"done"`
	Counts    map[string]int `json:"counts"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsDone reports whether one stage completed.
func (s *Status) IsDone(stage Stage) bool {
	return s.Done[stage]
}

// IsFullyProcessed reports whether every requested stage completed.
// An empty stage set is trivially complete.
func (s *Status) IsFullyProcessed(stages []Stage) bool {
	for _, stage := range stages {
		if !s.Done[stage] {
			return false
		}
	}
	return true
}

// Tracker persists statuses in Redis hashes.
type Tracker struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a tracker from the shared Redis configuration.
func New(cfg config.RedisConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.ResolvePassword(),
	})
	return &Tracker{rdb: rdb, logger: logger}
}

// NewWithClient wraps an existing Redis client. Used by tests and by
// callers that share one connection pool.
func NewWithClient(rdb *redis.Client, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{rdb: rdb, logger: logger}
}

// Close releases the Redis connection.
func (t *Tracker) Close() error {
	return t.rdb.Close()
}

// Ping verifies the Redis connection.
func (t *Tracker) Ping(ctx context.Context) error {
	if err := t.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("status store unreachable; %w", err)
	}
	return nil
}

func statusKey(b bucket.Bucket, docIdent string) string {
	return fmt.Sprintf("neuroclimabot:status:%s:%s", b, docIdent)
}

// MarkDone records a stage as complete with its counts. Re-marking a
// completed stage refreshes the counts and timestamp; it never unsets
// other stages.
func (t *Tracker) MarkDone(ctx context.Context, stage Stage, docIdent string, b bucket.Bucket, counts map[string]int) error {
	fields := map[string]any{
		string(stage) + "_done": "1",
		"updated_at":            time.Now().UTC().Format(time.RFC3339),
	}
	for name, count := range counts {
		fields[name] = strconv.Itoa(count)
	}

	if err := t.rdb.HSet(ctx, statusKey(b, docIdent), fields).Err(); err != nil {
		return fmt.Errorf("failed to mark %s done for %s; %w", stage, docIdent, err)
	}

	t.logger.Debug("stage marked done",
		"stage", stage,
		"doc", docIdent,
		"bucket", b,
		"counts", counts)
	return nil
}

// GetStatus loads the processing record for a document. A document with
// no record yields an empty status, not an error.
func (t *Tracker) GetStatus(ctx context.Context, docIdent string, b bucket.Bucket) (*Status, error) {
	fields, err := t.rdb.HGetAll(ctx, statusKey(b, docIdent)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load status for %s; %w", docIdent, err)
	}

	st := &Status{
		DocIdent: docIdent,
		Bucket:   b,
		Done:     make(map[Stage]bool, len(AllStages())),
		Counts:   make(map[string]int),
	}
	for _, stage := range AllStages() {
		st.Done[stage] = fields[string(stage)+"_done"] == "1"
	}
	for name, value := range fields {
		if name == "updated_at" {
			if ts, perr := time.Parse(time.RFC3339, value); perr == nil {
				st.UpdatedAt = ts
			}
			continue
		}
		if isDoneField(name) {
			continue
		}
		if n, perr := strconv.Atoi(value); perr == nil {
			st.Counts[name] = n
		}
	}
	return st, nil
}

// IsFullyProcessed loads the status and checks it against the requested
// stage set.
func (t *Tracker) IsFullyProcessed(ctx context.Context, docIdent string, b bucket.Bucket, stages []Stage) (bool, error) {
	st, err := t.GetStatus(ctx, docIdent, b)
	if err != nil {
		return false, err
	}
	return st.IsFullyProcessed(stages), nil
}

func isDoneField(name string) bool {
	for _, stage := range AllStages() {
		if name == string(stage)+"_done" {
			return true
		}
	}
	return false
}
