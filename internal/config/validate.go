package config

import (
	"fmt"
	"strings"
)

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for invalid or inconsistent values.
func Validate(cfg *Config) error {
	var problems []string

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		problems = append(problems, fmt.Sprintf("log_level must be one of debug/info/warn/error, got %q", cfg.LogLevel))
	}

	if cfg.Embedder.ChunkDimensions <= 0 {
		problems = append(problems, "embedder.chunk_dimensions must be positive")
	}
	if cfg.Embedder.SummaryDimensions <= 0 {
		problems = append(problems, "embedder.summary_dimensions must be positive")
	}
	if cfg.STP.Enabled && cfg.Embedder.STPDimensions <= 0 {
		problems = append(problems, "embedder.stp_dimensions must be positive when stp is enabled")
	}
	if cfg.Embedder.BatchSize <= 0 {
		problems = append(problems, "embedder.batch_size must be positive")
	}

	if cfg.Ingestion.WorkerCount <= 0 {
		problems = append(problems, "ingestion.worker_count must be positive")
	}
	if cfg.Ingestion.BatchConcurrency <= 0 {
		problems = append(problems, "ingestion.batch_concurrency must be positive")
	}

	if cfg.STP.MinTokens <= 0 || cfg.STP.MaxTokens <= cfg.STP.MinTokens {
		problems = append(problems, "stp token bounds require 0 < min_tokens < max_tokens")
	}
	if cfg.STP.TargetTokens < cfg.STP.MinTokens || cfg.STP.TargetTokens > cfg.STP.MaxTokens {
		problems = append(problems, "stp.target_tokens must lie within [min_tokens, max_tokens]")
	}
	if cfg.STP.BoundaryThreshold < 0 || cfg.STP.BoundaryThreshold > 1 {
		problems = append(problems, "stp.boundary_threshold must be in [0, 1]")
	}

	if cfg.Retrieval.MaxResponseSeconds <= 0 {
		problems = append(problems, "retrieval.max_response_seconds must be positive")
	}
	if cfg.Retrieval.SourceTimeoutSeconds <= 0 {
		problems = append(problems, "retrieval.source_timeout_seconds must be positive")
	}
	if cfg.Retrieval.GraphMinSimilarity < 0 || cfg.Retrieval.GraphMinSimilarity > 1 {
		problems = append(problems, "retrieval.graph_min_similarity must be in [0, 1]")
	}
	if cfg.Retrieval.TopKRerank <= 0 {
		problems = append(problems, "retrieval.top_k_rerank must be positive")
	}

	if cfg.Evaluation.SampleRate < 0 || cfg.Evaluation.SampleRate > 1 {
		problems = append(problems, "evaluation.sample_rate must be in [0, 1]")
	}
	if cfg.Evaluation.QueueCapacity <= 0 {
		problems = append(problems, "evaluation.queue_capacity must be positive")
	}

	if cfg.Session.MaxMessages <= 0 {
		problems = append(problems, "session.max_messages must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
