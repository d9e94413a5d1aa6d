package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and returns the typed configuration.
// It searches for configuration files in priority order:
//  1. Directory specified by NEUROCLIMA_CONFIG_DIR environment variable
//  2. ~/.config/neuroclimabot/
//  3. Current working directory (.)
//
// If no config file is found, defaults plus environment overrides are used.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Setup environment variable support
	v.SetEnvPrefix("NEUROCLIMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register default values
	setViperDefaults(v)

	// Add config paths in priority order
	if envPath := os.Getenv("NEUROCLIMA_CONFIG_DIR"); envPath != "" {
		v.AddConfigPath(envPath)
	}

	if home := os.Getenv("HOME"); home != "" {
		v.AddConfigPath(filepath.Join(home, ".config", "neuroclimabot"))
	}

	v.AddConfigPath(".")

	// Read config file; absence is not an error since every key has a default
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config; %w", err)
		}
	}

	return unmarshalConfig(v)
}

// LoadFromPath reads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("NEUROCLIMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from %s; %w", path, err)
	}

	return unmarshalConfig(v)
}

// LoadWithDefaults returns configuration using defaults only.
func LoadWithDefaults() *Config {
	v := viper.New()
	setViperDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		// Defaults always unmarshal; this is unreachable with a valid schema.
		panic(fmt.Sprintf("default config failed to unmarshal: %v", err))
	}
	return cfg
}

// unmarshalConfig converts viper config to typed Config struct.
func unmarshalConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config; %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setViperDefaults registers all default configuration values with a viper instance.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", DefaultLogFile)

	v.SetDefault("extractor.endpoint", DefaultExtractorEndpoint)
	v.SetDefault("extractor.timeout_seconds", DefaultExtractorTimeout)

	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.api_key_env", DefaultLLMAPIKeyEnv)
	v.SetDefault("llm.timeout_seconds", DefaultLLMTimeout)
	v.SetDefault("llm.rate_limit", DefaultLLMRateLimit)

	v.SetDefault("embedder.base_url", DefaultEmbedderBaseURL)
	v.SetDefault("embedder.chunk_model", DefaultChunkModel)
	v.SetDefault("embedder.chunk_dimensions", DefaultChunkDimensions)
	v.SetDefault("embedder.summary_model", DefaultSummaryModel)
	v.SetDefault("embedder.summary_dimensions", DefaultSummaryDimensions)
	v.SetDefault("embedder.stp_model", DefaultSTPModel)
	v.SetDefault("embedder.stp_dimensions", DefaultSTPDimensions)
	v.SetDefault("embedder.batch_size", DefaultEmbedderBatchSize)
	v.SetDefault("embedder.timeout_seconds", DefaultEmbedderTimeout)

	v.SetDefault("vector.chunks_path", DefaultChunksDBPath)
	v.SetDefault("vector.summaries_path", DefaultSummariesDBPath)
	v.SetDefault("vector.stp_path", DefaultSTPDBPath)
	v.SetDefault("vector.search_timeout_seconds", DefaultVectorSearchTimout)

	v.SetDefault("graph.enabled", DefaultGraphEnabled)
	v.SetDefault("graph.path", DefaultGraphPath)
	v.SetDefault("graph.artifacts_dir", DefaultArtifactsDir)
	v.SetDefault("graph.indexer_url", DefaultIndexerURL)
	v.SetDefault("graph.max_nodes", DefaultGraphMaxNodes)
	v.SetDefault("graph.max_edges", DefaultGraphMaxEdges)

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.db", DefaultRedisDB)
	v.SetDefault("redis.password_env", DefaultRedisPasswordEnv)

	v.SetDefault("ingestion.worker_count", DefaultIngestWorkers)
	v.SetDefault("ingestion.batch_concurrency", DefaultBatchConcurrency)
	v.SetDefault("ingestion.max_documents_per_bucket", DefaultMaxDocsPerBucket)
	v.SetDefault("ingestion.task_retention_hours", DefaultTaskRetentionHours)

	v.SetDefault("stp.enabled", DefaultSTPEnabled)
	v.SetDefault("stp.classifier_url", DefaultClassifierURL)
	v.SetDefault("stp.boundary_url", DefaultBoundaryURL)
	v.SetDefault("stp.boundary_threshold", DefaultBoundaryThreshold)
	v.SetDefault("stp.min_tokens", DefaultSTPMinTokens)
	v.SetDefault("stp.max_tokens", DefaultSTPMaxTokens)
	v.SetDefault("stp.target_tokens", DefaultSTPTargetTokens)
	v.SetDefault("stp.rephrase_batch", DefaultSTPRephraseBatch)
	v.SetDefault("stp.insert_batch", DefaultSTPInsertBatch)

	v.SetDefault("retrieval.max_response_seconds", DefaultMaxResponseSeconds)
	v.SetDefault("retrieval.source_timeout_seconds", DefaultSourceTimeout)
	v.SetDefault("retrieval.top_k_chunks", DefaultTopKChunks)
	v.SetDefault("retrieval.top_k_summaries", DefaultTopKSummaries)
	v.SetDefault("retrieval.top_k_rerank", DefaultTopKRerank)
	v.SetDefault("retrieval.rerank_cutoff_start", DefaultRerankCutoffStart)
	v.SetDefault("retrieval.rerank_cutoff_continue", DefaultRerankCutoffCont)
	v.SetDefault("retrieval.reranker_url", DefaultRerankerURL)
	v.SetDefault("retrieval.graph_search_url", DefaultGraphSearchURL)
	v.SetDefault("retrieval.graph_min_similarity", DefaultGraphMinSimilarity)
	v.SetDefault("retrieval.graph_in_context_boost", DefaultGraphInContextBoost)
	v.SetDefault("retrieval.summary_min_score", DefaultSummaryMinScore)
	v.SetDefault("retrieval.context_char_budget", DefaultContextCharBudget)
	v.SetDefault("retrieval.history_window", DefaultHistoryWindow)
	v.SetDefault("retrieval.tipping_point_url", DefaultTippingPointURL)
	v.SetDefault("retrieval.tipping_point_max_chars", DefaultTPMaxChars)
	v.SetDefault("retrieval.tipping_point_timeout_seconds", DefaultTPTimeout)

	v.SetDefault("session.ttl_minutes", DefaultSessionTTLMinutes)
	v.SetDefault("session.max_messages", DefaultSessionMaxMessages)

	v.SetDefault("evaluation.enabled", DefaultEvalEnabled)
	v.SetDefault("evaluation.sample_rate", DefaultEvalSampleRate)
	v.SetDefault("evaluation.queue_capacity", DefaultEvalQueueCapacity)
	v.SetDefault("evaluation.interval_seconds", DefaultEvalInterval)
	v.SetDefault("evaluation.batch_size", DefaultEvalBatchSize)
	v.SetDefault("evaluation.alert_threshold", DefaultEvalAlertThreshold)

	v.SetDefault("metrics.enabled", DefaultMetricsEnabled)
	v.SetDefault("metrics.listen_addr", DefaultMetricsListenAddr)
	v.SetDefault("metrics.collect_interval_seconds", DefaultMetricsCollectInterval)

	v.SetDefault("server.listen_addr", DefaultServerListenAddr)
	v.SetDefault("server.shutdown_timeout_seconds", DefaultServerShutdownTimeout)

	v.SetDefault("objects.enabled", DefaultObjectsEnabled)
	v.SetDefault("objects.endpoint", DefaultObjectsEndpoint)
	v.SetDefault("objects.region", DefaultObjectsRegion)
	v.SetDefault("objects.access_key_env", DefaultObjectsAccessKeyEnv)
	v.SetDefault("objects.secret_key_env", DefaultObjectsSecretKeyEnv)
	v.SetDefault("objects.use_path_style", DefaultObjectsPathStyle)
}
