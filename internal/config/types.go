package config

import "os"

// Config is the root configuration structure for the application.
type Config struct {
	LogLevel   string            `yaml:"log_level" mapstructure:"log_level"`
	LogFile    string            `yaml:"log_file" mapstructure:"log_file"`
	Extractor  ExtractorConfig   `yaml:"extractor" mapstructure:"extractor"`
	LLM        LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embedder   EmbedderConfig    `yaml:"embedder" mapstructure:"embedder"`
	Vector     VectorConfig      `yaml:"vector" mapstructure:"vector"`
	Graph      GraphConfig       `yaml:"graph" mapstructure:"graph"`
	Redis      RedisConfig       `yaml:"redis" mapstructure:"redis"`
	Objects    ObjectStoreConfig `yaml:"objects" mapstructure:"objects"`
	Ingestion  IngestionConfig   `yaml:"ingestion" mapstructure:"ingestion"`
	STP        STPConfig         `yaml:"stp" mapstructure:"stp"`
	Retrieval  RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Session    SessionConfig     `yaml:"session" mapstructure:"session"`
	Evaluation EvaluationConfig  `yaml:"evaluation" mapstructure:"evaluation"`
	Metrics    MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	ListenAddr             string `yaml:"listen_addr" mapstructure:"listen_addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// ExtractorConfig holds the document extraction service configuration.
type ExtractorConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LLMConfig holds the chat-completion endpoint configuration. The endpoint
// is OpenAI-compatible; APIKeyEnv names the environment variable holding
// the key.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Model          string  `yaml:"model" mapstructure:"model"`
	APIKey         *string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyEnv      string  `yaml:"api_key_env" mapstructure:"api_key_env"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RateLimit      int     `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ResolveAPIKey returns the API key from config or falls back to environment variable.
func (c *LLMConfig) ResolveAPIKey() string {
	if c.APIKey != nil && *c.APIKey != "" {
		return *c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// EmbedderConfig holds the embedding service configuration. Three model
// selectors are exposed; the stp selector is consulted only when the STP
// pipeline is enabled.
type EmbedderConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	ChunkModel        string `yaml:"chunk_model" mapstructure:"chunk_model"`
	ChunkDimensions   int    `yaml:"chunk_dimensions" mapstructure:"chunk_dimensions"`
	SummaryModel      string `yaml:"summary_model" mapstructure:"summary_model"`
	SummaryDimensions int    `yaml:"summary_dimensions" mapstructure:"summary_dimensions"`
	STPModel          string `yaml:"stp_model" mapstructure:"stp_model"`
	STPDimensions     int    `yaml:"stp_dimensions" mapstructure:"stp_dimensions"`
	BatchSize         int    `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// VectorConfig holds vector store configuration. ChunksPath and
// SummariesPath are the two logical databases; STPPath backs the separate
// social-tipping-point store.
type VectorConfig struct {
	ChunksPath           string `yaml:"chunks_path" mapstructure:"chunks_path"`
	SummariesPath        string `yaml:"summaries_path" mapstructure:"summaries_path"`
	STPPath              string `yaml:"stp_path" mapstructure:"stp_path"`
	SearchTimeoutSeconds int    `yaml:"search_timeout_seconds" mapstructure:"search_timeout_seconds"`
}

// GraphConfig holds graph store configuration.
type GraphConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Path         string `yaml:"path" mapstructure:"path"`
	ArtifactsDir string `yaml:"artifacts_dir" mapstructure:"artifacts_dir"`
	IndexerURL   string `yaml:"indexer_url" mapstructure:"indexer_url"`
	MaxNodes     int    `yaml:"max_nodes" mapstructure:"max_nodes"`
	MaxEdges     int    `yaml:"max_edges" mapstructure:"max_edges"`
}

// RedisConfig holds the connection settings shared by the status tracker
// and the session store.
type RedisConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	DB          int    `yaml:"db" mapstructure:"db"`
	PasswordEnv string `yaml:"password_env" mapstructure:"password_env"`
}

// ResolvePassword returns the redis password from the environment.
func (c *RedisConfig) ResolvePassword() string {
	return os.Getenv(c.PasswordEnv)
}

// ObjectStoreConfig holds the S3-compatible document store settings.
// The reference deployment is MinIO, hence path-style addressing.
type ObjectStoreConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	Region       string `yaml:"region" mapstructure:"region"`
	AccessKeyEnv string `yaml:"access_key_env" mapstructure:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env" mapstructure:"secret_key_env"`
	UsePathStyle bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// ResolveAccessKey returns the object store access key from the environment.
func (c *ObjectStoreConfig) ResolveAccessKey() string {
	return os.Getenv(c.AccessKeyEnv)
}

// ResolveSecretKey returns the object store secret key from the environment.
func (c *ObjectStoreConfig) ResolveSecretKey() string {
	return os.Getenv(c.SecretKeyEnv)
}

// IngestionConfig holds pipeline driver configuration.
type IngestionConfig struct {
	WorkerCount           int `yaml:"worker_count" mapstructure:"worker_count"`
	BatchConcurrency      int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	MaxDocumentsPerBucket int `yaml:"max_documents_per_bucket" mapstructure:"max_documents_per_bucket"`
	TaskRetentionHours    int `yaml:"task_retention_hours" mapstructure:"task_retention_hours"`
}

// STPConfig holds social-tipping-point pipeline configuration.
type STPConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	ClassifierURL     string  `yaml:"classifier_url" mapstructure:"classifier_url"`
	BoundaryURL       string  `yaml:"boundary_url" mapstructure:"boundary_url"`
	BoundaryThreshold float64 `yaml:"boundary_threshold" mapstructure:"boundary_threshold"`
	MinTokens         int     `yaml:"min_tokens" mapstructure:"min_tokens"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TargetTokens      int     `yaml:"target_tokens" mapstructure:"target_tokens"`
	RephraseBatch     int     `yaml:"rephrase_batch" mapstructure:"rephrase_batch"`
	InsertBatch       int     `yaml:"insert_batch" mapstructure:"insert_batch"`
}

// RetrievalConfig holds query-path configuration.
type RetrievalConfig struct {
	MaxResponseSeconds     int     `yaml:"max_response_seconds" mapstructure:"max_response_seconds"`
	SourceTimeoutSeconds   int     `yaml:"source_timeout_seconds" mapstructure:"source_timeout_seconds"`
	TopKChunks             int     `yaml:"top_k_chunks" mapstructure:"top_k_chunks"`
	TopKSummaries          int     `yaml:"top_k_summaries" mapstructure:"top_k_summaries"`
	TopKRerank             int     `yaml:"top_k_rerank" mapstructure:"top_k_rerank"`
	RerankCutoffStart      int     `yaml:"rerank_cutoff_start" mapstructure:"rerank_cutoff_start"`
	RerankCutoffContinue   int     `yaml:"rerank_cutoff_continue" mapstructure:"rerank_cutoff_continue"`
	RerankerURL            string  `yaml:"reranker_url" mapstructure:"reranker_url"`
	GraphSearchURL         string  `yaml:"graph_search_url" mapstructure:"graph_search_url"`
	GraphMinSimilarity     float64 `yaml:"graph_min_similarity" mapstructure:"graph_min_similarity"`
	GraphInContextBoost    float64 `yaml:"graph_in_context_boost" mapstructure:"graph_in_context_boost"`
	SummaryMinScore        float64 `yaml:"summary_min_score" mapstructure:"summary_min_score"`
	ContextCharBudget      int     `yaml:"context_char_budget" mapstructure:"context_char_budget"`
	HistoryWindow          int     `yaml:"history_window" mapstructure:"history_window"`
	TippingPointURL        string  `yaml:"tipping_point_url" mapstructure:"tipping_point_url"`
	TippingPointMaxChars   int     `yaml:"tipping_point_max_chars" mapstructure:"tipping_point_max_chars"`
	TippingPointTimeoutSec int     `yaml:"tipping_point_timeout_seconds" mapstructure:"tipping_point_timeout_seconds"`
}

// SessionConfig holds conversational session store configuration.
type SessionConfig struct {
	TTLMinutes  int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxMessages int `yaml:"max_messages" mapstructure:"max_messages"`
}

// MetricsConfig holds Prometheus exposure configuration.
type MetricsConfig struct {
	Enabled                bool   `yaml:"enabled" mapstructure:"enabled"`
	ListenAddr             string `yaml:"listen_addr" mapstructure:"listen_addr"`
	CollectIntervalSeconds int    `yaml:"collect_interval_seconds" mapstructure:"collect_interval_seconds"`
}

// EvaluationConfig holds async response-quality evaluation configuration.
type EvaluationConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	SampleRate      float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
	QueueCapacity   int     `yaml:"queue_capacity" mapstructure:"queue_capacity"`
	IntervalSeconds int     `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	BatchSize       int     `yaml:"batch_size" mapstructure:"batch_size"`

	// AlertThreshold is the shared floor; AlertThresholds overrides it
	// per metric name.
	AlertThreshold  float64            `yaml:"alert_threshold" mapstructure:"alert_threshold"`
	AlertThresholds map[string]float64 `yaml:"alert_thresholds" mapstructure:"alert_thresholds"`
}

// MetricAlertThreshold returns the alert floor for one metric, falling
// back to the shared threshold.
func (c EvaluationConfig) MetricAlertThreshold(metric string) float64 {
	if v, ok := c.AlertThresholds[metric]; ok {
		return v
	}
	return c.AlertThreshold
}
