package config

// Default configuration values. Timeouts configured in minutes at the
// boundary are converted to seconds here.
const (
	DefaultLogLevel = "info"
	DefaultLogFile  = "neuroclimabot.log"

	DefaultExtractorEndpoint = "http://localhost:8500/general/v0/general"
	DefaultExtractorTimeout  = 300

	DefaultLLMBaseURL   = "http://localhost:8000/v1"
	DefaultLLMModel     = "meta-llama/Llama-3.1-8B-Instruct"
	DefaultLLMAPIKeyEnv = "NEUROCLIMA_LLM_API_KEY"
	DefaultLLMTimeout   = 120
	DefaultLLMRateLimit = 120

	DefaultEmbedderBaseURL    = "http://localhost:8080/v1"
	DefaultChunkModel         = "BAAI/bge-large-en-v1.5"
	DefaultChunkDimensions    = 1024
	DefaultSummaryModel       = "BAAI/bge-base-en-v1.5"
	DefaultSummaryDimensions  = 768
	DefaultSTPModel           = "all-MiniLM-L6-v2"
	DefaultSTPDimensions      = 384
	DefaultEmbedderBatchSize  = 32
	DefaultEmbedderTimeout    = 60
	DefaultVectorSearchTimout = 10

	DefaultChunksDBPath    = "data/chunks_database.db"
	DefaultSummariesDBPath = "data/summaries_database.db"
	DefaultSTPDBPath       = "data/stp_database.db"

	DefaultGraphEnabled  = true
	DefaultGraphPath     = "data/graph.db"
	DefaultArtifactsDir  = "data/graphrag/output"
	DefaultIndexerURL    = "http://localhost:8010"
	DefaultGraphMaxNodes = 200
	DefaultGraphMaxEdges = 400

	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisDB          = 0
	DefaultRedisPasswordEnv = "NEUROCLIMA_REDIS_PASSWORD"

	DefaultIngestWorkers       = 3
	DefaultBatchConcurrency    = 3
	DefaultMaxDocsPerBucket    = 0 // unlimited
	DefaultTaskRetentionHours  = 24
	DefaultSTPEnabled          = true
	DefaultClassifierURL       = "http://localhost:8020/classify"
	DefaultBoundaryURL         = "http://localhost:8020/boundary"
	DefaultBoundaryThreshold   = 0.6
	DefaultSTPMinTokens        = 200
	DefaultSTPMaxTokens        = 1500
	DefaultSTPTargetTokens     = 800
	DefaultSTPRephraseBatch    = 5
	DefaultSTPInsertBatch      = 32
	DefaultMaxResponseSeconds  = 60
	DefaultSourceTimeout       = 15
	DefaultTopKChunks          = 10
	DefaultTopKSummaries       = 3
	DefaultTopKRerank          = 5
	DefaultRerankCutoffStart   = 5
	DefaultRerankCutoffCont    = 6
	DefaultRerankerURL         = "http://localhost:8030/rerank"
	DefaultGraphSearchURL      = "http://localhost:8010/graphrag/local-search"
	DefaultGraphMinSimilarity  = 0.35
	DefaultGraphInContextBoost = 1.1
	DefaultSummaryMinScore     = 0.4
	DefaultContextCharBudget   = 12000
	DefaultHistoryWindow       = 6
	DefaultTippingPointURL     = "http://localhost:8040/lookup"
	DefaultTPMaxChars          = 500
	DefaultTPTimeout           = 10

	DefaultSessionTTLMinutes  = 120
	DefaultSessionMaxMessages = 50

	DefaultEvalEnabled        = true
	DefaultEvalSampleRate     = 1.0
	DefaultEvalQueueCapacity  = 1000
	DefaultEvalInterval       = 30
	DefaultEvalBatchSize      = 5
	DefaultEvalAlertThreshold = 0.5

	DefaultMetricsEnabled         = false
	DefaultMetricsListenAddr      = "localhost:9464"
	DefaultMetricsCollectInterval = 15

	DefaultServerListenAddr      = "localhost:8080"
	DefaultServerShutdownTimeout = 15

	DefaultObjectsEnabled      = false
	DefaultObjectsEndpoint     = "http://localhost:9000"
	DefaultObjectsRegion       = "us-east-1"
	DefaultObjectsAccessKeyEnv = "NEUROCLIMA_OBJECTS_ACCESS_KEY"
	DefaultObjectsSecretKeyEnv = "NEUROCLIMA_OBJECTS_SECRET_KEY"
	DefaultObjectsPathStyle    = true
)
