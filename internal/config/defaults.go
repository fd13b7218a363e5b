package config

// Defaults for values the service cannot run without.
const (
	DefaultChunkSize           = 1000
	DefaultChunkOverlap        = 200
	DefaultSemanticMinSize     = 100
	DefaultSemanticMaxSize     = 1500
	DefaultSimilarityThreshold = 0.7
	DefaultMinTextLength       = 50
	DefaultTopK                = 3
	DefaultMaxK                = 50
	DefaultHybridWeight        = 0.7
	DefaultEmbeddingModel      = "text-embedding-3-large"
	DefaultEmbeddingDimensions = 3072
	DefaultGenerationModel     = "gpt-4.1-mini"
	DefaultTemperature         = 0.1
	DefaultHistoryMessages     = 8
	DefaultMaxUploadBytes      = 20 * 1024 * 1024
)

// Default returns a config with every default applied, for running without a config file.
// Relative paths stay relative to the working directory.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "./uploads"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/yomu.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./data/collections"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultEmbeddingDimensions
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultGenerationModel
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = DefaultTemperature
	}
	if cfg.Generation.HistoryMessages == 0 {
		cfg.Generation.HistoryMessages = DefaultHistoryMessages
	}
	if cfg.Extraction.MinTextLength == 0 {
		cfg.Extraction.MinTextLength = DefaultMinTextLength
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = DefaultChunkSize
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Chunking.SemanticMinSize == 0 {
		cfg.Chunking.SemanticMinSize = DefaultSemanticMinSize
	}
	if cfg.Chunking.SemanticMaxSize == 0 {
		cfg.Chunking.SemanticMaxSize = DefaultSemanticMaxSize
	}
	if cfg.Chunking.SimilarityThreshold == 0 {
		cfg.Chunking.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = DefaultMaxK
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
