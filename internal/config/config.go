// Package config provides configuration loading and structs for the yomu service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server and upload settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	UploadDir      string   `yaml:"upload_dir"`
}

// StorageConfig holds paths for the document ledger and the persisted semantic indexes.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	BaseURL           string  `yaml:"base_url"`
	CacheSize         int     `yaml:"cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	ModelPath         string  `yaml:"model_path"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// GenerationConfig holds answer-generation settings.
type GenerationConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	HistoryMessages int     `yaml:"history_messages"`
}

// ExtractionConfig toggles the best-effort page extraction steps.
type ExtractionConfig struct {
	HeadersFooters *bool `yaml:"extract_headers_footers"`
	Tables         *bool `yaml:"extract_tables"`
	Images         *bool `yaml:"extract_images"`
	MinTextLength  int   `yaml:"min_text_length"`
}

// HeadersFootersOrDefault returns whether to strip running headers and footers; defaults to true when unset.
func (e *ExtractionConfig) HeadersFootersOrDefault() bool {
	return boolOr(e.HeadersFooters, true)
}

// TablesOrDefault returns whether to detect tables; defaults to true when unset.
func (e *ExtractionConfig) TablesOrDefault() bool {
	return boolOr(e.Tables, true)
}

// ImagesOrDefault returns whether to detect images; defaults to true when unset.
func (e *ExtractionConfig) ImagesOrDefault() bool {
	return boolOr(e.Images, true)
}

// ChunkingConfig holds fixed-window and semantic segmentation settings.
type ChunkingConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	Semantic            *bool   `yaml:"semantic"`
	SemanticMinSize     int     `yaml:"semantic_min_size"`
	SemanticMaxSize     int     `yaml:"semantic_max_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// SemanticOrDefault returns whether semantic segmentation is enabled; defaults to true when unset.
func (c *ChunkingConfig) SemanticOrDefault() bool {
	return boolOr(c.Semantic, true)
}

// RetrievalConfig holds query settings.
type RetrievalConfig struct {
	TopK         int      `yaml:"top_k"`
	MaxK         int      `yaml:"max_k"`
	HybridWeight *float64 `yaml:"hybrid_weight"`
	Fuzzy        bool     `yaml:"fuzzy"`
}

// HybridWeightOrDefault returns the semantic share of the fused ranking; defaults to 0.7 when unset.
func (r *RetrievalConfig) HybridWeightOrDefault() float64 {
	if r.HybridWeight != nil {
		return *r.HybridWeight
	}
	return DefaultHybridWeight
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	return boolOr(w.Recursive, true)
}

func boolOr(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if the values are inconsistent.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Server.UploadDir = expandPath(cfg.Server.UploadDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks that chunking and retrieval values are consistent.
func (c *Config) Validate() error {
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.SemanticMinSize > c.Chunking.SemanticMaxSize {
		return fmt.Errorf("chunking.semantic_min_size (%d) exceeds semantic_max_size (%d)",
			c.Chunking.SemanticMinSize, c.Chunking.SemanticMaxSize)
	}
	if w := c.Retrieval.HybridWeightOrDefault(); w < 0 || w > 1 {
		return fmt.Errorf("retrieval.hybrid_weight must be within [0, 1], got %g", w)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
