package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"third quarter revenue", "-k", "5"},
			expected: []string{"-k", "5", "third quarter revenue"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-document", "report.pdf", "revenue"},
			expected: []string{"-document", "report.pdf", "revenue"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"third quarter revenue"},
			expected: []string{"third quarter revenue"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"a.pdf", "b.pdf", "--format", "json"},
			expected: []string{"--format", "json", "a.pdf", "b.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"revenue"}, "revenue"},
		{"multiple words", []string{"revenue", "growth"}, "revenue growth"},
		{"single quoted phrase", []string{"revenue growth"}, "revenue growth"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %q, want %q", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 8080 {
		t.Errorf("cwd config not loaded: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: 9001
retrieval:
  top_k: 5
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved = %q, want %q", resolved, configPath)
	}
	if cfg.Server.Port != 9001 || cfg.Retrieval.TopK != 5 {
		t.Errorf("got port=%d top_k=%d", cfg.Server.Port, cfg.Retrieval.TopK)
	}
}

func TestLoadConfig_defaultsWhenNothingFound(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("system config present")
	}
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty", resolved)
	}
	if cfg.Retrieval.TopK != config.DefaultTopK {
		t.Errorf("TopK = %d, want %d", cfg.Retrieval.TopK, config.DefaultTopK)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestInitializeComponents(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("YOMU_TEST_KEY", "")
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "yomu.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "collections")
	cfg.Embedding.Provider = embedding.ProviderMock
	cfg.Embedding.Dimensions = 32
	cfg.Embedding.APIKeyEnv = "YOMU_TEST_KEY"

	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Chat != nil {
		t.Error("chat should be disabled without an API key")
	}
	if c.Registry == nil || c.Ingestor == nil || c.Extractor == nil || c.Ledger == nil {
		t.Fatal("components not wired")
	}
	if keys := c.Registry.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}
	if _, err := os.Stat(filepath.Dir(cfg.Storage.DatabasePath)); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
}

func TestInitializeComponents_chatEnabledWithKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("YOMU_TEST_KEY", "sk-test")
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "yomu.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "collections")
	cfg.Embedding.Provider = embedding.ProviderMock
	cfg.Embedding.Dimensions = 32
	cfg.Embedding.APIKeyEnv = "YOMU_TEST_KEY"

	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Chat == nil {
		t.Error("chat should be enabled when the API key is set")
	}
}

func TestInitializeComponents_withoutEmbeddingKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("YOMU_TEST_KEY", "")
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "yomu.db")
	cfg.Storage.IndexPath = filepath.Join(dir, "collections")
	cfg.Embedding.Provider = embedding.ProviderOpenAI
	cfg.Embedding.APIKeyEnv = "YOMU_TEST_KEY"

	c, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("startup should survive a missing embedding key: %v", err)
	}
	defer c.Close()

	if c.Embedder != nil {
		t.Errorf("Embedder = %T, want nil", c.Embedder)
	}
	if c.Registry == nil || c.Ingestor == nil {
		t.Fatal("components not wired")
	}
	_, err = c.Registry.Build(context.Background(), "notes.pdf", []models.RetrievableUnit{
		{ID: "u1", Content: "some text", Kind: models.KindText, Page: 1},
	})
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("Build error = %v, want ErrEmbeddingUnavailable", err)
	}
	if _, err := c.Registry.Query(context.Background(), "notes.pdf", "text", 3); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Query error = %v, want ErrNotFound", err)
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Query == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"collection not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(models.QueryResult{Query: req.Query, Collection: "doc"})
	}))
	defer srv.Close()

	var out models.QueryResult
	if err := postJSON(srv.URL, models.QueryRequest{Query: "revenue"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Query != "revenue" || out.Collection != "doc" {
		t.Errorf("got %+v", out)
	}

	err := postJSON(srv.URL, models.QueryRequest{Query: "missing"}, &out)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "collection not found") {
		t.Errorf("err = %v, want 404 with server message", err)
	}
}
