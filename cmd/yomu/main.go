// Package main is the yomu CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/chat"
	"github.com/hyperjump/yomu/internal/cli"
	"github.com/hyperjump/yomu/internal/collection"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/export"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/keyword"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/segment"
	"github.com/hyperjump/yomu/internal/server"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/watcher"
	"github.com/hyperjump/yomu/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/yomu/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present; when neither exists the built-in defaults are used
// and the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "ingest":
		err = runIngest(args)
	case "query":
		err = runQuery(args)
	case "ask":
		err = runAsk(args)
	case "collections":
		err = runCollections(args)
	case "tables":
		err = runTables(args)
	case "version", "--version", "-v":
		fmt.Printf("yomu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Components holds the wired service graph.
type Components struct {
	Ledger    storage.Storage
	Embedder  embedding.Embedder
	Registry  *collection.Registry
	Extractor *extract.PageExtractor
	Ingestor  *indexer.Ingestor
	Chat      *chat.Service // nil when no generator is configured
}

// Close releases every component.
func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Ledger: ledger}

	// Without an embedder, existing collections still answer lexically.
	if emb, err := embedding.NewFromConfig(&cfg.Embedding, logger); err != nil {
		logger.Warn("embeddings unavailable; ingestion disabled and queries fall back to keyword search", zap.Error(err))
	} else {
		c.Embedder = emb
	}

	c.Registry = collection.NewRegistry(cfg.Storage.IndexPath, c.Embedder,
		collection.WithSemanticWeight(cfg.Retrieval.HybridWeightOrDefault()),
		collection.WithSearchOptions(&keyword.SearchOptions{
			TitleBoost:   2.0,
			PhraseBoost:  1.5,
			FuzzyEnabled: cfg.Retrieval.Fuzzy,
			Fuzziness:    1,
		}),
		collection.WithLogger(logger),
	)
	if _, err := c.Registry.Reload(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to reload collections: %w", err)
	}

	c.Extractor = extract.NewPageExtractor(
		extract.WithHeadersFooters(cfg.Extraction.HeadersFootersOrDefault()),
		extract.WithTables(cfg.Extraction.TablesOrDefault()),
		extract.WithImages(cfg.Extraction.ImagesOrDefault()),
		extract.WithMinTextLength(cfg.Extraction.MinTextLength),
		extract.WithLogger(logger),
	)

	ingestOpts := []indexer.IngestorOption{indexer.WithLedger(ledger), indexer.WithLogger(logger)}
	if cfg.Chunking.SemanticOrDefault() {
		ingestOpts = append(ingestOpts, indexer.WithSegmenter(segment.New(c.Embedder,
			segment.WithBounds(cfg.Chunking.SemanticMinSize, cfg.Chunking.SemanticMaxSize),
			segment.WithThreshold(cfg.Chunking.SimilarityThreshold),
			segment.WithWindow(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
			segment.WithLogger(logger),
		)))
	}
	c.Ingestor = indexer.NewIngestor(c.Extractor, c.Registry, ingestOpts...)

	if gen, err := newGenerator(cfg, logger); err != nil {
		logger.Warn("chat disabled", zap.Error(err))
	} else {
		c.Chat = chat.NewService(c.Registry, gen,
			chat.WithHistory(ledger, cfg.Generation.HistoryMessages),
			chat.WithTopK(cfg.Retrieval.TopK),
			chat.WithLogger(logger),
		)
	}
	return c, nil
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (chat.Generator, error) {
	apiKey := os.Getenv(cfg.Embedding.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.Embedding.APIKeyEnv)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.Embedding.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.Embedding.BaseURL))
	}
	return chat.NewOpenAIGenerator(cfg.Generation.Model, cfg.Generation.Temperature, reqOpts,
		chat.WithGeneratorLogger(logger))
}

// setup loads config, builds a logger and wires components for a one-shot command.
func setup(ctx context.Context, configPath string, debug bool) (*config.Config, *Components, *zap.Logger, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := utils.NewCommandLogger(cfg.Debug || debug)
	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, c, logger, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", debugMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ingestor := components.Ingestor
	inbox := watcher.NewInbox(func(ctx context.Context, path string) error {
		_, err := ingestor.IngestFile(ctx, path)
		return err
	}, watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()), watcher.WithLogger(logger))
	if err := inbox.Start(ctx, cfg.Watch.Directories...); err != nil {
		return fmt.Errorf("failed to start inbox: %w", err)
	}
	defer inbox.Stop()
	if err := inbox.SyncInBackground(); err != nil {
		return fmt.Errorf("failed to sync inbox: %w", err)
	}

	srv := server.NewServer(&cfg.Server, components.Registry, components.Ingestor,
		server.WithChat(components.Chat),
		server.WithLedger(components.Ledger),
		server.WithExtractor(components.Extractor),
		server.WithWatch(inbox, resolvedConfigPath, cfg),
		server.WithDiskPaths(cfg.Storage.DatabasePath, cfg.Storage.IndexPath, cfg.Server.UploadDir),
		server.WithQueryLimits(cfg.Retrieval.TopK, cfg.Retrieval.MaxK),
		server.WithLogger(logger),
	)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() == 0 {
		return errors.New("usage: yomu ingest [flags] <file.pdf|dir>...")
	}
	outFmt, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}

	ctx := context.Background()
	_, c, _, err := setup(ctx, *configPath, *debug)
	if err != nil {
		return err
	}
	defer c.Close()

	var results []*models.IngestResult
	var errs []error
	for _, p := range fs.Args() {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			rs, err := c.Ingestor.IngestDirectory(ctx, p)
			results = append(results, rs...)
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		r, err := c.Ingestor.IngestFile(ctx, p)
		if r != nil {
			results = append(results, r)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := cli.FormatIngestResults(os.Stdout, results, outFmt); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// buildQuery joins positional args so multi-word queries work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after the first positional argument to the
// front so flag.Parse sees them; the flag package stops at the first non-flag.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	document := fs.String("document", "", "document filename or collection key (default: first indexed)")
	k := fs.Int("k", 0, "number of results (default from config)")
	format := fs.String("format", "text", "output format: text or json")
	serverURL := fs.String("server", "", "query a running server at this URL instead of opening the index")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(args))

	q := buildQuery(fs.Args())
	if q == "" {
		return errors.New("usage: yomu query [flags] <query>")
	}
	outFmt, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}

	var res *models.QueryResult
	if *serverURL != "" {
		res = &models.QueryResult{}
		req := models.QueryRequest{Query: q, DocumentID: *document, K: *k}
		if err := postJSON(*serverURL+"/api/v1/query", req, res); err != nil {
			return err
		}
	} else {
		ctx := context.Background()
		cfg, c, _, err := setup(ctx, *configPath, *debug)
		if err != nil {
			return err
		}
		defer c.Close()
		req := models.QueryRequest{Query: q, DocumentID: *document, K: *k}
		if err := req.Validate(cfg.Retrieval.TopK, cfg.Retrieval.MaxK); err != nil {
			return err
		}
		res, err = c.Registry.Query(ctx, req.DocumentID, req.Query, req.K)
		if err != nil {
			return err
		}
	}
	return cli.FormatQueryResult(os.Stdout, res, outFmt)
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	document := fs.String("document", "", "document filename or collection key (default: first indexed)")
	session := fs.String("session", "", "session id to continue a conversation")
	format := fs.String("format", "text", "output format: text or json")
	serverURL := fs.String("server", "", "ask a running server at this URL")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(args))

	question := buildQuery(fs.Args())
	if question == "" {
		return errors.New("usage: yomu ask [flags] <question>")
	}
	outFmt, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}

	var data *models.ChatData
	if *serverURL != "" {
		var resp models.ChatResponse
		req := models.ChatRequest{Message: question, SessionID: *session, DocumentID: *document}
		if err := postJSON(*serverURL+"/chat", req, &resp); err != nil {
			return err
		}
		data = resp.Data
	} else {
		ctx := context.Background()
		_, c, _, err := setup(ctx, *configPath, *debug)
		if err != nil {
			return err
		}
		defer c.Close()
		if c.Chat == nil {
			return errors.New("chat is not configured: set the generation API key")
		}
		data, err = c.Chat.Ask(ctx, question, *session, *document)
		if err != nil {
			return err
		}
	}
	return cli.FormatChat(os.Stdout, data, outFmt)
}

func runCollections(args []string) error {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "text", "output format: text or json")
	limit := fs.Int("limit", 100, "maximum documents to list")
	_ = fs.Parse(args)
	outFmt, err := cli.ParseFormat(*format)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer ledger.Close()
	docs, err := ledger.ListDocuments(context.Background(), 0, *limit)
	if err != nil {
		return err
	}
	return cli.FormatDocuments(os.Stdout, docs, outFmt)
}

func runTables(args []string) error {
	fs := flag.NewFlagSet("tables", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("o", "", "output xlsx path (default: <file>.xlsx)")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() != 1 {
		return errors.New("usage: yomu tables [-o out.xlsx] <file.pdf>")
	}
	in := fs.Arg(0)
	if !indexer.IsPDF(in) {
		return fmt.Errorf("not a PDF: %s", in)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	extractor := extract.NewPageExtractor(
		extract.WithHeadersFooters(cfg.Extraction.HeadersFootersOrDefault()),
		extract.WithMinTextLength(cfg.Extraction.MinTextLength),
	)
	pages, err := extractor.ExtractDocument(context.Background(), data)
	if err != nil {
		return err
	}
	tables := export.Collect(pages)
	if len(tables) == 0 {
		fmt.Println("No tables detected.")
		return nil
	}
	dest := *out
	if dest == "" {
		dest = strings.TrimSuffix(in, filepath.Ext(in)) + ".xlsx"
	}
	if err := export.WriteTables(dest, tables); err != nil {
		return err
	}
	fmt.Printf("Wrote %d tables to %s\n", len(tables), dest)
	return nil
}

// postJSON posts body to url and decodes the JSON reply into out. Non-2xx replies
// are returned as errors carrying the server's message.
func postJSON(url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

func printUsage() {
	fmt.Println(`yomu - question answering over PDF documents

Usage:
  yomu server [flags]                 Start the HTTP server and inbox watcher
  yomu ingest [flags] <pdf|dir>...    Index PDF files
  yomu query [flags] <query>          Retrieve passages from an indexed document
  yomu ask [flags] <question>         Answer a question about an indexed document
  yomu collections [flags]            List indexed documents
  yomu tables [-o out.xlsx] <pdf>     Export detected tables to a workbook
  yomu version                        Show version
  yomu help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/yomu/config.yaml, or ./config.yaml)
  --format string    Output format: text or json (default: text)
  --debug            Enable debug logging

Query / Ask Flags:
  --document string  Document filename or collection key (default: first indexed)
  --k int            Number of passages (query only; default from config)
  --session string   Continue a conversation (ask only)
  --server string    Use a running server instead of opening the index directly

Examples:
  yomu ingest report.pdf ./papers
  yomu query --document report.pdf "third quarter revenue"
  yomu ask "How much did revenue grow?"
  yomu tables -o tables.xlsx report.pdf`)
}
