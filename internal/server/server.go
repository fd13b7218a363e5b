// Package server provides the HTTP API for yomu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/chat"
	"github.com/hyperjump/yomu/internal/collection"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/storage"
)

// WatchService manages inbox directories; *watcher.Inbox implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the yomu API.
type Server struct {
	config    *config.ServerConfig
	registry  *collection.Registry
	ingestor  *indexer.Ingestor
	chat      *chat.Service   // nil disables /chat
	ledger    storage.Storage // nil disables /api/v1/documents
	extractor *extract.PageExtractor
	watch     WatchService
	diskPaths []string
	topK      int
	maxK      int
	logger    *zap.Logger
	server    *http.Server

	// configPath and fullConfig persist inbox changes; both optional.
	configPath   string
	fullConfig   *config.Config
	fullConfigMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithChat enables the chat endpoint.
func WithChat(c *chat.Service) Option {
	return func(s *Server) { s.chat = c }
}

// WithLedger enables the document listing endpoint.
func WithLedger(l storage.Storage) Option {
	return func(s *Server) { s.ledger = l }
}

// WithExtractor enables table export over HTTP.
func WithExtractor(e *extract.PageExtractor) Option {
	return func(s *Server) { s.extractor = e }
}

// WithWatch enables the inbox directory endpoints. When configPath is set, directory
// changes are written back to the config file.
func WithWatch(w WatchService, configPath string, cfg *config.Config) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
		s.fullConfig = cfg
	}
}

// WithDiskPaths sets the paths whose size /health reports.
func WithDiskPaths(paths ...string) Option {
	return func(s *Server) { s.diskPaths = paths }
}

// WithQueryLimits sets the default and maximum k accepted by /api/v1/query.
func WithQueryLimits(topK, maxK int) Option {
	return func(s *Server) {
		if topK > 0 {
			s.topK = topK
		}
		if maxK > 0 {
			s.maxK = maxK
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server publishing uploads through ingestor into registry.
func NewServer(cfg *config.ServerConfig, registry *collection.Registry, ingestor *indexer.Ingestor, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		registry: registry,
		ingestor: ingestor,
		topK:     config.DefaultTopK,
		maxK:     config.DefaultMaxK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/upload-pdf", s.handleUpload)
	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(120 * time.Second))
		r.Post("/query", s.handleQuery)
		r.Get("/collections", s.handleCollections)
		r.Get("/documents", s.handleDocuments)
		r.Get("/documents/{key}", s.handleGetDocument)
		r.Post("/tables", s.handleTables)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
