package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/export"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

const (
	msgUploaded      = "PDF uploaded and processed successfully"
	msgAlreadyLoaded = "PDF was already processed"
	msgNoDocument    = "No PDF uploaded. Please upload a PDF first."
	msgAnswered      = "Answer generated"
	msgChatFailed    = "Failed to generate an answer"

	// multipartOverhead is allowed on top of max_upload_bytes for form boundaries and headers.
	multipartOverhead = 1 << 20
)

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readPDF reads the multipart "file" field, enforcing the PDF extension and size limit.
func (s *Server) readPDF(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	limit := s.config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
			return "", nil, false
		}
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return "", nil, false
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !indexer.IsPDF(name) {
		s.respondError(w, http.StatusBadRequest, "only PDF files are allowed")
		return "", nil, false
	}
	if header.Size > limit {
		s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
		return "", nil, false
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return "", nil, false
	}
	if int64(len(data)) > limit {
		s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
		return "", nil, false
	}
	return name, data, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.readPDF(w, r)
	if !ok {
		return
	}
	if s.config.UploadDir != "" {
		if err := s.saveUpload(name, data); err != nil {
			s.logger.Error("failed to save upload", zap.String("filename", name), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to save upload")
			return
		}
	}

	res, err := s.ingestor.Ingest(r.Context(), name, data)
	if err != nil {
		s.logger.Error("upload ingest failed", zap.String("filename", name), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	msg := msgUploaded
	if res.Status == models.StatusAlreadyExists {
		msg = msgAlreadyLoaded
	}
	s.respondJSON(w, http.StatusOK, models.UploadResponse{
		Message:  msg,
		Filename: name,
		Size:     res.ByteSize,
		Chunks:   res.UnitCount,
		Status:   res.Status,
		Identity: res.Identity,
	})
}

func (s *Server) saveUpload(name string, data []byte) error {
	if err := os.MkdirAll(s.config.UploadDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.config.UploadDir, name), data, 0644)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, models.ChatResponse{Message: msgChatFailed, Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondJSON(w, http.StatusBadRequest, models.ChatResponse{Message: msgChatFailed, Error: "message is required"})
		return
	}
	if s.chat == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, models.ChatResponse{Message: msgChatFailed, Error: "chat is not configured"})
		return
	}
	data, err := s.chat.Ask(r.Context(), req.Message, req.SessionID, req.DocumentID)
	if err != nil {
		status := statusFor(err)
		resp := models.ChatResponse{Message: msgChatFailed, Error: err.Error()}
		if status == http.StatusNotFound {
			resp.Error = msgNoDocument
		}
		s.logger.Warn("chat failed", zap.Error(err))
		s.respondJSON(w, status, resp)
		return
	}
	s.respondJSON(w, http.StatusOK, models.ChatResponse{Success: true, Message: msgAnswered, Data: data})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.topK, s.maxK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.String("document", req.DocumentID), zap.Int("k", req.K))
	res, err := s.registry.Query(r.Context(), req.DocumentID, req.Query, req.K)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

type collectionInfo struct {
	Key    string `json:"key"`
	Units  int    `json:"units"`
	Hybrid bool   `json:"hybrid"`
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	keys := s.registry.Keys()
	out := make([]collectionInfo, 0, len(keys))
	for _, k := range keys {
		if c, ok := s.registry.Get(k); ok {
			out = append(out, collectionInfo{Key: k, Units: c.Len(), Hybrid: c.Hybrid()})
		}
	}
	def, _ := s.registry.Default()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": out, "default": def})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "document ledger not enabled")
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	docs, err := s.ledger.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.ledger.CountDocuments(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.DocumentRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "total": total})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "document ledger not enabled")
		return
	}
	doc, err := s.ledger.GetDocument(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// handleTables extracts an uploaded PDF and returns its tables as an xlsx workbook.
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		s.respondError(w, http.StatusNotImplemented, "table export not enabled")
		return
	}
	name, data, ok := s.readPDF(w, r)
	if !ok {
		return
	}
	pages, err := s.extractor.ExtractDocument(r.Context(), data)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	tables := export.Collect(pages)
	if len(tables) == 0 {
		s.respondError(w, http.StatusNotFound, "no tables detected")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name[:len(name)-len(filepath.Ext(name))]+".xlsx"))
	if err := export.Write(w, tables); err != nil {
		s.logger.Error("table export failed", zap.String("filename", name), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "ok",
		"collections": len(s.registry.Keys()),
	}
	if len(s.diskPaths) > 0 {
		if n, err := storage.DiskUsageBytes(s.diskPaths...); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not an existing directory")
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatch() {
	if s.configPath == "" || s.fullConfig == nil {
		return
	}
	s.fullConfigMu.Lock()
	defer s.fullConfigMu.Unlock()
	s.fullConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.fullConfig); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
