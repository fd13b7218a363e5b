package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/yomu/internal/chat"
	"github.com/hyperjump/yomu/internal/collection"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/extract/pdftest"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, prompt string, passages []models.Hit) (string, error) {
	return fmt.Sprintf("%d passages", len(passages)), nil
}

type env struct {
	handler   http.Handler
	uploadDir string
	cfg       *config.ServerConfig
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	dir := t.TempDir()
	ledger, err := storage.NewSQLiteStorage(filepath.Join(dir, "yomu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	registry := collection.NewRegistry(filepath.Join(dir, "collections"), embedding.NewMockEmbedder(32))
	t.Cleanup(func() { _ = registry.Close() })
	extractor := extract.NewPageExtractor()
	ingestor := indexer.NewIngestor(extractor, registry, indexer.WithLedger(ledger))
	svc := chat.NewService(registry, echoGenerator{}, chat.WithHistory(ledger, 8))

	cfg := config.Default().Server
	cfg.UploadDir = filepath.Join(dir, "uploads")
	base := []Option{
		WithChat(svc),
		WithLedger(ledger),
		WithExtractor(extractor),
		WithDiskPaths(filepath.Join(dir, "collections"), filepath.Join(dir, "yomu.db")),
	}
	srv := NewServer(&cfg, registry, ingestor, append(base, opts...)...)
	return &env{handler: srv.Handler(), uploadDir: cfg.UploadDir, cfg: &cfg}
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func reportPDF() []byte {
	return pdftest.Build(pdftest.TextPage(
		"Revenue grew by ten percent in the third quarter of the year.",
		"Operating costs fell after the warehouse consolidation finished.",
	))
}

func uploadRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), w.Body.String())
}

func TestUpload(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, uploadRequest(t, "/upload-pdf", "file", "Q3 Report.pdf", reportPDF()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.UploadResponse
	decode(t, w, &resp)
	assert.Equal(t, msgUploaded, resp.Message)
	assert.Equal(t, "Q3 Report.pdf", resp.Filename)
	assert.Equal(t, int64(len(reportPDF())), resp.Size)
	assert.Greater(t, resp.Chunks, 0)
	assert.Equal(t, "Q3_Report", resp.Identity)
	_, err := os.Stat(filepath.Join(e.uploadDir, "Q3 Report.pdf"))
	assert.NoError(t, err, "upload is saved")

	w = e.do(t, uploadRequest(t, "/upload-pdf", "file", "Q3 Report.pdf", reportPDF()))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, models.StatusAlreadyExists, resp.Status)
	assert.Equal(t, 0, resp.Chunks)
}

func TestUpload_rejections(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"not a pdf", uploadRequest(t, "/upload-pdf", "file", "notes.txt", []byte("hello")), http.StatusBadRequest},
		{"wrong field", uploadRequest(t, "/upload-pdf", "document", "a.pdf", reportPDF()), http.StatusBadRequest},
		{"garbage pdf", uploadRequest(t, "/upload-pdf", "file", "broken.pdf", []byte("not a pdf")), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUpload_tooLarge(t *testing.T) {
	e := newEnv(t)
	e.cfg.MaxUploadBytes = 64
	w := e.do(t, uploadRequest(t, "/upload-pdf", "file", "big.pdf", reportPDF()))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestQuery(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, jsonRequest(http.MethodPost, "/api/v1/query", `{"query":"revenue"}`))
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing indexed")

	require.Equal(t, http.StatusOK, e.do(t, uploadRequest(t, "/upload-pdf", "file", "report.pdf", reportPDF())).Code)

	w = e.do(t, jsonRequest(http.MethodPost, "/api/v1/query", `{"query":"revenue quarter","document_id":"report.pdf"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res models.QueryResult
	decode(t, w, &res)
	assert.Equal(t, "report", res.Collection)
	assert.NotEmpty(t, res.Hits)
	assert.LessOrEqual(t, len(res.Hits), config.DefaultTopK)

	w = e.do(t, jsonRequest(http.MethodPost, "/api/v1/query", `{"query":"revenue","document_id":"other.pdf"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, jsonRequest(http.MethodPost, "/api/v1/query", `{"query":""}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, jsonRequest(http.MethodPost, "/api/v1/query", `{`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, jsonRequest(http.MethodPost, "/chat", `{"message":"What grew?"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp models.ChatResponse
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, msgNoDocument, resp.Error)

	require.Equal(t, http.StatusOK, e.do(t, uploadRequest(t, "/upload-pdf", "file", "report.pdf", reportPDF())).Code)

	w = e.do(t, jsonRequest(http.MethodPost, "/chat", `{"message":"What grew?"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = models.ChatResponse{}
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "What grew?", resp.Data.Query)
	assert.NotEmpty(t, resp.Data.SessionID)
	require.NotEmpty(t, resp.Data.Sources)
	assert.Equal(t, "report.pdf", resp.Data.Sources[0].Source)

	w = e.do(t, jsonRequest(http.MethodPost, "/chat", `{"message":""}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, jsonRequest(http.MethodPost, "/chat", `{"message":"  \n\t "}`))
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestChat_notConfigured(t *testing.T) {
	e := newEnv(t, WithChat(nil))
	w := e.do(t, jsonRequest(http.MethodPost, "/chat", `{"message":"hi"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCollectionsDocumentsHealth(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, uploadRequest(t, "/upload-pdf", "file", "b.pdf", reportPDF())).Code)
	require.Equal(t, http.StatusOK, e.do(t, uploadRequest(t, "/upload-pdf", "file", "a.pdf", reportPDF())).Code)

	w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/collections", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cols struct {
		Collections []collectionInfo `json:"collections"`
		Default     string           `json:"default"`
	}
	decode(t, w, &cols)
	require.Len(t, cols.Collections, 2)
	assert.Equal(t, "b", cols.Collections[0].Key)
	assert.True(t, cols.Collections[0].Hybrid)
	assert.Equal(t, "b", cols.Default)

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var docs struct {
		Documents []*models.DocumentRecord `json:"documents"`
		Total     int64                    `json:"total"`
	}
	decode(t, w, &docs)
	assert.Len(t, docs.Documents, 1)
	assert.Equal(t, int64(2), docs.Total)

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/a", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	decode(t, w, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(2), health["collections"])
	assert.Greater(t, health["disk_usage_bytes"], float64(0))
}

func TestTables(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, uploadRequest(t, "/api/v1/tables", "file", "report.pdf", reportPDF()))
	assert.Equal(t, http.StatusNotFound, w.Code, "prose-only document has no tables")

	e = newEnv(t, WithExtractor(nil))
	w = e.do(t, uploadRequest(t, "/api/v1/tables", "file", "report.pdf", reportPDF()))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestWatchDirectories(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	full := config.Default()
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	e := newEnv(t, WithWatch(mock, cfgPath, full))

	w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	assert.Equal(t, []string{"/tmp/docs"}, out.Directories)

	inbox := filepath.Join(dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0755))
	w = e.do(t, jsonRequest(http.MethodPost, "/api/v1/watch/directories", fmt.Sprintf(`{"path":%q}`, inbox)))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, mock.dirs, inbox)

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, saved.Watch.Directories, inbox)

	w = e.do(t, jsonRequest(http.MethodPost, "/api/v1/watch/directories", `{"path":"/does/not/exist"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/watch/directories?path="+inbox, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, mock.dirs, inbox)

	w = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/watch/directories", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatchDirectories_notEnabled(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := e.do(t, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = e.do(t, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", models.ErrExtraction), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", models.ErrBuildFailed, models.ErrEmbeddingUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: disk full", models.ErrBuildFailed), http.StatusInternalServerError},
		{models.ErrGeneration, http.StatusBadGateway},
		{models.ErrEmptyQuestion, http.StatusBadRequest},
		{fmt.Errorf("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
