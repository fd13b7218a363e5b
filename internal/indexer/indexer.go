// Package indexer turns PDF bytes into retrievable units and publishes them as collections.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/yomu/internal/collection"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/segment"
	"github.com/hyperjump/yomu/internal/storage"
	"go.uber.org/zap"
)

// Ingestor runs extraction, unit building, segmentation, sequencing and collection
// build for one document at a time, and records the outcome in the ledger.
type Ingestor struct {
	extractor *extract.PageExtractor
	registry  *collection.Registry
	segmenter *segment.Segmenter // nil disables semantic segmentation
	ledger    storage.Storage    // optional
	logger    *zap.Logger        // optional
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithSegmenter enables semantic segmentation of text units.
func WithSegmenter(s *segment.Segmenter) IngestorOption {
	return func(in *Ingestor) { in.segmenter = s }
}

// WithLedger records every ingestion outcome in storage.
func WithLedger(s storage.Storage) IngestorOption {
	return func(in *Ingestor) { in.ledger = s }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(in *Ingestor) { in.logger = l }
}

// NewIngestor creates an ingestor publishing into registry.
func NewIngestor(extractor *extract.PageExtractor, registry *collection.Registry, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{extractor: extractor, registry: registry}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest indexes one PDF under the collection key derived from filename. Ingesting an
// existing key is a no-op reported as models.StatusAlreadyExists with zero units.
// Extraction failures wrap models.ErrExtraction; index failures wrap models.ErrBuildFailed
// and leave nothing registered.
func (in *Ingestor) Ingest(ctx context.Context, filename string, data []byte) (*models.IngestResult, error) {
	start := time.Now()
	key := collection.NormalizeKey(filename)
	result := &models.IngestResult{
		Identity: key,
		Filename: filename,
		ByteSize: int64(len(data)),
	}
	if in.registry.Exists(filename) {
		result.Status = models.StatusAlreadyExists
		in.debug("document already indexed", zap.String("key", key))
		return result, nil
	}

	pages, err := in.extractor.ExtractDocument(ctx, data)
	if err != nil {
		result.Status = models.StatusFailed
		in.record(ctx, result)
		return result, fmt.Errorf("extract %s: %w", filename, err)
	}
	units := BuildUnits(filename, pages)
	if in.segmenter != nil {
		units = in.segmenter.SegmentAll(ctx, units)
	}
	Sequence(key, units)

	built, err := in.registry.Build(ctx, filename, units)
	if err != nil {
		result.Status = models.StatusFailed
		in.record(ctx, result)
		return result, err
	}
	result.Status = built.Status
	result.UnitCount = built.UnitCount
	if built.Status == models.StatusSuccess {
		in.record(ctx, result)
	}
	if in.logger != nil {
		in.logger.Info("document ingested",
			zap.String("key", key),
			zap.String("status", result.Status),
			zap.Int("pages", len(pages)),
			zap.Int("units", result.UnitCount),
			zap.Duration("took", time.Since(start)),
		)
	}
	return result, nil
}

func (in *Ingestor) record(ctx context.Context, result *models.IngestResult) {
	if in.ledger == nil {
		return
	}
	rec := &models.DocumentRecord{
		Key:       result.Identity,
		Filename:  result.Filename,
		ByteSize:  result.ByteSize,
		UnitCount: result.UnitCount,
		Status:    result.Status,
	}
	if err := in.ledger.UpsertDocument(ctx, rec); err != nil && in.logger != nil {
		in.logger.Warn("ledger write failed", zap.String("key", rec.Key), zap.Error(err))
	}
}

func (in *Ingestor) debug(msg string, fields ...zap.Field) {
	if in.logger != nil {
		in.logger.Debug(msg, fields...)
	}
}

// IngestFile reads a PDF from path and ingests it under its base name.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*models.IngestResult, error) {
	in.debug("ingesting file", zap.String("path", path))
	if !IsPDF(path) {
		return nil, fmt.Errorf("not a PDF: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return in.Ingest(ctx, filepath.Base(path), data)
}

// IngestDirectory walks dir recursively and ingests every PDF. It returns one result per
// file attempted; a file that fails to ingest is logged and does not stop the walk.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string) ([]*models.IngestResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	var results []*models.IngestResult
	var errs []error
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsPDF(path) {
			return nil
		}
		res, err := in.IngestFile(ctx, path)
		if err != nil {
			errs = append(errs, err)
			if in.logger != nil {
				in.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
			}
		}
		if res != nil {
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

// IsPDF reports whether path has a .pdf extension (case-insensitive).
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
