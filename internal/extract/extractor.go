// Package extract turns PDF pages into structured content: cleaned body text,
// running headers and footers, tables, image placeholders, and section headings.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/classify"
	"github.com/hyperjump/yomu/internal/models"
)

// DefaultMinTextLength is the shortest cleaned page text that yields a text unit.
const DefaultMinTextLength = 50

// Engine parses document bytes into per-page layouts.
type Engine interface {
	Layouts(ctx context.Context, data []byte) ([]models.PageLayout, []*Warning, error)
}

// PageExtractor applies the structural heuristics to page layouts.
type PageExtractor struct {
	engine        Engine
	finder        TableFinder
	headers       bool
	tables        bool
	images        bool
	minTextLength int
	logger        *zap.Logger
}

// Option configures a PageExtractor.
type Option func(*PageExtractor)

// WithEngine sets the document engine. Defaults to PDFEngine.
func WithEngine(e Engine) Option {
	return func(p *PageExtractor) { p.engine = e }
}

// WithTableFinder sets the native table finder. Defaults to AlignedTableFinder.
func WithTableFinder(f TableFinder) Option {
	return func(p *PageExtractor) { p.finder = f }
}

// WithHeadersFooters toggles header/footer removal.
func WithHeadersFooters(enabled bool) Option {
	return func(p *PageExtractor) { p.headers = enabled }
}

// WithTables toggles table detection.
func WithTables(enabled bool) Option {
	return func(p *PageExtractor) { p.tables = enabled }
}

// WithImages toggles image detection.
func WithImages(enabled bool) Option {
	return func(p *PageExtractor) { p.images = enabled }
}

// WithMinTextLength sets the shortest page text kept as body text.
func WithMinTextLength(n int) Option {
	return func(p *PageExtractor) { p.minTextLength = n }
}

// WithLogger sets the logger for extraction warnings.
func WithLogger(l *zap.Logger) Option {
	return func(p *PageExtractor) { p.logger = l }
}

// NewPageExtractor returns an extractor with every detection step enabled.
func NewPageExtractor(opts ...Option) *PageExtractor {
	p := &PageExtractor{
		engine:        NewPDFEngine(),
		finder:        NewAlignedTableFinder(),
		headers:       true,
		tables:        true,
		images:        true,
		minTextLength: DefaultMinTextLength,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractDocument parses data and extracts every page. Pages whose content is
// entirely empty are omitted. Best-effort failures are attached to each page
// as warnings and logged.
func (p *PageExtractor) ExtractDocument(ctx context.Context, data []byte) ([]models.PageContent, error) {
	layouts, warnings, err := p.engine.Layouts(ctx, data)
	if err != nil {
		return nil, err
	}
	byPage := make(map[int][]*Warning)
	for _, w := range warnings {
		byPage[w.Page] = append(byPage[w.Page], w)
	}

	pages := make([]models.PageContent, 0, len(layouts))
	for _, layout := range layouts {
		pc, pageWarnings := p.ExtractPage(layout)
		pageWarnings = append(byPage[layout.Number], pageWarnings...)
		for _, w := range pageWarnings {
			pc.Warnings = append(pc.Warnings, w.Error())
			if p.logger != nil {
				p.logger.Warn("extraction step failed", zap.Int("page", w.Page), zap.String("stage", w.Stage), zap.Error(w.Err))
			}
		}
		if pc.Text == "" && len(pc.Tables) == 0 && len(pc.Images) == 0 {
			continue
		}
		pages = append(pages, pc)
	}
	if p.logger != nil {
		p.logger.Debug("document extracted", zap.Int("pages", len(layouts)), zap.Int("kept", len(pages)))
	}
	return pages, nil
}

// ExtractPage classifies one page layout into PageContent.
func (p *PageExtractor) ExtractPage(layout models.PageLayout) (models.PageContent, []*Warning) {
	var warnings []*Warning
	pc := models.PageContent{Page: layout.Number}

	text := layout.Text
	if p.headers {
		text, pc.Headers, pc.Footers = classify.StripBoilerplate(text)
	}
	if utf8.RuneCountInString(text) >= p.minTextLength {
		pc.Text = text
	}

	if p.tables {
		tables, err := p.findTables(layout)
		if err != nil {
			warnings = append(warnings, newWarning(layout.Number, StageTables, err))
		}
		if len(tables) == 0 {
			tables = FindTextTables(layout.Text)
		}
		pc.Tables = tables
	}

	if p.images {
		pc.Images = describeImages(layout.Images)
	}

	for _, b := range layout.Blocks {
		for _, l := range b.Lines {
			for _, s := range l.Spans {
				if classify.IsHeading(s) {
					pc.Sections = append(pc.Sections, models.Section{
						Text:     strings.TrimSpace(s.Text),
						FontSize: s.FontSize,
						Bold:     s.Bold(),
						BBox:     s.BBox,
					})
				}
			}
		}
	}
	return pc, warnings
}

func (p *PageExtractor) findTables(layout models.PageLayout) (tables []models.Table, err error) {
	if p.finder == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			tables = nil
			err = fmt.Errorf("table finder panic: %v", r)
		}
	}()
	return p.finder.FindTables(layout)
}

func describeImages(refs []models.ImageRef) []models.Image {
	if len(refs) == 0 {
		return nil
	}
	images := make([]models.Image, 0, len(refs))
	for i, ref := range refs {
		images = append(images, models.Image{
			ID:          fmt.Sprintf("image_%d", i),
			BBox:        ref.BBox,
			Width:       ref.Width,
			Height:      ref.Height,
			Size:        fmt.Sprintf("%dx%d", ref.Width, ref.Height),
			Description: fmt.Sprintf("Image %d on page", i+1),
		})
	}
	return images
}
