package extract

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/yomu/internal/models"
)

// Gap thresholds, as fractions of the font size, used when rebuilding lines from glyphs.
const (
	wordGapRatio   = 0.15
	columnGapRatio = 1.5
	rowTolerance   = 0.4
	blockGapRatio  = 1.8
)

// columnSep is written between spans separated by a column-sized gap so that
// tabular rows survive as text.
const columnSep = "   "

// PDFEngine reads PDF bytes with github.com/ledongthuc/pdf and rebuilds a
// span-level layout from the positioned glyphs of each page.
type PDFEngine struct{}

// NewPDFEngine returns a PDF engine.
func NewPDFEngine() *PDFEngine {
	return &PDFEngine{}
}

// Layouts parses data and returns one layout per page. A file the reader
// cannot open yields an error wrapping models.ErrExtraction. Per-page failures
// fall back to plain text and are reported as warnings.
func (e *PDFEngine) Layouts(ctx context.Context, data []byte) (layouts []models.PageLayout, warnings []*Warning, err error) {
	defer func() {
		if r := recover(); r != nil {
			layouts, warnings = nil, nil
			err = fmt.Errorf("%w: pdf reader panic: %v", models.ErrExtraction, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open PDF: %v", models.ErrExtraction, err)
	}
	numPages := r.NumPage()
	if numPages <= 0 {
		return nil, nil, fmt.Errorf("%w: document has no pages", models.ErrExtraction)
	}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		layout, w := pageLayout(i, page)
		warnings = append(warnings, w...)
		layouts = append(layouts, layout)
	}
	return layouts, warnings, nil
}

func pageLayout(num int, page pdf.Page) (models.PageLayout, []*Warning) {
	var warnings []*Warning
	layout := models.PageLayout{Number: num}

	content, err := pageContent(page)
	if err != nil {
		warnings = append(warnings, newWarning(num, StageLayout, err))
	}
	if len(content.Text) > 0 {
		layout.Blocks = buildBlocks(content.Text)
		layout.Text = blocksText(layout.Blocks)
	} else {
		text, err := plainText(page)
		if err != nil {
			warnings = append(warnings, newWarning(num, StageText, err))
		}
		layout.Text = text
	}

	images, err := pageImages(page)
	if err != nil {
		warnings = append(warnings, newWarning(num, StageImages, err))
	}
	layout.Images = images
	return layout, warnings
}

func pageContent(page pdf.Page) (c pdf.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream: %v", r)
		}
	}()
	return page.Content(), nil
}

func plainText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plain text: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

type row struct {
	y     float64
	size  float64
	glyph []pdf.Text
}

// buildBlocks groups glyphs into rows top-down, rows into spans by font and gap,
// and consecutive rows into blocks separated by large vertical gaps.
func buildBlocks(glyphs []pdf.Text) []models.Block {
	sorted := make([]pdf.Text, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Y > sorted[j].Y
	})

	var rows []*row
	for _, g := range sorted {
		if strings.TrimSpace(g.S) == "" && g.S != " " {
			continue
		}
		var cur *row
		if len(rows) > 0 {
			cur = rows[len(rows)-1]
		}
		tol := math.Max(1, rowTolerance*math.Max(g.FontSize, 1))
		if cur == nil || math.Abs(cur.y-g.Y) > tol {
			cur = &row{y: g.Y}
			rows = append(rows, cur)
		}
		cur.glyph = append(cur.glyph, g)
		if g.FontSize > cur.size {
			cur.size = g.FontSize
		}
	}

	var blocks []models.Block
	var block *models.Block
	prevY := 0.0
	prevSize := 0.0
	for _, r := range rows {
		sort.SliceStable(r.glyph, func(i, j int) bool { return r.glyph[i].X < r.glyph[j].X })
		line := buildLine(r)
		if len(line.Spans) == 0 {
			continue
		}
		if block == nil || prevY-r.y > blockGapRatio*math.Max(prevSize, r.size) {
			blocks = append(blocks, models.Block{})
			block = &blocks[len(blocks)-1]
			block.BBox = line.BBox
		}
		block.Lines = append(block.Lines, line)
		block.BBox = union(block.BBox, line.BBox)
		prevY, prevSize = r.y, r.size
	}
	return blocks
}

func buildLine(r *row) models.Line {
	var line models.Line
	var span *models.Span
	var prev *pdf.Text
	var prevFont string
	for i := range r.glyph {
		g := &r.glyph[i]
		gap := 0.0
		if prev != nil {
			gap = g.X - (prev.X + prev.W)
		}
		size := math.Max(g.FontSize, 1)
		newSpan := span == nil || g.Font != prevFont || g.FontSize != span.FontSize
		column := prev != nil && gap > columnGapRatio*size
		if column {
			newSpan = true
		}
		if newSpan {
			if span != nil {
				line.Spans = append(line.Spans, *span)
			}
			text := g.S
			if column {
				text = columnSep + g.S
			} else if prev != nil && gap > wordGapRatio*size && g.S != " " && !strings.HasSuffix(span.Text, " ") {
				text = " " + g.S
			}
			span = &models.Span{
				Text:     text,
				FontSize: g.FontSize,
				Flags:    fontFlags(g.Font),
				BBox:     models.Rect{X0: g.X, Y0: g.Y, X1: g.X + g.W, Y1: g.Y + g.FontSize},
			}
		} else {
			if gap > wordGapRatio*size && g.S != " " && !strings.HasSuffix(span.Text, " ") {
				span.Text += " "
			}
			span.Text += g.S
			span.BBox.X1 = math.Max(span.BBox.X1, g.X+g.W)
		}
		prev, prevFont = g, g.Font
	}
	if span != nil {
		line.Spans = append(line.Spans, *span)
	}
	for i, s := range line.Spans {
		if i == 0 {
			line.BBox = s.BBox
			continue
		}
		line.BBox = union(line.BBox, s.BBox)
	}
	return line
}

func blocksText(blocks []models.Block) string {
	var sb strings.Builder
	for bi, b := range blocks {
		for li, l := range b.Lines {
			if bi > 0 || li > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(strings.TrimRight(l.Text(), " "))
		}
	}
	return sb.String()
}

// fontFlags derives style flags from a base font name such as "Helvetica-BoldOblique".
func fontFlags(font string) int {
	f := strings.ToLower(font)
	flags := 0
	if strings.Contains(f, "bold") || strings.Contains(f, "black") || strings.Contains(f, "heavy") {
		flags |= models.FlagBold
	}
	if strings.Contains(f, "italic") || strings.Contains(f, "oblique") {
		flags |= models.FlagItalic
	}
	return flags
}

func union(a, b models.Rect) models.Rect {
	return models.Rect{
		X0: math.Min(a.X0, b.X0),
		Y0: math.Min(a.Y0, b.Y0),
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
	}
}
