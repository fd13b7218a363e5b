package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/hyperjump/yomu/internal/classify"
	"github.com/hyperjump/yomu/internal/models"
)

// maxSummaryHeaders is how many header names a table summary lists.
const maxSummaryHeaders = 3

// TableFinder detects tables with a cell matrix in a page layout.
type TableFinder interface {
	FindTables(layout models.PageLayout) ([]models.Table, error)
}

// AlignedTableFinder finds tables as runs of lines whose cells line up in the same columns.
type AlignedTableFinder struct {
	// MinRows is the fewest aligned lines that form a table.
	MinRows int
}

// NewAlignedTableFinder returns a finder requiring at least two aligned rows.
func NewAlignedTableFinder() *AlignedTableFinder {
	return &AlignedTableFinder{MinRows: 2}
}

type cell struct {
	text   string
	x0, x1 float64
}

// FindTables implements TableFinder.
func (f *AlignedTableFinder) FindTables(layout models.PageLayout) ([]models.Table, error) {
	minRows := f.MinRows
	if minRows < 2 {
		minRows = 2
	}

	var tables []models.Table
	var run [][]cell
	var runLines []models.Line
	var cols []cell
	flush := func() {
		if len(run) >= minRows {
			t := models.Table{ID: fmt.Sprintf("table_%d", len(tables))}
			for i, r := range run {
				cells := make([]string, len(r))
				for j, c := range r {
					cells[j] = c.text
				}
				t.Rows = append(t.Rows, cells)
				if i == 0 {
					t.BBox = runLines[i].BBox
				} else {
					t.BBox = union(t.BBox, runLines[i].BBox)
				}
			}
			t.Summary = Summarize(t.Rows)
			tables = append(tables, t)
		}
		run, runLines, cols = nil, nil, nil
	}

	for _, b := range layout.Blocks {
		for _, l := range b.Lines {
			cells := lineCells(l)
			if len(cells) < 2 {
				flush()
				continue
			}
			if len(run) > 0 && !aligned(cols, cells, l) {
				flush()
			}
			if len(run) == 0 {
				cols = append([]cell(nil), cells...)
			} else {
				for i := range cols {
					cols[i].x0 = math.Min(cols[i].x0, cells[i].x0)
					cols[i].x1 = math.Max(cols[i].x1, cells[i].x1)
				}
			}
			run = append(run, cells)
			runLines = append(runLines, l)
		}
	}
	flush()
	return tables, nil
}

// lineCells merges spans into cells, starting a new cell at every column-sized gap.
func lineCells(l models.Line) []cell {
	var cells []cell
	for i, s := range l.Spans {
		text := strings.TrimSpace(s.Text)
		size := math.Max(s.FontSize, 1)
		gap := 0.0
		if i > 0 {
			gap = s.BBox.X0 - l.Spans[i-1].BBox.X1
		}
		startsColumn := i == 0 || gap > columnGapRatio*size || strings.HasPrefix(s.Text, columnSep)
		if startsColumn {
			cells = append(cells, cell{text: text, x0: s.BBox.X0, x1: s.BBox.X1})
			continue
		}
		last := &cells[len(cells)-1]
		if text != "" {
			if last.text != "" {
				last.text += " "
			}
			last.text += text
		}
		last.x1 = math.Max(last.x1, s.BBox.X1)
	}
	return cells
}

// aligned reports whether cells fall into the same columns as cols.
func aligned(cols, cells []cell, l models.Line) bool {
	if len(cols) != len(cells) {
		return false
	}
	tol := 0.0
	for _, s := range l.Spans {
		tol = math.Max(tol, s.FontSize)
	}
	for i := range cols {
		if cells[i].x0 > cols[i].x1+tol || cells[i].x1 < cols[i].x0-tol {
			return false
		}
	}
	return true
}

// FindTextTables groups consecutive tabular lines of text into pseudo-tables.
// These carry the raw lines instead of a cell matrix.
func FindTextTables(text string) []models.Table {
	groups := classify.GroupTabularLines(strings.Split(text, "\n"))
	tables := make([]models.Table, 0, len(groups))
	for i, g := range groups {
		tables = append(tables, models.Table{
			ID:      fmt.Sprintf("text_table_%d", i),
			Lines:   g,
			Summary: fmt.Sprintf("Text table with %d rows detected", len(g)),
		})
	}
	return tables
}

// Summarize describes a cell matrix whose first row holds the headers.
func Summarize(rows [][]string) string {
	if len(rows) < 2 {
		return "Empty table"
	}
	headers := rows[0]
	shown := headers
	if len(shown) > maxSummaryHeaders {
		shown = shown[:maxSummaryHeaders]
	}
	more := ""
	if len(headers) > maxSummaryHeaders {
		more = "..."
	}
	return fmt.Sprintf("Table with %d rows and %d columns. Headers: %s%s",
		len(rows)-1, len(headers), strings.Join(shown, ", "), more)
}
