// Package models defines core data structures for pages, retrievable units, queries, and results.
package models

import "time"

// Style flags carried by a Span. Bit positions follow the PDF font descriptor convention.
const (
	FlagItalic = 1 << 1
	FlagBold   = 1 << 4
)

// Rect is an axis-aligned bounding box in page coordinates.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Span is a run of text sharing one font size and style.
type Span struct {
	Text     string  `json:"text"`
	FontSize float64 `json:"font_size"`
	Flags    int     `json:"flags"`
	BBox     Rect    `json:"bbox"`
}

// Bold reports whether the span's style flags mark it bold.
func (s Span) Bold() bool { return s.Flags&FlagBold != 0 }

// Italic reports whether the span's style flags mark it italic.
func (s Span) Italic() bool { return s.Flags&FlagItalic != 0 }

// Line is an ordered sequence of spans on the same baseline.
type Line struct {
	Spans []Span `json:"spans"`
	BBox  Rect   `json:"bbox"`
}

// Text joins the span texts of the line.
func (l Line) Text() string {
	var n int
	for _, s := range l.Spans {
		n += len(s.Text)
	}
	b := make([]byte, 0, n)
	for _, s := range l.Spans {
		b = append(b, s.Text...)
	}
	return string(b)
}

// Block groups lines that belong together on a page.
type Block struct {
	Lines []Line `json:"lines"`
	BBox  Rect   `json:"bbox"`
}

// ImageRef is an embedded image reported by the document engine.
type ImageRef struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	BBox   Rect   `json:"bbox"`
}

// PageLayout is the layout-aware representation of one page as produced by a document engine.
// Number is 1-based.
type PageLayout struct {
	Number int        `json:"number"`
	Text   string     `json:"text"`
	Blocks []Block    `json:"blocks"`
	Images []ImageRef `json:"images,omitempty"`
}

// Table is a detected table. Rows holds the cell matrix when one is available;
// Lines holds the raw matched lines for tables found by the text fallback.
type Table struct {
	ID      string     `json:"id"`
	BBox    Rect       `json:"bbox"`
	Rows    [][]string `json:"rows,omitempty"`
	Lines   []string   `json:"lines,omitempty"`
	Summary string     `json:"summary"`
}

// Image is a detected image placeholder.
type Image struct {
	ID          string `json:"id"`
	BBox        Rect   `json:"bbox"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Size        string `json:"size"`
	Description string `json:"description"`
}

// Section is a heading detected on a page.
type Section struct {
	Text     string  `json:"text"`
	FontSize float64 `json:"font_size"`
	Bold     bool    `json:"bold"`
	BBox     Rect    `json:"bbox"`
}

// PageContent is the structured content extracted from a single page.
type PageContent struct {
	Page     int       `json:"page"`
	Text     string    `json:"text"`
	Headers  []string  `json:"headers"`
	Footers  []string  `json:"footers"`
	Tables   []Table   `json:"tables"`
	Images   []Image   `json:"images"`
	Sections []Section `json:"sections"`
	// Warnings lists best-effort extraction steps that failed on this page.
	Warnings []string `json:"warnings,omitempty"`
}

// SectionTitles returns the section texts in encounter order.
func (p *PageContent) SectionTitles() []string {
	titles := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		titles = append(titles, s.Text)
	}
	return titles
}

// DocumentRecord is the ledger entry for an ingested document.
type DocumentRecord struct {
	Key       string    `json:"key" db:"key"`
	Filename  string    `json:"filename" db:"filename"`
	ByteSize  int64     `json:"byte_size" db:"byte_size"`
	UnitCount int       `json:"unit_count" db:"unit_count"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
