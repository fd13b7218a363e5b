// Package pdftest builds small, valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Fonts available to Line.Font.
const (
	Regular = "F1"
	Bold    = "F2"
)

// Line is one run of text placed at (X, Y) in points, origin bottom-left.
type Line struct {
	Text string
	Font string
	Size float64
	X, Y float64
}

// Image is a grayscale image drawn at (X, Y) scaled to its pixel size.
type Image struct {
	Width, Height int
	X, Y          float64
}

// Page is the content of one page.
type Page struct {
	Lines  []Line
	Images []Image
}

// TextPage lays out lines top-down in 12pt regular text.
func TextPage(lines ...string) Page {
	p := Page{}
	y := 760.0
	for _, l := range lines {
		p.Lines = append(p.Lines, Line{Text: l, Font: Regular, Size: 12, X: 72, Y: y})
		y -= 16
	}
	return p
}

// Build returns the bytes of a PDF holding pages in order.
func Build(pages ...Page) []byte {
	w := &writer{}
	w.buf.WriteString("%PDF-1.4\n")

	// Object numbers: 1 catalog, 2 pages, 3 regular font, 4 bold font, then per page.
	next := 5
	type pageObjs struct {
		page, content int
		images        []int
	}
	objs := make([]pageObjs, len(pages))
	for i, p := range pages {
		objs[i].page = next
		objs[i].content = next + 1
		next += 2
		for range p.Images {
			objs[i].images = append(objs[i].images, next)
			next++
		}
	}

	kids := make([]string, len(pages))
	for i := range objs {
		kids[i] = fmt.Sprintf("%d 0 R", objs[i].page)
	}
	w.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	w.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	w.object(3, fontDict("Helvetica"))
	w.object(4, fontDict("Helvetica-Bold"))

	for i, p := range pages {
		xobjects := ""
		if len(p.Images) > 0 {
			var refs []string
			for j, n := range objs[i].images {
				refs = append(refs, fmt.Sprintf("/Im%d %d 0 R", j, n))
			}
			xobjects = fmt.Sprintf(" /XObject << %s >>", strings.Join(refs, " "))
		}
		w.object(objs[i].page, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R /F2 4 0 R >>%s >> /Contents %d 0 R >>",
			xobjects, objs[i].content))

		var cs strings.Builder
		for _, l := range p.Lines {
			font := l.Font
			if font == "" {
				font = Regular
			}
			fmt.Fprintf(&cs, "BT /%s %g Tf %g %g Td (%s) Tj ET\n", font, l.Size, l.X, l.Y, escape(l.Text))
		}
		for j, img := range p.Images {
			fmt.Fprintf(&cs, "q %d 0 0 %d %g %g cm /Im%d Do Q\n", img.Width, img.Height, img.X, img.Y, j)
		}
		w.stream(objs[i].content, "", []byte(cs.String()))

		for j, img := range p.Images {
			data := bytes.Repeat([]byte{0x80}, img.Width*img.Height)
			w.stream(objs[i].images[j], fmt.Sprintf(
				"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 ",
				img.Width, img.Height), data)
		}
	}

	return w.finish(next)
}

func fontDict(base string) string {
	widths := make([]string, 0, 95)
	for c := 32; c <= 126; c++ {
		widths = append(widths, "500")
	}
	return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		base, strings.Join(widths, " "))
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *writer) object(n int, body string) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[n] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", n, body)
}

func (w *writer) stream(n int, dict string, data []byte) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[n] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< %s/Length %d >>\nstream\n", n, dict, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func (w *writer) finish(size int) []byte {
	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for i := 1; i < size; i++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[i])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return w.buf.Bytes()
}
