// Package export writes tables detected in a document to an xlsx workbook.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/yomu/internal/models"
)

// IndexSheet lists every exported table with its page, summary and sheet.
const IndexSheet = "Tables"

// maxSheetName is the xlsx limit on sheet name length.
const maxSheetName = 31

// PageTable is a detected table together with the page it came from.
type PageTable struct {
	Page  int
	Table models.Table
}

// Collect gathers the tables of pages in page order.
func Collect(pages []models.PageContent) []PageTable {
	var out []PageTable
	for _, p := range pages {
		for _, t := range p.Tables {
			out = append(out, PageTable{Page: p.Page, Table: t})
		}
	}
	return out
}

// WriteTables saves tables to an xlsx file at path.
func WriteTables(path string, tables []PageTable) error {
	f, err := build(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Write streams the workbook for tables to w.
func Write(w io.Writer, tables []PageTable) error {
	f, err := build(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func build(tables []PageTable) (*excelize.File, error) {
	if len(tables) == 0 {
		return nil, errors.New("no tables to export")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), IndexSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(IndexSheet, "A1", &[]interface{}{"page", "table", "sheet", "summary"}); err != nil {
		f.Close()
		return nil, err
	}

	used := map[string]bool{IndexSheet: true}
	for i, pt := range tables {
		name := sheetName(pt, used)
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("add sheet %s: %w", name, err)
		}
		if err := writeTable(f, name, pt.Table); err != nil {
			f.Close()
			return nil, fmt.Errorf("write sheet %s: %w", name, err)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{pt.Page, pt.Table.ID, name, pt.Table.Summary}
		if err := f.SetSheetRow(IndexSheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// writeTable writes structured rows cell by cell; tables detected from text alignment
// have only lines and get one line per row.
func writeTable(f *excelize.File, sheet string, t models.Table) error {
	rows := t.Rows
	if len(rows) == 0 {
		rows = make([][]string, len(t.Lines))
		for i, l := range t.Lines {
			rows[i] = []string{l}
		}
	}
	for i, r := range rows {
		cells := make([]interface{}, len(r))
		for j, c := range r {
			cells[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

func sheetName(pt PageTable, used map[string]bool) string {
	base := "p" + strconv.Itoa(pt.Page) + "_" + pt.Table.ID
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	name := base
	for n := 2; used[name]; n++ {
		suffix := "_" + strconv.Itoa(n)
		cut := base
		if len(cut)+len(suffix) > maxSheetName {
			cut = cut[:maxSheetName-len(suffix)]
		}
		name = cut + suffix
	}
	used[name] = true
	return name
}
