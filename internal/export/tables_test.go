package export

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/yomu/internal/models"
)

func sampleTables() []PageTable {
	return Collect([]models.PageContent{
		{Page: 1},
		{Page: 2, Tables: []models.Table{{
			ID:      "table_0",
			Rows:    [][]string{{"region", "sales"}, {"north", "10"}},
			Summary: "Table with 2 rows and 2 columns. Headers: region, sales",
		}}},
		{Page: 3, Tables: []models.Table{{
			ID:      "text_table_0",
			Lines:   []string{"Q1   Q2   Q3", "10   20   30"},
			Summary: "Text-based table with 2 lines",
		}}},
	})
}

func TestCollect(t *testing.T) {
	tables := sampleTables()
	require.Len(t, tables, 2)
	assert.Equal(t, 2, tables[0].Page)
	assert.Equal(t, "text_table_0", tables[1].Table.ID)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleTables()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{IndexSheet, "p2_table_0", "p3_text_table_0"}, f.GetSheetList())

	index, err := f.GetRows(IndexSheet)
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, []string{"2", "table_0", "p2_table_0", "Table with 2 rows and 2 columns. Headers: region, sales"}, index[1])

	rows, err := f.GetRows("p2_table_0")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"region", "sales"}, {"north", "10"}}, rows)

	lines, err := f.GetRows("p3_text_table_0")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Q1   Q2   Q3"}, {"10   20   30"}}, lines)
}

func TestWriteTables_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.xlsx")
	require.NoError(t, WriteTables(path, sampleTables()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 3)
}

func TestWrite_noTables(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, nil))
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{IndexSheet: true}
	long := PageTable{Page: 12, Table: models.Table{ID: strings.Repeat("x", 40)}}

	first := sheetName(long, used)
	second := sheetName(long, used)
	assert.Len(t, first, maxSheetName)
	assert.LessOrEqual(t, len(second), maxSheetName)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "_2"))
}
