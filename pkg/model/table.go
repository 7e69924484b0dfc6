// pkg/model/table.go
package model

import "strings"

// TableID identifies one logical table inside a workbook (e.g. "Table 4g"
// or "CWT CRS Provider Extract")
type TableID string

// RawTable is a rectangular grid of cells read from one sheet.
// It only lives for the duration of one file's processing.
type RawTable struct {
	ID        TableID    // Logical table identifier
	Sheet     string     // Sheet the rows were read from
	Rows      [][]string // Every row of the sheet, ragged rows allowed
	HeaderRow int        // Index into Rows of the header, -1 when unknown
}

// NewRawTable creates a table with an unknown header position
func NewRawTable(id TableID, sheet string, rows [][]string) *RawTable {
	return &RawTable{
		ID:        id,
		Sheet:     sheet,
		Rows:      rows,
		HeaderRow: -1,
	}
}

// Cell returns the trimmed cell at (row, col) of the full grid, or "" when
// the coordinates are outside the table
func (t *RawTable) Cell(row, col int) string {
	if t == nil || row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Header returns the header row, or nil if no header was located
func (t *RawTable) Header() []string {
	if t == nil || t.HeaderRow < 0 || t.HeaderRow >= len(t.Rows) {
		return nil
	}
	return t.Rows[t.HeaderRow]
}

// DataRows returns the rows below the header. When the header position is
// unknown every row is treated as data.
func (t *RawTable) DataRows() [][]string {
	if t == nil {
		return nil
	}
	start := t.HeaderRow + 1
	if start > len(t.Rows) {
		return nil
	}
	return t.Rows[start:]
}

// DataCell returns the trimmed cell at (row, col) counted from the first
// data row
func (t *RawTable) DataCell(row, col int) string {
	if t == nil || row < 0 {
		return ""
	}
	return t.Cell(t.HeaderRow+1+row, col)
}

// DataRowCount returns the number of rows below the header
func (t *RawTable) DataRowCount() int {
	return len(t.DataRows())
}

// ColumnIndex finds a header column by name (case-insensitive, trimmed).
// Returns -1 if the column is not present.
func (t *RawTable) ColumnIndex(name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range t.Header() {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

// OrganisationRow locates one organisation's observations inside a RawTable.
// RowIndex counts from the first data row.
type OrganisationRow struct {
	Code     string
	Name     string
	RowIndex int
}

// ObservationVector holds the raw cells of one organisation row from the
// offset column to the end of the row
type ObservationVector []string

// At returns the i-th observation and whether it exists
func (v ObservationVector) At(i int) (string, bool) {
	if i < 0 || i >= len(v) {
		return "", false
	}
	return strings.TrimSpace(v[i]), true
}
