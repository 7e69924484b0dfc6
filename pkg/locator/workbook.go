// pkg/locator/workbook.go
package locator

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is a read-only view of a spreadsheet file
type Workbook interface {
	// SheetNames returns the sheets in workbook order
	SheetNames() []string

	// Rows returns every row of a sheet as text; rows may be ragged
	Rows(sheet string) ([][]string, error)
}

// ExcelWorkbook reads .xlsx files through excelize
type ExcelWorkbook struct {
	file *excelize.File
}

// OpenWorkbook opens an .xlsx workbook for reading
func OpenWorkbook(path string) (*ExcelWorkbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &ExcelWorkbook{file: f}, nil
}

// SheetNames returns the sheets in workbook order
func (w *ExcelWorkbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Rows returns the raw cell values of a sheet. Number formats are not
// applied, so dates arrive as Excel serials and counts without separators.
func (w *ExcelWorkbook) Rows(sheet string) ([][]string, error) {
	rows, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// Close releases the underlying file
func (w *ExcelWorkbook) Close() error {
	return w.file.Close()
}

// MemoryWorkbook is an in-memory Workbook, used for tests and for
// workbooks assembled from other sources
type MemoryWorkbook struct {
	order  []string
	sheets map[string][][]string
}

// NewMemoryWorkbook creates an empty MemoryWorkbook
func NewMemoryWorkbook() *MemoryWorkbook {
	return &MemoryWorkbook{sheets: make(map[string][][]string)}
}

// AddSheet adds or replaces a sheet
func (w *MemoryWorkbook) AddSheet(name string, rows [][]string) *MemoryWorkbook {
	if _, ok := w.sheets[name]; !ok {
		w.order = append(w.order, name)
	}
	w.sheets[name] = rows
	return w
}

// SheetNames returns the sheets in insertion order
func (w *MemoryWorkbook) SheetNames() []string {
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// Rows returns a sheet's rows
func (w *MemoryWorkbook) Rows(sheet string) ([][]string, error) {
	rows, ok := w.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q does not exist", sheet)
	}
	return rows, nil
}

// findSheet returns the workbook's spelling of a sheet name, matching
// case-insensitively after trimming
func findSheet(wb Workbook, name string) (string, bool) {
	want := strings.TrimSpace(name)
	for _, s := range wb.SheetNames() {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return s, true
		}
	}
	return "", false
}
