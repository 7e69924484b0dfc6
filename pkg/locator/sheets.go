// pkg/locator/sheets.go
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSheetNotFound is returned when none of a table's candidate sheets can
// be read
var ErrSheetNotFound = errors.New("sheet not found")

// SheetCandidates lists sheet names for one logical table in priority order.
// Publications rename sheets between editions, so a table may carry several.
type SheetCandidates []string

// Resolve returns the first candidate that exists and reads successfully.
// Read failures of earlier candidates are folded into the final error.
func (c SheetCandidates) Resolve(wb Workbook) (string, [][]string, error) {
	var failures []string
	for _, candidate := range c {
		sheet, ok := findSheet(wb, candidate)
		if !ok {
			continue
		}
		rows, err := wb.Rows(sheet)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		return sheet, rows, nil
	}

	if len(failures) > 0 {
		return "", nil, fmt.Errorf("%w: tried %q (%s)", ErrSheetNotFound, []string(c), strings.Join(failures, "; "))
	}
	return "", nil, fmt.Errorf("%w: tried %q", ErrSheetNotFound, []string(c))
}
