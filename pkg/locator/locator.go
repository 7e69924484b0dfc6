// Package locator finds logical tables inside spreadsheet workbooks: it
// resolves sheet candidates and detects header rows.
package locator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// TableSpec describes where one logical table lives
type TableSpec struct {
	ID         model.TableID
	Candidates SheetCandidates
	SkipRows   *int            // Fixed header row; takes precedence over Detector
	Detector   *HeaderDetector // Used when SkipRows is nil
}

// AbsentTable records why a table could not be located
type AbsentTable struct {
	ID     model.TableID
	Reason string
	Err    error
}

// Located is the result of locating a set of tables in one workbook
type Located struct {
	Tables map[model.TableID]*model.RawTable
	Absent []AbsentTable
}

// Table returns a located table or nil
func (l *Located) Table(id model.TableID) *model.RawTable {
	return l.Tables[id]
}

// IsAbsent reports whether a table was not located
func (l *Located) IsAbsent(id model.TableID) bool {
	_, ok := l.Tables[id]
	return !ok
}

// AbsentIDs returns the ids of absent tables in the order they were requested
func (l *Located) AbsentIDs() []string {
	ids := make([]string, 0, len(l.Absent))
	for _, a := range l.Absent {
		ids = append(ids, string(a.ID))
	}
	return ids
}

// Locator resolves TableSpecs against workbooks
type Locator struct {
	logger *zap.Logger
}

// NewLocator creates a new Locator
func NewLocator(logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.L().Named("locator")
	}
	return &Locator{logger: logger}
}

// Locate reads every table in specs. A table that cannot be read is
// recorded as absent and the remaining tables are still processed. The
// only error returned is context cancellation.
func (l *Locator) Locate(ctx context.Context, wb Workbook, specs []TableSpec) (*Located, error) {
	out := &Located{Tables: make(map[model.TableID]*model.RawTable, len(specs))}

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		table, err := l.locateOne(wb, spec)
		if err != nil {
			l.logger.Debug("Table absent",
				zap.String("table", string(spec.ID)),
				zap.Error(err))
			out.Absent = append(out.Absent, AbsentTable{ID: spec.ID, Reason: err.Error(), Err: err})
			continue
		}

		l.logger.Debug("Located table",
			zap.String("table", string(spec.ID)),
			zap.String("sheet", table.Sheet),
			zap.Int("header_row", table.HeaderRow),
			zap.Int("data_rows", table.DataRowCount()))
		out.Tables[spec.ID] = table
	}

	return out, nil
}

func (l *Locator) locateOne(wb Workbook, spec TableSpec) (*model.RawTable, error) {
	candidates := spec.Candidates
	if len(candidates) == 0 {
		candidates = SheetCandidates{string(spec.ID)}
	}

	sheet, rows, err := candidates.Resolve(wb)
	if err != nil {
		return nil, err
	}

	table := model.NewRawTable(spec.ID, sheet, rows)
	switch {
	case spec.SkipRows != nil:
		if *spec.SkipRows < 0 || *spec.SkipRows >= len(rows) {
			return nil, fmt.Errorf("%w: fixed header row %d outside sheet %q with %d rows",
				ErrHeaderNotDetected, *spec.SkipRows, sheet, len(rows))
		}
		table.HeaderRow = *spec.SkipRows
	case spec.Detector != nil:
		idx, err := spec.Detector.Detect(rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		table.HeaderRow = idx
	}

	return table, nil
}

// Skip returns a pointer to a fixed header row index for TableSpec.SkipRows
func Skip(n int) *int {
	return &n
}
