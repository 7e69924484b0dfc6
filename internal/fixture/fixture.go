// Package fixture builds small NHS-shaped workbooks for tests.
package fixture

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// AdultServices are ten adult service column headers
var AdultServices = []string{
	"(A) Audiology",
	"(A) Community nursing services",
	"(A) Intermediate care and reablement",
	"(A) Musculoskeletal service",
	"(A) Neurorehabilitation (multidisciplinary)",
	"(A) Occupational therapy",
	"(A) Physiotherapy",
	"(A) Podiatry and podiatric surgery",
	"(A) Speech and language therapy",
	"(A) Wheelchair, orthotics, prosthetics and equipment",
}

// CYPServices are five children and young people service column headers
var CYPServices = []string{
	"(CYP) Audiology",
	"(CYP) Community paediatric service",
	"(CYP) Occupational therapy",
	"(CYP) Physiotherapy",
	"(CYP) Speech and language therapy",
}

// CommunityTables are the community health table ids: the totals table
// followed by the seven wait-band tables
var CommunityTables = []string{
	"Table 4", "Table 4a", "Table 4b", "Table 4c", "Table 4d", "Table 4e", "Table 4f", "Table 4g",
}

// ServiceHeader returns the header row used by every community table
func ServiceHeader() []string {
	h := []string{"Region", "Org code", "Org name"}
	h = append(h, AdultServices...)
	return append(h, CYPServices...)
}

// CommunitySheet returns a sheet with a title row, a blank row, the service
// header at index 2 and the given data rows
func CommunitySheet(title string, data ...[]string) [][]string {
	rows := [][]string{{title}, {}, ServiceHeader()}
	return append(rows, data...)
}

// ProviderRow builds an organisation row with values for the service columns
func ProviderRow(code, name string, values ...string) []string {
	return append([]string{"Provider", code, name}, values...)
}

// RegionRow builds a non-provider aggregate row
func RegionRow(code, name string, values ...string) []string {
	return append([]string{"Region", code, name}, values...)
}

// Repeat returns n copies of v
func Repeat(v string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// CancerHeader is the header of the cancer waiting times extract
var CancerHeader = []string{
	"PERIOD", "ORG_CODE", "STANDARD", "CANCER_TYPE", "STAGE_OR_ROUTE",
	"TREATMENT_MODALITY", "TOTAL", "WITHIN_STANDARD", "BREACHES",
}

// Sheet is a named sheet of a fixture workbook
type Sheet struct {
	Name string
	Rows [][]string
}

// WriteXLSX writes the sheets to dir/name and returns the file path
func WriteXLSX(dir, name string, sheets ...Sheet) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return "", fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return "", fmt.Errorf("failed to add sheet %s: %w", s.Name, err)
		}

		for r, row := range s.Rows {
			if len(row) == 0 {
				continue
			}
			cells := make([]interface{}, len(row))
			for c, v := range row {
				cells[c] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return "", err
			}
			if err := f.SetSheetRow(s.Name, cell, &cells); err != nil {
				return "", fmt.Errorf("failed to write row %d of %s: %w", r, s.Name, err)
			}
		}
	}

	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}

// TypedSheet is a sheet whose cells keep their Go types: time.Time values are
// written as Excel dates and numbers get a thousands-separator format, the way
// published extracts store them
type TypedSheet struct {
	Name string
	Rows [][]interface{}
}

// WriteTypedXLSX writes a single typed sheet to dir/name and returns the path
func WriteTypedXLSX(dir, name string, s TypedSheet) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", s.Name); err != nil {
		return "", fmt.Errorf("failed to rename sheet: %w", err)
	}

	thousands := "#,##0"
	numStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &thousands})
	if err != nil {
		return "", fmt.Errorf("failed to create number style: %w", err)
	}

	for r, row := range s.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(s.Name, cell, v); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", cell, err)
			}
			switch v.(type) {
			case int, float64:
				if err := f.SetCellStyle(s.Name, cell, cell, numStyle); err != nil {
					return "", fmt.Errorf("failed to style %s: %w", cell, err)
				}
			}
		}
	}

	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}
