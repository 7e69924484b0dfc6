// pkg/locator/header.go
package locator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHeaderNotDetected is returned when no scanned row looks like a header
var ErrHeaderNotDetected = errors.New("header not detected")

// Default header detection parameters for community health tables
const (
	DefaultScanRows        = 10
	DefaultPrimaryPrefix   = "(A)"
	DefaultMinPrimary      = 10
	DefaultSecondaryPrefix = "(CYP)"
	DefaultMinSecondary    = 5
)

// HeaderDetector finds the header row of a loosely structured sheet by
// counting cells that carry family prefixes and/or contain required column
// names. A row qualifies only when every configured criterion holds.
type HeaderDetector struct {
	ScanRows        int
	PrimaryPrefix   string
	MinPrimary      int
	SecondaryPrefix string
	MinSecondary    int
	RequiredColumns []string
}

// NewServiceHeaderDetector returns the detector for community health
// tables with adult and children's service columns
func NewServiceHeaderDetector(scanRows int) *HeaderDetector {
	if scanRows <= 0 {
		scanRows = DefaultScanRows
	}
	return &HeaderDetector{
		ScanRows:        scanRows,
		PrimaryPrefix:   DefaultPrimaryPrefix,
		MinPrimary:      DefaultMinPrimary,
		SecondaryPrefix: DefaultSecondaryPrefix,
		MinSecondary:    DefaultMinSecondary,
	}
}

// NewColumnHeaderDetector returns a detector that looks for named columns
func NewColumnHeaderDetector(scanRows int, columns ...string) *HeaderDetector {
	if scanRows <= 0 {
		scanRows = DefaultScanRows
	}
	return &HeaderDetector{ScanRows: scanRows, RequiredColumns: columns}
}

// Detect returns the index of the first qualifying row among the first
// ScanRows rows
func (d *HeaderDetector) Detect(rows [][]string) (int, error) {
	limit := d.ScanRows
	if limit <= 0 {
		limit = DefaultScanRows
	}
	if limit > len(rows) {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		if d.matches(rows[i]) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w in first %d rows", ErrHeaderNotDetected, limit)
}

func (d *HeaderDetector) matches(row []string) bool {
	if d.PrimaryPrefix == "" && d.SecondaryPrefix == "" && len(d.RequiredColumns) == 0 {
		return false
	}

	primary, secondary := 0, 0
	present := make(map[string]bool, len(row))
	for _, cell := range row {
		trimmed := strings.TrimSpace(cell)
		if hasPrefixFold(trimmed, d.PrimaryPrefix) {
			primary++
		}
		if hasPrefixFold(trimmed, d.SecondaryPrefix) {
			secondary++
		}
		present[strings.ToLower(trimmed)] = true
	}

	if d.PrimaryPrefix != "" && primary < d.MinPrimary {
		return false
	}
	if d.SecondaryPrefix != "" && secondary < d.MinSecondary {
		return false
	}
	for _, col := range d.RequiredColumns {
		if !present[strings.ToLower(strings.TrimSpace(col))] {
			return false
		}
	}
	return true
}

func hasPrefixFold(s, prefix string) bool {
	return prefix != "" && len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
