// Package period resolves reporting periods from file names and date cells
// using the NHS fiscal year (April to March).
package period

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// ErrUnresolvable is returned when no period can be derived from the input
var ErrUnresolvable = errors.New("period unresolvable")

// filenamePattern matches "<anything>-YYYY-YY-MonthName.<ext>"
var filenamePattern = regexp.MustCompile(`(\d{4})-(\d{2})-([A-Za-z]+)\.[A-Za-z0-9]+$`)

var monthFolder = cases.Fold()

// months is the fixed month-name table, indexed by folded full name and
// three-letter abbreviation
var months = func() map[string]time.Month {
	table := make(map[string]time.Month, 25)
	for m := time.January; m <= time.December; m++ {
		full := monthFolder.String(m.String())
		table[full] = m
		table[full[:3]] = m
	}
	table["sept"] = time.September
	return table
}()

// MonthNumber converts a full or three-letter month name to its number
func MonthNumber(name string) (time.Month, bool) {
	m, ok := months[monthFolder.String(strings.TrimSpace(name))]
	return m, ok
}

// Month describes one calendar month
type Month struct {
	Start  time.Time // First day, UTC midnight
	End    time.Time // Last calendar day, UTC midnight
	Number int
	Short  string // e.g. "Mar"
}

// FromDate returns the calendar month containing t
func FromDate(t time.Time) Month {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Month{
		Start:  start,
		End:    start.AddDate(0, 1, -1),
		Number: int(t.Month()),
		Short:  t.Month().String()[:3],
	}
}

// FiscalStartYear returns the calendar year in which t's fiscal year began
func FiscalStartYear(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year()
	}
	return t.Year() - 1
}

// FiscalYear returns the fiscal year label of t, e.g. "2024-25"
func FiscalYear(t time.Time) string {
	y := FiscalStartYear(t)
	return fmt.Sprintf("%d-%02d", y, (y+1)%100)
}

// MonthInFiscalYear returns the first day of month m in the fiscal year that
// starts in startYear. January to March fall in startYear+1.
func MonthInFiscalYear(startYear int, m time.Month) time.Time {
	year := startYear
	if m < time.April {
		year++
	}
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

// FromFilename derives a monthly period key from a file named
// "<prefix>-YYYY-YY-MonthName.<ext>". The second year is not checked against
// the first.
func FromFilename(name string) (model.PeriodKey, error) {
	base := filepath.Base(name)
	match := filenamePattern.FindStringSubmatch(base)
	if match == nil {
		return model.PeriodKey{}, fmt.Errorf("%w: %q does not contain YYYY-YY-Month", ErrUnresolvable, base)
	}

	startYear, err := strconv.Atoi(match[1])
	if err != nil {
		return model.PeriodKey{}, fmt.Errorf("%w: bad year in %q", ErrUnresolvable, base)
	}

	m, ok := MonthNumber(match[3])
	if !ok {
		return model.PeriodKey{}, fmt.Errorf("%w: unknown month %q in %q", ErrUnresolvable, match[3], base)
	}

	start := MonthInFiscalYear(startYear, m)
	return model.PeriodKey{
		Period:      start,
		Granularity: model.GranularityMonthly,
		Label:       start.Format("2006-01"),
	}, nil
}

// MonthlyKey returns the monthly period key for the month containing t
func MonthlyKey(t time.Time) model.PeriodKey {
	start := FromDate(t).Start
	return model.PeriodKey{
		Period:      start,
		Granularity: model.GranularityMonthly,
		Label:       start.Format("2006-01"),
	}
}

// dateLayouts are tried in order by ParseDateCell
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006-01",
	"Jan-06",
	"January-06",
	"Jan 2006",
	"January 2006",
	"Jan-2006",
	"02-Jan-2006",
	"02-Jan-06",
}

// excelEpoch is day zero of Excel's 1900 date system as used by serials
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDateCell parses a date cell as written in NHS extracts: ISO dates,
// day-first dates, Excel serial numbers and month-year forms such as
// "Jan-24" or "2024-01". The result is truncated to UTC midnight.
func ParseDateCell(s string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("%w: empty date cell", ErrUnresolvable)
	}

	if t, ok := parseDateText(cleaned); ok {
		return t, nil
	}

	if serial, err := strconv.ParseFloat(cleaned, 64); err == nil && serial >= 1 && serial < 2958466 {
		days := int(math.Floor(serial))
		return excelEpoch.AddDate(0, 0, days), nil
	}

	return time.Time{}, fmt.Errorf("%w: cannot parse date %q", ErrUnresolvable, s)
}

// parseDateText tries the textual date layouts only; numbers are rejected
func parseDateText(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
