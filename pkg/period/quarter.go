package period

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// Quarter is one fiscal quarter: Q1 Apr-Jun, Q2 Jul-Sep, Q3 Oct-Dec,
// Q4 Jan-Mar
type Quarter struct {
	Label      string    // "<year>-Q<n>", year+1 for Q4
	Number     int       // 1..4
	Start      time.Time // First day of the quarter's first month
	End        time.Time // Last day of the quarter's last month
	FiscalYear string    // e.g. "2024-25"
}

// Key returns the quarterly period key for the quarter
func (q Quarter) Key() model.PeriodKey {
	return model.PeriodKey{
		Period:      q.Start,
		Granularity: model.GranularityQuarterly,
		Label:       q.Label,
	}
}

// Contains reports whether t falls inside the quarter
func (q Quarter) Contains(t time.Time) bool {
	return !t.Before(q.Start) && !t.After(q.End)
}

// quarterNumber maps a month to its fiscal quarter
func quarterNumber(m time.Month) int {
	return (int(m)+8)%12/3 + 1
}

// firstMonth returns the first month of a fiscal quarter
func firstMonth(n int) time.Month {
	return time.Month((n*3)%12 + 1)
}

func newQuarter(n, fiscalStart int) Quarter {
	start := MonthInFiscalYear(fiscalStart, firstMonth(n))
	labelYear := fiscalStart
	if n == 4 {
		labelYear++
	}
	return Quarter{
		Label:      fmt.Sprintf("%d-Q%d", labelYear, n),
		Number:     n,
		Start:      start,
		End:        start.AddDate(0, 3, -1),
		FiscalYear: fmt.Sprintf("%d-%02d", fiscalStart, (fiscalStart+1)%100),
	}
}

// QuarterOf returns the fiscal quarter containing t
func QuarterOf(t time.Time) Quarter {
	return newQuarter(quarterNumber(t.Month()), FiscalStartYear(t))
}

// QuarterFor resolves the quarter covered by a set of month names reported in
// a file of fiscal year fileYear. Entries are month names or abbreviations,
// or dates written as text ("2025-01", "Jan-25"); Excel serials are not
// accepted. The set must be exactly the three months of one quarter; repeats
// are ignored.
func QuarterFor(monthNames []string, fileYear int) (Quarter, error) {
	set := make(map[time.Month]bool, 3)
	for _, name := range monthNames {
		m, ok := MonthNumber(name)
		if !ok {
			var t time.Time
			if t, ok = parseDateText(strings.TrimSpace(name)); ok {
				m = t.Month()
			}
		}
		if !ok {
			return Quarter{}, fmt.Errorf("%w: unknown month %q", ErrUnresolvable, name)
		}
		set[m] = true
	}

	if len(set) != 3 {
		return Quarter{}, fmt.Errorf("%w: months %s do not form one quarter",
			ErrUnresolvable, describeMonths(set))
	}

	n := 0
	for m := range set {
		q := quarterNumber(m)
		if n != 0 && q != n {
			return Quarter{}, fmt.Errorf("%w: months %s span more than one quarter",
				ErrUnresolvable, describeMonths(set))
		}
		n = q
	}

	return newQuarter(n, fileYear), nil
}

func describeMonths(set map[time.Month]bool) string {
	names := make([]string, 0, len(set))
	ms := make([]int, 0, len(set))
	for m := range set {
		ms = append(ms, int(m))
	}
	sort.Ints(ms)
	for _, m := range ms {
		names = append(names, time.Month(m).String()[:3])
	}
	return "[" + strings.Join(names, " ") + "]"
}
