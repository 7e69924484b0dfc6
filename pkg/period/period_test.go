package period

import (
	"errors"
	"testing"
	"time"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		want    time.Time
		wantErr bool
	}{
		{"january to march use second year", "X-2024-25-March.xlsx", date(2025, time.March, 1), false},
		{"april onwards use first year", "X-2024-25-August.xlsx", date(2024, time.August, 1), false},
		{"april boundary", "Community-health-services-waiting-lists-2023-24-April.xlsx", date(2023, time.April, 1), false},
		{"abbreviated month", "CHS-2024-25-Jan.xlsx", date(2025, time.January, 1), false},
		{"case insensitive", "/data/in/CHS-2024-25-FEBRUARY.XLSX", date(2025, time.February, 1), false},
		{"second year not enforced", "CHS-2024-99-May.xlsx", date(2024, time.May, 1), false},
		{"no period", "cancer-extract.xlsx", time.Time{}, true},
		{"unknown month", "CHS-2024-25-Smarch.xlsx", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := FromFilename(tt.file)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvable) {
					t.Fatalf("expected ErrUnresolvable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !key.Period.Equal(tt.want) {
				t.Errorf("period = %s, want %s", key.PeriodString(), tt.want.Format("2006-01-02"))
			}
			if key.Granularity != model.GranularityMonthly {
				t.Errorf("granularity = %s, want monthly", key.Granularity)
			}
		})
	}
}

func TestFromDate(t *testing.T) {
	tests := []struct {
		in      time.Time
		wantEnd time.Time
		short   string
	}{
		{date(2024, time.February, 14), date(2024, time.February, 29), "Feb"},
		{date(2023, time.February, 1), date(2023, time.February, 28), "Feb"},
		{date(2024, time.December, 31), date(2024, time.December, 31), "Dec"},
		{date(2024, time.April, 30), date(2024, time.April, 30), "Apr"},
	}

	for _, tt := range tests {
		m := FromDate(tt.in)
		if m.Start.Day() != 1 || m.Start.Month() != tt.in.Month() {
			t.Errorf("FromDate(%s).Start = %s", tt.in, m.Start)
		}
		if !m.End.Equal(tt.wantEnd) {
			t.Errorf("FromDate(%s).End = %s, want %s", tt.in, m.End, tt.wantEnd)
		}
		if m.Short != tt.short || m.Number != int(tt.in.Month()) {
			t.Errorf("FromDate(%s) = %+v", tt.in, m)
		}
	}
}

func TestFiscalYear(t *testing.T) {
	if got := FiscalYear(date(2024, time.April, 1)); got != "2024-25" {
		t.Errorf("April 2024 = %s, want 2024-25", got)
	}
	if got := FiscalYear(date(2025, time.March, 31)); got != "2024-25" {
		t.Errorf("March 2025 = %s, want 2024-25", got)
	}
	if got := FiscalYear(date(2099, time.June, 1)); got != "2099-00" {
		t.Errorf("June 2099 = %s, want 2099-00", got)
	}
}

func TestParseDateCell(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-31", date(2024, time.January, 31)},
		{"2024-01-31 00:00:00", date(2024, time.January, 31)},
		{"31/01/2024", date(2024, time.January, 31)},
		{"45322", date(2024, time.January, 31)},
		{"Jan-24", date(2024, time.January, 1)},
		{"2024-01", date(2024, time.January, 1)},
		{"January 2024", date(2024, time.January, 1)},
	}

	for _, tt := range tests {
		got, err := ParseDateCell(tt.in)
		if err != nil {
			t.Errorf("ParseDateCell(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDateCell(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "not a date", "-3"} {
		if _, err := ParseDateCell(bad); !errors.Is(err, ErrUnresolvable) {
			t.Errorf("ParseDateCell(%q) expected ErrUnresolvable, got %v", bad, err)
		}
	}
}

func TestQuarterFor(t *testing.T) {
	tests := []struct {
		name      string
		months    []string
		fileYear  int
		wantLabel string
		wantStart time.Time
		wantErr   bool
	}{
		{"q4 uses following year", []string{"JAN", "FEB", "MAR"}, 2024, "2025-Q4", date(2025, time.January, 1), false},
		{"q1", []string{"APR", "MAY", "JUN"}, 2024, "2024-Q1", date(2024, time.April, 1), false},
		{"q2 full names", []string{"July", "August", "September"}, 2024, "2024-Q2", date(2024, time.July, 1), false},
		{"q3 unordered with repeats", []string{"Dec", "oct", "Nov", "DEC"}, 2023, "2023-Q3", date(2023, time.October, 1), false},
		{"incomplete quarter", []string{"JAN", "FEB"}, 2024, "", time.Time{}, true},
		{"mixed quarters", []string{"MAR", "APR", "MAY"}, 2024, "", time.Time{}, true},
		{"unknown month", []string{"JAN", "FEB", "XYZ"}, 2024, "", time.Time{}, true},
		{"numbers are not months", []string{"13", "FEB", "MAR"}, 2024, "", time.Time{}, true},
		{"serial date is not a month", []string{"45658", "FEB", "MAR"}, 2024, "", time.Time{}, true},
		{"month-year text", []string{"Jan-25", "2025-02", "MAR"}, 2024, "2025-Q4", date(2025, time.January, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := QuarterFor(tt.months, tt.fileYear)
			if tt.wantErr {
				if !errors.Is(err, ErrUnresolvable) {
					t.Fatalf("expected ErrUnresolvable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Label != tt.wantLabel {
				t.Errorf("label = %s, want %s", q.Label, tt.wantLabel)
			}
			if !q.Start.Equal(tt.wantStart) {
				t.Errorf("start = %s, want %s", q.Start, tt.wantStart)
			}
			if q.Key().Granularity != model.GranularityQuarterly {
				t.Errorf("granularity = %s, want quarterly", q.Key().Granularity)
			}
		})
	}
}

func TestQuarterOf(t *testing.T) {
	q := QuarterOf(date(2025, time.February, 10))
	if q.Label != "2025-Q4" || q.FiscalYear != "2024-25" {
		t.Errorf("QuarterOf(Feb 2025) = %+v", q)
	}
	if !q.End.Equal(date(2025, time.March, 31)) {
		t.Errorf("end = %s, want 2025-03-31", q.End)
	}
	if !q.Contains(date(2025, time.March, 31)) || q.Contains(date(2025, time.April, 1)) {
		t.Error("Contains boundaries wrong")
	}
}
