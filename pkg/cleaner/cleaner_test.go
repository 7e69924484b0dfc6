package cleaner

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in       string
		want     float64
		stripped bool
		err      error
	}{
		{"42", 42, false, nil},
		{" 3.5 ", 3.5, false, nil},
		{"1,234", 1234, true, nil},
		{"12 345", 12345, true, nil},
		{"", 0, false, ErrBlank},
		{"*", 0, false, ErrSentinel},
		{"N/A", 0, false, ErrSentinel},
		{"..", 0, false, ErrSentinel},
	}

	for _, tt := range tests {
		got, stripped, err := ParseNumber(tt.in)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("ParseNumber(%q) err = %v, want %v", tt.in, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNumber(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want || stripped != tt.stripped {
			t.Errorf("ParseNumber(%q) = %v,%v want %v,%v", tt.in, got, stripped, tt.want, tt.stripped)
		}
	}

	if _, _, err := ParseNumber("abc"); err == nil {
		t.Error("expected error for non-numeric text")
	}
}

func TestCellCleanerCount(t *testing.T) {
	c := NewCellCleaner(zaptest.NewLogger(t))
	cc := model.CleaningContext{TableID: "Table 4a", Organisation: "RXX", Label: "(A) Audiology"}

	if got := c.Count(cc, "10"); got != 10 {
		t.Errorf("Count(10) = %v", got)
	}
	if got := c.Count(cc, "*"); got != 0 {
		t.Errorf("Count(*) = %v", got)
	}
	if got := c.Count(cc, "oops"); got != 0 {
		t.Errorf("Count(oops) = %v", got)
	}
	if got := c.Count(cc, "-4"); got != 0 {
		t.Errorf("Count(-4) = %v", got)
	}
	if got := c.Count(cc, "2,500"); got != 2500 {
		t.Errorf("Count(2,500) = %v", got)
	}

	ops := c.Operations()
	if len(ops) != 4 || c.CoercedCount() != 4 {
		t.Fatalf("expected 4 recorded operations, got %d", len(ops))
	}

	wantReasons := []string{ReasonSentinel, ReasonNonNumeric, ReasonNegative, ReasonSeparator}
	for i, op := range ops {
		if op.Reason != wantReasons[i] {
			t.Errorf("op %d reason = %s, want %s", i, op.Reason, wantReasons[i])
		}
		if op.TableID != "Table 4a" || op.Organisation != "RXX" {
			t.Errorf("op %d lost its context: %+v", i, op)
		}
	}
}

func TestCellCleanerTotal(t *testing.T) {
	c := NewCellCleaner(nil)

	for _, raw := range []string{"", "0", "-1", "x", "abc"} {
		if _, ok := c.Total(raw); ok {
			t.Errorf("Total(%q) should be rejected", raw)
		}
	}
	if v, ok := c.Total("1,000"); !ok || v != 1000 {
		t.Errorf("Total(1,000) = %v,%v", v, ok)
	}
	if c.CoercedCount() != 0 {
		t.Error("rejected totals must not be recorded")
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{78.04, 78.0},
		{12.25, 12.3},
		{66.666, 66.7},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round(tt.in, 1); got != tt.want {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
