package verify

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Verdict is the outcome of a check or a whole verification
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

var verdictRank = map[Verdict]int{VerdictPass: 0, VerdictWarn: 1, VerdictFail: 2}

func worse(a, b Verdict) Verdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}

// Issue is one violation found by a check
type Issue struct {
	Check            Check   `json:"check"`
	OrganisationCode string  `json:"organisation_code"`
	Period           string  `json:"period"`
	Granularity      string  `json:"granularity"`
	Bucket           string  `json:"bucket,omitempty"`
	Expected         float64 `json:"expected"`
	Actual           float64 `json:"actual"`
	Detail           string  `json:"detail,omitempty"`
}

func (i Issue) String() string {
	where := fmt.Sprintf("%s %s/%s", i.OrganisationCode, i.Period, i.Granularity)
	if i.Bucket != "" {
		where += " " + i.Bucket
	}
	if i.Detail != "" {
		return where + ": " + i.Detail
	}
	return fmt.Sprintf("%s: expected %.2f, got %.2f", where, i.Expected, i.Actual)
}

// CheckResult summarises one check across all documents
type CheckResult struct {
	Check      Check   `json:"check"`
	Checked    int     `json:"checked"`
	Violations int     `json:"violations"`
	Ratio      float64 `json:"ratio"`
	Verdict    Verdict `json:"verdict"`
	Issues     []Issue `json:"issues,omitempty"`
}

// Report contains the results of verifying one document field
type Report struct {
	Field            string        `json:"field"`
	VerificationTime time.Time     `json:"verificationTime"`
	Documents        int           `json:"documents"`
	Checks           []CheckResult `json:"checks"`
	Verdict          Verdict       `json:"verdict"`
	Duration         time.Duration `json:"duration"`
}

// Result returns the result of check, if it ran
func (r *Report) Result(check Check) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Check == check {
			return c, true
		}
	}
	return CheckResult{}, false
}

// WriteText writes a human readable report
func (r *Report) WriteText(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Verification Report: %s\n", r.Field))
	sb.WriteString("========================================\n")
	sb.WriteString(fmt.Sprintf("Verified At: %s\n", r.VerificationTime.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Duration:    %s\n", r.Duration.Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Documents:   %d\n", r.Documents))
	sb.WriteString(fmt.Sprintf("Verdict:     %s\n\n", strings.ToUpper(string(r.Verdict))))

	for _, c := range r.Checks {
		sb.WriteString(fmt.Sprintf("  %-24s %-4s %d/%d violations (%.1f%%)\n",
			c.Check, c.Verdict, c.Violations, c.Checked, c.Ratio*100))
		for _, issue := range c.Issues {
			sb.WriteString("    - " + issue.String() + "\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
