// Package verify re-reads stored documents and recomputes their arithmetic:
// bucket sums against totals, percentages against their parts, bucket
// counts against metadata, and organisation coverage per period.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/David-Botos/nhs-ingress/pkg/builder"
	"github.com/David-Botos/nhs-ingress/pkg/model"
	"github.com/David-Botos/nhs-ingress/pkg/sink"
)

// Tolerances applied by the consistency checks
const (
	SumTolerance = 0.01 // Relative difference between parts and total
	PctTolerance = 0.5  // Percentage points
)

// Check names one family of verification rules
type Check string

const (
	CheckStructure      Check = "document_structure"
	CheckSumConsistency Check = "sum_consistency"
	CheckPctConsistency Check = "percentage_consistency"
	CheckBucketCounts   Check = "bucket_counts"
	CheckCoverage       Check = "coverage"
)

// checkOrder is the report order of checks
var checkOrder = []Check{CheckStructure, CheckSumConsistency, CheckPctConsistency, CheckBucketCounts, CheckCoverage}

// Thresholds turn violation ratios into verdicts
type Thresholds struct {
	FailRatio float64 // Fail when violations/checked exceeds this
	WarnRatio float64 // Warn when violations/checked exceeds this
}

// DefaultThresholds fails a check when more than 10% of its items violate it
// and warns on any violation
func DefaultThresholds() Thresholds {
	return Thresholds{FailRatio: 0.10, WarnRatio: 0}
}

// Verifier checks the documents of one sink
type Verifier struct {
	sink       sink.Sink
	thresholds Thresholds
	expected   []string
	logger     *zap.Logger
	timeout    time.Duration
	maxIssues  int
}

// NewVerifier creates a new verifier
func NewVerifier(s sink.Sink, thresholds Thresholds, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.L().Named("verify")
	}
	return &Verifier{
		sink:       s,
		thresholds: thresholds,
		logger:     logger,
		timeout:    time.Minute * 5,
		maxIssues:  50,
	}
}

// WithTimeout sets a custom timeout for reading documents
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// WithExpectedOrganisations enables the coverage check: every period found
// must have a document for each of codes
func (v *Verifier) WithExpectedOrganisations(codes []string) *Verifier {
	v.expected = append([]string(nil), codes...)
	sort.Strings(v.expected)
	return v
}

// tally accumulates one check's results
type tally struct {
	checked    int
	violations int
	issues     []Issue
}

// Verify reads every stored document of field and runs all checks
func (v *Verifier) Verify(ctx context.Context, field string) (*Report, error) {
	if !model.IsKnownField(field) {
		return nil, fmt.Errorf("%w: %q", sink.ErrUnknownField, field)
	}

	v.logger.Info("Verifying stored documents", zap.String("field", field))

	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	docs, err := v.sink.Documents(ctx, field, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s documents: %w", field, err)
	}

	tallies := make(map[Check]*tally, len(checkOrder))
	for _, c := range checkOrder {
		tallies[c] = &tally{}
	}

	for _, d := range docs {
		ref := docRef{org: d.OrganisationCode, period: d.Period, granularity: d.Granularity}
		switch field {
		case model.FieldCommunityHealth:
			var doc builder.CommunityDocument
			ok := v.decode(tallies, ref, d.Body, &doc)
			if ok {
				v.checkCommunity(tallies, ref, &doc)
			}
		case model.FieldCancer:
			var doc builder.CancerDocument
			ok := v.decode(tallies, ref, d.Body, &doc)
			if ok {
				v.checkCancer(tallies, ref, &doc)
			}
		}
	}

	if len(v.expected) > 0 {
		v.checkCoverage(tallies[CheckCoverage], docs)
	}

	report := &Report{
		Field:            field,
		VerificationTime: startTime,
		Documents:        len(docs),
		Verdict:          VerdictPass,
	}
	for _, c := range checkOrder {
		t := tallies[c]
		if c == CheckCoverage && len(v.expected) == 0 {
			continue
		}
		result := CheckResult{
			Check:      c,
			Checked:    t.checked,
			Violations: t.violations,
			Issues:     t.issues,
		}
		if t.checked > 0 {
			result.Ratio = float64(t.violations) / float64(t.checked)
		}
		result.Verdict = v.verdict(result.Ratio, t.violations)
		if result.Verdict != VerdictPass {
			v.logger.Warn("Verification check found violations",
				zap.String("field", field),
				zap.String("check", string(c)),
				zap.Int("checked", t.checked),
				zap.Int("violations", t.violations),
				zap.String("verdict", string(result.Verdict)))
		}
		report.Checks = append(report.Checks, result)
		report.Verdict = worse(report.Verdict, result.Verdict)
	}
	report.Duration = time.Since(startTime)

	v.logger.Info("Verification completed",
		zap.String("field", field),
		zap.Int("documents", len(docs)),
		zap.String("verdict", string(report.Verdict)),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// verdict applies the thresholds to one check
func (v *Verifier) verdict(ratio float64, violations int) Verdict {
	switch {
	case violations == 0:
		return VerdictPass
	case ratio > v.thresholds.FailRatio:
		return VerdictFail
	case ratio > v.thresholds.WarnRatio:
		return VerdictWarn
	default:
		return VerdictPass
	}
}

type docRef struct {
	org         string
	period      string
	granularity string
}

func (v *Verifier) record(t *tally, check Check, ref docRef, bucket string, expected, actual float64, ok bool) {
	t.checked++
	if ok {
		return
	}
	t.violations++
	if len(t.issues) < v.maxIssues {
		t.issues = append(t.issues, Issue{
			Check:            check,
			OrganisationCode: ref.org,
			Period:           ref.period,
			Granularity:      ref.granularity,
			Bucket:           bucket,
			Expected:         expected,
			Actual:           actual,
		})
	}
}

func (v *Verifier) decode(tallies map[Check]*tally, ref docRef, body []byte, dst interface{}) bool {
	t := tallies[CheckStructure]
	t.checked++
	if err := json.Unmarshal(body, dst); err != nil {
		t.violations++
		if len(t.issues) < v.maxIssues {
			t.issues = append(t.issues, Issue{
				Check:            CheckStructure,
				OrganisationCode: ref.org,
				Period:           ref.period,
				Granularity:      ref.granularity,
				Detail:           err.Error(),
			})
		}
		return false
	}
	return true
}

// sumAgrees reports whether parts are within SumTolerance of total
func sumAgrees(parts, total float64) bool {
	if total == 0 {
		return parts == 0
	}
	return math.Abs(parts-total)/math.Abs(total) <= SumTolerance
}

// pctAgrees reports whether pct matches part/total within PctTolerance
func pctAgrees(pct, part, total float64) bool {
	return math.Abs(pct-expectedPct(part, total)) <= PctTolerance
}

func expectedPct(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

func (v *Verifier) checkCommunity(tallies map[Check]*tally, ref docRef, doc *builder.CommunityDocument) {
	bandsComplete := len(doc.Metadata.UnmappedTables) == 0

	for _, category := range []struct {
		name     string
		services map[string]builder.ServiceBucket
		reported int
	}{
		{builder.CategoryAdult, doc.AdultServices, doc.Metadata.AdultServicesReported},
		{builder.CategoryCYP, doc.CYPServices, doc.Metadata.CYPServicesReported},
	} {
		for _, key := range sortedKeys(category.services) {
			s := category.services[key]
			bucket := category.name + "." + key

			if bandsComplete {
				bands := make([]float64, 0, len(s.WaitBands))
				for _, val := range s.WaitBands {
					bands = append(bands, val)
				}
				sum := floats.Sum(bands)
				v.record(tallies[CheckSumConsistency], CheckSumConsistency, ref, bucket,
					s.TotalWaiting, sum, sumAgrees(sum, s.TotalWaiting))
			}

			v.record(tallies[CheckPctConsistency], CheckPctConsistency, ref, bucket,
				expectedPct(s.Within18Weeks, s.TotalWaiting), s.PctWithin18Weeks,
				pctAgrees(s.PctWithin18Weeks, s.Within18Weeks, s.TotalWaiting))
		}

		v.record(tallies[CheckBucketCounts], CheckBucketCounts, ref, category.name,
			float64(len(category.services)), float64(category.reported),
			len(category.services) == category.reported)

		if summary, ok := doc.CategorySummary[category.name]; ok {
			v.record(tallies[CheckBucketCounts], CheckBucketCounts, ref, category.name+".service_count",
				float64(len(category.services)), float64(summary.ServiceCount),
				len(category.services) == summary.ServiceCount)
		}
	}

	services := len(doc.AdultServices) + len(doc.CYPServices)
	v.record(tallies[CheckBucketCounts], CheckBucketCounts, ref, "services_reported",
		float64(services), float64(doc.Metadata.ServicesReported),
		services == doc.Metadata.ServicesReported)
}

func (v *Verifier) checkCancer(tallies map[Check]*tally, ref docRef, doc *builder.CancerDocument) {
	types := make(map[string]bool)

	checkBucket := func(bucket string, b builder.CancerBucket) {
		v.record(tallies[CheckSumConsistency], CheckSumConsistency, ref, bucket,
			b.TotalTreated, b.WithinStandard+b.Breaches,
			sumAgrees(b.WithinStandard+b.Breaches, b.TotalTreated))
		v.record(tallies[CheckPctConsistency], CheckPctConsistency, ref, bucket,
			expectedPct(b.WithinStandard, b.TotalTreated), b.PerformancePct,
			pctAgrees(b.PerformancePct, b.WithinStandard, b.TotalTreated))
	}

	for _, std := range sortedKeys(doc.Standards) {
		block := doc.Standards[std]
		checkBucket(std+".summary", block.Summary)
		for _, dim := range []struct {
			name    string
			buckets map[string]builder.CancerBucket
		}{
			{"by_cancer_type", block.ByCancerType},
			{"by_route", block.ByRoute},
			{"by_modality", block.ByModality},
		} {
			for _, key := range sortedKeys(dim.buckets) {
				checkBucket(std+"."+dim.name+"."+key, dim.buckets[key])
			}
		}
		for key := range block.ByCancerType {
			types[key] = true
		}
	}

	v.record(tallies[CheckBucketCounts], CheckBucketCounts, ref, "standards_reported",
		float64(len(doc.Standards)), float64(doc.Metadata.StandardsReported),
		len(doc.Standards) == doc.Metadata.StandardsReported)
	v.record(tallies[CheckBucketCounts], CheckBucketCounts, ref, "cancer_types_reported",
		float64(len(types)), float64(doc.Metadata.CancerTypesReported),
		len(types) == doc.Metadata.CancerTypesReported)
}

// checkCoverage expects a document for every expected organisation in every
// period present in the sink
func (v *Verifier) checkCoverage(t *tally, docs []model.StoredDocument) {
	present := make(map[docRef]bool, len(docs))
	periods := make(map[docRef]bool)
	for _, d := range docs {
		present[docRef{org: d.OrganisationCode, period: d.Period, granularity: d.Granularity}] = true
		periods[docRef{period: d.Period, granularity: d.Granularity}] = true
	}

	keys := make([]docRef, 0, len(periods))
	for p := range periods {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].period != keys[j].period {
			return keys[i].period < keys[j].period
		}
		return keys[i].granularity < keys[j].granularity
	})

	for _, p := range keys {
		for _, org := range v.expected {
			ref := docRef{org: org, period: p.period, granularity: p.granularity}
			found := present[ref]
			actual := 0.0
			if found {
				actual = 1
			}
			v.record(t, CheckCoverage, ref, "", 1, actual, found)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
