package builder

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/nhs-ingress/internal/fixture"
	"github.com/David-Botos/nhs-ingress/pkg/aligner"
	"github.com/David-Botos/nhs-ingress/pkg/labels"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(labels.MustDefault(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create builder: %v", err)
	}
	return b
}

func monthKey(org string) model.PeriodKey {
	return model.PeriodKey{
		OrganisationCode: org,
		Period:           time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Granularity:      model.GranularityMonthly,
	}
}

// communityTables builds Table 4 and all band tables for one provider with
// services: audiology (100 waiting), physiotherapy (0 waiting),
// (CYP) audiology (40 waiting) and an unknown service (5 waiting)
func communityTables(skip ...model.TableID) map[model.TableID]*model.RawTable {
	header := []string{"Region", "Org code", "Org name",
		"(A) Audiology", "(A) Physiotherapy", "(CYP) Audiology", "(A) Underwater basket weaving", ""}

	values := map[model.TableID][]string{
		"Table 4":  {"100", "0", "40", "5", "9"},
		"Table 4a": {"10", "0", "5", "1", "1"},
		"Table 4b": {"10", "0", "5", "1", "1"},
		"Table 4c": {"20", "0", "10", "1", "1"},
		"Table 4d": {"20", "0", "10", "1", "1"},
		"Table 4e": {"10", "0", "*", "1", "1"},
		"Table 4f": {"25", "0", "10", "0", "1"},
		"Table 4g": {"5", "0", "0", "0", "1"},
	}

	skipped := make(map[model.TableID]bool)
	for _, id := range skip {
		skipped[id] = true
	}

	tables := make(map[model.TableID]*model.RawTable)
	for id, vals := range values {
		if skipped[id] {
			continue
		}
		rows := [][]string{{string(id)}, header, fixture.ProviderRow("RXX", "Trust X", vals...)}
		t := model.NewRawTable(id, string(id), rows)
		t.HeaderRow = 1
		tables[id] = t
	}
	return tables
}

func buildCommunity(t *testing.T, skip ...model.TableID) *CommunityDocument {
	t.Helper()
	tables := communityTables(skip...)
	a := aligner.Align(tables, TotalsTable, nil, aligner.DefaultLayout())
	if len(a.Organisations) != 1 {
		t.Fatalf("expected one organisation, got %d", len(a.Organisations))
	}
	in := NewCommunityInput(a, tables, a.Organisations[0], monthKey(""), aligner.DefaultLayout())
	doc, _ := newTestBuilder(t).BuildCommunity(in)
	return doc
}

func TestBuildCommunitySumConsistency(t *testing.T) {
	doc := buildCommunity(t)

	for _, services := range []map[string]ServiceBucket{doc.AdultServices, doc.CYPServices} {
		for key, s := range services {
			var sum float64
			for _, v := range s.WaitBands {
				sum += v
			}
			if key == "audiology" && math.Abs(sum-s.TotalWaiting) > 0 {
				t.Errorf("%s: sum of bands %v != total %v", key, sum, s.TotalWaiting)
			}
			if s.Within18Weeks+s.Over18Weeks != sum {
				t.Errorf("%s: within %v + over %v != bands %v", key, s.Within18Weeks, s.Over18Weeks, sum)
			}
		}
	}

	audiology := doc.AdultServices["audiology"]
	if audiology.Within18Weeks != 70 || audiology.Over18Weeks != 30 || audiology.Over52Weeks != 5 {
		t.Errorf("audiology aggregates = %+v", audiology)
	}
}

func TestBuildCommunityPercentages(t *testing.T) {
	doc := buildCommunity(t)

	audiology := doc.AdultServices["audiology"]
	if audiology.PctWithin18Weeks != 70.0 {
		t.Errorf("adult audiology pct = %v, want 70.0", audiology.PctWithin18Weeks)
	}

	// (CYP) audiology: suppressed 12-18 band counts as zero, 30 of 40 within
	cyp := doc.CYPServices["audiology"]
	if cyp.WaitBands["12_18_weeks"] != 0 {
		t.Errorf("suppressed band = %v, want 0", cyp.WaitBands["12_18_weeks"])
	}
	if cyp.PctWithin18Weeks != 75.0 {
		t.Errorf("cyp audiology pct = %v, want 75.0", cyp.PctWithin18Weeks)
	}

	// Overall: (70 + 30) / 140
	if got := doc.Metadata.PctWithin18Weeks; got != PerformancePct(100, 140) || got != 71.4 {
		t.Errorf("overall pct = %v, want 71.4", got)
	}
	if doc.Metadata.CoercedCells != 1 {
		t.Errorf("coerced cells = %d, want 1", doc.Metadata.CoercedCells)
	}
}

func TestBuildCommunityZeroActivityFiltered(t *testing.T) {
	doc := buildCommunity(t)

	if _, ok := doc.AdultServices["physiotherapy"]; ok {
		t.Error("service with zero total must be skipped")
	}
	md := doc.Metadata
	if md.ServicesReported != 2 || md.AdultServicesReported != 1 || md.CYPServicesReported != 1 {
		t.Errorf("services reported = %d/%d/%d", md.ServicesReported, md.AdultServicesReported, md.CYPServicesReported)
	}
	if md.TotalWaiting != 140 || md.TotalOver52Weeks != 5 || md.ServicesWith52PlusWeekWaits != 1 {
		t.Errorf("metadata totals = %+v", md)
	}
	if md.DroppedLabelCount != 1 || len(md.DroppedLabels) != 1 || md.DroppedLabels[0] != "(A) Underwater basket weaving" {
		t.Errorf("dropped labels = %d %v", md.DroppedLabelCount, md.DroppedLabels)
	}
	if len(md.UnstableLabels) != 1 || md.UnstableLabels[0] != "a_underwater_basket_weaving" {
		t.Errorf("unstable labels = %v", md.UnstableLabels)
	}

	summary := doc.CategorySummary[CategoryAdult]
	if summary.ServiceCount != 1 || summary.TotalWaiting != 100 {
		t.Errorf("adult summary = %+v", summary)
	}
}

func TestBuildCommunityMissingBandTable(t *testing.T) {
	doc := buildCommunity(t, "Table 4g")

	audiology := doc.AdultServices["audiology"]
	if audiology.WaitBands["52_plus_weeks"] != 0 || audiology.Over52Weeks != 0 {
		t.Errorf("missing band table should contribute zero, got %+v", audiology)
	}
	if got := doc.Metadata.UnmappedTables; len(got) != 1 || got[0] != "Table 4g" {
		t.Errorf("unmapped tables = %v", got)
	}
	if len(doc.Metadata.SourceTables) != 7 {
		t.Errorf("source tables = %v", doc.Metadata.SourceTables)
	}
	if doc.Metadata.ServicesReported != 2 {
		t.Errorf("services reported = %d", doc.Metadata.ServicesReported)
	}
}

func TestBuildCommunityIdempotent(t *testing.T) {
	first, err := json.Marshal(buildCommunity(t))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(buildCommunity(t))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("rebuild %d differs:\n%s\n%s", i, first, again)
		}
	}
}

func cancerRow(standard, cancerType, total, within string) CancerRow {
	return CancerRow{
		Period:     time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		OrgCode:    "RXX",
		Standard:   standard,
		CancerType: cancerType,
		Route:      "Urgent Suspected Cancer",
		Modality:   "Surgery",
		Total:      total,
		Within:     within,
	}
}

func TestBuildCancerWeightedScore(t *testing.T) {
	in := CancerInput{
		Period: monthKey("RXX"),
		Rows: []CancerRow{
			cancerRow("28-day FDS", "Breast", "100", "80"),
			cancerRow("31-day", "Lung", "100", "75"),
			cancerRow("62-day", "Skin", "100", "79"),
		},
	}
	doc, _ := newTestBuilder(t).BuildCancer(in)

	if got := doc.Metadata.OverallPerformanceWeighted; got != 78.0 {
		t.Errorf("weighted score = %v, want 78.0", got)
	}
	if doc.Metadata.StandardsReported != 3 || doc.Metadata.CancerTypesReported != 3 {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.TotalPatients != 300 || doc.Metadata.TotalBreaches != 66 {
		t.Errorf("totals = %v / %v", doc.Metadata.TotalPatients, doc.Metadata.TotalBreaches)
	}
	fds := doc.Standards["fds_28_day"]
	if fds.Weight != 0.2 || fds.ByCancerType["breast"].PerformancePct != 80 {
		t.Errorf("fds block = %+v", fds)
	}
	if fds.ByRoute["urgent_suspected_cancer"].TotalTreated != 100 || fds.ByModality["surgery"].Breaches != 20 {
		t.Errorf("fds breakdowns = %+v %+v", fds.ByRoute, fds.ByModality)
	}
}

func TestBuildCancerAbsentStandardExcludedFromWeights(t *testing.T) {
	in := CancerInput{
		Period: monthKey("RXX"),
		Rows: []CancerRow{
			cancerRow("31-day", "Lung", "100", "90"),
			cancerRow("62-day", "Lung", "100", "70"),
		},
	}
	doc, _ := newTestBuilder(t).BuildCancer(in)

	// (90*0.3 + 70*0.5) / 0.8
	if got := doc.Metadata.OverallPerformanceWeighted; got != 77.5 {
		t.Errorf("weighted score = %v, want 77.5", got)
	}
}

func TestBuildCancerDropsAndDefaults(t *testing.T) {
	rows := []CancerRow{
		cancerRow("Mystery standard", "Breast", "10", "5"),
		cancerRow("62-day", "Unknown organ", "10", "4"),
		cancerRow("62-day", "Lung", "0", "0"),
		cancerRow("62-day", "Lung", "n/a", "3"),
	}
	rows[1].Breaches = ""
	doc, _ := newTestBuilder(t).BuildCancer(CancerInput{Period: monthKey("RXX"), Rows: rows})

	block, ok := doc.Standards["pathway_62_day"]
	if !ok || len(doc.Standards) != 1 {
		t.Fatalf("expected only the 62-day standard, got %v", doc.Standards)
	}
	if block.Summary.TotalTreated != 10 || block.Summary.Breaches != 6 {
		t.Errorf("summary = %+v, want total 10 breaches 6", block.Summary)
	}
	if len(block.ByCancerType) != 0 {
		t.Errorf("unknown cancer type must be dropped, got %v", block.ByCancerType)
	}
	if len(block.ByRoute) != 1 {
		t.Errorf("route breakdown should survive a dropped cancer type, got %v", block.ByRoute)
	}

	md := doc.Metadata
	if md.DroppedLabelCount != 2 {
		t.Errorf("dropped count = %d, want 2", md.DroppedLabelCount)
	}
	if len(md.UnstableLabels) != 2 || md.UnstableLabels[0] != "mystery_standard" || md.UnstableLabels[1] != "unknown_organ" {
		t.Errorf("unstable labels = %v", md.UnstableLabels)
	}
	if md.OverallPerformanceWeighted != 40 {
		t.Errorf("weighted = %v, want 40", md.OverallPerformanceWeighted)
	}
}

func TestBuildCancerIdempotent(t *testing.T) {
	in := CancerInput{
		Period: monthKey("RXX"),
		Rows: []CancerRow{
			cancerRow("28-day FDS", "Breast", "100", "80"),
			cancerRow("28-day FDS", "Lung", "50", "20"),
			cancerRow("62-day", "Skin", "100", "79"),
		},
	}
	b := newTestBuilder(t)
	first, _ := b.BuildCancer(in)
	second, _ := b.BuildCancer(in)

	j1, _ := json.Marshal(first)
	j2, _ := json.Marshal(second)
	if !bytes.Equal(j1, j2) {
		t.Fatalf("rebuild differs:\n%s\n%s", j1, j2)
	}
}

func TestParseCancerRows(t *testing.T) {
	rows := [][]string{
		{"Cancer Waiting Times"},
		fixture.CancerHeader,
		{"2024-04-01", "rxx", "62-day", "Lung", "USC", "Surgery", "10", "8", "2"},
		{"not a date", "RXX", "62-day", "Lung", "USC", "Surgery", "10", "8", "2"},
		{"2024-04-01", "", "62-day"},
		{"45413", "RYY", "31-day", "Breast", "", "", "5", "5", ""},
	}
	tbl := model.NewRawTable(CancerTable, "Extract", rows)
	tbl.HeaderRow = 1

	got, rowErrs, err := ParseCancerRows(tbl, DefaultCancerColumns())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || len(rowErrs) != 1 {
		t.Fatalf("rows=%d errors=%d", len(got), len(rowErrs))
	}
	if got[0].OrgCode != "RXX" || got[1].Period.Month() != time.May {
		t.Errorf("parsed rows = %+v", got)
	}

	groups, order := GroupCancerRows(got)
	if len(order) != 2 || order[0] != "RXX" || len(groups["RYY"]) != 1 {
		t.Errorf("groups = %v %v", order, groups)
	}

	bad := model.NewRawTable(CancerTable, "Extract", [][]string{{"foo"}})
	bad.HeaderRow = 0
	if _, _, err := ParseCancerRows(bad, DefaultCancerColumns()); err == nil {
		t.Error("expected error for missing required columns")
	}
}

func TestPerformancePct(t *testing.T) {
	if PerformancePct(1, 0) != 0 || PerformancePct(5, -1) != 0 {
		t.Error("non-positive totals must give 0")
	}
	if got := PerformancePct(1, 3); got != 33.3 {
		t.Errorf("PerformancePct(1,3) = %v", got)
	}
	if WeightedScore([]float64{50}, []float64{0}) != 0 {
		t.Error("zero weight must give 0")
	}
	if WeightedScore(nil, nil) != 0 {
		t.Error("no standards must give 0")
	}
}
