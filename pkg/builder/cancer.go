// pkg/builder/cancer.go
package builder

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/cleaner"
	"github.com/David-Botos/nhs-ingress/pkg/labels"
	"github.com/David-Botos/nhs-ingress/pkg/model"
	"github.com/David-Botos/nhs-ingress/pkg/period"
)

// CancerTable is the table id of the cancer waiting times extract
const CancerTable model.TableID = "CWT CRS Provider Extract"

// CancerColumns names the columns of the cancer waiting times extract
type CancerColumns struct {
	Period     string
	OrgCode    string
	Standard   string
	CancerType string
	Route      string
	Modality   string
	Total      string
	Within     string
	Breaches   string
}

// DefaultCancerColumns are the column names used by the provider extract
func DefaultCancerColumns() CancerColumns {
	return CancerColumns{
		Period:     "PERIOD",
		OrgCode:    "ORG_CODE",
		Standard:   "STANDARD",
		CancerType: "CANCER_TYPE",
		Route:      "STAGE_OR_ROUTE",
		Modality:   "TREATMENT_MODALITY",
		Total:      "TOTAL",
		Within:     "WITHIN_STANDARD",
		Breaches:   "BREACHES",
	}
}

// Required lists the columns a header row must contain
func (c CancerColumns) Required() []string {
	return []string{c.Period, c.OrgCode, c.Standard, c.Total, c.Within}
}

// CancerRow is one raw row of the extract
type CancerRow struct {
	Period     time.Time
	OrgCode    string
	Standard   string
	CancerType string
	Route      string
	Modality   string
	Total      string
	Within     string
	Breaches   string
}

// RowError describes an extract row that could not be used
type RowError struct {
	RowIndex int
	Err      error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.RowIndex, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ParseCancerRows reads the extract's data rows. Rows without an
// organisation code are skipped; rows whose period cannot be parsed are
// returned as errors and skipped.
func ParseCancerRows(t *model.RawTable, cols CancerColumns) ([]CancerRow, []RowError, error) {
	idx := make(map[string]int)
	for _, name := range []string{cols.Period, cols.OrgCode, cols.Standard, cols.CancerType,
		cols.Route, cols.Modality, cols.Total, cols.Within, cols.Breaches} {
		idx[name] = t.ColumnIndex(name)
	}
	for _, name := range cols.Required() {
		if idx[name] < 0 {
			return nil, nil, fmt.Errorf("table %s: required column %q not found", t.ID, name)
		}
	}

	var (
		rows    []CancerRow
		rowErrs []RowError
	)
	for i := 0; i < t.DataRowCount(); i++ {
		get := func(name string) string { return t.DataCell(i, idx[name]) }

		org := get(cols.OrgCode)
		if org == "" {
			continue
		}
		when, err := period.ParseDateCell(get(cols.Period))
		if err != nil {
			rowErrs = append(rowErrs, RowError{RowIndex: i, Err: err})
			continue
		}

		rows = append(rows, CancerRow{
			Period:     when,
			OrgCode:    normaliseOrg(org),
			Standard:   get(cols.Standard),
			CancerType: get(cols.CancerType),
			Route:      get(cols.Route),
			Modality:   get(cols.Modality),
			Total:      get(cols.Total),
			Within:     get(cols.Within),
			Breaches:   get(cols.Breaches),
		})
	}
	return rows, rowErrs, nil
}

// CancerBucket holds one breakdown's treatment counts
type CancerBucket struct {
	TotalTreated   float64 `json:"total_treated"`
	WithinStandard float64 `json:"within_standard"`
	Breaches       float64 `json:"breaches"`
	PerformancePct float64 `json:"performance_pct"`
}

func (b CancerBucket) add(total, within, breaches float64) CancerBucket {
	b.TotalTreated += total
	b.WithinStandard += within
	b.Breaches += breaches
	b.PerformancePct = PerformancePct(b.WithinStandard, b.TotalTreated)
	return b
}

// StandardBlock holds every breakdown of one cancer waiting times standard
type StandardBlock struct {
	Summary      CancerBucket            `json:"summary"`
	ByCancerType map[string]CancerBucket `json:"by_cancer_type"`
	ByRoute      map[string]CancerBucket `json:"by_route"`
	ByModality   map[string]CancerBucket `json:"by_modality"`
	Weight       float64                 `json:"weight"`
}

// CancerMetadata describes how a cancer document was built
type CancerMetadata struct {
	OrganisationCode           string            `json:"organisation_code"`
	Period                     string            `json:"period"`
	PeriodLabel                string            `json:"period_label,omitempty"`
	Granularity                model.Granularity `json:"granularity"`
	MonthsCovered              []string          `json:"months_covered"`
	StandardsReported          int               `json:"standards_reported"`
	CancerTypesReported        int               `json:"cancer_types_reported"`
	TotalPatients              float64           `json:"total_patients"`
	TotalBreaches              float64           `json:"total_breaches"`
	OverallPerformanceWeighted float64           `json:"overall_performance_weighted"`
	DroppedLabelCount          int               `json:"dropped_label_count"`
	DroppedLabels              []string          `json:"dropped_labels"`
	UnstableLabels             []string          `json:"unstable_labels"`
	CoercedCells               int               `json:"coerced_cells"`
	LabelMapVersions           map[string]string `json:"label_map_versions"`
}

// CancerDocument is the cancer_data document of one organisation and period
type CancerDocument struct {
	Standards map[string]StandardBlock `json:"standards"`
	Metadata  CancerMetadata           `json:"metadata"`
}

// CancerInput is one organisation's rows for one period
type CancerInput struct {
	Period model.PeriodKey // Carries the organisation code
	Rows   []CancerRow
}

// BuildCancer builds the cancer document for one organisation. Rows with a
// non-positive total or an unknown standard are skipped; an unknown cancer
// type, route or modality drops only that breakdown. Missing breaches are
// derived as total minus within, clamped at zero.
func (b *Builder) BuildCancer(in CancerInput) (*CancerDocument, []model.CleaningOperation) {
	cells := cleaner.NewCellCleaner(b.logger)
	doc := &CancerDocument{Standards: make(map[string]StandardBlock)}

	dropped := labelSet{}
	unstable := labelSet{}
	droppedCount := 0
	months := labelSet{}
	types := labelSet{}

	drop := func(raw string, res labels.Result) {
		droppedCount++
		dropped.add(trim(raw))
		unstable.add(res.Key)
	}

	for _, row := range in.Rows {
		total, ok := cells.Total(row.Total)
		if !ok {
			continue
		}

		std := labels.Normalize(row.Standard, b.standards)
		if !std.Mapped {
			if !isBlank(row.Standard) {
				drop(row.Standard, std)
			}
			continue
		}

		cc := model.CleaningContext{TableID: CancerTable, Organisation: in.Period.OrganisationCode, Label: std.Key}
		within := cells.Count(cc, row.Within)
		breaches, ok := cells.Optional(row.Breaches)
		if !ok || breaches < 0 {
			breaches = math.Max(total-within, 0)
		}

		months.add(row.Period.Format("2006-01"))

		block, exists := doc.Standards[std.Key]
		if !exists {
			block = StandardBlock{
				ByCancerType: make(map[string]CancerBucket),
				ByRoute:      make(map[string]CancerBucket),
				ByModality:   make(map[string]CancerBucket),
			}
			block.Weight, _ = b.standards.Weight(std.Key)
		}
		block.Summary = block.Summary.add(total, within, breaches)

		for _, dim := range []struct {
			raw     string
			m       *labels.LabelMap
			buckets map[string]CancerBucket
		}{
			{row.CancerType, b.types, block.ByCancerType},
			{row.Route, b.routes, block.ByRoute},
			{row.Modality, b.modality, block.ByModality},
		} {
			if isBlank(dim.raw) {
				continue
			}
			res := labels.Normalize(dim.raw, dim.m)
			if !res.Mapped {
				drop(dim.raw, res)
				continue
			}
			dim.buckets[res.Key] = dim.buckets[res.Key].add(total, within, breaches)
			if dim.m == b.types {
				types.add(res.Key)
			}
		}

		doc.Standards[std.Key] = block
	}

	md := CancerMetadata{
		OrganisationCode:    in.Period.OrganisationCode,
		Period:              in.Period.PeriodString(),
		PeriodLabel:         in.Period.Label,
		Granularity:         in.Period.Granularity,
		MonthsCovered:       months.sorted(),
		StandardsReported:   len(doc.Standards),
		CancerTypesReported: len(types),
		DroppedLabelCount:   droppedCount,
		DroppedLabels:       dropped.sorted(),
		UnstableLabels:      unstable.sorted(),
		CoercedCells:        cells.CoercedCount(),
		LabelMapVersions:    mapVersions(b.standards, b.types, b.routes, b.modality),
	}

	keys := make([]string, 0, len(doc.Standards))
	for k := range doc.Standards {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pcts, weights []float64
	for _, k := range keys {
		block := doc.Standards[k]
		md.TotalPatients += block.Summary.TotalTreated
		md.TotalBreaches += block.Summary.Breaches
		if block.Weight > 0 {
			pcts = append(pcts, block.Summary.PerformancePct)
			weights = append(weights, block.Weight)
		}
	}
	md.OverallPerformanceWeighted = WeightedScore(pcts, weights)
	doc.Metadata = md

	if droppedCount > 0 {
		b.logger.Debug("Dropped unmapped cancer labels",
			zap.String("organisation", in.Period.OrganisationCode),
			zap.Int("count", droppedCount),
			zap.Strings("labels", md.DroppedLabels))
	}

	return doc, cells.Operations()
}

// GroupCancerRows splits rows by organisation, keeping row order
func GroupCancerRows(rows []CancerRow) (map[string][]CancerRow, []string) {
	groups := make(map[string][]CancerRow)
	var order []string
	for _, r := range rows {
		if _, ok := groups[r.OrgCode]; !ok {
			order = append(order, r.OrgCode)
		}
		groups[r.OrgCode] = append(groups[r.OrgCode], r)
	}
	return groups, order
}
