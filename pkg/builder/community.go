// pkg/builder/community.go
package builder

import (
	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/aligner"
	"github.com/David-Botos/nhs-ingress/pkg/cleaner"
	"github.com/David-Botos/nhs-ingress/pkg/labels"
	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// Community health tables: the waiting list totals and one table per wait band
const TotalsTable model.TableID = "Table 4"

// WaitBand is one waiting-time band and the table that reports it
type WaitBand struct {
	Key      string
	Table    model.TableID
	Within18 bool // Band lies entirely within 18 weeks
	Over52   bool // Longest-wait band
}

// WaitBands lists the bands in ascending order of wait
var WaitBands = []WaitBand{
	{Key: "0_1_weeks", Table: "Table 4a", Within18: true},
	{Key: "1_2_weeks", Table: "Table 4b", Within18: true},
	{Key: "2_4_weeks", Table: "Table 4c", Within18: true},
	{Key: "4_12_weeks", Table: "Table 4d", Within18: true},
	{Key: "12_18_weeks", Table: "Table 4e", Within18: true},
	{Key: "18_52_weeks", Table: "Table 4f"},
	{Key: "52_plus_weeks", Table: "Table 4g", Over52: true},
}

// CommunityTableIDs returns the totals table followed by every band table
func CommunityTableIDs() []model.TableID {
	ids := []model.TableID{TotalsTable}
	for _, b := range WaitBands {
		ids = append(ids, b.Table)
	}
	return ids
}

// Community document categories
const (
	CategoryAdult = "adult_services"
	CategoryCYP   = "cyp_services"
)

// ServiceBucket is one service's waiting list profile
type ServiceBucket struct {
	WaitBands        map[string]float64 `json:"wait_bands"`
	TotalWaiting     float64            `json:"total_waiting"`
	Within18Weeks    float64            `json:"within_18_weeks"`
	Over18Weeks      float64            `json:"over_18_weeks"`
	Over52Weeks      float64            `json:"over_52_weeks"`
	PctWithin18Weeks float64            `json:"pct_within_18_weeks"`
}

// CategorySummary totals one service category
type CategorySummary struct {
	ServiceCount     int     `json:"service_count"`
	TotalWaiting     float64 `json:"total_waiting"`
	Within18Weeks    float64 `json:"within_18_weeks"`
	PctWithin18Weeks float64 `json:"pct_within_18_weeks"`
}

// CommunityMetadata describes how a community document was built
type CommunityMetadata struct {
	OrganisationCode            string            `json:"organisation_code"`
	OrganisationName            string            `json:"organisation_name,omitempty"`
	Period                      string            `json:"period"`
	Granularity                 model.Granularity `json:"granularity"`
	ServicesReported            int               `json:"services_reported"`
	AdultServicesReported       int               `json:"adult_services_reported"`
	CYPServicesReported         int               `json:"cyp_services_reported"`
	TotalWaiting                float64           `json:"total_waiting"`
	TotalOver52Weeks            float64           `json:"total_over_52_weeks"`
	ServicesWith52PlusWeekWaits int               `json:"services_with_52_plus_week_waits"`
	PctWithin18Weeks            float64           `json:"pct_within_18_weeks"`
	DroppedLabelCount           int               `json:"dropped_label_count"`
	DroppedLabels               []string          `json:"dropped_labels"`
	UnstableLabels              []string          `json:"unstable_labels"`
	UnmappedTables              []string          `json:"unmapped_tables"`
	SourceTables                []string          `json:"source_tables"`
	CoercedCells                int               `json:"coerced_cells"`
	LabelMapVersions            map[string]string `json:"label_map_versions"`
}

// CommunityDocument is the community_health_data document of one
// organisation and period
type CommunityDocument struct {
	AdultServices   map[string]ServiceBucket   `json:"adult_services"`
	CYPServices     map[string]ServiceBucket   `json:"cyp_services"`
	CategorySummary map[string]CategorySummary `json:"category_summary"`
	Metadata        CommunityMetadata          `json:"metadata"`
}

// CommunityInput is everything needed to build one organisation's document
type CommunityInput struct {
	Organisation model.OrganisationRow
	Period       model.PeriodKey
	Labels       []string                                  // Service labels from the totals header, offset applied
	Totals       model.ObservationVector                   // From TotalsTable
	Bands        map[model.TableID]model.ObservationVector // From the band tables, absent tables omitted
	AbsentTables []string
	SourceTables []string
}

// NewCommunityInput collects one organisation's vectors from an alignment
func NewCommunityInput(
	a *aligner.Alignment,
	tables map[model.TableID]*model.RawTable,
	org model.OrganisationRow,
	period model.PeriodKey,
	layout aligner.Layout,
) CommunityInput {
	in := CommunityInput{
		Organisation: org,
		Period:       period.WithOrganisation(org.Code),
		Totals:       a.Vector(org.Code, TotalsTable),
		Bands:        make(map[model.TableID]model.ObservationVector, len(WaitBands)),
	}

	if t, ok := tables[TotalsTable]; ok {
		header := t.Header()
		if layout.OffsetColumn < len(header) {
			in.Labels = header[layout.OffsetColumn:]
		}
	}

	for _, id := range CommunityTableIDs() {
		if _, ok := tables[id]; !ok {
			in.AbsentTables = append(in.AbsentTables, string(id))
			continue
		}
		in.SourceTables = append(in.SourceTables, string(id))
		if id != TotalsTable {
			in.Bands[id] = a.Vector(org.Code, id)
		}
	}
	return in
}

// BuildCommunity builds the community health document for one organisation.
// Services whose total is absent, non-numeric or not positive are skipped;
// labels unknown to both service dictionaries are dropped and listed in the
// metadata. Malformed band cells count as zero.
func (b *Builder) BuildCommunity(in CommunityInput) (*CommunityDocument, []model.CleaningOperation) {
	cells := cleaner.NewCellCleaner(b.logger)
	doc := &CommunityDocument{
		AdultServices:   make(map[string]ServiceBucket),
		CYPServices:     make(map[string]ServiceBucket),
		CategorySummary: make(map[string]CategorySummary),
	}

	dropped := labelSet{}
	unstable := labelSet{}
	droppedCount := 0

	for i, raw := range in.Labels {
		if isBlank(raw) {
			continue
		}

		totalCell, _ := in.Totals.At(i)
		total, ok := cells.Total(totalCell)
		if !ok {
			continue
		}

		idx, res := labels.Classify(raw, b.adult, b.cyp)
		if idx < 0 {
			droppedCount++
			dropped.add(trim(raw))
			unstable.add(res.Key)
			continue
		}

		bucket := ServiceBucket{
			WaitBands:    make(map[string]float64, len(WaitBands)),
			TotalWaiting: total,
		}
		for _, band := range WaitBands {
			cell, _ := in.Bands[band.Table].At(i)
			bucket.WaitBands[band.Key] = cells.Count(model.CleaningContext{
				TableID:      band.Table,
				Organisation: in.Organisation.Code,
				Label:        raw,
			}, cell)
		}

		target := doc.AdultServices
		if idx == 1 {
			target = doc.CYPServices
		}
		if existing, ok := target[res.Key]; ok {
			bucket = mergeService(existing, bucket)
		}
		target[res.Key] = finaliseService(bucket)
	}

	doc.CategorySummary[CategoryAdult] = summarise(doc.AdultServices)
	doc.CategorySummary[CategoryCYP] = summarise(doc.CYPServices)

	md := CommunityMetadata{
		OrganisationCode:      in.Organisation.Code,
		OrganisationName:      in.Organisation.Name,
		Period:                in.Period.PeriodString(),
		Granularity:           in.Period.Granularity,
		AdultServicesReported: len(doc.AdultServices),
		CYPServicesReported:   len(doc.CYPServices),
		DroppedLabelCount:     droppedCount,
		DroppedLabels:         dropped.sorted(),
		UnstableLabels:        unstable.sorted(),
		UnmappedTables:        nonNil(in.AbsentTables),
		SourceTables:          nonNil(in.SourceTables),
		CoercedCells:          cells.CoercedCount(),
		LabelMapVersions:      mapVersions(b.adult, b.cyp),
	}
	md.ServicesReported = md.AdultServicesReported + md.CYPServicesReported

	var within float64
	for _, services := range []map[string]ServiceBucket{doc.AdultServices, doc.CYPServices} {
		for _, s := range services {
			md.TotalWaiting += s.TotalWaiting
			md.TotalOver52Weeks += s.Over52Weeks
			within += s.Within18Weeks
			if s.Over52Weeks > 0 {
				md.ServicesWith52PlusWeekWaits++
			}
		}
	}
	md.PctWithin18Weeks = PerformancePct(within, md.TotalWaiting)
	doc.Metadata = md

	if droppedCount > 0 {
		b.logger.Debug("Dropped unmapped service labels",
			zap.String("organisation", in.Organisation.Code),
			zap.Int("count", droppedCount),
			zap.Strings("labels", md.DroppedLabels))
	}

	return doc, cells.Operations()
}

// finaliseService derives the band aggregates of a bucket
func finaliseService(s ServiceBucket) ServiceBucket {
	s.Within18Weeks, s.Over18Weeks, s.Over52Weeks = 0, 0, 0
	for _, band := range WaitBands {
		v := s.WaitBands[band.Key]
		if band.Within18 {
			s.Within18Weeks += v
		} else {
			s.Over18Weeks += v
		}
		if band.Over52 {
			s.Over52Weeks += v
		}
	}
	s.PctWithin18Weeks = PerformancePct(s.Within18Weeks, s.TotalWaiting)
	return s
}

// mergeService adds two buckets that normalised to the same service key
func mergeService(a, b ServiceBucket) ServiceBucket {
	out := ServiceBucket{
		WaitBands:    make(map[string]float64, len(WaitBands)),
		TotalWaiting: a.TotalWaiting + b.TotalWaiting,
	}
	for _, band := range WaitBands {
		out.WaitBands[band.Key] = a.WaitBands[band.Key] + b.WaitBands[band.Key]
	}
	return out
}

func summarise(services map[string]ServiceBucket) CategorySummary {
	var sum CategorySummary
	for _, s := range services {
		sum.ServiceCount++
		sum.TotalWaiting += s.TotalWaiting
		sum.Within18Weeks += s.Within18Weeks
	}
	sum.PctWithin18Weeks = PerformancePct(sum.Within18Weeks, sum.TotalWaiting)
	return sum
}
