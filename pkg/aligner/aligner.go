// Package aligner lines up organisation rows across the tables of one
// workbook and extracts each organisation's observation vectors.
package aligner

import (
	"sort"
	"strings"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

// Layout describes the fixed columns of a provider-level table
type Layout struct {
	TypeColumn     int    // Column holding the row type
	CodeColumn     int    // Column holding the organisation code
	NameColumn     int    // Column holding the organisation name, -1 if none
	OffsetColumn   int    // First observation column
	Sentinel       string // Row type that marks an organisation row
	VerifyIdentity bool   // Report secondary rows whose code differs
}

// DefaultLayout is the layout of NHS provider-level publications
func DefaultLayout() Layout {
	return Layout{
		TypeColumn:   0,
		CodeColumn:   1,
		NameColumn:   2,
		OffsetColumn: 3,
		Sentinel:     "Provider",
	}
}

// OrgFilter restricts alignment to a set of organisation codes.
// An empty filter admits every code.
type OrgFilter map[string]bool

// NewOrgFilter builds a filter from codes; blanks are ignored
func NewOrgFilter(codes []string) OrgFilter {
	f := make(OrgFilter, len(codes))
	for _, c := range codes {
		if c = normaliseCode(c); c != "" {
			f[c] = true
		}
	}
	return f
}

// Admits reports whether code passes the filter
func (f OrgFilter) Admits(code string) bool {
	return len(f) == 0 || f[normaliseCode(code)]
}

// Codes returns the filter's codes
func (f OrgFilter) Codes() []string {
	out := make([]string, 0, len(f))
	for c := range f {
		out = append(out, c)
	}
	return out
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Duplicate records a repeated organisation code in the primary table.
// The first occurrence is used.
type Duplicate struct {
	Code     string
	FirstRow int
	RowIndex int
}

// Mismatch records a secondary-table row whose code differs from the
// primary table's at the same position
type Mismatch struct {
	Code     string
	Table    model.TableID
	RowIndex int
	Found    string
}

// Alignment holds every qualifying organisation with its vectors
type Alignment struct {
	Primary        model.TableID
	PrimaryMissing bool
	Organisations  []model.OrganisationRow // Primary-table row order
	Duplicates     []Duplicate
	Mismatches     []Mismatch

	vectors map[string]map[model.TableID]model.ObservationVector
}

// Vector returns an organisation's observations from one table. Absent
// tables and rows yield an empty vector.
func (a *Alignment) Vector(code string, table model.TableID) model.ObservationVector {
	byTable, ok := a.vectors[code]
	if !ok {
		return model.ObservationVector{}
	}
	v, ok := byTable[table]
	if !ok {
		return model.ObservationVector{}
	}
	return v
}

// Align finds qualifying organisation rows in the primary table and reads
// the same data-row position from every table.
//
// Alignment is positional: secondary tables are never searched for the
// code. With Layout.VerifyIdentity set, positions where a secondary table
// holds a different code are reported in Mismatches and still used.
func Align(tables map[model.TableID]*model.RawTable, primary model.TableID, filter OrgFilter, layout Layout) *Alignment {
	out := &Alignment{
		Primary: primary,
		vectors: make(map[string]map[model.TableID]model.ObservationVector),
	}

	pt, ok := tables[primary]
	if !ok || pt == nil {
		out.PrimaryMissing = true
		return out
	}

	ids := make([]model.TableID, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	firstSeen := make(map[string]int)
	for idx, row := range pt.DataRows() {
		if !strings.EqualFold(cell(row, layout.TypeColumn), layout.Sentinel) {
			continue
		}
		code := normaliseCode(cell(row, layout.CodeColumn))
		if code == "" || !filter.Admits(code) {
			continue
		}
		if first, dup := firstSeen[code]; dup {
			out.Duplicates = append(out.Duplicates, Duplicate{Code: code, FirstRow: first, RowIndex: idx})
			continue
		}
		firstSeen[code] = idx

		org := model.OrganisationRow{
			Code:     code,
			Name:     cell(row, layout.NameColumn),
			RowIndex: idx,
		}
		out.Organisations = append(out.Organisations, org)

		byTable := make(map[model.TableID]model.ObservationVector, len(tables))
		for _, id := range ids {
			t := tables[id]
			vec, found := vectorAt(t, idx, layout.OffsetColumn)
			byTable[id] = vec
			if layout.VerifyIdentity && found && id != primary {
				if other := normaliseCode(t.DataCell(idx, layout.CodeColumn)); other != code {
					out.Mismatches = append(out.Mismatches, Mismatch{
						Code:     code,
						Table:    id,
						RowIndex: idx,
						Found:    other,
					})
				}
			}
		}
		out.vectors[code] = byTable
	}

	return out
}

// vectorAt copies the cells of data row idx from offset to the row end
func vectorAt(t *model.RawTable, idx, offset int) (model.ObservationVector, bool) {
	rows := t.DataRows()
	if idx < 0 || idx >= len(rows) {
		return model.ObservationVector{}, false
	}
	row := rows[idx]
	if offset >= len(row) {
		return model.ObservationVector{}, true
	}
	vec := make(model.ObservationVector, len(row)-offset)
	copy(vec, row[offset:])
	return vec, true
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
