// pkg/model/period.go
package model

import (
	"fmt"
	"time"
)

// Granularity is the reporting grain of a stored document
type Granularity string

const (
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
)

// PeriodDateLayout is the ISO date layout used for stored periods
const PeriodDateLayout = "2006-01-02"

// PeriodKey is the upsert key of a document, together with its field name
type PeriodKey struct {
	OrganisationCode string
	Period           time.Time // First day of the period (UTC)
	Granularity      Granularity
	Label            string // Optional display label, e.g. "2025-Q4"
}

// PeriodString returns the period as an ISO date string
func (k PeriodKey) PeriodString() string {
	return k.Period.Format(PeriodDateLayout)
}

// String returns a compact representation used in logs and error records
func (k PeriodKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OrganisationCode, k.PeriodString(), k.Granularity)
}

// WithOrganisation returns a copy of the key for another organisation
func (k PeriodKey) WithOrganisation(code string) PeriodKey {
	k.OrganisationCode = code
	return k
}
