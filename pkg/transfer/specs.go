package transfer

import (
	"strings"

	"github.com/David-Botos/nhs-ingress/pkg/builder"
	"github.com/David-Botos/nhs-ingress/pkg/locator"
)

// cancerSheetNames are the sheet names the provider extract has been
// published under
var cancerSheetNames = locator.SheetCandidates{
	string(builder.CancerTable),
	"Provider Extract",
	"CWT CRS Data",
}

// CommunitySpecs returns the table specs for a community health workbook:
// the totals table and the seven wait-band tables
func CommunitySpecs(scanRows int) []locator.TableSpec {
	ids := builder.CommunityTableIDs()
	specs := make([]locator.TableSpec, 0, len(ids))
	for _, id := range ids {
		name := string(id)
		specs = append(specs, locator.TableSpec{
			ID:         id,
			Candidates: locator.SheetCandidates{name, name + " ", strings.ReplaceAll(name, " ", "")},
			Detector:   locator.NewServiceHeaderDetector(scanRows),
		})
	}
	return specs
}

// CancerSpec returns the table spec for a cancer waiting times extract
func CancerSpec(scanRows int, cols builder.CancerColumns) locator.TableSpec {
	return locator.TableSpec{
		ID:         builder.CancerTable,
		Candidates: cancerSheetNames,
		Detector:   locator.NewColumnHeaderDetector(scanRows, cols.Required()...),
	}
}
