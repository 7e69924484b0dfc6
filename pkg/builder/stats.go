// pkg/builder/stats.go
package builder

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/David-Botos/nhs-ingress/pkg/cleaner"
)

// PerformancePct returns within/total as a percentage rounded to one
// decimal place, or 0 when total is not positive
func PerformancePct(within, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return cleaner.Round(within/total*100, 1)
}

// WeightedScore returns Σ(pct·w)/Σw rounded to one decimal place.
// Zero total weight yields 0.
func WeightedScore(pcts, weights []float64) float64 {
	if len(pcts) == 0 || len(pcts) != len(weights) {
		return 0
	}
	if floats.Sum(weights) <= 0 {
		return 0
	}
	return cleaner.Round(stat.Mean(pcts, weights), 1)
}

// labelSet collects unique strings and returns them sorted
type labelSet map[string]struct{}

func (s labelSet) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s labelSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
