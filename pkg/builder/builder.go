// Package builder turns aligned observation vectors into nested aggregate
// documents with derived statistics. Documents are built entirely in memory
// and never mutated after they are returned.
package builder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/nhs-ingress/pkg/labels"
)

// Builder holds the label dictionaries used to classify spreadsheet labels
type Builder struct {
	logger *zap.Logger

	adult     *labels.LabelMap
	cyp       *labels.LabelMap
	standards *labels.LabelMap
	types     *labels.LabelMap
	routes    *labels.LabelMap
	modality  *labels.LabelMap
}

// NewBuilder resolves the dictionaries it needs from the registry
func NewBuilder(registry *labels.Registry, logger *zap.Logger) (*Builder, error) {
	if registry == nil {
		return nil, fmt.Errorf("label registry cannot be nil")
	}
	if logger == nil {
		logger = zap.L().Named("builder")
	}

	b := &Builder{logger: logger}
	for name, dst := range map[string]**labels.LabelMap{
		labels.CommunityAdult:    &b.adult,
		labels.CommunityCYP:      &b.cyp,
		labels.CancerStandard:    &b.standards,
		labels.CancerType:        &b.types,
		labels.CancerRoute:       &b.routes,
		labels.TreatmentModality: &b.modality,
	} {
		m, err := registry.Map(name)
		if err != nil {
			return nil, err
		}
		*dst = m
	}
	return b, nil
}

// mapVersions records which dictionary versions produced a document
func mapVersions(maps ...*labels.LabelMap) map[string]string {
	out := make(map[string]string, len(maps))
	for _, m := range maps {
		out[m.Name] = m.Version
	}
	return out
}
