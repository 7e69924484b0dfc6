package labels

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Dictionary names shipped with the binary
const (
	CommunityAdult    = "community_adult"
	CommunityCYP      = "community_cyp"
	CancerStandard    = "cancer_standard"
	CancerType        = "cancer_type"
	CancerRoute       = "cancer_route"
	TreatmentModality = "treatment_modality"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Registry is a read-only set of label maps keyed by name
type Registry struct {
	maps map[string]*LabelMap
}

var (
	defaultRegistry *Registry
	defaultErr      error
	defaultOnce     sync.Once
)

// Default returns the process-wide registry built from the embedded
// dictionaries. It is constructed once and never modified.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = loadEmbedded()
	})
	return defaultRegistry, defaultErr
}

// MustDefault is Default for program initialisation
func MustDefault() *Registry {
	r, err := Default()
	if err != nil {
		panic(err)
	}
	return r
}

func loadEmbedded() (*Registry, error) {
	files, err := dataFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to list label maps: %w", err)
	}

	sources := make(map[string][]byte, len(files))
	for _, f := range files {
		data, err := dataFS.ReadFile(path.Join("data", f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read label map %s: %w", f.Name(), err)
		}
		sources[f.Name()] = data
	}
	return NewRegistry(sources)
}

// NewRegistry parses a set of YAML dictionaries. Map names must be unique.
func NewRegistry(sources map[string][]byte) (*Registry, error) {
	r := &Registry{maps: make(map[string]*LabelMap, len(sources))}
	for file, data := range sources {
		m, err := ParseLabelMap(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if _, dup := r.maps[m.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate label map name %q", file, m.Name)
		}
		r.maps[m.Name] = m
	}
	return r, nil
}

// Map returns a dictionary by name
func (r *Registry) Map(name string) (*LabelMap, error) {
	m, ok := r.maps[name]
	if !ok {
		return nil, fmt.Errorf("unknown label map %q", name)
	}
	return m, nil
}

// MustMap returns a dictionary by name and panics if it is missing
func (r *Registry) MustMap(name string) *LabelMap {
	m, err := r.Map(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Names returns the loaded dictionary names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.maps))
	for n := range r.maps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
