// Package labels maps free-text spreadsheet labels (service names, cancer
// types, routes, treatment modalities, standards) to canonical snake_case keys.
//
// The dictionaries are versioned YAML data embedded in the binary and are
// immutable once loaded.
package labels

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LabelMap is a static dictionary from raw label text to canonical key
type LabelMap struct {
	Name    string
	Version string
	Prefix  string // Family marker stripped before the second lookup, e.g. "(A)"

	entries map[string]string  // folded raw label -> key
	weights map[string]float64 // key -> relative weight (optional)
}

type mapFile struct {
	Name    string      `yaml:"name"`
	Version string      `yaml:"version"`
	Prefix  string      `yaml:"prefix"`
	Entries []mapRecord `yaml:"entries"`
}

type mapRecord struct {
	Label   string   `yaml:"label"`
	Key     string   `yaml:"key"`
	Aliases []string `yaml:"aliases"`
	Weight  *float64 `yaml:"weight"`
}

// ParseLabelMap decodes and validates one YAML dictionary.
// Canonical keys must be unique and no raw label may map to two keys.
func ParseLabelMap(data []byte) (*LabelMap, error) {
	var f mapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse label map: %w", err)
	}
	if f.Name == "" {
		return nil, errors.New("label map has no name")
	}

	m := &LabelMap{
		Name:    f.Name,
		Version: f.Version,
		Prefix:  strings.TrimSpace(f.Prefix),
		entries: make(map[string]string),
		weights: make(map[string]float64),
	}

	seenKeys := make(map[string]bool)
	for _, rec := range f.Entries {
		key := strings.TrimSpace(rec.Key)
		if key == "" {
			return nil, fmt.Errorf("label map %s: entry %q has no key", f.Name, rec.Label)
		}
		if seenKeys[key] {
			return nil, fmt.Errorf("label map %s: duplicate canonical key %q", f.Name, key)
		}
		seenKeys[key] = true

		for _, raw := range append([]string{rec.Label}, rec.Aliases...) {
			folded := fold(raw)
			if folded == "" {
				continue
			}
			if existing, ok := m.entries[folded]; ok && existing != key {
				return nil, fmt.Errorf("label map %s: label %q maps to both %q and %q",
					f.Name, raw, existing, key)
			}
			m.entries[folded] = key
		}

		if rec.Weight != nil {
			m.weights[key] = *rec.Weight
		}
	}

	return m, nil
}

// Lookup returns the canonical key for a raw label without any fallback.
// Labels match after trimming, whitespace collapsing and case folding; when
// the map declares a family prefix and the label carries it, the prefix is
// stripped and the lookup repeated. No other fuzzy matching is applied.
func (m *LabelMap) Lookup(raw string) (string, bool) {
	if m == nil {
		return "", false
	}
	if key, ok := m.entries[fold(raw)]; ok {
		return key, true
	}
	if stripped, ok := StripPrefix(raw, m.Prefix); ok {
		if key, ok := m.entries[fold(stripped)]; ok {
			return key, true
		}
	}
	return "", false
}

// Weight returns the relative weight configured for a canonical key
func (m *LabelMap) Weight(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	w, ok := m.weights[key]
	return w, ok
}

// StripPrefix removes a leading family marker such as "(CYP)" from a label.
// The comparison ignores case; the second return value reports whether the
// prefix was present.
func StripPrefix(raw, prefix string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if prefix == "" || len(trimmed) < len(prefix) {
		return trimmed, false
	}
	if !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return trimmed, false
	}
	return strings.TrimSpace(trimmed[len(prefix):]), true
}

// fold normalises a label for dictionary lookups
func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
