package labels

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of normalising one raw label
type Result struct {
	Raw    string
	Key    string
	Mapped bool // false when Key came from the slug fallback and is unstable
}

// Normalize maps a raw label to its canonical key. Unmapped labels fall back
// to Slug and are returned with Mapped=false; callers must not treat such keys
// as canonical. Never fails.
func Normalize(raw string, m *LabelMap) Result {
	if key, ok := m.Lookup(raw); ok {
		return Result{Raw: raw, Key: key, Mapped: true}
	}
	return Result{Raw: raw, Key: Slug(raw), Mapped: false}
}

// Classify tries each map in order and returns the index of the first map
// that knows the label. Returns -1 with the slug fallback if none does.
func Classify(raw string, maps ...*LabelMap) (int, Result) {
	for i, m := range maps {
		if key, ok := m.Lookup(raw); ok {
			return i, Result{Raw: raw, Key: key, Mapped: true}
		}
	}
	return -1, Result{Raw: raw, Key: Slug(raw), Mapped: false}
}

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug is the fallback key rule: accents folded, lowercase, every run of
// whitespace or punctuation becomes a single underscore, anything else
// outside [a-z0-9_] is dropped.
func Slug(raw string) string {
	folded, _, err := transform.String(accentStripper, strings.TrimSpace(raw))
	if err != nil {
		folded = strings.TrimSpace(raw)
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_' || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			pendingSep = true
		}
	}
	return b.String()
}
