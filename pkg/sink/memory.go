package sink

import (
	"context"
	"sort"
	"sync"

	"github.com/David-Botos/nhs-ingress/pkg/model"
)

type memoryKey struct {
	org         string
	period      string
	granularity model.Granularity
}

// MemorySink keeps documents in process memory with the same key and mode
// semantics as the SQL sinks
type MemorySink struct {
	mode  Mode
	mu    sync.RWMutex
	rows  map[memoryKey]map[string][]byte
	order []memoryKey
	locks *KeyedMutex
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink(mode Mode) *MemorySink {
	if mode == "" {
		mode = ModeUpsert
	}
	return &MemorySink{
		mode:  mode,
		rows:  make(map[memoryKey]map[string][]byte),
		locks: NewKeyedMutex(),
	}
}

// Store replaces one field of a row
func (s *MemorySink) Store(ctx context.Context, key model.PeriodKey, field string, body []byte) (bool, error) {
	if err := checkField(field); err != nil {
		return false, err
	}
	if err := checkKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	mk := memoryKey{org: key.OrganisationCode, period: key.PeriodString(), granularity: key.Granularity}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, exists := s.rows[mk]
	if !exists {
		if s.mode == ModeUpdateOnly {
			return false, nil
		}
		row = make(map[string][]byte)
		s.rows[mk] = row
		s.order = append(s.order, mk)
	}

	stored := make([]byte, len(body))
	copy(stored, body)
	row[field] = stored
	return true, nil
}

// Seed creates an empty row so update-only mode has something to update
func (s *MemorySink) Seed(key model.PeriodKey) {
	mk := memoryKey{org: key.OrganisationCode, period: key.PeriodString(), granularity: key.Granularity}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[mk]; !ok {
		s.rows[mk] = make(map[string][]byte)
		s.order = append(s.order, mk)
	}
}

// Len returns the number of rows
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Documents returns stored documents ordered by organisation, period and
// granularity
func (s *MemorySink) Documents(ctx context.Context, field string, orgs []string) ([]model.StoredDocument, error) {
	if err := checkField(field); err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(orgs))
	for _, o := range orgs {
		want[o] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.StoredDocument
	for _, mk := range s.order {
		if len(want) > 0 && !want[mk.org] {
			continue
		}
		body, ok := s.rows[mk][field]
		if !ok {
			continue
		}
		doc := make([]byte, len(body))
		copy(doc, body)
		out = append(out, model.StoredDocument{
			OrganisationCode: mk.org,
			Period:           mk.period,
			Granularity:      string(mk.granularity),
			Body:             doc,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OrganisationCode != b.OrganisationCode {
			return a.OrganisationCode < b.OrganisationCode
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Granularity < b.Granularity
	})
	return out, ctx.Err()
}

// Close is a no-op
func (s *MemorySink) Close() error {
	return nil
}
