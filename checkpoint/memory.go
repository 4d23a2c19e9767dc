package checkpoint

import (
	"sort"
	"sync"

	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
)

// MemoryStore is flowgraph's in-memory store with sealed payloads. Runs do
// not survive the process, which makes it suitable for offline runs and
// tests.
type MemoryStore struct {
	sealed

	mu   sync.Mutex
	runs map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sealed: sealed{fgcheckpoint.NewMemoryStore()},
		runs:   make(map[string]struct{}),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(runID, nodeID string, data []byte) error {
	if err := m.sealed.Save(runID, nodeID, data); err != nil {
		return err
	}
	m.mu.Lock()
	m.runs[runID] = struct{}{}
	m.mu.Unlock()
	return nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	if err := m.sealed.DeleteRun(runID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.runs, runID)
	m.mu.Unlock()
	return nil
}

// Runs implements Store.
func (m *MemoryStore) Runs() ([]string, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	out := ids[:0]
	for _, id := range ids {
		infos, err := m.List(id)
		if err != nil {
			return nil, err
		}
		if len(infos) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
