package storage

import (
	"sync"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

// MemoryStore is an in-process Store, used for dry runs and tests.
type MemoryStore struct {
	mu           sync.Mutex
	history      []string
	runs         []domain.RunLogEntry
	historyLimit int
	runLimit     int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	opts = normalizeOptions(opts)
	return &MemoryStore{historyLimit: opts.HistoryLimit, runLimit: opts.RunLogLimit}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) ReadHistory() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...), nil
}

func (m *MemoryStore) AppendHistory(urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = mergeHistory(m.history, urls, m.historyLimit)
	return nil
}

func (m *MemoryStore) AppendRun(entry domain.RunLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = prependRun(m.runs, entry, m.runLimit)
	return nil
}

func (m *MemoryStore) UpdateRun(id string, patch domain.RunPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return patchRun(m.runs, id, patch)
}

func (m *MemoryStore) ReadRuns() ([]domain.RunLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RunLogEntry(nil), m.runs...), nil
}

func (m *MemoryStore) GetRun(id string) (domain.RunLogEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, true, nil
		}
	}
	return domain.RunLogEntry{}, false, nil
}
