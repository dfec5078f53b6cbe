package database

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store used by tests and memory:// URLs.
type MemoryStore struct {
	mu      sync.Mutex
	options map[string][]byte
	logs    []EmailLog
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{options: make(map[string][]byte)}
}

func (m *MemoryStore) GetOption(_ context.Context, name string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.options[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) SetOption(_ context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[name] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) AppendLog(_ context.Context, entry *EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.logs = append(m.logs, *entry)
	return nil
}

// newestFirst returns a sorted copy of the logs; callers hold mu.
func (m *MemoryStore) newestFirst() []EmailLog {
	out := append([]EmailLog(nil), m.logs...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemoryStore) QueryLogs(_ context.Context, filter LogFilter) ([]EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmailLog
	for _, l := range m.newestFirst() {
		if !filter.matches(&l) {
			continue
		}
		out = append(out, l)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteLogs(_ context.Context, filter LogFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.logs[:0]
	var removed int64
	for _, l := range m.logs {
		if filter.matches(&l) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return removed, nil
}

func (m *MemoryStore) CountLogs(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs), nil
}

func (m *MemoryStore) TrimLogs(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	if len(m.logs) <= keep {
		return 0, nil
	}
	sorted := m.newestFirst()
	removed := int64(len(sorted) - keep)
	// restore insertion order for the survivors
	survivors := sorted[:keep]
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].ID < survivors[j].ID })
	m.logs = survivors
	return removed, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
