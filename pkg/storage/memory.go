package storage

import "sync"

// MemoryStore is an in-memory BlobStore.
// Useful for testing and development. Data is lost when the process exits.
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string][]byte
	failWrites bool
	commits    int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

// Set stores a copy of value.
func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return ErrWriteFailed
	}
	m.data[key] = clone(value)
	return nil
}

// Erase removes key.
func (m *MemoryStore) Erase(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return ErrWriteFailed
	}
	delete(m.data, key)
	return nil
}

// Commit counts the call. Memory writes are immediate.
func (m *MemoryStore) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return ErrWriteFailed
	}
	m.commits++
	return nil
}

// FailWrites makes every later Set, Erase and Commit return
// ErrWriteFailed until called again with false.
func (m *MemoryStore) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// Commits returns how many commits succeeded.
func (m *MemoryStore) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// Keys returns the number of stored keys.
func (m *MemoryStore) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
