package storage

import (
	"context"
	"sync"
)

// MemoryHashStore is an in-memory HashStore for development and tests.
// It does not survive a restart.
type MemoryHashStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryHashStore creates an empty store
func NewMemoryHashStore() *MemoryHashStore {
	return &MemoryHashStore{data: make(map[string]map[string]string)}
}

func (m *MemoryHashStore) Get(_ context.Context, namespace, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[namespace][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryHashStore) Set(_ context.Context, namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespace(namespace)[key] = value
	return nil
}

func (m *MemoryHashStore) SetMany(_ context.Context, namespace string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.namespace(namespace)
	for key, value := range values {
		ns[key] = value
	}
	return nil
}

func (m *MemoryHashStore) Delete(_ context.Context, namespace, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[namespace][key]; !ok {
		return false, nil
	}
	delete(m.data[namespace], key)
	return true, nil
}

func (m *MemoryHashStore) GetAll(_ context.Context, namespace string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data[namespace]))
	for key, value := range m.data[namespace] {
		out[key] = value
	}
	return out, nil
}

// namespace must be called with mu held for writing
func (m *MemoryHashStore) namespace(name string) map[string]string {
	ns, ok := m.data[name]
	if !ok {
		ns = make(map[string]string)
		m.data[name] = ns
	}
	return ns
}
