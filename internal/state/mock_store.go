package state

import (
	"errors"
	"sort"
	"sync"
)

// MockStore provides an in-memory implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	slots   map[string][]byte
	saveErr error
	saves   int
}

// NewMockStore creates a mock state store.
func NewMockStore() *MockStore {
	return &MockStore{
		slots: make(map[string][]byte),
	}
}

// Load returns a copy of the stored value.
func (m *MockStore) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.slots[key]; ok {
		return append([]byte(nil), data...), nil
	}

	return nil, ErrStateNotFound
}

// Save stores a copy of data, or fails with the configured error.
func (m *MockStore) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	m.slots[key] = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Reset removes a slot.
func (m *MockStore) Reset(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.slots, key)
	return nil
}

// List returns all keys with stored values.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.slots))
	for key := range m.slots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// Helper methods for testing

// SetRaw stores bytes without validation, e.g. to simulate corruption.
func (m *MockStore) SetRaw(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = data
}

// FailSaves makes every following Save return err. Nil restores saving.
func (m *MockStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// SaveCount returns the number of successful saves.
func (m *MockStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// ErrMockSave is a convenience error for FailSaves.
var ErrMockSave = errors.New("mock save failure")
