package storage

import (
	"sort"
	"sync"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

type memNode struct {
	dirs  map[string]*memNode
	files map[string][]byte
}

func newMemNode() *memNode {
	return &memNode{
		dirs:  make(map[string]*memNode),
		files: make(map[string][]byte),
	}
}

type memTree struct {
	mu       sync.RWMutex
	writeErr error
	writes   int
}

// MemHandle is an in-memory Handle for tests, with failure injection.
type MemHandle struct {
	tree *memTree
	node *memNode
	name string
}

// NewMemHandle creates an empty in-memory root.
func NewMemHandle() *MemHandle {
	return &MemHandle{
		tree: &memTree{},
		node: newMemNode(),
	}
}

// Name returns the logical path of this node.
func (m *MemHandle) Name() string {
	return m.name
}

// Child returns a sub-directory handle.
func (m *MemHandle) Child(name string, create bool) (Handle, error) {
	logical := joinName(m.name, name)
	if err := validateName(name); err != nil {
		return nil, &models.StorageError{Op: "child", Path: logical, Err: err}
	}

	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	if _, ok := m.node.files[name]; ok {
		return nil, &models.StorageError{Op: "child", Path: logical, Err: errNotDir}
	}

	child, ok := m.node.dirs[name]
	if !ok {
		if !create {
			return nil, &models.StorageError{Op: "child", Path: logical, Err: models.ErrNotFound}
		}
		child = newMemNode()
		m.node.dirs[name] = child
	}

	return &MemHandle{tree: m.tree, node: child, name: logical}, nil
}

// WriteFile stores a copy of data, or fails with the injected error.
func (m *MemHandle) WriteFile(name string, data []byte) error {
	logical := joinName(m.name, name)
	if err := validateName(name); err != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: err}
	}

	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()

	if m.tree.writeErr != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: m.tree.writeErr}
	}
	if _, ok := m.node.dirs[name]; ok {
		return &models.StorageError{Op: "write", Path: logical, Err: errNotDir}
	}

	m.node.files[name] = append([]byte(nil), data...)
	m.tree.writes++
	return nil
}

// ReadFile returns a copy of the stored file.
func (m *MemHandle) ReadFile(name string) ([]byte, error) {
	logical := joinName(m.name, name)

	m.tree.mu.RLock()
	defer m.tree.mu.RUnlock()

	data, ok := m.node.files[name]
	if !ok {
		return nil, &models.StorageError{Op: "read", Path: logical, Err: models.ErrNotFound}
	}

	return append([]byte(nil), data...), nil
}

// List returns the children of this node.
func (m *MemHandle) List() ([]Entry, error) {
	m.tree.mu.RLock()
	defer m.tree.mu.RUnlock()

	entries := make([]Entry, 0, len(m.node.dirs)+len(m.node.files))
	for name := range m.node.dirs {
		entries = append(entries, Entry{Name: name, IsDir: true})
	}
	for name := range m.node.files {
		entries = append(entries, Entry{Name: name})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Helper methods for testing

// FailWrites makes every following write in the tree fail with err. Nil
// restores writing.
func (m *MemHandle) FailWrites(err error) {
	m.tree.mu.Lock()
	defer m.tree.mu.Unlock()
	m.tree.writeErr = err
}

// WriteCount returns the number of successful writes in the tree.
func (m *MemHandle) WriteCount() int {
	m.tree.mu.RLock()
	defer m.tree.mu.RUnlock()
	return m.tree.writes
}
