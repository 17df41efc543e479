// Package graph keeps the commit ancestry graph used to answer merge-base
// and ancestry questions without reading commit objects.
package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/odvcencio/geograft/pkg/object"
)

// Database records the parents of every known commit. Implementations are
// safe for concurrent use.
type Database interface {
	// Put records commit with its parents. It reports false when the commit
	// was already present, in which case nothing changes.
	Put(commit object.ObjectID, parents []object.ObjectID) (bool, error)
	// Exists reports whether commit has been recorded.
	Exists(commit object.ObjectID) (bool, error)
	// Parents returns the recorded parents of commit in order. Unknown
	// commits yield an error wrapping object.ErrNotFound.
	Parents(commit object.ObjectID) ([]object.ObjectID, error)
	// Children returns the recorded commits naming commit as a parent,
	// sorted by id.
	Children(commit object.ObjectID) ([]object.ObjectID, error)
	// Truncate removes every record.
	Truncate() error
	// Close releases the database.
	Close() error
}

func notInGraph(id object.ObjectID) error {
	return fmt.Errorf("graph: commit %s: %w", id.Short(), object.ErrNotFound)
}

func checkPut(commit object.ObjectID, parents []object.ObjectID) error {
	if commit.IsNull() {
		return fmt.Errorf("graph: put: null commit id: %w", object.ErrInvalid)
	}
	for i, p := range parents {
		if p.IsNull() {
			return fmt.Errorf("graph: put %s: null parent at %d: %w", commit.Short(), i, object.ErrInvalid)
		}
		if p == commit {
			return fmt.Errorf("graph: put %s: commit is its own parent: %w", commit.Short(), object.ErrInvalid)
		}
	}
	return nil
}

// MemoryDatabase is a Database held entirely in memory.
type MemoryDatabase struct {
	mu       sync.RWMutex
	parents  map[object.ObjectID][]object.ObjectID
	children map[object.ObjectID]map[object.ObjectID]struct{}
}

// NewMemoryDatabase returns an empty in-memory graph.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		parents:  make(map[object.ObjectID][]object.ObjectID),
		children: make(map[object.ObjectID]map[object.ObjectID]struct{}),
	}
}

func (m *MemoryDatabase) Put(commit object.ObjectID, parents []object.ObjectID) (bool, error) {
	if err := checkPut(commit, parents); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.parents[commit]; ok {
		return false, nil
	}
	m.parents[commit] = slices.Clone(parents)
	for _, p := range parents {
		set := m.children[p]
		if set == nil {
			set = make(map[object.ObjectID]struct{})
			m.children[p] = set
		}
		set[commit] = struct{}{}
	}
	return true, nil
}

func (m *MemoryDatabase) Exists(commit object.ObjectID) (bool, error) {
	m.mu.RLock()
	_, ok := m.parents[commit]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryDatabase) Parents(commit object.ObjectID) ([]object.ObjectID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.parents[commit]
	if !ok {
		return nil, notInGraph(commit)
	}
	return slices.Clone(ps), nil
}

func (m *MemoryDatabase) Children(commit object.ObjectID) ([]object.ObjectID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]object.ObjectID, 0, len(m.children[commit]))
	for c := range m.children[commit] {
		out = append(out, c)
	}
	slices.SortFunc(out, object.ObjectID.Compare)
	return out, nil
}

// Len returns the number of recorded commits.
func (m *MemoryDatabase) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parents)
}

func (m *MemoryDatabase) Truncate() error {
	m.mu.Lock()
	m.parents = make(map[object.ObjectID][]object.ObjectID)
	m.children = make(map[object.ObjectID]map[object.ObjectID]struct{})
	m.mu.Unlock()
	return nil
}

func (m *MemoryDatabase) Close() error { return nil }
