package object

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[ObjectID]RevObject
	metrics *StoreMetrics
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[ObjectID]RevObject),
		metrics: NewStoreMetrics("memory"),
	}
}

// Metrics returns the store's counters.
func (s *MemoryStore) Metrics() *StoreMetrics { return s.metrics }

func (s *MemoryStore) Has(id ObjectID) bool {
	if id == EmptyTreeID {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

func (s *MemoryStore) Get(id ObjectID) (RevObject, error) {
	if id == EmptyTreeID {
		return EmptyTree, nil
	}
	s.mu.RLock()
	obj, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		s.metrics.Misses.Inc()
		return nil, fmt.Errorf("object read %s: %w", id, ErrNotFound)
	}
	s.metrics.Reads.Inc()
	return obj, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, ids []ObjectID, listener BulkListener) iter.Seq2[RevObject, error] {
	if listener == nil {
		listener = NopListener{}
	}
	ids = uniqueIDs(ids)
	return func(yield func(RevObject, error) bool) {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			obj, err := s.Get(id)
			if err != nil {
				listener.NotFound(id)
				continue
			}
			listener.Found(obj)
			if !yield(obj, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) Put(obj RevObject) (bool, error) {
	id := obj.ID()
	if id.IsNull() {
		return false, fmt.Errorf("%w: put: object has no id", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; ok {
		return false, nil
	}
	s.objects[id] = obj
	s.metrics.Writes.Inc()
	return true, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MemoryStore) Prune(ctx context.Context, keep map[ObjectID]struct{}) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id := range s.objects {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if _, ok := keep[id]; !ok {
			delete(s.objects, id)
			removed++
		}
	}
	return removed, nil
}
