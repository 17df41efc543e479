package object

import (
	"context"
	"fmt"
	"iter"
)

// Store is a content-addressed object store. Every object is keyed by its
// own id, so Put is idempotent.
type Store interface {
	// Has reports whether the store contains id.
	Has(id ObjectID) bool
	// Get returns the object stored under id, or an error wrapping
	// ErrNotFound.
	Get(id ObjectID) (RevObject, error)
	// GetAll fetches a batch of objects. The sequence yields found objects
	// in no particular order. Missing ids are reported to the listener and
	// do not stop the batch; any other error is yielded once and ends the
	// sequence.
	GetAll(ctx context.Context, ids []ObjectID, listener BulkListener) iter.Seq2[RevObject, error]
	// Put stores obj and reports whether it was newly written.
	Put(obj RevObject) (bool, error)
}

// BulkListener observes the outcome of each id in a GetAll batch. Calls
// happen on the goroutine consuming the sequence.
type BulkListener interface {
	Found(obj RevObject)
	NotFound(id ObjectID)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) Found(RevObject)   {}
func (NopListener) NotFound(ObjectID) {}

// ListenerFuncs adapts plain functions to BulkListener. Nil funcs are
// skipped.
type ListenerFuncs struct {
	OnFound    func(RevObject)
	OnNotFound func(ObjectID)
}

func (l ListenerFuncs) Found(obj RevObject) {
	if l.OnFound != nil {
		l.OnFound(obj)
	}
}

func (l ListenerFuncs) NotFound(id ObjectID) {
	if l.OnNotFound != nil {
		l.OnNotFound(id)
	}
}

// Pruner is implemented by stores that can delete unreachable objects.
type Pruner interface {
	// Prune deletes every object not in keep and returns how many were
	// removed.
	Prune(ctx context.Context, keep map[ObjectID]struct{}) (int, error)
}

func uniqueIDs(ids []ObjectID) []ObjectID {
	seen := make(map[ObjectID]struct{}, len(ids))
	out := make([]ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsNull() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ---------------------------------------------------------------------------
// Typed convenience readers
// ---------------------------------------------------------------------------

func readAs[T RevObject](s Store, id ObjectID, want ObjectType) (T, error) {
	var zero T
	obj, err := s.Get(id)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("object %s: type mismatch: got %s, want %s", id.Short(), obj.Type(), want)
	}
	return t, nil
}

// ReadTree reads a tree. The empty tree is always available, stored or not.
func ReadTree(s Store, id ObjectID) (RevTree, error) {
	if id == EmptyTreeID {
		return EmptyTree, nil
	}
	return readAs[RevTree](s, id, TypeTree)
}

// ReadFeature reads a feature.
func ReadFeature(s Store, id ObjectID) (RevFeature, error) {
	return readAs[RevFeature](s, id, TypeFeature)
}

// ReadFeatureType reads a feature type.
func ReadFeatureType(s Store, id ObjectID) (RevFeatureType, error) {
	return readAs[RevFeatureType](s, id, TypeFeatureType)
}

// ReadCommit reads a commit.
func ReadCommit(s Store, id ObjectID) (RevCommit, error) {
	return readAs[RevCommit](s, id, TypeCommit)
}

// ReadTag reads an annotated tag.
func ReadTag(s Store, id ObjectID) (RevTag, error) {
	return readAs[RevTag](s, id, TypeTag)
}

// PutAll stores every object, stopping at the first failure.
func PutAll(s Store, objs ...RevObject) error {
	for _, obj := range objs {
		if _, err := s.Put(obj); err != nil {
			return fmt.Errorf("put %s %s: %w", obj.Type(), obj.ID().Short(), err)
		}
	}
	return nil
}

// CollectAll drains a GetAll batch into a map keyed by id. Missing ids are
// returned separately.
func CollectAll(ctx context.Context, s Store, ids []ObjectID) (map[ObjectID]RevObject, []ObjectID, error) {
	found := make(map[ObjectID]RevObject, len(ids))
	var missing []ObjectID
	l := ListenerFuncs{OnNotFound: func(id ObjectID) { missing = append(missing, id) }}
	for obj, err := range s.GetAll(ctx, ids, l) {
		if err != nil {
			return nil, nil, err
		}
		found[obj.ID()] = obj
	}
	return found, missing, nil
}
