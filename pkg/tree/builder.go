// Package tree builds and edits RevTrees. Every tree built here uses the
// canonical layout for its entry set: inline when it has at most
// MaxLeafEntries entries, otherwise partitioned into buckets by the hash of
// each entry name, one tier per level of bucketing.
package tree

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// Thresholds controls the tree layout.
type Thresholds struct {
	MaxLeafEntries int
	BucketsPerTier int
}

// maxBucketDepth is the deepest bucket tier. Each tier reads one byte of the
// name hash, so names that agree on every byte modulo BucketsPerTier can not
// be split further and share an oversized leaf.
const maxBucketDepth = object.IDSize

// DefaultThresholds are the layout parameters used unless configured.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxLeafEntries: 512, BucketsPerTier: 32}
}

// Validate rejects layouts that could not terminate or would not shard.
func (t Thresholds) Validate() error {
	if t.MaxLeafEntries < 1 {
		return fmt.Errorf("%w: max leaf entries must be positive, got %d", object.ErrInvalid, t.MaxLeafEntries)
	}
	if t.BucketsPerTier < 2 || t.BucketsPerTier > 256 {
		return fmt.Errorf("%w: buckets per tier must be in [2, 256], got %d", object.ErrInvalid, t.BucketsPerTier)
	}
	return nil
}

// Builder accumulates the entries of one directory level and writes the
// canonical tree for them. Insertion order never affects the result.
type Builder struct {
	store   object.Store
	th      Thresholds
	entries map[string]object.Node
}

// NewBuilder returns an empty builder.
func NewBuilder(store object.Store, th Thresholds) *Builder {
	return &Builder{store: store, th: th, entries: make(map[string]object.Node)}
}

// NewBuilderFrom returns a builder preloaded with every entry of the tree
// stored under id, reading through all of its buckets.
func NewBuilderFrom(ctx context.Context, store object.Store, th Thresholds, id object.ObjectID) (*Builder, error) {
	b := NewBuilder(store, th)
	nodes, err := Children(ctx, store, id)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		b.entries[n.Name] = n
	}
	return b, nil
}

// Put adds or replaces the entry with node's name.
func (b *Builder) Put(node object.Node) *Builder {
	b.entries[node.Name] = node
	return b
}

// Remove drops the named entry and reports whether it existed.
func (b *Builder) Remove(name string) bool {
	_, ok := b.entries[name]
	delete(b.entries, name)
	return ok
}

// Get returns the named entry.
func (b *Builder) Get(name string) (object.Node, bool) {
	n, ok := b.entries[name]
	return n, ok
}

// Len is the number of entries.
func (b *Builder) Len() int { return len(b.entries) }

// Build writes the tree and any bucket trees beneath it to the store and
// returns the top-level tree.
func (b *Builder) Build(ctx context.Context) (object.RevTree, error) {
	if err := b.th.Validate(); err != nil {
		return object.RevTree{}, err
	}
	nodes := make([]object.Node, 0, len(b.entries))
	for _, n := range b.entries {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(x, y object.Node) int { return strings.Compare(x.Name, y.Name) })

	aggs, err := subtreeAggregates(ctx, b.store, nodes)
	if err != nil {
		return object.RevTree{}, err
	}
	return b.layout(ctx, nodes, aggs, 0)
}

type aggregate struct {
	size     uint64
	numTrees int
}

// subtreeAggregates fetches every subtree once to learn its recursive
// counts.
func subtreeAggregates(ctx context.Context, store object.Store, nodes []object.Node) (map[object.ObjectID]aggregate, error) {
	var ids []object.ObjectID
	for _, n := range nodes {
		if n.Kind == object.KindTree && n.ObjectID != object.EmptyTreeID {
			ids = append(ids, n.ObjectID)
		}
	}
	aggs := map[object.ObjectID]aggregate{object.EmptyTreeID: {}}
	if len(ids) == 0 {
		return aggs, nil
	}
	found, missing, err := object.CollectAll(ctx, store, ids)
	if err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("build tree: subtree %s: %w", missing[0], object.ErrNotFound)
	}
	for id, obj := range found {
		t, ok := obj.(object.RevTree)
		if !ok {
			return nil, fmt.Errorf("%w: build tree: %s is a %s, not a tree", object.ErrInvalid, id.Short(), obj.Type())
		}
		aggs[id] = aggregate{size: t.Size(), numTrees: t.NumTrees()}
	}
	return aggs, nil
}

// layout builds the canonical tree for name-sorted nodes at bucket depth.
func (b *Builder) layout(ctx context.Context, nodes []object.Node, aggs map[object.ObjectID]aggregate, depth int) (object.RevTree, error) {
	if err := ctx.Err(); err != nil {
		return object.RevTree{}, err
	}
	if len(nodes) <= b.th.MaxLeafEntries || depth >= maxBucketDepth {
		var (
			trees, features []object.Node
			total           aggregate
		)
		for _, n := range nodes {
			if n.Kind == object.KindTree {
				trees = append(trees, n)
				a := aggs[n.ObjectID]
				total.size += a.size
				total.numTrees += 1 + a.numTrees
				continue
			}
			features = append(features, n)
			total.size++
		}
		t, err := object.NewLeafTree(trees, features, total.size, total.numTrees)
		if err != nil {
			return object.RevTree{}, err
		}
		if _, err := b.store.Put(t); err != nil {
			return object.RevTree{}, fmt.Errorf("write tree: %w", err)
		}
		return t, nil
	}

	groups := make(map[int][]object.Node)
	for _, n := range nodes {
		idx := object.BucketIndex(n.Name, depth, b.th.BucketsPerTier)
		groups[idx] = append(groups[idx], n)
	}
	indexes := make([]int, 0, len(groups))
	for idx := range groups {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	var (
		buckets []object.Bucket
		total   aggregate
	)
	for _, idx := range indexes {
		child, err := b.layout(ctx, groups[idx], aggs, depth+1)
		if err != nil {
			return object.RevTree{}, err
		}
		buckets = append(buckets, object.Bucket{Index: idx, TreeID: child.ID(), Bounds: child.Bounds()})
		total.size += child.Size()
		total.numTrees += child.NumTrees()
	}
	t, err := object.NewBucketTree(buckets, total.size, total.numTrees)
	if err != nil {
		return object.RevTree{}, err
	}
	if _, err := b.store.Put(t); err != nil {
		return object.RevTree{}, fmt.Errorf("write tree: %w", err)
	}
	return t, nil
}
