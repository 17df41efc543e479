package object

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Bucket points at the subtree holding every entry whose name hashes to
// Index at the bucket's tier.
type Bucket struct {
	Index  int
	TreeID ObjectID
	Bounds *orb.Bound
}

func (b Bucket) Equal(o Bucket) bool {
	return b.Index == o.Index && b.TreeID == o.TreeID && boundsEqual(b.Bounds, o.Bounds)
}

// RevTree is one directory level. A leaf tree lists its trees and features
// inline, each sorted by name; a bucket tree lists only buckets, sorted by
// index. Size counts features and NumTrees counts subtrees, both
// recursively.
type RevTree struct {
	id       ObjectID
	size     uint64
	numTrees int
	trees    []Node
	features []Node
	buckets  []Bucket
}

// EmptyTree is the leaf tree with no entries.
var EmptyTree RevTree

// EmptyTreeID is the id of EmptyTree.
var EmptyTreeID ObjectID

func init() {
	t, err := NewLeafTree(nil, nil, 0, 0)
	if err != nil {
		panic(err)
	}
	EmptyTree = t
	EmptyTreeID = t.id
}

// NewLeafTree validates and builds a tree with inline entries. trees and
// features must be sorted by name with no name appearing twice across both
// lists. size and numTrees are the recursive aggregates, which can be no
// smaller than the inline counts.
func NewLeafTree(trees, features []Node, size uint64, numTrees int) (RevTree, error) {
	if err := checkLeafEntries(trees, KindTree); err != nil {
		return RevTree{}, err
	}
	if err := checkLeafEntries(features, KindFeature); err != nil {
		return RevTree{}, err
	}
	if len(trees) > 0 && len(features) > 0 {
		names := make(map[string]struct{}, len(trees))
		for _, n := range trees {
			names[n.Name] = struct{}{}
		}
		for _, n := range features {
			if _, dup := names[n.Name]; dup {
				return RevTree{}, fmt.Errorf("%w: tree entry %q is both a tree and a feature", ErrInvalid, n.Name)
			}
		}
	}
	if size < uint64(len(features)) {
		return RevTree{}, fmt.Errorf("%w: tree size %d below inline feature count %d", ErrInvalid, size, len(features))
	}
	if numTrees < len(trees) {
		return RevTree{}, fmt.Errorf("%w: tree count %d below inline tree count %d", ErrInvalid, numTrees, len(trees))
	}
	t := RevTree{
		size:     size,
		numTrees: numTrees,
		trees:    cloneNodes(trees),
		features: cloneNodes(features),
	}
	t.id = HashObject(TypeTree, MarshalTree(t))
	return t, nil
}

// NewBucketTree validates and builds a bucketed tree. Buckets must be
// sorted by strictly increasing index and point at non-null trees.
func NewBucketTree(buckets []Bucket, size uint64, numTrees int) (RevTree, error) {
	if len(buckets) == 0 {
		return RevTree{}, fmt.Errorf("%w: bucket tree without buckets", ErrInvalid)
	}
	for i, b := range buckets {
		if b.Index < 0 {
			return RevTree{}, fmt.Errorf("%w: negative bucket index %d", ErrInvalid, b.Index)
		}
		if b.TreeID.IsNull() {
			return RevTree{}, fmt.Errorf("%w: bucket %d has a null tree id", ErrInvalid, b.Index)
		}
		if i > 0 && buckets[i-1].Index >= b.Index {
			return RevTree{}, fmt.Errorf("%w: buckets not sorted at index %d", ErrInvalid, b.Index)
		}
	}
	if numTrees < 0 {
		return RevTree{}, fmt.Errorf("%w: negative tree count", ErrInvalid)
	}
	// Every bucket holds at least one feature or subtree.
	if size+uint64(numTrees) < uint64(len(buckets)) {
		return RevTree{}, fmt.Errorf("%w: %d buckets hold only %d features and %d trees", ErrInvalid, len(buckets), size, numTrees)
	}
	t := RevTree{size: size, numTrees: numTrees, buckets: make([]Bucket, len(buckets))}
	for i, b := range buckets {
		b.Bounds = copyBound(b.Bounds)
		t.buckets[i] = b
	}
	t.id = HashObject(TypeTree, MarshalTree(t))
	return t, nil
}

func checkLeafEntries(nodes []Node, kind NodeKind) error {
	for i, n := range nodes {
		if err := checkNodeName(n.Name); err != nil {
			return err
		}
		if n.Kind != kind {
			return fmt.Errorf("%w: entry %q listed as %s but is a %s", ErrInvalid, n.Name, kind, n.Kind)
		}
		if n.ObjectID.IsNull() {
			return fmt.Errorf("%w: entry %q has a null object id", ErrInvalid, n.Name)
		}
		if i > 0 && nodes[i-1].Name >= n.Name {
			return fmt.Errorf("%w: %s entries not sorted by name at %q", ErrInvalid, kind, n.Name)
		}
	}
	return nil
}

func cloneNodes(nodes []Node) []Node {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.Bounds = copyBound(n.Bounds)
		out[i] = n
	}
	return out
}

func (t RevTree) ID() ObjectID     { return t.id }
func (t RevTree) Type() ObjectType { return TypeTree }

// Size is the recursive feature count.
func (t RevTree) Size() uint64 { return t.size }

// NumTrees is the recursive subtree count.
func (t RevTree) NumTrees() int { return t.numTrees }

// IsEmpty reports whether the tree has no entries at all.
func (t RevTree) IsEmpty() bool {
	return len(t.trees) == 0 && len(t.features) == 0 && len(t.buckets) == 0
}

// IsBucketed reports whether entries live in buckets.
func (t RevTree) IsBucketed() bool { return len(t.buckets) > 0 }

// Trees returns the inline subtree nodes. The slice must not be modified.
func (t RevTree) Trees() []Node { return t.trees }

// Features returns the inline feature nodes. The slice must not be modified.
func (t RevTree) Features() []Node { return t.features }

// Buckets returns the buckets. The slice must not be modified.
func (t RevTree) Buckets() []Bucket { return t.buckets }

// Entries merges inline trees and features into one name-sorted list.
func (t RevTree) Entries() []Node {
	out := make([]Node, 0, len(t.trees)+len(t.features))
	i, j := 0, 0
	for i < len(t.trees) || j < len(t.features) {
		switch {
		case j >= len(t.features) || (i < len(t.trees) && t.trees[i].Name < t.features[j].Name):
			out = append(out, t.trees[i])
			i++
		default:
			out = append(out, t.features[j])
			j++
		}
	}
	return out
}

// Bounds is the union of every entry and bucket envelope.
func (t RevTree) Bounds() *orb.Bound {
	var acc *orb.Bound
	for _, n := range t.trees {
		acc = UnionBounds(acc, n.Bounds)
	}
	for _, n := range t.features {
		acc = UnionBounds(acc, n.Bounds)
	}
	for _, b := range t.buckets {
		acc = UnionBounds(acc, b.Bounds)
	}
	return acc
}

func (t RevTree) String() string {
	if t.IsBucketed() {
		return fmt.Sprintf("tree %s (buckets=%d size=%d trees=%d)", t.id.Short(), len(t.buckets), t.size, t.numTrees)
	}
	return fmt.Sprintf("tree %s (features=%d trees=%d size=%d)", t.id.Short(), len(t.features), len(t.trees), t.size)
}
