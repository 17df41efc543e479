// Package diff compares trees and features. Tree diffs exploit content
// addressing: subtrees and buckets with equal ids are never read.
package diff

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

// ChangeType classifies what happened to an entry between two trees.
type ChangeType int

const (
	Added    ChangeType = iota // Entry exists only in the new tree.
	Removed                    // Entry exists only in the old tree.
	Modified                   // Entry exists in both trees with different content.
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "ADDED"
	case Removed:
		return "REMOVED"
	case Modified:
		return "MODIFIED"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// Entry records a single changed path. Old is nil for additions and New is
// nil for removals.
type Entry struct {
	Old *object.NodeRef
	New *object.NodeRef
}

// Type derives the change type from which sides are present.
func (e Entry) Type() ChangeType {
	switch {
	case e.Old == nil:
		return Added
	case e.New == nil:
		return Removed
	default:
		return Modified
	}
}

// Path is the full path of the changed entry.
func (e Entry) Path() string {
	if e.New != nil {
		return e.New.Path()
	}
	return e.Old.Path()
}

// Ref returns the new side, or the old side for removals.
func (e Entry) Ref() object.NodeRef {
	if e.New != nil {
		return *e.New
	}
	return *e.Old
}

// IsFeature reports whether the entry is a feature change.
func (e Entry) IsFeature() bool { return e.Ref().IsFeature() }

// OldID is the old object id, or NullID for additions.
func (e Entry) OldID() object.ObjectID {
	if e.Old == nil {
		return object.NullID
	}
	return e.Old.ObjectID()
}

// NewID is the new object id, or NullID for removals.
func (e Entry) NewID() object.ObjectID {
	if e.New == nil {
		return object.NullID
	}
	return e.New.ObjectID()
}

// Reverse swaps the old and new sides.
func (e Entry) Reverse() Entry { return Entry{Old: e.New, New: e.Old} }

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s -> %s", e.Type(), e.Path(), e.OldID().Short(), e.NewID().Short())
}

// Options tune a tree diff.
type Options struct {
	// ReportTrees also yields entries for changed tree nodes, before the
	// changes beneath them.
	ReportTrees bool
	// Paths restricts the diff to entries at or below any of these paths.
	Paths []string
	// BucketsPerTier must match the layout the trees were built with.
	// Zero selects the default.
	BucketsPerTier int
}

// Trees lazily yields the changes that turn the tree oldID into newID.
// Entries come in depth-first order with siblings sorted by name. The
// sequence stops after the first error, including cancellation of ctx.
func Trees(ctx context.Context, store object.Store, oldID, newID object.ObjectID, opts Options) iter.Seq2[Entry, error] {
	if opts.BucketsPerTier == 0 {
		opts.BucketsPerTier = tree.DefaultThresholds().BucketsPerTier
	}
	paths := make([]string, len(opts.Paths))
	for i, p := range opts.Paths {
		paths[i] = strings.Trim(p, "/")
	}
	opts.Paths = paths
	d := &differ{ctx: ctx, store: store, opts: opts}
	return func(yield func(Entry, error) bool) {
		d.level(object.RootPath, object.NullID, object.NullID, oldID, newID, yield)
	}
}

// Counts tallies the entries of a diff.
type Counts struct {
	Added, Removed, Modified int
}

// Total is the number of changed entries.
func (c Counts) Total() int { return c.Added + c.Removed + c.Modified }

// Count runs a diff to completion and tallies it.
func Count(ctx context.Context, store object.Store, oldID, newID object.ObjectID, opts Options) (Counts, error) {
	var c Counts
	for e, err := range Trees(ctx, store, oldID, newID, opts) {
		if err != nil {
			return Counts{}, err
		}
		switch e.Type() {
		case Added:
			c.Added++
		case Removed:
			c.Removed++
		default:
			c.Modified++
		}
	}
	return c, nil
}

type differ struct {
	ctx   context.Context
	store object.Store
	opts  Options
}

// pair holds the two versions of one name within a directory level.
type pair struct {
	name     string
	old, new *object.Node
}

// level diffs one directory level and recurses into changed subtrees. It
// returns false once iteration must stop.
func (d *differ) level(parent string, oldMD, newMD, oldID, newID object.ObjectID, yield func(Entry, error) bool) bool {
	if oldID == newID {
		return true
	}
	if err := d.ctx.Err(); err != nil {
		yield(Entry{}, err)
		return false
	}
	oldTree, err := object.ReadTree(d.store, oldID)
	if err != nil {
		yield(Entry{}, fmt.Errorf("diff %q: read tree %s: %w", parent, oldID.Short(), err))
		return false
	}
	newTree, err := object.ReadTree(d.store, newID)
	if err != nil {
		yield(Entry{}, fmt.Errorf("diff %q: read tree %s: %w", parent, newID.Short(), err))
		return false
	}
	pairs, err := d.collect(sideOf(oldTree), sideOf(newTree), 0)
	if err != nil {
		yield(Entry{}, fmt.Errorf("diff %q: %w", parent, err))
		return false
	}
	slices.SortFunc(pairs, func(a, b pair) int { return strings.Compare(a.name, b.name) })

	for _, p := range pairs {
		path := object.AppendChild(parent, p.name)
		if !d.relevant(path) {
			continue
		}
		switch {
		case p.old != nil && p.new != nil && p.old.Kind == p.new.Kind:
			if !d.changed(parent, oldMD, newMD, p.old, p.new, yield) {
				return false
			}
		default:
			if p.old != nil && !d.removed(parent, oldMD, p.old, yield) {
				return false
			}
			if p.new != nil && !d.added(parent, newMD, p.new, yield) {
				return false
			}
		}
	}
	return true
}

func (d *differ) changed(parent string, oldMD, newMD object.ObjectID, o, n *object.Node, yield func(Entry, error) bool) bool {
	oldRef := &object.NodeRef{Node: *o, ParentPath: parent, DefaultMetadataID: oldMD}
	newRef := &object.NodeRef{Node: *n, ParentPath: parent, DefaultMetadataID: newMD}
	path := newRef.Path()
	if o.Kind == object.KindFeature || d.opts.ReportTrees {
		if d.within(path) && !yield(Entry{Old: oldRef, New: newRef}, nil) {
			return false
		}
	}
	if o.Kind == object.KindTree {
		return d.level(path, childMetadata(oldMD, o), childMetadata(newMD, n), o.ObjectID, n.ObjectID, yield)
	}
	return true
}

func (d *differ) removed(parent string, md object.ObjectID, o *object.Node, yield func(Entry, error) bool) bool {
	ref := &object.NodeRef{Node: *o, ParentPath: parent, DefaultMetadataID: md}
	if o.Kind == object.KindFeature || d.opts.ReportTrees {
		if d.within(ref.Path()) && !yield(Entry{Old: ref}, nil) {
			return false
		}
	}
	if o.Kind == object.KindTree {
		return d.level(ref.Path(), childMetadata(md, o), object.NullID, o.ObjectID, object.EmptyTreeID, yield)
	}
	return true
}

func (d *differ) added(parent string, md object.ObjectID, n *object.Node, yield func(Entry, error) bool) bool {
	ref := &object.NodeRef{Node: *n, ParentPath: parent, DefaultMetadataID: md}
	if n.Kind == object.KindFeature || d.opts.ReportTrees {
		if d.within(ref.Path()) && !yield(Entry{New: ref}, nil) {
			return false
		}
	}
	if n.Kind == object.KindTree {
		return d.level(ref.Path(), object.NullID, childMetadata(md, n), object.EmptyTreeID, n.ObjectID, yield)
	}
	return true
}

func childMetadata(inherited object.ObjectID, n *object.Node) object.ObjectID {
	if !n.MetadataID.IsNull() {
		return n.MetadataID
	}
	return inherited
}

// within reports whether path passes the path filter.
func (d *differ) within(path string) bool {
	if len(d.opts.Paths) == 0 {
		return true
	}
	for _, f := range d.opts.Paths {
		if object.IsSameOrChild(f, path) {
			return true
		}
	}
	return false
}

// relevant reports whether path passes the filter or leads to it.
func (d *differ) relevant(path string) bool {
	if d.within(path) {
		return true
	}
	for _, f := range d.opts.Paths {
		if object.IsChild(path, f) {
			return true
		}
	}
	return false
}

// side is one half of a comparison at a given bucket depth: either inline
// entries sorted by name or a set of buckets.
type side struct {
	leaf    bool
	entries []object.Node
	buckets []object.Bucket
}

func sideOf(t object.RevTree) side {
	if t.IsBucketed() {
		return side{buckets: t.Buckets()}
	}
	return side{leaf: true, entries: t.Entries()}
}

// collect returns the names whose entries differ between l and r.
func (d *differ) collect(l, r side, depth int) ([]pair, error) {
	if err := d.ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case l.leaf && r.leaf:
		return diffEntries(l.entries, r.entries), nil
	case !l.leaf && !r.leaf:
		return d.collectBuckets(bucketMap(l.buckets), bucketMap(r.buckets), depth)
	case l.leaf:
		return d.collectMixed(l.entries, r.buckets, depth, false)
	default:
		return d.collectMixed(r.entries, l.buckets, depth, true)
	}
}

func bucketMap(buckets []object.Bucket) map[int]object.ObjectID {
	m := make(map[int]object.ObjectID, len(buckets))
	for _, b := range buckets {
		m[b.Index] = b.TreeID
	}
	return m
}

func unionIndexes[A, B any](a map[int]A, b map[int]B) []int {
	idx := make([]int, 0, len(a)+len(b))
	for i := range a {
		idx = append(idx, i)
	}
	for i := range b {
		if _, ok := a[i]; !ok {
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)
	return idx
}

func (d *differ) collectBuckets(l, r map[int]object.ObjectID, depth int) ([]pair, error) {
	var out []pair
	for _, idx := range unionIndexes(l, r) {
		lid, lok := l[idx]
		rid, rok := r[idx]
		if lok && rok && lid == rid {
			continue
		}
		ls, err := d.bucketSide(lid, lok)
		if err != nil {
			return nil, err
		}
		rs, err := d.bucketSide(rid, rok)
		if err != nil {
			return nil, err
		}
		pairs, err := d.collect(ls, rs, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return out, nil
}

// collectMixed compares inline entries against buckets by partitioning the
// entries with the bucket function at the current depth.
func (d *differ) collectMixed(entries []object.Node, buckets []object.Bucket, depth int, swapped bool) ([]pair, error) {
	groups := make(map[int][]object.Node)
	for _, n := range entries {
		i := object.BucketIndex(n.Name, depth, d.opts.BucketsPerTier)
		groups[i] = append(groups[i], n)
	}
	bm := bucketMap(buckets)
	var out []pair
	for _, idx := range unionIndexes(groups, bm) {
		leafSide := side{leaf: true, entries: groups[idx]}
		id, ok := bm[idx]
		bucketSide, err := d.bucketSide(id, ok)
		if err != nil {
			return nil, err
		}
		l, r := leafSide, bucketSide
		if swapped {
			l, r = r, l
		}
		pairs, err := d.collect(l, r, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return out, nil
}

// bucketSide loads a bucket tree, or an empty side when the bucket is
// absent.
func (d *differ) bucketSide(id object.ObjectID, ok bool) (side, error) {
	if !ok {
		return side{leaf: true}, nil
	}
	t, err := object.ReadTree(d.store, id)
	if err != nil {
		return side{}, fmt.Errorf("read bucket %s: %w", id.Short(), err)
	}
	return sideOf(t), nil
}

// diffEntries merge-joins two name-sorted entry lists.
func diffEntries(l, r []object.Node) []pair {
	var out []pair
	i, j := 0, 0
	for i < len(l) || j < len(r) {
		switch {
		case j >= len(r) || (i < len(l) && l[i].Name < r[j].Name):
			out = append(out, pair{name: l[i].Name, old: &l[i]})
			i++
		case i >= len(l) || r[j].Name < l[i].Name:
			out = append(out, pair{name: r[j].Name, new: &r[j]})
			j++
		default:
			if !sameEntry(l[i], r[j]) {
				out = append(out, pair{name: l[i].Name, old: &l[i], new: &r[j]})
			}
			i++
			j++
		}
	}
	return out
}

func sameEntry(a, b object.Node) bool {
	return a.Kind == b.Kind && a.ObjectID == b.ObjectID && a.MetadataID == b.MetadataID
}
