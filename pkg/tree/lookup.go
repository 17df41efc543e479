package tree

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// Children returns every entry of the tree stored under id, sorted by
// name, reading through buckets as needed.
func Children(ctx context.Context, store object.Store, id object.ObjectID) ([]object.Node, error) {
	t, err := object.ReadTree(store, id)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id.Short(), err)
	}
	return treeChildren(ctx, store, t)
}

func treeChildren(ctx context.Context, store object.Store, t object.RevTree) ([]object.Node, error) {
	if !t.IsBucketed() {
		return t.Entries(), nil
	}
	var out []object.Node
	for _, b := range t.Buckets() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nodes, err := Children(ctx, store, b.TreeID)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	slices.SortFunc(out, func(x, y object.Node) int { return strings.Compare(x.Name, y.Name) })
	return out, nil
}

// lookupEntry finds name directly under t, descending only into the bucket
// the name hashes to at each tier.
func lookupEntry(ctx context.Context, store object.Store, bucketsPerTier int, t object.RevTree, name string) (object.Node, bool, error) {
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return object.Node{}, false, err
		}
		if !t.IsBucketed() {
			nodes := t.Trees()
			if i, ok := slices.BinarySearchFunc(nodes, name, compareName); ok {
				return nodes[i], true, nil
			}
			nodes = t.Features()
			if i, ok := slices.BinarySearchFunc(nodes, name, compareName); ok {
				return nodes[i], true, nil
			}
			return object.Node{}, false, nil
		}
		idx := object.BucketIndex(name, depth, bucketsPerTier)
		buckets := t.Buckets()
		i, ok := slices.BinarySearchFunc(buckets, idx, func(b object.Bucket, idx int) int { return b.Index - idx })
		if !ok {
			return object.Node{}, false, nil
		}
		next, err := object.ReadTree(store, buckets[i].TreeID)
		if err != nil {
			return object.Node{}, false, fmt.Errorf("read bucket %d: %w", idx, err)
		}
		t = next
	}
}

func compareName(n object.Node, name string) int { return strings.Compare(n.Name, name) }

// FindChild resolves path under the root tree. The returned reference
// carries the metadata id inherited from its nearest ancestor that
// declares one.
func FindChild(ctx context.Context, store object.Store, th Thresholds, rootID object.ObjectID, path string) (object.NodeRef, bool, error) {
	if err := object.CheckValidPath(path); err != nil {
		return object.NodeRef{}, false, err
	}
	current, err := object.ReadTree(store, rootID)
	if err != nil {
		return object.NodeRef{}, false, fmt.Errorf("read tree %s: %w", rootID.Short(), err)
	}
	var (
		parent      = object.RootPath
		inheritedMD object.ObjectID
	)
	segs := object.Split(path)
	for i, seg := range segs {
		node, ok, err := lookupEntry(ctx, store, th.BucketsPerTier, current, seg)
		if err != nil || !ok {
			return object.NodeRef{}, false, err
		}
		if i == len(segs)-1 {
			return object.NodeRef{Node: node, ParentPath: parent, DefaultMetadataID: inheritedMD}, true, nil
		}
		if node.Kind != object.KindTree {
			return object.NodeRef{}, false, nil
		}
		if !node.MetadataID.IsNull() {
			inheritedMD = node.MetadataID
		}
		current, err = object.ReadTree(store, node.ObjectID)
		if err != nil {
			return object.NodeRef{}, false, fmt.Errorf("read tree %s: %w", node.ObjectID.Short(), err)
		}
		parent = object.AppendChild(parent, seg)
	}
	return object.NodeRef{}, false, nil
}

// WalkOptions tune Walk.
type WalkOptions struct {
	// IncludeTrees yields tree entries before their contents.
	IncludeTrees bool
	// Prefix limits the walk to entries at or below this path.
	Prefix string
}

// Walk lazily yields every entry below the root tree in depth-first order,
// siblings sorted by name.
func Walk(ctx context.Context, store object.Store, rootID object.ObjectID, opts WalkOptions) iter.Seq2[object.NodeRef, error] {
	return func(yield func(object.NodeRef, error) bool) {
		walkTree(ctx, store, rootID, object.RootPath, object.NullID, opts, yield)
	}
}

func walkTree(ctx context.Context, store object.Store, id object.ObjectID, parent string, md object.ObjectID, opts WalkOptions, yield func(object.NodeRef, error) bool) bool {
	nodes, err := Children(ctx, store, id)
	if err != nil {
		yield(object.NodeRef{}, err)
		return false
	}
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			yield(object.NodeRef{}, err)
			return false
		}
		p := object.AppendChild(parent, n.Name)
		if opts.Prefix != "" && !object.IsSameOrChild(opts.Prefix, p) && !object.IsChild(p, opts.Prefix) {
			continue
		}
		within := opts.Prefix == "" || object.IsSameOrChild(opts.Prefix, p)
		ref := object.NodeRef{Node: n, ParentPath: parent, DefaultMetadataID: md}
		if n.Kind == object.KindFeature {
			if within && !yield(ref, nil) {
				return false
			}
			continue
		}
		if within && opts.IncludeTrees && !yield(ref, nil) {
			return false
		}
		childMD := md
		if !n.MetadataID.IsNull() {
			childMD = n.MetadataID
		}
		if !walkTree(ctx, store, n.ObjectID, p, childMD, opts, yield) {
			return false
		}
	}
	return true
}
