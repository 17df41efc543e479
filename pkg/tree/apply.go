package tree

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// Change edits a single path. A nil Node removes whatever lives at Path.
type Change struct {
	Path string
	Node *object.Node
}

// PutChange stores node at path. The node is renamed after the last path
// segment.
func PutChange(path string, node object.Node) Change {
	node.Name = object.NodeFromPath(path)
	return Change{Path: path, Node: &node}
}

// RemoveChange deletes the entry at path, subtree included.
func RemoveChange(path string) Change {
	return Change{Path: path}
}

// IsRemove reports whether c deletes its path.
func (c Change) IsRemove() bool { return c.Node == nil }

// Apply edits the root tree by applying changes in order and returns the
// new root. Missing intermediate trees are created empty; tree nodes along
// each edited path get fresh ids and envelopes. Every new tree is written
// to the store.
func Apply(ctx context.Context, store object.Store, th Thresholds, rootID object.ObjectID, changes []Change) (object.RevTree, error) {
	for _, c := range changes {
		if err := object.CheckValidPath(c.Path); err != nil {
			return object.RevTree{}, err
		}
		if c.Node != nil && c.Node.Name != object.NodeFromPath(c.Path) {
			return object.RevTree{}, fmt.Errorf("%w: node %q does not match path %q", object.ErrInvalid, c.Node.Name, c.Path)
		}
	}
	if len(changes) == 0 {
		t, err := object.ReadTree(store, rootID)
		if err != nil {
			return object.RevTree{}, fmt.Errorf("read tree %s: %w", rootID.Short(), err)
		}
		return t, nil
	}
	return applyAt(ctx, store, th, rootID, object.RootPath, changes)
}

func applyAt(ctx context.Context, store object.Store, th Thresholds, treeID object.ObjectID, prefix string, changes []Change) (object.RevTree, error) {
	if err := ctx.Err(); err != nil {
		return object.RevTree{}, err
	}
	b, err := NewBuilderFrom(ctx, store, th, treeID)
	if err != nil {
		return object.RevTree{}, err
	}

	nested := make(map[string][]Change)
	for _, c := range changes {
		rel := c.Path
		if prefix != object.RootPath {
			rel = c.Path[len(prefix)+1:]
		}
		head, _, deeper := strings.Cut(rel, "/")
		if !deeper {
			// A direct edit supersedes anything queued beneath it.
			delete(nested, head)
			if c.Node == nil {
				b.Remove(head)
			} else {
				b.Put(*c.Node)
			}
			continue
		}
		nested[head] = append(nested[head], c)
	}

	heads := make([]string, 0, len(nested))
	for h := range nested {
		heads = append(heads, h)
	}
	slices.Sort(heads)
	for _, head := range heads {
		group := nested[head]
		existing, ok := b.Get(head)
		childID := object.EmptyTreeID
		switch {
		case ok && existing.Kind != object.KindTree:
			return object.RevTree{}, fmt.Errorf("%w: %q is a feature, not a tree", object.ErrInvalid, object.AppendChild(prefix, head))
		case ok:
			childID = existing.ObjectID
		case allRemovals(group):
			continue
		default:
			existing = object.Node{Name: head, Kind: object.KindTree}
		}
		child, err := applyAt(ctx, store, th, childID, object.AppendChild(prefix, head), group)
		if err != nil {
			return object.RevTree{}, err
		}
		b.Put(existing.Update(child.ID(), child.Bounds()))
	}
	return b.Build(ctx)
}

func allRemovals(changes []Change) bool {
	for _, c := range changes {
		if c.Node != nil {
			return false
		}
	}
	return true
}
