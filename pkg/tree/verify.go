package tree

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/object"
)

// Verify walks the tree stored under id and checks that cached aggregates
// equal the sums over children, that every bucket holds only names hashing
// to its index, and that buckets appear only above MaxLeafEntries. Leaves
// at the deepest bucket tier may exceed MaxLeafEntries.
func Verify(ctx context.Context, store object.Store, th Thresholds, id object.ObjectID) error {
	_, err := verifyTree(ctx, store, th, id, 0)
	return err
}

func verifyTree(ctx context.Context, store object.Store, th Thresholds, id object.ObjectID, depth int) (aggregate, error) {
	if err := ctx.Err(); err != nil {
		return aggregate{}, err
	}
	t, err := object.ReadTree(store, id)
	if err != nil {
		return aggregate{}, fmt.Errorf("verify: read tree %s: %w", id.Short(), err)
	}
	var got aggregate
	if t.IsBucketed() {
		if depth >= maxBucketDepth {
			return aggregate{}, fmt.Errorf("%w: tree %s: buckets nested below tier %d", object.ErrInvalid, id.Short(), maxBucketDepth)
		}
		for _, b := range t.Buckets() {
			if b.Index >= th.BucketsPerTier {
				return aggregate{}, fmt.Errorf("%w: tree %s: bucket index %d out of range", object.ErrInvalid, id.Short(), b.Index)
			}
			child, err := verifyTree(ctx, store, th, b.TreeID, depth+1)
			if err != nil {
				return aggregate{}, err
			}
			nodes, err := Children(ctx, store, b.TreeID)
			if err != nil {
				return aggregate{}, err
			}
			for _, n := range nodes {
				if idx := object.BucketIndex(n.Name, depth, th.BucketsPerTier); idx != b.Index {
					return aggregate{}, fmt.Errorf("%w: tree %s: %q belongs in bucket %d, found in %d", object.ErrInvalid, id.Short(), n.Name, idx, b.Index)
				}
			}
			got.size += child.size
			got.numTrees += child.numTrees
		}
	} else {
		if n := len(t.Trees()) + len(t.Features()); n > th.MaxLeafEntries && depth < maxBucketDepth {
			return aggregate{}, fmt.Errorf("%w: tree %s: %d inline entries exceed %d", object.ErrInvalid, id.Short(), n, th.MaxLeafEntries)
		}
		got.size = uint64(len(t.Features()))
		for _, n := range t.Trees() {
			child, err := verifyTree(ctx, store, th, n.ObjectID, 0)
			if err != nil {
				return aggregate{}, err
			}
			got.size += child.size
			got.numTrees += 1 + child.numTrees
		}
	}
	if got.size != t.Size() || got.numTrees != t.NumTrees() {
		return aggregate{}, fmt.Errorf("%w: tree %s: cached size=%d trees=%d, computed size=%d trees=%d",
			object.ErrInvalid, id.Short(), t.Size(), t.NumTrees(), got.size, got.numTrees)
	}
	return got, nil
}
