package object

import (
	"context"
	"fmt"
)

// ReachableSet returns all object ids reachable from roots by following
// object references: commits to their trees and parents, trees to their
// entries, buckets and metadata, tags to their commits. Missing objects are
// skipped.
func ReachableSet(ctx context.Context, s Store, roots []ObjectID) (map[ObjectID]struct{}, error) {
	roots = uniqueIDs(roots)
	out := make(map[ObjectID]struct{}, len(roots))
	stack := append([]ObjectID(nil), roots...)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id.IsNull() {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		if !s.Has(id) {
			continue
		}
		out[id] = struct{}{}

		obj, err := s.Get(id)
		if err != nil {
			return nil, fmt.Errorf("reachable set read %s: %w", id.Short(), err)
		}
		stack = append(stack, referencedIDs(obj)...)
	}
	return out, nil
}

func referencedIDs(obj RevObject) []ObjectID {
	switch o := obj.(type) {
	case RevTag:
		return []ObjectID{o.CommitID()}
	case RevCommit:
		return append([]ObjectID{o.TreeID()}, o.parents...)
	case RevTree:
		refs := make([]ObjectID, 0, 2*(len(o.trees)+len(o.features))+len(o.buckets))
		for _, nodes := range [][]Node{o.trees, o.features} {
			for _, n := range nodes {
				refs = append(refs, n.ObjectID)
				if !n.MetadataID.IsNull() {
					refs = append(refs, n.MetadataID)
				}
			}
		}
		for _, b := range o.buckets {
			refs = append(refs, b.TreeID)
		}
		return refs
	default:
		return nil
	}
}
