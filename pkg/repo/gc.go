package repo

import (
	"context"
	"fmt"
	"slices"

	"github.com/odvcencio/geograft/pkg/graph"
	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

// GCSummary reports what GC kept and removed.
type GCSummary struct {
	Reachable int
	Pruned    int
}

// gcRoots collects every id the repository still points at: refs, the
// working tree and staging area, pending merge and rebase state, and the
// objects named by recorded conflicts.
func (r *Repo) gcRoots() ([]object.ObjectID, error) {
	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}
	roots := make([]object.ObjectID, 0, len(refs)+8)
	for _, id := range refs {
		roots = append(roots, id)
	}
	for _, name := range []string{HeadRef, OrigHeadRef, MergeHeadRef, WorkHeadRef, StageHeadRef} {
		id, ok, err := r.LookupRef(name)
		if err != nil {
			return nil, err
		}
		if ok {
			roots = append(roots, id)
		}
	}

	st, err := r.loadRebaseState()
	if err != nil {
		return nil, err
	}
	if st != nil {
		roots = append(roots, st.OrigHead, st.Upstream, st.Onto, st.Current, st.Tip, st.TipTree)
		roots = append(roots, st.Todo...)
	}
	conflicts, err := r.loadConflicts()
	if err != nil {
		return nil, err
	}
	for _, c := range conflicts {
		roots = append(roots, c.Ancestor, c.Ours, c.Theirs)
	}
	slices.SortFunc(roots, object.ObjectID.Compare)
	return slices.Compact(roots), nil
}

// Verify checks the layout and cached aggregates of the HEAD, staging and
// working trees. It returns the number of distinct root trees checked.
func (r *Repo) Verify(ctx context.Context) (int, error) {
	var roots []object.ObjectID
	for _, get := range []func() (object.ObjectID, error){r.HeadTree, r.StageTree, r.WorkTree} {
		id, err := get()
		if err != nil {
			return 0, fmt.Errorf("verify: %w", err)
		}
		roots = append(roots, id)
	}
	slices.SortFunc(roots, object.ObjectID.Compare)
	roots = slices.Compact(roots)

	th := r.Config.Thresholds()
	for _, id := range roots {
		if err := tree.Verify(ctx, r.Store, th, id); err != nil {
			return 0, err
		}
	}
	r.Logger.Debug().Int("trees", len(roots)).Msg("trees verified")
	return len(roots), nil
}

// GC deletes every loose object that is not reachable from a root. It
// verifies the current trees first and prunes nothing when one is damaged.
func (r *Repo) GC(ctx context.Context) (*GCSummary, error) {
	if err := r.guard(OpGC); err != nil {
		return nil, err
	}
	if _, err := r.Verify(ctx); err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	roots, err := r.gcRoots()
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	keep, err := object.ReachableSet(ctx, r.Store, roots)
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	pruned, err := r.Store.Prune(ctx, keep)
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	r.Logger.Info().Int("reachable", len(keep)).Int("pruned", pruned).Msg("gc finished")
	return &GCSummary{Reachable: len(keep), Pruned: pruned}, nil
}

// RebuildGraph discards the ancestry graph and re-indexes every commit
// reachable from branches, tags and pseudo refs. It returns the number of
// commits indexed.
func (r *Repo) RebuildGraph(ctx context.Context) (int, error) {
	if err := r.guard(OpRebuildGraph); err != nil {
		return 0, err
	}
	refs, err := r.ListRefs("")
	if err != nil {
		return 0, fmt.Errorf("rebuild graph: %w", err)
	}
	var tips []object.ObjectID
	for _, id := range refs {
		c, err := r.peel(id)
		if err != nil {
			return 0, fmt.Errorf("rebuild graph: %w", err)
		}
		tips = append(tips, c)
	}
	for _, name := range []string{HeadRef, OrigHeadRef, MergeHeadRef} {
		if id, ok, err := r.LookupRef(name); err != nil {
			return 0, fmt.Errorf("rebuild graph: %w", err)
		} else if ok {
			tips = append(tips, id)
		}
	}
	n, err := graph.Rebuild(ctx, r.Store, r.Graph, tips)
	if err != nil {
		return 0, fmt.Errorf("rebuild graph: %w", err)
	}
	r.resetAncestry()
	r.Logger.Info().Int("commits", n).Msg("ancestry graph rebuilt")
	return n, nil
}
