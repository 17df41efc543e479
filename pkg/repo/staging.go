package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

// headCommit returns the commit HEAD resolves to, reporting false on an
// unborn branch.
func (r *Repo) headCommit() (object.RevCommit, bool, error) {
	id, ok, err := r.LookupRef(HeadRef)
	if err != nil || !ok {
		return object.RevCommit{}, false, err
	}
	c, err := object.ReadCommit(r.Store, id)
	if err != nil {
		return object.RevCommit{}, false, fmt.Errorf("read HEAD commit: %w", err)
	}
	return c, true, nil
}

// HeadTree returns the tree of the HEAD commit, or the empty tree on an
// unborn branch.
func (r *Repo) HeadTree() (object.ObjectID, error) {
	c, ok, err := r.headCommit()
	if err != nil || !ok {
		return object.EmptyTreeID, err
	}
	return c.TreeID(), nil
}

func (r *Repo) treeRef(name string) (object.ObjectID, error) {
	id, ok, err := r.LookupRef(name)
	if err != nil {
		return object.NullID, err
	}
	if ok {
		return id, nil
	}
	return r.HeadTree()
}

// WorkTree returns the working tree id.
func (r *Repo) WorkTree() (object.ObjectID, error) { return r.treeRef(WorkHeadRef) }

// StageTree returns the staging area tree id.
func (r *Repo) StageTree() (object.ObjectID, error) { return r.treeRef(StageHeadRef) }

func (r *Repo) setWorkTree(id object.ObjectID, reason string) error {
	return r.UpdateRef(WorkHeadRef, id, reason)
}

func (r *Repo) setStageTree(id object.ObjectID, reason string) error {
	return r.UpdateRef(StageHeadRef, id, reason)
}

// setTrees points both the working tree and the staging area at id.
func (r *Repo) setTrees(id object.ObjectID, reason string) error {
	if err := r.setStageTree(id, reason); err != nil {
		return err
	}
	return r.setWorkTree(id, reason)
}

// transfer makes target match source at the given paths (everything when
// paths is empty) and returns the new target tree with the number of
// feature paths changed. Trees created on the way keep the source's
// metadata but start empty so that only selected features follow.
func (r *Repo) transfer(ctx context.Context, source, target object.ObjectID, paths []string) (object.ObjectID, int, error) {
	th := r.Config.Thresholds()
	opts := diff.Options{ReportTrees: true, Paths: paths, BucketsPerTier: th.BucketsPerTier}

	changes, err := r.ancestorChanges(ctx, source, target, paths)
	if err != nil {
		return object.NullID, 0, err
	}
	features := 0
	for e, err := range diff.Trees(ctx, r.Store, target, source, opts) {
		if err != nil {
			return object.NullID, 0, err
		}
		switch {
		case e.New == nil:
			changes = append(changes, tree.RemoveChange(e.Path()))
		case e.New.IsTree():
			n := e.New.Node
			if e.Old != nil && e.Old.IsTree() {
				if e.Old.Node.MetadataID == n.MetadataID {
					continue
				}
				n.ObjectID = e.Old.ObjectID()
				n.Bounds = e.Old.Bounds()
			} else {
				n.ObjectID = object.EmptyTreeID
				n.Bounds = nil
			}
			changes = append(changes, tree.PutChange(e.Path(), n))
		default:
			changes = append(changes, tree.PutChange(e.Path(), e.New.Node))
		}
		if e.IsFeature() {
			features++
		}
	}
	if len(changes) == 0 {
		return target, 0, nil
	}
	t, err := tree.Apply(ctx, r.Store, th, target, changes)
	if err != nil {
		return object.NullID, 0, err
	}
	return t.ID(), features, nil
}

// ancestorChanges brings the trees leading to each filtered path over
// from source, so that a transferred feature lands in a tree carrying the
// right feature type. The diff does not report those trees because they
// sit above the filter.
func (r *Repo) ancestorChanges(ctx context.Context, source, target object.ObjectID, paths []string) ([]tree.Change, error) {
	th := r.Config.Thresholds()
	seen := make(map[string]bool)
	var changes []tree.Change
	for _, p := range paths {
		all := object.AllPathsTo(p)
		for _, anc := range all[:len(all)-1] {
			if seen[anc] {
				continue
			}
			seen[anc] = true
			src, ok, err := tree.FindChild(ctx, r.Store, th, source, anc)
			if err != nil {
				return nil, err
			}
			if !ok || !src.IsTree() {
				break
			}
			dst, ok, err := tree.FindChild(ctx, r.Store, th, target, anc)
			if err != nil {
				return nil, err
			}
			n := src.Node
			switch {
			case !ok || !dst.IsTree():
				n.ObjectID = object.EmptyTreeID
				n.Bounds = nil
			case dst.Node.MetadataID != n.MetadataID:
				n.ObjectID = dst.ObjectID()
				n.Bounds = dst.Bounds()
			default:
				continue
			}
			changes = append(changes, tree.PutChange(anc, n))
		}
	}
	return changes, nil
}

// Add stages working tree changes at the given paths (everything when no
// path is given) and marks conflicts at or below those paths as resolved.
// It returns the number of features staged.
func (r *Repo) Add(ctx context.Context, paths ...string) (int, error) {
	if err := r.guard(OpAdd); err != nil {
		return 0, err
	}
	for _, p := range paths {
		if err := object.CheckValidPath(p); err != nil {
			return 0, fmt.Errorf("add: %w", err)
		}
	}
	work, err := r.WorkTree()
	if err != nil {
		return 0, fmt.Errorf("add: %w", err)
	}
	stage, err := r.StageTree()
	if err != nil {
		return 0, fmt.Errorf("add: %w", err)
	}
	next, n, err := r.transfer(ctx, work, stage, paths)
	if err != nil {
		return 0, fmt.Errorf("add: %w", err)
	}
	if next != stage {
		if err := r.setStageTree(next, "add"); err != nil {
			return 0, fmt.Errorf("add: %w", err)
		}
	}

	resolve := paths
	if len(resolve) == 0 {
		resolve = []string{object.RootPath}
	}
	resolved, err := r.removeConflicts(resolve...)
	if err != nil {
		return n, fmt.Errorf("add: %w", err)
	}
	r.Logger.Debug().Int("features", n).Int("resolved", resolved).Msg("staged changes")
	return n, nil
}

// moveHead points the current branch, or HEAD itself when detached, at id
// without a compare-and-swap.
func (r *Repo) moveHead(id object.ObjectID, reason string) error {
	head, err := r.Head()
	if err != nil {
		return err
	}
	if len(head) > len(headsPrefix) && head[:len(headsPrefix)] == headsPrefix {
		return r.UpdateRef(head, id, reason)
	}
	return r.UpdateRef(HeadRef, id, reason)
}

// advanceHead moves the current branch from old to next with a
// compare-and-swap. A null old expects an unborn branch.
func (r *Repo) advanceHead(old, next object.ObjectID, reason string) error {
	head, err := r.Head()
	if err != nil {
		return err
	}
	name := HeadRef
	if len(head) > len(headsPrefix) && head[:len(headsPrefix)] == headsPrefix {
		name = head
	}
	if old.IsNull() {
		_, exists, err := r.LookupRef(name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("update ref %q: %w (expected no ref)", name, ErrRefCASMismatch)
		}
		return r.UpdateRef(name, next, reason)
	}
	return r.UpdateRefCAS(name, next, reason, old)
}

func (r *Repo) clearMergeState() error {
	errs := []error{
		r.clearConflicts(),
		r.DeleteRef(MergeHeadRef, "clear merge"),
		r.Blobs.Delete(mergeMsgBlob),
	}
	if !r.IsRebasing() {
		errs = append(errs, r.DeleteRef(OrigHeadRef, "clear merge"))
	}
	return errors.Join(errs...)
}
