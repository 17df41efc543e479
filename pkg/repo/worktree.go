package repo

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

// editWorkTree applies changes to the working tree and moves WORK_HEAD.
func (r *Repo) editWorkTree(ctx context.Context, reason string, changes ...tree.Change) (object.ObjectID, error) {
	work, err := r.WorkTree()
	if err != nil {
		return object.NullID, err
	}
	t, err := tree.Apply(ctx, r.Store, r.Config.Thresholds(), work, changes)
	if err != nil {
		return object.NullID, err
	}
	if t.ID() != work {
		if err := r.setWorkTree(t.ID(), reason); err != nil {
			return object.NullID, err
		}
	}
	return t.ID(), nil
}

// CreateTree adds an empty feature tree at path whose features follow ft.
// An existing tree at the same path is replaced.
func (r *Repo) CreateTree(ctx context.Context, path string, ft object.RevFeatureType) error {
	if err := r.guard(OpEdit); err != nil {
		return err
	}
	if err := object.CheckValidPath(path); err != nil {
		return fmt.Errorf("create tree: %w", err)
	}
	if _, err := r.Store.Put(ft); err != nil {
		return fmt.Errorf("create tree: %w", err)
	}
	node, err := object.NewNode(object.NodeFromPath(path), object.KindTree, object.EmptyTreeID, ft.ID(), nil)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}
	if _, err := r.editWorkTree(ctx, "create tree "+path, tree.PutChange(path, node)); err != nil {
		return fmt.Errorf("create tree: %w", err)
	}
	r.Logger.Debug().Str("path", path).Str("type", ft.Name()).Msg("created feature tree")
	return nil
}

// RemoveTree deletes the tree at path together with everything below it.
func (r *Repo) RemoveTree(ctx context.Context, path string) error {
	if err := r.guard(OpEdit); err != nil {
		return err
	}
	ref, ok, err := r.find(ctx, WorkHeadRef, path)
	if err != nil {
		return fmt.Errorf("remove tree: %w", err)
	}
	if !ok || !ref.IsTree() {
		return fmt.Errorf("remove tree %q: %w", path, object.ErrNotFound)
	}
	if _, err := r.editWorkTree(ctx, "remove tree "+path, tree.RemoveChange(path)); err != nil {
		return fmt.Errorf("remove tree: %w", err)
	}
	return nil
}

// InsertFeature stores f and places it at path in the working tree. The
// parent of path must be an existing feature tree and f must match its
// feature type.
func (r *Repo) InsertFeature(ctx context.Context, path string, f object.RevFeature) error {
	if err := r.guard(OpEdit); err != nil {
		return err
	}
	if err := object.CheckValidPath(path); err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	ft, err := r.FeatureTypeAt(ctx, object.ParentPath(path))
	if err != nil {
		return fmt.Errorf("insert feature %q: %w", path, err)
	}
	if err := ft.ValidateFeature(f); err != nil {
		return fmt.Errorf("insert feature %q: %w", path, err)
	}
	if _, err := r.Store.Put(f); err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	node, err := object.NewNode(object.NodeFromPath(path), object.KindFeature, f.ID(), object.NullID, f.Bounds())
	if err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	if _, err := r.editWorkTree(ctx, "insert "+path, tree.PutChange(path, node)); err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	return nil
}

// RemoveFeature deletes the feature at path from the working tree.
func (r *Repo) RemoveFeature(ctx context.Context, path string) error {
	if err := r.guard(OpEdit); err != nil {
		return err
	}
	ref, ok, err := r.find(ctx, WorkHeadRef, path)
	if err != nil {
		return fmt.Errorf("remove feature: %w", err)
	}
	if !ok || !ref.IsFeature() {
		return fmt.Errorf("remove feature %q: %w", path, object.ErrNotFound)
	}
	if _, err := r.editWorkTree(ctx, "remove "+path, tree.RemoveChange(path)); err != nil {
		return fmt.Errorf("remove feature: %w", err)
	}
	return nil
}

// Clean removes the features that exist in the working tree but not in the
// staging area, limited to the tree at path when path is not empty. Trees
// are left in place. It returns the number of features removed.
func (r *Repo) Clean(ctx context.Context, path string) (int, error) {
	if err := r.guard(OpClean); err != nil {
		return 0, err
	}
	opts := diff.Options{BucketsPerTier: r.Config.Thresholds().BucketsPerTier}
	if path != object.RootPath {
		ref, ok, err := r.find(ctx, WorkHeadRef, path)
		if err != nil {
			return 0, fmt.Errorf("clean: %w", err)
		}
		if !ok {
			return 0, fmt.Errorf("clean: pathspec %q did not match any tree: %w", path, object.ErrNotFound)
		}
		if !ref.IsTree() {
			return 0, fmt.Errorf("%w: clean: pathspec %q did not resolve to a tree", object.ErrInvalid, path)
		}
		opts.Paths = []string{path}
	}
	stage, err := r.StageTree()
	if err != nil {
		return 0, err
	}
	work, err := r.WorkTree()
	if err != nil {
		return 0, err
	}

	var changes []tree.Change
	for e, err := range diff.Trees(ctx, r.Store, stage, work, opts) {
		if err != nil {
			return 0, fmt.Errorf("clean: %w", err)
		}
		if e.Type() == diff.Added && e.IsFeature() {
			changes = append(changes, tree.RemoveChange(e.Path()))
		}
	}
	if len(changes) == 0 {
		return 0, nil
	}
	if _, err := r.editWorkTree(ctx, "clean", changes...); err != nil {
		return 0, fmt.Errorf("clean: %w", err)
	}
	r.Logger.Debug().Str("path", path).Int("removed", len(changes)).Msg("cleaned working tree")
	return len(changes), nil
}

// FeatureTypeAt returns the feature type governing the working tree at path.
func (r *Repo) FeatureTypeAt(ctx context.Context, path string) (object.RevFeatureType, error) {
	if path == object.RootPath {
		return object.RevFeatureType{}, fmt.Errorf("%w: features must live inside a feature tree", object.ErrInvalid)
	}
	ref, ok, err := r.find(ctx, WorkHeadRef, path)
	if err != nil {
		return object.RevFeatureType{}, err
	}
	if !ok || !ref.IsTree() {
		return object.RevFeatureType{}, fmt.Errorf("tree %q: %w", path, object.ErrNotFound)
	}
	md := ref.MetadataID()
	if md.IsNull() {
		return object.RevFeatureType{}, fmt.Errorf("%w: tree %q has no feature type", object.ErrInvalid, path)
	}
	return object.ReadFeatureType(r.Store, md)
}

// ResolveTree resolves a revision to a root tree id. WORK_HEAD and STAGE_HEAD
// name the working tree and staging area; anything else is resolved as a
// commit.
func (r *Repo) ResolveTree(rev string) (object.ObjectID, error) {
	switch rev {
	case WorkHeadRef:
		return r.WorkTree()
	case StageHeadRef:
		return r.StageTree()
	}
	id, err := r.ResolveCommit(rev)
	if err != nil {
		return object.NullID, err
	}
	c, err := object.ReadCommit(r.Store, id)
	if err != nil {
		return object.NullID, err
	}
	return c.TreeID(), nil
}

func (r *Repo) find(ctx context.Context, rev, path string) (object.NodeRef, bool, error) {
	root, err := r.ResolveTree(rev)
	if err != nil {
		return object.NodeRef{}, false, err
	}
	return tree.FindChild(ctx, r.Store, r.Config.Thresholds(), root, path)
}

// FindNode resolves path in the tree named by rev (a commit-ish,
// WORK_HEAD or STAGE_HEAD).
func (r *Repo) FindNode(ctx context.Context, rev, path string) (object.NodeRef, bool, error) {
	return r.find(ctx, rev, path)
}

// Feature returns the feature at path in rev together with its type.
func (r *Repo) Feature(ctx context.Context, rev, path string) (object.RevFeature, object.RevFeatureType, error) {
	ref, ok, err := r.find(ctx, rev, path)
	if err != nil {
		return object.RevFeature{}, object.RevFeatureType{}, err
	}
	if !ok || !ref.IsFeature() {
		return object.RevFeature{}, object.RevFeatureType{}, fmt.Errorf("feature %q in %s: %w", path, rev, object.ErrNotFound)
	}
	f, err := object.ReadFeature(r.Store, ref.ObjectID())
	if err != nil {
		return object.RevFeature{}, object.RevFeatureType{}, err
	}
	var ft object.RevFeatureType
	if md := ref.MetadataID(); !md.IsNull() {
		if ft, err = object.ReadFeatureType(r.Store, md); err != nil {
			return object.RevFeature{}, object.RevFeatureType{}, err
		}
	}
	return f, ft, nil
}
