package merge

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

// Stats tracks how each path changed by theirs was resolved.
type Stats struct {
	Unconflicted int
	Identical    int
	Merged       int
	Conflicts    int
}

// MergedFeature is a feature produced by combining both sides.
type MergedFeature struct {
	Path    string
	Feature object.RevFeature
	Node    object.Node
}

// RetypedTree is a tree whose feature type theirs changed. Node keeps the
// ours content with the theirs metadata.
type RetypedTree struct {
	Path string
	Node object.Node
}

// Report is the result of a merge scenario relative to ours: the changes
// that must be applied to the ours tree and the conflicts that block the
// merge.
type Report struct {
	// Unconflicted are theirs changes no ours change interferes with.
	Unconflicted []diff.Entry
	// Merged are features both sides modified compatibly.
	Merged []MergedFeature
	// Retyped are tree metadata changes made only by theirs.
	Retyped []RetypedTree
	// Conflicts are sorted by path.
	Conflicts []object.Conflict
	Stats     Stats
}

// HasConflicts reports whether any path conflicted.
func (r *Report) HasConflicts() bool { return len(r.Conflicts) > 0 }

// TreeChanges converts the non-conflicting results into edits of the ours
// tree.
func (r *Report) TreeChanges() []tree.Change {
	changes := make([]tree.Change, 0, len(r.Retyped)+len(r.Unconflicted)+len(r.Merged))
	// Retyped trees go first so edits beneath them land in the new node.
	for _, rt := range r.Retyped {
		changes = append(changes, tree.PutChange(rt.Path, rt.Node))
	}
	for _, e := range r.Unconflicted {
		if e.New == nil {
			changes = append(changes, tree.RemoveChange(e.Path()))
			continue
		}
		changes = append(changes, tree.PutChange(e.Path(), e.New.Node))
	}
	for _, m := range r.Merged {
		changes = append(changes, tree.PutChange(m.Path, m.Node))
	}
	return changes
}

// Objects returns the new objects the tree changes refer to.
func (r *Report) Objects() []object.RevObject {
	objs := make([]object.RevObject, 0, len(r.Merged))
	for _, m := range r.Merged {
		objs = append(objs, m.Feature)
	}
	return objs
}

// ApplyTo writes merged features and applies every non-conflicting change
// to the ours tree, returning the resulting tree.
func (r *Report) ApplyTo(ctx context.Context, store object.Store, th tree.Thresholds, oursTree object.ObjectID) (object.RevTree, error) {
	if err := object.PutAll(store, r.Objects()...); err != nil {
		return object.RevTree{}, err
	}
	return tree.Apply(ctx, store, th, oursTree, r.TreeChanges())
}

// ReportCommits runs ReportTrees on the trees of three commits.
func ReportCommits(ctx context.Context, store object.Store, th tree.Thresholds, ancestor, ours, theirs object.ObjectID) (*Report, error) {
	var trees [3]object.ObjectID
	for i, id := range []object.ObjectID{ancestor, ours, theirs} {
		if id.IsNull() {
			trees[i] = object.EmptyTreeID
			continue
		}
		c, err := object.ReadCommit(store, id)
		if err != nil {
			return nil, fmt.Errorf("merge scenario: %w", err)
		}
		trees[i] = c.TreeID()
	}
	return ReportTrees(ctx, store, th, trees[0], trees[1], trees[2])
}

// ReportTrees classifies every path changed by theirs relative to the
// changes ours made to the same ancestor.
func ReportTrees(ctx context.Context, store object.Store, th tree.Thresholds, ancestor, ours, theirs object.ObjectID) (*Report, error) {
	opts := diff.Options{ReportTrees: true, BucketsPerTier: th.BucketsPerTier}

	oursChanges := make(map[string]diff.Entry)
	oursTouched := make(map[string]bool)
	for e, err := range diff.Trees(ctx, store, ancestor, ours, opts) {
		if err != nil {
			return nil, fmt.Errorf("merge scenario: ours: %w", err)
		}
		p := e.Path()
		oursChanges[p] = e
		paths := object.AllPathsTo(p)
		for _, anc := range paths[:len(paths)-1] {
			oursTouched[anc] = true
		}
	}

	s := &scenario{ctx: ctx, store: store, ours: oursChanges, oursTouched: oursTouched, report: &Report{}}
	for e, err := range diff.Trees(ctx, store, ancestor, theirs, opts) {
		if err != nil {
			return nil, fmt.Errorf("merge scenario: theirs: %w", err)
		}
		if err := s.consider(e); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(s.report.Conflicts, func(a, b object.Conflict) int { return strings.Compare(a.Path, b.Path) })
	s.report.Stats.Conflicts = len(s.report.Conflicts)
	return s.report, nil
}

type scenario struct {
	ctx         context.Context
	store       object.Store
	ours        map[string]diff.Entry
	oursTouched map[string]bool
	report      *Report
	// covered holds tree paths whose whole subtree was already handled.
	covered []string
}

func (s *scenario) isCovered(p string) bool {
	for _, c := range s.covered {
		if object.IsChild(c, p) {
			return true
		}
	}
	return false
}

// oursRemovedAncestor returns the closest ancestor tree of p that ours
// deleted.
func (s *scenario) oursRemovedAncestor(p string) (string, bool) {
	paths := object.AllPathsTo(p)
	for _, anc := range paths[:len(paths)-1] {
		if e, ok := s.ours[anc]; ok && e.New == nil {
			return anc, true
		}
	}
	return "", false
}

func (s *scenario) conflict(path string, anc, ours, theirs object.ObjectID) {
	s.report.Conflicts = append(s.report.Conflicts, object.Conflict{Path: path, Ancestor: anc, Ours: ours, Theirs: theirs})
}

func (s *scenario) unconflicted(e diff.Entry) {
	s.report.Unconflicted = append(s.report.Unconflicted, e)
	s.report.Stats.Unconflicted++
}

func (s *scenario) consider(t diff.Entry) error {
	p := t.Path()
	if s.isCovered(p) {
		return nil
	}
	o, oursChanged := s.ours[p]

	if _, removed := s.oursRemovedAncestor(p); removed {
		if t.IsFeature() {
			s.conflict(p, t.OldID(), object.NullID, t.NewID())
		}
		return nil
	}

	if !t.IsFeature() {
		return s.considerTree(t, o, oursChanged)
	}

	switch {
	case !oursChanged:
		s.unconflicted(t)
	case sameResult(o, t):
		s.report.Stats.Identical++
	case o.New != nil && !o.New.IsFeature():
		// ours replaced the feature with a tree, or added a tree here.
		s.conflict(p, t.OldID(), o.NewID(), t.NewID())
	case t.Type() == diff.Modified && o.Type() == diff.Modified:
		return s.mergeFeature(o, t)
	default:
		// modify/delete, delete/modify or add/add with different content.
		s.conflict(p, t.OldID(), o.NewID(), t.NewID())
	}
	return nil
}

func (s *scenario) considerTree(t, o diff.Entry, oursChanged bool) error {
	p := t.Path()
	switch t.Type() {
	case diff.Removed:
		switch {
		case oursChanged && o.New == nil:
			s.report.Stats.Identical++
		case s.oursTouched[p] || (oursChanged && o.New != nil):
			s.conflict(p, t.OldID(), o.NewID(), object.NullID)
		default:
			s.unconflicted(t)
		}
		s.covered = append(s.covered, p)
	case diff.Added:
		switch {
		case !oursChanged && !s.oursTouched[p]:
			s.unconflicted(t)
			s.covered = append(s.covered, p)
		case oursChanged && o.New != nil && o.New.IsFeature():
			s.conflict(p, object.NullID, o.NewID(), t.NewID())
			s.covered = append(s.covered, p)
		}
		// Both added a tree here: the entries beneath are merged one by one.
	case diff.Modified:
		if t.Old.Node.MetadataID != t.New.Node.MetadataID {
			s.considerRetype(t, o, oursChanged)
		}
		// Content changes are resolved through the entries beneath.
	}
	return nil
}

// considerRetype handles theirs changing the metadata of a tree node. The
// retyped node keeps whatever content ours has at the path.
func (s *scenario) considerRetype(t, o diff.Entry, oursChanged bool) {
	p := t.Path()
	md := t.New.Node.MetadataID
	switch {
	case !oursChanged:
		s.retype(p, t.Old.Node, md)
	case o.New == nil || !o.New.IsTree():
		s.conflict(p, t.OldID(), o.NewID(), t.NewID())
	case o.New.Node.MetadataID == md:
		s.report.Stats.Identical++
	case o.New.Node.MetadataID != t.Old.Node.MetadataID:
		// both retyped the tree, differently.
		s.conflict(p, t.OldID(), o.NewID(), t.NewID())
	default:
		s.retype(p, o.New.Node, md)
	}
}

func (s *scenario) retype(p string, ours object.Node, md object.ObjectID) {
	ours.MetadataID = md
	s.report.Retyped = append(s.report.Retyped, RetypedTree{Path: p, Node: ours})
	s.report.Stats.Unconflicted++
}

func (s *scenario) mergeFeature(o, t diff.Entry) error {
	m, err := DiffMergeFeatures(s.ctx, s.store, *t.Old, *o.New, *t.New)
	if err != nil {
		return err
	}
	if m.IsConflict() {
		s.conflict(t.Path(), t.OldID(), o.NewID(), t.NewID())
		return nil
	}
	f, node, err := m.MergedNode()
	if err != nil {
		return err
	}
	if f.ID() == o.NewID() {
		// theirs changes were already contained in ours.
		s.report.Stats.Identical++
		return nil
	}
	s.report.Merged = append(s.report.Merged, MergedFeature{Path: t.Path(), Feature: f, Node: node})
	s.report.Stats.Merged++
	return nil
}

func sameResult(o, t diff.Entry) bool {
	if o.New == nil || t.New == nil {
		return o.New == nil && t.New == nil
	}
	return o.New.Node.Kind == t.New.Node.Kind &&
		o.New.ObjectID() == t.New.ObjectID() &&
		o.New.MetadataID() == t.New.MetadataID()
}
