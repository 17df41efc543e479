// Package merge implements three-way merging of features and of whole
// trees against a common ancestor.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/object"
)

var (
	// ErrFeatureTypeMismatch is returned when a merged feature is requested
	// for two sides whose feature types differ.
	ErrFeatureTypeMismatch = errors.New("merge: feature types differ")
	// ErrConflict is returned when a merged feature is requested for a
	// conflicting merge.
	ErrConflict = errors.New("merge: conflicting changes")
	// ErrPathMismatch is returned when the three sides of a feature merge
	// are not the same path.
	ErrPathMismatch = errors.New("merge: node paths differ")
)

// FeatureMerge is the outcome of merging two versions of one feature
// against their common ancestor.
type FeatureMerge struct {
	Path       string
	OursDiff   diff.FeatureDiff
	TheirsDiff diff.FeatureDiff

	ours       object.NodeRef
	oursF      object.RevFeature
	theirsF    object.RevFeature
	oursType   object.RevFeatureType
	typesMatch bool
	conflict   bool
}

// DiffMergeFeatures merges the changes ancestor->ours and ancestor->theirs
// for the feature at a single path. The six objects involved are fetched
// in one batch; any of them missing is an integrity error.
func DiffMergeFeatures(ctx context.Context, store object.Store, ancestor, ours, theirs object.NodeRef) (*FeatureMerge, error) {
	path := ancestor.Path()
	if ours.Path() != path || theirs.Path() != path {
		return nil, fmt.Errorf("%w: %q, %q, %q", ErrPathMismatch, path, ours.Path(), theirs.Path())
	}
	for _, r := range []object.NodeRef{ancestor, ours, theirs} {
		if !r.IsFeature() || r.IsNull() {
			return nil, fmt.Errorf("%w: merge %q: %s is not a feature", object.ErrInvalid, path, r)
		}
		if r.MetadataID().IsNull() {
			return nil, fmt.Errorf("%w: merge %q: feature has no feature type", object.ErrInvalid, path)
		}
	}

	ids := []object.ObjectID{
		ancestor.ObjectID(), ours.ObjectID(), theirs.ObjectID(),
		ancestor.MetadataID(), ours.MetadataID(), theirs.MetadataID(),
	}
	found, missing, err := object.CollectAll(ctx, store, ids)
	if err != nil {
		return nil, fmt.Errorf("merge %q: %w", path, err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("merge %q: object %s: %w", path, missing[0], object.ErrNotFound)
	}

	feature := func(id object.ObjectID) (object.RevFeature, error) {
		f, ok := found[id].(object.RevFeature)
		if !ok {
			return object.RevFeature{}, fmt.Errorf("%w: merge %q: %s is not a feature", object.ErrInvalid, path, id.Short())
		}
		return f, nil
	}
	featureType := func(id object.ObjectID) (object.RevFeatureType, error) {
		t, ok := found[id].(object.RevFeatureType)
		if !ok {
			return object.RevFeatureType{}, fmt.Errorf("%w: merge %q: %s is not a feature type", object.ErrInvalid, path, id.Short())
		}
		return t, nil
	}

	ancF, err := feature(ancestor.ObjectID())
	if err != nil {
		return nil, err
	}
	oursF, err := feature(ours.ObjectID())
	if err != nil {
		return nil, err
	}
	theirsF, err := feature(theirs.ObjectID())
	if err != nil {
		return nil, err
	}
	ancT, err := featureType(ancestor.MetadataID())
	if err != nil {
		return nil, err
	}
	oursT, err := featureType(ours.MetadataID())
	if err != nil {
		return nil, err
	}
	theirsT, err := featureType(theirs.MetadataID())
	if err != nil {
		return nil, err
	}

	m := &FeatureMerge{
		Path:       path,
		OursDiff:   diff.Features(path, &ancF, &oursF, ancT, oursT),
		TheirsDiff: diff.Features(path, &ancF, &theirsF, ancT, theirsT),
		ours:       ours,
		oursF:      oursF,
		theirsF:    theirsF,
		oursType:   oursT,
		typesMatch: oursT.ID() == theirsT.ID(),
	}
	m.conflict = !m.typesMatch || m.OursDiff.ConflictsWith(m.TheirsDiff)
	return m, nil
}

// IsConflict reports whether the two sides cannot be merged automatically.
func (m *FeatureMerge) IsConflict() bool { return m.conflict }

// IsMerge reports whether the sides made different changes, so the result
// differs from both.
func (m *FeatureMerge) IsMerge() bool { return !m.OursDiff.Equal(m.TheirsDiff) }

// MergedFeature combines both sides: attributes changed by neither keep the
// ancestor value, attributes changed by one side take that side's value and
// attributes changed identically by both take the shared value.
func (m *FeatureMerge) MergedFeature() (object.RevFeature, error) {
	if !m.typesMatch {
		return object.RevFeature{}, fmt.Errorf("%w: %q", ErrFeatureTypeMismatch, m.Path)
	}
	if m.conflict {
		return object.RevFeature{}, fmt.Errorf("%w: %q", ErrConflict, m.Path)
	}
	values := m.oursF.Values()
	for i := 0; i < m.oursType.Len() && i < len(values); i++ {
		name := m.oursType.Descriptor(i).Name
		if a, ok := m.TheirsDiff.Get(name); ok {
			values[i] = a.New
		}
	}
	return object.NewFeature(values...)
}

// MergedNode returns the tree entry for the merged feature, keeping the
// ours entry's name and metadata.
func (m *FeatureMerge) MergedNode() (object.RevFeature, object.Node, error) {
	f, err := m.MergedFeature()
	if err != nil {
		return object.RevFeature{}, object.Node{}, err
	}
	return f, m.ours.Node.Update(f.ID(), f.Bounds()), nil
}
