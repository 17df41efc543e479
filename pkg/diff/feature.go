package diff

import (
	"github.com/odvcencio/geograft/pkg/object"
)

// AttributeDiff is the change of a single attribute value. A nil Old means
// the attribute was absent or unset before; a nil New means it is absent or
// unset after.
type AttributeDiff struct {
	Descriptor object.AttributeDescriptor
	Old        any
	New        any
}

// Type classifies the attribute change.
func (a AttributeDiff) Type() ChangeType {
	switch {
	case a.Old == nil:
		return Added
	case a.New == nil:
		return Removed
	default:
		return Modified
	}
}

// Equal reports whether both diffs describe the same change.
func (a AttributeDiff) Equal(o AttributeDiff) bool {
	return object.ValueEqual(a.Old, o.Old) && object.ValueEqual(a.New, o.New)
}

// ConflictsWith reports whether a and o, both made against the same
// ancestor value, change it to different results.
func (a AttributeDiff) ConflictsWith(o AttributeDiff) bool {
	return !object.ValueEqual(a.New, o.New)
}

// FeatureDiff holds every attribute that differs between two versions of
// a feature. Attributes are matched by name, so a diff across feature
// types also covers attributes added or dropped by the schema change.
type FeatureDiff struct {
	Path    string
	OldType object.RevFeatureType
	NewType object.RevFeatureType
	diffs   []AttributeDiff
	byName  map[string]int
}

// Features compares before and after. Either may be nil to stand for an
// absent feature, in which case every attribute of the other side is
// reported.
func Features(path string, before, after *object.RevFeature, oldType, newType object.RevFeatureType) FeatureDiff {
	fd := FeatureDiff{Path: path, OldType: oldType, NewType: newType, byName: make(map[string]int)}

	oldValue := func(name string) any {
		if before == nil {
			return nil
		}
		if i := oldType.IndexOf(name); i >= 0 && i < before.Len() {
			return before.Value(i)
		}
		return nil
	}
	for i := 0; i < newType.Len(); i++ {
		d := newType.Descriptor(i)
		var nv any
		if after != nil && i < after.Len() {
			nv = after.Value(i)
		}
		ov := oldValue(d.Name)
		if !object.ValueEqual(ov, nv) {
			fd.add(AttributeDiff{Descriptor: d, Old: ov, New: nv})
		}
	}
	for i := 0; i < oldType.Len(); i++ {
		d := oldType.Descriptor(i)
		if newType.IndexOf(d.Name) >= 0 {
			continue
		}
		if ov := oldValue(d.Name); ov != nil {
			fd.add(AttributeDiff{Descriptor: d, Old: ov})
		}
	}
	return fd
}

func (fd *FeatureDiff) add(a AttributeDiff) {
	fd.byName[a.Descriptor.Name] = len(fd.diffs)
	fd.diffs = append(fd.diffs, a)
}

// HasDifferences reports whether any attribute changed.
func (fd FeatureDiff) HasDifferences() bool { return len(fd.diffs) > 0 }

// Len is the number of changed attributes.
func (fd FeatureDiff) Len() int { return len(fd.diffs) }

// Diffs returns the attribute changes in schema order.
func (fd FeatureDiff) Diffs() []AttributeDiff {
	return append([]AttributeDiff(nil), fd.diffs...)
}

// Get returns the change for the named attribute.
func (fd FeatureDiff) Get(name string) (AttributeDiff, bool) {
	i, ok := fd.byName[name]
	if !ok {
		return AttributeDiff{}, false
	}
	return fd.diffs[i], true
}

// ConflictsWith reports whether any attribute changed by both diffs was
// changed to different values.
func (fd FeatureDiff) ConflictsWith(o FeatureDiff) bool {
	for _, a := range fd.diffs {
		if b, ok := o.Get(a.Descriptor.Name); ok && a.ConflictsWith(b) {
			return true
		}
	}
	return false
}

// Equal reports whether both diffs change the same attributes in the same
// way.
func (fd FeatureDiff) Equal(o FeatureDiff) bool {
	if len(fd.diffs) != len(o.diffs) {
		return false
	}
	for _, a := range fd.diffs {
		b, ok := o.Get(a.Descriptor.Name)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

// Reverse swaps old and new.
func (fd FeatureDiff) Reverse() FeatureDiff {
	r := FeatureDiff{Path: fd.Path, OldType: fd.NewType, NewType: fd.OldType, byName: make(map[string]int, len(fd.diffs))}
	for _, a := range fd.diffs {
		r.add(AttributeDiff{Descriptor: a.Descriptor, Old: a.New, New: a.Old})
	}
	return r
}
