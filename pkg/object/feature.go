package object

import (
	"fmt"

	"github.com/paulmach/orb"
)

// RevFeature is an immutable, positional record of attribute values. The
// positions match the attribute order of the feature's RevFeatureType.
type RevFeature struct {
	id     ObjectID
	values []any
}

// NewFeature normalizes values and computes the feature id.
func NewFeature(values ...any) (RevFeature, error) {
	norm := make([]any, len(values))
	for i, v := range values {
		n, err := NormalizeValue(v)
		if err != nil {
			return RevFeature{}, fmt.Errorf("feature value %d: %w", i, err)
		}
		norm[i] = n
	}
	return newFeature(norm)
}

func newFeature(values []any) (RevFeature, error) {
	f := RevFeature{values: values}
	body, err := MarshalFeature(f)
	if err != nil {
		return RevFeature{}, err
	}
	f.id = HashObject(TypeFeature, body)
	return f, nil
}

func (f RevFeature) ID() ObjectID     { return f.id }
func (f RevFeature) Type() ObjectType { return TypeFeature }

// Len is the number of attribute values.
func (f RevFeature) Len() int { return len(f.values) }

// Value returns the value at position i.
func (f RevFeature) Value(i int) any { return f.values[i] }

// Values returns a copy of all values.
func (f RevFeature) Values() []any {
	out := make([]any, len(f.values))
	copy(out, f.values)
	return out
}

// Bounds is the union of the envelopes of all geometry values.
func (f RevFeature) Bounds() *orb.Bound {
	var acc *orb.Bound
	for _, v := range f.values {
		acc = UnionBounds(acc, valueBounds(v))
	}
	return acc
}

// Equal compares features by id, which covers every value.
func (f RevFeature) Equal(o RevFeature) bool { return f.id == o.id }

// AttributeDescriptor describes one attribute of a feature type.
type AttributeDescriptor struct {
	Name     string
	Type     FieldType
	Nillable bool
	CRS      string // coordinate reference system, geometry attributes only
}

// IsGeometry reports whether the attribute holds geometries.
func (d AttributeDescriptor) IsGeometry() bool { return d.Type == FieldGeometry }

func (d AttributeDescriptor) String() string {
	if d.IsGeometry() && d.CRS != "" {
		return fmt.Sprintf("%s:%s(%s)", d.Name, d.Type, d.CRS)
	}
	return fmt.Sprintf("%s:%s", d.Name, d.Type)
}

// RevFeatureType is a named, ordered attribute schema.
type RevFeatureType struct {
	id          ObjectID
	name        string
	descriptors []AttributeDescriptor
}

// NewFeatureType validates the schema and computes its id. Attribute names
// must be non-empty and unique.
func NewFeatureType(name string, descriptors ...AttributeDescriptor) (RevFeatureType, error) {
	if name == "" {
		return RevFeatureType{}, fmt.Errorf("%w: feature type name is empty", ErrInvalid)
	}
	seen := make(map[string]bool, len(descriptors))
	for i, d := range descriptors {
		if d.Name == "" {
			return RevFeatureType{}, fmt.Errorf("%w: feature type %q: attribute %d has no name", ErrInvalid, name, i)
		}
		if seen[d.Name] {
			return RevFeatureType{}, fmt.Errorf("%w: feature type %q: duplicate attribute %q", ErrInvalid, name, d.Name)
		}
		seen[d.Name] = true
		if !d.Type.Valid() {
			return RevFeatureType{}, fmt.Errorf("%w: feature type %q: attribute %q has unknown type %d", ErrInvalid, name, d.Name, d.Type)
		}
		if d.CRS != "" && !d.IsGeometry() {
			return RevFeatureType{}, fmt.Errorf("%w: feature type %q: CRS on non-geometry attribute %q", ErrInvalid, name, d.Name)
		}
	}
	ft := RevFeatureType{name: name, descriptors: append([]AttributeDescriptor(nil), descriptors...)}
	ft.id = HashObject(TypeFeatureType, MarshalFeatureType(ft))
	return ft, nil
}

func (t RevFeatureType) ID() ObjectID     { return t.id }
func (t RevFeatureType) Type() ObjectType { return TypeFeatureType }
func (t RevFeatureType) Name() string     { return t.name }

// Descriptors returns a copy of the attribute descriptors.
func (t RevFeatureType) Descriptors() []AttributeDescriptor {
	return append([]AttributeDescriptor(nil), t.descriptors...)
}

// Descriptor returns the attribute at position i.
func (t RevFeatureType) Descriptor(i int) AttributeDescriptor { return t.descriptors[i] }

// Len is the number of attributes.
func (t RevFeatureType) Len() int { return len(t.descriptors) }

// IndexOf returns the position of the named attribute, or -1.
func (t RevFeatureType) IndexOf(name string) int {
	for i, d := range t.descriptors {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// GeometryDescriptor returns the first geometry attribute, if any.
func (t RevFeatureType) GeometryDescriptor() (AttributeDescriptor, bool) {
	for _, d := range t.descriptors {
		if d.IsGeometry() {
			return d, true
		}
	}
	return AttributeDescriptor{}, false
}

// ValidateFeature checks that f conforms to the schema.
func (t RevFeatureType) ValidateFeature(f RevFeature) error {
	if f.Len() != len(t.descriptors) {
		return fmt.Errorf("%w: feature has %d values, type %q has %d attributes", ErrInvalid, f.Len(), t.name, len(t.descriptors))
	}
	for i, d := range t.descriptors {
		v := f.Value(i)
		if v == nil {
			if !d.Nillable {
				return fmt.Errorf("%w: attribute %q is not nillable", ErrInvalid, d.Name)
			}
			continue
		}
		if ft, _ := FieldTypeOf(v); ft != d.Type {
			return fmt.Errorf("%w: attribute %q: want %s, got %s", ErrInvalid, d.Name, d.Type, ft)
		}
	}
	return nil
}
