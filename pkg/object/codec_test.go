package object

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

func sampleObjects(t *testing.T) []RevObject {
	t.Helper()
	ft, err := NewFeatureType("roads",
		AttributeDescriptor{Name: "geom", Type: FieldGeometry, CRS: "EPSG:4326"},
		AttributeDescriptor{Name: "name", Type: FieldString, Nillable: true},
		AttributeDescriptor{Name: "lanes", Type: FieldInt},
	)
	if err != nil {
		t.Fatalf("NewFeatureType: %v", err)
	}
	f, err := NewFeature(
		orb.LineString{{1, 2}, {3, 4}},
		nil,
		4,
		true,
		2.5,
		[]byte{0, 1, 2},
		time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
	)
	if err != nil {
		t.Fatalf("NewFeature: %v", err)
	}
	b := orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}
	fn, err := NewNode("r1", KindFeature, f.ID(), NullID, &b)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	tn, err := NewNode("sub", KindTree, EmptyTreeID, ft.ID(), nil)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	leaf, err := NewLeafTree([]Node{tn}, []Node{fn}, 1, 1)
	if err != nil {
		t.Fatalf("NewLeafTree: %v", err)
	}
	bucketed, err := NewBucketTree([]Bucket{{Index: 3, TreeID: leaf.ID(), Bounds: &b}, {Index: 9, TreeID: leaf.ID()}}, 2, 2)
	if err != nil {
		t.Fatalf("NewBucketTree: %v", err)
	}
	author := Person{Name: "Ada", Email: "ada@example.com", Timestamp: 1700000000, TZOffset: -300}
	commit, err := NewCommit(leaf.ID(), []ObjectID{HashBytes([]byte("p1")), HashBytes([]byte("p2"))}, author, author, "merge\n\nbody")
	if err != nil {
		t.Fatalf("NewCommit: %v", err)
	}
	tag, err := NewTag("v1.0", commit.ID(), "release", author)
	if err != nil {
		t.Fatalf("NewTag: %v", err)
	}
	return []RevObject{ft, f, leaf, bucketed, EmptyTree, commit, tag}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, obj := range sampleObjects(t) {
		data, err := Encode(obj)
		if err != nil {
			t.Fatalf("Encode %s: %v", obj.Type(), err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode %s: %v", obj.Type(), err)
		}
		if got.ID() != obj.ID() || got.Type() != obj.Type() {
			t.Fatalf("round trip %s: got %s/%s, want %s", obj.Type(), got.Type(), got.ID(), obj.ID())
		}
		again, err := Encode(got)
		if err != nil {
			t.Fatalf("re-encode %s: %v", obj.Type(), err)
		}
		if !bytes.Equal(again, data) {
			t.Fatalf("re-encoding %s changed bytes", obj.Type())
		}
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	for _, obj := range sampleObjects(t) {
		data, err := Encode(obj)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if _, err := Decode(data[:len(data)-1]); !errors.Is(err, ErrInvalid) {
			t.Fatalf("truncated %s: want ErrInvalid, got %v", obj.Type(), err)
		}
		if _, err := Decode(append(data, 0)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("trailing %s: want ErrInvalid, got %v", obj.Type(), err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode([]byte{99}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestFeatureNormalization(t *testing.T) {
	a, err := NewFeature(int32(7), float32(1.5), orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
	if err != nil {
		t.Fatalf("NewFeature: %v", err)
	}
	b, err := NewFeature(int64(7), 1.5, orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	if err != nil {
		t.Fatalf("NewFeature: %v", err)
	}
	if a.ID() != b.ID() {
		t.Fatal("equivalent values should hash identically")
	}
	if _, err := NewFeature(struct{}{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unsupported value: want ErrInvalid, got %v", err)
	}
}

func TestValueEqualGeometry(t *testing.T) {
	p1 := orb.LineString{{0, 0}, {1, 1}}
	p2 := orb.LineString{{0, 0}, {1, 1}}
	p3 := orb.LineString{{1, 1}, {0, 0}}
	if !ValueEqual(p1, p2) {
		t.Fatal("identical geometries should be equal")
	}
	if ValueEqual(p1, p3) {
		t.Fatal("reversed geometry is a different encoding")
	}
	if ValueEqual(nil, p1) || !ValueEqual(nil, nil) {
		t.Fatal("nil handling")
	}
	if ValueEqual(int64(1), 1.0) {
		t.Fatal("int and float never compare equal")
	}
}

func TestFeatureBounds(t *testing.T) {
	f, err := NewFeature("x", orb.Point{2, 3}, orb.LineString{{-1, 0}, {0, 5}})
	if err != nil {
		t.Fatalf("NewFeature: %v", err)
	}
	b := f.Bounds()
	if b == nil {
		t.Fatal("expected bounds")
	}
	want := orb.Bound{Min: orb.Point{-1, 0}, Max: orb.Point{2, 5}}
	if !b.Equal(want) {
		t.Fatalf("bounds = %v, want %v", *b, want)
	}
	g, _ := NewFeature("no geometry")
	if g.Bounds() != nil {
		t.Fatal("feature without geometry has no bounds")
	}
}

func TestValidateFeature(t *testing.T) {
	ft, err := NewFeatureType("pts",
		AttributeDescriptor{Name: "geom", Type: FieldGeometry},
		AttributeDescriptor{Name: "label", Type: FieldString, Nillable: true},
	)
	if err != nil {
		t.Fatalf("NewFeatureType: %v", err)
	}
	ok, _ := NewFeature(orb.Point{1, 1}, nil)
	if err := ft.ValidateFeature(ok); err != nil {
		t.Fatalf("ValidateFeature: %v", err)
	}
	bad, _ := NewFeature(orb.Point{1, 1}, 3)
	if err := ft.ValidateFeature(bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong type: want ErrInvalid, got %v", err)
	}
	short, _ := NewFeature(orb.Point{1, 1})
	if err := ft.ValidateFeature(short); !errors.Is(err, ErrInvalid) {
		t.Fatalf("arity: want ErrInvalid, got %v", err)
	}
	if _, err := NewFeatureType("dup", AttributeDescriptor{Name: "a", Type: FieldInt}, AttributeDescriptor{Name: "a", Type: FieldInt}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("duplicate attribute: want ErrInvalid, got %v", err)
	}
}

func TestTreeConstructionValidation(t *testing.T) {
	id := HashBytes([]byte("f"))
	a := Node{Name: "a", Kind: KindFeature, ObjectID: id}
	b := Node{Name: "b", Kind: KindFeature, ObjectID: id}
	if _, err := NewLeafTree(nil, []Node{b, a}, 2, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unsorted: want ErrInvalid, got %v", err)
	}
	if _, err := NewLeafTree(nil, []Node{a, a}, 2, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("duplicate: want ErrInvalid, got %v", err)
	}
	if _, err := NewLeafTree(nil, []Node{a, b}, 1, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("size below count: want ErrInvalid, got %v", err)
	}
	ta := Node{Name: "a", Kind: KindTree, ObjectID: id}
	if _, err := NewLeafTree([]Node{ta}, []Node{a}, 1, 1); !errors.Is(err, ErrInvalid) {
		t.Fatalf("name clash: want ErrInvalid, got %v", err)
	}
	if _, err := NewBucketTree([]Bucket{{Index: 2, TreeID: id}, {Index: 1, TreeID: id}}, 0, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unsorted buckets: want ErrInvalid, got %v", err)
	}
	if _, err := NewBucketTree([]Bucket{{Index: 1, TreeID: id}, {Index: 2, TreeID: id}}, 1, 0); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty bucket: want ErrInvalid, got %v", err)
	}
	if _, err := NewBucketTree([]Bucket{{Index: 1, TreeID: id}, {Index: 2, TreeID: id}}, 1, 1); err != nil {
		t.Fatalf("one feature and one tree across two buckets: %v", err)
	}
	if _, err := NewNode("a/b", KindFeature, id, NullID, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("separator in name: want ErrInvalid, got %v", err)
	}
}

func TestCommitValidation(t *testing.T) {
	tree := EmptyTreeID
	p := Person{Name: "x"}
	if _, err := NewCommit(NullID, nil, p, p, "m"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("null tree: want ErrInvalid, got %v", err)
	}
	parent := HashBytes([]byte("p"))
	if _, err := NewCommit(tree, []ObjectID{parent, parent}, p, p, "m"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("duplicate parent: want ErrInvalid, got %v", err)
	}
	if _, err := NewCommit(tree, nil, Person{}, p, "m"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("no author: want ErrInvalid, got %v", err)
	}
}

func TestFormatText(t *testing.T) {
	for _, obj := range sampleObjects(t) {
		text := FormatText(obj)
		if !bytes.HasPrefix([]byte(text), []byte("id\t"+obj.ID().String()+"\n")) {
			t.Fatalf("FormatText %s: missing id header:\n%s", obj.Type(), text)
		}
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		typ  FieldType
		in   string
		want any
	}{
		{FieldBool, "true", true},
		{FieldInt, "-42", int64(-42)},
		{FieldFloat, "2.5", 2.5},
		{FieldString, "main st", "main st"},
		{FieldBytes, "00ff", []byte{0, 0xff}},
		{FieldTime, "2024-03-01T12:00:00Z", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{FieldGeometry, "POINT(1 2)", orb.Point{1, 2}},
		{FieldGeometry, "LINESTRING(0 0,1 1)", orb.LineString{{0, 0}, {1, 1}}},
	}
	for _, c := range cases {
		got, err := ParseValue(c.typ, c.in)
		if err != nil {
			t.Fatalf("ParseValue(%s, %q): %v", c.typ, c.in, err)
		}
		if !ValueEqual(got, c.want) {
			t.Fatalf("ParseValue(%s, %q) = %v, want %v", c.typ, c.in, got, c.want)
		}
	}

	for _, bad := range []struct {
		typ FieldType
		in  string
	}{
		{FieldInt, "four"},
		{FieldGeometry, "POINT(1"},
		{FieldTime, "yesterday"},
	} {
		if _, err := ParseValue(bad.typ, bad.in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("ParseValue(%s, %q) error = %v, want ErrInvalid", bad.typ, bad.in, err)
		}
	}
}
