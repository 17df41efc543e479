package object

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Canonical encoding: every object is a type byte followed by a big-endian
// body. Lists are length-prefixed, strings are uint32 length + UTF-8 bytes,
// envelopes are a presence byte followed by four float64s, geometries are
// big-endian WKB. The same logical object always encodes to the same bytes.

const (
	valNil byte = iota
	valBool
	valInt
	valFloat
	valString
	valBytes
	valTime
	valGeometry
)

var errShortBuffer = errors.New("short buffer")

// Encode serializes obj with its leading type byte.
func Encode(obj RevObject) ([]byte, error) {
	var body []byte
	switch o := obj.(type) {
	case RevTree:
		body = MarshalTree(o)
	case RevFeature:
		b, err := MarshalFeature(o)
		if err != nil {
			return nil, err
		}
		body = b
	case RevFeatureType:
		body = MarshalFeatureType(o)
	case RevCommit:
		body = MarshalCommit(o)
	case RevTag:
		body = MarshalTag(o)
	default:
		return nil, fmt.Errorf("encode: unsupported object %T", obj)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(obj.Type()))
	return append(out, body...), nil
}

// Decode parses an encoding produced by Encode. Encodings that would not
// re-encode to the same bytes are rejected.
func Decode(data []byte) (RevObject, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: decode: empty input", ErrInvalid)
	}
	t, body := ObjectType(data[0]), data[1:]
	var (
		obj RevObject
		err error
	)
	switch t {
	case TypeTree:
		obj, err = UnmarshalTree(body)
	case TypeFeature:
		obj, err = UnmarshalFeature(body)
	case TypeFeatureType:
		obj, err = UnmarshalFeatureType(body)
	case TypeCommit:
		obj, err = UnmarshalCommit(body)
	case TypeTag:
		obj, err = UnmarshalTag(body)
	default:
		return nil, fmt.Errorf("%w: decode: unknown object type %d", ErrInvalid, data[0])
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	if obj.ID() != HashObject(t, body) {
		return nil, fmt.Errorf("%w: decode %s: non-canonical encoding", ErrInvalid, t)
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// RevTree
// ---------------------------------------------------------------------------

// MarshalTree serializes a tree body.
func MarshalTree(t RevTree) []byte {
	e := &encoder{}
	e.u64(t.size)
	e.u32(uint32(t.numTrees))
	if t.IsBucketed() {
		e.byte(1)
		e.u32(uint32(len(t.buckets)))
		for _, b := range t.buckets {
			e.u32(uint32(b.Index))
			e.id(b.TreeID)
			e.bounds(b.Bounds)
		}
		return e.buf
	}
	e.byte(0)
	e.nodes(t.trees)
	e.nodes(t.features)
	return e.buf
}

// UnmarshalTree parses a tree body.
func UnmarshalTree(data []byte) (RevTree, error) {
	d := &decoder{data: data}
	size := d.u64()
	numTrees := int(d.u32())
	layout := d.byte()
	if layout == 1 {
		n := d.count(4 + IDSize + 1)
		buckets := make([]Bucket, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			buckets = append(buckets, Bucket{Index: int(d.u32()), TreeID: d.id(), Bounds: d.bounds()})
		}
		if err := d.finish(); err != nil {
			return RevTree{}, err
		}
		return NewBucketTree(buckets, size, numTrees)
	}
	if layout != 0 {
		return RevTree{}, fmt.Errorf("%w: unknown tree layout %d", ErrInvalid, layout)
	}
	trees := d.nodes()
	features := d.nodes()
	if err := d.finish(); err != nil {
		return RevTree{}, err
	}
	return NewLeafTree(trees, features, size, numTrees)
}

// ---------------------------------------------------------------------------
// RevFeature
// ---------------------------------------------------------------------------

// MarshalFeature serializes a feature body. It fails only for geometries
// that have no WKB form.
func MarshalFeature(f RevFeature) ([]byte, error) {
	e := &encoder{}
	e.u32(uint32(len(f.values)))
	for i, v := range f.values {
		var err error
		e.buf, err = appendValue(e.buf, v)
		if err != nil {
			return nil, fmt.Errorf("marshal feature value %d: %w", i, err)
		}
	}
	return e.buf, nil
}

// UnmarshalFeature parses a feature body.
func UnmarshalFeature(data []byte) (RevFeature, error) {
	d := &decoder{data: data}
	n := d.count(1)
	values := make([]any, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		values = append(values, d.value())
	}
	if err := d.finish(); err != nil {
		return RevFeature{}, err
	}
	return newFeature(values)
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, valNil), nil
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		return append(buf, valBool, b), nil
	case int64:
		return binary.BigEndian.AppendUint64(append(buf, valInt), uint64(x)), nil
	case float64:
		return binary.BigEndian.AppendUint64(append(buf, valFloat), math.Float64bits(x)), nil
	case string:
		return appendString(append(buf, valString), x), nil
	case []byte:
		buf = binary.BigEndian.AppendUint32(append(buf, valBytes), uint32(len(x)))
		return append(buf, x...), nil
	case time.Time:
		return binary.BigEndian.AppendUint64(append(buf, valTime), uint64(x.UnixNano())), nil
	case orb.Geometry:
		data, err := wkb.Marshal(x, binary.BigEndian)
		if err != nil {
			return nil, fmt.Errorf("%w: geometry %s: %v", ErrInvalid, x.GeoJSONType(), err)
		}
		buf = binary.BigEndian.AppendUint32(append(buf, valGeometry), uint32(len(data)))
		return append(buf, data...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalid, v)
	}
}

// ---------------------------------------------------------------------------
// RevFeatureType
// ---------------------------------------------------------------------------

// MarshalFeatureType serializes a feature type body.
func MarshalFeatureType(t RevFeatureType) []byte {
	e := &encoder{}
	e.str(t.name)
	e.u32(uint32(len(t.descriptors)))
	for _, d := range t.descriptors {
		e.str(d.Name)
		e.byte(byte(d.Type))
		e.bool(d.Nillable)
		e.str(d.CRS)
	}
	return e.buf
}

// UnmarshalFeatureType parses a feature type body.
func UnmarshalFeatureType(data []byte) (RevFeatureType, error) {
	d := &decoder{data: data}
	name := d.str()
	n := d.count(4 + 1 + 1 + 4)
	descs := make([]AttributeDescriptor, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		descs = append(descs, AttributeDescriptor{
			Name:     d.str(),
			Type:     FieldType(d.byte()),
			Nillable: d.bool(),
			CRS:      d.str(),
		})
	}
	if err := d.finish(); err != nil {
		return RevFeatureType{}, err
	}
	return NewFeatureType(name, descs...)
}

// ---------------------------------------------------------------------------
// RevCommit and RevTag
// ---------------------------------------------------------------------------

// MarshalCommit serializes a commit body.
func MarshalCommit(c RevCommit) []byte {
	e := &encoder{}
	e.id(c.treeID)
	e.u32(uint32(len(c.parents)))
	for _, p := range c.parents {
		e.id(p)
	}
	e.person(c.author)
	e.person(c.committer)
	e.str(c.message)
	return e.buf
}

// UnmarshalCommit parses a commit body.
func UnmarshalCommit(data []byte) (RevCommit, error) {
	d := &decoder{data: data}
	tree := d.id()
	n := d.count(IDSize)
	parents := make([]ObjectID, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		parents = append(parents, d.id())
	}
	author := d.person()
	committer := d.person()
	msg := d.str()
	if err := d.finish(); err != nil {
		return RevCommit{}, err
	}
	return NewCommit(tree, parents, author, committer, msg)
}

// MarshalTag serializes a tag body.
func MarshalTag(t RevTag) []byte {
	e := &encoder{}
	e.str(t.name)
	e.id(t.commitID)
	e.str(t.message)
	e.person(t.tagger)
	return e.buf
}

// UnmarshalTag parses a tag body.
func UnmarshalTag(data []byte) (RevTag, error) {
	d := &decoder{data: data}
	name := d.str()
	commit := d.id()
	msg := d.str()
	tagger := d.person()
	if err := d.finish(); err != nil {
		return RevTag{}, err
	}
	return NewTag(name, commit, msg, tagger)
}

// ---------------------------------------------------------------------------
// primitives
// ---------------------------------------------------------------------------

type encoder struct{ buf []byte }

func (e *encoder) byte(b byte)  { e.buf = append(e.buf, b) }
func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }
func (e *encoder) id(id ObjectID) {
	e.buf = append(e.buf, id[:]...)
}
func (e *encoder) str(s string) { e.buf = appendString(e.buf, s) }

func (e *encoder) bool(b bool) {
	if b {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) bounds(b *orb.Bound) {
	if b == nil {
		e.byte(0)
		return
	}
	e.byte(1)
	for _, f := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		e.u64(math.Float64bits(f))
	}
}

func (e *encoder) nodes(nodes []Node) {
	e.u32(uint32(len(nodes)))
	for _, n := range nodes {
		e.str(n.Name)
		e.byte(byte(n.Kind))
		e.id(n.ObjectID)
		e.id(n.MetadataID)
		e.bounds(n.Bounds)
	}
}

func (e *encoder) person(p Person) {
	e.str(p.Name)
	e.str(p.Email)
	e.u64(uint64(p.Timestamp))
	e.u32(uint32(int32(p.TZOffset)))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// decoder reads primitives until the first error, after which every read
// returns zero values and finish reports the error.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.off < n {
		d.err = fmt.Errorf("%w: %w at offset %d", ErrInvalid, errShortBuffer, d.off)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) byte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) bool() bool {
	switch b := d.byte(); b {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: bad bool byte %d", ErrInvalid, b)
		}
		return false
	}
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// count reads a list length and rejects lengths that cannot fit in the
// remaining input given a minimum element size.
func (d *decoder) count(minElem int) int {
	n := int(d.u32())
	if d.err == nil && n*minElem > len(d.data)-d.off {
		d.err = fmt.Errorf("%w: list length %d exceeds input", ErrInvalid, n)
		return 0
	}
	return n
}

func (d *decoder) id() ObjectID {
	var id ObjectID
	copy(id[:], d.take(IDSize))
	return id
}

func (d *decoder) str() string {
	n := int(d.u32())
	return string(d.take(n))
}

func (d *decoder) bounds() *orb.Bound {
	if !d.bool() {
		return nil
	}
	var f [4]float64
	for i := range f {
		f[i] = math.Float64frombits(d.u64())
	}
	return &orb.Bound{Min: orb.Point{f[0], f[1]}, Max: orb.Point{f[2], f[3]}}
}

func (d *decoder) nodes() []Node {
	n := d.count(4 + 1 + 2*IDSize + 1)
	if n == 0 {
		return nil
	}
	out := make([]Node, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, Node{
			Name:       d.str(),
			Kind:       NodeKind(d.byte()),
			ObjectID:   d.id(),
			MetadataID: d.id(),
			Bounds:     d.bounds(),
		})
	}
	return out
}

func (d *decoder) person() Person {
	return Person{
		Name:      d.str(),
		Email:     d.str(),
		Timestamp: int64(d.u64()),
		TZOffset:  int(int32(d.u32())),
	}
}

func (d *decoder) value() any {
	switch tag := d.byte(); tag {
	case valNil:
		return nil
	case valBool:
		return d.bool()
	case valInt:
		return int64(d.u64())
	case valFloat:
		return math.Float64frombits(d.u64())
	case valString:
		return d.str()
	case valBytes:
		n := int(d.u32())
		b := d.take(n)
		if b == nil {
			return nil
		}
		return append([]byte{}, b...)
	case valTime:
		return time.Unix(0, int64(d.u64())).UTC()
	case valGeometry:
		n := int(d.u32())
		b := d.take(n)
		if d.err != nil {
			return nil
		}
		g, err := wkb.Unmarshal(b)
		if err != nil {
			d.err = fmt.Errorf("%w: geometry: %v", ErrInvalid, err)
			return nil
		}
		return g
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: unknown value tag %d", ErrInvalid, tag)
		}
		return nil
	}
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalid, len(d.data)-d.off)
	}
	return nil
}
