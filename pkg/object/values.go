package object

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// FieldType is the declared type of a feature attribute.
type FieldType uint8

const (
	FieldBool FieldType = iota + 1
	FieldInt
	FieldFloat
	FieldString
	FieldBytes
	FieldTime
	FieldGeometry
)

var fieldTypeNames = map[FieldType]string{
	FieldBool:     "bool",
	FieldInt:      "int",
	FieldFloat:    "float",
	FieldString:   "string",
	FieldBytes:    "bytes",
	FieldTime:     "time",
	FieldGeometry: "geometry",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("field(%d)", uint8(t))
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

// ParseFieldType maps a type name back to its FieldType.
func ParseFieldType(s string) (FieldType, error) {
	for t, name := range fieldTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field type %q", ErrInvalid, s)
}

// NormalizeValue converts v into one of the canonical value representations
// held by features: nil, bool, int64, float64, string, []byte, time.Time
// (UTC) or an orb.Geometry. Rings and bounds become polygons so that every
// geometry has a WKB form. The result never aliases v.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", ErrInvalid, x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: integer %d overflows int64", ErrInvalid, x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return x, nil
	case []byte:
		return bytes.Clone(x), nil
	case time.Time:
		return time.Unix(0, x.UnixNano()).UTC(), nil
	case orb.Geometry:
		return normalizeGeometry(x)
	default:
		return nil, fmt.Errorf("%w: unsupported attribute value type %T", ErrInvalid, v)
	}
}

func normalizeGeometry(g orb.Geometry) (orb.Geometry, error) {
	switch x := g.(type) {
	case orb.Ring:
		return orb.Polygon{orb.Clone(x).(orb.Ring)}, nil
	case orb.Bound:
		return x.ToPolygon(), nil
	case orb.Collection:
		out := make(orb.Collection, len(x))
		for i, member := range x {
			n, err := normalizeGeometry(member)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
		return orb.Clone(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %T", ErrInvalid, g)
	}
}

// FieldTypeOf returns the field type of a normalized value. Nil values
// report ok=false.
func FieldTypeOf(v any) (FieldType, bool) {
	switch v.(type) {
	case bool:
		return FieldBool, true
	case int64:
		return FieldInt, true
	case float64:
		return FieldFloat, true
	case string:
		return FieldString, true
	case []byte:
		return FieldBytes, true
	case time.Time:
		return FieldTime, true
	case orb.Geometry:
		return FieldGeometry, true
	default:
		return 0, false
	}
}

// ValueEqual compares two normalized values by their canonical encoding.
// Geometries are therefore equal exactly when their WKB forms match, which
// is the same rule feature hashing relies on.
func ValueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ea, err := appendValue(nil, a)
	if err != nil {
		return false
	}
	eb, err := appendValue(nil, b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// FormatValue renders a value for human consumption. Geometries render as
// WKT.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case []byte:
		return fmt.Sprintf("%x", x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case orb.Geometry:
		return formatWKT(x)
	default:
		return fmt.Sprint(x)
	}
}

// valueBounds returns the envelope of a geometry value, or nil for anything
// else and for empty geometries.
func valueBounds(v any) *orb.Bound {
	g, ok := v.(orb.Geometry)
	if !ok || g == nil || isEmptyGeometry(g) {
		return nil
	}
	b := g.Bound()
	return &b
}

func isEmptyGeometry(g orb.Geometry) bool {
	switch x := g.(type) {
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(x) == 0
	case orb.LineString:
		return len(x) == 0
	case orb.MultiLineString:
		for _, ls := range x {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Polygon:
		return len(x) == 0 || len(x[0]) == 0
	case orb.MultiPolygon:
		for _, p := range x {
			if !isEmptyGeometry(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, m := range x {
			if !isEmptyGeometry(m) {
				return false
			}
		}
		return true
	}
	return true
}

// ParseValue parses the textual form of a value of type t: WKT for
// geometries, RFC 3339 for times, hex for bytes.
func ParseValue(t FieldType, s string) (any, error) {
	var (
		v   any
		err error
	)
	switch t {
	case FieldBool:
		v, err = strconv.ParseBool(s)
	case FieldInt:
		v, err = strconv.ParseInt(s, 10, 64)
	case FieldFloat:
		v, err = strconv.ParseFloat(s, 64)
	case FieldString:
		v = s
	case FieldBytes:
		v, err = hex.DecodeString(s)
	case FieldTime:
		var tm time.Time
		tm, err = time.Parse(time.RFC3339Nano, s)
		v = tm
	case FieldGeometry:
		v, err = wkt.Unmarshal(s)
	default:
		return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalid, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s value %q: %v", ErrInvalid, t, s, err)
	}
	return NormalizeValue(v)
}
