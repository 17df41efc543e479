package object

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

func formatWKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

func formatBounds(b *orb.Bound) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("%g,%g,%g,%g", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// FormatText renders obj as tab separated lines, led by its id.
func FormatText(obj RevObject) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id\t%s\n", obj.ID())
	fmt.Fprintf(&b, "type\t%s\n", obj.Type())
	switch o := obj.(type) {
	case RevTree:
		fmt.Fprintf(&b, "size\t%d\n", o.Size())
		fmt.Fprintf(&b, "numtrees\t%d\n", o.NumTrees())
		fmt.Fprintf(&b, "bounds\t%s\n", formatBounds(o.Bounds()))
		for _, n := range o.Trees() {
			writeNode(&b, n)
		}
		for _, n := range o.Features() {
			writeNode(&b, n)
		}
		for _, bk := range o.Buckets() {
			fmt.Fprintf(&b, "BUCKET\t%d\t%s\t%s\n", bk.Index, bk.TreeID, formatBounds(bk.Bounds))
		}
	case RevFeature:
		for _, v := range o.values {
			fmt.Fprintf(&b, "%s\t%s\n", valueKind(v), FormatValue(v))
		}
	case RevFeatureType:
		fmt.Fprintf(&b, "name\t%s\n", o.Name())
		for _, d := range o.descriptors {
			fmt.Fprintf(&b, "%s\t%s\t%t\t%s\n", d.Name, d.Type, d.Nillable, d.CRS)
		}
	case RevCommit:
		fmt.Fprintf(&b, "tree\t%s\n", o.TreeID())
		for _, p := range o.parents {
			fmt.Fprintf(&b, "parent\t%s\n", p)
		}
		fmt.Fprintf(&b, "author\t%s\n", o.Author())
		fmt.Fprintf(&b, "committer\t%s\n", o.Committer())
		fmt.Fprintf(&b, "message\t%s\n", o.Message())
	case RevTag:
		fmt.Fprintf(&b, "name\t%s\n", o.Name())
		fmt.Fprintf(&b, "commit\t%s\n", o.CommitID())
		fmt.Fprintf(&b, "tagger\t%s\n", o.Tagger())
		fmt.Fprintf(&b, "message\t%s\n", o.Message())
	}
	return b.String()
}

func writeNode(b *strings.Builder, n Node) {
	fmt.Fprintf(b, "%s\t%s\t%s\t%s\t%s\n",
		strings.ToUpper(n.Kind.String()), n.Name, n.ObjectID, n.MetadataID, formatBounds(n.Bounds))
}

func valueKind(v any) string {
	if t, ok := FieldTypeOf(v); ok {
		return t.String()
	}
	return "nil"
}
