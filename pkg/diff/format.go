package diff

import (
	"fmt"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

var changeMarkers = map[ChangeType]string{
	Added:    "A",
	Removed:  "D",
	Modified: "M",
}

// FormatEntry renders a tree change as "M\tpath\told -> new".
func FormatEntry(e Entry) string {
	return fmt.Sprintf("%s\t%s\t%s -> %s", changeMarkers[e.Type()], e.Path(), e.OldID().Short(), e.NewID().Short())
}

// FormatFeatureDiff renders one line per changed attribute.
//
//	name: "A" -> "B"
//	geom: LINESTRING(0 0,1 1) -> <nil>
func FormatFeatureDiff(fd FeatureDiff) string {
	var b strings.Builder
	for _, a := range fd.diffs {
		fmt.Fprintf(&b, "  %s %s: %s -> %s\n", changeMarkers[a.Type()], a.Descriptor.Name, quote(a.Old), quote(a.New))
	}
	return b.String()
}

func quote(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return object.FormatValue(v)
}
