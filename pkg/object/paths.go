package object

import (
	"fmt"
	"strings"
)

const (
	// PathSeparator delimits segments of a node path.
	PathSeparator = '/'
	// RootPath is the path of the root tree.
	RootPath = ""
)

const sep = string(PathSeparator)

// CheckValidPath rejects empty paths, empty segments and trailing separators.
func CheckValidPath(p string) error {
	if p == RootPath {
		return fmt.Errorf("%w: empty path", ErrInvalid)
	}
	if strings.HasSuffix(p, sep) {
		return fmt.Errorf("%w: path %q has a trailing separator", ErrInvalid, p)
	}
	if strings.HasPrefix(p, sep) {
		return fmt.Errorf("%w: path %q has a leading separator", ErrInvalid, p)
	}
	if strings.Contains(p, sep+sep) {
		return fmt.Errorf("%w: path %q has an empty segment", ErrInvalid, p)
	}
	return nil
}

// ParentPath returns the path of the tree containing p. The parent of a
// single segment path is the root path.
func ParentPath(p string) string {
	i := strings.LastIndexByte(p, PathSeparator)
	if i < 0 {
		return RootPath
	}
	return p[:i]
}

// NodeFromPath returns the last segment of p.
func NodeFromPath(p string) string {
	i := strings.LastIndexByte(p, PathSeparator)
	if i < 0 {
		return p
	}
	return p[i+1:]
}

// AppendChild joins a parent path and a child name.
func AppendChild(parent, child string) string {
	if parent == RootPath {
		return child
	}
	if child == RootPath {
		return parent
	}
	return parent + sep + child
}

// Split returns the segments of p; the root path has none.
func Split(p string) []string {
	if p == RootPath {
		return nil
	}
	return strings.Split(p, sep)
}

// Depth is the number of segments in p.
func Depth(p string) int {
	if p == RootPath {
		return 0
	}
	return strings.Count(p, sep) + 1
}

// IsChild reports whether child lies anywhere below parent. Every non-root
// path is a child of the root path.
func IsChild(parent, child string) bool {
	if parent == RootPath {
		return child != RootPath
	}
	return len(child) > len(parent)+1 &&
		strings.HasPrefix(child, parent) &&
		child[len(parent)] == PathSeparator
}

// IsDirectChild reports whether child is exactly one level below parent.
func IsDirectChild(parent, child string) bool {
	return IsChild(parent, child) && ParentPath(child) == parent
}

// AllPathsTo returns every ancestor of p from the root-most segment down to
// p itself, inclusive.
func AllPathsTo(p string) []string {
	segs := Split(p)
	paths := make([]string, 0, len(segs))
	cur := RootPath
	for _, s := range segs {
		cur = AppendChild(cur, s)
		paths = append(paths, cur)
	}
	return paths
}

// RemoveParent strips the ancestor prefix parent from child. It fails when
// parent is not an ancestor of child.
func RemoveParent(parent, child string) (string, error) {
	if !IsChild(parent, child) {
		return "", fmt.Errorf("%w: %q is not a child of %q", ErrInvalid, child, parent)
	}
	if parent == RootPath {
		return child, nil
	}
	return child[len(parent)+1:], nil
}

// IsSameOrChild reports whether p equals prefix or lies below it.
func IsSameOrChild(prefix, p string) bool {
	return p == prefix || IsChild(prefix, p)
}
