package object

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// ObjectType identifies the kind of object stored. The numeric value is
// the leading byte of every canonical encoding.
type ObjectType uint8

const (
	TypeCommit      ObjectType = 1
	TypeTree        ObjectType = 2
	TypeFeature     ObjectType = 3
	TypeFeatureType ObjectType = 4
	TypeTag         ObjectType = 5
)

func (t ObjectType) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeFeature:
		return "feature"
	case TypeFeatureType:
		return "featuretype"
	case TypeTag:
		return "tag"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// RevObject is any immutable, content-addressed revision object.
type RevObject interface {
	ID() ObjectID
	Type() ObjectType
}

// NodeKind says whether a tree entry points at a subtree or a feature.
type NodeKind uint8

const (
	KindTree    NodeKind = 1
	KindFeature NodeKind = 2
)

func (k NodeKind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindFeature:
		return "feature"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Node is one entry inside a parent tree.
type Node struct {
	Name       string
	Kind       NodeKind
	ObjectID   ObjectID
	MetadataID ObjectID   // NullID when inherited from the enclosing tree
	Bounds     *orb.Bound // nil when the node carries no envelope
}

// NewNode validates and builds a tree entry.
func NewNode(name string, kind NodeKind, id, metadataID ObjectID, bounds *orb.Bound) (Node, error) {
	if err := checkNodeName(name); err != nil {
		return Node{}, err
	}
	if kind != KindTree && kind != KindFeature {
		return Node{}, fmt.Errorf("%w: node %q: unknown kind %d", ErrInvalid, name, kind)
	}
	if id.IsNull() {
		return Node{}, fmt.Errorf("%w: node %q: null object id", ErrInvalid, name)
	}
	return Node{
		Name:       name,
		Kind:       kind,
		ObjectID:   id,
		MetadataID: metadataID,
		Bounds:     copyBound(bounds),
	}, nil
}

// RootNode builds the unnamed node standing for a root tree.
func RootNode(treeID ObjectID) Node {
	return Node{Kind: KindTree, ObjectID: treeID}
}

func checkNodeName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty node name", ErrInvalid)
	}
	if strings.ContainsRune(name, PathSeparator) {
		return fmt.Errorf("%w: node name %q contains a path separator", ErrInvalid, name)
	}
	return nil
}

// Update returns a copy of n pointing at a new object and envelope.
func (n Node) Update(id ObjectID, bounds *orb.Bound) Node {
	n.ObjectID = id
	n.Bounds = copyBound(bounds)
	return n
}

// Equal reports whether two nodes are identical, envelope included.
func (n Node) Equal(o Node) bool {
	if n.Name != o.Name || n.Kind != o.Kind || n.ObjectID != o.ObjectID || n.MetadataID != o.MetadataID {
		return false
	}
	return boundsEqual(n.Bounds, o.Bounds)
}

// Compare orders nodes by name, then kind, object id and metadata id.
func (n Node) Compare(o Node) int {
	if c := strings.Compare(n.Name, o.Name); c != 0 {
		return c
	}
	if n.Kind != o.Kind {
		if n.Kind < o.Kind {
			return -1
		}
		return 1
	}
	if c := n.ObjectID.Compare(o.ObjectID); c != 0 {
		return c
	}
	return n.MetadataID.Compare(o.MetadataID)
}

// Intersects reports whether the node envelope intersects b. Nodes without
// an envelope never intersect.
func (n Node) Intersects(b orb.Bound) bool {
	return n.Bounds != nil && n.Bounds.Intersects(b)
}

func (n Node) String() string {
	return fmt.Sprintf("%s[%s -> %s]", n.Kind, n.Name, n.ObjectID.Short())
}

// NodeRef is a Node together with the path of the tree that contains it.
type NodeRef struct {
	Node              Node
	ParentPath        string
	DefaultMetadataID ObjectID // metadata inherited from the enclosing tree
}

// NewNodeRef validates the parent path and wraps node.
func NewNodeRef(parentPath string, node Node, defaultMetadataID ObjectID) (NodeRef, error) {
	if node.Name == RootPath && parentPath != RootPath {
		return NodeRef{}, fmt.Errorf("%w: only the root node may have an empty name", ErrInvalid)
	}
	if parentPath != RootPath {
		if err := CheckValidPath(parentPath); err != nil {
			return NodeRef{}, err
		}
	}
	return NodeRef{Node: node, ParentPath: parentPath, DefaultMetadataID: defaultMetadataID}, nil
}

// RootRef wraps the root tree of a commit.
func RootRef(treeID ObjectID) NodeRef {
	return NodeRef{Node: RootNode(treeID)}
}

// TreeRef builds a reference to the tree stored at treePath.
func TreeRef(treePath string, id, metadataID ObjectID) (NodeRef, error) {
	if err := CheckValidPath(treePath); err != nil {
		return NodeRef{}, err
	}
	node, err := NewNode(NodeFromPath(treePath), KindTree, id, metadataID, nil)
	if err != nil {
		return NodeRef{}, err
	}
	return NodeRef{Node: node, ParentPath: ParentPath(treePath)}, nil
}

// Path is the full path of the referenced node; the root path is "".
func (r NodeRef) Path() string { return AppendChild(r.ParentPath, r.Node.Name) }

func (r NodeRef) Name() string         { return r.Node.Name }
func (r NodeRef) ObjectID() ObjectID   { return r.Node.ObjectID }
func (r NodeRef) Kind() NodeKind       { return r.Node.Kind }
func (r NodeRef) Bounds() *orb.Bound   { return r.Node.Bounds }
func (r NodeRef) IsRoot() bool         { return r.Node.Name == RootPath && r.ParentPath == RootPath }
func (r NodeRef) IsNull() bool         { return r.Node.ObjectID.IsNull() }
func (r NodeRef) IsFeature() bool      { return r.Node.Kind == KindFeature }
func (r NodeRef) IsTree() bool         { return r.Node.Kind == KindTree }

// MetadataID is the node's own metadata id, or the inherited default.
func (r NodeRef) MetadataID() ObjectID {
	if !r.Node.MetadataID.IsNull() {
		return r.Node.MetadataID
	}
	return r.DefaultMetadataID
}

// Update returns a copy pointing at a new object and envelope.
func (r NodeRef) Update(id ObjectID, bounds *orb.Bound) NodeRef {
	r.Node = r.Node.Update(id, bounds)
	return r
}

// Equal compares parent path, node and effective metadata id.
func (r NodeRef) Equal(o NodeRef) bool {
	return r.ParentPath == o.ParentPath && r.Node.Equal(o.Node) && r.MetadataID() == o.MetadataID()
}

// Compare orders references lexicographically by path, tie-broken by the
// node ordering.
func (r NodeRef) Compare(o NodeRef) int {
	if c := strings.Compare(r.Path(), o.Path()); c != 0 {
		return c
	}
	return r.Node.Compare(o.Node)
}

func (r NodeRef) String() string {
	return fmt.Sprintf("NodeRef[%s -> %s]", r.Path(), r.Node.ObjectID)
}

// Conflict is an unresolved three-way divergence at a path. Any of the
// three ids may be NullID to denote an add or a delete.
type Conflict struct {
	Path     string   `json:"path"`
	Ancestor ObjectID `json:"ancestor"`
	Ours     ObjectID `json:"ours"`
	Theirs   ObjectID `json:"theirs"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", c.Path, c.Ancestor, c.Ours, c.Theirs)
}

func copyBound(b *orb.Bound) *orb.Bound {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func boundsEqual(a, b *orb.Bound) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// UnionBounds expands acc with b, treating nil as empty.
func UnionBounds(acc, b *orb.Bound) *orb.Bound {
	if b == nil {
		return acc
	}
	if acc == nil {
		return copyBound(b)
	}
	u := acc.Union(*b)
	return &u
}
