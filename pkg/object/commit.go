package object

import (
	"fmt"
	"strings"
	"time"
)

// Person identifies an author, committer or tagger at a point in time.
type Person struct {
	Name      string
	Email     string
	Timestamp int64 // unix seconds
	TZOffset  int   // minutes east of UTC
}

// Time returns the timestamp in the person's own zone.
func (p Person) Time() time.Time {
	return time.Unix(p.Timestamp, 0).In(time.FixedZone("", p.TZOffset*60))
}

// Zone formats the offset as +hhmm.
func (p Person) Zone() string {
	off := p.TZOffset
	sign := '+'
	if off < 0 {
		sign = '-'
		off = -off
	}
	return fmt.Sprintf("%c%02d%02d", sign, off/60, off%60)
}

func (p Person) String() string {
	return fmt.Sprintf("%s <%s> %d %s", p.Name, p.Email, p.Timestamp, p.Zone())
}

// RevCommit is an immutable snapshot pointer with its history.
type RevCommit struct {
	id        ObjectID
	treeID    ObjectID
	parents   []ObjectID
	author    Person
	committer Person
	message   string
}

// NewCommit validates and builds a commit. Parent ids must be non-null and
// distinct; the author name is mandatory.
func NewCommit(treeID ObjectID, parents []ObjectID, author, committer Person, message string) (RevCommit, error) {
	if treeID.IsNull() {
		return RevCommit{}, fmt.Errorf("%w: commit without tree", ErrInvalid)
	}
	seen := make(map[ObjectID]bool, len(parents))
	for _, p := range parents {
		if p.IsNull() {
			return RevCommit{}, fmt.Errorf("%w: commit has a null parent", ErrInvalid)
		}
		if seen[p] {
			return RevCommit{}, fmt.Errorf("%w: commit lists parent %s twice", ErrInvalid, p.Short())
		}
		seen[p] = true
	}
	if strings.TrimSpace(author.Name) == "" {
		return RevCommit{}, fmt.Errorf("%w: commit author name is empty", ErrInvalid)
	}
	if committer.Name == "" {
		committer = author
	}
	c := RevCommit{
		treeID:    treeID,
		parents:   append([]ObjectID(nil), parents...),
		author:    author,
		committer: committer,
		message:   message,
	}
	c.id = HashObject(TypeCommit, MarshalCommit(c))
	return c, nil
}

func (c RevCommit) ID() ObjectID        { return c.id }
func (c RevCommit) Type() ObjectType    { return TypeCommit }
func (c RevCommit) TreeID() ObjectID    { return c.treeID }
func (c RevCommit) Author() Person      { return c.author }
func (c RevCommit) Committer() Person   { return c.committer }
func (c RevCommit) Message() string     { return c.message }
func (c RevCommit) Parents() []ObjectID { return append([]ObjectID(nil), c.parents...) }
func (c RevCommit) NumParents() int     { return len(c.parents) }

// ParentN returns the n-th parent, or false if there is none.
func (c RevCommit) ParentN(n int) (ObjectID, bool) {
	if n < 0 || n >= len(c.parents) {
		return NullID, false
	}
	return c.parents[n], true
}

// FirstParent returns the first parent, or NullID for a root commit.
func (c RevCommit) FirstParent() ObjectID {
	id, _ := c.ParentN(0)
	return id
}

// Subject is the first line of the message.
func (c RevCommit) Subject() string {
	s, _, _ := strings.Cut(c.message, "\n")
	return s
}

// RevTag is an annotated tag pointing at a commit.
type RevTag struct {
	id       ObjectID
	name     string
	commitID ObjectID
	message  string
	tagger   Person
}

// NewTag validates and builds an annotated tag.
func NewTag(name string, commitID ObjectID, message string, tagger Person) (RevTag, error) {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return RevTag{}, fmt.Errorf("%w: bad tag name %q", ErrInvalid, name)
	}
	if commitID.IsNull() {
		return RevTag{}, fmt.Errorf("%w: tag %q has no commit", ErrInvalid, name)
	}
	t := RevTag{name: name, commitID: commitID, message: message, tagger: tagger}
	t.id = HashObject(TypeTag, MarshalTag(t))
	return t, nil
}

func (t RevTag) ID() ObjectID       { return t.id }
func (t RevTag) Type() ObjectType   { return TypeTag }
func (t RevTag) Name() string       { return t.name }
func (t RevTag) CommitID() ObjectID { return t.commitID }
func (t RevTag) Message() string    { return t.message }
func (t RevTag) Tagger() Person     { return t.tagger }
