package repo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// ResolveCommit turns a revision into a commit id. A revision is a ref name
// (HEAD, a branch, a tag, ORIG_HEAD, ...) or a full hex id, optionally
// followed by ~N to walk N first parents back. Annotated tags are peeled.
func (r *Repo) ResolveCommit(rev string) (object.ObjectID, error) {
	base, back := rev, 0
	if i := strings.IndexByte(rev, '~'); i >= 0 {
		base = rev[:i]
		n := rev[i+1:]
		if n == "" {
			back = 1
		} else {
			v, err := strconv.Atoi(n)
			if err != nil || v < 0 {
				return object.NullID, fmt.Errorf("resolve %q: %w: bad ancestor count", rev, object.ErrInvalid)
			}
			back = v
		}
	}

	id, err := r.resolveBase(base)
	if err != nil {
		return object.NullID, err
	}
	id, err = r.peel(id)
	if err != nil {
		return object.NullID, fmt.Errorf("resolve %q: %w", rev, err)
	}
	for range back {
		c, err := object.ReadCommit(r.Store, id)
		if err != nil {
			return object.NullID, fmt.Errorf("resolve %q: %w", rev, err)
		}
		id = c.FirstParent()
		if id.IsNull() {
			return object.NullID, fmt.Errorf("resolve %q: %w: history too short", rev, ErrRefNotFound)
		}
	}
	return id, nil
}

func (r *Repo) resolveBase(name string) (object.ObjectID, error) {
	if name == "" {
		name = HeadRef
	}
	id, ok, err := r.LookupRef(name)
	if err == nil && ok {
		return id, nil
	}
	if parsed, perr := object.ParseID(name); perr == nil && r.Store.Has(parsed) {
		return parsed, nil
	}
	if err != nil {
		return object.NullID, err
	}
	return object.NullID, fmt.Errorf("resolve %q: %w", name, ErrRefNotFound)
}

// peel follows annotated tags to the commit they name.
func (r *Repo) peel(id object.ObjectID) (object.ObjectID, error) {
	obj, err := r.Store.Get(id)
	if err != nil {
		return object.NullID, err
	}
	switch o := obj.(type) {
	case object.RevCommit:
		return id, nil
	case object.RevTag:
		return o.CommitID(), nil
	default:
		return object.NullID, fmt.Errorf("%w: %s is a %s, not a commit", object.ErrInvalid, id.Short(), obj.Type())
	}
}
