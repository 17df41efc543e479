package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// CreateBranch creates a new branch pointing at target. It fails if the
// branch already exists.
func (r *Repo) CreateBranch(name string, target object.ObjectID) error {
	if err := r.guard(OpBranch); err != nil {
		return err
	}
	if _, err := object.ReadCommit(r.Store, target); err != nil {
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	if err := r.UpdateRefCAS(headsPrefix+name, target, "branch: created from "+target.Short(), object.NullID); err != nil {
		if errors.Is(err, ErrRefCASMismatch) {
			return fmt.Errorf("create branch: branch %q already exists", name)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes a branch. The current branch cannot be deleted.
func (r *Repo) DeleteBranch(name string) error {
	if err := r.guard(OpBranch); err != nil {
		return err
	}
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q", name)
	}
	refName := headsPrefix + name
	if _, ok, err := r.LookupRef(refName); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	} else if !ok {
		return fmt.Errorf("delete branch: branch %q does not exist", name)
	}
	if err := r.DeleteRef(refName, "branch: deleted"); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

// ListBranches returns the branch names sorted alphabetically.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, strings.TrimPrefix(name, "heads/"))
	}
	sort.Strings(names)
	return names, nil
}

// CurrentBranch returns the branch HEAD points at, or "" when detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	branch, ok := strings.CutPrefix(head, headsPrefix)
	if !ok {
		return "", nil
	}
	return branch, nil
}
