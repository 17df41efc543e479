package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// TagOptions control CreateTag.
type TagOptions struct {
	// Message makes the tag annotated: a tag object carrying the message
	// and the configured tagger is stored and the ref points at it.
	Message string
	// Force replaces an existing tag of the same name.
	Force bool
}

// CreateTag points refs/tags/<name> at target, or at an annotated tag
// object when opts.Message is set. It returns the id the ref now holds.
func (r *Repo) CreateTag(name string, target object.ObjectID, opts TagOptions) (object.ObjectID, error) {
	if err := r.guard(OpTag); err != nil {
		return object.NullID, err
	}
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return object.NullID, fmt.Errorf("create tag: %w", err)
	}
	if _, err := object.ReadCommit(r.Store, target); err != nil {
		return object.NullID, fmt.Errorf("create tag: target %s: %w", target.Short(), err)
	}

	refName := tagsPrefix + name
	if !opts.Force {
		if _, ok, err := r.LookupRef(refName); err != nil {
			return object.NullID, fmt.Errorf("create tag: %w", err)
		} else if ok {
			return object.NullID, fmt.Errorf("create tag: tag %q already exists", name)
		}
	}

	id := target
	if msg := strings.TrimSpace(opts.Message); msg != "" {
		tagger, err := r.Config.Person(r.now())
		if err != nil {
			return object.NullID, fmt.Errorf("create tag: %w", err)
		}
		t, err := object.NewTag(name, target, msg, tagger)
		if err != nil {
			return object.NullID, fmt.Errorf("create tag: %w", err)
		}
		if _, err := r.Store.Put(t); err != nil {
			return object.NullID, fmt.Errorf("create tag: write tag object: %w", err)
		}
		id = t.ID()
	}
	if err := r.UpdateRef(refName, id, "tag: "+name); err != nil {
		return object.NullID, fmt.Errorf("create tag: %w", err)
	}
	return id, nil
}

// DeleteTag removes refs/tags/<name>.
func (r *Repo) DeleteTag(name string) error {
	if err := r.guard(OpTag); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	refName := tagsPrefix + name
	if _, ok, err := r.LookupRef(refName); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	} else if !ok {
		return fmt.Errorf("delete tag: tag %q does not exist", name)
	}
	if err := r.DeleteRef(refName, "tag: deleted"); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ResolveTag returns the commit a tag names, peeling annotated tags.
func (r *Repo) ResolveTag(name string) (object.ObjectID, error) {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return object.NullID, fmt.Errorf("resolve tag: %w", err)
	}
	id, err := r.ResolveRef(tagsPrefix + name)
	if err != nil {
		return object.NullID, err
	}
	return r.peel(id)
}

// ListTags lists tag names sorted alphabetically.
func (r *Repo) ListTags() ([]string, error) {
	refs, err := r.ListRefs("tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	names := make([]string, 0, len(refs))
	for full := range refs {
		names = append(names, strings.TrimPrefix(full, "tags/"))
	}
	sort.Strings(names)
	return names, nil
}

func validateTagName(name string) error {
	if name == "" {
		return fmt.Errorf("tag name is required")
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("invalid tag name %q", name)
	}
	return validateRefName(tagsPrefix + name)
}
