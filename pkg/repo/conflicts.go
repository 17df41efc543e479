package repo

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

type conflictsFile struct {
	Conflicts []object.Conflict `json:"conflicts"`
}

func (r *Repo) loadConflicts() ([]object.Conflict, error) {
	data, ok, err := r.Blobs.Get(conflictsBlob)
	if err != nil || !ok {
		return nil, err
	}
	var f conflictsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("read conflicts: %w", err)
	}
	return f.Conflicts, nil
}

func (r *Repo) storeConflicts(cs []object.Conflict) error {
	if len(cs) == 0 {
		return r.Blobs.Delete(conflictsBlob)
	}
	slices.SortFunc(cs, func(a, b object.Conflict) int { return strings.Compare(a.Path, b.Path) })
	data, err := json.MarshalIndent(conflictsFile{Conflicts: cs}, "", "  ")
	if err != nil {
		return fmt.Errorf("write conflicts: %w", err)
	}
	return r.Blobs.Put(conflictsBlob, data)
}

// Conflicts returns the recorded conflicts at or below prefix, sorted by
// path. An empty prefix returns all of them.
func (r *Repo) Conflicts(prefix string) ([]object.Conflict, error) {
	all, err := r.loadConflicts()
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return all, nil
	}
	out := all[:0]
	for _, c := range all {
		if object.IsSameOrChild(prefix, c.Path) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Conflict returns the conflict recorded at path.
func (r *Repo) Conflict(path string) (object.Conflict, bool, error) {
	all, err := r.loadConflicts()
	if err != nil {
		return object.Conflict{}, false, err
	}
	for _, c := range all {
		if c.Path == path {
			return c, true, nil
		}
	}
	return object.Conflict{}, false, nil
}

// HasConflicts reports whether any conflict is recorded.
func (r *Repo) HasConflicts() (bool, error) {
	all, err := r.loadConflicts()
	return len(all) > 0, err
}

// addConflicts records cs, replacing conflicts already recorded at the same
// paths.
func (r *Repo) addConflicts(cs []object.Conflict) error {
	all, err := r.loadConflicts()
	if err != nil {
		return err
	}
	byPath := make(map[string]object.Conflict, len(all)+len(cs))
	for _, c := range all {
		byPath[c.Path] = c
	}
	for _, c := range cs {
		byPath[c.Path] = c
	}
	merged := make([]object.Conflict, 0, len(byPath))
	for _, c := range byPath {
		merged = append(merged, c)
	}
	return r.storeConflicts(merged)
}

// removeConflicts drops conflicts at or below any of the given paths and
// returns how many were removed. The root path matches everything.
func (r *Repo) removeConflicts(paths ...string) (int, error) {
	all, err := r.loadConflicts()
	if err != nil || len(all) == 0 {
		return 0, err
	}
	kept := all[:0]
	for _, c := range all {
		if !slices.ContainsFunc(paths, func(p string) bool { return object.IsSameOrChild(p, c.Path) }) {
			kept = append(kept, c)
		}
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, r.storeConflicts(kept)
}

func (r *Repo) clearConflicts() error {
	return r.Blobs.Delete(conflictsBlob)
}
