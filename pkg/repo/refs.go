package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/geograft/pkg/object"
)

// Well-known refs. WORK_HEAD and STAGE_HEAD hold tree ids: the working tree
// and the staging area are trees in the object store.
const (
	HeadRef      = "HEAD"
	OrigHeadRef  = "ORIG_HEAD"
	MergeHeadRef = "MERGE_HEAD"
	WorkHeadRef  = "WORK_HEAD"
	StageHeadRef = "STAGE_HEAD"

	headsPrefix = "refs/heads/"
	tagsPrefix  = "refs/tags/"
)

var (
	ErrRefNotFound                     = errors.New("ref not found")
	ErrRefCASMismatch                  = errors.New("ref compare-and-swap mismatch")
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref   string
	OldID object.ObjectID
	NewID object.ObjectID
	Err   error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v",
		e.Ref, ErrRefUpdatedButReflogAppendFailed, e.OldID.Short(), e.NewID.Short(), e.Err)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

func validateRefName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty ref name", object.ErrInvalid)
	case strings.HasPrefix(name, "/"), strings.HasSuffix(name, "/"),
		strings.Contains(name, ".."), strings.Contains(name, "//"),
		strings.HasSuffix(name, ".lock"),
		strings.ContainsAny(name, " \t\n\r~^:?*[\\"):
		return fmt.Errorf("%w: invalid ref name %q", object.ErrInvalid, name)
	}
	return nil
}

func (r *Repo) refPath(name string) string {
	return filepath.Join(r.Dir, filepath.FromSlash(name))
}

// Head reads .geograft/HEAD. A symbolic HEAD returns the target ref name
// (e.g. "refs/heads/main"); a detached HEAD returns the commit id in hex.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(r.refPath(HeadRef))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if target, ok := strings.CutPrefix(content, "ref: "); ok {
		return target, nil
	}
	return content, nil
}

// SetHead points HEAD at a branch.
func (r *Repo) SetHead(branch string) error {
	if err := validateRefName(branch); err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	return writeFileAtomic(r.refPath(HeadRef), []byte("ref: "+headsPrefix+branch+"\n"))
}

// DetachHead points HEAD directly at a commit.
func (r *Repo) DetachHead(id object.ObjectID) error {
	return writeFileAtomic(r.refPath(HeadRef), []byte(id.String()+"\n"))
}

// LookupRef resolves a ref to an id, reporting false when it does not exist.
//
// Resolution order:
//  1. "HEAD" follows the symbolic ref, if any.
//  2. Names starting with "refs/" and the upper-case pseudo refs
//     (ORIG_HEAD, WORK_HEAD, ...) are read directly.
//  3. Anything else is tried as refs/heads/<name>, then refs/tags/<name>.
func (r *Repo) LookupRef(name string) (object.ObjectID, bool, error) {
	if name == HeadRef {
		head, err := r.Head()
		if err != nil {
			return object.NullID, false, err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.LookupRef(head)
		}
		id, err := object.ParseID(head)
		if err != nil {
			return object.NullID, false, fmt.Errorf("head: %w", err)
		}
		return id, true, nil
	}
	if err := validateRefName(name); err != nil {
		return object.NullID, false, err
	}

	candidates := []string{name}
	if !strings.HasPrefix(name, "refs/") && !isPseudoRef(name) {
		candidates = []string{headsPrefix + name, tagsPrefix + name}
	}
	for _, c := range candidates {
		id, ok, err := readRefID(r.refPath(c))
		if err != nil {
			return object.NullID, false, fmt.Errorf("resolve ref %q: %w", name, err)
		}
		if ok {
			return id, true, nil
		}
	}
	return object.NullID, false, nil
}

// ResolveRef is LookupRef with a missing ref reported as ErrRefNotFound.
func (r *Repo) ResolveRef(name string) (object.ObjectID, error) {
	id, ok, err := r.LookupRef(name)
	if err != nil {
		return object.NullID, err
	}
	if !ok {
		return object.NullID, fmt.Errorf("resolve ref %q: %w", name, ErrRefNotFound)
	}
	return id, nil
}

func isPseudoRef(name string) bool {
	return name != "" && strings.ToUpper(name) == name && strings.HasSuffix(name, "_HEAD")
}

// UpdateRef writes id to the named ref file under .geograft/.
func (r *Repo) UpdateRef(name string, id object.ObjectID, reason string) error {
	return r.UpdateRefCAS(name, id, reason)
}

// UpdateRefCAS writes id to the named ref file using lockfile + rename
// atomic semantics. If expectedOld is provided, the update only succeeds
// when the current ref value matches it; NullID expects the ref to be
// absent.
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, id object.ObjectID, reason string, expectedOld ...object.ObjectID) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old id", name)
	}
	if err := validateRefName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	if id.IsNull() {
		return fmt.Errorf("update ref %q: %w: null id", name, object.ErrInvalid)
	}

	refPath := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldID, _, err := readRefID(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old id: %w", name, err)
	}
	if len(expectedOld) == 1 && oldID != expectedOld[0] {
		return fmt.Errorf("update ref %q: %w (expected %s, found %s)",
			name, ErrRefCASMismatch, expectedOld[0].Short(), oldID.Short())
	}

	if _, err := lockFile.WriteString(id.String() + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldID, id, reason); err != nil {
		return &RefUpdateReflogError{Ref: name, OldID: oldID, NewID: id, Err: err}
	}
	return nil
}

// DeleteRef removes a ref. Deleting a missing ref is not an error.
func (r *Repo) DeleteRef(name string, reason string) error {
	if err := validateRefName(name); err != nil {
		return fmt.Errorf("delete ref: %w", err)
	}
	refPath := r.refPath(name)
	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete ref %q: lock: %w", name, err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	oldID, ok, err := readRefID(refPath)
	if err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	if !ok {
		return nil
	}
	if err := os.Remove(refPath); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	if err := r.appendReflog(name, oldID, object.NullID, reason); err != nil {
		return &RefUpdateReflogError{Ref: name, OldID: oldID, Err: err}
	}
	return nil
}

// ListRefs lists references under .geograft/refs. Names are returned
// relative to the refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.ObjectID, error) {
	root := filepath.Join(r.Dir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.ObjectID)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id, ok, err := readRefID(path)
		if err != nil {
			return err
		}
		if ok {
			refs[filepath.ToSlash(rel)] = id
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefID(refPath string) (object.ObjectID, bool, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return object.NullID, false, nil
		}
		return object.NullID, false, err
	}
	id, err := object.ParseID(strings.TrimSpace(string(data)))
	if err != nil {
		return object.NullID, false, fmt.Errorf("ref %s: %w", filepath.Base(refPath), err)
	}
	return id, true, nil
}
