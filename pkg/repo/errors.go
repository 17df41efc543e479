package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// ErrIllegalState is matched by every error reporting an operation that is
// not valid in the repository's current state.
var ErrIllegalState = errors.New("illegal state")

type stateError struct {
	msg string
}

func (e *stateError) Error() string { return e.msg }

func (e *stateError) Is(target error) bool { return target == ErrIllegalState }

var (
	ErrCannotContinue      error = &stateError{"cannot continue"}
	ErrCannotSkip          error = &stateError{"cannot skip"}
	ErrCannotAbort         error = &stateError{"cannot abort"}
	ErrNoUpstream          error = &stateError{"no upstream commit set"}
	ErrNothingToRebase     error = &stateError{"no commits to rebase"}
	ErrUncommittedChanges  error = &stateError{"uncommitted local changes"}
	ErrOperationInProgress error = &stateError{"a merge or rebase is in progress"}
	ErrUnresolvedConflicts error = &stateError{"cannot run operation while merge or rebase conflicts exist"}
	ErrNothingToCommit     error = &stateError{"nothing to commit"}
	ErrNoCommits           error = &stateError{"repository has no commits"}
)

// ErrConflicts is matched by *ConflictsError.
var ErrConflicts = errors.New("conflicts exist")

// ConflictsError reports that a merge or rebase paused on conflicts. The
// conflicts are also persisted and can be listed with Repo.Conflicts.
type ConflictsError struct {
	Op        string
	Conflicts []object.Conflict
}

func (e *ConflictsError) Error() string {
	if e == nil {
		return "<nil>"
	}
	paths := make([]string, 0, min(len(e.Conflicts), 5))
	for i, c := range e.Conflicts {
		if i == 5 {
			paths = append(paths, "...")
			break
		}
		paths = append(paths, c.Path)
	}
	noun := "conflicts"
	if len(e.Conflicts) == 1 {
		noun = "conflict"
	}
	return fmt.Sprintf("%s: %d %s: %s", e.Op, len(e.Conflicts), noun, strings.Join(paths, ", "))
}

func (e *ConflictsError) Is(target error) bool { return target == ErrConflicts }
