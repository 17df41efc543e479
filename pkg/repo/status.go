package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/geograft/pkg/diff"
	"github.com/odvcencio/geograft/pkg/object"
)

// Status summarizes the repository state: what is staged relative to HEAD,
// what the working tree changes relative to the staging area, and any
// merge or rebase in progress.
type Status struct {
	Branch    string          // current branch, empty when detached
	Head      object.ObjectID // NullID on an unborn branch
	Staged    []diff.Entry    // HEAD -> STAGE_HEAD
	Unstaged  []diff.Entry    // STAGE_HEAD -> WORK_HEAD
	Conflicts []object.Conflict
	Merging   bool
	Rebasing  bool
}

// IsClean reports whether nothing is staged, modified or conflicted.
func (s *Status) IsClean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Conflicts) == 0
}

// Status computes the feature-level status of the repository.
func (r *Repo) Status(ctx context.Context) (*Status, error) {
	st := &Status{}
	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if branch, ok := strings.CutPrefix(head, headsPrefix); ok {
		st.Branch = branch
	}
	if id, ok, err := r.LookupRef(HeadRef); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	} else if ok {
		st.Head = id
	}

	headTree, err := r.HeadTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	stage, err := r.StageTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	work, err := r.WorkTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if st.Staged, err = r.featureChanges(ctx, headTree, stage); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if st.Unstaged, err = r.featureChanges(ctx, stage, work); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if st.Conflicts, err = r.Conflicts(""); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	_, st.Merging, err = r.LookupRef(MergeHeadRef)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	st.Rebasing = r.IsRebasing()
	return st, nil
}

func (r *Repo) featureChanges(ctx context.Context, from, to object.ObjectID) ([]diff.Entry, error) {
	if from == to {
		return nil, nil
	}
	var out []diff.Entry
	opts := diff.Options{BucketsPerTier: r.Config.Thresholds().BucketsPerTier}
	for e, err := range diff.Trees(ctx, r.Store, from, to, opts) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ensureClean fails with ErrUncommittedChanges when the staging area or the
// working tree differ from HEAD.
func (r *Repo) ensureClean() error {
	head, err := r.HeadTree()
	if err != nil {
		return err
	}
	for _, name := range []string{StageHeadRef, WorkHeadRef} {
		id, err := r.ResolveTree(name)
		if err != nil {
			return err
		}
		if id != head {
			return ErrUncommittedChanges
		}
	}
	return nil
}
