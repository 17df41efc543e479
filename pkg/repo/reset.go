package repo

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/object"
)

// Reset unstages changes at the given paths (everything when no path is
// given) by restoring the staging area to HEAD. The working tree is left
// untouched.
func (r *Repo) Reset(ctx context.Context, paths ...string) (int, error) {
	if err := r.guard(OpReset); err != nil {
		return 0, err
	}
	head, err := r.HeadTree()
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	stage, err := r.StageTree()
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	next, n, err := r.transfer(ctx, head, stage, paths)
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	if next != stage {
		if err := r.setStageTree(next, "reset"); err != nil {
			return 0, fmt.Errorf("reset: %w", err)
		}
	}
	return n, nil
}

// ResetHard moves the current branch (or detached HEAD) to target and makes
// the staging area and working tree match it. Recorded conflicts and any
// pending merge are discarded.
func (r *Repo) ResetHard(ctx context.Context, target object.ObjectID) error {
	if err := r.guard(OpReset); err != nil {
		return err
	}
	c, err := object.ReadCommit(r.Store, target)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := r.moveHead(target, "reset: moving to "+target.Short()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := r.setTrees(c.TreeID(), "reset"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := r.clearMergeState(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}
