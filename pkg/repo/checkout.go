package repo

import (
	"context"
	"fmt"

	"github.com/odvcencio/geograft/pkg/object"
)

// Checkout switches to target, which is a branch name or any revision
// ResolveCommit accepts. Branches become the symbolic HEAD; anything else
// detaches HEAD. The staging area and working tree must be clean and are
// replaced by the target's tree.
func (r *Repo) Checkout(ctx context.Context, target string) error {
	if err := r.guard(OpCheckout); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.IsRebasing() {
		return fmt.Errorf("checkout: %w", ErrOperationInProgress)
	}
	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	var (
		id       object.ObjectID
		isBranch bool
		err      error
	)
	if validateRefName(headsPrefix+target) == nil {
		if id, isBranch, err = r.LookupRef(headsPrefix + target); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}
	if !isBranch {
		if id, err = r.ResolveCommit(target); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}
	c, err := object.ReadCommit(r.Store, id)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	if err := r.setTrees(c.TreeID(), "checkout: "+target); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if isBranch {
		err = r.SetHead(target)
	} else {
		err = r.DetachHead(id)
	}
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if err := r.clearMergeState(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	r.Logger.Info().Str("target", target).Str("commit", id.Short()).Bool("detached", !isBranch).Msg("checked out")
	return nil
}
