package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/odvcencio/geograft/pkg/merge"
	"github.com/odvcencio/geograft/pkg/object"
)

// MergeOptions control Merge.
type MergeOptions struct {
	// Message is the merge commit message. It defaults to
	// "Merge commit '<short id>'".
	Message string
	// NoFastForward records a merge commit even when HEAD could simply
	// move forward.
	NoFastForward bool
}

// MergeResult is the outcome of a merge that did not pause on conflicts.
type MergeResult struct {
	Base        object.ObjectID // NullID for unrelated histories
	Ours        object.ObjectID
	Theirs      object.ObjectID
	Commit      object.ObjectID // new HEAD
	UpToDate    bool
	FastForward bool
	Stats       merge.Stats
}

// Merge joins the history of target into the current branch.
//
// When target is already contained in HEAD nothing happens. When HEAD is
// an ancestor of target the branch fast-forwards (unless NoFastForward).
// Otherwise a three-way merge against the common ancestor runs: a clean
// result is committed with two parents; conflicts leave the merged
// non-conflicting changes in the staging area and working tree, record
// the conflicts and MERGE_HEAD, and return a *ConflictsError. Resolving
// the conflicts with Add and calling Commit completes the merge.
func (r *Repo) Merge(ctx context.Context, target object.ObjectID, opts MergeOptions) (*MergeResult, error) {
	if err := r.guard(OpMerge); err != nil {
		return nil, err
	}
	if _, pending, err := r.LookupRef(MergeHeadRef); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	} else if pending || r.IsRebasing() {
		return nil, fmt.Errorf("merge: %w", ErrOperationInProgress)
	}
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	theirs, err := object.ReadCommit(r.Store, target)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	head, hasHead, err := r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	res := &MergeResult{Ours: head.ID(), Theirs: target}
	if !hasHead {
		if err := r.fastForward(object.NullID, theirs); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		res.Commit, res.FastForward = target, true
		return res, nil
	}

	if err := r.indexCommits(ctx, head.ID(), target); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	base, related, err := r.ancestry().CommonAncestor(ctx, head.ID(), target)
	if err != nil {
		return nil, fmt.Errorf("merge: find merge base: %w", err)
	}
	if related {
		res.Base = base
	}

	log := r.Logger.With().Str("ours", head.ID().Short()).Str("theirs", target.Short()).Logger()
	switch {
	case related && base == target:
		res.Commit, res.UpToDate = head.ID(), true
		log.Info().Msg("merge: already up to date")
		return res, nil
	case related && base == head.ID() && !opts.NoFastForward:
		if err := r.fastForward(head.ID(), theirs); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		res.Commit, res.FastForward = target, true
		log.Info().Msg("merge: fast-forward")
		return res, nil
	}

	th := r.Config.Thresholds()
	report, err := merge.ReportCommits(ctx, r.Store, th, res.Base, head.ID(), target)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	merged, err := report.ApplyTo(ctx, r.Store, th, head.TreeID())
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	res.Stats = report.Stats

	msg := opts.Message
	if strings.TrimSpace(msg) == "" {
		msg = fmt.Sprintf("Merge commit '%s'", target.Short())
	}

	if report.HasConflicts() {
		if err := r.pauseMerge(head.ID(), target, merged.ID(), msg, report.Conflicts); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		log.Info().Int("conflicts", len(report.Conflicts)).Msg("merge: paused on conflicts")
		return nil, &ConflictsError{Op: "merge", Conflicts: report.Conflicts}
	}

	committer, err := r.Config.Person(r.now())
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	c, err := r.writeCommit(merged.ID(), []object.ObjectID{head.ID(), target}, committer, committer, msg)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if err := r.advanceHead(head.ID(), c.ID(), "merge "+target.Short()+": "+c.Subject()); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if err := r.setTrees(merged.ID(), "merge"); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	res.Commit = c.ID()
	log.Info().Str("commit", c.ID().Short()).Int("merged", report.Stats.Merged).Msg("merge: committed")
	return res, nil
}

func (r *Repo) fastForward(old object.ObjectID, to object.RevCommit) error {
	if err := r.advanceHead(old, to.ID(), "merge "+to.ID().Short()+": fast-forward"); err != nil {
		return err
	}
	return r.setTrees(to.TreeID(), "merge: fast-forward")
}

func (r *Repo) pauseMerge(ours, theirs, partial object.ObjectID, msg string, conflicts []object.Conflict) error {
	if err := r.setTrees(partial, "merge: conflicts"); err != nil {
		return err
	}
	if err := r.addConflicts(conflicts); err != nil {
		return err
	}
	if err := r.UpdateRef(OrigHeadRef, ours, "merge"); err != nil {
		return err
	}
	if err := r.Blobs.Put(mergeMsgBlob, []byte(msg)); err != nil {
		return err
	}
	return r.UpdateRef(MergeHeadRef, theirs, "merge")
}

// MergeAbort abandons a paused merge: the staging area and working tree
// return to HEAD and the recorded conflicts are dropped.
func (r *Repo) MergeAbort(ctx context.Context) error {
	if err := r.guard(OpMergeAbort); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, pending, err := r.LookupRef(MergeHeadRef); err != nil {
		return fmt.Errorf("merge abort: %w", err)
	} else if !pending {
		return fmt.Errorf("merge abort: %w", ErrCannotAbort)
	}
	head, err := r.HeadTree()
	if err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	if err := r.setTrees(head, "merge: abort"); err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	if err := r.clearMergeState(); err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	r.Logger.Info().Msg("merge: aborted")
	return nil
}
