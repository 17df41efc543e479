package repo

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/odvcencio/geograft/pkg/object"
)

// CommitOptions control Commit.
type CommitOptions struct {
	Message string
	// Author overrides the configured identity. The committer is always
	// the configured identity.
	Author *object.Person
	// AllowEmpty records a commit even when nothing is staged.
	AllowEmpty bool
}

// Commit records the staging area as a new commit on the current branch.
//
// While a merge is pending, MERGE_HEAD becomes the second parent and the
// stored merge message is used when opts.Message is empty.
func (r *Repo) Commit(ctx context.Context, opts CommitOptions) (object.RevCommit, error) {
	if err := r.guard(OpCommit); err != nil {
		return object.RevCommit{}, err
	}
	if r.IsRebasing() {
		return object.RevCommit{}, fmt.Errorf("commit: %w", ErrOperationInProgress)
	}

	head, hasHead, err := r.headCommit()
	if err != nil {
		return object.RevCommit{}, fmt.Errorf("commit: %w", err)
	}
	var parents []object.ObjectID
	headTree := object.EmptyTreeID
	if hasHead {
		parents = append(parents, head.ID())
		headTree = head.TreeID()
	}
	mergeHead, merging, err := r.LookupRef(MergeHeadRef)
	if err != nil {
		return object.RevCommit{}, fmt.Errorf("commit: %w", err)
	}
	if merging {
		parents = append(parents, mergeHead)
	}

	stage, err := r.StageTree()
	if err != nil {
		return object.RevCommit{}, fmt.Errorf("commit: %w", err)
	}
	if stage == headTree && !merging && !opts.AllowEmpty {
		return object.RevCommit{}, fmt.Errorf("commit: %w", ErrNothingToCommit)
	}

	msg := opts.Message
	if strings.TrimSpace(msg) == "" && merging {
		if data, ok, err := r.Blobs.Get(mergeMsgBlob); err != nil {
			return object.RevCommit{}, fmt.Errorf("commit: %w", err)
		} else if ok {
			msg = string(data)
		}
	}
	if strings.TrimSpace(msg) == "" {
		return object.RevCommit{}, fmt.Errorf("commit: %w: empty commit message", object.ErrInvalid)
	}

	committer, err := r.Config.Person(r.now())
	if err != nil {
		return object.RevCommit{}, fmt.Errorf("commit: %w", err)
	}
	author := committer
	if opts.Author != nil {
		author = *opts.Author
	}
	c, err := r.writeCommit(stage, parents, author, committer, msg)
	if err != nil {
		return object.RevCommit{}, fmt.Errorf("commit: %w", err)
	}

	reason := "commit: " + c.Subject()
	if merging {
		reason = "commit (merge): " + c.Subject()
	} else if !hasHead {
		reason = "commit (initial): " + c.Subject()
	}
	if err := r.advanceHead(head.ID(), c.ID(), reason); err != nil {
		return object.RevCommit{}, fmt.Errorf("commit: %w", err)
	}
	if merging {
		if err := r.clearMergeState(); err != nil {
			return object.RevCommit{}, fmt.Errorf("commit: %w", err)
		}
	}
	r.Logger.Info().Str("commit", c.ID().Short()).Int("parents", len(parents)).Msg("committed")
	return c, nil
}

// writeCommit stores a commit and records it in the ancestry graph.
func (r *Repo) writeCommit(treeID object.ObjectID, parents []object.ObjectID, author, committer object.Person, message string) (object.RevCommit, error) {
	c, err := object.NewCommit(treeID, parents, author, committer, message)
	if err != nil {
		return object.RevCommit{}, err
	}
	if _, err := r.Store.Put(c); err != nil {
		return object.RevCommit{}, fmt.Errorf("write commit: %w", err)
	}
	if _, err := r.Graph.Put(c.ID(), parents); err != nil {
		return object.RevCommit{}, fmt.Errorf("index commit: %w", err)
	}
	return c, nil
}

// Log yields the first-parent history starting at start, newest first.
func (r *Repo) Log(ctx context.Context, start object.ObjectID) iter.Seq2[object.RevCommit, error] {
	return func(yield func(object.RevCommit, error) bool) {
		cur := start
		for !cur.IsNull() {
			if err := ctx.Err(); err != nil {
				yield(object.RevCommit{}, err)
				return
			}
			c, err := object.ReadCommit(r.Store, cur)
			if err != nil {
				yield(object.RevCommit{}, fmt.Errorf("log: %w", err))
				return
			}
			if !yield(c, nil) {
				return
			}
			cur = c.FirstParent()
		}
	}
}
