package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/odvcencio/geograft/pkg/merge"
	"github.com/odvcencio/geograft/pkg/object"
)

// RebaseStatus is the state of the rebase state machine.
type RebaseStatus int

const (
	RebaseIdle RebaseStatus = iota
	RebaseInProgress
	RebaseConflicted
)

func (s RebaseStatus) String() string {
	switch s {
	case RebaseIdle:
		return "idle"
	case RebaseInProgress:
		return "in progress"
	case RebaseConflicted:
		return "conflicted"
	default:
		return fmt.Sprintf("RebaseStatus(%d)", int(s))
	}
}

// RebaseOptions control Rebase.
type RebaseOptions struct {
	// Upstream is required: commits of the current branch not reachable
	// from it are replayed.
	Upstream object.ObjectID
	// Onto grafts the replayed commits on a different base. It defaults
	// to Upstream.
	Onto object.ObjectID
	// Squash collapses every replayed commit into one commit carrying
	// SquashMessage (or the last replayed message when empty).
	Squash        bool
	SquashMessage string
}

// RebaseResult describes a finished rebase.
type RebaseResult struct {
	OrigHead    object.ObjectID
	NewHead     object.ObjectID
	Replayed    int
	FastForward bool
	NoOp        bool
}

// rebaseState is persisted in the blob store while a rebase runs so that a
// paused rebase survives restarts.
type rebaseState struct {
	OrigHead      object.ObjectID   `json:"orig_head"`
	Upstream      object.ObjectID   `json:"upstream"`
	Onto          object.ObjectID   `json:"onto"`
	Todo          []object.ObjectID `json:"todo"`
	Current       object.ObjectID   `json:"current"`
	Tip           object.ObjectID   `json:"tip"`
	TipTree       object.ObjectID   `json:"tip_tree"`
	Replayed      int               `json:"replayed"`
	Squash        bool              `json:"squash,omitempty"`
	SquashMessage string            `json:"squash_message,omitempty"`
	SquashAuthor  *object.Person    `json:"squash_author,omitempty"`
	LastMessage   string            `json:"last_message,omitempty"`
	Conflicted    bool              `json:"conflicted"`
}

func (r *Repo) loadRebaseState() (*rebaseState, error) {
	data, ok, err := r.Blobs.Get(rebaseStateBlob)
	if err != nil || !ok {
		return nil, err
	}
	var st rebaseState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("read rebase state: %w", err)
	}
	return &st, nil
}

func (r *Repo) saveRebaseState(st *rebaseState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("write rebase state: %w", err)
	}
	return r.Blobs.Put(rebaseStateBlob, data)
}

// IsRebasing reports whether a rebase is in progress or paused.
func (r *Repo) IsRebasing() bool {
	_, ok, err := r.Blobs.Get(rebaseStateBlob)
	return err == nil && ok
}

// RebaseState returns the current state of the rebase state machine.
func (r *Repo) RebaseState() (RebaseStatus, error) {
	st, err := r.loadRebaseState()
	switch {
	case err != nil:
		return RebaseIdle, err
	case st == nil:
		return RebaseIdle, nil
	case st.Conflicted:
		return RebaseConflicted, nil
	default:
		return RebaseInProgress, nil
	}
}

func (r *Repo) rebaseLogger(st *rebaseState) *zerolog.Logger {
	branch, _ := r.CurrentBranch()
	l := r.Logger.With().
		Str("branch", branch).
		Str("orig_head", st.OrigHead.Short()).
		Str("onto", st.Onto.Short()).
		Logger()
	return &l
}

// Rebase replays the commits of the current branch that upstream lacks on
// top of opts.Onto (default upstream), one commit at a time.
//
// A branch that is behind upstream fast-forwards; a branch already based
// on upstream is left alone. On conflicts the rebase pauses: the working
// tree and staging area hold the replay tip with the non-conflicting
// changes of the paused commit, the conflicts are recorded, and a
// *ConflictsError is returned. RebaseContinue, RebaseSkip and RebaseAbort
// drive a paused rebase.
func (r *Repo) Rebase(ctx context.Context, opts RebaseOptions) (*RebaseResult, error) {
	if err := r.guard(OpRebase); err != nil {
		return nil, err
	}
	if opts.Upstream.IsNull() {
		return nil, fmt.Errorf("rebase: %w", ErrNoUpstream)
	}
	if _, merging, err := r.LookupRef(MergeHeadRef); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	} else if merging || r.IsRebasing() {
		return nil, fmt.Errorf("rebase: %w", ErrOperationInProgress)
	}
	head, hasHead, err := r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if !hasHead {
		return nil, fmt.Errorf("rebase: %w: HEAD has no history", ErrNothingToRebase)
	}
	if _, err := object.ReadCommit(r.Store, opts.Upstream); err != nil {
		return nil, fmt.Errorf("rebase: upstream: %w", err)
	}
	onto := opts.Onto
	if onto.IsNull() {
		onto = opts.Upstream
	}
	ontoCommit, err := object.ReadCommit(r.Store, onto)
	if err != nil {
		return nil, fmt.Errorf("rebase: onto: %w", err)
	}
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	if err := r.indexCommits(ctx, head.ID(), opts.Upstream, onto); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	finder := r.ancestry()
	base, related, err := finder.CommonAncestor(ctx, head.ID(), opts.Upstream)
	if err != nil {
		return nil, fmt.Errorf("rebase: find merge base: %w", err)
	}
	if !related {
		return nil, fmt.Errorf("rebase: %w: no common ancestor with upstream", ErrNothingToRebase)
	}

	res := &RebaseResult{OrigHead: head.ID()}
	if base == head.ID() {
		if err := r.moveHead(onto, "rebase: fast-forward to "+onto.Short()); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		if err := r.setTrees(ontoCommit.TreeID(), "rebase: fast-forward"); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		res.NewHead, res.FastForward = onto, true
		r.Logger.Info().Str("head", onto.Short()).Msg("rebase: fast-forward")
		return res, nil
	}
	if base == opts.Upstream && onto == opts.Upstream {
		res.NewHead, res.NoOp = head.ID(), true
		r.Logger.Info().Msg("rebase: already up to date")
		return res, nil
	}

	todo, err := finder.LinearRange(ctx, opts.Upstream, head.ID())
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if len(todo) == 0 {
		return nil, fmt.Errorf("rebase: %w", ErrNothingToRebase)
	}

	st := &rebaseState{
		OrigHead:      head.ID(),
		Upstream:      opts.Upstream,
		Onto:          onto,
		Todo:          todo,
		Tip:           onto,
		TipTree:       ontoCommit.TreeID(),
		Squash:        opts.Squash,
		SquashMessage: opts.SquashMessage,
	}
	if err := r.UpdateRef(OrigHeadRef, head.ID(), "rebase: start"); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.saveRebaseState(st); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.moveHead(onto, "rebase: checkout "+onto.Short()); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.setTrees(st.TipTree, "rebase: start"); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	r.rebaseLogger(st).Info().Int("commits", len(todo)).Bool("squash", opts.Squash).Msg("rebase: started")
	return r.replay(ctx, st, "rebase")
}

// replay applies the remaining commits in st.Todo and finishes the rebase,
// or pauses on the first conflicting commit.
func (r *Repo) replay(ctx context.Context, st *rebaseState, op string) (*RebaseResult, error) {
	th := r.Config.Thresholds()
	log := r.rebaseLogger(st)
	for len(st.Todo) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := st.Todo[0]
		c, err := object.ReadCommit(r.Store, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		parentTree := object.EmptyTreeID
		if p := c.FirstParent(); !p.IsNull() {
			pc, err := object.ReadCommit(r.Store, p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			parentTree = pc.TreeID()
		}

		report, err := merge.ReportTrees(ctx, r.Store, th, parentTree, st.TipTree, c.TreeID())
		if err != nil {
			return nil, fmt.Errorf("%s: replay %s: %w", op, id.Short(), err)
		}
		merged, err := report.ApplyTo(ctx, r.Store, th, st.TipTree)
		if err != nil {
			return nil, fmt.Errorf("%s: replay %s: %w", op, id.Short(), err)
		}
		st.Todo = st.Todo[1:]

		if report.HasConflicts() {
			st.Current = id
			st.Conflicted = true
			if err := r.saveRebaseState(st); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if err := r.setTrees(merged.ID(), "rebase: conflicts"); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if err := r.addConflicts(report.Conflicts); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			log.Info().Str("commit", id.Short()).Int("conflicts", len(report.Conflicts)).Msg("rebase: paused on conflicts")
			return nil, &ConflictsError{Op: op, Conflicts: report.Conflicts}
		}

		if err := r.completeStep(st, c, merged.ID()); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := r.saveRebaseState(st); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Debug().Str("commit", id.Short()).Str("tip", st.Tip.Short()).Msg("rebase: replayed commit")
	}
	return r.finishRebase(st, op)
}

// completeStep records the replay of c with the resulting tree. Outside
// squash mode a new commit is written even when the tree did not change.
func (r *Repo) completeStep(st *rebaseState, c object.RevCommit, treeID object.ObjectID) error {
	st.TipTree = treeID
	st.Replayed++
	if st.Squash {
		author := c.Author()
		st.SquashAuthor = &author
		st.LastMessage = c.Message()
		return nil
	}
	committer, err := r.Config.Person(r.now())
	if err != nil {
		return err
	}
	nc, err := r.writeCommit(treeID, []object.ObjectID{st.Tip}, c.Author(), committer, c.Message())
	if err != nil {
		return err
	}
	if err := r.moveHead(nc.ID(), "rebase: "+nc.Subject()); err != nil {
		return err
	}
	st.Tip = nc.ID()
	return nil
}

func (r *Repo) finishRebase(st *rebaseState, op string) (*RebaseResult, error) {
	if st.Squash && st.Replayed > 0 {
		committer, err := r.Config.Person(r.now())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		author := committer
		if st.SquashAuthor != nil {
			author = *st.SquashAuthor
		}
		msg := st.SquashMessage
		if strings.TrimSpace(msg) == "" {
			msg = st.LastMessage
		}
		nc, err := r.writeCommit(st.TipTree, []object.ObjectID{st.Tip}, author, committer, msg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := r.moveHead(nc.ID(), "rebase (squash): "+nc.Subject()); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		st.Tip = nc.ID()
	}
	if err := r.setTrees(st.TipTree, "rebase: finish"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.endRebase(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r.rebaseLogger(st).Info().Str("head", st.Tip.Short()).Int("replayed", st.Replayed).Msg("rebase: completed")
	return &RebaseResult{OrigHead: st.OrigHead, NewHead: st.Tip, Replayed: st.Replayed}, nil
}

func (r *Repo) endRebase() error {
	if err := r.clearConflicts(); err != nil {
		return err
	}
	if err := r.Blobs.Delete(rebaseStateBlob); err != nil {
		return err
	}
	return r.DeleteRef(OrigHeadRef, "rebase: finish")
}

// RebaseContinue commits the staged resolution of the paused commit and
// resumes the rebase. Every conflict must have been resolved with Add.
func (r *Repo) RebaseContinue(ctx context.Context) (*RebaseResult, error) {
	const op = "rebase continue"
	if err := r.guard(OpRebaseContinue); err != nil {
		return nil, err
	}
	st, err := r.loadRebaseState()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if st == nil || !st.Conflicted {
		return nil, fmt.Errorf("%s: %w: no paused rebase", op, ErrCannotContinue)
	}
	remaining, err := r.Conflicts("")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(remaining) > 0 {
		return nil, fmt.Errorf("%s: %w: %d unresolved conflicts", op, ErrCannotContinue, len(remaining))
	}
	c, err := object.ReadCommit(r.Store, st.Current)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resolved, err := r.StageTree()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.completeStep(st, c, resolved); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	st.Current = object.NullID
	st.Conflicted = false
	if err := r.saveRebaseState(st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r.rebaseLogger(st).Info().Str("commit", c.ID().Short()).Msg("rebase: continued")
	return r.replay(ctx, st, "rebase")
}

// RebaseSkip drops the paused commit, restores the replay tip and resumes
// with the next commit.
func (r *Repo) RebaseSkip(ctx context.Context) (*RebaseResult, error) {
	const op = "rebase skip"
	if err := r.guard(OpRebaseSkip); err != nil {
		return nil, err
	}
	st, err := r.loadRebaseState()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if st == nil || !st.Conflicted {
		return nil, fmt.Errorf("%s: %w: no paused rebase", op, ErrCannotSkip)
	}
	skipped := st.Current
	st.Current = object.NullID
	st.Conflicted = false
	if err := r.clearConflicts(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.setTrees(st.TipTree, "rebase: skip"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.saveRebaseState(st); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	r.rebaseLogger(st).Info().Str("commit", skipped.Short()).Msg("rebase: skipped commit")
	return r.replay(ctx, st, "rebase")
}

// RebaseAbort stops a rebase and restores the branch, staging area and
// working tree to the pre-rebase tip.
func (r *Repo) RebaseAbort(ctx context.Context) error {
	const op = "rebase abort"
	if err := r.guard(OpRebaseAbort); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := r.loadRebaseState()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if st == nil {
		return fmt.Errorf("%s: %w: no rebase in progress", op, ErrCannotAbort)
	}
	orig, err := object.ReadCommit(r.Store, st.OrigHead)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.moveHead(orig.ID(), "rebase: abort"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.setTrees(orig.TreeID(), "rebase: abort"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := r.endRebase(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.rebaseLogger(st).Info().Msg("rebase: aborted")
	return nil
}
