package repo

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/odvcencio/geograft/pkg/object"
)

// setupRebaseRepo builds
//
//	main:    base - m1 (roads/1 gets 3 lanes)
//	feature: base - f1 (roads/1 gets 4 lanes) - f2 (adds roads/6)
//
// and leaves HEAD on feature. With conflict false, f1 adds roads/3
// instead of touching roads/1.
func setupRebaseRepo(t *testing.T, conflict bool) (r *Repo, m1, f1, f2 object.RevCommit) {
	t.Helper()
	r, _ = setupMergeRepo(t)
	mustInsert(t, r, "roads/1", road(t, "Main St", 3, 1))
	m1 = commitAll(t, r, "m1")

	mustCheckout(t, r, "feature")
	if conflict {
		mustInsert(t, r, "roads/1", road(t, "Main St", 4, 1))
	} else {
		mustInsert(t, r, "roads/3", road(t, "Low St", 1, 3))
	}
	f1 = commitAll(t, r, "f1")
	mustInsert(t, r, "roads/6", road(t, "Side St", 1, 6))
	f2 = commitAll(t, r, "f2")
	return r, m1, f1, f2
}

func assertRebaseIdle(t *testing.T, r *Repo) {
	t.Helper()
	st, err := r.RebaseState()
	if err != nil {
		t.Fatalf("RebaseState: %v", err)
	}
	if st != RebaseIdle || r.IsRebasing() {
		t.Fatalf("rebase state = %s, want idle", st)
	}
	if _, ok, _ := r.LookupRef(OrigHeadRef); ok {
		t.Fatal("ORIG_HEAD should be removed once the rebase ends")
	}
	if has, _ := r.HasConflicts(); has {
		t.Fatal("conflicts should be cleared once the rebase ends")
	}
}

func TestRebase_ReplaysCommits(t *testing.T) {
	r, m1, _, f2 := setupRebaseRepo(t, false)

	res, err := r.Rebase(context.Background(), RebaseOptions{Upstream: m1.ID()})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if res.Replayed != 2 || res.OrigHead != f2.ID() || res.FastForward || res.NoOp {
		t.Fatalf("result = %+v", res)
	}
	if got := mustBranch(t, r, "feature"); got != res.NewHead {
		t.Fatalf("feature = %s, want %s", got.Short(), res.NewHead.Short())
	}
	if name, _ := r.CurrentBranch(); name != "feature" {
		t.Fatalf("CurrentBranch = %q after rebase", name)
	}
	if got := logMessages(t, r, res.NewHead); !slices.Equal(got, []string{"f2", "f1", "m1", "base"}) {
		t.Fatalf("log = %v", got)
	}

	tip, err := object.ReadCommit(r.Store, res.NewHead)
	if err != nil {
		t.Fatal(err)
	}
	if tip.Author() != f2.Author() {
		t.Fatalf("author = %v, want original %v", tip.Author(), f2.Author())
	}
	if tip.Committer().Timestamp <= f2.Committer().Timestamp {
		t.Fatal("replayed commit should carry a new committer timestamp")
	}
	if got := featureAt(t, r, WorkHeadRef, "roads/1"); got.ID() != road(t, "Main St", 3, 1).ID() {
		t.Fatal("upstream change to roads/1 should be kept")
	}
	for _, p := range []string{"roads/3", "roads/6"} {
		if !hasFeature(t, r, HeadRef, p) {
			t.Fatalf("%s missing after rebase", p)
		}
	}
	assertRebaseIdle(t, r)
}

func TestRebase_LogsBranchAndHeads(t *testing.T) {
	r, m1, _, f2 := setupRebaseRepo(t, false)
	var buf bytes.Buffer
	r.Logger = zerolog.New(&buf)

	if _, err := r.Rebase(context.Background(), RebaseOptions{Upstream: m1.ID()}); err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"message":"rebase: started"`, `"branch":"feature"`, `"orig_head":"` + f2.ID().Short() + `"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("rebase log missing %s:\n%s", want, out)
		}
	}
}

func TestRebase_Squash(t *testing.T) {
	r, m1, _, f2 := setupRebaseRepo(t, false)

	res, err := r.Rebase(context.Background(), RebaseOptions{Upstream: m1.ID(), Squash: true, SquashMessage: "feature work"})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if res.Replayed != 2 {
		t.Fatalf("replayed = %d, want 2", res.Replayed)
	}
	if got := logMessages(t, r, res.NewHead); !slices.Equal(got, []string{"feature work", "m1", "base"}) {
		t.Fatalf("log = %v", got)
	}
	tip, err := object.ReadCommit(r.Store, res.NewHead)
	if err != nil {
		t.Fatal(err)
	}
	if tip.FirstParent() != m1.ID() || tip.Author() != f2.Author() {
		t.Fatalf("squashed commit parent %s author %v", tip.FirstParent().Short(), tip.Author())
	}
	if !hasFeature(t, r, HeadRef, "roads/3") || !hasFeature(t, r, HeadRef, "roads/6") {
		t.Fatal("squashed commit should contain every replayed change")
	}
	assertRebaseIdle(t, r)
}

func TestRebase_SquashDefaultsToLastMessage(t *testing.T) {
	r, m1, _, _ := setupRebaseRepo(t, false)
	res, err := r.Rebase(context.Background(), RebaseOptions{Upstream: m1.ID(), Squash: true})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if got := logMessages(t, r, res.NewHead); got[0] != "f2" {
		t.Fatalf("squash message = %q, want f2", got[0])
	}
}

func TestRebase_Onto(t *testing.T) {
	r, base := setupMergeRepo(t)
	if err := r.CreateBranch("other", base.ID()); err != nil {
		t.Fatal(err)
	}
	o1 := onBranch(t, r, "other", "o1", func() {
		mustInsert(t, r, "roads/5", road(t, "Fifth Ave", 4, 5))
	})
	mustCheckout(t, r, "feature")
	mustInsert(t, r, "roads/3", road(t, "Low St", 1, 3))
	commitAll(t, r, "f1")

	res, err := r.Rebase(context.Background(), RebaseOptions{Upstream: base.ID(), Onto: o1.ID()})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if got := logMessages(t, r, res.NewHead); !slices.Equal(got, []string{"f1", "o1", "base"}) {
		t.Fatalf("log = %v", got)
	}
	if !hasFeature(t, r, WorkHeadRef, "roads/5") || !hasFeature(t, r, WorkHeadRef, "roads/3") {
		t.Fatal("rebased tree should hold both branches' features")
	}
}

func TestRebase_FastForwardAndNoOp(t *testing.T) {
	r, base := setupMergeRepo(t)
	mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	m1 := commitAll(t, r, "m1")
	mustCheckout(t, r, "feature")

	res, err := r.Rebase(context.Background(), RebaseOptions{Upstream: m1.ID()})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if !res.FastForward || res.NewHead != m1.ID() {
		t.Fatalf("result = %+v, want fast-forward to m1", res)
	}
	if got := mustBranch(t, r, "feature"); got != m1.ID() {
		t.Fatalf("feature = %s", got.Short())
	}
	if !hasFeature(t, r, WorkHeadRef, "roads/2") {
		t.Fatal("working tree should follow the fast-forward")
	}

	mustInsert(t, r, "roads/3", road(t, "Low St", 1, 3))
	f1 := commitAll(t, r, "f1")
	res, err = r.Rebase(context.Background(), RebaseOptions{Upstream: base.ID()})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if !res.NoOp || res.NewHead != f1.ID() {
		t.Fatalf("result = %+v, want no-op", res)
	}
}

func TestRebase_Preconditions(t *testing.T) {
	ctx := context.Background()
	empty := newTestRepo(t)
	if _, err := empty.Rebase(ctx, RebaseOptions{}); !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("Rebase without upstream = %v, want ErrNoUpstream", err)
	}
	if _, err := empty.Rebase(ctx, RebaseOptions{Upstream: testID("x")}); !errors.Is(err, ErrNothingToRebase) {
		t.Fatalf("Rebase on an empty repo = %v, want ErrNothingToRebase", err)
	}
	if _, err := empty.RebaseContinue(ctx); !errors.Is(err, ErrCannotContinue) {
		t.Fatalf("RebaseContinue while idle = %v", err)
	}
	if _, err := empty.RebaseSkip(ctx); !errors.Is(err, ErrCannotSkip) {
		t.Fatalf("RebaseSkip while idle = %v", err)
	}
	if err := empty.RebaseAbort(ctx); !errors.Is(err, ErrCannotAbort) {
		t.Fatalf("RebaseAbort while idle = %v", err)
	}

	r, m1, _, _ := setupRebaseRepo(t, false)
	mustRemove(t, r, "roads/6")
	if _, err := r.Rebase(ctx, RebaseOptions{Upstream: m1.ID()}); !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("Rebase with local edits = %v, want ErrUncommittedChanges", err)
	}
}

// pausedRebase starts a rebase of feature onto main that stops on f1.
func pausedRebase(t *testing.T) (*Repo, object.RevCommit, object.RevCommit) {
	t.Helper()
	r, m1, _, f2 := setupRebaseRepo(t, true)
	_, err := r.Rebase(context.Background(), RebaseOptions{Upstream: m1.ID()})
	var ce *ConflictsError
	if !errors.As(err, &ce) {
		t.Fatalf("Rebase = %v, want *ConflictsError", err)
	}
	if len(ce.Conflicts) != 1 || ce.Conflicts[0].Path != "roads/1" {
		t.Fatalf("conflicts = %+v", ce.Conflicts)
	}
	return r, m1, f2
}

func TestRebase_ConflictContinue(t *testing.T) {
	r, m1, _ := pausedRebase(t)
	ctx := context.Background()

	if st, _ := r.RebaseState(); st != RebaseConflicted {
		t.Fatalf("state = %s, want conflicted", st)
	}
	status, err := r.Status(ctx)
	if err != nil || !status.Rebasing {
		t.Fatalf("status = %+v, %v", status, err)
	}
	if got := featureAt(t, r, WorkHeadRef, "roads/1"); got.ID() != road(t, "Main St", 3, 1).ID() {
		t.Fatal("conflicting path should hold the replay tip's version")
	}
	if _, err := r.Commit(ctx, CommitOptions{Message: "x"}); err == nil {
		t.Fatal("Commit during a paused rebase should fail")
	}
	if _, err := r.RebaseContinue(ctx); !errors.Is(err, ErrCannotContinue) {
		t.Fatalf("RebaseContinue with conflicts = %v, want ErrCannotContinue", err)
	}

	resolved := road(t, "Main St", 5, 1)
	mustInsert(t, r, "roads/1", resolved)
	if _, err := r.Add(ctx, "roads/1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Rebase(ctx, RebaseOptions{Upstream: m1.ID()}); !errors.Is(err, ErrOperationInProgress) {
		t.Fatalf("nested Rebase = %v, want ErrOperationInProgress", err)
	}

	res, err := r.RebaseContinue(ctx)
	if err != nil {
		t.Fatalf("RebaseContinue: %v", err)
	}
	if res.Replayed != 2 {
		t.Fatalf("replayed = %d, want 2", res.Replayed)
	}
	if got := logMessages(t, r, res.NewHead); !slices.Equal(got, []string{"f2", "f1", "m1", "base"}) {
		t.Fatalf("log = %v", got)
	}
	if got := featureAt(t, r, HeadRef, "roads/1"); got.ID() != resolved.ID() {
		t.Fatal("resolution should be committed")
	}
	if !hasFeature(t, r, HeadRef, "roads/6") {
		t.Fatal("f2 should be replayed after continuing")
	}
	assertRebaseIdle(t, r)
}

func TestRebase_ConflictSkip(t *testing.T) {
	r, _, _ := pausedRebase(t)

	res, err := r.RebaseSkip(context.Background())
	if err != nil {
		t.Fatalf("RebaseSkip: %v", err)
	}
	if res.Replayed != 1 {
		t.Fatalf("replayed = %d, want 1", res.Replayed)
	}
	if got := logMessages(t, r, res.NewHead); !slices.Equal(got, []string{"f2", "m1", "base"}) {
		t.Fatalf("log = %v", got)
	}
	if got := featureAt(t, r, WorkHeadRef, "roads/1"); got.ID() != road(t, "Main St", 3, 1).ID() {
		t.Fatal("skipped commit's change should not be applied")
	}
	if !hasFeature(t, r, WorkHeadRef, "roads/6") {
		t.Fatal("f2 should still be replayed")
	}
	assertRebaseIdle(t, r)
}

func TestRebase_ConflictAbort(t *testing.T) {
	r, _, f2 := pausedRebase(t)

	if err := r.RebaseAbort(context.Background()); err != nil {
		t.Fatalf("RebaseAbort: %v", err)
	}
	if got := mustBranch(t, r, "feature"); got != f2.ID() {
		t.Fatalf("feature = %s, want original %s", got.Short(), f2.ID().Short())
	}
	if name, _ := r.CurrentBranch(); name != "feature" {
		t.Fatalf("CurrentBranch = %q after abort", name)
	}
	work, _ := r.WorkTree()
	if work != f2.TreeID() {
		t.Fatal("working tree should be restored to the original tip")
	}
	assertRebaseIdle(t, r)
}
