package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/odvcencio/geograft/pkg/object"
)

// setupMergeRepo commits roads/1 on main and creates a "feature" branch at
// that commit. HEAD stays on main.
func setupMergeRepo(t *testing.T) (*Repo, object.RevCommit) {
	t.Helper()
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	mustInsert(t, r, "roads/1", road(t, "Main St", 2, 1))
	base := commitAll(t, r, "base")
	if err := r.CreateBranch("feature", base.ID()); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	return r, base
}

// onBranch checks out branch, applies edit, commits and checks out main.
func onBranch(t *testing.T, r *Repo, branch, msg string, edit func()) object.RevCommit {
	t.Helper()
	mustCheckout(t, r, branch)
	edit()
	c := commitAll(t, r, msg)
	mustCheckout(t, r, "main")
	return c
}

func TestMerge_FastForward(t *testing.T) {
	r, _ := setupMergeRepo(t)
	tip := onBranch(t, r, "feature", "add roads/2", func() {
		mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	})

	res, err := r.Merge(context.Background(), tip.ID(), MergeOptions{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !res.FastForward || res.Commit != tip.ID() {
		t.Fatalf("result = %+v, want fast-forward to %s", res, tip.ID().Short())
	}
	if got := mustBranch(t, r, "main"); got != tip.ID() {
		t.Fatalf("main = %s, want %s", got.Short(), tip.ID().Short())
	}
	if !hasFeature(t, r, WorkHeadRef, "roads/2") {
		t.Fatal("working tree should contain roads/2 after fast-forward")
	}
}

func TestMerge_UpToDate(t *testing.T) {
	r, base := setupMergeRepo(t)
	mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	head := commitAll(t, r, "ahead")

	res, err := r.Merge(context.Background(), base.ID(), MergeOptions{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !res.UpToDate || res.Commit != head.ID() {
		t.Fatalf("result = %+v, want up to date", res)
	}
}

func TestMerge_NoFastForward(t *testing.T) {
	r, base := setupMergeRepo(t)
	tip := onBranch(t, r, "feature", "add roads/2", func() {
		mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	})

	res, err := r.Merge(context.Background(), tip.ID(), MergeOptions{NoFastForward: true, Message: "merge feature"})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.FastForward {
		t.Fatal("NoFastForward should record a merge commit")
	}
	c, err := object.ReadCommit(r.Store, res.Commit)
	if err != nil {
		t.Fatal(err)
	}
	if c.NumParents() != 2 || c.Parents()[0] != base.ID() || c.Parents()[1] != tip.ID() {
		t.Fatalf("parents = %v", c.Parents())
	}
	if c.Message() != "merge feature" || c.TreeID() != tip.TreeID() {
		t.Fatalf("merge commit %q tree %s", c.Message(), c.TreeID().Short())
	}
}

func TestMerge_CleanThreeWay(t *testing.T) {
	r, base := setupMergeRepo(t)
	tip := onBranch(t, r, "feature", "add roads/3", func() {
		mustInsert(t, r, "roads/3", road(t, "Low St", 1, 3))
	})
	mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	ours := commitAll(t, r, "add roads/2")

	res, err := r.Merge(context.Background(), tip.ID(), MergeOptions{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Base != base.ID() || res.Ours != ours.ID() || res.Theirs != tip.ID() {
		t.Fatalf("result = %+v", res)
	}
	if res.Stats.Unconflicted == 0 || res.Stats.Conflicts != 0 {
		t.Fatalf("stats = %+v", res.Stats)
	}
	for _, p := range []string{"roads/1", "roads/2", "roads/3"} {
		if !hasFeature(t, r, HeadRef, p) || !hasFeature(t, r, WorkHeadRef, p) {
			t.Fatalf("%s missing after merge", p)
		}
	}
	c, err := object.ReadCommit(r.Store, res.Commit)
	if err != nil {
		t.Fatal(err)
	}
	if c.NumParents() != 2 || c.Message() != "Merge commit '"+tip.ID().Short()+"'" {
		t.Fatalf("merge commit parents=%d message=%q", c.NumParents(), c.Message())
	}
	st, err := r.Status(context.Background())
	if err != nil || !st.IsClean() {
		t.Fatalf("status after merge = %+v, %v", st, err)
	}
}

func TestMerge_CombinesAttributeEdits(t *testing.T) {
	r, _ := setupMergeRepo(t)
	tip := onBranch(t, r, "feature", "rename", func() {
		mustInsert(t, r, "roads/1", road(t, "Main Street", 2, 1))
	})
	mustInsert(t, r, "roads/1", road(t, "Main St", 4, 1))
	commitAll(t, r, "widen")

	res, err := r.Merge(context.Background(), tip.ID(), MergeOptions{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Stats.Merged != 1 {
		t.Fatalf("stats = %+v, want one merged feature", res.Stats)
	}
	want := road(t, "Main Street", 4, 1)
	if got := featureAt(t, r, HeadRef, "roads/1"); got.ID() != want.ID() {
		t.Fatalf("merged feature = %v, want %v", got.Values(), want.Values())
	}
}

// conflictingMerge leaves a merge paused on roads/1, where both sides set
// a different lane count.
func conflictingMerge(t *testing.T) (*Repo, object.RevCommit, object.RevCommit) {
	t.Helper()
	r, _ := setupMergeRepo(t)
	tip := onBranch(t, r, "feature", "three lanes", func() {
		mustInsert(t, r, "roads/1", road(t, "Main St", 3, 1))
		mustInsert(t, r, "roads/9", road(t, "Side St", 1, 9))
	})
	mustInsert(t, r, "roads/1", road(t, "Main St", 4, 1))
	ours := commitAll(t, r, "four lanes")

	_, err := r.Merge(context.Background(), tip.ID(), MergeOptions{})
	var ce *ConflictsError
	if !errors.As(err, &ce) {
		t.Fatalf("Merge = %v, want *ConflictsError", err)
	}
	if !errors.Is(err, ErrConflicts) || len(ce.Conflicts) != 1 || ce.Conflicts[0].Path != "roads/1" {
		t.Fatalf("conflicts = %+v", ce.Conflicts)
	}
	return r, ours, tip
}

func TestMerge_ConflictResolveAndCommit(t *testing.T) {
	r, ours, tip := conflictingMerge(t)
	ctx := context.Background()

	st, err := r.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Merging || len(st.Conflicts) != 1 {
		t.Fatalf("status = %+v, want merging with one conflict", st)
	}
	if !hasFeature(t, r, WorkHeadRef, "roads/9") {
		t.Fatal("non-conflicting changes should be applied to the working tree")
	}
	if got := featureAt(t, r, WorkHeadRef, "roads/1"); got.ID() != road(t, "Main St", 4, 1).ID() {
		t.Fatal("conflicting path should keep our version")
	}
	if _, err := r.Commit(ctx, CommitOptions{Message: "too early"}); !errors.Is(err, ErrUnresolvedConflicts) {
		t.Fatalf("Commit with conflicts = %v, want ErrUnresolvedConflicts", err)
	}
	if err := r.CreateBranch("other", ours.ID()); !errors.Is(err, ErrUnresolvedConflicts) {
		t.Fatalf("CreateBranch with conflicts = %v, want ErrUnresolvedConflicts", err)
	}

	resolved := road(t, "Main St", 5, 1)
	mustInsert(t, r, "roads/1", resolved)
	if _, err := r.Add(ctx, "roads/1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if has, _ := r.HasConflicts(); has {
		t.Fatal("Add should resolve the conflict")
	}

	c, err := r.Commit(ctx, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.NumParents() != 2 || c.Parents()[1] != tip.ID() {
		t.Fatalf("merge commit parents = %v", c.Parents())
	}
	if c.Message() != "Merge commit '"+tip.ID().Short()+"'" {
		t.Fatalf("merge message = %q", c.Message())
	}
	if got := featureAt(t, r, HeadRef, "roads/1"); got.ID() != resolved.ID() {
		t.Fatal("merge commit should carry the resolution")
	}
	if _, ok, _ := r.LookupRef(MergeHeadRef); ok {
		t.Fatal("MERGE_HEAD should be cleared after committing")
	}
	if _, ok, _ := r.LookupRef(OrigHeadRef); ok {
		t.Fatal("ORIG_HEAD should be cleared after committing")
	}
}

func TestMergeAbort(t *testing.T) {
	r, ours, tip := conflictingMerge(t)
	ctx := context.Background()

	if _, err := r.Merge(ctx, tip.ID(), MergeOptions{}); !errors.Is(err, ErrUnresolvedConflicts) {
		t.Fatalf("second Merge = %v, want ErrUnresolvedConflicts", err)
	}
	if err := r.MergeAbort(ctx); err != nil {
		t.Fatalf("MergeAbort: %v", err)
	}
	st, err := r.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Merging || !st.IsClean() || st.Head != ours.ID() {
		t.Fatalf("status after abort = %+v", st)
	}
	if hasFeature(t, r, WorkHeadRef, "roads/9") {
		t.Fatal("abort should discard merged changes")
	}
	if err := r.MergeAbort(ctx); !errors.Is(err, ErrCannotAbort) {
		t.Fatalf("MergeAbort without a merge = %v, want ErrCannotAbort", err)
	}
}

func TestMerge_RefusesDirtyTree(t *testing.T) {
	r, _ := setupMergeRepo(t)
	tip := onBranch(t, r, "feature", "add roads/2", func() {
		mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	})
	mustRemove(t, r, "roads/1")
	if _, err := r.Merge(context.Background(), tip.ID(), MergeOptions{}); !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("Merge with local edits = %v, want ErrUncommittedChanges", err)
	}
}
