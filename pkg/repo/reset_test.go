package repo

import (
	"context"
	"testing"
)

func TestReset_UnstagesButKeepsWorkTree(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateTree(t, r, "roads")
	mustInsert(t, r, "roads/1", road(t, "Main St", 2, 1))
	commitAll(t, r, "first")

	mustInsert(t, r, "roads/1", road(t, "Main St", 4, 1))
	mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	if _, err := r.Add(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Reset(ctx, "roads/2"); err != nil {
		t.Fatalf("Reset(roads/2): %v", err)
	}
	if hasFeature(t, r, StageHeadRef, "roads/2") {
		t.Fatal("roads/2 should be unstaged")
	}
	if got := featureAt(t, r, StageHeadRef, "roads/1"); got.Value(1) != int64(4) {
		t.Fatalf("roads/1 lanes staged = %v, want 4", got.Value(1))
	}

	if _, err := r.Reset(ctx); err != nil {
		t.Fatalf("Reset(all): %v", err)
	}
	head, _ := r.HeadTree()
	stage, _ := r.StageTree()
	if stage != head {
		t.Fatal("staging area should match HEAD after a full reset")
	}
	if !hasFeature(t, r, WorkHeadRef, "roads/2") {
		t.Fatal("Reset must not touch the working tree")
	}
}

func TestResetHard(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateTree(t, r, "roads")
	mustInsert(t, r, "roads/1", road(t, "Main St", 2, 1))
	first := commitAll(t, r, "first")
	mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	commitAll(t, r, "second")
	mustInsert(t, r, "roads/3", road(t, "Low St", 1, 3))

	if err := r.ResetHard(ctx, first.ID()); err != nil {
		t.Fatalf("ResetHard: %v", err)
	}
	if got := mustBranch(t, r, "main"); got != first.ID() {
		t.Fatalf("main = %s, want %s", got, first.ID())
	}
	st, err := r.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsClean() {
		t.Fatalf("status after hard reset is not clean: %+v", st)
	}
	if hasFeature(t, r, WorkHeadRef, "roads/2") || hasFeature(t, r, WorkHeadRef, "roads/3") {
		t.Fatal("working tree should match the reset target")
	}
}
