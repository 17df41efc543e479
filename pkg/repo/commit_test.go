package repo

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/odvcencio/geograft/pkg/object"
)

func TestCommit_FirstAndSecond(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateTree(t, r, "roads")
	mustInsert(t, r, "roads/1", road(t, "Main St", 2, 1))
	first := commitAll(t, r, "first")

	if first.NumParents() != 0 {
		t.Fatalf("first commit has %d parents, want 0", first.NumParents())
	}
	if first.Author().Name != "Test User" || first.Committer().Email != "test@example.com" {
		t.Fatalf("identity = %v / %v", first.Author(), first.Committer())
	}
	stage, _ := r.StageTree()
	if first.TreeID() != stage {
		t.Fatalf("commit tree %s != staged tree %s", first.TreeID().Short(), stage.Short())
	}

	mustInsert(t, r, "roads/2", road(t, "High St", 1, 2))
	second := commitAll(t, r, "second")
	if second.FirstParent() != first.ID() {
		t.Fatalf("second parent = %s, want %s", second.FirstParent(), first.ID())
	}
	if got := mustBranch(t, r, "main"); got != second.ID() {
		t.Fatalf("main = %s, want %s", got, second.ID())
	}
	if second.Author().Timestamp <= first.Author().Timestamp {
		t.Fatal("commit timestamps should follow the clock")
	}
	if ok, err := r.Graph.Exists(second.ID()); err != nil || !ok {
		t.Fatalf("second commit not indexed in graph: %v %v", ok, err)
	}

	if _, err := r.Commit(ctx, CommitOptions{Message: "nothing"}); !errors.Is(err, ErrNothingToCommit) {
		t.Fatalf("empty commit = %v, want ErrNothingToCommit", err)
	}
	empty, err := r.Commit(ctx, CommitOptions{Message: "allowed", AllowEmpty: true})
	if err != nil {
		t.Fatalf("Commit(AllowEmpty): %v", err)
	}
	if empty.TreeID() != second.TreeID() {
		t.Fatal("empty commit should reuse the previous tree")
	}
}

func TestCommit_RequiresMessageAndIdentity(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateTree(t, r, "roads")
	if _, err := r.Add(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Commit(ctx, CommitOptions{Message: "  "}); !errors.Is(err, object.ErrInvalid) {
		t.Fatalf("blank message = %v, want ErrInvalid", err)
	}

	r.Config.User.Name = ""
	if _, err := r.Commit(ctx, CommitOptions{Message: "x"}); err == nil {
		t.Fatal("commit without user.name should fail")
	}

	author := object.Person{Name: "Ada", Email: "ada@example.com", Timestamp: 100}
	r.Config.User.Name = "Committer"
	c, err := r.Commit(ctx, CommitOptions{Message: "x", Author: &author})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if c.Author() != author || c.Committer().Name != "Committer" {
		t.Fatalf("author %v committer %v", c.Author(), c.Committer())
	}
}

func TestLog_FirstParentNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	var ids []object.ObjectID
	for i, msg := range []string{"one", "two", "three"} {
		mustInsert(t, r, "roads/"+msg, road(t, msg, i, float64(i)))
		ids = append(ids, commitAll(t, r, msg).ID())
	}

	got := logMessages(t, r, mustHead(t, r))
	if !slices.Equal(got, []string{"three", "two", "one"}) {
		t.Fatalf("log = %v", got)
	}

	var n int
	for c, err := range r.Log(context.Background(), ids[2]) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if c.ID() == ids[1] {
			break
		}
	}
	if n != 2 {
		t.Fatalf("early break visited %d commits, want 2", n)
	}
}

func TestLog_Canceled(t *testing.T) {
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	c := commitAll(t, r, "one")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range r.Log(ctx, c.ID()) {
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Log err = %v, want context.Canceled", err)
		}
		return
	}
	t.Fatal("Log on a canceled context yielded nothing")
}

func TestResolveCommit(t *testing.T) {
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	first := commitAll(t, r, "first")
	mustInsert(t, r, "roads/1", road(t, "Main St", 2, 1))
	second := commitAll(t, r, "second")
	mustInsert(t, r, "roads/2", road(t, "High St", 2, 1))
	third := commitAll(t, r, "third")

	tests := []struct {
		rev  string
		want object.ObjectID
	}{
		{"HEAD", third.ID()},
		{"main", third.ID()},
		{"HEAD~", second.ID()},
		{"HEAD~2", first.ID()},
		{"main~0", third.ID()},
		{second.ID().String(), second.ID()},
		{second.ID().String() + "~1", first.ID()},
	}
	for _, tt := range tests {
		got, err := r.ResolveCommit(tt.rev)
		if err != nil {
			t.Fatalf("ResolveCommit(%q): %v", tt.rev, err)
		}
		if got != tt.want {
			t.Errorf("ResolveCommit(%q) = %s, want %s", tt.rev, got.Short(), tt.want.Short())
		}
	}

	for _, bad := range []string{"HEAD~3", "HEAD~x", "nope"} {
		if _, err := r.ResolveCommit(bad); err == nil {
			t.Errorf("ResolveCommit(%q) should fail", bad)
		}
	}
}
