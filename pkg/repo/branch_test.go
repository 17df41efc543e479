package repo

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/odvcencio/geograft/pkg/object"
)

func TestBranch_CreateListDelete(t *testing.T) {
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	head := commitAll(t, r, "initial").ID()

	if err := r.CreateBranch("feature", head); err != nil {
		t.Fatalf("CreateBranch(feature): %v", err)
	}
	branches, err := r.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if !slices.Equal(branches, []string{"feature", "main"}) {
		t.Fatalf("branches = %v, want [feature main]", branches)
	}
	if got := mustBranch(t, r, "feature"); got != head {
		t.Fatalf("feature = %s, want %s", got.Short(), head.Short())
	}

	if err := r.DeleteBranch("feature"); err != nil {
		t.Fatalf("DeleteBranch(feature): %v", err)
	}
	branches, _ = r.ListBranches()
	if !slices.Equal(branches, []string{"main"}) {
		t.Fatalf("branches after delete = %v", branches)
	}
}

func TestBranch_Errors(t *testing.T) {
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	head := commitAll(t, r, "initial").ID()

	if err := r.CreateBranch("feature", head); err != nil {
		t.Fatal(err)
	}
	err := r.CreateBranch("feature", head)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate CreateBranch = %v", err)
	}
	if err := r.CreateBranch("ghost", testID("nowhere")); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("CreateBranch at a missing commit = %v, want ErrNotFound", err)
	}
	if err := r.CreateBranch("bad..name", head); err == nil {
		t.Fatal("CreateBranch with an invalid name should fail")
	}
	if err := r.DeleteBranch("main"); err == nil || !strings.Contains(err.Error(), "current branch") {
		t.Fatalf("DeleteBranch(main) = %v", err)
	}
	if err := r.DeleteBranch("nope"); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("DeleteBranch(nope) = %v", err)
	}
}

func TestCurrentBranch(t *testing.T) {
	r := newTestRepo(t)
	mustCreateTree(t, r, "roads")
	c := commitAll(t, r, "initial")

	name, err := r.CurrentBranch()
	if err != nil || name != "main" {
		t.Fatalf("CurrentBranch = %q, %v", name, err)
	}
	if err := r.DetachHead(c.ID()); err != nil {
		t.Fatal(err)
	}
	if name, _ = r.CurrentBranch(); name != "" {
		t.Fatalf("detached CurrentBranch = %q, want empty", name)
	}
}
