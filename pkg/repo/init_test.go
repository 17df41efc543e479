package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/geograft/pkg/graph"
	"github.com/odvcencio/geograft/pkg/object"
)

func TestInit_CreatesStructure(t *testing.T) {
	dir := t.TempDir()

	r, err := Init(dir, nil)
	if err != nil {
		t.Fatalf("Init(%q): %v", dir, err)
	}
	defer r.Close()
	if r.RootDir != dir {
		t.Errorf("RootDir = %q, want %q", r.RootDir, dir)
	}
	metaDir := filepath.Join(dir, DirName)
	if r.Dir != metaDir {
		t.Errorf("Dir = %q, want %q", r.Dir, metaDir)
	}

	assertDir(t, metaDir)
	assertFile(t, filepath.Join(metaDir, "HEAD"))
	assertFile(t, filepath.Join(metaDir, "config.toml"))
	assertDir(t, filepath.Join(metaDir, "objects"))
	assertDir(t, filepath.Join(metaDir, "refs", "heads"))
	assertDir(t, filepath.Join(metaDir, "refs", "tags"))
	assertDir(t, filepath.Join(metaDir, "logs", "refs", "heads"))
	assertDir(t, filepath.Join(metaDir, "blobs"))
	assertDir(t, filepath.Join(metaDir, "graph"))

	if r.Store == nil || r.Graph == nil || r.Blobs == nil {
		t.Fatal("Store, Graph and Blobs must be set after Init")
	}
}

func TestInit_ExistingRepo_Error(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir, nil)
	if err != nil {
		t.Fatalf("first Init: %v", err)
	}
	r.Close()

	if _, err := Init(dir, nil); err == nil {
		t.Fatal("second Init should fail on existing repo, got nil error")
	}
}

func TestInit_HeadPointsAtDefaultBranch(t *testing.T) {
	r := newTestRepo(t)

	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != "refs/heads/main" {
		t.Fatalf("HEAD = %q, want %q", head, "refs/heads/main")
	}
	if _, ok, err := r.LookupRef(HeadRef); err != nil || ok {
		t.Fatalf("LookupRef(HEAD) on unborn branch = ok %v, err %v", ok, err)
	}
	tree, err := r.WorkTree()
	if err != nil {
		t.Fatalf("WorkTree: %v", err)
	}
	if tree != object.EmptyTreeID {
		t.Fatalf("WorkTree = %s, want empty tree", tree)
	}
}

func TestOpen_FindsRepoFromSubdir(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir, testConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	r.Close()

	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	opened, err := Open(sub, WithGraph(graph.NewMemoryDatabase()))
	if err != nil {
		t.Fatalf("Open(%q): %v", sub, err)
	}
	defer opened.Close()
	if opened.RootDir != dir {
		t.Fatalf("RootDir = %q, want %q", opened.RootDir, dir)
	}
	if opened.Config.User.Name != "Test User" {
		t.Fatalf("user.name = %q, want %q", opened.Config.User.Name, "Test User")
	}
}

func TestOpen_NotARepo(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open outside a repository should fail")
	}
}

func TestOpen_KeepsHistoryAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir, testConfig(), WithClock(tickingClock()))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	mustCreateTree(t, r, "roads")
	mustInsert(t, r, "roads/1", road(t, "Main St", 2, 1))
	c := commitAll(t, r, "first")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	if got := mustHead(t, reopened); got != c.ID() {
		t.Fatalf("HEAD = %s, want %s", got, c.ID())
	}
	ok, err := reopened.Graph.Exists(c.ID())
	if err != nil || !ok {
		t.Fatalf("graph.Exists(%s) = %v, %v; want true", c.ID().Short(), ok, err)
	}
}

func assertDir(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected directory %q to exist: %v", path, err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %q to be a directory", path)
	}
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected file %q to exist: %v", path, err)
	}
	if info.IsDir() {
		t.Fatalf("expected %q to be a file, not a directory", path)
	}
}
