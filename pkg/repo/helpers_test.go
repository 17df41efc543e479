package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/odvcencio/geograft/pkg/object"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.User.Name = "Test User"
	cfg.User.Email = "test@example.com"
	cfg.User.Timezone = "UTC"
	cfg.Tree.MaxLeafEntries = 4
	cfg.Tree.BucketsPerTier = 4
	return &cfg
}

// tickingClock returns a clock that advances one minute per call.
func tickingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir(), testConfig(), WithClock(tickingClock()))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func testID(s string) object.ObjectID {
	return object.HashBytes([]byte(s))
}

func roadsType(t *testing.T) object.RevFeatureType {
	t.Helper()
	ft, err := object.NewFeatureType("roads",
		object.AttributeDescriptor{Name: "name", Type: object.FieldString},
		object.AttributeDescriptor{Name: "lanes", Type: object.FieldInt},
		object.AttributeDescriptor{Name: "geom", Type: object.FieldGeometry, CRS: "EPSG:4326"},
	)
	if err != nil {
		t.Fatalf("NewFeatureType: %v", err)
	}
	return ft
}

func road(t *testing.T, name string, lanes int, x float64) object.RevFeature {
	t.Helper()
	f, err := object.NewFeature(name, lanes, orb.Point{x, x / 2})
	if err != nil {
		t.Fatalf("NewFeature: %v", err)
	}
	return f
}

func mustCreateTree(t *testing.T, r *Repo, path string) {
	t.Helper()
	if err := r.CreateTree(context.Background(), path, roadsType(t)); err != nil {
		t.Fatalf("CreateTree(%s): %v", path, err)
	}
}

func mustInsert(t *testing.T, r *Repo, path string, f object.RevFeature) {
	t.Helper()
	if err := r.InsertFeature(context.Background(), path, f); err != nil {
		t.Fatalf("InsertFeature(%s): %v", path, err)
	}
}

func mustRemove(t *testing.T, r *Repo, path string) {
	t.Helper()
	if err := r.RemoveFeature(context.Background(), path); err != nil {
		t.Fatalf("RemoveFeature(%s): %v", path, err)
	}
}

// commitAll stages everything and commits it.
func commitAll(t *testing.T, r *Repo, msg string) object.RevCommit {
	t.Helper()
	ctx := context.Background()
	if _, err := r.Add(ctx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	c, err := r.Commit(ctx, CommitOptions{Message: msg})
	if err != nil {
		t.Fatalf("Commit(%q): %v", msg, err)
	}
	return c
}

func mustHead(t *testing.T, r *Repo) object.ObjectID {
	t.Helper()
	id, err := r.ResolveRef(HeadRef)
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	return id
}

func mustBranch(t *testing.T, r *Repo, name string) object.ObjectID {
	t.Helper()
	id, err := r.ResolveRef(headsPrefix + name)
	if err != nil {
		t.Fatalf("ResolveRef(%s): %v", name, err)
	}
	return id
}

func mustCheckout(t *testing.T, r *Repo, target string) {
	t.Helper()
	if err := r.Checkout(context.Background(), target); err != nil {
		t.Fatalf("Checkout(%s): %v", target, err)
	}
}

// featureAt returns the feature at path in rev, failing when it is missing.
func featureAt(t *testing.T, r *Repo, rev, path string) object.RevFeature {
	t.Helper()
	f, _, err := r.Feature(context.Background(), rev, path)
	if err != nil {
		t.Fatalf("Feature(%s, %s): %v", rev, path, err)
	}
	return f
}

func hasFeature(t *testing.T, r *Repo, rev, path string) bool {
	t.Helper()
	_, _, err := r.Feature(context.Background(), rev, path)
	if errors.Is(err, object.ErrNotFound) {
		return false
	}
	if err != nil {
		t.Fatalf("Feature(%s, %s): %v", rev, path, err)
	}
	return true
}

// logMessages returns the first-parent messages from start, newest first.
func logMessages(t *testing.T, r *Repo, start object.ObjectID) []string {
	t.Helper()
	var out []string
	for c, err := range r.Log(context.Background(), start) {
		if err != nil {
			t.Fatalf("Log: %v", err)
		}
		out = append(out, c.Message())
	}
	return out
}
