package diff

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/geograft/pkg/object"
	"github.com/odvcencio/geograft/pkg/tree"
)

var small = tree.Thresholds{MaxLeafEntries: 4, BucketsPerTier: 4}

func smallOpts() Options { return Options{BucketsPerTier: small.BucketsPerTier} }

func putFeature(t *testing.T, store object.Store, path string, values ...any) tree.Change {
	t.Helper()
	f, err := object.NewFeature(values...)
	require.NoError(t, err)
	_, err = store.Put(f)
	require.NoError(t, err)
	return tree.PutChange(path, object.Node{Kind: object.KindFeature, ObjectID: f.ID(), Bounds: f.Bounds()})
}

func apply(t *testing.T, store object.Store, root object.ObjectID, changes ...tree.Change) object.ObjectID {
	t.Helper()
	tr, err := tree.Apply(context.Background(), store, small, root, changes)
	require.NoError(t, err)
	return tr.ID()
}

func collect(t *testing.T, store object.Store, a, b object.ObjectID, opts Options) []Entry {
	t.Helper()
	var out []Entry
	for e, err := range Trees(context.Background(), store, a, b, opts) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

type change struct {
	typ      ChangeType
	old, new object.ObjectID
}

func byPath(entries []Entry) map[string]change {
	m := make(map[string]change, len(entries))
	for _, e := range entries {
		m[e.Path()] = change{e.Type(), e.OldID(), e.NewID()}
	}
	return m
}

func TestDiffBasic(t *testing.T) {
	store := object.NewMemoryStore()
	a := apply(t, store, object.EmptyTreeID,
		putFeature(t, store, "roads/r1", "one"),
		putFeature(t, store, "roads/r2", "two"),
		putFeature(t, store, "rivers/v1", "nile"),
	)
	b := apply(t, store, a,
		putFeature(t, store, "roads/r1", "uno"),
		tree.RemoveChange("roads/r2"),
		putFeature(t, store, "roads/r3", "three"),
		tree.RemoveChange("rivers"),
	)

	got := collect(t, store, a, b, smallOpts())
	var paths []string
	for _, e := range got {
		paths = append(paths, fmt.Sprintf("%s %s", e.Type(), e.Path()))
	}
	assert.Equal(t, []string{
		"REMOVED rivers/v1",
		"MODIFIED roads/r1",
		"REMOVED roads/r2",
		"ADDED roads/r3",
	}, paths)

	withTrees := collect(t, store, a, b, Options{ReportTrees: true, BucketsPerTier: 4})
	paths = paths[:0]
	for _, e := range withTrees {
		paths = append(paths, fmt.Sprintf("%s %s", e.Type(), e.Path()))
	}
	assert.Equal(t, []string{
		"REMOVED rivers",
		"REMOVED rivers/v1",
		"MODIFIED roads",
		"MODIFIED roads/r1",
		"REMOVED roads/r2",
		"ADDED roads/r3",
	}, paths)
}

func TestDiffSameTreeIsEmptyWithoutReads(t *testing.T) {
	store := object.NewMemoryStore()
	a := apply(t, store, object.EmptyTreeID, putFeature(t, store, "l/f", 1))
	before := testutil.ToFloat64(store.Metrics().Reads)
	assert.Empty(t, collect(t, store, a, a, smallOpts()))
	assert.Equal(t, before, testutil.ToFloat64(store.Metrics().Reads))
}

func TestDiffReversalSymmetry(t *testing.T) {
	store := object.NewMemoryStore()
	rng := rand.New(rand.NewSource(42))
	var base []tree.Change
	for i := 0; i < 40; i++ {
		base = append(base, putFeature(t, store, fmt.Sprintf("layer%d/f%02d", i%3, i), int64(i)))
	}
	a := apply(t, store, object.EmptyTreeID, base...)

	var edits []tree.Change
	for i := 0; i < 40; i++ {
		switch rng.Intn(4) {
		case 0:
			edits = append(edits, tree.RemoveChange(fmt.Sprintf("layer%d/f%02d", i%3, i)))
		case 1:
			edits = append(edits, putFeature(t, store, fmt.Sprintf("layer%d/f%02d", i%3, i), int64(i*100)))
		}
	}
	for i := 0; i < 15; i++ {
		edits = append(edits, putFeature(t, store, fmt.Sprintf("new/g%02d", i), int64(i)))
	}
	b := apply(t, store, a, edits...)

	forward := byPath(collect(t, store, a, b, smallOpts()))
	backward := byPath(collect(t, store, b, a, smallOpts()))
	require.NotEmpty(t, forward)
	require.Len(t, backward, len(forward))
	for path, f := range forward {
		r, ok := backward[path]
		require.True(t, ok, path)
		assert.Equal(t, f.old, r.new, path)
		assert.Equal(t, f.new, r.old, path)
		switch f.typ {
		case Added:
			assert.Equal(t, Removed, r.typ, path)
		case Removed:
			assert.Equal(t, Added, r.typ, path)
		default:
			assert.Equal(t, Modified, r.typ, path)
		}
	}

	counts, err := Count(context.Background(), store, a, b, smallOpts())
	require.NoError(t, err)
	assert.Equal(t, len(forward), counts.Total())
}

func TestDiffLeafAgainstBuckets(t *testing.T) {
	store := object.NewMemoryStore()
	var changes []tree.Change
	for i := 0; i < 12; i++ {
		changes = append(changes, putFeature(t, store, fmt.Sprintf("l/f%02d", i), int64(i)))
	}
	a := apply(t, store, object.EmptyTreeID, changes[:3]...)
	b := apply(t, store, a, changes[3:]...)

	ref, ok, err := tree.FindChild(context.Background(), store, small, b, "l")
	require.NoError(t, err)
	require.True(t, ok)
	bucketed, err := object.ReadTree(store, ref.ObjectID())
	require.NoError(t, err)
	require.True(t, bucketed.IsBucketed())

	entries := collect(t, store, a, b, smallOpts())
	require.Len(t, entries, 9)
	for _, e := range entries {
		assert.Equal(t, Added, e.Type())
	}
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Path(), entries[i].Path())
	}
	reverse := collect(t, store, b, a, smallOpts())
	require.Len(t, reverse, 9)
	for _, e := range reverse {
		assert.Equal(t, Removed, e.Type())
	}
}

func TestDiffSkipsUnchangedSubtrees(t *testing.T) {
	store := object.NewMemoryStore()
	var changes []tree.Change
	for i := 0; i < 200; i++ {
		changes = append(changes, putFeature(t, store, fmt.Sprintf("big/f%03d", i), int64(i), orb.Point{float64(i), 0}))
	}
	changes = append(changes, putFeature(t, store, "small/a", "a"))
	a := apply(t, store, object.EmptyTreeID, changes...)
	b := apply(t, store, a, putFeature(t, store, "small/a", "b"))

	reads := store.Metrics().Reads
	before := testutil.ToFloat64(reads)
	entries := collect(t, store, a, b, smallOpts())
	require.Len(t, entries, 1)
	assert.Equal(t, "small/a", entries[0].Path())
	// Two roots and two versions of "small"; nothing under "big".
	assert.Equal(t, 4.0, testutil.ToFloat64(reads)-before)
}

func TestDiffPathFilter(t *testing.T) {
	store := object.NewMemoryStore()
	a := apply(t, store, object.EmptyTreeID,
		putFeature(t, store, "roads/r1", "one"),
		putFeature(t, store, "rivers/v1", "nile"),
	)
	b := apply(t, store, a,
		putFeature(t, store, "roads/r1", "uno"),
		putFeature(t, store, "rivers/v1", "amazon"),
	)
	entries := collect(t, store, a, b, Options{Paths: []string{"rivers/"}, BucketsPerTier: 4})
	require.Len(t, entries, 1)
	assert.Equal(t, "rivers/v1", entries[0].Path())
}

func TestDiffCancelled(t *testing.T) {
	store := object.NewMemoryStore()
	a := apply(t, store, object.EmptyTreeID, putFeature(t, store, "l/a", 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	for _, err := range Trees(ctx, store, object.EmptyTreeID, a, smallOpts()) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestDiffMissingTree(t *testing.T) {
	store := object.NewMemoryStore()
	missing := object.HashBytes([]byte("missing"))
	var gotErr error
	for _, err := range Trees(context.Background(), store, object.EmptyTreeID, missing, smallOpts()) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, object.ErrNotFound)
}

func TestUnionIndexesAcrossValueTypes(t *testing.T) {
	groups := map[int][]object.Node{3: nil, 0: nil}
	buckets := map[int]object.ObjectID{1: object.NullID, 3: object.NullID}
	assert.Equal(t, []int{0, 1, 3}, unionIndexes(groups, buckets))
	assert.Equal(t, []int{1, 3}, unionIndexes(buckets, map[int]object.ObjectID{}))
}
