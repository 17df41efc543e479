package tree

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/geograft/pkg/object"
)

var small = Thresholds{MaxLeafEntries: 4, BucketsPerTier: 4}

func featureNode(t *testing.T, store object.Store, name string, values ...any) object.Node {
	t.Helper()
	f, err := object.NewFeature(values...)
	require.NoError(t, err)
	_, err = store.Put(f)
	require.NoError(t, err)
	return object.Node{Name: name, Kind: object.KindFeature, ObjectID: f.ID(), Bounds: f.Bounds()}
}

func TestBuildIsIndependentOfInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	var nodes []object.Node
	for i := 0; i < 60; i++ {
		nodes = append(nodes, featureNode(t, store, fmt.Sprintf("f%03d", i), int64(i), orb.Point{float64(i), 1}))
	}

	var ids []object.ObjectID
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		perm := rng.Perm(len(nodes))
		b := NewBuilder(store, small)
		for _, i := range perm {
			b.Put(nodes[i])
		}
		tr, err := b.Build(ctx)
		require.NoError(t, err)
		assert.True(t, tr.IsBucketed())
		assert.EqualValues(t, 60, tr.Size())
		ids = append(ids, tr.ID())
	}
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	require.NoError(t, Verify(ctx, store, small, ids[0]))

	b, err := NewBuilderFrom(ctx, store, small, ids[0])
	require.NoError(t, err)
	assert.Equal(t, 60, b.Len())
	tr, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], tr.ID(), "reloading and rebuilding must be stable")

	bounds := tr.Bounds()
	require.NotNil(t, bounds)
	assert.True(t, bounds.Equal(orb.Bound{Min: orb.Point{0, 1}, Max: orb.Point{59, 1}}))
}

func TestSmallTreeStaysInline(t *testing.T) {
	store := object.NewMemoryStore()
	b := NewBuilder(store, small)
	for i := 0; i < 4; i++ {
		b.Put(featureNode(t, store, fmt.Sprintf("n%d", i), int64(i)))
	}
	tr, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.False(t, tr.IsBucketed())
	assert.Len(t, tr.Features(), 4)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.ErrorIs(t, Thresholds{MaxLeafEntries: 0, BucketsPerTier: 32}.Validate(), object.ErrInvalid)
	assert.ErrorIs(t, Thresholds{MaxLeafEntries: 10, BucketsPerTier: 1}.Validate(), object.ErrInvalid)
}

func TestApplyCreatesIntermediateTrees(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	ft, err := object.NewFeatureType("roads", object.AttributeDescriptor{Name: "name", Type: object.FieldString})
	require.NoError(t, err)
	_, err = store.Put(ft)
	require.NoError(t, err)

	layer := object.Node{Kind: object.KindTree, ObjectID: object.EmptyTreeID, MetadataID: ft.ID()}
	root, err := Apply(ctx, store, small, object.EmptyTreeID, []Change{
		PutChange("roads", layer),
		PutChange("roads/r1", featureNode(t, store, "", "main", orb.Point{1, 2})),
		PutChange("rivers/big/nile", featureNode(t, store, "", "nile")),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, root.Size())
	assert.Equal(t, 3, root.NumTrees())
	require.NoError(t, Verify(ctx, store, small, root.ID()))

	ref, ok, err := FindChild(ctx, store, small, root.ID(), "roads/r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "roads/r1", ref.Path())
	assert.Equal(t, ft.ID(), ref.MetadataID(), "features inherit their layer's feature type")

	layerRef, ok, err := FindChild(ctx, store, small, root.ID(), "roads")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, layerRef.Bounds())
	assert.True(t, layerRef.Bounds().Equal(orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{1, 2}}))

	_, ok, err = FindChild(ctx, store, small, root.ID(), "roads/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyRemoveAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	a := featureNode(t, store, "", "a")
	b := featureNode(t, store, "", "b")

	direct, err := Apply(ctx, store, small, object.EmptyTreeID, []Change{PutChange("l/b", b)})
	require.NoError(t, err)

	viaRemove, err := Apply(ctx, store, small, object.EmptyTreeID, []Change{
		PutChange("l/a", a),
		PutChange("l/b", b),
		RemoveChange("l/a"),
	})
	require.NoError(t, err)
	assert.Equal(t, direct.ID(), viaRemove.ID())

	// Removing a tree drops earlier edits beneath it.
	cleared, err := Apply(ctx, store, small, object.EmptyTreeID, []Change{
		PutChange("x/a", a),
		RemoveChange("x"),
		PutChange("l/b", b),
	})
	require.NoError(t, err)
	assert.Equal(t, direct.ID(), cleared.ID())

	// Removing below a missing tree is a no-op.
	same, err := Apply(ctx, store, small, direct.ID(), []Change{RemoveChange("nope/x")})
	require.NoError(t, err)
	assert.Equal(t, direct.ID(), same.ID())

	_, err = Apply(ctx, store, small, direct.ID(), []Change{PutChange("l/b/c", a)})
	assert.ErrorIs(t, err, object.ErrInvalid)
}

func TestApplyMatchesBulkBuild(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	var changes []Change
	for i := 0; i < 30; i++ {
		changes = append(changes, PutChange(fmt.Sprintf("layer/f%02d", i), featureNode(t, store, "", int64(i))))
	}
	bulk, err := Apply(ctx, store, small, object.EmptyTreeID, changes)
	require.NoError(t, err)

	root := object.EmptyTreeID
	for i := len(changes) - 1; i >= 0; i-- {
		tr, err := Apply(ctx, store, small, root, changes[i:i+1])
		require.NoError(t, err)
		root = tr.ID()
	}
	assert.Equal(t, bulk.ID(), root)
	require.NoError(t, Verify(ctx, store, small, root))

	ref, ok, err := FindChild(ctx, store, small, root, "layer/f17")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "f17", ref.Name())
}

func TestWalkOrder(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	root, err := Apply(ctx, store, small, object.EmptyTreeID, []Change{
		PutChange("b/y", featureNode(t, store, "", "y")),
		PutChange("a/z", featureNode(t, store, "", "z")),
		PutChange("a/x", featureNode(t, store, "", "x")),
		PutChange("c", featureNode(t, store, "", "c")),
	})
	require.NoError(t, err)

	var paths []string
	for ref, err := range Walk(ctx, store, root.ID(), WalkOptions{IncludeTrees: true}) {
		require.NoError(t, err)
		paths = append(paths, ref.Path())
	}
	assert.Equal(t, []string{"a", "a/x", "a/z", "b", "b/y", "c"}, paths)

	paths = paths[:0]
	for ref, err := range Walk(ctx, store, root.ID(), WalkOptions{Prefix: "a"}) {
		require.NoError(t, err)
		paths = append(paths, ref.Path())
	}
	assert.Equal(t, []string{"a/x", "a/z"}, paths)
}

func TestVerifyDetectsBadAggregates(t *testing.T) {
	store := object.NewMemoryStore()
	n := featureNode(t, store, "a", "a")
	bad, err := object.NewLeafTree(nil, []object.Node{n}, 5, 0)
	require.NoError(t, err)
	_, err = store.Put(bad)
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(context.Background(), store, small, bad.ID()), object.ErrInvalid)
}

func TestBuildStopsSplittingAtDeepestTier(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	th := Thresholds{MaxLeafEntries: 1, BucketsPerTier: 2}
	b := NewBuilder(store, th)
	b.Put(featureNode(t, store, "f480", "a"))
	b.Put(featureNode(t, store, "f1610", "b"))

	tr, err := b.Build(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tr.Size())
	require.NoError(t, Verify(ctx, store, th, tr.ID()))
	for _, name := range []string{"f480", "f1610"} {
		_, ok, err := FindChild(ctx, store, th, tr.ID(), name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestVerifyAllowsOversizedLeafOnlyAtDeepestTier(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemoryStore()
	th := Thresholds{MaxLeafEntries: 1, BucketsPerTier: 2}
	a := featureNode(t, store, "a", "a")
	c := featureNode(t, store, "c", "c")
	leaf, err := object.NewLeafTree(nil, []object.Node{a, c}, 2, 0)
	require.NoError(t, err)
	_, err = store.Put(leaf)
	require.NoError(t, err)

	assert.ErrorIs(t, Verify(ctx, store, th, leaf.ID()), object.ErrInvalid)
	_, err = verifyTree(ctx, store, th, leaf.ID(), maxBucketDepth)
	assert.NoError(t, err)
}
