package sigtree

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/oracle"
	"github.com/hupe1980/sigtree/rtree"
	"github.com/hupe1980/sigtree/signature"
	"github.com/hupe1980/sigtree/signature/minwise"
	"github.com/hupe1980/sigtree/signature/qgram"
	"github.com/hupe1980/sigtree/signature/stringset"
	"github.com/hupe1980/sigtree/store"
	"github.com/hupe1980/sigtree/testutil"
	"github.com/hupe1980/sigtree/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ids of the cafe store.
const (
	r0, r1         = 0, 1 // regions
	c0             = 0    // cell
	i0, iJ, iOther = 2, 3, 4
)

// cafeStore: R0 <- R1, cell C0 with ancestor R1, item I0 with
// @amenity:cafe and item J without it in C0. iOther has no cell.
func cafeStore(t testing.TB) *store.Memory {
	t.Helper()
	b := store.NewMemoryBuilder()
	reg0 := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Land"}))
	reg1 := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Stadt"}), reg0)
	cell := b.AddCell(geo.NewRect(0, 0, 10, 10), reg1)

	b.Assign(b.AddItem(geo.Point(1, 1), store.KV{Key: "amenity", Value: "cafe"}), cell)
	b.Assign(b.AddItem(geo.Point(2, 2), store.KV{Key: "shop", Value: "bakery"}), cell)
	b.AddItem(geo.Point(3, 3), store.KV{Key: "amenity", Value: "cafe"})

	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func gridStore(t testing.TB, seed int64) *store.Memory {
	t.Helper()
	st, err := testutil.NewGrid(testutil.NewRNG(seed), testutil.DefaultGrid)
	require.NoError(t, err)
	return st
}

func newMinwise(t testing.TB, f minwise.Family) *minwise.Scheme {
	t.Helper()
	s, err := minwise.New(func(o *minwise.Options) { o.Family = f })
	require.NoError(t, err)
	return s
}

// forEachScheme runs one generic test body per signature scheme.
type schemeTests struct {
	stringset func(t *testing.T, s func() signature.Scheme[*roaring.Bitmap])
	qgram     func(t *testing.T, s func() signature.Scheme[*bitset.BitSet])
	minwise   func(t *testing.T, s func() signature.Scheme[minwise.Signature])
}

func forEachScheme(t *testing.T, tests schemeTests) {
	t.Run("stringset", func(t *testing.T) {
		tests.stringset(t, func() signature.Scheme[*roaring.Bitmap] { return stringset.New() })
	})
	t.Run("qgram", func(t *testing.T) {
		tests.qgram(t, func() signature.Scheme[*bitset.BitSet] { return qgram.New() })
	})
	for _, f := range []minwise.Family{minwise.LCG32, minwise.LCG64, minwise.SHA3} {
		t.Run("minwise-"+string(f), func(t *testing.T) {
			tests.minwise(t, func() signature.Scheme[minwise.Signature] { return newMinwise(t, f) })
		})
	}
}

func TestBuilder_CafeScenario(t *testing.T) {
	forEachScheme(t, schemeTests{
		stringset: testCafeScenario[*roaring.Bitmap],
		qgram:     testCafeScenario[*bitset.BitSet],
		minwise:   testCafeScenario[minwise.Signature],
	})
}

func testCafeScenario[S any](t *testing.T, newScheme func() signature.Scheme[S]) {
	ctx := context.Background()
	st := cafeStore(t)
	scheme := newScheme()

	b := NewBuilder(st, scheme, WithCheck(true), WithLogger(NoopLogger()))
	idx, err := b.Build(ctx)
	require.NoError(t, err)

	rs0, err := b.RegionSignature(r0)
	require.NoError(t, err)
	rs1, err := b.RegionSignature(r1)
	require.NoError(t, err)
	cs, err := b.CellSignature(c0)
	require.NoError(t, err)

	t.Run("region signature is deterministic", func(t *testing.T) {
		assert.True(t, scheme.Equal(rs1, signature.OfTokens(scheme, token.Normalized("name", "Stadt"))))
		assert.True(t, scheme.Equal(rs0, scheme.Combine(rs0, rs0)))
	})

	t.Run("cell signature uses listed parents", func(t *testing.T) {
		assert.True(t, scheme.Equal(rs1, cs))
	})

	t.Run("item signature", func(t *testing.T) {
		sig, err := b.ItemSignature(i0)
		require.NoError(t, err)
		want := scheme.Combine(scheme.Signature("@amenity:cafe"), cs)
		assert.True(t, scheme.Equal(want, sig))
		assert.True(t, scheme.MayHaveMatch("@amenity:cafe", signature.MatchOptions{})(sig))

		n, err := idx.ItemNode(i0)
		require.NoError(t, err)
		assert.True(t, scheme.Equal(want, n.Signature))
		assert.Equal(t, geo.Point(1, 1), n.Boundary)
	})

	t.Run("items without cells are not inserted", func(t *testing.T) {
		assert.Equal(t, 2, idx.Len())
		for _, id := range []uint32{r0, r1, iOther} {
			assert.Equal(t, rtree.NoNode, idx.NodeRef(id))
			_, err := idx.ItemNode(id)
			assert.ErrorIs(t, err, ErrNotInserted)
		}
	})

	t.Run("query returns exactly I0", func(t *testing.T) {
		got := idx.Query(st.Bounds(), "@amenity:cafe", signature.MatchOptions{})
		assert.Equal(t, []uint32{i0}, got.ToArray())

		o, err := oracle.NewScan(ctx, st)
		require.NoError(t, err)
		res, err := o.Complete(ctx, token.Quote("@amenity:cafe"))
		require.NoError(t, err)
		assert.Equal(t, []uint32{i0}, res.Flatten().ToArray())
	})

	t.Run("J only matches geometry", func(t *testing.T) {
		cell, err := st.Cell(c0)
		require.NoError(t, err)
		gp := geo.MayHaveMatch(cell.Boundary)

		assert.True(t, idx.Find(gp, nil).Contains(iJ))
		assert.False(t, idx.Find(gp, scheme.MayHaveMatch("@amenity:cafe", signature.MatchOptions{})).Contains(iJ))
	})
}

func TestBuilder_AncestorClosure(t *testing.T) {
	ctx := context.Background()
	scheme := stringset.New()
	b := NewBuilder[*roaring.Bitmap](cafeStore(t), scheme, WithAncestorClosure(true), WithLogger(NoopLogger()))
	_, err := b.Build(ctx)
	require.NoError(t, err)

	rs0, _ := b.RegionSignature(r0)
	rs1, _ := b.RegionSignature(r1)
	cs, err := b.CellSignature(c0)
	require.NoError(t, err)
	assert.True(t, scheme.Equal(scheme.Combine(rs0, rs1), cs))
	assert.True(t, scheme.Equal(scheme.Combine(rs1, rs0), cs))
}

func TestBuilder_Soundness(t *testing.T) {
	forEachScheme(t, schemeTests{
		stringset: testSoundness[*roaring.Bitmap],
		qgram:     testSoundness[*bitset.BitSet],
		minwise:   testSoundness[minwise.Signature],
	})
}

// testSoundness checks that every token of every item matches the item's
// signature and that the inserted signatures are the computed ones.
func testSoundness[S any](t *testing.T, newScheme func() signature.Scheme[S]) {
	st := gridStore(t, 7)
	scheme := newScheme()
	b := NewBuilder(st, scheme, WithWorkers(4), WithLogger(NoopLogger()))
	idx, err := b.Build(context.Background())
	require.NoError(t, err)

	for id := range uint32(st.Size()) {
		it, err := st.Item(id)
		require.NoError(t, err)
		sig, err := b.ItemSignature(id)
		require.NoError(t, err)
		for _, kv := range it.KV {
			tok := token.Normalized(kv.Key, kv.Value)
			require.True(t, scheme.MayHaveMatch(tok, signature.MatchOptions{})(sig), "item %d token %s", id, tok)
		}
		if len(it.Cells) == 0 {
			continue
		}
		n, err := idx.ItemNode(id)
		require.NoError(t, err)
		assert.True(t, scheme.Equal(sig, n.Signature))
	}
}

func TestBuilder_CellSignatureOrder(t *testing.T) {
	st := gridStore(t, 11)
	scheme := stringset.New()
	b := NewBuilder[*roaring.Bitmap](st, scheme, WithAncestorClosure(true), WithLogger(NoopLogger()))
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	h := st.Hierarchy()
	for c := range uint32(h.CellSize()) {
		regions, err := store.CellAncestors(h, c, true)
		require.NoError(t, err)

		var fwd, rev []*roaring.Bitmap
		for _, r := range regions {
			sig, err := b.RegionSignature(r)
			require.NoError(t, err)
			fwd = append(fwd, sig)
			rev = append([]*roaring.Bitmap{sig}, rev...)
		}
		cs, err := b.CellSignature(c)
		require.NoError(t, err)
		assert.True(t, scheme.Equal(signature.CombineAll[*roaring.Bitmap](scheme, fwd...), cs))
		assert.True(t, scheme.Equal(signature.CombineAll[*roaring.Bitmap](scheme, rev...), cs))
	}
}

func TestBuilder_InsertsOnce(t *testing.T) {
	st := gridStore(t, 3)
	metrics := &BasicMetricsCollector{}
	b := NewBuilder[*roaring.Bitmap](st, stringset.New(), WithMetricsCollector(metrics), WithLogger(NoopLogger()))
	idx, err := b.Build(context.Background())
	require.NoError(t, err)

	counts := make(map[uint32]int)
	idx.Tree().Find(nil, nil, func(id uint32) { counts[id]++ })

	withCells, spanning := 0, 0
	for id := range uint32(st.Size()) {
		it, err := st.Item(id)
		require.NoError(t, err)
		switch {
		case len(it.Cells) == 0:
			assert.Zero(t, counts[id], "item %d", id)
		default:
			withCells++
			if len(it.Cells) > 1 {
				spanning++
			}
			assert.Equal(t, 1, counts[id], "item %d", id)
		}
	}
	require.Positive(t, spanning, "grid must contain multi-cell items")
	assert.Equal(t, withCells, idx.Len())
	assert.Equal(t, withCells, b.Inserted())

	stats := metrics.GetStats()
	assert.Equal(t, int64(withCells), stats.InsertedItems)
	assert.Equal(t, int64(st.Hierarchy().CellSize()), stats.InsertedCells)
	assert.Zero(t, stats.StageErrors)
}

func TestBuilder_StageOrder(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder[*bitset.BitSet](cafeStore(t), qgram.New(), WithLogger(NoopLogger()))

	assert.ErrorIs(t, b.ComputeRegionSignatures(ctx), ErrStageOrder)
	assert.ErrorIs(t, b.ComputeCellSignatures(ctx), ErrStageOrder)
	assert.ErrorIs(t, b.Populate(ctx), ErrStageOrder)
	_, err := b.Index()
	assert.ErrorIs(t, err, ErrStageOrder)

	require.NoError(t, b.Train(ctx))
	_, err = b.RegionSignature(r0)
	assert.ErrorIs(t, err, ErrStageOrder)

	require.NoError(t, b.ComputeRegionSignatures(ctx))
	_, err = b.CellSignature(c0)
	assert.ErrorIs(t, err, ErrStageOrder)
	_, err = b.ItemSignature(i0)
	assert.ErrorIs(t, err, ErrStageOrder)
	assert.ErrorIs(t, b.Train(ctx), ErrStageOrder)

	require.NoError(t, b.ComputeCellSignatures(ctx))
	require.NoError(t, b.Populate(ctx))
	_, err = b.Index()
	require.NoError(t, err)

	_, err = b.Build(ctx)
	assert.ErrorIs(t, err, ErrBuilderUsed)

	_, err = b.RegionSignature(99)
	assert.ErrorIs(t, err, store.ErrOutOfRange)
}

// brokenStore has an item with a NaN boundary in cell 1. Its bounds are not
// contained in any node box, so the consistency check fails.
func brokenStore(t testing.TB) *store.Memory {
	t.Helper()
	b := store.NewMemoryBuilder()
	reg := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Land"}))
	cell0 := b.AddCell(geo.NewRect(0, 0, 1, 1), reg)
	cell1 := b.AddCell(geo.NewRect(1, 0, 2, 1), reg)
	b.Assign(b.AddItem(geo.Point(0.5, 0.5), store.KV{Key: "amenity", Value: "cafe"}), cell0)
	b.Assign(b.AddItem(geo.Point(math.NaN(), 0.5), store.KV{Key: "amenity", Value: "bar"}), cell1)
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestBuilder_CheckFailure(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}

	_, err := NewBuilder[*roaring.Bitmap](brokenStore(t), stringset.New(),
		WithCheck(true),
		WithMetricsCollector(metrics),
		WithLogger(NoopLogger()),
	).Build(ctx)
	require.Error(t, err)

	var ce *CreationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Cell)
	assert.ErrorIs(t, err, ErrInconsistentTree)
	assert.ErrorIs(t, err, rtree.ErrInconsistent)
	assert.Contains(t, err.Error(), "after cell 1")

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.CheckCount)
	assert.Equal(t, int64(1), stats.CheckFailures)

	t.Run("without check", func(t *testing.T) {
		idx, err := NewBuilder[*roaring.Bitmap](brokenStore(t), stringset.New(), WithLogger(NoopLogger())).Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, idx.Len())
	})
}

func TestCreationError(t *testing.T) {
	err := newCreationError(FinalCheck, rtree.ErrInconsistent)
	assert.Equal(t, "index creation failed after final check: tree failed consistency check: rtree: inconsistent tree", err.Error())
	assert.ErrorIs(t, err, ErrInconsistentTree)
}

func TestBuilder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder[*bitset.BitSet](gridStore(t, 1), qgram.New(), WithLogger(NoopLogger())).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
