package sigtree

import (
	"bytes"
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/sigtree/blobstore"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/rtree"
	"github.com/hupe1980/sigtree/signature"
	"github.com/hupe1980/sigtree/signature/minwise"
	"github.com/hupe1980/sigtree/signature/qgram"
	"github.com/hupe1980/sigtree/signature/stringset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_MatchingItemsAgreesWithFind(t *testing.T) {
	st := gridStore(t, 5)
	scheme := stringset.New()
	idx, err := NewBuilder[*roaring.Bitmap](st, scheme, WithLogger(NoopLogger())).Build(context.Background())
	require.NoError(t, err)

	areas := []geo.Rect{
		st.Bounds(),
		geo.NewRect(0, 0, 1, 1),
		geo.NewRect(2.5, 1.5, 3.5, 2.5),
		geo.NewRect(100, 100, 101, 101),
	}
	for _, tok := range []string{"@amenity:cafe", "@shop:bakery", "@name:zum löwen", "@unknown:x"} {
		sp := scheme.MayHaveMatch(tok, signature.MatchOptions{})
		for _, area := range areas {
			gp := geo.MayHaveMatch(area)
			assert.True(t, idx.MatchingItems(gp, sp).Equals(idx.Find(gp, sp)), "%s in %v", tok, area)
		}
	}
	assert.Equal(t, uint64(idx.Len()), idx.MatchingItems(nil, nil).GetCardinality())
}

func TestIndex_PrefixQuery(t *testing.T) {
	st := cafeStore(t)
	idx, err := NewBuilder[*bitset.BitSet](st, qgram.New(), WithLogger(NoopLogger())).Build(context.Background())
	require.NoError(t, err)

	got := idx.Query(st.Bounds(), "@amenity:ca", signature.MatchOptions{Prefix: true})
	assert.True(t, got.Contains(i0))
}

func TestIndex_Serialize(t *testing.T) {
	ctx := context.Background()
	st := gridStore(t, 9)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			idx, err := NewBuilder[*bitset.BitSet](st, qgram.New(), WithCompression(c), WithLogger(NoopLogger())).Build(ctx)
			require.NoError(t, err)

			var treeBuf, traitsBuf bytes.Buffer
			require.NoError(t, idx.Serialize(&treeBuf, &traitsBuf))

			ok, err := idx.EqualSerialized(bytes.NewReader(treeBuf.Bytes()), bytes.NewReader(traitsBuf.Bytes()))
			require.NoError(t, err)
			assert.True(t, ok)

			traits, err := ReadTraits(bytes.NewReader(traitsBuf.Bytes()))
			require.NoError(t, err)
			restored, err := qgram.UnmarshalBinary(traits)
			require.NoError(t, err)

			tree, err := ReadTree(bytes.NewReader(treeBuf.Bytes()), signature.Scheme[*bitset.BitSet](restored))
			require.NoError(t, err)
			assert.True(t, rtree.Equal(idx.Tree(), tree))
			assert.True(t, tree.SignaturesValid())
		})
	}
}

func TestIndex_EqualSerialized_Different(t *testing.T) {
	ctx := context.Background()

	build := func(seed int64) *Index[minwise.Signature] {
		s, err := minwise.New()
		require.NoError(t, err)
		idx, err := NewBuilder[minwise.Signature](gridStore(t, seed), s, WithLogger(NoopLogger())).Build(ctx)
		require.NoError(t, err)
		return idx
	}
	a, b := build(1), build(2)

	var treeBuf, traitsBuf bytes.Buffer
	require.NoError(t, b.Serialize(&treeBuf, &traitsBuf))

	ok, err := a.EqualSerialized(bytes.NewReader(treeBuf.Bytes()), bytes.NewReader(traitsBuf.Bytes()))
	require.NoError(t, err)
	assert.False(t, ok, "same traits, different tree")
}

func TestIndex_EqualSerialized_Corrupt(t *testing.T) {
	idx, err := NewBuilder[*roaring.Bitmap](cafeStore(t), stringset.New(), WithLogger(NoopLogger())).Build(context.Background())
	require.NoError(t, err)

	var treeBuf, traitsBuf bytes.Buffer
	require.NoError(t, idx.Serialize(&treeBuf, &traitsBuf))

	tree := treeBuf.Bytes()
	_, err = idx.EqualSerialized(bytes.NewReader(tree[:len(tree)-3]), bytes.NewReader(traitsBuf.Bytes()))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = idx.EqualSerialized(bytes.NewReader(tree), bytes.NewReader([]byte("junk")))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestIndex_SaveToBlobStore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	idx, err := NewBuilder[*roaring.Bitmap](gridStore(t, 4), stringset.New(),
		WithCompression(CompressionLZ4),
		WithLogger(NoopLogger()),
	).Build(ctx)
	require.NoError(t, err)

	require.NoError(t, idx.Save(ctx, bs, "grid"))

	names, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{TraitsBlob("grid"), TreeBlob("grid")}, names)

	ok, err := idx.EqualStored(ctx, bs, "grid")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = idx.EqualStored(ctx, bs, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestIndex_Publish(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	build := func(seed int64) *Index[*roaring.Bitmap] {
		idx, err := NewBuilder[*roaring.Bitmap](gridStore(t, seed), stringset.New(),
			WithLogger(NoopLogger()),
		).Build(ctx)
		require.NoError(t, err)
		return idx
	}

	_, err := ReadCurrent(ctx, bs, "grid")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	first := build(1)
	v1, err := first.Publish(ctx, bs, "grid")
	require.NoError(t, err)
	assert.Equal(t, "grid-"+first.BuildID(), v1)

	second := build(2)
	v2, err := second.Publish(ctx, bs, "grid")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	current, err := ReadCurrent(ctx, bs, "grid")
	require.NoError(t, err)
	assert.Equal(t, v2, current)

	ok, err := second.EqualStored(ctx, bs, current)
	require.NoError(t, err)
	assert.True(t, ok)

	// Older versions stay readable.
	ok, err = first.EqualStored(ctx, bs, v1)
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := bs.List(ctx, "grid")
	require.NoError(t, err)
	assert.Len(t, names, 5)
	assert.Contains(t, names, CurrentBlob("grid"))
}
