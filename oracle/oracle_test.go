package oracle

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) store.Store {
	t.Helper()
	b := store.NewMemoryBuilder()
	r0 := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Cafe Land"}))
	c0 := b.AddCell(geo.NewRect(0, 0, 1, 1), r0)
	c1 := b.AddCell(geo.NewRect(1, 0, 2, 1), r0)

	i1 := b.AddItem(geo.Point(0.5, 0.5), store.KV{Key: "amenity", Value: "Cafe"})
	i2 := b.AddItem(geo.NewRect(0.5, 0.5, 1.5, 0.5), store.KV{Key: "amenity", Value: "cafe"}, store.KV{Key: "name", Value: "Brücke"})
	i3 := b.AddItem(geo.Point(1.5, 0.5), store.KV{Key: "amenity", Value: "car_wash"})
	i4 := b.AddItem(geo.Point(1.6, 0.5))
	b.AddItem(geo.Point(9, 9), store.KV{Key: "amenity", Value: "cafe"}) // no cell
	b.Assign(i1, c0)
	b.Assign(i2, c0, c1)
	b.Assign(i3, c1)
	b.Assign(i4, c1)

	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func oracles(t *testing.T, s store.Store) map[string]Oracle {
	t.Helper()
	ctx := context.Background()

	scan, err := NewScan(ctx, s)
	require.NoError(t, err)

	bl, err := NewBleve(ctx, s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bl.Close() })

	return map[string]Oracle{"scan": scan, "bleve": bl}
}

func TestOracle_Complete(t *testing.T) {
	s := sample(t)

	tests := []struct {
		query string
		items []uint32
		cells map[uint32][]uint32
	}{
		{
			query: `"@amenity:cafe"`,
			items: []uint32{1, 2},
			cells: map[uint32][]uint32{0: {1, 2}, 1: {2}},
		},
		{
			query: `"@AMENITY:Cafe"`,
			items: []uint32{1, 2},
			cells: map[uint32][]uint32{0: {1, 2}, 1: {2}},
		},
		{
			query: `@amenity:ca`,
			items: []uint32{1, 2, 3},
			cells: map[uint32][]uint32{0: {1, 2}, 1: {2, 3}},
		},
		{
			query: `"@name:brücke"`,
			items: []uint32{2},
			cells: map[uint32][]uint32{0: {2}, 1: {2}},
		},
		{
			query: `"@amenity:ca"`,
			items: nil,
			cells: map[uint32][]uint32{},
		},
		{
			// Region items are not in any cell.
			query: `"@name:cafe land"`,
			items: nil,
			cells: map[uint32][]uint32{},
		},
	}

	for name, o := range oracles(t, s) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.query, func(t *testing.T) {
				res, err := o.Complete(context.Background(), tt.query)
				require.NoError(t, err)

				assert.Equal(t, roaring.BitmapOf(tt.items...).ToArray(), res.Flatten().ToArray())
				require.Equal(t, len(tt.cells), res.CellCount())
				for i := range res.CellCount() {
					if i > 0 {
						assert.Less(t, res.CellID(i-1), res.CellID(i))
					}
					want, ok := tt.cells[res.CellID(i)]
					require.True(t, ok, "unexpected cell %d", res.CellID(i))
					assert.Equal(t, want, res.Items(i).ToArray())
				}
			})
		}
	}
}

func TestOracle_ResultIsolation(t *testing.T) {
	for name, o := range oracles(t, sample(t)) {
		t.Run(name, func(t *testing.T) {
			res, err := o.Complete(context.Background(), `"@amenity:cafe"`)
			require.NoError(t, err)

			res.Flatten().Add(100)
			res.Items(0).Add(100)
			assert.False(t, res.Flatten().Contains(100))
			assert.False(t, res.Items(0).Contains(100))
		})
	}
}

func TestBleve_Paging(t *testing.T) {
	b := store.NewMemoryBuilder()
	r := b.AddRegion(b.AddItem(geo.Empty()))
	c := b.AddCell(geo.NewRect(0, 0, 1, 1), r)
	const n = 2*pageSize + 17
	for range n {
		b.Assign(b.AddItem(geo.Point(0.5, 0.5), store.KV{Key: "amenity", Value: "bench"}), c)
	}
	s, err := b.Build()
	require.NoError(t, err)

	o, err := NewBleve(context.Background(), s)
	require.NoError(t, err)
	defer o.Close()

	count, err := o.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(n), count)

	res, err := o.Complete(context.Background(), `"@amenity:bench"`)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), res.Flatten().GetCardinality())
	assert.Equal(t, 1, res.CellCount())
}

func TestNewBleve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBleve(ctx, sample(t))
	assert.ErrorIs(t, err, context.Canceled)
}
