package testutil

import (
	"fmt"

	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/store"
)

// Grid configures a synthetic store: a country region, one district region
// per block of cells and a Cols x Rows grid of unit cells holding random
// items.
type Grid struct {
	Cols, Rows int

	// Block is the edge length (in cells) of the square covered by one
	// district region.
	Block int

	// ItemsPerCell is the mean number of items placed in a cell.
	ItemsPerCell int

	// Spanning is the fraction of items that extend into the neighbouring
	// cell to the right and are assigned to both cells.
	Spanning float64

	// KVPerItem is the maximum number of key/value pairs per item.
	KVPerItem int

	// Skew of the Zipf distribution over keys and values.
	Skew float64
}

// DefaultGrid is a small grid suitable for unit tests.
var DefaultGrid = Grid{
	Cols:         6,
	Rows:         4,
	Block:        2,
	ItemsPerCell: 12,
	Spanning:     0.1,
	KVPerItem:    3,
	Skew:         1.2,
}

var (
	gridKeys   = []string{"amenity", "shop", "highway", "name", "building", "cuisine", "tourism", "leisure"}
	gridValues = []string{
		"cafe", "restaurant", "bakery", "primary", "residential", "yes",
		"Kaffeehaus", "Zum Löwen", "ÄRZTEHAUS", "pizza", "museum", "park",
		"supermarket", "bench", "Straße", "hotel",
	}
)

// NewGrid generates a store following g. The same RNG seed yields the same
// store.
func NewGrid(rng *RNG, g Grid) (*store.Memory, error) {
	if g.Cols < 1 || g.Rows < 1 || g.Block < 1 {
		return nil, fmt.Errorf("testutil: invalid grid %dx%d block %d", g.Cols, g.Rows, g.Block)
	}
	b := store.NewMemoryBuilder()

	country := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Land"}, store.KV{Key: "boundary", Value: "administrative"}))

	bx := (g.Cols + g.Block - 1) / g.Block
	by := (g.Rows + g.Block - 1) / g.Block
	districts := make([]uint32, bx*by)
	for i := range districts {
		item := b.AddItem(geo.Empty(), store.KV{Key: "name", Value: fmt.Sprintf("Bezirk %d", i)})
		districts[i] = b.AddRegion(item, country)
	}

	cells := make([]uint32, g.Cols*g.Rows)
	for y := range g.Rows {
		for x := range g.Cols {
			d := districts[(y/g.Block)*bx+x/g.Block]
			cells[y*g.Cols+x] = b.AddCell(geo.NewRect(float64(x), float64(y), float64(x+1), float64(y+1)), d)
		}
	}

	for y := range g.Rows {
		for x := range g.Cols {
			c := cells[y*g.Cols+x]
			n := rng.Intn(2*g.ItemsPerCell + 1)
			for range n {
				px, py := rng.Uniform(float64(x), float64(x+1)), rng.Uniform(float64(y), float64(y+1))
				span := x+1 < g.Cols && rng.Float64() < g.Spanning

				boundary := geo.Point(px, py)
				if span {
					boundary = geo.NewRect(px, py, rng.Uniform(float64(x+1), float64(x+2)), py)
				}
				id := b.AddItem(boundary, randomKV(rng, g)...)
				if span {
					b.Assign(id, c, cells[y*g.Cols+x+1])
				} else {
					b.Assign(id, c)
				}
			}
		}
	}
	return b.Build()
}

func randomKV(rng *RNG, g Grid) []store.KV {
	n := 1 + rng.Intn(max(g.KVPerItem, 1))
	keys := rng.Sample(len(gridKeys), n)
	kv := make([]store.KV, len(keys))
	for i, k := range keys {
		kv[i] = store.KV{Key: gridKeys[k], Value: gridValues[rng.Zipf(len(gridValues), g.Skew)]}
	}
	return kv
}
