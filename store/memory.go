package store

import (
	"fmt"
	"slices"

	"github.com/hupe1980/sigtree/geo"
)

// Memory is an immutable in-memory Store and GeoHierarchy.
type Memory struct {
	items     []Item
	regions   []Region
	cells     []Cell
	cellItems [][]uint32
	keys      *StringTable
	values    *StringTable
	stats     []KVStat
	bounds    geo.Rect
}

var (
	_ Store        = (*Memory)(nil)
	_ GeoHierarchy = (*Memory)(nil)
)

// Size implements Store.
func (m *Memory) Size() int { return len(m.items) }

// Item implements Store.
func (m *Memory) Item(id uint32) (Item, error) {
	if int(id) >= len(m.items) {
		return Item{}, fmt.Errorf("%w: item %d", ErrOutOfRange, id)
	}
	return m.items[id], nil
}

// Bounds implements Store.
func (m *Memory) Bounds() geo.Rect { return m.bounds }

// Keys implements Store.
func (m *Memory) Keys() *StringTable { return m.keys }

// Values implements Store.
func (m *Memory) Values() *StringTable { return m.values }

// TopKV implements Store.
func (m *Memory) TopKV(k int) []KVStat { return TopK(m.stats, k) }

// Hierarchy implements Store.
func (m *Memory) Hierarchy() GeoHierarchy { return m }

// RegionSize implements GeoHierarchy.
func (m *Memory) RegionSize() int { return len(m.regions) }

// CellSize implements GeoHierarchy.
func (m *Memory) CellSize() int { return len(m.cells) }

// Region implements GeoHierarchy.
func (m *Memory) Region(id uint32) (Region, error) {
	if int(id) >= len(m.regions) {
		return Region{}, fmt.Errorf("%w: region %d", ErrOutOfRange, id)
	}
	return m.regions[id], nil
}

// Cell implements GeoHierarchy.
func (m *Memory) Cell(id uint32) (Cell, error) {
	if int(id) >= len(m.cells) {
		return Cell{}, fmt.Errorf("%w: cell %d", ErrOutOfRange, id)
	}
	return m.cells[id], nil
}

// CellItems implements GeoHierarchy.
func (m *Memory) CellItems(id uint32) ([]uint32, error) {
	if int(id) >= len(m.cellItems) {
		return nil, fmt.Errorf("%w: cell %d", ErrOutOfRange, id)
	}
	return m.cellItems[id], nil
}

// MemoryBuilder assembles a Memory store.
//
//	b := store.NewMemoryBuilder()
//	r0 := b.AddRegion(b.AddItem(geo.Empty(), store.KV{Key: "name", Value: "Germany"}))
//	c0 := b.AddCell(geo.NewRect(0, 0, 1, 1), r0)
//	b.AddItem(geo.Point(0.5, 0.5), store.KV{Key: "amenity", Value: "cafe"})
//	b.Assign(1, c0)
//	s, err := b.Build()
type MemoryBuilder struct {
	items   []Item
	regions []Region
	cells   []Cell
}

// NewMemoryBuilder creates an empty builder.
func NewMemoryBuilder() *MemoryBuilder {
	return &MemoryBuilder{}
}

// AddItem adds an item and returns its id.
func (b *MemoryBuilder) AddItem(boundary geo.Rect, kv ...KV) uint32 {
	id := uint32(len(b.items))
	b.items = append(b.items, Item{ID: id, KV: slices.Clone(kv), Boundary: boundary})
	return id
}

// AddRegion adds a region backed by the given item and returns its id.
func (b *MemoryBuilder) AddRegion(item uint32, parents ...uint32) uint32 {
	id := uint32(len(b.regions))
	b.regions = append(b.regions, Region{Item: item, Parents: slices.Clone(parents)})
	return id
}

// AddCell adds a cell with the given ancestor regions and returns its id.
func (b *MemoryBuilder) AddCell(boundary geo.Rect, parents ...uint32) uint32 {
	id := uint32(len(b.cells))
	b.cells = append(b.cells, Cell{Boundary: boundary, Parents: slices.Clone(parents)})
	return id
}

// Assign adds the item to the given cells.
func (b *MemoryBuilder) Assign(item uint32, cells ...uint32) {
	if int(item) < len(b.items) {
		b.items[item].Cells = append(b.items[item].Cells, cells...)
	}
}

// Build validates all references and returns the store. Cell item lists,
// string tables, KV statistics and bounds are derived from the items.
func (b *MemoryBuilder) Build() (*Memory, error) {
	m := &Memory{
		items:     make([]Item, len(b.items)),
		regions:   slices.Clone(b.regions),
		cells:     slices.Clone(b.cells),
		cellItems: make([][]uint32, len(b.cells)),
		keys:      NewStringTable(),
		values:    NewStringTable(),
		bounds:    geo.Empty(),
	}

	for r, reg := range m.regions {
		if int(reg.Item) >= len(b.items) {
			return nil, fmt.Errorf("%w: region %d backed by unknown item %d", ErrInvalidDataset, r, reg.Item)
		}
		for _, p := range reg.Parents {
			if int(p) >= len(m.regions) {
				return nil, fmt.Errorf("%w: region %d has unknown parent %d", ErrInvalidDataset, r, p)
			}
		}
	}
	for c, cell := range m.cells {
		for _, p := range cell.Parents {
			if int(p) >= len(m.regions) {
				return nil, fmt.Errorf("%w: cell %d has unknown parent region %d", ErrInvalidDataset, c, p)
			}
		}
	}

	counts := kvCounter{}
	for i, it := range b.items {
		cells := slices.Clone(it.Cells)
		slices.Sort(cells)
		cells = slices.Compact(cells)
		for _, c := range cells {
			if int(c) >= len(m.cells) {
				return nil, fmt.Errorf("%w: item %d in unknown cell %d", ErrInvalidDataset, i, c)
			}
			m.cellItems[c] = append(m.cellItems[c], uint32(i))
		}
		for _, kv := range it.KV {
			counts.add(m.keys.Intern(kv.Key), m.values.Intern(kv.Value))
		}
		m.bounds = m.bounds.Union(it.Boundary)
		m.items[i] = Item{ID: uint32(i), KV: it.KV, Boundary: it.Boundary, Cells: cells}
	}
	m.stats = counts.sorted()
	return m, nil
}
