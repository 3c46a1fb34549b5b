// Package store defines the item store and geo-hierarchy consumed by the
// index builder, together with an in-memory implementation and a JSON
// dataset format.
//
// Regions and items share one id space: every region is backed by a store
// item (GeoHierarchy.RegionItem) carrying the region's own key/value pairs.
// Cells are the leaves of the hierarchy; every item lists the cells it
// belongs to and every cell lists its items in ascending order.
package store

import (
	"errors"

	"github.com/hupe1980/sigtree/geo"
)

var (
	// ErrOutOfRange is returned for item, region or cell ids beyond the
	// store's size.
	ErrOutOfRange = errors.New("store: id out of range")

	// ErrInvalidDataset is returned when a dataset references unknown
	// regions, cells or items.
	ErrInvalidDataset = errors.New("store: invalid dataset")
)

// KV is one key/value pair of an item.
type KV struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Item is the record of one store item.
type Item struct {
	ID       uint32
	KV       []KV
	Boundary geo.Rect
	Cells    []uint32
}

// KVStat counts the items carrying a key/value pair. KeyID and ValueID index
// the store's key and value string tables.
type KVStat struct {
	KeyID   uint32
	ValueID uint32
	Count   uint32
}

// Region is a node of the region DAG.
type Region struct {
	// Item is the store item backing the region.
	Item    uint32
	Parents []uint32
}

// Cell is a leaf partition of the covered area.
type Cell struct {
	// Parents lists the ancestor regions of the cell.
	Parents  []uint32
	Boundary geo.Rect
}

// GeoHierarchy exposes regions, cells and cell item lists.
type GeoHierarchy interface {
	RegionSize() int
	CellSize() int
	Region(id uint32) (Region, error)
	Cell(id uint32) (Cell, error)
	// CellItems returns the ids of the items in the cell, ascending.
	CellItems(id uint32) ([]uint32, error)
}

// Store is a read-only item store.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Size returns the number of items; valid ids are [0, Size()).
	Size() int
	Item(id uint32) (Item, error)
	// Bounds returns the union of all item boundaries.
	Bounds() geo.Rect
	Keys() *StringTable
	Values() *StringTable
	// TopKV returns the k most frequent key/value pairs, most frequent first.
	TopKV(k int) []KVStat
	Hierarchy() GeoHierarchy
}

// RegionItem returns the store item backing region r.
func RegionItem(h GeoHierarchy, r uint32) (uint32, error) {
	reg, err := h.Region(r)
	if err != nil {
		return 0, err
	}
	return reg.Item, nil
}

// CellAncestors returns the regions whose signatures flow into cell c.
// Without closure these are the cell's listed parents. With closure the
// region DAG is walked upward and every reachable region is returned once,
// in ascending order.
func CellAncestors(h GeoHierarchy, c uint32, closure bool) ([]uint32, error) {
	cell, err := h.Cell(c)
	if err != nil {
		return nil, err
	}
	if !closure {
		return cell.Parents, nil
	}

	seen := make(map[uint32]struct{}, len(cell.Parents))
	stack := append([]uint32(nil), cell.Parents...)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		reg, err := h.Region(r)
		if err != nil {
			return nil, err
		}
		stack = append(stack, reg.Parents...)
	}

	out := make([]uint32, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sortIDs(out)
	return out, nil
}
