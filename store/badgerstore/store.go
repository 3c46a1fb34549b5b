package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/internal/cache"
	"github.com/hupe1980/sigtree/store"
)

// ErrNotImported is returned by Open for databases without a store.
var ErrNotImported = errors.New("badgerstore: database holds no store")

const metaKind = "sigtree.store.meta"

var (
	metaKey    = []byte("meta")
	itemPrefix = []byte("i/")
)

func itemKey(id uint32) []byte {
	k := make([]byte, 0, len(itemPrefix)+4)
	k = append(k, itemPrefix...)
	return binary.BigEndian.AppendUint32(k, id)
}

type meta struct {
	Codec     string                `json:"codec"`
	Size      int                   `json:"size"`
	Bounds    *store.Box            `json:"bounds,omitempty"`
	Keys      []string              `json:"keys"`
	Values    []string              `json:"values"`
	Stats     []store.KVStat        `json:"stats"`
	Regions   []store.DatasetRegion `json:"regions"`
	Cells     []store.DatasetCell   `json:"cells"`
	CellItems [][]uint32            `json:"cell_items"`
}

type record struct {
	Keys     []uint32   `json:"k,omitempty"`
	Values   []uint32   `json:"v,omitempty"`
	Boundary *store.Box `json:"b,omitempty"`
	Cells    []uint32   `json:"c,omitempty"`
}

// Import writes s into db using c (codec.Default if nil) for the records.
// Existing records with the same keys are overwritten.
func Import(ctx context.Context, db *badger.DB, s store.Store, c codec.Codec) error {
	if c == nil {
		c = codec.Default
	}
	keys, values := s.Keys(), s.Values()

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	for i := range s.Size() {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		it, err := s.Item(uint32(i))
		if err != nil {
			return err
		}
		rec := record{Boundary: store.BoxOf(it.Boundary), Cells: it.Cells}
		for _, kv := range it.KV {
			k, ok := keys.Lookup(kv.Key)
			v, ok2 := values.Lookup(kv.Value)
			if !ok || !ok2 {
				return fmt.Errorf("badgerstore: item %d: pair %s=%s missing from string tables", i, kv.Key, kv.Value)
			}
			rec.Keys = append(rec.Keys, k)
			rec.Values = append(rec.Values, v)
		}
		data, err := c.Marshal(rec)
		if err != nil {
			return fmt.Errorf("badgerstore: encode item %d: %w", i, err)
		}
		if err := wb.Set(itemKey(uint32(i)), data); err != nil {
			return fmt.Errorf("badgerstore: write item %d: %w", i, err)
		}
	}

	h := s.Hierarchy()
	m := meta{
		Codec:     c.Name(),
		Size:      s.Size(),
		Bounds:    store.BoxOf(s.Bounds()),
		Keys:      keys.Strings(),
		Values:    values.Strings(),
		Stats:     s.TopKV(-1),
		Regions:   make([]store.DatasetRegion, h.RegionSize()),
		Cells:     make([]store.DatasetCell, h.CellSize()),
		CellItems: make([][]uint32, h.CellSize()),
	}
	for r := range m.Regions {
		reg, err := h.Region(uint32(r))
		if err != nil {
			return err
		}
		m.Regions[r] = store.DatasetRegion{Item: reg.Item, Parents: reg.Parents}
	}
	for cid := range m.Cells {
		cell, err := h.Cell(uint32(cid))
		if err != nil {
			return err
		}
		items, err := h.CellItems(uint32(cid))
		if err != nil {
			return err
		}
		m.Cells[cid] = store.DatasetCell{Boundary: store.BoxOf(cell.Boundary), Parents: cell.Parents}
		m.CellItems[cid] = items
	}

	data, err := codec.Seal(c, metaKind, m)
	if err != nil {
		return err
	}
	if err := wb.Set(metaKey, data); err != nil {
		return fmt.Errorf("badgerstore: write metadata: %w", err)
	}
	return wb.Flush()
}

// Store is a store.Store backed by a badger database.
type Store struct {
	db        *badger.DB
	codec     codec.Codec
	size      int
	bounds    geo.Rect
	keys      *store.StringTable
	values    *store.StringTable
	stats     []store.KVStat
	regions   []store.Region
	cells     []store.Cell
	cellItems [][]uint32

	items *cache.Sharded[store.Item] // nil disables caching
}

// OpenOptions configures Open.
type OpenOptions struct {
	// ItemCacheSize is the number of decoded items kept in memory.
	// 0 reads every item from the database.
	ItemCacheSize int
}

// WithItemCache keeps up to n decoded items in an LRU cache.
func WithItemCache(n int) func(o *OpenOptions) {
	return func(o *OpenOptions) { o.ItemCacheSize = n }
}

var (
	_ store.Store        = (*Store)(nil)
	_ store.GeoHierarchy = (*Store)(nil)
)

// Open energizes the store held in db. The database must stay open for the
// lifetime of the returned Store.
func Open(db *badger.DB, optFns ...func(o *OpenOptions)) (*Store, error) {
	var opts OpenOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	var raw []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotImported
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: read metadata: %w", err)
	}

	var m meta
	if err := codec.Open(raw, metaKind, &m); err != nil {
		return nil, fmt.Errorf("badgerstore: decode metadata: %w", err)
	}
	c, err := codec.Lookup(m.Codec)
	if err != nil {
		return nil, err
	}
	if len(m.CellItems) != len(m.Cells) {
		return nil, fmt.Errorf("badgerstore: metadata lists %d cells but %d cell item lists", len(m.Cells), len(m.CellItems))
	}

	s := &Store{
		db:        db,
		codec:     c,
		size:      m.Size,
		bounds:    m.Bounds.Rect(),
		keys:      store.NewStringTable(m.Keys...),
		values:    store.NewStringTable(m.Values...),
		stats:     m.Stats,
		regions:   make([]store.Region, len(m.Regions)),
		cells:     make([]store.Cell, len(m.Cells)),
		cellItems: m.CellItems,
	}
	if opts.ItemCacheSize > 0 {
		s.items = cache.NewSharded[store.Item](opts.ItemCacheSize)
	}
	for i, r := range m.Regions {
		s.regions[i] = store.Region{Item: r.Item, Parents: r.Parents}
	}
	for i, cell := range m.Cells {
		s.cells[i] = store.Cell{Boundary: cell.Boundary.Rect(), Parents: cell.Parents}
	}
	return s, nil
}

// Size implements store.Store.
func (s *Store) Size() int { return s.size }

// Item implements store.Store. Without an item cache every call reads the
// record from the database. Cached items share their slices between
// callers and must not be modified.
func (s *Store) Item(id uint32) (store.Item, error) {
	if int(id) >= s.size {
		return store.Item{}, fmt.Errorf("%w: item %d", store.ErrOutOfRange, id)
	}
	if s.items != nil {
		if it, ok := s.items.Get(id); ok {
			return it, nil
		}
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(itemKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return store.Item{}, fmt.Errorf("badgerstore: read item %d: %w", id, err)
	}

	var rec record
	if err := s.codec.Unmarshal(raw, &rec); err != nil {
		return store.Item{}, fmt.Errorf("badgerstore: decode item %d: %w", id, err)
	}
	if len(rec.Keys) != len(rec.Values) {
		return store.Item{}, fmt.Errorf("badgerstore: item %d has %d keys but %d values", id, len(rec.Keys), len(rec.Values))
	}

	out := store.Item{ID: id, Boundary: rec.Boundary.Rect(), Cells: rec.Cells}
	if len(rec.Keys) > 0 {
		out.KV = make([]store.KV, len(rec.Keys))
		for i := range rec.Keys {
			out.KV[i] = store.KV{Key: s.keys.At(rec.Keys[i]), Value: s.values.At(rec.Values[i])}
		}
	}
	if s.items != nil {
		s.items.Set(id, out)
	}
	return out, nil
}

// CacheStats returns the item cache hit/miss counts.
func (s *Store) CacheStats() (hits, misses int64) {
	if s.items == nil {
		return 0, 0
	}
	return s.items.Stats()
}

// Bounds implements store.Store.
func (s *Store) Bounds() geo.Rect { return s.bounds }

// Keys implements store.Store.
func (s *Store) Keys() *store.StringTable { return s.keys }

// Values implements store.Store.
func (s *Store) Values() *store.StringTable { return s.values }

// TopKV implements store.Store.
func (s *Store) TopKV(k int) []store.KVStat { return store.TopK(s.stats, k) }

// Hierarchy implements store.Store.
func (s *Store) Hierarchy() store.GeoHierarchy { return s }

// RegionSize implements store.GeoHierarchy.
func (s *Store) RegionSize() int { return len(s.regions) }

// CellSize implements store.GeoHierarchy.
func (s *Store) CellSize() int { return len(s.cells) }

// Region implements store.GeoHierarchy.
func (s *Store) Region(id uint32) (store.Region, error) {
	if int(id) >= len(s.regions) {
		return store.Region{}, fmt.Errorf("%w: region %d", store.ErrOutOfRange, id)
	}
	return s.regions[id], nil
}

// Cell implements store.GeoHierarchy.
func (s *Store) Cell(id uint32) (store.Cell, error) {
	if int(id) >= len(s.cells) {
		return store.Cell{}, fmt.Errorf("%w: cell %d", store.ErrOutOfRange, id)
	}
	return s.cells[id], nil
}

// CellItems implements store.GeoHierarchy.
func (s *Store) CellItems(id uint32) ([]uint32, error) {
	if int(id) >= len(s.cellItems) {
		return nil, fmt.Errorf("%w: cell %d", store.ErrOutOfRange, id)
	}
	return s.cellItems[id], nil
}
