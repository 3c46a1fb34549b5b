// Package oracle provides ground-truth token queries over a store.
//
// An oracle answers the question "which items carry this token" without
// using signatures or the spatial index. Results are broken down per cell
// the way a cell query result is: an item appears in the breakdown of every
// cell it belongs to, and items without any cell membership are never
// returned.
//
// A query is either a quoted literal token ("\"@amenity:cafe\""), matched
// exactly, or an unquoted string, matched as a token prefix. Both sides are
// passed through token.Normalize.
package oracle

import (
	"context"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sigtree/store"
	"github.com/hupe1980/sigtree/token"
)

// Oracle completes token queries.
type Oracle interface {
	Complete(ctx context.Context, query string) (*Result, error)
}

// Result is a completed query.
type Result struct {
	items     *roaring.Bitmap
	cells     []uint32
	cellItems []*roaring.Bitmap
}

// Flatten returns the ids of all matching items.
func (r *Result) Flatten() *roaring.Bitmap { return r.items.Clone() }

// CellCount returns the number of cells holding at least one match.
func (r *Result) CellCount() int { return len(r.cells) }

// CellID returns the id of the i-th cell, ascending in i.
func (r *Result) CellID(i int) uint32 { return r.cells[i] }

// Items returns the matching items of the i-th cell.
func (r *Result) Items(i int) *roaring.Bitmap { return r.cellItems[i].Clone() }

// doc is the oracle's view of an item.
type doc struct {
	id     uint32
	tokens []string
	cells  []uint32
}

// loadDocs reads every item of s that belongs to at least one cell.
func loadDocs(ctx context.Context, s store.Store) ([]doc, error) {
	docs := make([]doc, 0, s.Size())
	for i := range s.Size() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		it, err := s.Item(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		if len(it.Cells) == 0 {
			continue
		}
		d := doc{id: it.ID, cells: it.Cells, tokens: make([]string, 0, len(it.KV))}
		for _, kv := range it.KV {
			d.tokens = append(d.tokens, token.Normalized(kv.Key, kv.Value))
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// parseQuery returns the normalized query token and whether it must match
// exactly.
func parseQuery(q string) (string, bool) {
	s, quoted := token.Unquote(q)
	return token.Normalize(s), quoted
}

// resultBuilder assembles a Result from matching items.
type resultBuilder struct {
	items  *roaring.Bitmap
	byCell map[uint32]*roaring.Bitmap
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{items: roaring.New(), byCell: map[uint32]*roaring.Bitmap{}}
}

func (b *resultBuilder) add(item uint32, cells []uint32) {
	b.items.Add(item)
	for _, c := range cells {
		bm, ok := b.byCell[c]
		if !ok {
			bm = roaring.New()
			b.byCell[c] = bm
		}
		bm.Add(item)
	}
}

func (b *resultBuilder) result() *Result {
	r := &Result{items: b.items, cells: make([]uint32, 0, len(b.byCell))}
	for c := range b.byCell {
		r.cells = append(r.cells, c)
	}
	slices.Sort(r.cells)
	r.cellItems = make([]*roaring.Bitmap, len(r.cells))
	for i, c := range r.cells {
		r.cellItems[i] = b.byCell[c]
	}
	return r
}
