package oracle

import (
	"context"
	"slices"
	"strings"

	"github.com/hupe1980/sigtree/store"
)

// Scan is a brute force oracle that checks every item on every query.
type Scan struct {
	docs []doc
}

var _ Oracle = (*Scan)(nil)

// NewScan reads all items of s.
func NewScan(ctx context.Context, s store.Store) (*Scan, error) {
	docs, err := loadDocs(ctx, s)
	if err != nil {
		return nil, err
	}
	return &Scan{docs: docs}, nil
}

// Complete implements Oracle.
func (o *Scan) Complete(ctx context.Context, query string) (*Result, error) {
	q, exact := parseQuery(query)
	b := newResultBuilder()
	for _, d := range o.docs {
		var hit bool
		if exact {
			hit = slices.Contains(d.tokens, q)
		} else {
			hit = slices.ContainsFunc(d.tokens, func(t string) bool { return strings.HasPrefix(t, q) })
		}
		if hit {
			b.add(d.id, d.cells)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.result(), nil
}
