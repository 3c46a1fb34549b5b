package oracle

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/hupe1980/sigtree/store"
)

const (
	tokensField = "tokens"
	batchSize   = 1000
	pageSize    = 1000
)

// Bleve is an oracle backed by an in-memory bleve index holding one
// document per item. Tokens are indexed verbatim with the keyword analyzer.
type Bleve struct {
	index bleve.Index
	cells map[uint32][]uint32
}

var _ Oracle = (*Bleve)(nil)

type bleveDoc struct {
	Tokens []string `json:"tokens"`
}

// NewBleve indexes all items of s that belong to at least one cell.
func NewBleve(ctx context.Context, s store.Store) (*Bleve, error) {
	docs, err := loadDocs(ctx, s)
	if err != nil {
		return nil, err
	}

	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	fm.Store = false
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false

	dm := bleve.NewDocumentStaticMapping()
	dm.AddFieldMappingsAt(tokensField, fm)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = dm
	im.DefaultAnalyzer = keyword.Name

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("oracle: create bleve index: %w", err)
	}

	o := &Bleve{index: index, cells: make(map[uint32][]uint32, len(docs))}
	batch := index.NewBatch()
	for _, d := range docs {
		o.cells[d.id] = d.cells
		if len(d.tokens) == 0 {
			continue
		}
		if err := batch.Index(strconv.FormatUint(uint64(d.id), 10), bleveDoc{Tokens: d.tokens}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("oracle: index item %d: %w", d.id, err)
		}
		if batch.Size() >= batchSize {
			if err := o.flush(ctx, batch); err != nil {
				return nil, err
			}
			batch.Reset()
		}
	}
	if err := o.flush(ctx, batch); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Bleve) flush(ctx context.Context, batch *bleve.Batch) error {
	if err := ctx.Err(); err != nil {
		_ = o.index.Close()
		return err
	}
	if err := o.index.Batch(batch); err != nil {
		_ = o.index.Close()
		return fmt.Errorf("oracle: index batch: %w", err)
	}
	return nil
}

// Complete implements Oracle.
func (o *Bleve) Complete(ctx context.Context, q string) (*Result, error) {
	tok, exact := parseQuery(q)

	var bq query.Query
	if exact {
		tq := bleve.NewTermQuery(tok)
		tq.SetField(tokensField)
		bq = tq
	} else {
		pq := bleve.NewPrefixQuery(tok)
		pq.SetField(tokensField)
		bq = pq
	}

	b := newResultBuilder()
	for from := 0; ; from += pageSize {
		req := bleve.NewSearchRequestOptions(bq, pageSize, from, false)
		req.SortBy([]string{"_id"})

		res, err := o.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("oracle: search %s: %w", q, err)
		}
		for _, hit := range res.Hits {
			id, err := strconv.ParseUint(hit.ID, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("oracle: unexpected document id %q: %w", hit.ID, err)
			}
			b.add(uint32(id), o.cells[uint32(id)])
		}
		if len(res.Hits) < pageSize || uint64(from+pageSize) >= res.Total {
			break
		}
	}
	return b.result(), nil
}

// DocCount returns the number of indexed documents.
func (o *Bleve) DocCount() (uint64, error) {
	return o.index.DocCount()
}

// Close releases the index.
func (o *Bleve) Close() error {
	return o.index.Close()
}
