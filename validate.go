package sigtree

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/oracle"
	"github.com/hupe1980/sigtree/signature"
	"github.com/hupe1980/sigtree/token"
	"golang.org/x/sync/errgroup"
)

// AllCells is the Cell of a TokenMismatch found by the store-wide query.
const AllCells = -1

// Diagnosis classifies a token mismatch after the exhaustive scan.
type Diagnosis int

const (
	// DiagnosisNone means no diagnosis was made.
	DiagnosisNone Diagnosis = iota

	// DiagnosisTraversal means the tree's traversal returned a different
	// set than evaluating the predicates on every item node.
	DiagnosisTraversal

	// DiagnosisSignature means the traversal agrees with the exhaustive
	// scan, so the signature predicate itself rejects items the oracle
	// returns: signature construction and oracle disagree, usually on
	// normalization.
	DiagnosisSignature
)

func (d Diagnosis) String() string {
	switch d {
	case DiagnosisNone:
		return "none"
	case DiagnosisTraversal:
		return "traversal"
	case DiagnosisSignature:
		return "signature"
	default:
		return fmt.Sprintf("Diagnosis(%d)", int(d))
	}
}

// TokenMismatch describes a token query whose tree result misses items of
// the oracle result. All counts are set sizes.
type TokenMismatch struct {
	Token string
	// Cell is the cell of a per-cell query or AllCells.
	Cell int

	Oracle  int
	Tree    int
	Missing int // oracle - tree
	Invalid int // tree - oracle

	// Exhaustive is the size of the result of evaluating both predicates on
	// every item node.
	Exhaustive       int
	TraversalMissing int // exhaustive - tree
	TraversalInvalid int // tree - exhaustive
	OracleMissing    int // oracle - exhaustive

	Diagnosis Diagnosis
}

// SpatialFailure describes a cell whose items were not all returned by the
// spatial query for the cell's boundary.
type SpatialFailure struct {
	Cell     uint32
	Expected int
	Found    int
	Missing  int
}

// TokenReport is the outcome of the token soundness check.
type TokenReport struct {
	Tokens []string

	// Queries counts store-wide queries, CellQueries the per-cell ones.
	Queries     int
	CellQueries int

	// FailedQueries counts failed store-wide and per-cell queries.
	FailedQueries int

	Mismatches []TokenMismatch
}

// Report is the outcome of Validate.
type Report struct {
	BuildID string

	Consistent       bool
	ConsistencyError error

	CellsChecked    int
	SpatialFailures []SpatialFailure

	TokenReport
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	return !r.Consistent || len(r.SpatialFailures) > 0 || r.FailedQueries > 0
}

// Validator checks a built index against its store and an oracle. None of
// the checks modify the index.
type Validator[S any] struct {
	idx    *Index[S]
	oracle oracle.Oracle
	opts   options
	logger *Logger
}

// NewValidator creates a validator. Options default to those the index was
// built with.
func NewValidator[S any](idx *Index[S], o oracle.Oracle, optFns ...Option) *Validator[S] {
	opts := idx.opts
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.workers < 1 {
		opts.workers = runtime.GOMAXPROCS(0)
	}
	return &Validator[S]{
		idx:    idx,
		oracle: o,
		opts:   opts,
		logger: opts.logger.WithBuildID(idx.id).WithScheme(idx.scheme.Name()),
	}
}

// Validate runs the structural check and, if the tree is consistent, the
// spatial completeness check and the token soundness check. Mismatches are
// recorded in the report; the returned error is reserved for failures to
// read the store or query the oracle.
func (v *Validator[S]) Validate(ctx context.Context) (*Report, error) {
	r := &Report{BuildID: v.idx.id}

	if err := v.CheckStructure(); err != nil {
		r.ConsistencyError = err
		v.logger.ErrorContext(ctx, "tree is not consistent", "error", err)
		v.logger.LogValidation(ctx, r)
		return r, nil
	}
	r.Consistent = true

	spatial, err := v.CheckSpatial(ctx)
	if err != nil {
		return nil, err
	}
	r.CellsChecked = v.idx.store.Hierarchy().CellSize()
	r.SpatialFailures = spatial

	tr, err := v.CheckTokens(ctx, v.Tokens())
	if err != nil {
		return nil, err
	}
	r.TokenReport = *tr

	if r.FailedQueries > 0 {
		v.logger.WarnContext(ctx, "failed queries",
			"failed", r.FailedQueries,
			"tokens", len(r.Tokens),
		)
	}
	v.logger.LogValidation(ctx, r)
	return r, nil
}

// CheckStructure runs the tree's consistency check.
func (v *Validator[S]) CheckStructure() error {
	start := time.Now()
	err := v.idx.tree.CheckConsistency()
	v.opts.metricsCollector.RecordConsistencyCheck(time.Since(start), err)
	return err
}

// CheckSpatial verifies for every cell that a query for the cell's boundary
// returns all items the store lists for the cell. Extra results are
// tolerated.
func (v *Validator[S]) CheckSpatial(ctx context.Context) ([]SpatialFailure, error) {
	h := v.idx.store.Hierarchy()
	n := h.CellSize()
	failures := make([]*SpatialFailure, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.workers)
	for c := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			cell, err := h.Cell(uint32(c))
			if err != nil {
				return err
			}
			items, err := h.CellItems(uint32(c))
			if err != nil {
				return err
			}
			want := roaring.BitmapOf(items...)
			got := v.idx.Find(geo.MayHaveMatch(cell.Boundary), nil)
			missing := roaring.AndNot(want, got)
			bad := !missing.IsEmpty()
			v.opts.metricsCollector.RecordQuery(CheckSpatial, bad, time.Since(start))
			if bad {
				failures[c] = &SpatialFailure{
					Cell:     uint32(c),
					Expected: int(want.GetCardinality()),
					Found:    int(got.GetCardinality()),
					Missing:  int(missing.GetCardinality()),
				}
				v.logger.WarnContext(ctx, "incorrect result for cell",
					"cell", c,
					"missing", failures[c].Missing,
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []SpatialFailure
	for _, f := range failures {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

// Tokens returns the normalized tokens of the most frequent key/value pairs
// of the store, most frequent first and without duplicates.
func (v *Validator[S]) Tokens() []string {
	st := v.idx.store
	keys, values := st.Keys(), st.Values()
	top := st.TopKV(v.opts.topK)

	out := make([]string, 0, len(top))
	for _, kv := range top {
		tok := token.Normalized(keys.At(kv.KeyID), values.At(kv.ValueID))
		if !slices.Contains(out, tok) {
			out = append(out, tok)
		}
	}
	return out
}

type tokenResult struct {
	cellQueries int
	mismatches  []TokenMismatch
}

// CheckTokens compares, for every normalized token, the tree result of the
// token's signature predicate with the oracle result: first store-wide,
// then per cell of the oracle's breakdown unless disabled with
// WithSkipPerCell. A query fails if the oracle returns an item the tree
// does not.
func (v *Validator[S]) CheckTokens(ctx context.Context, tokens []string) (*TokenReport, error) {
	results := make([]tokenResult, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.workers)
	for i, tok := range tokens {
		g.Go(func() error {
			res, err := v.checkToken(gctx, tok)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &TokenReport{Tokens: tokens, Queries: len(tokens)}
	for _, res := range results {
		r.CellQueries += res.cellQueries
		r.FailedQueries += len(res.mismatches)
		r.Mismatches = append(r.Mismatches, res.mismatches...)
	}
	for _, m := range r.Mismatches {
		v.logger.LogQueryMismatch(ctx, m)
	}
	return r, nil
}

func (v *Validator[S]) checkToken(ctx context.Context, tok string) (tokenResult, error) {
	var out tokenResult
	mo := v.opts.matchOptions

	query := token.Quote(tok)
	if mo.Prefix {
		query = tok
	}

	start := time.Now()
	res, err := v.oracle.Complete(ctx, query)
	if err != nil {
		return out, fmt.Errorf("oracle query %s: %w", query, err)
	}
	smp := v.idx.scheme.MayHaveMatch(tok, mo)

	m, bad := v.compare(tok, AllCells, res.Flatten(), geo.MayHaveMatch(v.idx.store.Bounds()), smp)
	v.opts.metricsCollector.RecordQuery(CheckToken, bad, time.Since(start))
	if bad {
		out.mismatches = append(out.mismatches, m)
	}

	if v.opts.skipPerCell {
		return out, nil
	}

	h := v.idx.store.Hierarchy()
	for i := range res.CellCount() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		start := time.Now()
		cellID := res.CellID(i)
		cell, err := h.Cell(cellID)
		if err != nil {
			return out, err
		}
		m, bad := v.compare(tok, int(cellID), res.Items(i), geo.MayHaveMatch(cell.Boundary), smp)
		v.opts.metricsCollector.RecordQuery(CheckTokenCell, bad, time.Since(start))
		out.cellQueries++
		if bad {
			out.mismatches = append(out.mismatches, m)
		}
	}
	return out, nil
}

// compare checks want ⊆ tree result. On a miss the predicates are also
// evaluated on every item node to tell traversal errors from signature
// errors.
func (v *Validator[S]) compare(tok string, cell int, want *roaring.Bitmap, gp geo.Predicate, sp signature.Predicate[S]) (TokenMismatch, bool) {
	got := v.idx.Find(gp, sp)
	missing := roaring.AndNot(want, got)
	if missing.IsEmpty() {
		return TokenMismatch{}, false
	}

	must := v.idx.MatchingItems(gp, sp)
	m := TokenMismatch{
		Token:            tok,
		Cell:             cell,
		Oracle:           int(want.GetCardinality()),
		Tree:             int(got.GetCardinality()),
		Missing:          int(missing.GetCardinality()),
		Invalid:          int(roaring.AndNot(got, want).GetCardinality()),
		Exhaustive:       int(must.GetCardinality()),
		TraversalMissing: int(roaring.AndNot(must, got).GetCardinality()),
		TraversalInvalid: int(roaring.AndNot(got, must).GetCardinality()),
		OracleMissing:    int(roaring.AndNot(want, must).GetCardinality()),
		Diagnosis:        DiagnosisSignature,
	}
	if !must.Equals(got) {
		m.Diagnosis = DiagnosisTraversal
	}
	return m, true
}
