package sigtree

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/internal/bitset"
	"github.com/hupe1980/sigtree/internal/progress"
	"github.com/hupe1980/sigtree/rtree"
	"github.com/hupe1980/sigtree/signature"
	"github.com/hupe1980/sigtree/store"
	"github.com/hupe1980/sigtree/token"
	"golang.org/x/sync/errgroup"
)

// Stage names used in logs and metrics.
const (
	StageTrain      = "train"
	StageRegions    = "regions"
	StageCells      = "cells"
	StageItems      = "items"
	StageSignatures = "signatures"
)

type stage int

const (
	stageNone stage = iota
	stageTrained
	stageRegions
	stageCells
	stageDone
)

const (
	// chunkSize is the number of ids one worker handles per task.
	chunkSize = 256

	// parallelItems is the smallest cell batch whose item signatures are
	// computed in parallel.
	parallelItems = 64
)

// Builder computes region, cell and item signatures and populates the
// spatial tree.
//
// The stages run strictly in order: Train, ComputeRegionSignatures,
// ComputeCellSignatures, Populate. Each stage completes before the next one
// starts; calling a stage early fails with ErrStageOrder. Build runs all of
// them. A Builder is used for exactly one build and is not safe for
// concurrent use.
//
// Example:
//
//	b := sigtree.NewBuilder(st, stringset.New(), sigtree.WithCheck(true))
//	idx, err := b.Build(ctx)
type Builder[S any] struct {
	store  store.Store
	scheme signature.Scheme[S]
	opts   options
	id     string
	logger *Logger

	stage      stage
	regionSigs []S
	cellSigs   []S

	processed *bitset.BitSet
	tree      *rtree.Tree[S]
	itemNodes []rtree.NodeRef
	inserted  int
}

// NewBuilder creates a builder over st using the given signature scheme.
func NewBuilder[S any](st store.Store, scheme signature.Scheme[S], optFns ...Option) *Builder[S] {
	o := applyOptions(optFns)
	id := uuid.NewString()
	return &Builder[S]{
		store:  st,
		scheme: scheme,
		opts:   o,
		id:     id,
		logger: o.logger.WithBuildID(id).WithScheme(scheme.Name()),
	}
}

// ID returns the build id attached to logs.
func (b *Builder[S]) ID() string { return b.id }

// Build runs all stages and returns the index.
func (b *Builder[S]) Build(ctx context.Context) (*Index[S], error) {
	if b.stage != stageNone {
		return nil, ErrBuilderUsed
	}
	steps := []func(context.Context) error{
		b.Train,
		b.ComputeRegionSignatures,
		b.ComputeCellSignatures,
		b.Populate,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return nil, err
		}
	}
	return b.Index()
}

// Index returns the populated index. It fails with ErrStageOrder before
// Populate has completed.
func (b *Builder[S]) Index() (*Index[S], error) {
	if b.stage != stageDone {
		return nil, ErrStageOrder
	}
	return &Index[S]{
		id:        b.id,
		scheme:    b.scheme,
		store:     b.store,
		tree:      b.tree,
		itemNodes: b.itemNodes,
		opts:      b.opts,
		logger:    b.logger,
	}, nil
}

func (b *Builder[S]) require(s stage, next string) error {
	if b.stage != s {
		return fmt.Errorf("%w: cannot run stage %s", ErrStageOrder, next)
	}
	return nil
}

// runStage wraps one stage with progress reporting, logging and metrics.
func (b *Builder[S]) runStage(ctx context.Context, name string, total int, fn func(rep *progress.Reporter) error) error {
	rep := progress.Begin(b.logger.Logger, name, total)
	err := fn(rep)
	d := rep.End()
	b.logger.LogStage(ctx, name, int(rep.Done()), err)
	b.opts.metricsCollector.RecordStage(name, int(rep.Done()), d, err)
	return err
}

// parallel calls fn for every id in [0, n) on up to opts.workers goroutines.
func (b *Builder[S]) parallel(ctx context.Context, n int, rep *progress.Reporter, fn func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.workers)
	for lo := 0; lo < n; lo += chunkSize {
		hi := min(lo+chunkSize, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				if err := fn(i); err != nil {
					return err
				}
			}
			rep.Add(hi - lo)
			return nil
		})
	}
	return g.Wait()
}

// Train feeds the normalized tokens of every store item to the scheme if
// it implements signature.Trainer. For other schemes it only advances the
// stage.
func (b *Builder[S]) Train(ctx context.Context) error {
	if err := b.require(stageNone, StageTrain); err != nil {
		return err
	}
	tr, ok := any(b.scheme).(signature.Trainer)
	if !ok {
		b.stage = stageTrained
		return nil
	}

	n := b.store.Size()
	err := b.runStage(ctx, StageTrain, n, func(rep *progress.Reporter) error {
		for i := range n {
			if i%chunkSize == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			it, err := b.store.Item(uint32(i))
			if err != nil {
				return err
			}
			for _, kv := range it.KV {
				tr.Add(token.Normalized(kv.Key, kv.Value))
			}
			rep.Add(1)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.stage = stageTrained
	return nil
}

// tokenSignature combines the signatures of the item's own tokens.
func (b *Builder[S]) tokenSignature(it store.Item) S {
	sig := b.scheme.Identity()
	for _, kv := range it.KV {
		sig = b.scheme.Combine(sig, b.scheme.Signature(token.Normalized(kv.Key, kv.Value)))
	}
	return sig
}

// ComputeRegionSignatures computes the signature of every region from the
// tokens of the item backing it.
func (b *Builder[S]) ComputeRegionSignatures(ctx context.Context) error {
	if err := b.require(stageTrained, StageRegions); err != nil {
		return err
	}
	h := b.store.Hierarchy()
	n := h.RegionSize()
	sigs := make([]S, n)

	err := b.runStage(ctx, StageRegions, n, func(rep *progress.Reporter) error {
		return b.parallel(ctx, n, rep, func(r int) error {
			id, err := store.RegionItem(h, uint32(r))
			if err != nil {
				return err
			}
			it, err := b.store.Item(id)
			if err != nil {
				return fmt.Errorf("region %d: %w", r, err)
			}
			sigs[r] = b.tokenSignature(it)
			return nil
		})
	})
	if err != nil {
		return err
	}
	b.regionSigs = sigs
	b.stage = stageRegions
	return nil
}

// ComputeCellSignatures combines the signatures of every cell's ancestor
// regions.
func (b *Builder[S]) ComputeCellSignatures(ctx context.Context) error {
	if err := b.require(stageRegions, StageCells); err != nil {
		return err
	}
	h := b.store.Hierarchy()
	n := h.CellSize()
	sigs := make([]S, n)

	err := b.runStage(ctx, StageCells, n, func(rep *progress.Reporter) error {
		return b.parallel(ctx, n, rep, func(c int) error {
			regions, err := store.CellAncestors(h, uint32(c), b.opts.ancestorClosure)
			if err != nil {
				return err
			}
			sig := b.scheme.Identity()
			for _, r := range regions {
				if int(r) >= len(b.regionSigs) {
					return fmt.Errorf("cell %d: %w: region %d", c, store.ErrOutOfRange, r)
				}
				sig = b.scheme.Combine(sig, b.regionSigs[r])
			}
			sigs[c] = sig
			return nil
		})
	})
	if err != nil {
		return err
	}
	b.cellSigs = sigs
	b.stage = stageCells
	return nil
}

// itemSignature combines the item's own tokens with the signatures of all
// cells it belongs to.
func (b *Builder[S]) itemSignature(it store.Item) (S, error) {
	sig := b.tokenSignature(it)
	for _, c := range it.Cells {
		if int(c) >= len(b.cellSigs) {
			var zero S
			return zero, fmt.Errorf("item %d: %w: cell %d", it.ID, store.ErrOutOfRange, c)
		}
		sig = b.scheme.Combine(sig, b.cellSigs[c])
	}
	return sig, nil
}

// RegionSignature returns the signature of region r.
func (b *Builder[S]) RegionSignature(r uint32) (S, error) {
	var zero S
	if b.stage < stageRegions {
		return zero, ErrStageOrder
	}
	if int(r) >= len(b.regionSigs) {
		return zero, fmt.Errorf("%w: region %d", store.ErrOutOfRange, r)
	}
	return b.regionSigs[r], nil
}

// CellSignature returns the signature of cell c.
func (b *Builder[S]) CellSignature(c uint32) (S, error) {
	var zero S
	if b.stage < stageCells {
		return zero, ErrStageOrder
	}
	if int(c) >= len(b.cellSigs) {
		return zero, fmt.Errorf("%w: cell %d", store.ErrOutOfRange, c)
	}
	return b.cellSigs[c], nil
}

// ItemSignature computes the signature of item id.
func (b *Builder[S]) ItemSignature(id uint32) (S, error) {
	if b.stage < stageCells {
		var zero S
		return zero, ErrStageOrder
	}
	it, err := b.store.Item(id)
	if err != nil {
		var zero S
		return zero, err
	}
	return b.itemSignature(it)
}

type entry[S any] struct {
	boundary geo.Rect
	sig      S
}

// prepare reads the given items and computes their signatures.
func (b *Builder[S]) prepare(ctx context.Context, ids []uint32, out []entry[S]) ([]entry[S], error) {
	out = append(out[:0], make([]entry[S], len(ids))...)
	compute := func(i int) error {
		it, err := b.store.Item(ids[i])
		if err != nil {
			return err
		}
		sig, err := b.itemSignature(it)
		if err != nil {
			return err
		}
		out[i] = entry[S]{boundary: it.Boundary, sig: sig}
		return nil
	}

	if len(ids) < parallelItems || b.opts.workers == 1 {
		for i := range ids {
			if err := compute(i); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.workers)
	for i := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return compute(i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Builder[S]) checkConsistency(ctx context.Context, cell int) error {
	start := time.Now()
	err := b.tree.CheckConsistency()
	b.opts.metricsCollector.RecordConsistencyCheck(time.Since(start), err)
	b.logger.LogConsistency(ctx, cell, err)
	if err != nil {
		return newCreationError(cell, err)
	}
	return nil
}

// Populate inserts every item reachable from a cell exactly once, visiting
// cells in ascending order and each cell's items in list order. Items
// listed by several cells are inserted when their first cell is visited.
//
// With WithCheck the tree is checked after every cell and once more at the
// end. The last step recalculates the signatures of the tree's inner nodes.
func (b *Builder[S]) Populate(ctx context.Context) error {
	if err := b.require(stageCells, StageItems); err != nil {
		return err
	}
	h := b.store.Hierarchy()
	n := b.store.Size()
	cells := h.CellSize()

	b.processed = bitset.New(uint64(n))
	b.itemNodes = make([]rtree.NodeRef, n)
	for i := range b.itemNodes {
		b.itemNodes[i] = rtree.NoNode
	}
	b.tree = rtree.New[S](b.scheme, b.opts.treeOptions...)

	err := b.runStage(ctx, StageItems, n, func(rep *progress.Reporter) error {
		var (
			batch   []uint32
			entries []entry[S]
		)
		for c := range cells {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()

			items, err := h.CellItems(uint32(c))
			if err != nil {
				return err
			}
			batch = batch[:0]
			for _, id := range items {
				if int(id) >= n {
					return fmt.Errorf("cell %d lists %w: item %d", c, store.ErrOutOfRange, id)
				}
				if b.processed.TestAndSet(uint64(id)) {
					continue
				}
				batch = append(batch, id)
			}

			entries, err = b.prepare(ctx, batch, entries)
			if err != nil {
				return err
			}
			for i, id := range batch {
				b.itemNodes[id] = b.tree.Insert(entries[i].boundary, entries[i].sig, id)
			}
			b.inserted += len(batch)
			rep.Add(len(batch))
			b.opts.metricsCollector.RecordInsert(len(batch), time.Since(start))

			if b.opts.check {
				if err := b.checkConsistency(ctx, c); err != nil {
					return err
				}
			}
		}
		if b.opts.check {
			return b.checkConsistency(ctx, FinalCheck)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = b.runStage(ctx, StageSignatures, 1, func(rep *progress.Reporter) error {
		b.tree.RecalculateSignatures()
		rep.Add(1)
		return nil
	})
	if err != nil {
		return err
	}
	b.logger.InfoContext(ctx, "tree built",
		"items", b.tree.Len(),
		"nodes", b.tree.NodeCount(),
		"height", b.tree.Height(),
	)
	b.stage = stageDone
	return nil
}

// Inserted returns the number of items inserted into the tree.
func (b *Builder[S]) Inserted() int { return b.inserted }
