package rtree

import (
	"errors"

	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/signature"
)

// ErrInconsistent is wrapped by every error returned from CheckConsistency.
var ErrInconsistent = errors.New("rtree: inconsistent tree")

// NodeRef is a handle to a node in the tree's arena.
type NodeRef int32

// NoNode is the handle of "no node", e.g. an item that was never inserted.
const NoNode NodeRef = -1

// Valid reports whether r refers to a node.
func (r NodeRef) Valid() bool { return r >= 0 }

// Algebra is the part of a signature scheme the tree needs.
type Algebra[S any] interface {
	Identity() S
	Combine(a, b S) S
	Equal(a, b S) bool
	AppendSignature(dst []byte, s S) []byte
	DecodeSignature(src []byte) (S, int, error)
}

// Options configures node fan-out.
type Options struct {
	// MinChildren is the minimum fan-out of non-root nodes. Must not exceed
	// MaxChildren/2.
	MinChildren int

	// MaxChildren is the maximum fan-out of every node.
	MaxChildren int
}

// DefaultOptions are used by New.
var DefaultOptions = Options{
	MinChildren: 4,
	MaxChildren: 16,
}

type kind uint8

const (
	kindItem kind = iota
	kindLeaf
	kindInner
)

type node[S any] struct {
	kind     kind
	parent   NodeRef
	bounds   geo.Rect
	sig      S
	item     uint32
	children []NodeRef
}

// Tree is an R-tree with signature-annotated nodes.
type Tree[S any] struct {
	alg    Algebra[S]
	opts   Options
	nodes  []node[S]
	root   NodeRef
	items  int
	height int
	dirty  bool
}

// New creates an empty tree.
func New[S any](alg Algebra[S], optFns ...func(o *Options)) *Tree[S] {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxChildren < 4 {
		opts.MaxChildren = 4
	}
	if opts.MinChildren < 1 || opts.MinChildren > opts.MaxChildren/2 {
		opts.MinChildren = opts.MaxChildren / 2
	}
	return &Tree[S]{
		alg:  alg,
		opts: opts,
		root: NoNode,
	}
}

// Len returns the number of inserted items.
func (t *Tree[S]) Len() int { return t.items }

// Height returns the number of node levels above the items (0 when empty).
func (t *Tree[S]) Height() int { return t.height }

// NodeCount returns the number of arena nodes including item nodes.
func (t *Tree[S]) NodeCount() int { return len(t.nodes) }

// Bounds returns the bounding box of all items.
func (t *Tree[S]) Bounds() geo.Rect {
	if t.root == NoNode {
		return geo.Empty()
	}
	return t.nodes[t.root].bounds
}

// SignaturesValid reports whether inner signatures reflect the current
// items, i.e. RecalculateSignatures ran after the last Insert.
func (t *Tree[S]) SignaturesValid() bool { return !t.dirty }

// ItemNode is the view of an item node.
type ItemNode[S any] struct {
	Boundary  geo.Rect
	Signature S
	Item      uint32
}

// Item returns the item node behind ref. The boolean is false if ref does
// not refer to an item node of this tree.
func (t *Tree[S]) Item(ref NodeRef) (ItemNode[S], bool) {
	if !ref.Valid() || int(ref) >= len(t.nodes) || t.nodes[ref].kind != kindItem {
		return ItemNode[S]{}, false
	}
	n := &t.nodes[ref]
	return ItemNode[S]{Boundary: n.bounds, Signature: n.sig, Item: n.item}, true
}

// Find calls emit for every item whose boundary satisfies gp and whose
// signature satisfies sp. A nil gp accepts every boundary, a nil sp every
// signature.
func (t *Tree[S]) Find(gp geo.Predicate, sp signature.Predicate[S], emit func(item uint32)) {
	if t.root == NoNode {
		return
	}
	pruneSig := sp != nil && !t.dirty

	var visit func(ref NodeRef)
	visit = func(ref NodeRef) {
		n := &t.nodes[ref]
		if gp != nil && !gp(n.bounds) {
			return
		}
		if n.kind == kindItem {
			if sp == nil || sp(n.sig) {
				emit(n.item)
			}
			return
		}
		if pruneSig && !sp(n.sig) {
			return
		}
		for _, c := range n.children {
			visit(c)
		}
	}
	visit(t.root)
}

// RecalculateSignatures aggregates item signatures bottom-up into every
// leaf and inner node.
func (t *Tree[S]) RecalculateSignatures() {
	if t.root != NoNode {
		t.recalc(t.root)
	}
	t.dirty = false
}

func (t *Tree[S]) recalc(ref NodeRef) S {
	n := &t.nodes[ref]
	if n.kind == kindItem {
		return n.sig
	}
	sig := t.alg.Identity()
	for _, c := range n.children {
		sig = t.alg.Combine(sig, t.recalc(c))
	}
	n.sig = sig
	return sig
}
