package rtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/hupe1980/sigtree/geo"
)

// ErrCorrupt is returned by Read for malformed streams.
var ErrCorrupt = errors.New("rtree: corrupt stream")

var magic = [4]byte{'S', 'R', 'T', '1'}

// Serialize writes the tree, signatures included, to w.
func (t *Tree[S]) Serialize(w io.Writer) error {
	buf := make([]byte, 0, 64+len(t.nodes)*48)
	buf = append(buf, magic[:]...)
	buf = binary.AppendUvarint(buf, uint64(t.opts.MinChildren))
	buf = binary.AppendUvarint(buf, uint64(t.opts.MaxChildren))
	buf = binary.AppendUvarint(buf, uint64(t.height))
	buf = binary.AppendUvarint(buf, uint64(t.items))
	if t.dirty {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.AppendVarint(buf, int64(t.root))
	buf = binary.AppendUvarint(buf, uint64(len(t.nodes)))

	for i := range t.nodes {
		n := &t.nodes[i]
		buf = append(buf, byte(n.kind))
		buf = binary.AppendVarint(buf, int64(n.parent))
		for _, f := range [4]float64{n.bounds.MinX, n.bounds.MinY, n.bounds.MaxX, n.bounds.MaxY} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
		buf = binary.AppendUvarint(buf, uint64(n.item))
		buf = binary.AppendUvarint(buf, uint64(len(n.children)))
		for _, c := range n.children {
			buf = binary.AppendVarint(buf, int64(c))
		}
		buf = t.alg.AppendSignature(buf, n.sig)
	}

	_, err := w.Write(buf)
	return err
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(what string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrCorrupt, what)
	}
}

func (d *decoder) uvarint(what string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail(what)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) varint(what string) int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf)
	if n <= 0 {
		d.fail(what)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) byte(what string) byte {
	if d.err != nil {
		return 0
	}
	if len(d.buf) < 1 {
		d.fail(what)
		return 0
	}
	b := d.buf[0]
	d.buf = d.buf[1:]
	return b
}

func (d *decoder) float(what string) float64 {
	if d.err != nil {
		return 0
	}
	if len(d.buf) < 8 {
		d.fail(what)
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(d.buf))
	d.buf = d.buf[8:]
	return v
}

// Read decodes a tree written by Serialize. Signatures are decoded with alg.
func Read[S any](r io.Reader, alg Algebra[S]) (*Tree[S], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < len(magic) || [4]byte(data[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	d := &decoder{buf: data[len(magic):]}

	t := &Tree[S]{alg: alg}
	t.opts.MinChildren = int(d.uvarint("min children"))
	t.opts.MaxChildren = int(d.uvarint("max children"))
	t.height = int(d.uvarint("height"))
	t.items = int(d.uvarint("items"))
	t.dirty = d.byte("dirty flag") != 0
	t.root = NodeRef(d.varint("root"))
	count := d.uvarint("node count")
	if d.err != nil {
		return nil, d.err
	}
	if count > uint64(len(d.buf)) {
		return nil, fmt.Errorf("%w: node count %d exceeds stream", ErrCorrupt, count)
	}

	valid := func(ref NodeRef, allowNone bool) bool {
		if ref == NoNode {
			return allowNone
		}
		return ref >= 0 && uint64(ref) < count
	}
	if !valid(t.root, count == 0) {
		return nil, fmt.Errorf("%w: root %d out of range", ErrCorrupt, t.root)
	}

	t.nodes = make([]node[S], count)
	for i := range t.nodes {
		n := &t.nodes[i]
		k := kind(d.byte("kind"))
		if k > kindInner {
			d.fail("unknown node kind")
		}
		n.kind = k
		n.parent = NodeRef(d.varint("parent"))
		n.bounds = geo.Rect{
			MinX: d.float("bounds"),
			MinY: d.float("bounds"),
			MaxX: d.float("bounds"),
			MaxY: d.float("bounds"),
		}
		n.item = uint32(d.uvarint("item"))
		nc := d.uvarint("child count")
		if d.err == nil && nc > count {
			d.fail("child count out of range")
		}
		if d.err != nil {
			return nil, d.err
		}
		if nc > 0 {
			n.children = make([]NodeRef, nc)
			for j := range n.children {
				c := NodeRef(d.varint("child"))
				if d.err == nil && !valid(c, false) {
					d.fail("child out of range")
				}
				n.children[j] = c
			}
		}
		if d.err == nil && !valid(n.parent, true) {
			d.fail("parent out of range")
		}
		if d.err != nil {
			return nil, d.err
		}
		sig, used, err := alg.DecodeSignature(d.buf)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d signature: %v", ErrCorrupt, i, err)
		}
		n.sig = sig
		d.buf = d.buf[used:]
	}
	if len(d.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf))
	}
	if err := t.checkLinks(); err != nil {
		return nil, err
	}
	return t, nil
}

// checkLinks verifies that the nodes reachable from the root form a tree:
// every node is reached once, through the parent it names, and item nodes
// have no children.
func (t *Tree[S]) checkLinks() error {
	if t.root == NoNode {
		return nil
	}
	if p := t.nodes[t.root].parent; p != NoNode {
		return fmt.Errorf("%w: root %d has parent %d", ErrCorrupt, t.root, p)
	}

	seen := make([]bool, len(t.nodes))
	seen[t.root] = true
	stack := []NodeRef{t.root}
	for len(stack) > 0 {
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[ref]
		if n.kind == kindItem && len(n.children) > 0 {
			return fmt.Errorf("%w: item node %d has children", ErrCorrupt, ref)
		}
		for _, c := range n.children {
			if seen[c] {
				return fmt.Errorf("%w: node %d reached twice", ErrCorrupt, c)
			}
			if p := t.nodes[c].parent; p != ref {
				return fmt.Errorf("%w: node %d lists child %d whose parent is %d", ErrCorrupt, ref, c, p)
			}
			seen[c] = true
			stack = append(stack, c)
		}
	}
	return nil
}

// sameBits compares rects bit for bit, so NaN coordinates equal themselves.
func sameBits(a, b geo.Rect) bool {
	return math.Float64bits(a.MinX) == math.Float64bits(b.MinX) &&
		math.Float64bits(a.MinY) == math.Float64bits(b.MinY) &&
		math.Float64bits(a.MaxX) == math.Float64bits(b.MaxX) &&
		math.Float64bits(a.MaxY) == math.Float64bits(b.MaxY)
}

// Equal reports whether a and b hold the same nodes, in the same arena
// positions, with equal signatures.
func Equal[S any](a, b *Tree[S]) bool {
	if a.root != b.root || a.items != b.items || a.height != b.height ||
		a.dirty != b.dirty || a.opts != b.opts || len(a.nodes) != len(b.nodes) {
		return false
	}
	for i := range a.nodes {
		x, y := &a.nodes[i], &b.nodes[i]
		if x.kind != y.kind || x.parent != y.parent || !sameBits(x.bounds, y.bounds) || x.item != y.item {
			return false
		}
		if !slices.Equal(x.children, y.children) {
			return false
		}
		if !a.alg.Equal(x.sig, y.sig) {
			return false
		}
	}
	return true
}
