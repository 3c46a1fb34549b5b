package rtree

import "fmt"

// CheckConsistency verifies the structural invariants of the tree and
// returns an error wrapping ErrInconsistent describing the first violation.
//
// Checked are parent links, bounds containment (each node's box is exactly
// the union of its children's), fan-out limits, uniform leaf depth, the item
// count and, once RecalculateSignatures has run, that every node signature is
// the combination of its children's.
func (t *Tree[S]) CheckConsistency() error {
	if t.root == NoNode {
		if t.items != 0 {
			return fmt.Errorf("%w: empty tree reports %d items", ErrInconsistent, t.items)
		}
		return nil
	}
	if p := t.nodes[t.root].parent; p != NoNode {
		return fmt.Errorf("%w: root %d has parent %d", ErrInconsistent, t.root, p)
	}

	items := 0
	leafDepth := -1

	var check func(ref NodeRef, depth int) error
	check = func(ref NodeRef, depth int) error {
		n := &t.nodes[ref]
		if n.kind == kindItem {
			items++
			return nil
		}

		if len(n.children) == 0 && ref != t.root {
			return fmt.Errorf("%w: node %d has no children", ErrInconsistent, ref)
		}
		if len(n.children) > t.opts.MaxChildren {
			return fmt.Errorf("%w: node %d has %d children (max %d)", ErrInconsistent, ref, len(n.children), t.opts.MaxChildren)
		}
		if ref != t.root && len(n.children) < t.opts.MinChildren {
			return fmt.Errorf("%w: node %d has %d children (min %d)", ErrInconsistent, ref, len(n.children), t.opts.MinChildren)
		}

		if n.kind == kindLeaf {
			if leafDepth == -1 {
				leafDepth = depth
			} else if leafDepth != depth {
				return fmt.Errorf("%w: leaf %d at depth %d, expected %d", ErrInconsistent, ref, depth, leafDepth)
			}
		}

		union := t.nodes[n.children[0]].bounds
		sig := t.alg.Identity()
		for _, c := range n.children {
			cn := &t.nodes[c]
			if cn.parent != ref {
				return fmt.Errorf("%w: node %d lists child %d whose parent is %d", ErrInconsistent, ref, c, cn.parent)
			}
			if n.kind == kindLeaf && cn.kind != kindItem {
				return fmt.Errorf("%w: leaf %d has non-item child %d", ErrInconsistent, ref, c)
			}
			if n.kind == kindInner && cn.kind == kindItem {
				return fmt.Errorf("%w: inner node %d has item child %d", ErrInconsistent, ref, c)
			}
			if !cn.bounds.IsEmpty() && !n.bounds.Contains(cn.bounds) {
				return fmt.Errorf("%w: node %d bounds %v do not contain child %d bounds %v", ErrInconsistent, ref, n.bounds, c, cn.bounds)
			}
			union = union.Union(cn.bounds)
			sig = t.alg.Combine(sig, cn.sig)

			if err := check(c, depth+1); err != nil {
				return err
			}
		}
		if union != n.bounds {
			return fmt.Errorf("%w: node %d bounds %v are not the union %v of its children", ErrInconsistent, ref, n.bounds, union)
		}
		if !t.dirty && !t.alg.Equal(sig, n.sig) {
			return fmt.Errorf("%w: node %d signature does not cover its children", ErrInconsistent, ref)
		}
		return nil
	}

	if err := check(t.root, 1); err != nil {
		return err
	}
	if items != t.items {
		return fmt.Errorf("%w: reached %d items, tree reports %d", ErrInconsistent, items, t.items)
	}
	if leafDepth != -1 && leafDepth != t.height {
		return fmt.Errorf("%w: leaves at depth %d, height is %d", ErrInconsistent, leafDepth, t.height)
	}
	return nil
}
