package rtree

import (
	"math"

	"github.com/hupe1980/sigtree/geo"
)

// Insert adds an item and returns the handle of its item node.
func (t *Tree[S]) Insert(b geo.Rect, sig S, item uint32) NodeRef {
	if t.root == NoNode {
		t.root = t.newNode(node[S]{kind: kindLeaf, parent: NoNode, bounds: geo.Empty(), sig: t.alg.Identity()})
		t.height = 1
	}

	ref := t.newNode(node[S]{kind: kindItem, bounds: b, sig: sig, item: item})
	leaf := t.chooseLeaf(b)
	t.addChild(leaf, ref)

	for cur := leaf; cur != NoNode; cur = t.nodes[cur].parent {
		t.nodes[cur].bounds = t.nodes[cur].bounds.Union(b)
	}

	t.items++
	t.dirty = true

	for cur := leaf; cur != NoNode && len(t.nodes[cur].children) > t.opts.MaxChildren; {
		sibling := t.split(cur)
		parent := t.nodes[cur].parent
		if parent == NoNode {
			t.growRoot(cur, sibling)
			break
		}
		t.addChild(parent, sibling)
		cur = parent
	}
	return ref
}

func (t *Tree[S]) newNode(n node[S]) NodeRef {
	t.nodes = append(t.nodes, n)
	return NodeRef(len(t.nodes) - 1)
}

func (t *Tree[S]) addChild(parent, child NodeRef) {
	t.nodes[parent].children = append(t.nodes[parent].children, child)
	t.nodes[child].parent = parent
}

func (t *Tree[S]) growRoot(a, b NodeRef) {
	root := t.newNode(node[S]{
		kind:   kindInner,
		parent: NoNode,
		bounds: t.nodes[a].bounds.Union(t.nodes[b].bounds),
		sig:    t.alg.Identity(),
	})
	t.addChild(root, a)
	t.addChild(root, b)
	t.root = root
	t.height++
}

// chooseLeaf descends from the root along the child needing the least
// enlargement, breaking ties by smaller area.
func (t *Tree[S]) chooseLeaf(b geo.Rect) NodeRef {
	cur := t.root
	for t.nodes[cur].kind == kindInner {
		best := NoNode
		bestEnl, bestArea := math.Inf(1), math.Inf(1)
		for _, c := range t.nodes[cur].children {
			cb := t.nodes[c].bounds
			enl, area := cb.Enlargement(b), cb.Area()
			if enl < bestEnl || (enl == bestEnl && area < bestArea) {
				best, bestEnl, bestArea = c, enl, area
			}
		}
		cur = best
	}
	return cur
}

// split distributes the children of n over n and a new sibling using the
// quadratic split heuristic and returns the sibling.
func (t *Tree[S]) split(n NodeRef) NodeRef {
	entries := t.nodes[n].children
	s1, s2 := t.pickSeeds(entries)

	g1 := []NodeRef{entries[s1]}
	g2 := []NodeRef{entries[s2]}
	b1 := t.nodes[entries[s1]].bounds
	b2 := t.nodes[entries[s2]].bounds

	rest := make([]NodeRef, 0, len(entries)-2)
	for i, e := range entries {
		if i != s1 && i != s2 {
			rest = append(rest, e)
		}
	}

	for len(rest) > 0 {
		if len(g1)+len(rest) == t.opts.MinChildren {
			for _, e := range rest {
				g1 = append(g1, e)
				b1 = b1.Union(t.nodes[e].bounds)
			}
			break
		}
		if len(g2)+len(rest) == t.opts.MinChildren {
			for _, e := range rest {
				g2 = append(g2, e)
				b2 = b2.Union(t.nodes[e].bounds)
			}
			break
		}

		// Pick the entry with the strongest preference for one group.
		next, maxDiff := 0, -1.0
		for i, e := range rest {
			eb := t.nodes[e].bounds
			d := math.Abs(b1.Enlargement(eb) - b2.Enlargement(eb))
			if d > maxDiff {
				next, maxDiff = i, d
			}
		}
		e := rest[next]
		rest = append(rest[:next], rest[next+1:]...)

		eb := t.nodes[e].bounds
		d1, d2 := b1.Enlargement(eb), b2.Enlargement(eb)
		toFirst := d1 < d2 ||
			(d1 == d2 && (b1.Area() < b2.Area() ||
				(b1.Area() == b2.Area() && len(g1) <= len(g2))))
		if toFirst {
			g1 = append(g1, e)
			b1 = b1.Union(eb)
		} else {
			g2 = append(g2, e)
			b2 = b2.Union(eb)
		}
	}

	sibling := t.newNode(node[S]{
		kind:   t.nodes[n].kind,
		bounds: b2,
		sig:    t.alg.Identity(),
	})
	t.nodes[n].children = g1
	t.nodes[n].bounds = b1
	for _, e := range g1 {
		t.nodes[e].parent = n
	}
	for _, e := range g2 {
		t.addChild(sibling, e)
	}
	return sibling
}

// pickSeeds returns the pair of entries that would waste the most area if
// put into the same node.
func (t *Tree[S]) pickSeeds(entries []NodeRef) (int, int) {
	s1, s2 := 0, 1
	worst := math.Inf(-1)
	for i := 0; i < len(entries); i++ {
		bi := t.nodes[entries[i]].bounds
		for j := i + 1; j < len(entries); j++ {
			bj := t.nodes[entries[j]].bounds
			d := bi.Union(bj).Area() - bi.Area() - bj.Area()
			if d > worst {
				s1, s2, worst = i, j, d
			}
		}
	}
	return s1, s2
}
