package geo

// Predicate reports whether a boundary may match a geometric query.
type Predicate func(Rect) bool

// MayHaveMatch returns a predicate that accepts every boundary intersecting q.
//
// The same predicate serves exact containment tests on item boundaries and
// approximate pruning on node bounds: a node's bounds contain all of its
// items, so rejecting a node never drops a matching item.
func MayHaveMatch(q Rect) Predicate {
	return func(b Rect) bool {
		return q.Intersects(b)
	}
}
