// Package geo provides the boundary type of the index and the geometry
// algebra used to prune it.
//
// A Rect is an axis-aligned bounding box. Predicates built with MayHaveMatch
// are "may-match" predicates: they return true whenever a boundary could
// intersect the query, so they never produce false negatives.
//
//	p := geo.MayHaveMatch(cellBoundary)
//	if p(item.Boundary()) {
//	    // candidate
//	}
package geo
