// Package rtree implements an in-memory R-tree whose nodes carry both a
// bounding box and a signature.
//
// Every inserted item becomes an item node in the tree's arena; Insert
// returns a NodeRef that stays valid for the lifetime of the tree, even when
// the leaf holding the item is split. Leaf and inner nodes aggregate the
// boxes of their children on every insert. Their signatures are aggregated
// by RecalculateSignatures only: until it runs, Find prunes inner nodes by
// geometry alone.
//
//	t := rtree.New[S](scheme)
//	ref := t.Insert(box, sig, itemID)
//	t.RecalculateSignatures()
//	t.Find(geo.MayHaveMatch(q), scheme.MayHaveMatch("@amenity:cafe", opts), emit)
//
// Insertion uses Guttman's least-enlargement descent with a quadratic split.
// A Tree is not safe for concurrent Insert; concurrent Find calls are safe
// once all inserts and RecalculateSignatures have returned.
package rtree
