// Package sigtree builds and validates spatial indexes whose nodes carry a
// signature of the key:value tokens below them.
//
// A signature is a compact, approximate set of tokens. The index answers
// queries of the form "items near this area that may carry this token"
// without looking at every item: the signature predicate never rejects an
// item that has the token, but it may accept items that don't.
//
// # Quick Start
//
//	st, _ := store.LoadJSON(f, codec.Default)
//	idx, _ := sigtree.NewBuilder[*roaring.Bitmap](st, stringset.New(),
//	    sigtree.WithCheck(true),
//	).Build(ctx)
//
//	hits := idx.Query(area, "@amenity:cafe", signature.MatchOptions{})
//
// # Signature Hierarchy
//
// Signatures are computed in stages, each completing before the next starts:
//
//   - region: the tokens of the item backing the region
//   - cell: the combined signatures of the cell's ancestor regions
//   - item: the item's own tokens combined with every cell it belongs to
//
// Trainable schemes (qgram) first gather the vocabulary of all items.
//
// # Population
//
// Cells are visited in ascending order. Every item reachable from a cell is
// inserted exactly once, when its first cell is visited; items without a
// cell are never inserted. WithCheck runs the tree's consistency check after
// every cell and once at the end; a failure aborts the build with a
// *CreationError. The inner node signatures are aggregated once after the
// last insertion.
//
// # Validation
//
//	o, _ := oracle.NewBleve(ctx, st)
//	report, _ := sigtree.NewValidator(idx, o).Validate(ctx)
//	if report.Failed() { ... }
//
// The validator checks the tree structure, that every cell's items are found
// by a query for the cell's boundary, and that the tree's result for each of
// the most frequent tokens contains everything the oracle returns, both
// store-wide and per cell. Mismatches are recorded in the Report and never
// returned as errors.
//
// # Serialization
//
// Index.Serialize writes the tree and the scheme's traits as two compressed
// streams; Index.EqualSerialized compares a built index against them.
package sigtree
