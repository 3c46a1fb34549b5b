// Package testutil provides testing utilities for sigtree.
//
// This package is intended for use in tests and benchmarks only.
// It provides a deterministic random source and a generator for synthetic
// geo hierarchies with skewed key/value distributions.
//
// # Random Generation
//
//	rng := testutil.NewRNG(seed)
//	k := rng.Zipf(len(keys), 1.2)
//
// # Synthetic Stores
//
//	st, err := testutil.NewGrid(rng, testutil.DefaultGrid)
package testutil
