// Package bitset provides a fixed-size, lock-free bitset over dense ids.
//
// Architecture:
//   - One atomic.Uint64 per 64 ids, allocated up front
//   - TestAndSet is a CAS loop, so check-and-mark of an id is atomic
//
// Used internally for:
//   - The processed-items set of a build (each item inserted exactly once)
package bitset
