// Package cache provides LRU caches for decoded store records keyed by
// item id.
//
// Sharded spreads ids over independently locked LRU shards so that the
// parallel signature and validation workers rarely contend.
package cache
