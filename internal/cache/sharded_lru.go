package cache

const numShards = 16

// Sharded is an LRU cache split into shards by key.
type Sharded[V any] struct {
	shards [numShards]*LRU[V]
}

// NewSharded creates a sharded cache. The capacity is divided evenly across
// all shards.
func NewSharded[V any](capacity int) *Sharded[V] {
	s := &Sharded[V]{}
	for i := range numShards {
		s.shards[i] = NewLRU[V](capacity / numShards)
	}
	return s
}

// Sequential ids land on different shards.
func (s *Sharded[V]) shard(key uint32) *LRU[V] {
	return s.shards[key%numShards]
}

// Get returns the cached value for key.
func (s *Sharded[V]) Get(key uint32) (V, bool) { return s.shard(key).Get(key) }

// Set caches value under key.
func (s *Sharded[V]) Set(key uint32, value V) { s.shard(key).Set(key, value) }

// Len returns the number of cached entries across all shards.
func (s *Sharded[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

// Stats returns aggregated hit/miss statistics.
func (s *Sharded[V]) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}
