package store

import (
	"cmp"
	"slices"
)

type kvKey struct{ key, value uint32 }

// kvCounter accumulates key/value pair frequencies.
type kvCounter map[kvKey]uint32

func (c kvCounter) add(key, value uint32) { c[kvKey{key, value}]++ }

// sorted returns the statistics ordered by descending count, then by key
// and value id.
func (c kvCounter) sorted() []KVStat {
	out := make([]KVStat, 0, len(c))
	for k, n := range c {
		out = append(out, KVStat{KeyID: k.key, ValueID: k.value, Count: n})
	}
	slices.SortFunc(out, func(a, b KVStat) int {
		if d := cmp.Compare(b.Count, a.Count); d != 0 {
			return d
		}
		if d := cmp.Compare(a.KeyID, b.KeyID); d != 0 {
			return d
		}
		return cmp.Compare(a.ValueID, b.ValueID)
	})
	return out
}

// TopK returns the first k entries of stats sorted by sorted().
func TopK(stats []KVStat, k int) []KVStat {
	if k < 0 || k > len(stats) {
		k = len(stats)
	}
	return slices.Clone(stats[:k])
}
