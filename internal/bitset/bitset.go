package bitset

import (
	"iter"
	"math/bits"
	"sync/atomic"
)

// BitSet is a thread-safe bitset of fixed length.
type BitSet struct {
	words []atomic.Uint64
	size  uint64
}

// New creates a BitSet holding ids in [0, size).
func New(size uint64) *BitSet {
	return &BitSet{
		words: make([]atomic.Uint64, (size+63)/64),
		size:  size,
	}
}

// Len returns the size of the bitset in bits.
func (b *BitSet) Len() uint64 {
	return b.size
}

// Contains reports whether i is inside the bitset's range.
func (b *BitSet) Contains(i uint64) bool {
	return i < b.size
}

// Set sets the bit at the given index. Out-of-range indices are ignored.
func (b *BitSet) Set(i uint64) {
	if i >= b.size {
		return
	}
	b.words[i/64].Or(uint64(1) << (i % 64))
}

// TestAndSet sets the bit at the given index and returns true if it was
// ALREADY set. Out-of-range indices report false and change nothing.
func (b *BitSet) TestAndSet(i uint64) bool {
	if i >= b.size {
		return false
	}
	w := &b.words[i/64]
	mask := uint64(1) << (i % 64)

	// Optimistic check
	if w.Load()&mask != 0 {
		return true
	}
	for {
		old := w.Load()
		if old&mask != 0 {
			return true
		}
		if w.CompareAndSwap(old, old|mask) {
			return false
		}
	}
}

// Test returns true if the bit at the given index is set.
func (b *BitSet) Test(i uint64) bool {
	if i >= b.size {
		return false
	}
	return b.words[i/64].Load()&(uint64(1)<<(i%64)) != 0
}

// Count returns the number of set bits.
func (b *BitSet) Count() int {
	count := 0
	for i := range b.words {
		count += bits.OnesCount64(b.words[i].Load())
	}
	return count
}

// All iterates over the set bits in ascending order.
func (b *BitSet) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for i := range b.words {
			w := b.words[i].Load()
			for w != 0 {
				tz := uint64(bits.TrailingZeros64(w))
				if !yield(uint64(i)*64 + tz) {
					return
				}
				w &= w - 1
			}
		}
	}
}

// ClearAll clears all bits in the bitset.
func (b *BitSet) ClearAll() {
	for i := range b.words {
		b.words[i].Store(0)
	}
}
