// Package qgram implements the q-gram bit-sketch signature scheme.
//
// Each token is split into padded q-grams. Every q-gram maps to one bit of a
// fixed-width sketch; a signature is the set of bits of its tokens' q-grams.
// Like a Bloom filter the sketch can say "definitely not present" but may
// report false positives:
//
//   - If a query q-gram bit is missing → the token is not in the set
//   - If all bits are present → the token may be in the set
//
// The most frequent q-grams of the training vocabulary get a bit of their
// own. The remainder and q-grams never seen in training hash into a reserved
// fallback range at the end of the sketch, the same way for items and
// queries.
package qgram

import (
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/signature"
)

// Name is the stable scheme name.
const Name = "qgram"

// Options configures the sketch.
type Options struct {
	// Q is the q-gram length. Default: 3.
	Q int

	// MaxBits caps the sketch width, fallback range included. Rounded up to
	// a multiple of 64. Default: 4096.
	MaxBits int

	// FallbackBits is the width of the range untrained q-grams hash into.
	// Rounded up to a multiple of 64. Default: 64.
	FallbackBits int
}

// DefaultOptions are used by New.
var DefaultOptions = Options{
	Q:            3,
	MaxBits:      4096,
	FallbackBits: 64,
}

// Scheme is the q-gram sketch algebra.
type Scheme struct {
	opts Options

	counts map[string]int // training only

	once   sync.Once
	frozen atomic.Bool
	width  uint
	base   uint // first fallback bit
	bits   map[string]uint
	grams  []string // bit order
}

var (
	_ signature.Scheme[*bitset.BitSet] = (*Scheme)(nil)
	_ signature.Trainer                = (*Scheme)(nil)
)

// New creates a q-gram scheme.
func New(optFns ...func(o *Options)) *Scheme {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Q < 1 {
		opts.Q = DefaultOptions.Q
	}
	if opts.FallbackBits < 64 {
		opts.FallbackBits = 64
	}
	opts.FallbackBits = roundWords(opts.FallbackBits)
	if opts.MaxBits < opts.FallbackBits {
		opts.MaxBits = opts.FallbackBits
	}
	opts.MaxBits = roundWords(opts.MaxBits)

	return &Scheme{
		opts:   opts,
		counts: make(map[string]int),
	}
}

// Name implements signature.Scheme.
func (s *Scheme) Name() string { return Name }

// Q returns the q-gram length.
func (s *Scheme) Q() int { return s.opts.Q }

// Add counts the q-grams of token. Tokens added after the first Signature
// call are ignored.
func (s *Scheme) Add(token string) {
	if s.frozen.Load() {
		return
	}
	for _, g := range signature.QGrams(token, s.opts.Q, false) {
		s.counts[g]++
	}
}

// Width returns the sketch width in bits. It freezes the dictionary.
func (s *Scheme) Width() int {
	s.freeze()
	return int(s.width)
}

// freeze assigns bits to the trained q-grams, most frequent first.
func (s *Scheme) freeze() {
	s.once.Do(func() {
		grams := make([]string, 0, len(s.counts))
		for g := range s.counts {
			grams = append(grams, g)
		}
		sort.Slice(grams, func(i, j int) bool {
			ci, cj := s.counts[grams[i]], s.counts[grams[j]]
			if ci != cj {
				return ci > cj
			}
			return grams[i] < grams[j]
		})
		if limit := s.opts.MaxBits - s.opts.FallbackBits; len(grams) > limit {
			grams = grams[:limit]
		}
		s.assign(grams, uint(s.opts.FallbackBits))
		s.counts = nil
		s.frozen.Store(true)
	})
}

func (s *Scheme) assign(grams []string, fallback uint) {
	s.base = uint(roundWords(len(grams)))
	s.width = s.base + fallback
	s.grams = grams
	s.bits = make(map[string]uint, len(grams))
	for i, g := range grams {
		s.bits[g] = uint(i)
	}
}

func (s *Scheme) bit(gram string) uint {
	if b, ok := s.bits[gram]; ok {
		return b
	}
	return s.base + uint(xxhash.Sum64String(gram)%uint64(s.width-s.base))
}

func (s *Scheme) sketch(token string, prefix bool) *bitset.BitSet {
	bs := bitset.New(s.width)
	for _, g := range signature.QGrams(token, s.opts.Q, prefix) {
		bs.Set(s.bit(g))
	}
	return bs
}

// Signature implements signature.Scheme.
func (s *Scheme) Signature(token string) *bitset.BitSet {
	s.freeze()
	return s.sketch(token, false)
}

// Identity implements signature.Scheme.
func (s *Scheme) Identity() *bitset.BitSet {
	s.freeze()
	return bitset.New(s.width)
}

// Combine implements signature.Scheme.
func (s *Scheme) Combine(a, b *bitset.BitSet) *bitset.BitSet {
	switch {
	case a == nil && b == nil:
		return s.Identity()
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}
	return a.Union(b)
}

// Equal implements signature.Scheme.
func (s *Scheme) Equal(a, b *bitset.BitSet) bool {
	if a == nil || b == nil {
		return (a == nil || a.None()) && (b == nil || b.None())
	}
	return a.Equal(b)
}

// MayHaveMatch implements signature.Scheme.
func (s *Scheme) MayHaveMatch(query string, opts signature.MatchOptions) signature.Predicate[*bitset.BitSet] {
	s.freeze()
	want := s.sketch(query, opts.Prefix)
	return func(sig *bitset.BitSet) bool {
		if sig == nil {
			return want.None()
		}
		return sig.IsSuperSet(want)
	}
}

// AppendSignature implements signature.Scheme.
// Format: width/64 little-endian words.
func (s *Scheme) AppendSignature(dst []byte, sig *bitset.BitSet) []byte {
	s.freeze()
	words := int(s.width / 64)
	var src []uint64
	if sig != nil {
		src = sig.Words()
	}
	for i := 0; i < words; i++ {
		var w uint64
		if i < len(src) {
			w = src[i]
		}
		dst = binary.LittleEndian.AppendUint64(dst, w)
	}
	return dst
}

// DecodeSignature implements signature.Scheme.
func (s *Scheme) DecodeSignature(src []byte) (*bitset.BitSet, int, error) {
	s.freeze()
	words := int(s.width / 64)
	if len(src) < words*8 {
		return nil, 0, signature.ErrCorrupt
	}
	buf := make([]uint64, words)
	for i := range buf {
		buf[i] = binary.LittleEndian.Uint64(src[i*8:])
	}
	return bitset.From(buf), words * 8, nil
}

type traits struct {
	Name     string   `json:"name"`
	Q        int      `json:"q"`
	Width    uint     `json:"width"`
	Fallback uint     `json:"fallback"`
	Grams    []string `json:"grams"`
}

// MarshalBinary implements signature.Scheme. It freezes the dictionary.
func (s *Scheme) MarshalBinary() ([]byte, error) {
	s.freeze()
	return codec.Seal(codec.Default, "traits", traits{
		Name:     Name,
		Q:        s.opts.Q,
		Width:    s.width,
		Fallback: s.width - s.base,
		Grams:    s.grams,
	})
}

// UnmarshalBinary restores a frozen scheme from traits written by
// MarshalBinary.
func UnmarshalBinary(data []byte) (*Scheme, error) {
	var t traits
	if err := codec.Open(data, "traits", &t); err != nil {
		return nil, err
	}
	if t.Name != Name || t.Fallback == 0 || t.Fallback%64 != 0 ||
		t.Width != uint(roundWords(len(t.Grams)))+t.Fallback {
		return nil, signature.ErrCorrupt
	}
	s := New(func(o *Options) {
		o.Q = t.Q
		o.MaxBits = int(t.Width)
		o.FallbackBits = int(t.Fallback)
	})
	s.once.Do(func() {
		s.assign(t.Grams, t.Fallback)
		s.counts = nil
		s.frozen.Store(true)
	})
	return s, nil
}

func roundWords(n int) int {
	return (n + 63) / 64 * 64
}
