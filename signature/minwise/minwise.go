// Package minwise implements min-wise hashing signatures over q-grams.
//
// A signature holds, for each of Size hash functions, the minimum hash value
// over all q-grams of all tokens in the set. Combine is the element-wise
// minimum, with the all-ones signature as identity.
//
// If token t is in the set, every q-gram of t contributed to the minimum, so
// sig[i] <= min over t's q-grams of h_i for every i. MayHaveMatch checks
// exactly this inequality, which gives a predicate without false negatives.
// Keeping only the top HashSize bytes of each value preserves the order and
// thus soundness, at the price of more false positives.
package minwise

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/signature"
)

// Size is the number of min-hashes per signature.
const Size = 56

// Signature is a fixed-size min-hash vector.
type Signature [Size]uint64

// Options configures the scheme.
type Options struct {
	// Family selects the hash functions. Default: LCG64.
	Family Family

	// Q is the q-gram length. Default: 3.
	Q int

	// HashSize is the number of bytes kept per min-hash (1..8). Default: 2.
	HashSize int

	// Seed derives the LCG coefficients.
	Seed uint64
}

// DefaultOptions are used by New.
var DefaultOptions = Options{
	Family:   LCG64,
	Q:        3,
	HashSize: 2,
	Seed:     0x5eed,
}

// Scheme is the min-wise hashing algebra.
type Scheme struct {
	opts  Options
	h     hasher
	shift uint
	top   uint64
}

var _ signature.Scheme[Signature] = (*Scheme)(nil)

// New creates a min-wise scheme. It fails on an unknown family or an
// out-of-range hash size.
func New(optFns ...func(o *Options)) (*Scheme, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Q < 1 {
		opts.Q = DefaultOptions.Q
	}
	if opts.HashSize < 1 || opts.HashSize > 8 {
		return nil, fmt.Errorf("minwise: hash size %d out of range [1, 8]", opts.HashSize)
	}
	h, ok := newHasher(opts.Family, Size, opts.Seed)
	if !ok {
		return nil, fmt.Errorf("minwise: unknown hash family %q", opts.Family)
	}

	shift := uint(64 - 8*opts.HashSize)
	return &Scheme{
		opts:  opts,
		h:     h,
		shift: shift,
		top:   math.MaxUint64 >> shift,
	}, nil
}

// Name implements signature.Scheme.
func (s *Scheme) Name() string { return "minwise-" + string(s.opts.Family) }

// Options returns the effective options.
func (s *Scheme) Options() Options { return s.opts }

func (s *Scheme) minHash(token string, prefix bool) Signature {
	sig := s.Identity()
	vals := make([]uint64, Size)
	for _, g := range signature.QGrams(token, s.opts.Q, prefix) {
		s.h.hash(g, vals)
		for i, v := range vals {
			if v >>= s.shift; v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Signature implements signature.Scheme.
func (s *Scheme) Signature(token string) Signature {
	return s.minHash(token, false)
}

// Identity implements signature.Scheme.
func (s *Scheme) Identity() Signature {
	var sig Signature
	for i := range sig {
		sig[i] = s.top
	}
	return sig
}

// Combine implements signature.Scheme.
func (s *Scheme) Combine(a, b Signature) Signature {
	for i := range a {
		a[i] = min(a[i], b[i])
	}
	return a
}

// Equal implements signature.Scheme.
func (s *Scheme) Equal(a, b Signature) bool {
	return a == b
}

// MayHaveMatch implements signature.Scheme.
func (s *Scheme) MayHaveMatch(query string, opts signature.MatchOptions) signature.Predicate[Signature] {
	want := s.minHash(query, opts.Prefix)
	return func(sig Signature) bool {
		for i := range sig {
			if sig[i] > want[i] {
				return false
			}
		}
		return true
	}
}

// AppendSignature implements signature.Scheme.
// Format: Size values of HashSize big-endian bytes.
func (s *Scheme) AppendSignature(dst []byte, sig Signature) []byte {
	var buf [8]byte
	n := s.opts.HashSize
	for _, v := range sig {
		binary.BigEndian.PutUint64(buf[:], v)
		dst = append(dst, buf[8-n:]...)
	}
	return dst
}

// DecodeSignature implements signature.Scheme.
func (s *Scheme) DecodeSignature(src []byte) (Signature, int, error) {
	var sig Signature
	n := s.opts.HashSize
	if len(src) < Size*n {
		return sig, 0, signature.ErrCorrupt
	}
	var buf [8]byte
	for i := range sig {
		clear(buf[:])
		copy(buf[8-n:], src[i*n:(i+1)*n])
		sig[i] = binary.BigEndian.Uint64(buf[:])
	}
	return sig, Size * n, nil
}

type traits struct {
	Name     string `json:"name"`
	Family   Family `json:"family"`
	Q        int    `json:"q"`
	HashSize int    `json:"hash_size"`
	Seed     uint64 `json:"seed"`
}

// MarshalBinary implements signature.Scheme.
func (s *Scheme) MarshalBinary() ([]byte, error) {
	return codec.Seal(codec.Default, "traits", traits{
		Name:     s.Name(),
		Family:   s.opts.Family,
		Q:        s.opts.Q,
		HashSize: s.opts.HashSize,
		Seed:     s.opts.Seed,
	})
}

// UnmarshalBinary restores a scheme from traits written by MarshalBinary.
func UnmarshalBinary(data []byte) (*Scheme, error) {
	var t traits
	if err := codec.Open(data, "traits", &t); err != nil {
		return nil, err
	}
	return New(func(o *Options) {
		o.Family = t.Family
		o.Q = t.Q
		o.HashSize = t.HashSize
		o.Seed = t.Seed
	})
}
