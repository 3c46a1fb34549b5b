package minwise

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/sha3"
)

// Family selects the hash functions of the min-wise permutations.
type Family string

const (
	// LCG32 uses h_i(x) = a_i*x + b_i mod 2^32 over a 32-bit gram hash.
	LCG32 Family = "lcg32"
	// LCG64 uses h_i(x) = a_i*x + b_i mod 2^64 over a 64-bit gram hash.
	LCG64 Family = "lcg64"
	// SHA3 uses the first 8 bytes of SHA3-256(i || gram).
	SHA3 Family = "sha"
)

// hasher maps a gram to one value per permutation. Values are 64-bit with
// the significant bits at the top, so truncation keeps the order.
type hasher interface {
	hash(gram string, dst []uint64)
}

func newHasher(f Family, n int, seed uint64) (hasher, bool) {
	switch f {
	case LCG32, LCG64:
		a, b := coefficients(n, seed)
		return lcg{a: a, b: b, wide: f == LCG64}, true
	case SHA3:
		return shaHasher{n: n}, true
	default:
		return nil, false
	}
}

// coefficients derives n odd multipliers and n offsets with splitmix64.
func coefficients(n int, seed uint64) (a, b []uint64) {
	a = make([]uint64, n)
	b = make([]uint64, n)
	x := seed
	next := func() uint64 {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		return z ^ (z >> 31)
	}
	for i := 0; i < n; i++ {
		a[i] = next() | 1
		b[i] = next()
	}
	return a, b
}

type lcg struct {
	a, b []uint64
	wide bool
}

func (h lcg) hash(gram string, dst []uint64) {
	x := xxhash.Sum64String(gram)
	if h.wide {
		for i := range dst {
			dst[i] = h.a[i]*x + h.b[i]
		}
		return
	}
	x32 := uint32(x)
	for i := range dst {
		dst[i] = uint64(uint32(h.a[i])*x32+uint32(h.b[i])) << 32
	}
}

type shaHasher struct {
	n int
}

func (h shaHasher) hash(gram string, dst []uint64) {
	buf := make([]byte, 4+len(gram))
	copy(buf[4:], gram)
	for i := range dst {
		binary.BigEndian.PutUint32(buf, uint32(i))
		sum := sha3.Sum256(buf)
		dst[i] = binary.BigEndian.Uint64(sum[:8])
	}
}
