// Package stringset implements the exact string-set signature scheme.
//
// Every distinct token gets a dense id; a signature is the roaring bitmap of
// the ids of its tokens. Combine is bitmap union, so the scheme has no false
// positives for exact queries.
package stringset

import (
	"encoding/binary"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/signature"
)

// Name is the stable scheme name.
const Name = "stringset"

// Scheme is the string-set signature algebra.
type Scheme struct {
	mu     sync.RWMutex
	ids    map[string]uint32
	tokens []string
	frozen atomic.Bool
}

var (
	_ signature.Scheme[*roaring.Bitmap] = (*Scheme)(nil)
	_ signature.Trainer                 = (*Scheme)(nil)
)

// New creates an empty string-set scheme.
func New() *Scheme {
	return &Scheme{ids: make(map[string]uint32)}
}

// Name implements signature.Scheme.
func (s *Scheme) Name() string { return Name }

// Add registers token in the dictionary. Tokens added after the first
// Signature call are ignored.
func (s *Scheme) Add(token string) {
	if s.frozen.Load() {
		return
	}
	s.id(token)
}

// Size returns the number of dictionary entries.
func (s *Scheme) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Token returns the dictionary entry for id.
func (s *Scheme) Token(id uint32) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.tokens) {
		return "", false
	}
	return s.tokens[id], true
}

// id returns the id of token, assigning a new one if needed.
func (s *Scheme) id(token string) uint32 {
	s.mu.RLock()
	id, ok := s.ids[token]
	s.mu.RUnlock()
	if ok {
		return id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[token]; ok {
		return id
	}
	id = uint32(len(s.tokens))
	s.ids[token] = id
	s.tokens = append(s.tokens, token)
	return id
}

// Signature implements signature.Scheme. Tokens unknown to the dictionary are
// added on the fly so the result stays sound.
func (s *Scheme) Signature(token string) *roaring.Bitmap {
	s.frozen.Store(true)
	return roaring.BitmapOf(s.id(token))
}

// Identity implements signature.Scheme.
func (s *Scheme) Identity() *roaring.Bitmap {
	return roaring.New()
}

// Combine implements signature.Scheme.
func (s *Scheme) Combine(a, b *roaring.Bitmap) *roaring.Bitmap {
	switch {
	case a == nil && b == nil:
		return roaring.New()
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}
	return roaring.Or(a, b)
}

// Equal implements signature.Scheme.
func (s *Scheme) Equal(a, b *roaring.Bitmap) bool {
	if a == nil || b == nil {
		return (a == nil || a.IsEmpty()) && (b == nil || b.IsEmpty())
	}
	return a.Equals(b)
}

// MayHaveMatch implements signature.Scheme.
func (s *Scheme) MayHaveMatch(query string, opts signature.MatchOptions) signature.Predicate[*roaring.Bitmap] {
	want := roaring.New()
	s.mu.RLock()
	if opts.Prefix {
		for id, tok := range s.tokens {
			if strings.HasPrefix(tok, query) {
				want.Add(uint32(id))
			}
		}
	} else if id, ok := s.ids[query]; ok {
		want.Add(id)
	}
	s.mu.RUnlock()

	if want.IsEmpty() {
		// No signature can contain a token that was never seen.
		return func(*roaring.Bitmap) bool { return false }
	}
	return func(sig *roaring.Bitmap) bool {
		return sig != nil && sig.Intersects(want)
	}
}

// AppendSignature implements signature.Scheme.
// Format: [uvarint length][portable roaring bitmap].
func (s *Scheme) AppendSignature(dst []byte, sig *roaring.Bitmap) []byte {
	if sig == nil {
		sig = roaring.New()
	}
	data, err := sig.ToBytes()
	if err != nil {
		// ToBytes only fails on writer errors, which a bytes.Buffer never returns.
		panic(err)
	}
	dst = binary.AppendUvarint(dst, uint64(len(data)))
	return append(dst, data...)
}

// DecodeSignature implements signature.Scheme.
func (s *Scheme) DecodeSignature(src []byte) (*roaring.Bitmap, int, error) {
	l, n := binary.Uvarint(src)
	if n <= 0 || uint64(len(src)-n) < l {
		return nil, 0, signature.ErrCorrupt
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(src[n : n+int(l)]); err != nil {
		return nil, 0, signature.ErrCorrupt
	}
	return bm, n + int(l), nil
}

type traits struct {
	Name   string   `json:"name"`
	Tokens []string `json:"tokens"`
}

// MarshalBinary implements signature.Scheme. The traits hold the dictionary
// in id order.
func (s *Scheme) MarshalBinary() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return codec.Seal(codec.Default, "traits", traits{Name: Name, Tokens: s.tokens})
}

// UnmarshalBinary restores a scheme from traits written by MarshalBinary.
func UnmarshalBinary(data []byte) (*Scheme, error) {
	var t traits
	if err := codec.Open(data, "traits", &t); err != nil {
		return nil, err
	}
	if t.Name != Name {
		return nil, signature.ErrCorrupt
	}
	s := New()
	for _, tok := range t.Tokens {
		s.id(tok)
	}
	s.frozen.Store(true)
	return s, nil
}
