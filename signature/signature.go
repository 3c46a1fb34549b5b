package signature

import "errors"

// ErrCorrupt is returned when a persisted signature cannot be decoded.
var ErrCorrupt = errors.New("signature: corrupted data")

// Predicate reports whether a signature may contain a match.
type Predicate[S any] func(S) bool

// MatchOptions tune MayHaveMatch.
type MatchOptions struct {
	// Prefix accepts every token starting with the query instead of the
	// query token only.
	Prefix bool
}

// Scheme is a signature algebra over signatures of type S.
//
// Implementations must be safe for concurrent use once training (if any)
// is complete. Combine must not modify its arguments.
type Scheme[S any] interface {
	// Name returns the stable scheme name (e.g. "qgram").
	Name() string

	// Signature returns the signature of a single normalized token.
	Signature(token string) S

	// Identity returns the neutral element of Combine.
	Identity() S

	// Combine returns a signature representing the union of a and b.
	Combine(a, b S) S

	// Equal reports whether a and b represent the same signature value.
	Equal(a, b S) bool

	// MayHaveMatch returns a predicate that accepts every signature whose
	// token set may contain query.
	MayHaveMatch(query string, opts MatchOptions) Predicate[S]

	// AppendSignature appends the binary form of s to dst.
	AppendSignature(dst []byte, s S) []byte

	// DecodeSignature decodes a signature written by AppendSignature and
	// returns the number of bytes consumed.
	DecodeSignature(src []byte) (S, int, error)

	// MarshalBinary returns the scheme's traits metadata (parameters and any
	// trained dictionary).
	MarshalBinary() ([]byte, error)
}

// Trainer is implemented by schemes that gather the token vocabulary before
// the first signature is computed.
//
// Add must not be called concurrently with itself or with Signature.
// Tokens added after the first Signature call are ignored.
type Trainer interface {
	Add(token string)
}

// CombineAll folds Combine over sigs starting at the identity.
func CombineAll[S any](s Scheme[S], sigs ...S) S {
	acc := s.Identity()
	for _, sig := range sigs {
		acc = s.Combine(acc, sig)
	}
	return acc
}

// OfTokens returns the combined signature of all tokens.
func OfTokens[S any](s Scheme[S], tokens ...string) S {
	acc := s.Identity()
	for _, t := range tokens {
		acc = s.Combine(acc, s.Signature(t))
	}
	return acc
}
