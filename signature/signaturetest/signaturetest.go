// Package signaturetest provides conformance checks for signature.Scheme
// implementations.
package signaturetest

import (
	"testing"

	"github.com/hupe1980/sigtree/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CheckLaws verifies the algebraic contract of s on the given tokens:
// Combine is commutative and associative, Identity is neutral, signatures
// are deterministic, combining never drops a token and binary encoding
// round-trips.
//
// tokens must hold at least three entries.
func CheckLaws[S any](t *testing.T, s signature.Scheme[S], tokens []string) {
	t.Helper()
	require.GreaterOrEqual(t, len(tokens), 3, "need at least three tokens")

	a := s.Signature(tokens[0])
	b := s.Signature(tokens[1])
	c := s.Signature(tokens[2])

	assert.True(t, s.Equal(a, s.Signature(tokens[0])), "signature not deterministic")
	assert.True(t, s.Equal(s.Combine(a, b), s.Combine(b, a)), "combine not commutative")
	assert.True(t, s.Equal(
		s.Combine(s.Combine(a, b), c),
		s.Combine(a, s.Combine(b, c)),
	), "combine not associative")
	assert.True(t, s.Equal(a, s.Combine(a, s.Identity())), "identity not neutral")
	assert.True(t, s.Equal(a, s.Combine(s.Identity(), a)), "identity not neutral")
	assert.True(t, s.Equal(s.Combine(a, b), s.Combine(s.Combine(a, b), a)), "combine not idempotent")

	// Combine must not modify its arguments.
	before := s.AppendSignature(nil, a)
	_ = s.Combine(a, c)
	assert.Equal(t, before, s.AppendSignature(nil, a), "combine modified its argument")

	all := signature.OfTokens(s, tokens...)
	for _, tok := range tokens {
		assert.True(t, s.MayHaveMatch(tok, signature.MatchOptions{})(all), "false negative for %q", tok)
		assert.True(t, s.MayHaveMatch(tok, signature.MatchOptions{})(s.Signature(tok)), "false negative for %q", tok)
	}

	buf := s.AppendSignature([]byte{0xff}, all)
	got, n, err := s.DecodeSignature(buf[1:])
	require.NoError(t, err)
	assert.Equal(t, len(buf)-1, n)
	assert.True(t, s.Equal(all, got), "encoding does not round-trip")

	_, _, err = s.DecodeSignature(nil)
	assert.ErrorIs(t, err, signature.ErrCorrupt)
}

// CheckPrefix verifies that prefix predicates accept every token starting
// with the prefix.
func CheckPrefix[S any](t *testing.T, s signature.Scheme[S], prefix string, tokens []string) {
	t.Helper()

	p := s.MayHaveMatch(prefix, signature.MatchOptions{Prefix: true})
	for _, tok := range tokens {
		assert.True(t, p(s.Signature(tok)), "prefix %q rejected %q", prefix, tok)
	}
}
