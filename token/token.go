// Package token turns key:value pairs into the normalized strings that are
// fed to signature schemes and to the oracle.
package token

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Prefix starts every key:value token.
const Prefix = "@"

// Make forms the raw token "@key:value". The result is not normalized.
func Make(key, value string) string {
	var sb strings.Builder
	sb.Grow(len(Prefix) + len(key) + 1 + len(value))
	sb.WriteString(Prefix)
	sb.WriteString(key)
	sb.WriteByte(':')
	sb.WriteString(value)
	return sb.String()
}

// Normalize case-folds s to lower case using Unicode rules.
//
// Both the index and the oracle must see tokens through this function,
// otherwise their results are not comparable.
func Normalize(s string) string {
	// cases.Caser keeps state and is not safe for concurrent use.
	return cases.Lower(language.Und).String(s)
}

// Normalized is Normalize(Make(key, value)).
func Normalized(key, value string) string {
	return Normalize(Make(key, value))
}

// Quote wraps s into a literal (phrase) query: "s".
func Quote(s string) string {
	return `"` + s + `"`
}

// Unquote strips one pair of surrounding double quotes from q. The boolean
// reports whether q was quoted.
func Unquote(q string) (string, bool) {
	if len(q) >= 2 && q[0] == '"' && q[len(q)-1] == '"' {
		return q[1 : len(q)-1], true
	}
	return q, false
}
