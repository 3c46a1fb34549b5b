package signature

const (
	// GramStart pads the beginning of a token before q-gram extraction.
	GramStart = '\x02'
	// GramEnd pads the end of a token before q-gram extraction.
	GramEnd = '\x03'
)

// QGrams returns the padded q-grams of s, one per rune position.
//
// The token is padded with q-1 GramStart runes in front and q-1 GramEnd runes
// at the back, so every rune of s appears in exactly q grams. With prefix set,
// grams containing end padding are omitted: the result is then a subset of the
// grams of every string starting with s.
//
// Duplicates are kept; q < 1 is treated as 1.
func QGrams(s string, q int, prefix bool) []string {
	if q < 1 {
		q = 1
	}
	runes := make([]rune, 0, len(s)+2*(q-1))
	for i := 0; i < q-1; i++ {
		runes = append(runes, GramStart)
	}
	runes = append(runes, []rune(s)...)
	body := len(runes)
	if !prefix {
		for i := 0; i < q-1; i++ {
			runes = append(runes, GramEnd)
		}
	}

	last := len(runes) - q
	if prefix {
		last = body - q
	}
	if last < 0 {
		return nil
	}
	grams := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		grams = append(grams, string(runes[i:i+q]))
	}
	return grams
}
