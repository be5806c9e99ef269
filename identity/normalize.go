package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds a cast-member name to a comparison key: Unicode
// NFKD decomposition, combining marks stripped, case-folded, and
// whitespace collapsed. Used to match a local actor against a cultural
// provider's candidate by name when no ID is available (spec.md §4.1
// "Cast matching"), grounded on the teacher's search-normalization
// helpers in clients/metadata/tmdb.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// SameActor reports whether two names normalize to the same key.
func SameActor(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
