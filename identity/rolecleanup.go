package identity

import (
	"strings"
	"unicode"
)

// roleMarkers are leading/trailing tokens stripped from a raw role
// string, spec.md §4.1 "Role-name cleanup".
var roleMarkers = []string{"as", "饰演", "饰", "扮演", "配音", "配"}

// Placeholders is the set of role strings considered "no information"
// placeholders, shared by role-selection (§4.1) and cast scoring.
var Placeholders = map[string]struct{}{
	"演员":      {},
	"配音":      {},
	"actor":   {},
	"actress": {},
}

// IsPlaceholder reports whether role (case-folded, trimmed) is a known
// placeholder, including the "(配音)" suffix form used by the cast
// quality scorer (grounded on original_source/actor_utils.py's
// evaluate_cast_processing_quality).
func IsPlaceholder(role string) bool {
	r := strings.TrimSpace(role)
	if strings.HasSuffix(r, "(配音)") {
		return true
	}
	_, ok := Placeholders[strings.ToLower(r)]
	return ok
}

// CleanRole implements spec.md §4.1 "Role-name cleanup": removes
// wrapping brackets, strips leading/trailing role markers, and for a
// bilingual "<Chinese><Latin>" pair keeps only the Chinese prefix.
// Pure-Latin names and placeholders pass through unchanged.
func CleanRole(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripWrappingBrackets(s)
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) {
		return s
	}

	for _, marker := range roleMarkers {
		if strings.HasPrefix(s, marker) {
			rest := strings.TrimPrefix(s, marker)
			if marker == "as" && !strings.HasPrefix(rest, " ") {
				rest = ""
			}
			if rest = strings.TrimSpace(rest); rest != "" {
				s = rest
			}
		}
		if strings.HasSuffix(s, marker) {
			rest := strings.TrimSuffix(s, marker)
			if marker == "as" && !strings.HasSuffix(rest, " ") {
				rest = ""
			}
			if rest = strings.TrimSpace(rest); rest != "" {
				s = rest
			}
		}
	}
	s = stripWrappingBrackets(strings.TrimSpace(s))

	if containsChinese(s) && containsLatin(s) {
		if prefix := chinesePrefix(s); prefix != "" {
			return prefix
		}
	}
	return s
}

// stripWrappingBrackets removes every "(...)"/"[...]"/"（...）"/"【...】"
// span from s — parenthetical annotations like "(voice)" or "[s1]" are
// qualifiers, not part of the role name.
func stripWrappingBrackets(s string) string {
	pairs := [][2]rune{{'(', ')'}, {'[', ']'}, {'（', '）'}, {'【', '】'}}
	r := []rune(s)
	var b []rune
	i := 0
	for i < len(r) {
		matched := false
		for _, p := range pairs {
			if r[i] == p[0] {
				if end := indexRune(r, p[1], i+1); end >= 0 {
					i = end + 1
					matched = true
					break
				}
			}
		}
		if matched {
			continue
		}
		b = append(b, r[i])
		i++
	}
	return strings.Join(strings.Fields(string(b)), " ")
}

func indexRune(r []rune, target rune, from int) int {
	for i := from; i < len(r); i++ {
		if r[i] == target {
			return i
		}
	}
	return -1
}

// chinesePrefix returns the leading run of CJK characters (and
// adjoining punctuation/spaces) of s, stopping at the first Latin
// letter — used to split a "<Chinese><Latin>" bilingual role pair.
func chinesePrefix(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.IsSpace(r) || unicode.IsPunct(r) {
			b.WriteRune(r)
			continue
		}
		break
	}
	return strings.TrimSpace(b.String())
}

func containsChinese(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func containsLatin(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// ContainsCJK reports whether s contains any CJK (Han) character;
// exported for use by identity.quality and collections rule matching.
func ContainsCJK(s string) bool { return containsChinese(s) }
