package scoring

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into runs of letters, digits and
// underscores.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// Score is the word-level LCS length between reference and candidate divided
// by the reference token count. It is 0 when either text is empty or the
// reference has no tokens, and always within [0, 1].
func Score(reference, candidate string) float64 {
	if reference == "" || candidate == "" {
		return 0
	}
	ref := Tokenize(reference)
	if len(ref) == 0 {
		return 0
	}
	return float64(lcsLength(ref, Tokenize(candidate))) / float64(len(ref))
}

// lcsLength keeps two rolling rows instead of the full table.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
