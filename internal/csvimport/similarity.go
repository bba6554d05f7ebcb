package csvimport

import (
	"strings"
	"unicode"
)

// Similarity scores two descriptions from 0 to 100. Descriptions that match
// after normalization, or where one contains the other, score 100; otherwise
// the score is the edit-distance ratio of the normalized strings.
func Similarity(a, b string) int {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 100
	}

	ra, rb := []rune(na), []rune(nb)
	longest := max(len(ra), len(rb))
	d := levenshtein(ra, rb)
	return int(float64(longest-d) / float64(longest) * 100)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
