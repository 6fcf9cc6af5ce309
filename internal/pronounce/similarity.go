// Package pronounce decides whether a child's spoken utterance counts as the
// expected English word.
//
// Recognition engines are noisy and children's pronunciation is imprecise, so
// the [Classifier] walks a ladder of increasingly permissive checks, from an
// exact match down to a loose first-letter heuristic. The first tier that
// accepts wins and is reported as the match [Reason].
package pronounce

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity returns the normalised edit-distance similarity of a and b in
// [0, 1], computed as 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
//
// Comparison is case-insensitive. Two empty strings are identical (1.0); a
// single empty side scores 0. The caller is responsible for trimming and
// punctuation stripping.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(matchr.Levenshtein(a, b))/float64(maxLen)
}
