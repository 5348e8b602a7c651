// Package similarity scores how alike two short strings are.
//
// Scores are Ratcliff/Obershelp sequence-alignment ratios computed over
// runes, so partial overlap produces a graded score and multi-byte scripts
// (Devanagari, Gujarati) are compared character by character.
package similarity

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Score returns the similarity of a and b in [0,1].
// Comparison is case-insensitive and symmetric. Two empty strings score 1,
// one empty string scores 0.
func Score(a, b string) float64 {
	return ScoreNormalized(Normalize(a), Normalize(b))
}

// ScoreNormalized is Score for inputs that already went through Normalize.
func ScoreNormalized(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ra, rb := runes(a), runes(b)
	forward := ratio(ra, rb)
	backward := ratio(rb, ra)
	if backward > forward {
		return backward
	}
	return forward
}

func ratio(a, b []string) float64 {
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	return m.Ratio()
}

// runes splits s into one element per rune, as difflib compares slices of strings.
func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Normalize folds s into the form used for every comparison: NFC composed,
// lowercased, punctuation replaced by spaces, and whitespace collapsed.
// Scripts without case pass through unchanged.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// cases.Caser keeps internal state and must not be shared across goroutines.
	lower := cases.Lower(language.Und).String(norm.NFC.String(s))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, lower)
	return strings.Join(strings.Fields(cleaned), " ")
}

// Tokens returns the whitespace-delimited words of the normalized input.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// RuneLen returns the number of characters in s.
func RuneLen(s string) int {
	return len([]rune(s))
}
