package normalize

import (
	"strings"
	"unicode"
)

// Label collapses runs of whitespace and trims the ends
func Label(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// LabelKey folds casing, blanks and punctuation so "Other Credits", "other-credits"
// and "OTHER CREDITS:" share one key.
func LabelKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fold lowercases and whitespace-normalizes text for marker matching
func Fold(s string) string {
	return strings.ToLower(Label(s))
}
