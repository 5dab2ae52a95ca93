package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalize folds text into the canonical form used for dictionary matching:
// NFKC, full-width to half-width, ASCII lower case, collapsed whitespace.
func Normalize(text string) string {
	text = width.Narrow.String(norm.NFKC.String(text))

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		if r < unicode.MaxASCII {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Digits returns only the decimal digits of s after width folding, so
// "１３８-0013 8888" becomes "13800138888".
func Digits(s string) string {
	s = width.Narrow.String(s)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RuneLen counts characters rather than bytes; keyword specificity is measured
// in characters so CJK and Latin keywords are comparable.
func RuneLen(s string) int {
	return len([]rune(s))
}
