package deck

import (
	"strings"
	"unicode/utf16"
)

const (
	pdfExtension   = ".pdf"
	pdfContentType = "application/pdf"
)

// SanitizeTitle replaces every character outside [A-Za-z0-9-_] with an underscore.
// Characters outside the Basic Multilingual Plane become two underscores, one per
// UTF-16 code unit, so names match those produced by browser-side exporters.
// Applying it more than once yields the same result.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if isFilenameRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteString(strings.Repeat("_", max(utf16.RuneLen(r), 1)))
	}
	return b.String()
}

// Filename derives the output file name for a deck title. An empty title
// yields ".pdf".
func Filename(title string) string {
	return SanitizeTitle(title) + pdfExtension
}

func isFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
