// Package facematch provides label and bounding box helpers shared by the
// gallery, the recognition pipeline and the web handlers.
package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel returns the canonical form of an identity label.
// Filenames from some filesystems arrive decomposed (NFD); labels are compared in NFC.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// DisplayLabel converts a label to printable ASCII for bitmap font rendering.
// Characters without an ASCII form are replaced with '?'.
func DisplayLabel(label string) string {
	label = RemoveDiacritics(label)
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}
