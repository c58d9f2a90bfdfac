package memory

import (
	"strings"
	"unicode"
)

// maxKeyRunes caps stored keys; labels longer than this are questions whose
// tail carries no identity.
const maxKeyRunes = 100

// NormalizeLabel produces the canonical learning-store key for a field
// label: case-folded, punctuation stripped to spaces, whitespace collapsed,
// capped at 100 runes. The function is idempotent:
// NormalizeLabel(NormalizeLabel(s)) == NormalizeLabel(s).
func NormalizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	lastSpace := true
	count := 0
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
			count++
		default:
			// Punctuation and whitespace both collapse to a single space.
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
				count++
			}
		}
		if count >= maxKeyRunes {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
