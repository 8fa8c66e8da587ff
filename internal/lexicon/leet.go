package lexicon

import (
	"strings"
	"unicode"
)

// leetMap maps common leetspeak substitutions back to letters.
var leetMap = map[rune]rune{
	'@': 'a',
	'4': 'a',
	'0': 'o',
	'1': 'i',
	'!': 'i',
	'3': 'e',
	'$': 's',
	'5': 's',
	'7': 't',
}

// normalizeLeet replaces leetspeak characters with the letters they stand for.
func normalizeLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := leetMap[r]; ok {
			b.WriteRune(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenizeLeet splits on whitespace only, keeping symbols that may be
// leetspeak substitutions attached to their word.
func tokenizeLeet(s string) []string {
	return strings.Fields(s)
}

func hasLeetChars(tok string) bool {
	for _, r := range tok {
		if _, ok := leetMap[r]; ok {
			return true
		}
	}
	return false
}

// isEdgePunct trims punctuation that survives normalization at token edges,
// e.g. the trailing comma in "b@dw0rd,".
func isEdgePunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
