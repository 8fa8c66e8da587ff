package moderation

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the default comment length limit in characters.
	DefaultMaxLength = 2000

	repeatThreshold   = 5   // identical alphanumeric characters in a row
	shoutingMinWords  = 5   // fewer words are never considered shouting
	shoutingMinLength = 3   // words shorter than this never count as caps
	shoutingRatio     = 0.5 // caps/words must exceed this
)

// TooLong reports whether text has more than limit characters.
func TooLong(text string, limit int) bool {
	return utf8.RuneCountInString(text) > limit
}

// HasRepeatedRun reports whether text contains a run of 5 or more identical
// ASCII letters or digits. RE2 has no backreferences, so this is a linear scan
// rather than ([A-Za-z0-9])\1{4,}.
func HasRepeatedRun(text string) bool {
	count := 0
	var prev byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !isASCIIAlnum(c) {
			count = 0
			prev = 0
			continue
		}
		if c == prev {
			count++
		} else {
			count = 1
			prev = c
		}
		if count >= repeatThreshold {
			return true
		}
	}
	return false
}

// IsShouting reports whether text has at least 5 whitespace-separated words
// and more than half of them are written in capitals. Words of 1-2 characters
// never count as capitals but still count towards the total.
func IsShouting(text string) bool {
	words := strings.Fields(text)
	if len(words) < shoutingMinWords {
		return false
	}
	caps := 0
	for _, w := range words {
		if utf8.RuneCountInString(w) >= shoutingMinLength && w == strings.ToUpper(w) {
			caps++
		}
	}
	return float64(caps)/float64(len(words)) > shoutingRatio
}

func isASCIIAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Heuristics runs the cheap pre-checks in a fixed order: length, repetition,
// shouting. The lexicon is not part of the pre-check; it reconciles the model
// verdict instead.
type Heuristics struct {
	MaxLength int
}

// Precheck returns the first rule the text violates.
func (h Heuristics) Precheck(text string) (Rule, bool) {
	limit := h.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	switch {
	case TooLong(text, limit):
		return RuleLength, true
	case HasRepeatedRun(text):
		return RuleRepetition, true
	case IsShouting(text):
		return RuleShouting, true
	}
	return RuleNone, false
}
