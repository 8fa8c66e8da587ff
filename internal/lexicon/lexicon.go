// Package lexicon provides the configurable denylist of offensive terms used by
// the comment moderation pipeline. Terms are grouped by locale, loaded from a
// YAML file, and matched with word-boundary-aware regular expressions so that a
// term never matches as a substring of an unrelated word.
package lexicon

import (
	"regexp"
	"strings"
)

// Boundary classes: a term must be preceded and followed by start/end of text,
// whitespace, punctuation, or a symbol.
const (
	leftBoundary  = `(?:^|[\s\p{P}\p{S}])`
	rightBoundary = `(?:$|[\s\p{P}\p{S}])`
)

type term struct {
	text string
	re   *regexp.Regexp
}

// Lexicon is an immutable denylist for a single locale. It is safe for
// concurrent use.
type Lexicon struct {
	locale string
	terms  []term
	words  map[string]struct{} // single-word terms, for the leetspeak pass
}

// New compiles a lexicon from the given terms. Terms are lower-cased and
// trimmed; empty and duplicate terms are ignored. Multi-word terms match with
// any run of whitespace between words.
func New(locale string, terms []string) *Lexicon {
	l := &Lexicon{
		locale: locale,
		words:  make(map[string]struct{}),
	}
	seen := make(map[string]struct{}, len(terms))
	for _, raw := range terms {
		t := strings.ToLower(strings.TrimSpace(raw))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}

		parts := strings.Fields(t)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		pattern := leftBoundary + strings.Join(parts, `\s+`) + rightBoundary
		l.terms = append(l.terms, term{text: strings.Join(strings.Fields(t), " "), re: regexp.MustCompile(pattern)})
		if len(parts) == 1 {
			l.words[t] = struct{}{}
		}
	}
	return l
}

// Locale returns the locale this lexicon was built for.
func (l *Lexicon) Locale() string {
	return l.locale
}

// Len returns the number of distinct terms.
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.terms)
}

// Match reports whether text contains a denylisted term as a whole word or
// phrase, returning the first matching term. Matching is case-insensitive.
// Single-word terms are additionally checked against leetspeak-normalized
// tokens ("b@dw0rd" matches "badword").
func (l *Lexicon) Match(text string) (string, bool) {
	if l == nil || len(l.terms) == 0 || text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, t := range l.terms {
		if t.re.MatchString(lower) {
			return t.text, true
		}
	}

	if len(l.words) == 0 {
		return "", false
	}
	for _, tok := range tokenizeLeet(lower) {
		if !hasLeetChars(tok) {
			continue
		}
		// "b@dw0rd!" should match without the sentence-final "!" turning into an "i".
		for _, cand := range []string{tok, strings.TrimRight(tok, "!?.,;:")} {
			norm := strings.TrimFunc(normalizeLeet(cand), isEdgePunct)
			if _, ok := l.words[norm]; ok {
				return norm, true
			}
		}
	}
	return "", false
}
