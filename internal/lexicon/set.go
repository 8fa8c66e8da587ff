package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultLexicon []byte

// File is the on-disk YAML layout of a lexicon file:
//
//	locales:
//	  en:
//	    terms: [idiot, moron]
//	  pt-BR:
//	    terms: [idiota, babaca]
type File struct {
	Locales map[string]LocaleTerms `yaml:"locales"`
}

// LocaleTerms lists the denylisted terms for one locale.
type LocaleTerms struct {
	Terms []string `yaml:"terms"`
}

// Set holds one Lexicon per locale and resolves request locales to the closest
// configured one.
type Set struct {
	defaultLocale string
	tags          []language.Tag // default locale first
	lexicons      []*Lexicon     // aligned with tags
	matcher       language.Matcher
}

// NewSet builds a Set from a locale -> terms map. defaultLocale must be one of
// the configured locales; it is used when a request locale is empty or has no
// reasonable match.
func NewSet(defaultLocale string, byLocale map[string][]string) (*Set, error) {
	if len(byLocale) == 0 {
		return nil, errors.New("lexicon: no locales configured")
	}
	def, err := language.Parse(defaultLocale)
	if err != nil {
		return nil, fmt.Errorf("lexicon: default locale %q: %w", defaultLocale, err)
	}

	keys := make([]string, 0, len(byLocale))
	for k := range byLocale {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := &Set{defaultLocale: def.String()}
	var defaultIdx = -1
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("lexicon: locale %q: %w", k, err)
		}
		if tag == def {
			defaultIdx = len(s.tags)
		}
		s.tags = append(s.tags, tag)
		s.lexicons = append(s.lexicons, New(tag.String(), byLocale[k]))
	}
	if defaultIdx < 0 {
		return nil, fmt.Errorf("lexicon: default locale %q has no terms configured", defaultLocale)
	}
	// language.Matcher falls back to the first supported tag.
	s.tags[0], s.tags[defaultIdx] = s.tags[defaultIdx], s.tags[0]
	s.lexicons[0], s.lexicons[defaultIdx] = s.lexicons[defaultIdx], s.lexicons[0]
	s.matcher = language.NewMatcher(s.tags)
	return s, nil
}

// Parse decodes a YAML lexicon file.
func Parse(data []byte, defaultLocale string) (*Set, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("lexicon: decode yaml: %w", err)
	}
	byLocale := make(map[string][]string, len(f.Locales))
	for locale, lt := range f.Locales {
		byLocale[locale] = lt.Terms
	}
	return NewSet(defaultLocale, byLocale)
}

// LoadFile reads and parses a YAML lexicon file. An empty path loads the
// embedded default lexicon.
func LoadFile(path, defaultLocale string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(defaultLocale)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: read %s: %w", path, err)
	}
	return Parse(data, defaultLocale)
}

// Default returns the embedded lexicon shipped with the binary.
func Default(defaultLocale string) (*Set, error) {
	return Parse(defaultLexicon, defaultLocale)
}

// For returns the lexicon for the locale closest to the requested one.
func (s *Set) For(locale string) *Lexicon {
	if s == nil || len(s.lexicons) == 0 {
		return nil
	}
	if strings.TrimSpace(locale) == "" {
		return s.lexicons[0]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return s.lexicons[0]
	}
	_, idx, conf := s.matcher.Match(tag)
	if conf == language.No || idx < 0 || idx >= len(s.lexicons) {
		return s.lexicons[0]
	}
	return s.lexicons[idx]
}

// DefaultLocale returns the canonical default locale tag.
func (s *Set) DefaultLocale() string {
	return s.defaultLocale
}

// Locales returns the configured locales, default first.
func (s *Set) Locales() []string {
	out := make([]string, len(s.tags))
	for i, t := range s.tags {
		out[i] = t.String()
	}
	return out
}
