package moderation

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrUnparseableOutput marks a model reply from which no verdict could be
// recovered. It is only ever logged; callers always receive a Result.
var ErrUnparseableOutput = errors.New("unparseable model output")

// ParseLevel records which parser level recovered a verdict.
type ParseLevel int

const (
	LevelNone ParseLevel = iota
	LevelStrict
	LevelSanitized
	LevelPattern
	LevelKeyword
)

func (l ParseLevel) String() string {
	switch l {
	case LevelStrict:
		return "strict"
	case LevelSanitized:
		return "sanitized"
	case LevelPattern:
		return "pattern"
	case LevelKeyword:
		return "keyword"
	default:
		return "none"
	}
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(\\{.*?\\})\\s*```")
	bareVerdictRe = regexp.MustCompile(`(?s)\{[^{}]*"isAppropriate"[^{}]*\}`)
	fenceMarkerRe = regexp.MustCompile("```(?:json|JSON)?")
	jsonObjectRe  = regexp.MustCompile(`\{(?:[^{}]|"(?:\\.|[^"\\])*")*\}`)

	explicitFalseRe = regexp.MustCompile(`(?i)["']?is_?appropriate["']?\s*[:=]\s*["']?false\b`)
	explicitTrueRe  = regexp.MustCompile(`(?i)["']?is_?appropriate["']?\s*[:=]\s*["']?true\b`)
	inappropriateRe = regexp.MustCompile(`(?i)\b(inappropriate|not\s+appropriate|inapropriad[oa]|inadequad[oa])\b`)
	violationRe     = regexp.MustCompile(`(?i)\b(violat(?:es|ed|ing|ion|ions)|offensive|ofensiv[oa]s?)\b`)
	negatedRe       = regexp.MustCompile(`(?i)(?:^|[^\pL])(?:no|not|without|sem|não|nenhuma?|free\s+of)\s+(?:[\pL'-]+\s+){0,2}(?:violat(?:es|ed|ing|ion|ions)|offensive|ofensiv[oa]s?)\b`)
	appropriateRe   = regexp.MustCompile(`(?i)\bappropriate\b`)
	reasonRe        = regexp.MustCompile(`(?i)["']?reason["']?\s*[:=]\s*(?:"([^"]*)"|'([^']*)'|“([^”]*)”)`)
)

var smartQuotes = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`, "\u2033", `"`,
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'",
)

// ResponseParser recovers a Result from free-form model text, in escalating
// levels of tolerance. No level panics or returns an error; a failed level
// simply yields to the next one.
type ResponseParser struct {
	// DefaultReason is used when a negative verdict carries no usable reason.
	DefaultReason string
}

// ParseStructured tries the three structured levels: strict, sanitized, and
// pattern extraction.
func (p ResponseParser) ParseStructured(raw string) (Result, ParseLevel, bool) {
	if res, ok := p.parseStrict(raw); ok {
		return res, LevelStrict, true
	}
	if res, ok := p.parseSanitized(raw); ok {
		return res, LevelSanitized, true
	}
	if res, ok := p.parsePattern(raw); ok {
		return res, LevelPattern, true
	}
	return Result{}, LevelNone, false
}

// Parse runs all four levels, ending with keyword inference. It reports false
// only when the text carries no verdict signal at all.
func (p ResponseParser) Parse(raw string) (Result, ParseLevel, bool) {
	if res, level, ok := p.ParseStructured(raw); ok {
		return res, level, true
	}
	if res, ok := p.Infer(raw); ok {
		return res, LevelKeyword, true
	}
	return Result{}, LevelNone, false
}

// Infer scans text for verdict markers without requiring any structure.
// Explicit isAppropriate markers win over prose; among prose markers a
// negative word wins over "appropriate". Violation wording only counts when
// it is not negated ("no violations", "without offensive language").
func (p ResponseParser) Infer(raw string) (Result, bool) {
	switch {
	case explicitFalseRe.MatchString(raw):
		return p.negative(raw), true
	case explicitTrueRe.MatchString(raw):
		return appropriate(), true
	case inappropriateRe.MatchString(raw):
		return p.negative(raw), true
	case violationRe.MatchString(negatedRe.ReplaceAllString(raw, " ")):
		return p.negative(raw), true
	case appropriateRe.MatchString(raw):
		return appropriate(), true
	}
	return Result{}, false
}

func (p ResponseParser) negative(raw string) Result {
	if m := reasonRe.FindStringSubmatch(raw); m != nil {
		for _, group := range m[1:] {
			if reason := strings.TrimSpace(group); reason != "" {
				return reject(reason)
			}
		}
	}
	return reject(p.defaultReason())
}

// parseStrict decodes a fenced JSON block or a bare object mentioning
// "isAppropriate".
func (p ResponseParser) parseStrict(raw string) (Result, bool) {
	var candidate string
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else if m := bareVerdictRe.FindString(raw); m != "" {
		candidate = m
	} else {
		return Result{}, false
	}
	return p.decode(stripFences(candidate))
}

// parseSanitized slices from the first "{" to the last "}" and repairs the
// usual damage: fences, control whitespace, smart or single quotes, unquoted
// keys, trailing commas.
func (p ResponseParser) parseSanitized(raw string) (Result, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}
	return p.decode(sanitize(raw[start : end+1]))
}

// parsePattern runs a string-aware brace matcher over the untouched text and
// accepts the first candidate that validates, cleaned or not.
func (p ResponseParser) parsePattern(raw string) (Result, bool) {
	for _, candidate := range jsonObjectRe.FindAllString(raw, -1) {
		if res, ok := p.decode(candidate); ok {
			return res, true
		}
		if res, ok := p.decode(sanitize(candidate)); ok {
			return res, true
		}
	}
	return Result{}, false
}

type rawVerdict struct {
	IsAppropriate *bool   `json:"isAppropriate"`
	Reason        *string `json:"reason"`
}

// decode parses candidate and validates field types: isAppropriate must be a
// boolean and reason a string.
func (p ResponseParser) decode(candidate string) (res Result, ok bool) {
	defer func() {
		if recover() != nil {
			res, ok = Result{}, false
		}
	}()

	var v rawVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &v); err != nil {
		return Result{}, false
	}
	if v.IsAppropriate == nil || v.Reason == nil {
		return Result{}, false
	}
	if *v.IsAppropriate {
		return appropriate(), true
	}
	reason := strings.TrimSpace(*v.Reason)
	if reason == "" {
		reason = p.defaultReason()
	}
	return reject(reason), true
}

func (p ResponseParser) defaultReason() string {
	if p.DefaultReason != "" {
		return p.DefaultReason
	}
	return "Inappropriate content detected."
}

func stripFences(s string) string {
	return strings.TrimSpace(fenceMarkerRe.ReplaceAllString(s, ""))
}

// sanitize turns almost-JSON into JSON.
func sanitize(s string) string {
	s = stripFences(s)
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = smartQuotes.Replace(s)
	return normalizeObject(s)
}

// normalizeObject rewrites single-quoted strings as double-quoted ones, quotes
// bare object keys, and drops trailing commas. Text inside double-quoted
// strings is copied unchanged, so apostrophes in a reason survive.
func normalizeObject(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			j := scanString(runes, i, '"')
			b.WriteString(string(runes[i:j]))
			i = j - 1

		case r == '\'':
			j := scanString(runes, i, '\'')
			end := j
			if j-1 > i && runes[j-1] == '\'' {
				end = j - 1
			}
			inner := string(runes[i+1 : end])
			inner = strings.ReplaceAll(inner, `\'`, `'`)
			quoted, _ := json.Marshal(inner)
			b.Write(quoted)
			i = j - 1

		case r == ',':
			k := skipSpace(runes, i+1)
			if k < len(runes) && (runes[k] == '}' || runes[k] == ']') {
				continue
			}
			b.WriteRune(r)

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			k := skipSpace(runes, j)
			if k < len(runes) && runes[k] == ':' {
				b.WriteString(`"` + word + `"`)
			} else {
				b.WriteString(word)
			}
			i = j - 1

		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// scanString returns the index just past the closing quote of the string that
// opens at runes[start], or len(runes) if it never closes.
func scanString(runes []rune, start int, quote rune) int {
	for j := start + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(runes)
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}
