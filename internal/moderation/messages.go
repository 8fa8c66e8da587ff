package moderation

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys for user-facing rejection reasons.
const (
	msgTooLong       = "too_long"
	msgRepetition    = "repetition"
	msgShouting      = "shouting"
	msgLexicon       = "lexicon"
	msgOffensive     = "offensive"
	msgInappropriate = "inappropriate"
	msgPendingReview = "pending_review"
	msgMuted         = "muted"
)

var brazilianPortuguese = language.MustParse("pt-BR")

var reasonCatalog = map[language.Tag]map[string]string{
	language.English: {
		msgTooLong:       "Your comment is too long (maximum %d characters).",
		msgRepetition:    "Your comment contains excessive repeated characters and looks like spam.",
		msgShouting:      "Your comment uses excessive capitalization. Please avoid typing in all caps.",
		msgLexicon:       "Your comment contains a term that is not allowed on this platform.",
		msgOffensive:     "Your comment contains offensive language.",
		msgInappropriate: "Inappropriate content detected.",
		msgPendingReview: "Your comment could not be verified right now and is waiting for review.",
		msgMuted:         "You are temporarily blocked from commenting after repeated violations.",
	},
	brazilianPortuguese: {
		msgTooLong:       "O comentário é muito longo (máximo de %d caracteres).",
		msgRepetition:    "O comentário contém caracteres repetidos em excesso e parece spam.",
		msgShouting:      "O comentário usa letras maiúsculas em excesso. Evite escrever tudo em maiúsculas.",
		msgLexicon:       "O comentário contém um termo que não é permitido nesta plataforma.",
		msgOffensive:     "O comentário contém linguagem ofensiva.",
		msgInappropriate: "Conteúdo inapropriado detectado.",
		msgPendingReview: "Não foi possível verificar o comentário agora; ele aguarda revisão.",
		msgMuted:         "Você está temporariamente impedido de comentar após violações repetidas.",
	},
}

// Messages renders rejection reasons in the locale of a request.
type Messages struct {
	cat     catalog.Catalog
	tags    []language.Tag
	matcher language.Matcher
}

// NewMessages builds the reason catalog. defaultLocale is tried first when a
// request locale has no good match.
func NewMessages(defaultLocale string) *Messages {
	def := language.Make(defaultLocale)
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	tags := []language.Tag{language.English, brazilianPortuguese}
	for tag, msgs := range reasonCatalog {
		for key, text := range msgs {
			// SetString only fails on malformed messages; the table above is static.
			_ = b.SetString(tag, key, text)
		}
	}
	for i, t := range tags {
		if t == def {
			tags[0], tags[i] = tags[i], tags[0]
		}
	}
	return &Messages{
		cat:     b,
		tags:    tags,
		matcher: language.NewMatcher(tags),
	}
}

// Printer returns a message printer for the locale closest to the requested one.
func (m *Messages) Printer(locale string) *message.Printer {
	tag := m.tags[0]
	if locale != "" {
		if want, err := language.Parse(locale); err == nil {
			if _, idx, conf := m.matcher.Match(want); conf != language.No {
				tag = m.tags[idx]
			}
		}
	}
	return message.NewPrinter(tag, message.Catalog(m.cat))
}

// Reasons are the localized rejection reasons for a single request.
type Reasons struct {
	p      *message.Printer
	locale string
}

// For returns the reasons for a locale.
func (m *Messages) For(locale string) Reasons {
	return Reasons{p: m.Printer(locale), locale: locale}
}

func (r Reasons) TooLong(limit int) string { return r.p.Sprintf(msgTooLong, limit) }
func (r Reasons) Repetition() string       { return r.p.Sprintf(msgRepetition) }
func (r Reasons) Shouting() string         { return r.p.Sprintf(msgShouting) }
func (r Reasons) Lexicon() string          { return r.p.Sprintf(msgLexicon) }
func (r Reasons) Offensive() string        { return r.p.Sprintf(msgOffensive) }
func (r Reasons) Inappropriate() string    { return r.p.Sprintf(msgInappropriate) }
func (r Reasons) PendingReview() string    { return r.p.Sprintf(msgPendingReview) }
func (r Reasons) Muted() string            { return r.p.Sprintf(msgMuted) }
