package moderation

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// promptTemplate is the single classification prompt sent to the model. Keep
// edits here so the first attempt and the retry stay in sync.
const promptTemplate = `You are a strict content moderator for a movie and TV series comment platform.

Analyze the user comment below and decide whether it violates any of these rules:

1. Hate speech, slurs, or discrimination based on race, ethnicity, religion, gender, sexual orientation, disability, or nationality.
2. Profanity, swearing, or insults directed at other users, actors, or creators.
3. Harassment, bullying, or intimidation.
4. Explicit sexual content.
5. Threats of violence or incitement to violence or self-harm.
6. Dangerous misinformation.
7. Spam, advertising, or malicious links.
8. Personal information about third parties (addresses, phone numbers, documents, emails).

Comment:
"""
{{comment}}
"""

When in doubt, treat the comment as inappropriate. Spoilers, criticism, and negative opinions about a movie or series are allowed as long as they break none of the rules above.

Write the reason in {{language}}, in one short sentence addressed to the comment author. Leave the reason empty when the comment is appropriate.`

const formatClause = `

Respond ONLY with a JSON object in exactly this shape:
{"isAppropriate": boolean, "reason": string}
Do not wrap the JSON in markdown or code blocks. Do not add any text before or after it.`

const retryFormatClause = `

IMPORTANT: your previous reply could not be read. Reply with RAW JSON ONLY.
No markdown. No code fences. No backticks. No explanations.
The first character of your reply must be { and the last character must be }.`

// PromptBuilder builds classification prompts asking for reasons in a given
// language.
type PromptBuilder struct {
	Language string // English display name, e.g. "Brazilian Portuguese"
}

// NewPromptBuilder returns a builder whose reasons are requested in the
// language of locale. Unknown locales fall back to English.
func NewPromptBuilder(locale string) PromptBuilder {
	name := "English"
	if tag, err := language.Parse(locale); err == nil && locale != "" {
		if n := display.English.Tags().Name(tag); n != "" {
			name = n
		}
	}
	return PromptBuilder{Language: name}
}

// BuildPrompt returns the prompt for commentText. The retry variant appends a
// second, more forceful output-format clause and is used only after the first
// reply failed to parse.
func (b PromptBuilder) BuildPrompt(commentText string, isRetry bool) string {
	lang := b.Language
	if lang == "" {
		lang = "English"
	}
	r := strings.NewReplacer("{{comment}}", commentText, "{{language}}", lang)

	var sb strings.Builder
	sb.WriteString(r.Replace(promptTemplate))
	sb.WriteString(formatClause)
	if isRetry {
		sb.WriteString(retryFormatClause)
	}
	return sb.String()
}
