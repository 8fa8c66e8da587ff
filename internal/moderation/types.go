package moderation

import "time"

// Request is one comment submitted for moderation.
type Request struct {
	CommentID string
	AuthorID  string
	Text      string
	Locale    string // BCP 47, empty for the configured default
}

// Result is the sole contract returned to callers. Reason is empty when the
// comment is appropriate and a human-readable message otherwise.
type Result struct {
	IsAppropriate bool   `json:"isAppropriate"`
	Reason        string `json:"reason"`
}

// Stage names the pipeline step that produced the final verdict.
type Stage string

const (
	StageHeuristic  Stage = "heuristic"  // length, repetition, or shouting pre-check
	StageModel      Stage = "model"      // model verdict passed through
	StageReconciled Stage = "reconciled" // model said appropriate, lexicon overrode it
	StageFallback   Stage = "fallback"   // model path failed, heuristic-only verdict
	StageCache      Stage = "cache"      // served from the verdict cache
	StageMuted      Stage = "muted"      // author muted, pipeline skipped
)

// Rule identifies which heuristic rejected a comment.
type Rule string

const (
	RuleNone       Rule = ""
	RuleLength     Rule = "length"
	RuleRepetition Rule = "repetition"
	RuleShouting   Rule = "shouting"
	RuleLexicon    Rule = "lexicon"
)

// FallbackCause explains why the heuristic-only fallback ran.
type FallbackCause string

const (
	CauseNone        FallbackCause = ""
	CauseUnavailable FallbackCause = "model_unavailable"
	CauseUnparseable FallbackCause = "unparseable_output"
	CauseBudget      FallbackCause = "model_budget_exhausted"
	CauseNoModel     FallbackCause = "model_not_configured"
)

// Decision is a Result plus the bookkeeping operators need: which stage
// decided, how many model calls it took, and whether the verdict was made in
// degraded mode.
type Decision struct {
	Result

	Locale        string
	Stage         Stage
	Rule          Rule
	ParseLevel    ParseLevel
	ModelCalls    int
	Degraded      bool
	FallbackCause FallbackCause
	Term          string // matched lexicon term; internal only, never shown to users
	Duration      time.Duration
}

func appropriate() Result {
	return Result{IsAppropriate: true}
}

func reject(reason string) Result {
	return Result{IsAppropriate: false, Reason: reason}
}
