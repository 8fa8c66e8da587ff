package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/whisper/comment-moderator/internal/lexicon"
)

// Completer sends one prompt to the remote classifier and returns its raw
// reply. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gate decides whether one more model call may be spent. It is consulted
// before every attempt, so a comment that needs the retry prompt asks twice.
// A denied gate is handled like an unavailable model.
type Gate interface {
	AllowModelCall(ctx context.Context) bool
}

// LexiconSource resolves the denylist for a request locale. *lexicon.Store
// satisfies it.
type LexiconSource interface {
	Lexicon(locale string) *lexicon.Lexicon
}

// Observer receives pipeline events, typically to feed metrics.
type Observer interface {
	ModelCall(attempt int, elapsed time.Duration, err error)
	Decided(d Decision)
}

type nopObserver struct{}

func (nopObserver) ModelCall(int, time.Duration, error) {}
func (nopObserver) Decided(Decision)                    {}

// FallbackPolicy selects the verdict used when the model path fails and the
// lexicon finds nothing.
type FallbackPolicy string

const (
	FailOpen   FallbackPolicy = "open"
	FailClosed FallbackPolicy = "closed"
)

// ParseFallbackPolicy parses "open" or "closed". Empty means open.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("moderation: unknown fallback policy %q", s)
}

// Config tunes the pipeline.
type Config struct {
	MaxLength     int            // characters; 0 means DefaultMaxLength
	DefaultLocale string         // used when a request has no locale
	Fallback      FallbackPolicy // empty means FailOpen
	ModelTimeout  time.Duration  // per attempt; 0 means no extra deadline
}

// Option configures a Moderator.
type Option func(*Moderator)

// WithGate installs a model-call budget.
func WithGate(g Gate) Option {
	return func(m *Moderator) { m.gate = g }
}

// WithObserver installs an event observer.
func WithObserver(o Observer) Option {
	return func(m *Moderator) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Moderator) {
		if l != nil {
			m.logger = l
		}
	}
}

// Moderator runs the full pipeline for one comment: heuristic pre-check, up
// to two model attempts, lexicon reconciliation, and the heuristic-only
// fallback. It holds no per-request state and is safe for concurrent use.
type Moderator struct {
	cfg        Config
	heuristics Heuristics
	model      Completer
	lexicons   LexiconSource
	messages   *Messages
	gate       Gate
	observer   Observer
	logger     *slog.Logger
}

// New creates a Moderator. model may be nil, in which case every comment that
// passes the pre-check is judged by the fallback.
func New(cfg Config, model Completer, lexicons LexiconSource, opts ...Option) *Moderator {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FailOpen
	}
	m := &Moderator{
		cfg:        cfg,
		heuristics: Heuristics{MaxLength: cfg.MaxLength},
		model:      model,
		lexicons:   lexicons,
		messages:   NewMessages(cfg.DefaultLocale),
		observer:   nopObserver{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "moderator")
	return m
}

// Moderate returns the verdict for text in the default locale.
func (m *Moderator) Moderate(ctx context.Context, text string) Result {
	return m.Evaluate(ctx, Request{Text: text}).Result
}

// Reasons returns the localized rejection reasons for locale.
func (m *Moderator) Reasons(locale string) Reasons {
	if locale == "" {
		locale = m.cfg.DefaultLocale
	}
	return m.messages.For(locale)
}

// Evaluate runs the pipeline and returns the verdict together with how it was
// reached. It never fails: model and parse errors degrade to the fallback.
func (m *Moderator) Evaluate(ctx context.Context, req Request) Decision {
	start := time.Now()
	locale := req.Locale
	if locale == "" {
		locale = m.cfg.DefaultLocale
	}

	run := &evaluation{
		m:       m,
		text:    req.Text,
		reasons: m.messages.For(locale),
		logger:  m.logger.With("comment_id", req.CommentID, "locale", locale),
	}
	d := run.evaluate(ctx)
	d.Locale = locale
	d.Duration = time.Since(start)

	m.observer.Decided(d)
	run.logger.Debug("comment moderated",
		"appropriate", d.IsAppropriate,
		"stage", d.Stage,
		"rule", d.Rule,
		"parse_level", d.ParseLevel.String(),
		"model_calls", d.ModelCalls,
		"degraded", d.Degraded,
		"duration", d.Duration,
	)
	return d
}

// evaluation is the state of one pass through the pipeline.
type evaluation struct {
	m       *Moderator
	text    string
	reasons Reasons
	logger  *slog.Logger
	calls   int
}

func (e *evaluation) evaluate(ctx context.Context) Decision {
	if rule, failed := e.m.heuristics.Precheck(e.text); failed {
		return Decision{Result: reject(e.ruleReason(rule)), Stage: StageHeuristic, Rule: rule}
	}

	if e.m.model == nil {
		return e.fallback(CauseNoModel, nil)
	}

	parser := ResponseParser{DefaultReason: e.reasons.Inappropriate()}
	prompts := NewPromptBuilder(e.reasons.locale)

	raw, err := e.call(ctx, prompts.BuildPrompt(e.text, false))
	if err != nil {
		return e.fallback(callCause(err), err)
	}
	if res, level, ok := parser.ParseStructured(raw); ok {
		return e.reconcile(res, level)
	}
	e.logger.Info("model reply unparseable, retrying with strict prompt", "reply", snippet(raw))

	raw, err = e.call(ctx, prompts.BuildPrompt(e.text, true))
	if err != nil {
		return e.fallback(callCause(err), err)
	}
	if res, level, ok := parser.Parse(raw); ok {
		return e.reconcile(res, level)
	}
	return e.fallback(CauseUnparseable, fmt.Errorf("%w: %s", ErrUnparseableOutput, snippet(raw)))
}

// errBudget is returned by call when the gate refuses the attempt.
var errBudget = errors.New("model call budget exhausted")

func callCause(err error) FallbackCause {
	if errors.Is(err, errBudget) {
		return CauseBudget
	}
	return CauseUnavailable
}

// call performs one model attempt under the configured per-attempt timeout.
func (e *evaluation) call(ctx context.Context, prompt string) (string, error) {
	if e.m.gate != nil && !e.m.gate.AllowModelCall(ctx) {
		return "", errBudget
	}
	e.calls++
	if t := e.m.cfg.ModelTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	start := time.Now()
	raw, err := e.m.model.Complete(ctx, prompt)
	e.m.observer.ModelCall(e.calls, time.Since(start), err)
	return raw, err
}

// reconcile applies the lexicon to an "appropriate" model verdict. A negative
// verdict passes through with the model's own reason.
func (e *evaluation) reconcile(res Result, level ParseLevel) Decision {
	d := Decision{Result: res, Stage: StageModel, ParseLevel: level, ModelCalls: e.calls}
	if !res.IsAppropriate {
		return d
	}
	if term, hit := e.lexicon().Match(e.text); hit {
		e.logger.Info("lexicon overrode model verdict", "term", term)
		d.Result = reject(e.reasons.Lexicon())
		d.Stage = StageReconciled
		d.Rule = RuleLexicon
		d.Term = term
	}
	return d
}

// fallback is the terminal heuristic-only judgment used when the model path
// produced no verdict.
func (e *evaluation) fallback(cause FallbackCause, err error) Decision {
	d := Decision{
		Stage:         StageFallback,
		ModelCalls:    e.calls,
		Degraded:      true,
		FallbackCause: cause,
	}

	attrs := []any{"cause", cause, "model_calls", e.calls, "policy", e.m.cfg.Fallback}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	e.logger.Warn("moderation running in degraded mode", attrs...)

	if term, hit := e.lexicon().Match(e.text); hit {
		d.Result = reject(e.reasons.Offensive())
		d.Rule = RuleLexicon
		d.Term = term
		return d
	}
	if e.m.cfg.Fallback == FailClosed {
		d.Result = reject(e.reasons.PendingReview())
		return d
	}
	d.Result = appropriate()
	return d
}

func (e *evaluation) lexicon() *lexicon.Lexicon {
	if e.m.lexicons == nil {
		return nil
	}
	return e.m.lexicons.Lexicon(e.reasons.locale)
}

func (e *evaluation) ruleReason(rule Rule) string {
	switch rule {
	case RuleLength:
		return e.reasons.TooLong(e.m.cfg.MaxLength)
	case RuleRepetition:
		return e.reasons.Repetition()
	case RuleShouting:
		return e.reasons.Shouting()
	}
	return e.reasons.Inappropriate()
}

func snippet(s string) string {
	const limit = 200
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
