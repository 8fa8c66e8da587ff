// Package service is the moderation worker. It wraps the moderation pipeline
// with the per-request concerns of a hosted deployment: author mutes, the
// per-author rate limit, the verdict cache, strikes, the decision audit, and
// metrics. Transports (NATS, HTTP) call Check.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/comment-moderator/internal/audit"
	"github.com/whisper/comment-moderator/internal/cache"
	"github.com/whisper/comment-moderator/internal/metrics"
	"github.com/whisper/comment-moderator/internal/moderation"
	"github.com/whisper/comment-moderator/internal/protocol"
	"github.com/whisper/comment-moderator/internal/strikes"
)

// ErrRateLimited is returned by Check when the author exceeded the comment
// rate limit. No verdict is produced; the caller should retry later.
var ErrRateLimited = errors.New("service: author rate limited")

// Pipeline is the moderation pipeline. *moderation.Moderator satisfies it.
type Pipeline interface {
	Evaluate(ctx context.Context, req moderation.Request) moderation.Decision
	Reasons(locale string) moderation.Reasons
}

// VerdictCache caches model verdicts. *cache.Verdicts satisfies it.
type VerdictCache interface {
	Get(ctx context.Context, locale, text string) (moderation.Result, bool, error)
	Put(ctx context.Context, locale, text string, res moderation.Result) error
}

// Strikes tracks rejected comments per author. *strikes.Store satisfies it.
type Strikes interface {
	MutedFor(ctx context.Context, author string) (*strikes.Mute, error)
	Record(ctx context.Context, author, reason string) (time.Duration, error)
}

// AuditLog records decisions. *audit.Store satisfies it.
type AuditLog interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// AuthorLimiter caps comments per author. Returning false rejects the request.
type AuthorLimiter interface {
	AllowAuthor(ctx context.Context, author string) bool
}

// Config tunes the worker.
type Config struct {
	DefaultLocale string
	Timeout       time.Duration // whole-request deadline; 0 means none
	Model         string        // recorded in the audit log
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the verdict cache.
func WithCache(c VerdictCache) Option { return func(s *Service) { s.cache = c } }

// WithStrikes enables author strikes and mutes.
func WithStrikes(st Strikes) Option { return func(s *Service) { s.strikes = st } }

// WithAudit enables the decision audit log.
func WithAudit(a AuditLog) Option { return func(s *Service) { s.audit = a } }

// WithAuthorLimiter enables the per-author rate limit.
func WithAuthorLimiter(l AuthorLimiter) Option { return func(s *Service) { s.limiter = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service moderates check requests.
type Service struct {
	cfg      Config
	pipeline Pipeline
	cache    VerdictCache
	strikes  Strikes
	audit    AuditLog
	limiter  AuthorLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Service around pipeline.
func New(cfg Config, pipeline Pipeline, opts ...Option) *Service {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	s := &Service{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "service")
	return s
}

// Check moderates one request. The only error is ErrRateLimited; every other
// failure (Redis, Postgres) is logged and the request still gets a verdict.
func (s *Service) Check(ctx context.Context, req protocol.CheckRequest) (protocol.CheckResult, error) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	locale := req.Locale
	if locale == "" {
		locale = s.cfg.DefaultLocale
	}
	logger := s.logger.With("comment_id", req.CommentID, "author_id", req.AuthorID)

	if req.AuthorID != "" && s.limiter != nil && !s.limiter.AllowAuthor(ctx, req.AuthorID) {
		metrics.RateLimitedTotal.WithLabelValues("author").Inc()
		logger.Info("author rate limited")
		return protocol.CheckResult{}, ErrRateLimited
	}

	d := s.decide(ctx, req, locale, logger)
	s.afterDecision(ctx, req, d, logger)

	res := protocol.CheckResult{
		CommentID:     req.CommentID,
		AuthorID:      req.AuthorID,
		IsAppropriate: d.IsAppropriate,
		Reason:        d.Reason,
		Stage:         string(d.Stage),
		Degraded:      d.Degraded,
		DecisionID:    s.record(ctx, req, d, logger),
	}
	res.Stamp(s.now())

	level := slog.LevelInfo
	if d.Degraded {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "comment checked",
		"appropriate", d.IsAppropriate,
		"stage", d.Stage,
		"degraded", d.Degraded,
		"decision_id", res.DecisionID,
	)
	return res, nil
}

// decide produces the verdict: muted authors and cache hits skip the
// pipeline.
func (s *Service) decide(ctx context.Context, req protocol.CheckRequest, locale string, logger *slog.Logger) moderation.Decision {
	start := s.now()

	if req.AuthorID != "" && s.strikes != nil {
		mute, err := s.strikes.MutedFor(ctx, req.AuthorID)
		if err != nil {
			logger.Warn("mute lookup failed, continuing", "error", err)
		} else if mute != nil {
			d := moderation.Decision{
				Result: moderation.Result{Reason: s.pipeline.Reasons(locale).Muted()},
				Locale: locale,
				Stage:  moderation.StageMuted,
			}
			d.Duration = s.now().Sub(start)
			metrics.RecordDecision(d)
			return d
		}
	}

	if s.cache != nil {
		res, ok, err := s.cache.Get(ctx, locale, req.Text)
		switch {
		case err != nil:
			logger.Warn("cache lookup failed", "error", err)
		case ok:
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			d := moderation.Decision{Result: res, Locale: locale, Stage: moderation.StageCache}
			d.Duration = s.now().Sub(start)
			metrics.RecordDecision(d)
			return d
		default:
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	return s.pipeline.Evaluate(ctx, moderation.Request{
		CommentID: req.CommentID,
		AuthorID:  req.AuthorID,
		Text:      req.Text,
		Locale:    locale,
	})
}

// afterDecision caches reusable verdicts and records strikes.
func (s *Service) afterDecision(ctx context.Context, req protocol.CheckRequest, d moderation.Decision, logger *slog.Logger) {
	if s.cache != nil && cache.Cacheable(d) {
		if err := s.cache.Put(ctx, d.Locale, req.Text, d.Result); err != nil {
			logger.Warn("cache store failed", "error", err)
		}
	}

	if !strikeable(d) || req.AuthorID == "" || s.strikes == nil {
		return
	}
	muted, err := s.strikes.Record(ctx, req.AuthorID, strikeReason(d))
	if err != nil {
		logger.Warn("strike record failed", "error", err)
		return
	}
	if muted > 0 {
		metrics.MutesTotal.Inc()
		logger.Info("author muted", "duration", muted)
	}
}

// strikeable reports whether a rejection judged the comment itself. A muted
// author's comment is not another strike, and neither is a degraded verdict
// that only reflects the fallback policy.
func strikeable(d moderation.Decision) bool {
	switch {
	case d.IsAppropriate, d.Stage == moderation.StageMuted:
		return false
	case d.Degraded:
		return d.Rule == moderation.RuleLexicon
	}
	return true
}

// strikeReason names what the author was struck for: the rule when one fired,
// otherwise the verdict's reason.
func strikeReason(d moderation.Decision) string {
	if d.Rule != moderation.RuleNone {
		return string(d.Rule)
	}
	return d.Reason
}

// record writes the audit entry and returns the decision ID. The ID is
// generated even when auditing is off so results can always be correlated
// with logs.
func (s *Service) record(ctx context.Context, req protocol.CheckRequest, d moderation.Decision, logger *slog.Logger) string {
	id := uuid.New()
	if s.audit == nil {
		return id.String()
	}

	entry := &audit.Entry{
		ID:            id,
		CommentID:     req.CommentID,
		AuthorID:      req.AuthorID,
		Locale:        d.Locale,
		IsAppropriate: d.IsAppropriate,
		Reason:        d.Reason,
		Stage:         string(d.Stage),
		Rule:          string(d.Rule),
		ParseLevel:    d.ParseLevel.String(),
		ModelCalls:    d.ModelCalls,
		Degraded:      d.Degraded,
		FallbackCause: string(d.FallbackCause),
		Duration:      d.Duration,
	}
	if d.ModelCalls > 0 {
		entry.Model = s.cfg.Model
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		logger.Warn("audit record failed", "decision_id", id, "error", err)
	}
	return id.String()
}
