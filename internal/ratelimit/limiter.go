// Package ratelimit provides Redis-backed rate limiting using INCR + EXPIRE
// fixed windows. It guards the model budget shared by all moderator replicas
// and caps how fast a single author can submit comments.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration. A Limit of zero or
// less disables the rule.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:model:", "rl:author:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// ModelCallRule limits model calls across all replicas.
func ModelCallRule(perMinute int) Rule {
	return Rule{Key: "rl:model:", Limit: perMinute, Window: time.Minute}
}

// CommentRule limits comments per author.
func CommentRule(perMinute int) Rule {
	return Rule{Key: "rl:author:", Limit: perMinute, Window: time.Minute}
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		client: client,
		logger: logger.With("component", "ratelimit"),
		now:    time.Now,
	}
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("redis INCR failed, failing open", "key", key, "error", err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.logger.Warn("redis EXPIRE failed, failing open", "key", key, "error", err)
			// The key has no TTL and would persist; drop it so it cannot block
			// the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does not
// exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		l.logger.Warn("redis GET failed, failing open", "key", key, "error", err)
		return rule.Limit, err
	}
	return max(rule.Limit-count, 0), nil
}

// ModelGate spends the shared model-call budget. Each minute gets its own
// counter so replicas agree on the window without coordination.
type ModelGate struct {
	limiter *Limiter
	rule    Rule
	denied  func()
}

// NewModelGate returns a gate allowing perMinute model calls. onDenied, if
// non-nil, runs every time the budget is exhausted.
func NewModelGate(l *Limiter, perMinute int, onDenied func()) *ModelGate {
	return &ModelGate{limiter: l, rule: ModelCallRule(perMinute), denied: onDenied}
}

// AllowModelCall reports whether a model call fits in the current minute.
func (g *ModelGate) AllowModelCall(ctx context.Context) bool {
	bucket := strconv.FormatInt(g.limiter.now().Unix()/60, 10)
	ok, _ := g.limiter.Allow(ctx, bucket, g.rule)
	if !ok && g.denied != nil {
		g.denied()
	}
	return ok
}

// AuthorLimit caps how many comments one author may submit per minute.
type AuthorLimit struct {
	limiter *Limiter
	rule    Rule
}

// NewAuthorLimit returns a limit of perMinute comments per author.
func NewAuthorLimit(l *Limiter, perMinute int) *AuthorLimit {
	return &AuthorLimit{limiter: l, rule: CommentRule(perMinute)}
}

// AllowAuthor reports whether author may submit another comment.
func (a *AuthorLimit) AllowAuthor(ctx context.Context, author string) bool {
	ok, _ := a.limiter.Allow(ctx, author, a.rule)
	return ok
}
