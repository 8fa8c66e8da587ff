// Package cache stores model verdicts in Redis so that identical comments
// (reposts, copy-paste spam) are not sent to the model again.
//
//	Key:   modcache:<sha256(locale \x00 text)>
//	Value: {"isAppropriate": bool, "reason": string}
//	TTL:   configured
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/comment-moderator/internal/moderation"
)

// KeyPrefix is the Redis key prefix for cached verdicts.
const KeyPrefix = "modcache:"

// Verdicts is a Redis-backed verdict cache.
type Verdicts struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVerdicts creates a cache whose entries expire after ttl.
func NewVerdicts(client *redis.Client, ttl time.Duration) *Verdicts {
	return &Verdicts{client: client, ttl: ttl}
}

// Key returns the cache key for a comment. Whitespace and case are kept:
// shouting and spacing both matter to the pipeline.
func Key(locale, text string) string {
	sum := sha256.Sum256([]byte(locale + "\x00" + text))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Cacheable reports whether a decision may be reused for other identical
// comments. Heuristic verdicts are cheap to recompute and degraded verdicts
// must be retried once the model is back.
func Cacheable(d moderation.Decision) bool {
	if d.Degraded {
		return false
	}
	return d.Stage == moderation.StageModel || d.Stage == moderation.StageReconciled
}

// Get returns the cached verdict for a comment. The boolean is false on a
// miss.
func (v *Verdicts) Get(ctx context.Context, locale, text string) (moderation.Result, bool, error) {
	data, err := v.client.Get(ctx, Key(locale, text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return moderation.Result{}, false, nil
	}
	if err != nil {
		return moderation.Result{}, false, fmt.Errorf("cache: get: %w", err)
	}

	var res moderation.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return moderation.Result{}, false, fmt.Errorf("cache: decode: %w", err)
	}
	return res, true, nil
}

// Put stores a verdict.
func (v *Verdicts) Put(ctx context.Context, locale, text string, res moderation.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := v.client.Set(ctx, Key(locale, text), data, v.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}
