// Package strikes tracks rejected comments per author in Redis and mutes
// repeat offenders with escalating durations:
//
//	Key:   strikes:<author>   counter of rejections, 24h TTL from first strike
//	Key:   mute:<author>      reason, TTL = mute duration
package strikes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StrikesPrefix is the Redis key prefix for strike counters.
	StrikesPrefix = "strikes:"

	// MutePrefix is the Redis key prefix for mute records.
	MutePrefix = "mute:"

	// Escalating mute durations.
	Mute15Min  = 15 * time.Minute // first mute
	Mute1Hour  = 1 * time.Hour    // second
	Mute24Hour = 24 * time.Hour   // third and later

	// StrikesTTL is how long the strike counter lives. After 24h without new
	// strikes the counter resets to zero.
	StrikesTTL = 24 * time.Hour

	// MuteThreshold is the number of strikes within StrikesTTL that mutes an
	// author.
	MuteThreshold = 3
)

// Store manages strike counters and mutes in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a strike store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Mute describes an active mute.
type Mute struct {
	Reason    string
	Remaining time.Duration
}

// MutedFor returns the active mute for author, or nil when the author may
// comment. Redis errors are returned so callers can fail open.
func (s *Store) MutedFor(ctx context.Context, author string) (*Mute, error) {
	key := MutePrefix + author

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("strikes: get mute: %w", err)
	}

	// The mute exists even if its TTL cannot be read.
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = 0
	}
	return &Mute{Reason: reason, Remaining: ttl}, nil
}

// MuteAuthor mutes author for duration.
func (s *Store) MuteAuthor(ctx context.Context, author string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, MutePrefix+author, reason, duration).Err()
}

// Unmute lifts a mute immediately. The strike counter is left alone.
func (s *Store) Unmute(ctx context.Context, author string) error {
	return s.client.Del(ctx, MutePrefix+author).Err()
}

// Count returns the current strike count for author. Zero if the counter does
// not exist or has expired.
func (s *Store) Count(ctx context.Context, author string) (int, error) {
	n, err := s.client.Get(ctx, StrikesPrefix+author).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("strikes: count: %w", err)
	}
	return n, nil
}

// muteDuration returns the mute duration for a strike count at or above the
// threshold.
func muteDuration(strikes int) time.Duration {
	switch n := strikes - MuteThreshold + 1; {
	case n <= 1:
		return Mute15Min
	case n == 2:
		return Mute1Hour
	default:
		return Mute24Hour
	}
}

// Record adds a strike for author and mutes them once MuteThreshold strikes
// accumulate within StrikesTTL. It returns the applied mute duration, or zero
// when the author stays unmuted.
func (s *Store) Record(ctx context.Context, author, reason string) (time.Duration, error) {
	key := StrikesPrefix + author

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("strikes: incr: %w", err)
	}

	// TTL only on the first strike so the window does not slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, StrikesTTL).Err(); err != nil {
			return 0, fmt.Errorf("strikes: expire: %w", err)
		}
	}

	if count < MuteThreshold {
		return 0, nil
	}
	duration := muteDuration(int(count))
	if err := s.MuteAuthor(ctx, author, duration, reason); err != nil {
		return 0, fmt.Errorf("strikes: mute: %w", err)
	}
	return duration, nil
}
