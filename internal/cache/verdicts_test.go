package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/comment-moderator/internal/moderation"
)

func newTestCache(t *testing.T) (*Verdicts, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewVerdicts(client, time.Minute), client
}

func TestKey(t *testing.T) {
	a := Key("en", "nice film")
	assert.Equal(t, a, Key("en", "nice film"))
	assert.NotEqual(t, a, Key("pt-BR", "nice film"), "locale is part of the key")
	assert.NotEqual(t, a, Key("en", "NICE FILM"))
	assert.Len(t, a, len(KeyPrefix)+64)
}

func TestCacheable(t *testing.T) {
	tests := []struct {
		name string
		d    moderation.Decision
		want bool
	}{
		{"model", moderation.Decision{Stage: moderation.StageModel}, true},
		{"reconciled", moderation.Decision{Stage: moderation.StageReconciled}, true},
		{"heuristic", moderation.Decision{Stage: moderation.StageHeuristic}, false},
		{"fallback", moderation.Decision{Stage: moderation.StageFallback, Degraded: true}, false},
		{"cache", moderation.Decision{Stage: moderation.StageCache}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cacheable(tt.d))
		})
	}
}

func TestGetPut(t *testing.T) {
	c, client := newTestCache(t)
	ctx := context.Background()
	text := "test cache comment " + time.Now().String()
	t.Cleanup(func() { client.Del(ctx, Key("en", text)) })

	_, ok, err := c.Get(ctx, "en", text)
	require.NoError(t, err)
	assert.False(t, ok)

	want := moderation.Result{IsAppropriate: false, Reason: "Spam."}
	require.NoError(t, c.Put(ctx, "en", text, want))

	got, ok, err := c.Get(ctx, "en", text)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	ttl, err := client.TTL(ctx, Key("en", text)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
}
