package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, 150, cfg.LLM.MaxTokens)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2000, cfg.Moderation.MaxLength)
	assert.Equal(t, "en", cfg.Moderation.Locale)
	assert.Equal(t, "open", cfg.Moderation.FallbackPolicy)
	assert.Equal(t, "moderators", cfg.NATS.QueueGroup)
	assert.Equal(t, 16, cfg.NATS.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Moderation.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Audit.Enabled)

	require.NoError(t, ValidateConfig(cfg))
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MODERATOR_LLM_API_KEY", "sk-test")
	t.Setenv("MODERATOR_MODERATION_MAX_LENGTH", "500")
	t.Setenv("MODERATOR_MODERATION_FALLBACK_POLICY", "closed")
	t.Setenv("MODERATOR_LLM_TIMEOUT", "3s")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 500, cfg.Moderation.MaxLength)
	assert.Equal(t, "closed", cfg.Moderation.FallbackPolicy)
	assert.Equal(t, 3*time.Second, cfg.LLM.Timeout)
	require.NoError(t, ValidateForServe(cfg))
}

func TestLoader_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: meta-llama/llama-3.1-8b-instruct
moderation:
  locale: pt-BR
  lexicon_file: /etc/moderator/lexicon.yaml
http:
  cors_origins: ["https://example.com"]
`), 0o644))

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, path, loader.ConfigFile())
	assert.Equal(t, "meta-llama/llama-3.1-8b-instruct", cfg.LLM.Model)
	assert.Equal(t, "pt-BR", cfg.Moderation.Locale)
	assert.Equal(t, "/etc/moderator/lexicon.yaml", cfg.Moderation.LexiconFile)
	assert.Equal(t, []string{"https://example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 2000, cfg.Moderation.MaxLength, "defaults survive a partial file")
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, err := NewLoader().WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"relative base url", func(c *Config) { c.LLM.BaseURL = "/v1" }, "llm.base_url"},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }, "llm.max_tokens"},
		{"zero max length", func(c *Config) { c.Moderation.MaxLength = 0 }, "moderation.max_length"},
		{"bad locale", func(c *Config) { c.Moderation.Locale = "not a tag!" }, "moderation.locale"},
		{"bad fallback", func(c *Config) { c.Moderation.FallbackPolicy = "sometimes" }, "moderation.fallback_policy"},
		{"negative limit", func(c *Config) { c.RateLimit.CommentsPerMinute = -1 }, "ratelimit.comments_per_minute"},
		{"audit without dsn", func(c *Config) { c.Audit.Enabled = true }, "audit.dsn"},
		{"cache without ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"zero concurrency", func(c *Config) { c.NATS.MaxConcurrent = 0 }, "nats.max_concurrent"},
		{"no queue group", func(c *Config) { c.NATS.QueueGroup = "" }, "nats.queue_group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewLoader().Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = ValidateConfig(cfg)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateForServe_RequiresAPIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	err = ValidateForServe(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key")
}
