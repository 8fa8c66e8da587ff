// Package config loads the moderator configuration from defaults, a YAML
// file, MODERATOR_* environment variables, and CLI flags.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Strikes    StrikesConfig    `mapstructure:"strikes"`
	Audit      AuditConfig      `mapstructure:"audit"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig configures the remote classification model.
type LLMConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Referer   string        `mapstructure:"referer"`
	Title     string        `mapstructure:"title"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ModerationConfig tunes the moderation pipeline.
type ModerationConfig struct {
	MaxLength      int           `mapstructure:"max_length"`
	Locale         string        `mapstructure:"locale"`
	LexiconFile    string        `mapstructure:"lexicon_file"`
	WatchLexicon   bool          `mapstructure:"watch_lexicon"`
	FallbackPolicy string        `mapstructure:"fallback_policy"`
	ModelTimeout   time.Duration `mapstructure:"model_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NATSConfig configures the request transport.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Name          string `mapstructure:"name"`
	QueueGroup    string `mapstructure:"queue_group"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// RedisConfig configures the shared Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig configures the model budget and per-author limits. Zero
// disables a limit.
type RateLimitConfig struct {
	ModelCallsPerMinute int `mapstructure:"model_calls_per_minute"`
	CommentsPerMinute   int `mapstructure:"comments_per_minute"`
}

// CacheConfig configures the verdict cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// StrikesConfig configures author strikes and mutes.
type StrikesConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuditConfig configures the decision audit store.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// MetricsConfig configures the standalone metrics listener. Empty Addr serves
// metrics from the HTTP API only.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}
