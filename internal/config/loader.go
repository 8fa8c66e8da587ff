package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of configuration environment variables, e.g.
// MODERATOR_LLM_API_KEY.
const EnvPrefix = "MODERATOR"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader using an existing viper instance, so
// that CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (MODERATOR_*)
// 3. Config file (--config, ./moderator.yaml, ~/.config/comment-moderator/config.yaml)
// 4. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("moderator")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "comment-moderator"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// setDefaults configures default values. Every key is given a default so
// that AutomaticEnv can override it.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("llm.api_key", "")
	l.v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	l.v.SetDefault("llm.model", "openai/gpt-4o-mini")
	l.v.SetDefault("llm.referer", "https://github.com/whisper/comment-moderator")
	l.v.SetDefault("llm.title", "Comment Moderator")
	l.v.SetDefault("llm.max_tokens", 150)
	l.v.SetDefault("llm.timeout", "15s")

	l.v.SetDefault("moderation.max_length", 2000)
	l.v.SetDefault("moderation.locale", "en")
	l.v.SetDefault("moderation.lexicon_file", "")
	l.v.SetDefault("moderation.watch_lexicon", true)
	l.v.SetDefault("moderation.fallback_policy", "open")
	l.v.SetDefault("moderation.model_timeout", "20s")
	l.v.SetDefault("moderation.request_timeout", "45s")

	l.v.SetDefault("nats.url", "nats://localhost:4222")
	l.v.SetDefault("nats.name", "comment-moderator")
	l.v.SetDefault("nats.queue_group", "moderators")
	l.v.SetDefault("nats.max_concurrent", 16)

	l.v.SetDefault("redis.addr", "localhost:6379")
	l.v.SetDefault("redis.password", "")
	l.v.SetDefault("redis.db", 0)

	l.v.SetDefault("ratelimit.model_calls_per_minute", 120)
	l.v.SetDefault("ratelimit.comments_per_minute", 10)

	l.v.SetDefault("cache.enabled", true)
	l.v.SetDefault("cache.ttl", "24h")

	l.v.SetDefault("strikes.enabled", true)

	l.v.SetDefault("audit.enabled", false)
	l.v.SetDefault("audit.dsn", "")

	l.v.SetDefault("http.addr", ":8080")
	l.v.SetDefault("http.cors_origins", []string{})

	l.v.SetDefault("metrics.addr", "")
}
