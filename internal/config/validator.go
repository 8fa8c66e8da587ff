package config

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"github.com/whisper/comment-moderator/internal/logging"
	"github.com/whisper/comment-moderator/internal/moderation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors

	// RequireModel makes a missing API key an error. The serve command sets
	// it; the check command runs without a model when no key is configured.
	RequireModel bool
	// RequireAudit makes a missing audit DSN an error even when audit is
	// disabled, for the migrate command.
	RequireAudit bool
}

// Validate validates the entire configuration and returns ValidationErrors
// when anything is wrong.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil
	v.validateLog(&cfg.Log)
	v.validateLLM(&cfg.LLM)
	v.validateModeration(&cfg.Moderation)
	v.validateNATS(&cfg.NATS)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateCache(&cfg.Cache)
	v.validateAudit(&cfg.Audit)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !logging.ValidLevel(cfg.Level) {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateLLM(cfg *LLMConfig) {
	if v.RequireModel && strings.TrimSpace(cfg.APIKey) == "" {
		v.addError("llm.api_key", "", "is required (set MODERATOR_LLM_API_KEY)")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError("llm.base_url", cfg.BaseURL, "must be an absolute http(s) URL")
	}
	if v.RequireModel && cfg.Model == "" {
		v.addError("llm.model", cfg.Model, "is required")
	}
	if cfg.MaxTokens <= 0 {
		v.addError("llm.max_tokens", cfg.MaxTokens, "must be positive")
	}
	if cfg.Timeout <= 0 {
		v.addError("llm.timeout", cfg.Timeout, "must be positive")
	}
}

func (v *Validator) validateModeration(cfg *ModerationConfig) {
	if cfg.MaxLength <= 0 {
		v.addError("moderation.max_length", cfg.MaxLength, "must be positive")
	}
	if _, err := language.Parse(cfg.Locale); err != nil {
		v.addError("moderation.locale", cfg.Locale, "must be a BCP 47 language tag")
	}
	if _, err := moderation.ParseFallbackPolicy(cfg.FallbackPolicy); err != nil {
		v.addError("moderation.fallback_policy", cfg.FallbackPolicy, "must be one of: open, closed")
	}
	if cfg.ModelTimeout < 0 {
		v.addError("moderation.model_timeout", cfg.ModelTimeout, "must not be negative")
	}
	if cfg.RequestTimeout < 0 {
		v.addError("moderation.request_timeout", cfg.RequestTimeout, "must not be negative")
	}
}

func (v *Validator) validateNATS(cfg *NATSConfig) {
	if cfg.QueueGroup == "" {
		v.addError("nats.queue_group", cfg.QueueGroup, "is required")
	}
	if cfg.MaxConcurrent <= 0 {
		v.addError("nats.max_concurrent", cfg.MaxConcurrent, "must be positive")
	}
}

func (v *Validator) validateRateLimit(cfg *RateLimitConfig) {
	if cfg.ModelCallsPerMinute < 0 {
		v.addError("ratelimit.model_calls_per_minute", cfg.ModelCallsPerMinute, "must not be negative")
	}
	if cfg.CommentsPerMinute < 0 {
		v.addError("ratelimit.comments_per_minute", cfg.CommentsPerMinute, "must not be negative")
	}
}

func (v *Validator) validateCache(cfg *CacheConfig) {
	if cfg.Enabled && cfg.TTL <= 0 {
		v.addError("cache.ttl", cfg.TTL, "must be positive when the cache is enabled")
	}
}

func (v *Validator) validateAudit(cfg *AuditConfig) {
	if (cfg.Enabled || v.RequireAudit) && cfg.DSN == "" {
		v.addError("audit.dsn", "", "is required when audit is enabled")
	}
}

// ValidateForServe validates cfg for the long-running worker.
func ValidateForServe(cfg *Config) error {
	v := &Validator{RequireModel: true}
	return v.Validate(cfg)
}

// ValidateConfig validates cfg without requiring a model.
func ValidateConfig(cfg *Config) error {
	return (&Validator{}).Validate(cfg)
}
