package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are attribute-name fragments whose values are never logged.
var sensitiveKeys = []string{"key", "token", "secret", "password", "authorization"}

// secretPatterns catch credentials that leak into free-form values such as
// error messages or upstream response snippets.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-or-v1-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(postgres(?:ql)?|redis|nats)://([^:/@\s]+):([^@\s]+)@`),
}

// Redact masks credentials inside s.
func Redact(s string) string {
	for _, re := range secretPatterns {
		if re.NumSubexp() == 3 {
			s = re.ReplaceAllString(s, "$1://$2:"+redacted+"@")
			continue
		}
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range sensitiveKeys {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// redactAttr is installed as slog's ReplaceAttr.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if isSensitiveKey(a.Key) && !a.Value.Equal(slog.StringValue("")) {
		return slog.String(a.Key, redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
	}
	return a
}
