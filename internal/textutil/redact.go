package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// RedactionMarker replaces every credential-like substring.
const RedactionMarker = "[REDACTED]"

const truncationSuffix = " [truncated]"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: assignment rules keep the key name and must run before the
// bare token rules consume the value.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9\-._~+/]+=*`), "${1} " + RedactionMarker},
	{regexp.MustCompile(`(?i)\b(authorization)\s*[:=]\s*(?:basic\s+)?[^\s"',;]+`), "${1}: " + RedactionMarker},
	{regexp.MustCompile(`(?i)\b([a-z0-9_\-]*(?:api[_\-]?key|access[_\-]?token|auth[_\-]?token|secret|password|passwd|token))(["']?\s*[:=]\s*["']?)[^\s"',;&]+`), "${1}${2}" + RedactionMarker},
	{regexp.MustCompile(`\bsk-(?:ant-|proj-)?[A-Za-z0-9_\-]{8,}`), RedactionMarker},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`), RedactionMarker},
	{regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}`), RedactionMarker},
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`), RedactionMarker},
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+){0,2}`), RedactionMarker},
	{regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9\-]{10,}`), RedactionMarker},
	{regexp.MustCompile(`(?i)(://[^:/\s@]+:)[^@\s/]+@`), "${1}" + RedactionMarker + "@"},
}

// Redact replaces bearer tokens, key/secret assignments, and well-known
// credential formats with RedactionMarker.
func Redact(value string) string {
	for _, rule := range redactionRules {
		value = rule.pattern.ReplaceAllString(value, rule.replacement)
	}
	return value
}

// Truncate caps value at limit bytes without splitting a UTF-8 sequence. When
// the value is cut, the result ends with a truncation suffix and still fits
// within limit. A non-positive limit returns value unchanged.
func Truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	suffix := truncationSuffix
	if len(suffix) >= limit {
		suffix = ""
	}
	cut := limit - len(suffix)
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + suffix
}

// SanitizeDiagnostic prepares captured process output for persistence:
// invalid UTF-8 is replaced, secrets are redacted, whitespace is trimmed, and
// the result is capped at limit bytes.
func SanitizeDiagnostic(value string, limit int) string {
	value = strings.ToValidUTF8(value, "�")
	value = strings.TrimSpace(Redact(value))
	return Truncate(value, limit)
}
