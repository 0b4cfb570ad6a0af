package telemetry

import (
	"encoding/json"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Sensitive patterns that should never appear in trace attributes or logs
var (
	secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|secret|password|passwd|pwd|auth|authorization)[\s:=]+["']?([^\s"']+)`)

	secretFieldNames = map[string]bool{
		"password":      true,
		"passwd":        true,
		"pwd":           true,
		"secret":        true,
		"token":         true,
		"auth":          true,
		"authorization": true,
		"owner_pw":      true,
		"user_pw":       true,
	}
)

// IsSensitiveField reports whether a form field name carries a secret
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	return secretFieldNames[lower] ||
		strings.Contains(lower, "password") ||
		strings.Contains(lower, "secret") ||
		strings.Contains(lower, "token")
}

// RedactParams returns a copy of params with secret values replaced
func RedactParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return map[string]string{}
	}

	out := make(map[string]string, len(params))
	for key, value := range params {
		if IsSensitiveField(key) {
			if value != "" {
				out[key] = redacted
			} else {
				out[key] = ""
			}
			continue
		}
		out[key] = sanitiseString(value)
	}
	return out
}

// SanitiseParams returns a JSON string of the redacted form fields
func SanitiseParams(params map[string]string) string {
	if len(params) == 0 {
		return "{}"
	}

	jsonBytes, err := json.Marshal(RedactParams(params))
	if err != nil {
		return "{\"error\": \"failed to serialise params\"}"
	}
	return string(jsonBytes)
}

// sanitiseString removes embedded key=value secrets from free text
func sanitiseString(s string) string {
	if s == "" {
		return s
	}
	if secretPattern.MatchString(s) {
		return secretPattern.ReplaceAllString(s, "$1="+redacted)
	}
	return s
}

// TruncateString truncates a string to a maximum length, adding ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
