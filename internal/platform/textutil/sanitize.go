package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainTextPolicy = bluemonday.StrictPolicy()

// SanitizePlainText strips every HTML element from free-form operator or customer input
// and trims the result. Entities produced by the policy are decoded back to plain text.
func SanitizePlainText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(plainTextPolicy.Sanitize(trimmed)))
}

// SanitizeOptional applies SanitizePlainText to an optional value, returning nil when nothing remains.
func SanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := SanitizePlainText(*value)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
