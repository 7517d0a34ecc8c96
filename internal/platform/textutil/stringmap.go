package textutil

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Payment processors cap metadata; these match Stripe's limits.
const (
	MaxMetadataEntries  = 50
	MaxMetadataKeyLen   = 40
	MaxMetadataValueLen = 500
)

// NormalizeMetadata trims keys and values and drops entries whose key or value ends up empty.
// Keys and values are cut to the metadata limits and, past MaxMetadataEntries, the keys that sort
// last are dropped so the result does not depend on map order.
func NormalizeMetadata(values map[string]string) map[string]string {
	keys := make([]string, 0, len(values))
	cleaned := make(map[string]string, len(values))
	for key, value := range values {
		key = truncateRunes(strings.TrimSpace(key), MaxMetadataKeyLen)
		value = truncateRunes(strings.TrimSpace(value), MaxMetadataValueLen)
		if key == "" || value == "" {
			continue
		}
		if _, dup := cleaned[key]; !dup {
			keys = append(keys, key)
		}
		cleaned[key] = value
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	result := make(map[string]string, min(len(keys), MaxMetadataEntries))
	for _, key := range keys[:min(len(keys), MaxMetadataEntries)] {
		result[key] = cleaned[key]
	}
	return result
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
