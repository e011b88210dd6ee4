package shared

import "strings"

// WildcardMatch reports whether value matches pattern, where '*' matches any
// run of characters (including dots and slashes). A pattern without '*' must
// match exactly.
func WildcardMatch(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	parts := strings.Split(pattern, "*")

	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]

	last := len(parts) - 1
	for _, part := range parts[1:last] {
		if part == "" {
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}

	return strings.HasSuffix(value, parts[last])
}

// MatchAny reports whether value matches any of the given patterns.
func MatchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if WildcardMatch(p, value) {
			return true
		}
	}
	return false
}
