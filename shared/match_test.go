package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWildcardMatch(t *testing.T) {
	cases := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"10.0.0.5", "10.0.0.5", true},
		{"10.0.0.5", "10.0.0.6", false},
		{"10.0.0.*", "10.0.0.5", true},
		{"10.0.0.*", "10.0.1.5", false},
		{"192.168.*", "192.168.44.12", true},
		{"*", "anything at all", true},
		{"api.posts.*", "api.posts.store", true},
		{"api.posts.*", "api.comments.store", false},
		{"api.*.store", "api.posts.store", true},
		{"api.*.store", "api.posts.index", false},
		{"", "", true},
		{"", "x", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, WildcardMatch(tc.pattern, tc.value),
			"pattern=%q value=%q", tc.pattern, tc.value)
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"10.0.0.*", "172.16.1.9"}

	assert.True(t, MatchAny(patterns, "10.0.0.200"))
	assert.True(t, MatchAny(patterns, "172.16.1.9"))
	assert.False(t, MatchAny(patterns, "172.16.1.10"))
	assert.False(t, MatchAny(nil, "10.0.0.200"))
}
