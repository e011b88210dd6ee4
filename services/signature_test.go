package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sahafa-network/guard_api/shared"
)

func TestResolveSignatureDeterministic(t *testing.T) {
	a := ResolveSignature(shared.LimiterTypeAPI, "", "", "10.1.2.3")
	b := ResolveSignature(shared.LimiterTypeAPI, "", "", "10.1.2.3")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "rate_limit:"))
	// sha1 hex digest after the namespace prefix
	assert.Len(t, strings.TrimPrefix(a, "rate_limit:"), 40)
}

func TestResolveSignatureDistinctBuckets(t *testing.T) {
	ip := "10.1.2.3"

	api := ResolveSignature(shared.LimiterTypeAPI, "", "", ip)
	web := ResolveSignature(shared.LimiterTypeWeb, "", "", ip)
	route := ResolveSignature(shared.LimiterTypeRoute, "api.posts.index", "", ip)
	user := ResolveSignature(shared.LimiterTypeUser, "", "user-1", ip)

	keys := map[string]bool{api: true, web: true, route: true, user: true}
	assert.Len(t, keys, 4, "each limiter type must get its own bucket")

	otherIP := ResolveSignature(shared.LimiterTypeAPI, "", "", "10.1.2.4")
	assert.NotEqual(t, api, otherIP)

	otherRoute := ResolveSignature(shared.LimiterTypeRoute, "api.posts.store", "", ip)
	assert.NotEqual(t, route, otherRoute)
}

func TestResolveSignatureFallbacks(t *testing.T) {
	ip := "10.1.2.3"

	// Anonymous principals share the guest bucket per IP.
	guest := ResolveSignature(shared.LimiterTypeUser, "", "", ip)
	explicit := ResolveSignature(shared.LimiterTypeUser, "", "guest", ip)
	assert.Equal(t, explicit, guest)

	// Unnamed routes collapse into the unknown bucket.
	unknown := ResolveSignature(shared.LimiterTypeRoute, "", "", ip)
	explicitUnknown := ResolveSignature(shared.LimiterTypeRoute, "unknown", "", ip)
	assert.Equal(t, explicitUnknown, unknown)

	// Custom tags form their own namespace.
	custom := ResolveSignature("uploads", "", "", ip)
	assert.NotEqual(t, custom, ResolveSignature(shared.LimiterTypeAPI, "", "", ip))
}
