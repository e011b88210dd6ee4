package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahafa-network/guard_api/shared"
)

func newTestPolicyService(t *testing.T, env map[string]string) *PolicyService {
	t.Helper()
	for key, value := range env {
		t.Setenv(key, value)
	}

	svc := &PolicyService{}
	svc.loadFromEnv()
	return svc
}

func TestPolicyDefaults(t *testing.T) {
	svc := newTestPolicyService(t, nil)

	assert.True(t, svc.Enabled())
	assert.True(t, svc.FailOpen())
	assert.True(t, svc.LogThrottled())
	assert.Equal(t, 5*time.Minute, svc.BlockDuration())
	assert.Equal(t, 429, svc.ResponseCode())

	api := svc.Resolve(shared.LimiterTypeAPI, "", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 60, DecayMinutes: 1}, api)

	web := svc.Resolve(shared.LimiterTypeWeb, "", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 120, DecayMinutes: 1}, web)
}

func TestPolicyRouteResolutionOrder(t *testing.T) {
	svc := newTestPolicyService(t, map[string]string{
		"RATE_LIMIT_GLOBAL_API": "100,1",
		"RATE_LIMIT_ROUTES":     "api.posts.store=5,10;api.posts.*=30,1;api.*=50,1",
	})

	// Exact match beats every pattern.
	exact := svc.Resolve(shared.LimiterTypeRoute, "api.posts.store", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 5, DecayMinutes: 10}, exact)

	// First matching pattern in declaration order wins.
	pattern := svc.Resolve(shared.LimiterTypeRoute, "api.posts.index", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 30, DecayMinutes: 1}, pattern)

	later := svc.Resolve(shared.LimiterTypeRoute, "api.comments.index", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 50, DecayMinutes: 1}, later)

	// No match falls back to the global api quota.
	global := svc.Resolve(shared.LimiterTypeRoute, "web.home", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 100, DecayMinutes: 1}, global)

	// Missing route names use the global quota too.
	unnamed := svc.Resolve(shared.LimiterTypeRoute, "", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 100, DecayMinutes: 1}, unnamed)
}

func TestPolicyUserTiers(t *testing.T) {
	svc := newTestPolicyService(t, map[string]string{
		"RATE_LIMIT_GLOBAL_API": "60,1",
		"RATE_LIMIT_USERS":      "admin=1000,1;default=120,1;guest=30,1",
	})

	admin := svc.Resolve(shared.LimiterTypeUser, "", shared.RoleAdmin)
	assert.Equal(t, RateLimitPolicy{Attempts: 1000, DecayMinutes: 1}, admin)

	authed := svc.Resolve(shared.LimiterTypeUser, "", "editor")
	assert.Equal(t, RateLimitPolicy{Attempts: 120, DecayMinutes: 1}, authed)

	guest := svc.Resolve(shared.LimiterTypeUser, "", "")
	assert.Equal(t, RateLimitPolicy{Attempts: 30, DecayMinutes: 1}, guest)
}

func TestPolicyMalformedConfigFallsBack(t *testing.T) {
	svc := newTestPolicyService(t, map[string]string{
		"RATE_LIMIT_GLOBAL_API": "not-a-number",
		"RATE_LIMIT_GLOBAL_WEB": "10",
		"RATE_LIMIT_ROUTES":     "api.posts.*=abc,def;missing-equals",
		"RATE_LIMIT_USERS":      "admin=0,0",
	})

	// Malformed tuples never fail a request; they resolve to the 60/1 fallback.
	assert.Equal(t, defaultPolicy, svc.Resolve(shared.LimiterTypeAPI, "", ""))
	assert.Equal(t, defaultPolicy, svc.Resolve(shared.LimiterTypeWeb, "", ""))
	assert.Equal(t, defaultPolicy, svc.Resolve(shared.LimiterTypeRoute, "api.posts.index", ""))
	assert.Equal(t, defaultPolicy, svc.Resolve(shared.LimiterTypeUser, "", shared.RoleAdmin))
}

func TestPolicyErrorMessagePlaceholder(t *testing.T) {
	svc := newTestPolicyService(t, map[string]string{
		"RATE_LIMIT_ERROR_MESSAGE": "Retry in :seconds seconds.",
	})

	assert.Equal(t, "Retry in 42 seconds.", svc.ErrorMessage(42))
}

func TestPolicyBlockedIPsAndSnapshot(t *testing.T) {
	svc := newTestPolicyService(t, map[string]string{
		"RATE_LIMIT_BLOCKED_IPS": "10.0.0.*, 192.168.1.9",
		"RATE_LIMIT_ROUTES":      "api.posts.*=30,1",
		"RATE_LIMIT_USERS":       "admin=1000,1",
	})

	require.Equal(t, []string{"10.0.0.*", "192.168.1.9"}, svc.BlockedIPs())

	global, routes, users := svc.Snapshot()
	assert.Equal(t, "60,1", global[shared.LimiterTypeAPI])
	assert.Equal(t, "30,1", routes["api.posts.*"])
	assert.Equal(t, "1000,1", users[shared.RoleAdmin])
}
