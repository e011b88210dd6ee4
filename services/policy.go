package services

import (
	"os"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/sahafa-network/guard_api/shared"
)

// RateLimitPolicy is a resolved quota: how many attempts fit into one decay
// window.
type RateLimitPolicy struct {
	Attempts     int
	DecayMinutes int
}

func (p RateLimitPolicy) Decay() time.Duration {
	return time.Duration(p.DecayMinutes) * time.Minute
}

// defaultPolicy is the hard fallback when configuration is absent or
// malformed.
var defaultPolicy = RateLimitPolicy{Attempts: 60, DecayMinutes: 1}

type routeLimit struct {
	pattern string
	raw     string
}

// PolicyService holds the typed rate-limiting configuration, populated once at
// Configure time from the environment.
type PolicyService struct {
	appContext.DefaultService

	enabled      bool
	failOpen     bool
	logThrottled bool

	blockDuration    time.Duration
	blockedIPs       []string
	blockedIPMessage string
	errorMessage     string
	responseCode     int

	globalAPI string
	globalWeb string
	routes    []routeLimit
	users     map[string]string
}

const POLICY_SVC = "policy_svc"

func (svc PolicyService) Id() string {
	return POLICY_SVC
}

func (svc *PolicyService) Configure(ctx *appContext.Context) error {
	svc.loadFromEnv()
	return svc.DefaultService.Configure(ctx)
}

func (svc *PolicyService) Start() error {
	if !svc.enabled {
		log.Warn("Rate limiting is disabled by configuration")
	}
	return nil
}

func (svc *PolicyService) loadFromEnv() {
	svc.enabled = envBool("RATE_LIMIT_ENABLED", true)
	svc.failOpen = envBool("RATE_LIMIT_FAIL_OPEN", true)
	svc.logThrottled = envBool("RATE_LIMIT_LOG_THROTTLED", true)

	minutes := envInt("RATE_LIMIT_BLOCK_DURATION", 5)
	if minutes < 1 {
		minutes = 5
	}
	svc.blockDuration = time.Duration(minutes) * time.Minute

	svc.blockedIPs = splitList(os.Getenv("RATE_LIMIT_BLOCKED_IPS"))

	svc.blockedIPMessage = os.Getenv("RATE_LIMIT_BLOCKED_IP_MESSAGE")
	if svc.blockedIPMessage == "" {
		svc.blockedIPMessage = "This IP address has been blocked due to suspicious activity."
	}

	svc.errorMessage = os.Getenv("RATE_LIMIT_ERROR_MESSAGE")
	if svc.errorMessage == "" {
		svc.errorMessage = "Too many requests. Please try again in :seconds seconds."
	}

	svc.responseCode = envInt("RATE_LIMIT_RESPONSE_CODE", 429)
	if svc.responseCode < 400 || svc.responseCode > 599 {
		svc.responseCode = 429
	}

	svc.globalAPI = envString("RATE_LIMIT_GLOBAL_API", "60,1")
	svc.globalWeb = envString("RATE_LIMIT_GLOBAL_WEB", "120,1")

	svc.routes = parseLimitMap(os.Getenv("RATE_LIMIT_ROUTES"))

	svc.users = make(map[string]string)
	for _, entry := range parseLimitMap(os.Getenv("RATE_LIMIT_USERS")) {
		svc.users[entry.pattern] = entry.raw
	}
}

// Resolve maps a limiter type plus request context to a quota. Resolution
// order: exact route match, glob route match in declaration order, user tier,
// global default for the type, hard 60/1 fallback.
func (svc *PolicyService) Resolve(limiterType, routeName, userRole string) RateLimitPolicy {
	switch limiterType {
	case shared.LimiterTypeAPI:
		return parseQuota(svc.globalAPI, defaultPolicy)
	case shared.LimiterTypeWeb:
		return parseQuota(svc.globalWeb, defaultPolicy)
	case shared.LimiterTypeRoute:
		return svc.resolveRoute(routeName)
	case shared.LimiterTypeUser:
		return svc.resolveUser(userRole)
	default:
		return parseQuota(svc.globalAPI, defaultPolicy)
	}
}

func (svc *PolicyService) resolveRoute(routeName string) RateLimitPolicy {
	apiDefault := parseQuota(svc.globalAPI, defaultPolicy)
	if routeName == "" {
		return apiDefault
	}

	for _, entry := range svc.routes {
		if entry.pattern == routeName {
			return parseQuota(entry.raw, apiDefault)
		}
	}
	for _, entry := range svc.routes {
		if shared.WildcardMatch(entry.pattern, routeName) {
			return parseQuota(entry.raw, apiDefault)
		}
	}

	return apiDefault
}

func (svc *PolicyService) resolveUser(userRole string) RateLimitPolicy {
	tier := shared.RoleGuest
	switch userRole {
	case shared.RoleAdmin:
		tier = shared.RoleAdmin
	case "":
	default:
		tier = shared.RoleDefault
	}

	if raw, ok := svc.users[tier]; ok {
		return parseQuota(raw, parseQuota(svc.globalAPI, defaultPolicy))
	}
	return parseQuota(svc.globalAPI, defaultPolicy)
}

func (svc *PolicyService) Enabled() bool {
	return svc.enabled
}

func (svc *PolicyService) FailOpen() bool {
	return svc.failOpen
}

func (svc *PolicyService) LogThrottled() bool {
	return svc.logThrottled
}

func (svc *PolicyService) BlockDuration() time.Duration {
	return svc.blockDuration
}

func (svc *PolicyService) BlockedIPs() []string {
	return svc.blockedIPs
}

func (svc *PolicyService) BlockedIPMessage() string {
	return svc.blockedIPMessage
}

// ErrorMessage renders the denial text, substituting the :seconds placeholder.
func (svc *PolicyService) ErrorMessage(seconds int) string {
	return strings.ReplaceAll(svc.errorMessage, ":seconds", strconv.Itoa(seconds))
}

func (svc *PolicyService) ResponseCode() int {
	return svc.responseCode
}

// Snapshot exposes the raw configured quotas for the admin stats endpoint.
func (svc *PolicyService) Snapshot() (global, routes, users map[string]string) {
	global = map[string]string{
		shared.LimiterTypeAPI: svc.globalAPI,
		shared.LimiterTypeWeb: svc.globalWeb,
	}
	routes = make(map[string]string, len(svc.routes))
	for _, entry := range svc.routes {
		routes[entry.pattern] = entry.raw
	}
	users = make(map[string]string, len(svc.users))
	for tier, raw := range svc.users {
		users[tier] = raw
	}
	return global, routes, users
}

// parseQuota parses an "attempts,decay_minutes" tuple, falling back on any
// malformed input.
func parseQuota(raw string, fallback RateLimitPolicy) RateLimitPolicy {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return fallback
	}

	attempts, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	decay, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || attempts < 1 || decay < 1 {
		return fallback
	}

	return RateLimitPolicy{Attempts: attempts, DecayMinutes: decay}
}

// parseLimitMap parses "pattern=attempts,decay;pattern2=..." preserving
// declaration order.
func parseLimitMap(raw string) []routeLimit {
	if raw == "" {
		return nil
	}

	var out []routeLimit
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, found := strings.Cut(entry, "=")
		if !found {
			log.WithField("entry", entry).Warn("Ignoring malformed rate limit entry")
			continue
		}
		out = append(out, routeLimit{
			pattern: strings.TrimSpace(key),
			raw:     strings.TrimSpace(value),
		})
	}
	return out
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
