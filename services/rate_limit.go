package services

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sahafa-network/guard_api/model"
	"github.com/sahafa-network/guard_api/shared"
)

// RateLimitMiddleware is the admission controller: every guarded request ends
// in exactly one of admit (forwarded, rate-limit headers attached) or deny
// (429-class response). Block checks come first and are IP-only, so a blocked
// address is rejected uniformly across routes and users.
type RateLimitMiddleware struct {
	context.DefaultService

	policySvc *PolicyService
	ledgerSvc *LedgerService
	store     CounterStore

	defaultTenant string
}

const RATE_LIMIT_MIDDLEWARE_SVC = "rate_limit"

// manualBlockHorizon approximates a permanent block when recording access
// attempts from statically blocked addresses.
const manualBlockHorizon = 10 * 365 * 24 * time.Hour

func (svc RateLimitMiddleware) Id() string {
	return RATE_LIMIT_MIDDLEWARE_SVC
}

func (svc *RateLimitMiddleware) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitMiddleware) Start() error {
	svc.policySvc = svc.Service(POLICY_SVC).(*PolicyService)
	svc.ledgerSvc = svc.Service(LEDGER_SVC).(*LedgerService)
	svc.store = svc.Service(COUNTER_SVC).(*CounterService).Store()
	svc.defaultTenant = svc.Service(DB_SVC).(*DbService).DefaultTenant()
	return nil
}

// API limits by IP with the global api quota.
func (svc *RateLimitMiddleware) API() fiber.Handler {
	return svc.Handler(shared.LimiterTypeAPI)
}

// Web limits by IP with the global web quota.
func (svc *RateLimitMiddleware) Web() fiber.Handler {
	return svc.Handler(shared.LimiterTypeWeb)
}

// PerRoute limits per route name with configured per-route overrides.
func (svc *RateLimitMiddleware) PerRoute() fiber.Handler {
	return svc.Handler(shared.LimiterTypeRoute)
}

// PerUser limits per authenticated principal with per-tier overrides.
func (svc *RateLimitMiddleware) PerUser() fiber.Handler {
	return svc.Handler(shared.LimiterTypeUser)
}

// Handler builds the admission handler for one limiter type.
func (svc *RateLimitMiddleware) Handler(limiterType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !svc.policySvc.Enabled() {
			return c.Next()
		}

		now := time.Now()
		tenant := TenantFromCtx(c, svc.defaultTenant)
		ip := clientIP(c)

		if svc.ledgerSvc.IsBlocked(tenant, ip, now) {
			svc.observeBlockedAttempt(c, tenant, ip, now)
			RecordBlockedIPHit()
			RecordAdmission(limiterType, "blocked")
			return svc.denyBlocked(c)
		}

		routeName := resolveRouteName(c)
		userID, _ := c.Locals(shared.UserID).(string)
		userRole, _ := c.Locals(shared.UserRole).(string)

		key := tenant + ":" + ResolveSignature(limiterType, routeName, userID, ip)
		policy := svc.policySvc.Resolve(limiterType, routeName, userRole)

		allowed, err := svc.store.TryAcquire(c.Context(), key, policy.Attempts, policy.Decay())
		if err != nil {
			RecordCounterStoreError()
			log.WithError(err).WithFields(log.Fields{
				"ip":  ip,
				"key": key,
			}).Error("Rate limit counter store error")

			if svc.policySvc.FailOpen() {
				return c.Next()
			}
			return shared.ResponseJSON(c, fiber.StatusServiceUnavailable,
				"Rate limit service unavailable", nil)
		}

		if !allowed {
			svc.recordViolation(c, tenant, ip, routeName, userID, key, policy, now)
			RecordAdmission(limiterType, "denied")
			return svc.denyThrottled(c, key)
		}

		RecordAdmission(limiterType, "admitted")
		err = c.Next()
		svc.attachHeaders(c, key, policy)
		return err
	}
}

// observeBlockedAttempt logs access from a blocked address. Best-effort: a
// write failure never changes the deny outcome.
func (svc *RateLimitMiddleware) observeBlockedAttempt(c *fiber.Ctx, tenant, ip string, now time.Time) {
	if !svc.policySvc.LogThrottled() {
		return
	}

	log.WithFields(log.Fields{
		"ip":  ip,
		"uri": c.OriginalURL(),
	}).Warn("Blocked IP attempted access")

	until := now.Add(manualBlockHorizon)
	_, err := svc.ledgerSvc.LogAttempt(tenant, model.RateLimitLog{
		IPAddress:    ip,
		UserID:       userIDPtr(c),
		Route:        resolveRouteName(c),
		Method:       c.Method(),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		Attempts:     999,
		Limit:        0,
		BlockedUntil: &until,
	})
	if err != nil {
		RecordLedgerWriteFailure()
		log.WithError(err).WithField("ip", ip).Error("Failed to log blocked IP attempt")
	}
}

// recordViolation writes the quota violation to the ledger with the penalty
// window applied. The deny already happened at the counter; failures here are
// logged and swallowed.
func (svc *RateLimitMiddleware) recordViolation(c *fiber.Ctx, tenant, ip, routeName, userID, key string, policy RateLimitPolicy, now time.Time) {
	log.WithFields(log.Fields{
		"ip":       ip,
		"user_id":  orGuest(userID),
		"uri":      c.OriginalURL(),
		"key":      key,
		"attempts": policy.Attempts,
	}).Warn("Rate limit exceeded")

	if !svc.policySvc.LogThrottled() {
		return
	}

	attempts, err := svc.store.Attempts(c.Context(), key)
	if err != nil {
		attempts = policy.Attempts + 1
	}

	until := now.Add(svc.policySvc.BlockDuration())
	_, err = svc.ledgerSvc.LogAttempt(tenant, model.RateLimitLog{
		IPAddress:    ip,
		UserID:       userIDPtr(c),
		Route:        routeName,
		Method:       c.Method(),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		Attempts:     attempts,
		Limit:        policy.Attempts,
		BlockedUntil: &until,
	})
	if err != nil {
		RecordLedgerWriteFailure()
		log.WithError(err).WithFields(log.Fields{
			"ip":  ip,
			"uri": c.OriginalURL(),
		}).Error("Failed to log rate limit attempt")
	}
}

func (svc *RateLimitMiddleware) denyBlocked(c *fiber.Ctx) error {
	message := svc.policySvc.BlockedIPMessage()
	statusCode := svc.policySvc.ResponseCode()

	if expectsJSON(c) {
		return c.Status(statusCode).JSON(fiber.Map{
			"message": message,
			"error":   "ip_blocked",
		})
	}
	return c.Status(statusCode).SendString(message)
}

func (svc *RateLimitMiddleware) denyThrottled(c *fiber.Ctx, key string) error {
	availableIn, err := svc.store.AvailableIn(c.Context(), key)
	if err != nil {
		availableIn = 0
	}
	seconds := int(availableIn.Round(time.Second).Seconds())

	message := svc.policySvc.ErrorMessage(seconds)
	statusCode := svc.policySvc.ResponseCode()

	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))

	if expectsJSON(c) {
		return c.Status(statusCode).JSON(fiber.Map{
			"message":     message,
			"retry_after": seconds,
			"error":       "rate_limit_exceeded",
		})
	}
	return c.Status(statusCode).SendString(message)
}

// attachHeaders reports counter state at decision time on admitted responses.
func (svc *RateLimitMiddleware) attachHeaders(c *fiber.Ctx, key string, policy RateLimitPolicy) {
	remaining, err := svc.store.Remaining(c.Context(), key, policy.Attempts)
	if err != nil {
		return
	}
	availableIn, err := svc.store.AvailableIn(c.Context(), key)
	if err != nil {
		return
	}

	c.Set("X-RateLimit-Limit", strconv.Itoa(policy.Attempts))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Set("X-RateLimit-Reset", strconv.Itoa(int(availableIn.Round(time.Second).Seconds())))
}

func resolveRouteName(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Name != "" {
		return route.Name
	}
	return c.Path()
}

func expectsJSON(c *fiber.Ctx) bool {
	accept := c.Get(fiber.HeaderAccept)
	return strings.Contains(accept, "json")
}

func userIDPtr(c *fiber.Ctx) *string {
	if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
		return &userID
	}
	return nil
}

func orGuest(userID string) string {
	if userID == "" {
		return shared.RoleGuest
	}
	return userID
}

func clientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		return cfIP
	}

	addr := c.Context().RemoteAddr().String()
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}
