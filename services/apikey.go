package services

import (
	"crypto/subtle"
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/sahafa-network/guard_api/shared"
)

// APIKeyMiddleware gates the API behind a shared key and an optional client
// type allow-list. Disabled when API_KEY is unset.
type APIKeyMiddleware struct {
	context.DefaultService

	apiKey          string
	allowedClients  []string
	checkClientType bool
	logUnauthorized bool
}

const API_KEY_MIDDLEWARE_SVC = "api_key"

func (svc APIKeyMiddleware) Id() string {
	return API_KEY_MIDDLEWARE_SVC
}

func (svc *APIKeyMiddleware) Configure(ctx *context.Context) error {
	svc.apiKey = os.Getenv("API_KEY")
	svc.allowedClients = splitPreserveCase(os.Getenv("API_ALLOWED_CLIENTS"))
	svc.checkClientType = envBool("API_CHECK_CLIENT_TYPE", len(svc.allowedClients) > 0)
	svc.logUnauthorized = envBool("API_LOG_UNAUTHORIZED", true)
	return svc.DefaultService.Configure(ctx)
}

func (svc *APIKeyMiddleware) Start() error {
	return nil
}

func (svc *APIKeyMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc.apiKey == "" {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(svc.apiKey)) != 1 {
			if svc.logUnauthorized {
				log.WithFields(log.Fields{
					"ip":  c.IP(),
					"uri": c.OriginalURL(),
				}).Warn("Rejected request with invalid API key")
			}
			return shared.ResponseUnauthorized(c)
		}

		if svc.checkClientType && !svc.clientAllowed(c.Get(fiber.HeaderUserAgent)) {
			if svc.logUnauthorized {
				log.WithFields(log.Fields{
					"ip":         c.IP(),
					"user_agent": c.Get(fiber.HeaderUserAgent),
				}).Warn("Rejected request from disallowed client type")
			}
			return shared.ResponseForbidden(c)
		}

		return c.Next()
	}
}

func (svc *APIKeyMiddleware) clientAllowed(userAgent string) bool {
	for _, client := range svc.allowedClients {
		if strings.Contains(userAgent, client) {
			return true
		}
	}
	return false
}

func splitPreserveCase(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
