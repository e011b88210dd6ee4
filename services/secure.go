package services

import (
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
)

// SecureHeadersMiddleware applies transport security headers and, when forced,
// redirects plain HTTP traffic to HTTPS.
type SecureHeadersMiddleware struct {
	context.DefaultService

	forceHTTPS            bool
	hstsMaxAge            int
	hstsIncludeSubdomains bool
	enableCSP             bool
	cspDirectives         string
}

const SECURE_HEADERS_SVC = "secure_headers"

func (svc SecureHeadersMiddleware) Id() string {
	return SECURE_HEADERS_SVC
}

func (svc *SecureHeadersMiddleware) Configure(ctx *context.Context) error {
	svc.forceHTTPS = envBool("FORCE_HTTPS", false)
	svc.hstsMaxAge = envInt("HSTS_MAX_AGE", 31536000)
	svc.hstsIncludeSubdomains = envBool("HSTS_INCLUDE_SUBDOMAINS", true)
	svc.enableCSP = envBool("ENABLE_CSP", true)
	svc.cspDirectives = envString("CSP_DIRECTIVES",
		"default-src 'self'; img-src 'self' data: https:; script-src 'self'")

	return svc.DefaultService.Configure(ctx)
}

func (svc *SecureHeadersMiddleware) Start() error {
	return nil
}

func (svc *SecureHeadersMiddleware) Handler() fiber.Handler {
	hsts := "max-age=" + strconv.Itoa(svc.hstsMaxAge)
	if svc.hstsIncludeSubdomains {
		hsts += "; includeSubDomains"
	}

	return func(c *fiber.Ctx) error {
		if svc.forceHTTPS && c.Protocol() == "http" {
			return c.Redirect("https://"+c.Hostname()+c.OriginalURL(), fiber.StatusMovedPermanently)
		}

		c.Set(fiber.HeaderStrictTransportSecurity, hsts)
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderXFrameOptions, "SAMEORIGIN")
		c.Set(fiber.HeaderReferrerPolicy, "strict-origin-when-cross-origin")
		if svc.enableCSP {
			c.Set(fiber.HeaderContentSecurityPolicy, svc.cspDirectives)
		}

		return c.Next()
	}
}
