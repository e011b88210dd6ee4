package services

import (
	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/sahafa-network/guard_api/shared"
)

// TenantMiddleware resolves the country database a request targets. The
// tenant travels in request locals as an explicit per-request value; nothing
// process-wide is mutated.
type TenantMiddleware struct {
	context.DefaultService

	valid         map[string]bool
	defaultTenant string
}

const TENANT_MIDDLEWARE_SVC = "tenant"

func (svc TenantMiddleware) Id() string {
	return TENANT_MIDDLEWARE_SVC
}

func (svc *TenantMiddleware) Configure(ctx *context.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *TenantMiddleware) Start() error {
	dbSvc := svc.Service(DB_SVC).(*DbService)

	svc.valid = make(map[string]bool)
	for _, tenant := range dbSvc.Tenants() {
		svc.valid[tenant] = true
	}
	svc.defaultTenant = dbSvc.DefaultTenant()

	return nil
}

// Handler resolves the tenant from the country query parameter or the
// X-Country header, falling back to the default for unknown values.
func (svc *TenantMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		country := c.Query("country")
		if country == "" {
			country = c.Get("X-Country")
		}

		if !svc.valid[country] {
			country = svc.defaultTenant
		}

		c.Locals(shared.Tenant, country)
		return c.Next()
	}
}

// TenantFromCtx returns the tenant resolved for this request, or fallback when
// the tenant middleware did not run.
func TenantFromCtx(c *fiber.Ctx, fallback string) string {
	if tenant, ok := c.Locals(shared.Tenant).(string); ok && tenant != "" {
		return tenant
	}
	return fallback
}
