package services

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"

	_ "github.com/sahafa-network/guard_api/docs"
	"github.com/sahafa-network/guard_api/services/handlers"
	"github.com/sahafa-network/guard_api/shared"
)

type HttpService struct {
	context.DefaultService

	rlMw     *RateLimitMiddleware
	tenantMw *TenantMiddleware
	authMw   *AuthMiddleware
	secureMw *SecureHeadersMiddleware
	apiKeyMw *APIKeyMiddleware

	rateLimitHandler *handlers.RateLimitHandler

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.rlMw = svc.Service(RATE_LIMIT_MIDDLEWARE_SVC).(*RateLimitMiddleware)
	svc.tenantMw = svc.Service(TENANT_MIDDLEWARE_SVC).(*TenantMiddleware)
	svc.authMw = svc.Service(AUTH_MIDDLEWARE_SVC).(*AuthMiddleware)
	svc.secureMw = svc.Service(SECURE_HEADERS_SVC).(*SecureHeadersMiddleware)
	svc.apiKeyMw = svc.Service(API_KEY_MIDDLEWARE_SVC).(*APIKeyMiddleware)

	ledgerSvc := svc.Service(LEDGER_SVC).(*LedgerService)
	policySvc := svc.Service(POLICY_SVC).(*PolicyService)
	svc.rateLimitHandler = handlers.NewRateLimitHandler(ledgerSvc, policySvc)

	svc.app = fiber.New(fiber.Config{
		AppName:     SERVICE_NAME,
		JSONEncoder: shared.JSONEncoder,
		JSONDecoder: shared.JSONDecoder,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := shared.GetAppError(err); ok {
				return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
			}
			return shared.ResponseInternalError(c, err)
		},
	})

	svc.app.Use(recover.New())
	svc.app.Use(svc.secureMw.Handler())

	svc.app.Get("/ping", svc.ping).Name("ping")
	svc.app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := svc.app.Group("/api/v1")
	v1.Use(svc.apiKeyMw.Handler())
	v1.Use(svc.tenantMw.Handler())
	v1.Use(svc.authMw.OptionalAuth())
	v1.Use(svc.rlMw.API())

	v1.Get("/ping", svc.ping).Name("api.ping")
	v1.Get("/status", svc.status).Name("api.status")

	admin := v1.Group("/admin",
		svc.authMw.RequiredAuth(),
		svc.authMw.RequireRole(shared.RoleAdmin),
		svc.rlMw.PerUser(),
	)
	admin.Get("/rate-limits", svc.rateLimitHandler.ListLogs).Name("admin.rate-limits.index")
	admin.Get("/rate-limits/stats", svc.rateLimitHandler.Stats).Name("admin.rate-limits.stats")
	admin.Delete("/rate-limits/:id", svc.rateLimitHandler.DeleteLog).Name("admin.rate-limits.destroy")
	admin.Delete("/rate-limits", svc.rateLimitHandler.PurgeLogs).Name("admin.rate-limits.destroy-all")
	admin.Post("/rate-limits/block-ip", svc.rateLimitHandler.BlockIP).Name("admin.rate-limits.block-ip")

	svc.app.Use(func(c *fiber.Ctx) error {
		return shared.ResponseNotFound(c)
	})

	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")
	return shared.ResponseOK(c, "pong")
}

// @Summary Tenant status
// @Description Reports which country database the request resolved to
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response
// @Router /api/v1/status [get]
func (svc *HttpService) status(c *fiber.Ctx) error {
	tenant, _ := c.Locals(shared.Tenant).(string)
	return shared.ResponseOK(c, fiber.Map{
		"service":  SERVICE_NAME,
		"database": tenant,
	})
}
