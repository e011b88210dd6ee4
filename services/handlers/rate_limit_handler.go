package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sahafa-network/guard_api/dto"
	"github.com/sahafa-network/guard_api/shared"
)

// RateLimitHandler exposes the ledger to the external security dashboard.
type RateLimitHandler struct {
	ledgerSvc LedgerServiceInterface
	policySvc PolicyServiceInterface
}

func NewRateLimitHandler(ledgerSvc LedgerServiceInterface, policySvc PolicyServiceInterface) *RateLimitHandler {
	return &RateLimitHandler{
		ledgerSvc: ledgerSvc,
		policySvc: policySvc,
	}
}

// @Summary List rate limit logs
// @Description Lists ledger records with filter (all, blocked, expired), search and sorting
// @Tags admin
// @Accept json
// @Produce json
// @Param filter query string false "all | blocked | expired"
// @Param search query string false "Matches ip_address, route or user_agent"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size (max 100)"
// @Param sort_by query string false "Sort column"
// @Param sort_order query string false "asc | desc"
// @Success 200 {object} shared.Response{data=dto.RateLimitLogListResponse}
// @Router /api/v1/admin/rate-limits [get]
func (h *RateLimitHandler) ListLogs(c *fiber.Ctx) error {
	var req dto.ListRateLimitLogsRequest
	if err := c.QueryParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid query parameters")
	}

	if err := dto.GetValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	result, err := h.ledgerSvc.List(tenantOf(c), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return shared.ResponseOK(c, result)
}

// @Summary Delete one rate limit log
// @Tags admin
// @Produce json
// @Param id path string true "Log ID"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/rate-limits/{id} [delete]
func (h *RateLimitHandler) DeleteLog(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return shared.ResponseBadRequest(c, "Missing log id")
	}

	if err := h.ledgerSvc.Delete(tenantOf(c), id); err != nil {
		return h.handleError(c, err)
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Log deleted successfully", nil)
}

// @Summary Bulk delete rate limit logs
// @Description Deletes all ledger records matching the filter and returns the count removed
// @Tags admin
// @Produce json
// @Param filter query string false "all | blocked | expired"
// @Success 200 {object} shared.Response{data=dto.PurgeResponse}
// @Router /api/v1/admin/rate-limits [delete]
func (h *RateLimitHandler) PurgeLogs(c *fiber.Ctx) error {
	filter := c.Query("filter", shared.FilterAll)
	switch filter {
	case shared.FilterAll, shared.FilterBlocked, shared.FilterExpired:
	default:
		return shared.ResponseBadRequest(c, "Invalid filter")
	}

	deleted, err := h.ledgerSvc.Purge(tenantOf(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	message := fmt.Sprintf("Deleted %d logs", deleted)
	return shared.ResponseJSON(c, fiber.StatusOK, message, dto.PurgeResponse{Deleted: deleted})
}

// @Summary Block an IP address
// @Description Creates a manual block record lasting for the given duration
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.BlockIPRequest true "Block request"
// @Success 201 {object} shared.Response{data=model.RateLimitLog}
// @Router /api/v1/admin/rate-limits/block-ip [post]
func (h *RateLimitHandler) BlockIP(c *fiber.Ctx) error {
	var req dto.BlockIPRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.CreateValidationErrorResponse(err))
	}

	until := time.Now().Add(req.BlockDuration())
	actor, _ := c.Locals(shared.UserID).(string)

	record, err := h.ledgerSvc.ManualBlock(tenantOf(c), req.IPAddress, until, actor)
	if err != nil {
		return h.handleError(c, err)
	}

	message := fmt.Sprintf("IP %s blocked until %s", req.IPAddress, until.Format(time.RFC3339))
	return shared.ResponseJSON(c, fiber.StatusCreated, message, record)
}

// @Summary Rate limiting statistics
// @Description Configuration snapshot plus ledger record counts
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=dto.RateLimitStatsResponse}
// @Router /api/v1/admin/rate-limits/stats [get]
func (h *RateLimitHandler) Stats(c *fiber.Ctx) error {
	global, routes, users := h.policySvc.Snapshot()
	total, blocked := h.ledgerSvc.Counts(tenantOf(c))

	return shared.ResponseOK(c, dto.RateLimitStatsResponse{
		Enabled:        h.policySvc.Enabled(),
		GlobalLimits:   global,
		RouteLimits:    routes,
		UserLimits:     users,
		TotalRecords:   total,
		BlockedRecords: blocked,
		Timestamp:      time.Now(),
	})
}

func (h *RateLimitHandler) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}
	return shared.ResponseInternalError(c, err)
}

func tenantOf(c *fiber.Ctx) string {
	tenant, _ := c.Locals(shared.Tenant).(string)
	return tenant
}
