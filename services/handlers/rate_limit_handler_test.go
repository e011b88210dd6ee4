package handlers

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahafa-network/guard_api/dto"
	"github.com/sahafa-network/guard_api/model"
	"github.com/sahafa-network/guard_api/shared"
)

type stubLedger struct {
	listReq     dto.ListRateLimitLogsRequest
	deleteErr   error
	purged      int64
	purgeFilter string
	blockedIP   string
	blockUntil  time.Time
	actor       string
}

func (s *stubLedger) List(tenant string, req dto.ListRateLimitLogsRequest) (*dto.RateLimitLogListResponse, error) {
	s.listReq = req
	return &dto.RateLimitLogListResponse{
		Logs:    []model.RateLimitLog{{ID: "log-1", IPAddress: "1.1.1.1"}},
		Total:   1,
		Page:    1,
		PerPage: 15,
	}, nil
}

func (s *stubLedger) Delete(tenant, id string) error {
	return s.deleteErr
}

func (s *stubLedger) Purge(tenant, filter string) (int64, error) {
	s.purgeFilter = filter
	return s.purged, nil
}

func (s *stubLedger) ManualBlock(tenant, ip string, until time.Time, actorLabel string) (*model.RateLimitLog, error) {
	s.blockedIP = ip
	s.blockUntil = until
	s.actor = actorLabel
	return &model.RateLimitLog{ID: "block-1", IPAddress: ip, Method: shared.MethodManual}, nil
}

func (s *stubLedger) Counts(tenant string) (int64, int64) {
	return 10, 3
}

type stubPolicy struct{}

func (stubPolicy) Enabled() bool { return true }

func (stubPolicy) Snapshot() (map[string]string, map[string]string, map[string]string) {
	return map[string]string{"api": "60,1"}, map[string]string{}, map[string]string{}
}

func newHandlerApp(ledger *stubLedger) *fiber.App {
	h := NewRateLimitHandler(ledger, stubPolicy{})

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(shared.Tenant, "jo")
		c.Locals(shared.UserID, "admin-1")
		return c.Next()
	})
	app.Get("/admin/rate-limits", h.ListLogs)
	app.Delete("/admin/rate-limits", h.PurgeLogs)
	app.Delete("/admin/rate-limits/:id", h.DeleteLog)
	app.Post("/admin/rate-limits/block-ip", h.BlockIP)
	app.Get("/admin/rate-limits/stats", h.Stats)
	return app
}

func TestListLogs(t *testing.T) {
	ledger := &stubLedger{}
	app := newHandlerApp(ledger)

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/rate-limits?filter=blocked&search=1.1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, shared.FilterBlocked, ledger.listReq.Filter)
	assert.Equal(t, "1.1", ledger.listReq.Search)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "1.1.1.1")
}

func TestListLogsRejectsBadFilter(t *testing.T) {
	app := newHandlerApp(&stubLedger{})

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/rate-limits?filter=bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDeleteLogNotFound(t *testing.T) {
	ledger := &stubLedger{deleteErr: shared.NewNotFoundError("Rate limit log not found")}
	app := newHandlerApp(ledger)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/admin/rate-limits/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPurgeLogs(t *testing.T) {
	ledger := &stubLedger{purged: 7}
	app := newHandlerApp(ledger)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/admin/rate-limits?filter=expired", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, shared.FilterExpired, ledger.purgeFilter)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Deleted 7 logs")
}

func TestPurgeLogsRejectsBadFilter(t *testing.T) {
	app := newHandlerApp(&stubLedger{})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/admin/rate-limits?filter=everything", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestBlockIP(t *testing.T) {
	ledger := &stubLedger{}
	app := newHandlerApp(ledger)

	payload := `{"ip_address":"9.9.9.9","duration":2,"duration_unit":"hours"}`
	req := httptest.NewRequest("POST", "/admin/rate-limits/block-ip", bytes.NewBufferString(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	before := time.Now()
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	assert.Equal(t, "9.9.9.9", ledger.blockedIP)
	assert.Equal(t, "admin-1", ledger.actor)
	assert.WithinDuration(t, before.Add(2*time.Hour), ledger.blockUntil, time.Minute)
}

func TestBlockIPValidation(t *testing.T) {
	app := newHandlerApp(&stubLedger{})

	cases := []struct {
		name    string
		payload string
	}{
		{"invalid ip", `{"ip_address":"not-an-ip","duration":2,"duration_unit":"hours"}`},
		{"zero duration", `{"ip_address":"9.9.9.9","duration":0,"duration_unit":"hours"}`},
		{"bad unit", `{"ip_address":"9.9.9.9","duration":2,"duration_unit":"weeks"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/admin/rate-limits/block-ip", bytes.NewBufferString(tc.payload))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestStats(t *testing.T) {
	app := newHandlerApp(&stubLedger{})

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/rate-limits/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"total_records":10`)
	assert.Contains(t, string(body), `"blocked_records":3`)
	assert.Contains(t, string(body), `"60,1"`)
}
