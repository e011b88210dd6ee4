package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "guard_api"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Admission metrics
var (
	admissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Admission decisions by limiter type and outcome",
		},
		[]string{"limiter_type", "decision"},
	)

	blockedIPHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blocked_ip_hits_total",
			Help: "Requests rejected because the source IP is blocked",
		},
	)

	ledgerWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_write_failures_total",
			Help: "Ledger writes that failed and were swallowed",
		},
	)

	counterStoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "counter_store_errors_total",
			Help: "Attempt counter store errors (requests handled per fail-open policy)",
		},
	)
)

type MonitoringService struct {
	context.DefaultService

	port     int
	register *prometheus.Registry
	server   *fiber.App
}

func (svc *MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Start() error {
	portStr := os.Getenv("PROMETHEUS_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DEFAULT_PROMETHEUS_PORT
	}
	svc.port = port

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(
		admissionDecisionsTotal,
		blockedIPHitsTotal,
		ledgerWriteFailuresTotal,
		counterStoreErrorsTotal,
	)
	svc.register = reg

	config := fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}

	svc.server = fiber.New(config)
	svc.server.Use(recover.New())
	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	go func() {
		if err := svc.server.Listen(fmt.Sprintf(":%v", svc.port)); err != nil {
			log.Error().Err(err).Msg("Prometheus metrics server stopped")
		}
	}()

	log.Info().Int("port", svc.port).Msg("Prometheus metrics server started")
	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

// RecordAdmission counts one admission decision.
func RecordAdmission(limiterType, decision string) {
	admissionDecisionsTotal.WithLabelValues(limiterType, decision).Inc()
}

func RecordBlockedIPHit() {
	blockedIPHitsTotal.Inc()
}

func RecordLedgerWriteFailure() {
	ledgerWriteFailuresTotal.Inc()
}

func RecordCounterStoreError() {
	counterStoreErrorsTotal.Inc()
}
