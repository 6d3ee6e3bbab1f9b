package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/healthcheck"
)

type PingHandler struct {
	logger  *slog.Logger
	checker healthcheck.Checker
}

// HealthReport is the body of GET /health/checks.
type HealthReport struct {
	Status string                    `json:"status"`
	Checks []healthcheck.CheckResult `json:"checks"`
}

func NewPingHandler(log *slog.Logger, checker healthcheck.Checker) *PingHandler {
	return &PingHandler{
		logger:  log.With(slog.String("handler", "ping")),
		checker: checker,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/health/checks", h.Checks)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Checks godoc
// @Summary Runtime checks
// @Description Report per-channel delivery health
// @Tags health
// @Success 200 {object} HealthReport
// @Failure 503 {object} HealthReport
// @Router /health/checks [get]
func (h *PingHandler) Checks(c echo.Context) error {
	report := HealthReport{Status: healthcheck.StatusOK, Checks: []healthcheck.CheckResult{}}
	if h.checker != nil {
		report.Checks = h.checker.ListChecks(c.Request().Context())
		report.Status = healthcheck.Overall(report.Checks)
	}
	status := http.StatusOK
	if report.Status == healthcheck.StatusError {
		h.logger.Warn("health checks failing", slog.Int("checks", len(report.Checks)))
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}
