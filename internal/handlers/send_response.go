package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/channel"
)

// ResponseDispatcher delivers an agent Response to its recipients.
type ResponseDispatcher interface {
	Dispatch(ctx context.Context, resp channel.Response) channel.Report
}

// SendResponseResult is the body of a successful send-response call.
type SendResponseResult struct {
	Status string         `json:"status"`
	Report channel.Report `json:"report"`
}

type SendResponseHandler struct {
	logger     *slog.Logger
	dispatcher ResponseDispatcher
	auth       auth.ServiceConfig
	validate   *validator.Validate
}

func NewSendResponseHandler(log *slog.Logger, dispatcher ResponseDispatcher, authCfg auth.ServiceConfig) *SendResponseHandler {
	return &SendResponseHandler{
		logger:     log.With(slog.String("handler", "send_response")),
		dispatcher: dispatcher,
		auth:       authCfg,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *SendResponseHandler) Register(e *echo.Echo) {
	e.POST("/api/send-response", h.Send, auth.ServiceMiddleware(h.auth))
}

// Send godoc
// @Summary Deliver an agent response
// @Description Render the response on every recipient channel and report per-message outcomes
// @Tags delivery
// @Param payload body channel.Response true "Agent response"
// @Success 200 {object} SendResponseResult
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/send-response [post]
func (h *SendResponseHandler) Send(c echo.Context) error {
	var req channel.Response
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid response payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	caller, _ := auth.ServiceFromContext(c)
	report := h.dispatcher.Dispatch(c.Request().Context(), req)
	h.logger.Info("response dispatched",
		slog.String("response_id", req.ID),
		slog.String("caller", caller),
		slog.Int("recipients", len(req.Recipients)),
		slog.Int("messages", len(req.Messages)),
		slog.Int("delivered", report.Count(channel.StatusDelivered)),
		slog.Int("failed", report.Count(channel.StatusFailed)))
	return c.JSON(http.StatusOK, SendResponseResult{Status: "ok", Report: report})
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
