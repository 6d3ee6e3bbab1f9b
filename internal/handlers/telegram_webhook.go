package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/access"
	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/telegram"
	"github.com/memohai/relay/internal/metrics"
)

const (
	webhookActive       = "Telegram webhook is active"
	webhookOK           = "OK"
	webhookIgnored      = "ignored"
	webhookForbidden    = "Forbidden: sender not whitelisted"
	webhookUnsupported  = "❌ File too large or unsupported."
	webhookForwardError = "Failed to forward event"
	webhookInternal     = "Internal Server Error"
)

// EventNormalizer turns a platform message into a canonical Event.
type EventNormalizer interface {
	Normalize(ctx context.Context, msg *tgbotapi.Message) (*channel.Event, error)
}

// EventForwarder hands an Event to the agents service.
type EventForwarder interface {
	Forward(ctx context.Context, event *channel.Event) error
}

// AccessGate decides whether a sender may use the bot.
type AccessGate interface {
	Allowed(ids ...string) bool
}

// WebhookConfig configures TelegramWebhookHandler.
type WebhookConfig struct {
	Secret          string
	PlaceholderText string
}

type TelegramWebhookHandler struct {
	logger      *slog.Logger
	normalizer  EventNormalizer
	forwarder   EventForwarder
	gate        AccessGate
	notifier    telegram.Notifier
	secret      string
	placeholder string
}

func NewTelegramWebhookHandler(log *slog.Logger, normalizer EventNormalizer, forwarder EventForwarder, gate AccessGate, notifier telegram.Notifier, cfg WebhookConfig) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		logger:      log.With(slog.String("handler", "telegram_webhook")),
		normalizer:  normalizer,
		forwarder:   forwarder,
		gate:        gate,
		notifier:    notifier,
		secret:      cfg.Secret,
		placeholder: strings.TrimSpace(cfg.PlaceholderText),
	}
}

func (h *TelegramWebhookHandler) Register(e *echo.Echo) {
	group := e.Group("/api/telegram", auth.WebhookSecretMiddleware(h.secret))
	group.POST("", h.Receive)
	group.GET("", h.Probe)
}

// Probe godoc
// @Summary Webhook probe
// @Tags telegram
// @Success 200 {string} string
// @Router /api/telegram [get]
func (h *TelegramWebhookHandler) Probe(c echo.Context) error {
	return c.String(http.StatusOK, webhookActive)
}

// Receive godoc
// @Summary Receive a Telegram update
// @Description Normalize the update, post a placeholder and forward the event to the agents service
// @Tags telegram
// @Param payload body tgbotapi.Update true "Telegram update or bare message"
// @Success 200 {string} string
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /api/telegram [post]
func (h *TelegramWebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := decodeTelegramMessage(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update payload")
	}
	if msg == nil {
		metrics.ObserveEvent(telegram.Type, "ignored")
		return c.String(http.StatusOK, webhookIgnored)
	}

	ctx := c.Request().Context()
	logger := h.logger.With(slog.Int64("chat_id", msg.Chat.ID), slog.Int("message_id", msg.MessageID))

	if !h.allowed(msg) {
		logger.Info("sender not whitelisted")
		if h.notifier != nil {
			if _, err := h.notifier.SendText(ctx, msg.Chat.ID, access.DeniedNotice, telegram.TextOptions{}); err != nil {
				logger.Warn("send denied notice failed", slog.Any("error", err))
			}
		}
		metrics.ObserveEvent(telegram.Type, "denied")
		return c.String(http.StatusOK, webhookForbidden)
	}

	event, err := h.normalizer.Normalize(ctx, msg)
	if err != nil {
		if errors.Is(err, telegram.ErrMalformedUpdate) {
			logger.Warn("malformed update ignored", slog.Any("error", err))
			metrics.ObserveEvent(telegram.Type, "ignored")
			return c.String(http.StatusOK, webhookIgnored)
		}
		logger.Error("normalize failed", slog.Any("error", err))
		metrics.ObserveEvent(telegram.Type, "failed")
		return c.String(http.StatusInternalServerError, webhookInternal)
	}
	if event == nil {
		metrics.ObserveEvent(telegram.Type, "rejected")
		return c.String(http.StatusOK, webhookUnsupported)
	}

	h.sendPlaceholder(ctx, logger, msg.Chat.ID, event)

	if err := h.forwarder.Forward(ctx, event); err != nil {
		logger.Error("forward event failed", slog.String("event_id", event.ID), slog.Any("error", err))
		metrics.ObserveEvent(telegram.Type, "failed")
		return c.String(http.StatusInternalServerError, webhookForwardError)
	}
	metrics.ObserveEvent(telegram.Type, "forwarded")
	logger.Debug("event forwarded", slog.String("event_id", event.ID), slog.String("agent_id", event.AgentID))
	return c.String(http.StatusOK, webhookOK)
}

func (h *TelegramWebhookHandler) allowed(msg *tgbotapi.Message) bool {
	if h.gate == nil {
		return true
	}
	ids := []string{strconv.FormatInt(msg.Chat.ID, 10)}
	if msg.From != nil && msg.From.ID != 0 {
		ids = append([]string{strconv.FormatInt(msg.From.ID, 10)}, ids...)
	}
	return h.gate.Allowed(ids...)
}

// sendPlaceholder posts the "thinking" message and records its id on the event.
// A failure is logged and the event goes out without a placeholder.
func (h *TelegramWebhookHandler) sendPlaceholder(ctx context.Context, logger *slog.Logger, chatID int64, event *channel.Event) {
	if h.notifier == nil || h.placeholder == "" {
		return
	}
	messageID, err := h.notifier.SendText(ctx, chatID, h.placeholder, telegram.TextOptions{
		ParseMode: tgbotapi.ModeMarkdown,
		Silent:    true,
	})
	if err != nil {
		logger.Warn("send placeholder failed", slog.Any("error", err))
		return
	}
	event.SetMetadata(channel.MetadataPlaceholderMessageID, messageID)
}

// decodeTelegramMessage accepts a full Update or a bare Message. It returns nil
// when the payload carries no message with a chat.
func decodeTelegramMessage(body []byte) (*tgbotapi.Message, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, err
	}
	msg := update.Message
	if msg == nil {
		var bare tgbotapi.Message
		if err := json.Unmarshal(body, &bare); err != nil {
			return nil, err
		}
		msg = &bare
	}
	if msg.Chat == nil {
		return nil, nil
	}
	return msg, nil
}
