package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
)

// Type is the registered channel type for Telegram.
const Type channel.ChannelType = "telegram"

// Delivery step names, reported in channel.Outcome.Step.
const (
	stepValidate     = "validate"
	stepResolve      = "resolve"
	stepEditMarkdown = "edit_markdown"
	stepEditPlain    = "edit_plain"
	stepSendMarkdown = "send_markdown"
	stepSendPlain    = "send_plain"
	stepSendVoice    = "send_voice"
)

const defaultVoiceName = "voice"

// TelegramAdapter implements channel.Adapter and channel.Sender for Telegram.
type TelegramAdapter struct {
	client Client
	logger *slog.Logger
}

// NewTelegramAdapter creates a TelegramAdapter that talks to Telegram through client.
func NewTelegramAdapter(log *slog.Logger, client Client) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramAdapter{
		client: client,
		logger: log.With(slog.String("adapter", "telegram")),
	}
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		Capabilities: channel.ChannelCapabilities{
			Text:     true,
			Markdown: true,
			Audio:    true,
			Edit:     true,
			Unsend:   true,
		},
	}
}

// Deliver sends every message of resp to the recipient chat, strictly in order.
// A failed message never prevents the following ones from being attempted.
func (a *TelegramAdapter) Deliver(ctx context.Context, resp channel.Response, to channel.Recipient) []channel.Outcome {
	chatID, err := to.ChatID.Int64()
	if err != nil {
		a.logger.Warn("recipient without chat id skipped",
			slog.String("response_id", resp.ID),
			slog.String("chat_id", to.ChatID.String()))
		return []channel.Outcome{{
			Channel: Type,
			ChatID:  to.ChatID,
			Index:   channel.RecipientLevel,
			Status:  channel.StatusSkipped,
			Step:    stepResolve,
			Err:     fmt.Errorf("%w: %w", channel.ErrRecipientMissing, err),
		}}
	}
	edit := resp.EditMessage()
	outcomes := make([]channel.Outcome, 0, len(resp.Messages))
	for i, msg := range resp.Messages {
		outcome := a.deliverMessage(ctx, resp.ID, chatID, edit, msg)
		outcome.Channel = Type
		outcome.ChatID = to.ChatID
		outcome.Index = i
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (a *TelegramAdapter) deliverMessage(ctx context.Context, responseID string, chatID int64, edit bool, msg channel.OutgoingMessage) channel.Outcome {
	logger := a.logger.With(slog.Int64("chat_id", chatID), slog.String("response_id", responseID))
	reply, err := msg.Content()
	if err != nil {
		if errors.Is(err, channel.ErrTextMissing) {
			logger.Error("text message without content skipped", slog.Any("error", err))
		} else {
			logger.Warn("message skipped", slog.String("type", string(msg.Type)), slog.Any("error", err))
		}
		return channel.Outcome{Status: channel.StatusSkipped, Step: stepValidate, Err: err}
	}
	placeholder := parsePlaceholderID(logger, msg.PlaceholderMessageID)
	switch r := reply.(type) {
	case channel.TextReply:
		return a.deliverText(ctx, logger, chatID, edit, placeholder, r.Text)
	case channel.AudioReply:
		return a.deliverVoice(ctx, logger, responseID, chatID, placeholder, r)
	default:
		logger.Warn("unsupported reply skipped", slog.String("type", string(reply.Kind())))
		return channel.Outcome{Status: channel.StatusSkipped, Step: stepValidate, Err: channel.ErrUnsupportedMessage}
	}
}

func (a *TelegramAdapter) deliverText(ctx context.Context, logger *slog.Logger, chatID int64, edit bool, placeholder int, text string) channel.Outcome {
	text, formatted := fitTelegramMarkdown(text)
	result := channel.RunChain(ctx, logger, a.textSteps(chatID, edit, placeholder, text, formatted))
	if result.Err != nil {
		logger.Error("text delivery failed",
			slog.String("last_step", result.Step),
			slog.Int("attempts", result.Attempts),
			slog.Any("error", result.Err))
		return channel.Outcome{Status: channel.StatusFailed, Step: result.Step, Err: result.Err}
	}
	if result.Sent && placeholder > 0 {
		a.retirePlaceholder(ctx, logger, chatID, placeholder)
	}
	return channel.Outcome{Status: channel.StatusDelivered, Step: result.Step}
}

// textSteps builds the fallback chain. The edit steps only apply when editing was
// requested and a placeholder exists; plain-text steps only run after a markup rejection.
func (a *TelegramAdapter) textSteps(chatID int64, edit bool, placeholder int, text, formatted string) []channel.Step {
	send := []channel.Step{
		{
			Name:  stepSendMarkdown,
			Sends: true,
			After: channel.OnAnyError,
			Do: func(ctx context.Context) error {
				_, err := a.client.SendText(ctx, chatID, formatted, TextOptions{ParseMode: tgbotapi.ModeMarkdownV2})
				return err
			},
		},
		{
			Name:  stepSendPlain,
			Sends: true,
			After: channel.OnMarkupRejected,
			Do: func(ctx context.Context) error {
				_, err := a.client.SendText(ctx, chatID, text, TextOptions{})
				return err
			},
		},
	}
	if !edit || placeholder <= 0 {
		return send
	}
	return append([]channel.Step{
		{
			Name: stepEditMarkdown,
			Do: func(ctx context.Context) error {
				return a.client.EditText(ctx, chatID, placeholder, formatted, tgbotapi.ModeMarkdownV2)
			},
		},
		{
			Name:  stepEditPlain,
			After: channel.OnMarkupRejected,
			Do: func(ctx context.Context) error {
				return a.client.EditText(ctx, chatID, placeholder, text, "")
			},
		},
	}, send...)
}

func (a *TelegramAdapter) deliverVoice(ctx context.Context, logger *slog.Logger, responseID string, chatID int64, placeholder int, reply channel.AudioReply) channel.Outcome {
	name := strings.TrimSpace(responseID)
	if name == "" {
		name = defaultVoiceName
	}
	_, err := a.client.SendVoice(ctx, chatID, Voice{
		FileName: name + "." + reply.Format,
		Data:     reply.Data,
		Silent:   true,
		Protect:  true,
	})
	if err != nil {
		logger.Error("voice delivery failed", slog.Any("error", err))
		return channel.Outcome{Status: channel.StatusFailed, Step: stepSendVoice, Err: err}
	}
	if placeholder > 0 {
		a.retirePlaceholder(ctx, logger, chatID, placeholder)
	}
	return channel.Outcome{Status: channel.StatusDelivered, Step: stepSendVoice}
}

// retirePlaceholder deletes a placeholder after its replacement was sent. Failures are only logged.
func (a *TelegramAdapter) retirePlaceholder(ctx context.Context, logger *slog.Logger, chatID int64, placeholder int) {
	if err := a.client.Delete(ctx, chatID, placeholder); err != nil {
		logger.Warn("delete placeholder failed", slog.Int("placeholder_id", placeholder), slog.Any("error", err))
	}
}

func parsePlaceholderID(logger *slog.Logger, id channel.ID) int {
	if id.IsZero() {
		return 0
	}
	value, err := id.Int64()
	if err != nil || value <= 0 {
		logger.Warn("invalid placeholder id ignored", slog.String("placeholder_id", id.String()))
		return 0
	}
	return int(value)
}
