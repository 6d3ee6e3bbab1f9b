package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/relay/internal/channel"
)

// Type is the registered channel type for Discord.
const Type channel.ChannelType = "discord"

const (
	discordMaxLength = 2000
	defaultVoiceName = "voice"
)

const (
	stepValidate = "validate"
	stepResolve  = "resolve"
	stepEdit     = "edit"
	stepSend     = "send"
	stepSendFile = "send_file"
)

// session is the part of *discordgo.Session used for delivery.
type session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelFileSend(channelID, name string, r io.Reader, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAdapter delivers agent responses to Discord channels over the REST API.
type DiscordAdapter struct {
	logger  *slog.Logger
	session session
}

// NewDiscordAdapter creates an adapter authenticated with a bot token.
// No gateway connection is opened; only REST calls are made.
func NewDiscordAdapter(log *slog.Logger, token string) (*DiscordAdapter, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newDiscordAdapter(log, s), nil
}

func newDiscordAdapter(log *slog.Logger, s session) *DiscordAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordAdapter{
		logger:  log.With(slog.String("adapter", "discord")),
		session: s,
	}
}

func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

func (a *DiscordAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Discord",
		Capabilities: channel.ChannelCapabilities{
			Text:     true,
			Markdown: true,
			Audio:    true,
			Edit:     true,
			Unsend:   true,
		},
	}
}

// Deliver sends every message of resp to the recipient channel in order.
// Discord renders standard markdown, so text is sent unchanged.
func (a *DiscordAdapter) Deliver(ctx context.Context, resp channel.Response, to channel.Recipient) []channel.Outcome {
	channelID := strings.TrimSpace(to.ChatID.String())
	if channelID == "" {
		return []channel.Outcome{{
			Channel: Type,
			Index:   channel.RecipientLevel,
			Status:  channel.StatusSkipped,
			Step:    stepResolve,
			Err:     channel.ErrRecipientMissing,
		}}
	}
	edit := resp.EditMessage()
	outcomes := make([]channel.Outcome, 0, len(resp.Messages))
	for i, msg := range resp.Messages {
		outcome := a.deliverMessage(ctx, resp.ID, channelID, edit, msg)
		outcome.Channel = Type
		outcome.ChatID = to.ChatID
		outcome.Index = i
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (a *DiscordAdapter) deliverMessage(ctx context.Context, responseID, channelID string, edit bool, msg channel.OutgoingMessage) channel.Outcome {
	logger := a.logger.With(slog.String("channel_id", channelID), slog.String("response_id", responseID))
	reply, err := msg.Content()
	if err != nil {
		logger.Warn("message skipped", slog.String("type", string(msg.Type)), slog.Any("error", err))
		return channel.Outcome{Status: channel.StatusSkipped, Step: stepValidate, Err: err}
	}
	placeholder := strings.TrimSpace(msg.PlaceholderMessageID.String())
	opt := discordgo.WithContext(ctx)

	switch r := reply.(type) {
	case channel.TextReply:
		text := truncateDiscordText(r.Text)
		steps := []channel.Step{{
			Name:  stepSend,
			Sends: true,
			After: channel.OnAnyError,
			Do: func(context.Context) error {
				_, err := a.session.ChannelMessageSend(channelID, text, opt)
				return err
			},
		}}
		if edit && placeholder != "" {
			steps = append([]channel.Step{{
				Name: stepEdit,
				Do: func(context.Context) error {
					_, err := a.session.ChannelMessageEdit(channelID, placeholder, text, opt)
					return err
				},
			}}, steps...)
		}
		result := channel.RunChain(ctx, logger, steps)
		if result.Err != nil {
			logger.Error("text delivery failed", slog.String("last_step", result.Step), slog.Any("error", result.Err))
			return channel.Outcome{Status: channel.StatusFailed, Step: result.Step, Err: result.Err}
		}
		if result.Sent {
			a.deletePlaceholder(logger, channelID, placeholder, opt)
		}
		return channel.Outcome{Status: channel.StatusDelivered, Step: result.Step}
	case channel.AudioReply:
		name := strings.TrimSpace(responseID)
		if name == "" {
			name = defaultVoiceName
		}
		if _, err := a.session.ChannelFileSend(channelID, name+"."+r.Format, bytes.NewReader(r.Data), opt); err != nil {
			logger.Error("audio delivery failed", slog.Any("error", err))
			return channel.Outcome{Status: channel.StatusFailed, Step: stepSendFile, Err: err}
		}
		a.deletePlaceholder(logger, channelID, placeholder, opt)
		return channel.Outcome{Status: channel.StatusDelivered, Step: stepSendFile}
	default:
		return channel.Outcome{Status: channel.StatusSkipped, Step: stepValidate, Err: channel.ErrUnsupportedMessage}
	}
}

func (a *DiscordAdapter) deletePlaceholder(logger *slog.Logger, channelID, placeholder string, opt discordgo.RequestOption) {
	if placeholder == "" {
		return
	}
	if err := a.session.ChannelMessageDelete(channelID, placeholder, opt); err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			logger.Warn("delete placeholder failed", slog.String("placeholder_id", placeholder), slog.Int("status", restErr.Response.StatusCode))
			return
		}
		logger.Warn("delete placeholder failed", slog.String("placeholder_id", placeholder), slog.Any("error", err))
	}
}

func truncateDiscordText(text string) string {
	if len(text) <= discordMaxLength {
		return text
	}
	limit := discordMaxLength - 3
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + "..."
}
