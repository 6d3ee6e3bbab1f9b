package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/media"
)

const (
	sourceTelegram          = "telegram"
	unsupportedActionNotice = "❌ Action not supported. Please send text, an image, a supported audio file or location."
	isoMillisLayout         = "2006-01-02T15:04:05.000Z"
)

// AgentResolver maps platform ids to an agent id. The first matching id wins.
type AgentResolver interface {
	AgentFor(ids ...string) (string, bool)
}

// Notifier sends notices back to a chat.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string, opts TextOptions) (int, error)
}

// Normalizer converts Telegram messages into canonical Events.
type Normalizer struct {
	classifier *Classifier
	notifier   Notifier
	agents     AgentResolver
	logger     *slog.Logger
	onReject   func(Rejection)

	now   func() time.Time
	newID func() string
}

// NewNormalizer creates a Normalizer. agents may be nil, in which case every event
// resolves to channel.UnknownAgentID.
func NewNormalizer(log *slog.Logger, classifier *Classifier, notifier Notifier, agents AgentResolver) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		classifier: classifier,
		notifier:   notifier,
		agents:     agents,
		logger:     log.With(slog.String("adapter", "telegram"), slog.String("component", "normalizer")),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetRejectionObserver registers a callback invoked for every content-policy rejection.
func (n *Normalizer) SetRejectionObserver(fn func(Rejection)) {
	n.onReject = fn
}

// Normalize converts msg into an Event. A nil Event with a nil error means the user
// already received a notice (rejected or unsupported content) and nothing else should happen.
func (n *Normalizer) Normalize(ctx context.Context, msg *tgbotapi.Message) (*channel.Event, error) {
	if msg == nil || msg.Chat == nil {
		return nil, fmt.Errorf("%w: message or chat is missing", ErrMalformedUpdate)
	}
	chatID := msg.Chat.ID

	var (
		units   []Unit
		trailer []channel.Message
	)
	switch {
	case msg.Text != "":
		units = append(units, Unit{Kind: UnitText, Text: msg.Text})
	case len(msg.Photo) > 0:
		photo := pickTelegramPhoto(msg.Photo)
		units = append(units, Unit{Kind: UnitPhoto, FileID: photo.FileID})
		trailer = captionMessages(msg.Caption)
	case msg.Audio != nil:
		units = append(units, Unit{Kind: UnitAudio, FileID: msg.Audio.FileID, MimeType: msg.Audio.MimeType})
	case msg.Voice != nil:
		units = append(units, Unit{Kind: UnitVoice, FileID: msg.Voice.FileID, MimeType: msg.Voice.MimeType})
	case msg.Location != nil:
		trailer = []channel.Message{channel.TextMessage{Text: locationText(msg.Location)}}
	case msg.Document != nil:
		units = append(units, Unit{Kind: UnitDocument, FileID: msg.Document.FileID, MimeType: msg.Document.MimeType})
		trailer = captionMessages(msg.Caption)
	default:
		n.notify(ctx, chatID, unsupportedActionNotice)
		return nil, nil
	}

	event := &channel.Event{
		ID:         n.eventID(msg),
		AgentID:    n.resolveAgent(msg),
		Timestamp:  n.timestamp(msg),
		Sender:     buildSender(msg),
		Recipients: []channel.Recipient{buildRecipient(msg)},
		Metadata:   map[string]any{},
	}
	for _, unit := range units {
		result, err := n.classifier.Classify(ctx, unit)
		if err != nil {
			n.logger.Error("classify failed",
				slog.Int64("chat_id", chatID),
				slog.String("unit", unit.Kind.String()),
				slog.Any("error", err))
			return nil, err
		}
		if result.Rejected != nil {
			n.reject(ctx, chatID, *result.Rejected)
			return nil, nil
		}
		event.Messages = append(event.Messages, result.Message)
		addMediaMetadata(event, result)
	}
	event.Messages = append(event.Messages, trailer...)
	if len(event.Messages) == 0 {
		return nil, fmt.Errorf("%w: no content", ErrMalformedUpdate)
	}
	return event, nil
}

func (n *Normalizer) reject(ctx context.Context, chatID int64, rejection Rejection) {
	n.logger.Info("content rejected",
		slog.Int64("chat_id", chatID),
		slog.String("reason", string(rejection.Reason)),
		slog.String("unit", rejection.Kind.String()),
		slog.Int64("size", rejection.Size),
		slog.Int64("limit", rejection.Limit),
		slog.String("mime", rejection.MIME))
	if n.onReject != nil {
		n.onReject(rejection)
	}
	n.notify(ctx, chatID, rejection.Notice)
}

func (n *Normalizer) notify(ctx context.Context, chatID int64, text string) {
	if n.notifier == nil {
		return
	}
	if _, err := n.notifier.SendText(ctx, chatID, text, TextOptions{}); err != nil {
		n.logger.Warn("send notice failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func (n *Normalizer) resolveAgent(msg *tgbotapi.Message) string {
	if n.agents == nil {
		return channel.UnknownAgentID
	}
	ids := make([]string, 0, 2)
	if msg.From != nil && msg.From.ID != 0 {
		ids = append(ids, strconv.FormatInt(msg.From.ID, 10))
	}
	if msg.Chat != nil && msg.Chat.ID != 0 {
		ids = append(ids, strconv.FormatInt(msg.Chat.ID, 10))
	}
	if agentID, ok := n.agents.AgentFor(ids...); ok {
		return agentID
	}
	return channel.UnknownAgentID
}

func (n *Normalizer) eventID(msg *tgbotapi.Message) string {
	if msg.MessageID != 0 {
		return strconv.Itoa(msg.MessageID)
	}
	return n.newID()
}

func (n *Normalizer) timestamp(msg *tgbotapi.Message) string {
	ts := n.now()
	if msg.Date > 0 {
		ts = time.Unix(int64(msg.Date), 0)
	}
	return ts.UTC().Format(isoMillisLayout)
}

func buildSender(msg *tgbotapi.Message) channel.Identity {
	sender := channel.Identity{
		Source:    sourceTelegram,
		MessageID: channel.IDFromInt(msg.MessageID),
		ChatID:    channel.IDFromInt64(msg.Chat.ID),
	}
	if msg.From != nil {
		sender.IsBot = msg.From.IsBot
		sender.UserID = channel.IDFromInt64(msg.From.ID)
		sender.FirstName = msg.From.FirstName
		sender.LastName = msg.From.LastName
		sender.Username = msg.From.UserName
	}
	return sender
}

func buildRecipient(msg *tgbotapi.Message) channel.Recipient {
	to := channel.Recipient{Channel: Type, ChatID: channel.IDFromInt64(msg.Chat.ID)}
	if msg.From != nil {
		to.UserID = channel.IDFromInt64(msg.From.ID)
	}
	return to
}

func addMediaMetadata(event *channel.Event, result Classified) {
	switch result.MediaType {
	case media.MediaTypeImage:
		event.SetMetadata(channel.MetadataImageURL, result.File.URL)
		event.SetMetadata(channel.MetadataImageSize, result.File.Size)
	case media.MediaTypeAudio:
		event.SetMetadata(channel.MetadataAudioURL, result.File.URL)
		event.SetMetadata(channel.MetadataAudioSize, result.File.Size)
	}
}

func captionMessages(caption string) []channel.Message {
	if strings.TrimSpace(caption) == "" {
		return nil
	}
	return []channel.Message{channel.TextMessage{Text: caption}}
}

func locationText(loc *tgbotapi.Location) string {
	return fmt.Sprintf("I am currently at:\nLatitude: %s\nLongitude: %s\nFormat: WGS84 decimal degrees",
		strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
