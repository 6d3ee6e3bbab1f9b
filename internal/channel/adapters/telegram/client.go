package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/singleflight"

	"github.com/memohai/relay/internal/media"
)

const (
	telegramMaxMessageLength = 4096
	// maxRetryAfter bounds how long a single call waits on a 429 before giving up.
	maxRetryAfter = 10 * time.Second
)

// TextOptions controls how a text message is rendered.
type TextOptions struct {
	ParseMode string
	Silent    bool
}

// Voice is an audio upload rendered as a voice note.
type Voice struct {
	FileName string
	Data     []byte
	Silent   bool
	Protect  bool
}

// Client is the subset of the Bot API the bridge depends on. Implementations
// report markup rejections wrapped in channel.ErrMarkupRejected.
type Client interface {
	SendText(ctx context.Context, chatID int64, text string, opts TextOptions) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, parseMode string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	SendVoice(ctx context.Context, chatID int64, voice Voice) (int, error)
	GetFile(ctx context.Context, fileID string) (media.RemoteFile, error)
	Download(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// ClientConfig configures the Bot API connection.
type ClientConfig struct {
	Token string
	// APIEndpoint is a format string with two %s verbs (token, method); empty uses the public API.
	APIEndpoint string
	Timeout     time.Duration
}

// BotClient implements Client over go-telegram-bot-api. The underlying handle is
// created lazily on first use, at most once at a time, and kept for the process lifetime.
type BotClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	bot   *tgbotapi.BotAPI
}

var newBotAPIForTest func(cfg ClientConfig, client *http.Client) (*tgbotapi.BotAPI, error)

// NewBotClient creates a BotClient. No network call is made until the first request.
func NewBotClient(log *slog.Logger, cfg ClientConfig) *BotClient {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &BotClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("adapter", "telegram"), slog.String("component", "bot_client")),
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: c.logger})
	return c
}

func (c *BotClient) api() (*tgbotapi.BotAPI, error) {
	c.mu.RLock()
	bot := c.bot
	c.mu.RUnlock()
	if bot != nil {
		return bot, nil
	}
	v, err, _ := c.group.Do("bot", func() (any, error) {
		c.mu.RLock()
		existing := c.bot
		c.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		created, err := c.newBotAPI()
		if err != nil {
			c.logger.Error("create bot failed", slog.Any("error", err))
			return nil, err
		}
		c.mu.Lock()
		c.bot = created
		c.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tgbotapi.BotAPI), nil
}

func (c *BotClient) newBotAPI() (*tgbotapi.BotAPI, error) {
	if newBotAPIForTest != nil {
		return newBotAPIForTest(c.cfg, c.httpClient)
	}
	if strings.TrimSpace(c.cfg.Token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	endpoint := strings.TrimSpace(c.cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return tgbotapi.NewBotAPIWithClient(c.cfg.Token, endpoint, c.httpClient)
}

// SendText sends a text message and returns its message id.
func (c *BotClient) SendText(ctx context.Context, chatID int64, text string, opts TextOptions) (int, error) {
	bot, err := c.api()
	if err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, truncateTelegramText(sanitizeTelegramText(text)))
	msg.ParseMode = opts.ParseMode
	msg.DisableNotification = opts.Silent
	var sent tgbotapi.Message
	err = c.withRetryAfter(ctx, "sendMessage", func() error {
		var sendErr error
		sent, sendErr = bot.Send(msg)
		return sendErr
	})
	if err != nil {
		return 0, classifyTelegramError(err)
	}
	return sent.MessageID, nil
}

// EditText replaces the text of an existing message. An unchanged text is not an error.
func (c *BotClient) EditText(ctx context.Context, chatID int64, messageID int, text string, parseMode string) error {
	bot, err := c.api()
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, truncateTelegramText(sanitizeTelegramText(text)))
	edit.ParseMode = parseMode
	err = c.withRetryAfter(ctx, "editMessageText", func() error {
		_, sendErr := bot.Send(edit)
		return sendErr
	})
	if err != nil && isTelegramMessageNotModified(err) {
		return nil
	}
	return classifyTelegramError(err)
}

// Delete removes a message.
func (c *BotClient) Delete(ctx context.Context, chatID int64, messageID int) error {
	bot, err := c.api()
	if err != nil {
		return err
	}
	return c.withRetryAfter(ctx, "deleteMessage", func() error {
		_, reqErr := bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return reqErr
	})
}

// SendVoice uploads a voice note. VoiceConfig has no protect_content field,
// so the request is built from raw params.
func (c *BotClient) SendVoice(ctx context.Context, chatID int64, voice Voice) (int, error) {
	bot, err := c.api()
	if err != nil {
		return 0, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddBool("disable_notification", voice.Silent)
	params.AddBool("protect_content", voice.Protect)
	files := []tgbotapi.RequestFile{{
		Name: "voice",
		Data: tgbotapi.FileBytes{Name: voice.FileName, Bytes: voice.Data},
	}}
	var resp *tgbotapi.APIResponse
	err = c.withRetryAfter(ctx, "sendVoice", func() error {
		var upErr error
		resp, upErr = bot.UploadFiles("sendVoice", params, files)
		return upErr
	})
	if err != nil {
		return 0, classifyTelegramError(err)
	}
	var sent tgbotapi.Message
	if resp != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &sent); err != nil {
			return 0, fmt.Errorf("decode sendVoice result: %w", err)
		}
	}
	return sent.MessageID, nil
}

// GetFile resolves a file id into its download URL and reported size.
func (c *BotClient) GetFile(ctx context.Context, fileID string) (media.RemoteFile, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return media.RemoteFile{}, fmt.Errorf("file id is required")
	}
	bot, err := c.api()
	if err != nil {
		return media.RemoteFile{}, err
	}
	var file tgbotapi.File
	err = c.withRetryAfter(ctx, "getFile", func() error {
		var getErr error
		file, getErr = bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
		return getErr
	})
	if err != nil {
		return media.RemoteFile{}, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return media.RemoteFile{
		ID:   file.FileID,
		URL:  file.Link(bot.Token),
		Path: file.FilePath,
		Size: int64(file.FileSize),
	}, nil
}

// Download fetches a file body, rejecting payloads above maxBytes.
func (c *BotClient) Download(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download telegram file: status %d", resp.StatusCode)
	}
	return media.ReadAllWithLimit(resp.Body, maxBytes)
}

// withRetryAfter runs call once more when the API answers 429 with a short retry_after.
func (c *BotClient) withRetryAfter(ctx context.Context, method string, call func() error) error {
	err := call()
	if err == nil || !isTelegramTooManyRequests(err) {
		return err
	}
	wait := getTelegramRetryAfter(err)
	if wait <= 0 || wait > maxRetryAfter {
		return err
	}
	c.logger.Warn("rate limited, retrying", slog.String("method", method), slog.Duration("retry_after", wait))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-timer.C:
	}
	return call()
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to telegramMaxMessageLength on a valid
// UTF-8 rune boundary, appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	if len(text) <= telegramMaxMessageLength {
		return text
	}
	const suffix = "..."
	limit := telegramMaxMessageLength - len(suffix)
	// Walk backwards to a rune boundary.
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

// fitTelegramMarkdown shortens the source text until its MarkdownV2 rendering fits in
// one message, so the cut never lands inside an escape sequence or leaves an unescaped
// suffix. It returns the shortened source and its rendering.
func fitTelegramMarkdown(text string) (string, string) {
	text = sanitizeTelegramText(text)
	formatted := FormatMarkdownV2(text)
	if len(formatted) <= telegramMaxMessageLength {
		return text, formatted
	}
	const suffix = "..."
	limit := min(len(text), telegramMaxMessageLength) - len(suffix)
	for limit > 0 {
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		cut := text[:limit] + suffix
		formatted = FormatMarkdownV2(cut)
		over := len(formatted) - telegramMaxMessageLength
		if over <= 0 {
			return cut, formatted
		}
		limit -= over
	}
	return suffix, FormatMarkdownV2(suffix)
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
