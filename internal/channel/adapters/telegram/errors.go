package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
)

// ErrMalformedUpdate is returned for webhook updates missing required fields.
var ErrMalformedUpdate = errors.New("malformed telegram update")

// telegramAPIError extracts the Bot API error, which the SDK returns by pointer
// from MakeRequest but which callers may also wrap by value.
func telegramAPIError(err error) (tgbotapi.Error, bool) {
	if err == nil {
		return tgbotapi.Error{}, false
	}
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return tgbotapi.Error{}, false
}

func isTelegramParseError(err error) bool {
	apiErr, ok := telegramAPIError(err)
	if !ok {
		return false
	}
	return apiErr.Code == 400 && strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}

func isTelegramMessageNotModified(err error) bool {
	apiErr, ok := telegramAPIError(err)
	if !ok {
		return false
	}
	return apiErr.Code == 400 && strings.Contains(apiErr.Message, "message is not modified")
}

func isTelegramTooManyRequests(err error) bool {
	apiErr, ok := telegramAPIError(err)
	return ok && apiErr.Code == 429
}

func getTelegramRetryAfter(err error) time.Duration {
	apiErr, ok := telegramAPIError(err)
	if ok && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// classifyTelegramError tags markup rejections so fallback steps can match them
// with channel.OnMarkupRejected.
func classifyTelegramError(err error) error {
	if err == nil {
		return nil
	}
	if isTelegramParseError(err) {
		return fmt.Errorf("%w: %w", channel.ErrMarkupRejected, err)
	}
	return err
}
