// Package agents forwards normalized events to the remote agents service.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/metrics"
)

// ErrForwardFailed is wrapped by every error returned from Forward.
var ErrForwardFailed = errors.New("failed to forward event")

// StatusError is returned when the agents service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agents service returned %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrForwardFailed
}

// Config configures the forwarder.
type Config struct {
	EventsURL string
	APIKey    string
	Timeout   time.Duration
}

// Forwarder posts events to the agents service.
type Forwarder struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewForwarder creates a Forwarder.
func NewForwarder(log *slog.Logger, cfg Config) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		url:        strings.TrimSpace(cfg.EventsURL),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "agents_forwarder")),
	}
}

// Forward sends event as JSON. Only 2xx answers count as success.
func (f *Forwarder) Forward(ctx context.Context, event *channel.Event) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.ForwardDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrForwardFailed)
	}
	if f.url == "" {
		return fmt.Errorf("%w: events url is not configured", ErrForwardFailed)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encode event: %w", ErrForwardFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("forward request failed", slog.String("event_id", event.ID), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Error("agents service error",
			slog.String("event_id", event.ID),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	f.logger.Info("event forwarded",
		slog.String("event_id", event.ID),
		slog.String("agent_id", event.AgentID),
		slog.Int("status", resp.StatusCode))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
