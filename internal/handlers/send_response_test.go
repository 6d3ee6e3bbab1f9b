package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/channel"
)

type fakeDispatcher struct {
	calls []channel.Response
}

func (f *fakeDispatcher) Dispatch(_ context.Context, resp channel.Response) channel.Report {
	f.calls = append(f.calls, resp)
	var report channel.Report
	for _, to := range resp.Recipients {
		for i := range resp.Messages {
			report.Outcomes = append(report.Outcomes, channel.Outcome{Channel: to.Channel, ChatID: to.ChatID, Index: i, Status: channel.StatusDelivered, Step: "send_markdown"})
		}
	}
	return report
}

func newSendResponseEcho(dispatcher ResponseDispatcher, cfg auth.ServiceConfig) *echo.Echo {
	e := echo.New()
	NewSendResponseHandler(newTestLogger(), dispatcher, cfg).Register(e)
	return e
}

func postResponse(e *echo.Echo, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/send-response", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const responseBody = `{
	"id": "resp-1",
	"recipients": [{"channel": "telegram", "chat_id": 42}],
	"messages": [{"type": "text", "content": "**hi**", "placeholder_message_id": "77"}],
	"metadata": {"edit_message": true}
}`

func TestSendResponseDispatches(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	e := newSendResponseEcho(dispatcher, auth.ServiceConfig{})

	rec := postResponse(e, responseBody, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, dispatcher.calls, 1)
	resp := dispatcher.calls[0]
	assert.Equal(t, "resp-1", resp.ID)
	assert.Equal(t, channel.ChannelType("telegram"), resp.Recipients[0].Channel)
	assert.Equal(t, channel.ID("42"), resp.Recipients[0].ChatID)
	require.NotNil(t, resp.Messages[0].Text)
	assert.Equal(t, "**hi**", *resp.Messages[0].Text)
	assert.Equal(t, channel.ID("77"), resp.Messages[0].PlaceholderMessageID)
	assert.True(t, resp.EditMessage())

	var body struct {
		Status string `json:"status"`
		Report struct {
			Outcomes []map[string]any `json:"outcomes"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Report.Outcomes, 1)
	assert.Equal(t, "delivered", body.Report.Outcomes[0]["status"])
}

func TestSendResponseRejectsBadInput(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	e := newSendResponseEcho(dispatcher, auth.ServiceConfig{})

	cases := map[string]string{
		"invalid json":  `{"recipients":`,
		"no recipients": `{"recipients":[],"messages":[{"type":"text","text":"hi"}]}`,
		"no messages":   `{"recipients":[{"channel":"telegram","chatId":"1"}]}`,
		"empty body":    ``,
	}
	for name, body := range cases {
		rec := postResponse(e, body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Empty(t, dispatcher.calls)
}

func TestSendResponseRequiresCredentials(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	e := newSendResponseEcho(dispatcher, auth.ServiceConfig{APIKey: "k1"})

	rec := postResponse(e, responseBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, dispatcher.calls)

	rec = postResponse(e, responseBody, map[string]string{auth.HeaderAPIKey: "k1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, dispatcher.calls, 1)
}
