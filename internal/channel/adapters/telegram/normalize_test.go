package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/media"
)

type staticAgents map[string]string

func (s staticAgents) AgentFor(ids ...string) (string, bool) {
	for _, id := range ids {
		if agent, ok := s[id]; ok {
			return agent, true
		}
	}
	return "", false
}

func newTestNormalizer(client *fakeClient, agents AgentResolver) *Normalizer {
	n := NewNormalizer(nil, newTestClassifier(client), client, agents)
	n.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	n.newID = func() string { return "generated-id" }
	return n
}

func baseMessage() *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 5,
		Date:      1700000000,
		From:      &tgbotapi.User{ID: 11, FirstName: "Ada", LastName: "L", UserName: "ada"},
		Chat:      &tgbotapi.Chat{ID: 42},
	}
}

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	msg := baseMessage()
	msg.Text = "hello"
	event, err := newTestNormalizer(newFakeClient(), staticAgents{"11": "agent-7"}).Normalize(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "5" || event.AgentID != "agent-7" || event.Timestamp != "2023-11-14T22:13:20.000Z" {
		t.Fatalf("unexpected event header: %+v", event)
	}
	if len(event.Messages) != 1 {
		t.Fatalf("unexpected messages: %#v", event.Messages)
	}
	if text, ok := event.Messages[0].(channel.TextMessage); !ok || text.Text != "hello" {
		t.Fatalf("unexpected message: %#v", event.Messages[0])
	}
	if event.Sender.Source != "telegram" || event.Sender.UserID != "11" || event.Sender.ChatID != "42" || event.Sender.Username != "ada" {
		t.Fatalf("unexpected sender: %+v", event.Sender)
	}
	if len(event.Recipients) != 1 || event.Recipients[0].Channel != Type || event.Recipients[0].ChatID != "42" {
		t.Fatalf("unexpected recipients: %+v", event.Recipients)
	}
}

func TestNormalizeTextWinsOverPhoto(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	msg := baseMessage()
	msg.Text = "look"
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "p1", FileSize: 10}}
	event, err := newTestNormalizer(client, nil).Normalize(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(event.Messages) != 1 || event.Messages[0].Type() != channel.MessageTypeText {
		t.Fatalf("text must take precedence: %#v", event.Messages)
	}
	if len(client.methods()) != 0 {
		t.Fatalf("photo must not be resolved: %v", client.methods())
	}
	if event.AgentID != channel.UnknownAgentID {
		t.Fatalf("unexpected agent: %s", event.AgentID)
	}
}

func TestNormalizePhotoWithCaption(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.files["big"] = media.RemoteFile{ID: "big", URL: "https://files/big.jpg", Path: "photos/big.jpg", Size: 2048}
	msg := baseMessage()
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90, Height: 90, FileSize: 100},
		{FileID: "big", Width: 800, Height: 800, FileSize: 2048},
	}
	msg.Caption = "what is this?"

	event, err := newTestNormalizer(client, nil).Normalize(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(event.Messages) != 2 {
		t.Fatalf("expected image then caption, got %#v", event.Messages)
	}
	if img, ok := event.Messages[0].(channel.ImageMessage); !ok || img.URL != "https://files/big.jpg" {
		t.Fatalf("unexpected first message: %#v", event.Messages[0])
	}
	if text, ok := event.Messages[1].(channel.TextMessage); !ok || text.Text != "what is this?" {
		t.Fatalf("unexpected second message: %#v", event.Messages[1])
	}
	if event.Metadata[channel.MetadataImageURL] != "https://files/big.jpg" || event.Metadata[channel.MetadataImageSize] != int64(2048) {
		t.Fatalf("unexpected metadata: %#v", event.Metadata)
	}
}

func TestNormalizeLocation(t *testing.T) {
	t.Parallel()

	msg := baseMessage()
	msg.Location = &tgbotapi.Location{Latitude: 48.8584, Longitude: 2.2945}
	event, err := newTestNormalizer(newFakeClient(), nil).Normalize(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "I am currently at:\nLatitude: 48.8584\nLongitude: 2.2945\nFormat: WGS84 decimal degrees"
	if text, ok := event.Messages[0].(channel.TextMessage); !ok || text.Text != want {
		t.Fatalf("unexpected message: %#v", event.Messages[0])
	}
}

func TestNormalizeUnsupportedActionNotifies(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	msg := baseMessage()
	msg.Sticker = &tgbotapi.Sticker{FileID: "s"}
	event, err := newTestNormalizer(client, nil).Normalize(context.Background(), msg)
	if err != nil || event != nil {
		t.Fatalf("expected no event and no error, got %+v %v", event, err)
	}
	sends := client.callsOf("send")
	if len(sends) != 1 || sends[0].text != unsupportedActionNotice || sends[0].chatID != 42 {
		t.Fatalf("unexpected notices: %+v", sends)
	}
}

func TestNormalizeRejectionNotifiesAndObserves(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	msg := baseMessage()
	msg.Document = &tgbotapi.Document{FileID: "doc", MimeType: "application/zip"}

	normalizer := newTestNormalizer(client, nil)
	var observed []Rejection
	normalizer.SetRejectionObserver(func(r Rejection) { observed = append(observed, r) })

	event, err := normalizer.Normalize(context.Background(), msg)
	if err != nil || event != nil {
		t.Fatalf("expected no event and no error, got %+v %v", event, err)
	}
	if len(observed) != 1 || observed[0].Reason != RejectUnsupported {
		t.Fatalf("unexpected observed rejections: %+v", observed)
	}
	sends := client.callsOf("send")
	if len(sends) != 1 || sends[0].text != observed[0].Notice {
		t.Fatalf("rejection notice must be sent: %+v", sends)
	}
}

func TestNormalizeTransportFailure(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.fileErr = errTransport
	msg := baseMessage()
	msg.Voice = &tgbotapi.Voice{FileID: "v"}
	event, err := newTestNormalizer(client, nil).Normalize(context.Background(), msg)
	if !errors.Is(err, errTransport) || event != nil {
		t.Fatalf("expected transport error, got %+v %v", event, err)
	}
	if len(client.callsOf("send")) != 0 {
		t.Fatal("transport failures must not notify the user")
	}
}

func TestNormalizeMalformed(t *testing.T) {
	t.Parallel()

	normalizer := newTestNormalizer(newFakeClient(), nil)
	if _, err := normalizer.Normalize(context.Background(), nil); !errors.Is(err, ErrMalformedUpdate) {
		t.Fatalf("expected malformed update, got %v", err)
	}
	if _, err := normalizer.Normalize(context.Background(), &tgbotapi.Message{Text: "x"}); !errors.Is(err, ErrMalformedUpdate) {
		t.Fatalf("expected malformed update, got %v", err)
	}
}

func TestNormalizeGeneratedIDAndClock(t *testing.T) {
	t.Parallel()

	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}, Text: "x"}
	event, err := newTestNormalizer(newFakeClient(), staticAgents{"3": "group-agent"}).Normalize(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "generated-id" || event.Timestamp != "2024-03-01T12:00:00.000Z" || event.AgentID != "group-agent" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
