package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
)

func textMessage(text string, placeholder channel.ID) channel.OutgoingMessage {
	return channel.OutgoingMessage{Type: channel.OutgoingText, Text: &text, PlaceholderMessageID: placeholder}
}

func response(edit bool, msgs ...channel.OutgoingMessage) channel.Response {
	resp := channel.Response{
		ID:         "resp-1",
		Recipients: []channel.Recipient{{Channel: Type, ChatID: "42"}},
		Messages:   msgs,
	}
	if edit {
		resp.Metadata = map[string]any{channel.MetadataEditMessage: true}
	}
	return resp
}

func deliver(t *testing.T, client *fakeClient, resp channel.Response) []channel.Outcome {
	t.Helper()
	adapter := NewTelegramAdapter(nil, client)
	return adapter.Deliver(context.Background(), resp, resp.Recipients[0])
}

func TestTelegramDescriptor(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil, newFakeClient())
	if adapter.Type() != Type {
		t.Fatalf("unexpected type: %s", adapter.Type())
	}
	caps := adapter.Descriptor().Capabilities
	if !caps.Markdown || !caps.Edit || !caps.Audio {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
}

func TestSendPathFallsBackToPlainTextOnce(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.sendErrs = []error{errParse}
	outcomes := deliver(t, client, response(false, textMessage("**hi** 1.5", "")))

	sends := client.callsOf("send")
	if len(sends) != 2 {
		t.Fatalf("expected exactly two send attempts, got %d", len(sends))
	}
	if sends[0].parseMode != tgbotapi.ModeMarkdownV2 || sends[0].text != `*hi* 1\.5` {
		t.Fatalf("unexpected first attempt: %+v", sends[0])
	}
	if sends[1].parseMode != "" || sends[1].text != "**hi** 1.5" {
		t.Fatalf("plain retry must send the source text without parse mode: %+v", sends[1])
	}
	if len(outcomes) != 1 || !outcomes[0].Delivered() || outcomes[0].Step != stepSendPlain {
		t.Fatalf("unexpected outcome: %+v", outcomes)
	}
}

func TestSendPathDoesNotRetryPlainOnTransportError(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.sendErrs = []error{errTransport}
	outcomes := deliver(t, client, response(false, textMessage("hello", "")))

	if got := len(client.callsOf("send")); got != 1 {
		t.Fatalf("expected one send attempt, got %d", got)
	}
	if outcomes[0].Status != channel.StatusFailed || !errors.Is(outcomes[0].Err, errTransport) {
		t.Fatalf("unexpected outcome: %+v", outcomes[0])
	}
}

func TestSendPathRetiresPlaceholder(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	outcomes := deliver(t, client, response(false, textMessage("done", "7")))

	want := []string{"send", "delete"}
	if fmt.Sprint(client.methods()) != fmt.Sprint(want) {
		t.Fatalf("calls=%v want=%v", client.methods(), want)
	}
	if del := client.callsOf("delete"); del[0].messageID != 7 || del[0].chatID != 42 {
		t.Fatalf("unexpected delete: %+v", del[0])
	}
	if !outcomes[0].Delivered() {
		t.Fatalf("unexpected outcome: %+v", outcomes[0])
	}
}

func TestPlaceholderDeleteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.deleteErr = errTransport
	outcomes := deliver(t, client, response(false, textMessage("done", "7")))
	if !outcomes[0].Delivered() || outcomes[0].Err != nil {
		t.Fatalf("delete failure must not fail the delivery: %+v", outcomes[0])
	}
}

func TestEditPathEditsPlaceholderInPlace(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	outcomes := deliver(t, client, response(true, textMessage("final _answer_", "7")))

	want := []string{"edit"}
	if fmt.Sprint(client.methods()) != fmt.Sprint(want) {
		t.Fatalf("calls=%v want=%v", client.methods(), want)
	}
	edit := client.callsOf("edit")[0]
	if edit.messageID != 7 || edit.parseMode != tgbotapi.ModeMarkdownV2 || edit.text != "final _answer_" {
		t.Fatalf("unexpected edit: %+v", edit)
	}
	if outcomes[0].Step != stepEditMarkdown {
		t.Fatalf("unexpected step: %s", outcomes[0].Step)
	}
}

func TestEditPathFallbackChain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		editErrs  []error
		sendErrs  []error
		wantCalls []string
		wantStep  string
		wantState channel.Status
	}{
		{
			name:      "plain edit after markup rejection",
			editErrs:  []error{errParse},
			wantCalls: []string{"edit", "edit"},
			wantStep:  stepEditPlain,
			wantState: channel.StatusDelivered,
		},
		{
			name:      "new message when both edits fail",
			editErrs:  []error{errParse, errTransport},
			wantCalls: []string{"edit", "edit", "send", "delete"},
			wantStep:  stepSendMarkdown,
			wantState: channel.StatusDelivered,
		},
		{
			name:      "new message when edit fails without markup issue",
			editErrs:  []error{errTransport},
			wantCalls: []string{"edit", "send", "delete"},
			wantStep:  stepSendMarkdown,
			wantState: channel.StatusDelivered,
		},
		{
			name:      "plain send as last resort",
			editErrs:  []error{errParse, errParse},
			sendErrs:  []error{errParse},
			wantCalls: []string{"edit", "edit", "send", "send", "delete"},
			wantStep:  stepSendPlain,
			wantState: channel.StatusDelivered,
		},
		{
			name:      "exhausted chain keeps placeholder",
			editErrs:  []error{errParse, errTransport},
			sendErrs:  []error{errParse, errTransport},
			wantCalls: []string{"edit", "edit", "send", "send"},
			wantStep:  stepSendPlain,
			wantState: channel.StatusFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newFakeClient()
			client.editErrs = tc.editErrs
			client.sendErrs = tc.sendErrs
			outcomes := deliver(t, client, response(true, textMessage("hello.", "7")))
			if fmt.Sprint(client.methods()) != fmt.Sprint(tc.wantCalls) {
				t.Fatalf("calls=%v want=%v", client.methods(), tc.wantCalls)
			}
			if outcomes[0].Status != tc.wantState || outcomes[0].Step != tc.wantStep {
				t.Fatalf("unexpected outcome: %+v", outcomes[0])
			}
		})
	}
}

func TestEditFlagWithoutPlaceholderSends(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	deliver(t, client, response(true, textMessage("hi", "")))
	if fmt.Sprint(client.methods()) != "[send]" {
		t.Fatalf("unexpected calls: %v", client.methods())
	}
}

func TestMalformedMessagesDoNotAbortBatch(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	resp := response(false,
		channel.OutgoingMessage{Type: channel.OutgoingText},
		channel.OutgoingMessage{Type: channel.OutgoingAudio},
		channel.OutgoingMessage{Type: "sticker"},
		textMessage("still here", ""),
	)
	outcomes := deliver(t, client, resp)
	if len(outcomes) != 4 {
		t.Fatalf("expected one outcome per message, got %d", len(outcomes))
	}
	wantErrs := []error{channel.ErrTextMissing, channel.ErrAudioMissing, channel.ErrUnsupportedMessage}
	for i, want := range wantErrs {
		if outcomes[i].Status != channel.StatusSkipped || !errors.Is(outcomes[i].Err, want) {
			t.Fatalf("outcome %d: %+v, want skipped with %v", i, outcomes[i], want)
		}
	}
	if !outcomes[3].Delivered() || outcomes[3].Index != 3 {
		t.Fatalf("last message must be delivered: %+v", outcomes[3])
	}
}

func TestFailedMessageDoesNotAbortFollowingMessages(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.sendErrs = []error{errTransport}
	outcomes := deliver(t, client, response(false, textMessage("one", ""), textMessage("two", "")))
	if outcomes[0].Status != channel.StatusFailed || !outcomes[1].Delivered() {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
}

func TestAudioDeliveredAsProtectedSilentVoice(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	audio := channel.OutgoingMessage{
		Type:                 channel.OutgoingAudio,
		Audio:                &channel.AudioPayload{Data: "aGVsbG8=", Format: "ogg"},
		PlaceholderMessageID: "7",
	}
	outcomes := deliver(t, client, response(false, audio))

	voices := client.callsOf("voice")
	if len(voices) != 1 {
		t.Fatalf("expected one voice upload, got %d", len(voices))
	}
	v := voices[0].voice
	if v.FileName != "resp-1.ogg" || string(v.Data) != "hello" || !v.Silent || !v.Protect {
		t.Fatalf("unexpected voice: %+v", v)
	}
	if !outcomes[0].Delivered() || outcomes[0].Step != stepSendVoice {
		t.Fatalf("unexpected outcome: %+v", outcomes[0])
	}
	if len(client.callsOf("delete")) != 1 {
		t.Fatal("placeholder must be retired after the voice note is sent")
	}
}

func TestAudioFailureHasNoFallback(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.voiceErr = errParse
	audio := channel.OutgoingMessage{Type: channel.OutgoingAudio, Audio: &channel.AudioPayload{Data: "aGk=", Format: "mp3"}}
	outcomes := deliver(t, client, response(false, audio))
	if len(client.callsOf("voice")) != 1 || len(client.callsOf("send")) != 0 {
		t.Fatalf("unexpected calls: %v", client.methods())
	}
	if outcomes[0].Status != channel.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcomes[0])
	}
}

func TestRecipientWithoutChatIDSkipped(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	adapter := NewTelegramAdapter(nil, client)
	resp := response(false, textMessage("hi", ""))
	outcomes := adapter.Deliver(context.Background(), resp, channel.Recipient{Channel: Type})
	if len(outcomes) != 1 || outcomes[0].Status != channel.StatusSkipped || !errors.Is(outcomes[0].Err, channel.ErrRecipientMissing) {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if len(client.methods()) != 0 {
		t.Fatalf("no platform call expected, got %v", client.methods())
	}
}

func TestInvalidPlaceholderIgnored(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	deliver(t, client, response(true, textMessage("hi", "abc")))
	if fmt.Sprint(client.methods()) != "[send]" {
		t.Fatalf("unexpected calls: %v", client.methods())
	}
}

func TestLongReplyIsCutBeforeFormatting(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"words with bold tail": strings.Repeat("word ", 1000) + "**end**",
		"escaped punctuation":  strings.Repeat("a.", 3000),
		"multibyte":            strings.Repeat("é!", 2000),
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client := newFakeClient()
			outcomes := deliver(t, client, response(false, textMessage(text, "")))

			sends := client.callsOf("send")
			if len(sends) != 1 {
				t.Fatalf("markup send must succeed without a plain retry, got %d sends", len(sends))
			}
			got := sends[0].text
			if sends[0].parseMode != tgbotapi.ModeMarkdownV2 || len(got) > telegramMaxMessageLength {
				t.Fatalf("unexpected send: mode=%q len=%d", sends[0].parseMode, len(got))
			}
			body, ok := strings.CutSuffix(got, `\.\.\.`)
			if !ok {
				t.Fatalf("expected escaped ellipsis, got tail %q", got[len(got)-10:])
			}
			trailing := len(body) - len(strings.TrimRight(body, `\`))
			if trailing%2 != 0 {
				t.Fatalf("cut split an escape sequence: tail %q", body[len(body)-10:])
			}
			if len(outcomes) != 1 || !outcomes[0].Delivered() || outcomes[0].Step != stepSendMarkdown {
				t.Fatalf("unexpected outcome: %+v", outcomes)
			}
		})
	}
}

func TestFitTelegramMarkdownKeepsShortText(t *testing.T) {
	t.Parallel()

	plain, formatted := fitTelegramMarkdown("**hi** 1.5")
	if plain != "**hi** 1.5" || formatted != `*hi* 1\.5` {
		t.Fatalf("unexpected fit: %q %q", plain, formatted)
	}

	plain, formatted = fitTelegramMarkdown(strings.Repeat("x.", 4000))
	if len(plain) > telegramMaxMessageLength || !strings.HasSuffix(plain, "...") {
		t.Fatalf("plain fallback must be cut too, len=%d", len(plain))
	}
	if formatted != FormatMarkdownV2(plain) {
		t.Fatal("rendering must match the shortened source")
	}
}
