package channel

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the canonical form of one outbound reply from the agent service.
type Response struct {
	ID         string            `json:"id,omitempty"`
	Recipients []Recipient       `json:"recipients" validate:"required,min=1"`
	Messages   []OutgoingMessage `json:"messages" validate:"required,min=1"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// EditMessage reports whether placeholders should be edited in place instead of replaced.
func (r Response) EditMessage() bool {
	v, ok := r.Metadata[MetadataEditMessage].(bool)
	return ok && v
}

// OutgoingType tags an outgoing message.
type OutgoingType string

const (
	OutgoingText  OutgoingType = "text"
	OutgoingAudio OutgoingType = "audio"
)

// AudioPayload is base64 audio with its container format.
type AudioPayload struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// OutgoingMessage is one message of a Response as it arrives on the wire.
// Use Content to obtain the typed reply.
type OutgoingMessage struct {
	Type                 OutgoingType   `json:"type"`
	Text                 *string        `json:"text,omitempty"`
	Audio                *AudioPayload  `json:"audio,omitempty"`
	PlaceholderMessageID ID             `json:"placeholderMessageId,omitempty"`
	Options              map[string]any `json:"options,omitempty"`
}

// UnmarshalJSON accepts the snake_case placeholder key and "content" as a text alias.
func (m *OutgoingMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type                 OutgoingType   `json:"type"`
		Text                 *string        `json:"text"`
		Content              *string        `json:"content"`
		Audio                *AudioPayload  `json:"audio"`
		PlaceholderMessageID ID             `json:"placeholderMessageId"`
		PlaceholderSnake     ID             `json:"placeholder_message_id"`
		Options              map[string]any `json:"options"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	text := raw.Text
	if text == nil {
		text = raw.Content
	}
	*m = OutgoingMessage{
		Type:                 OutgoingType(strings.ToLower(strings.TrimSpace(string(raw.Type)))),
		Text:                 text,
		Audio:                raw.Audio,
		PlaceholderMessageID: firstID(raw.PlaceholderMessageID, raw.PlaceholderSnake),
		Options:              raw.Options,
	}
	return nil
}

// Reply is the typed content of an outgoing message: TextReply or AudioReply.
type Reply interface {
	Kind() OutgoingType
}

// TextReply is generic bold/italic markup text, rendered per platform.
type TextReply struct {
	Text string
}

// AudioReply is decoded audio ready for upload.
type AudioReply struct {
	Data   []byte
	Format string
}

func (TextReply) Kind() OutgoingType  { return OutgoingText }
func (AudioReply) Kind() OutgoingType { return OutgoingAudio }

// Content validates the message and returns its typed reply.
func (m OutgoingMessage) Content() (Reply, error) {
	switch m.Type {
	case OutgoingText:
		if m.Text == nil || strings.TrimSpace(*m.Text) == "" {
			return nil, ErrTextMissing
		}
		return TextReply{Text: *m.Text}, nil
	case OutgoingAudio:
		if m.Audio == nil || strings.TrimSpace(m.Audio.Data) == "" || strings.TrimSpace(m.Audio.Format) == "" {
			return nil, ErrAudioMissing
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m.Audio.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode base64: %w", ErrAudioMissing, err)
		}
		return AudioReply{Data: data, Format: strings.TrimPrefix(strings.TrimSpace(m.Audio.Format), ".")}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMessage, m.Type)
	}
}
