package channel

import (
	"encoding/json"
	"fmt"
)

// MessageType tags a canonical inbound message.
type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeImageURL   MessageType = "image_url"
	MessageTypeInputAudio MessageType = "input_audio"
)

// Message is one canonical inbound message: TextMessage, ImageMessage or AudioMessage.
type Message interface {
	Type() MessageType
	isMessage()
}

// TextMessage carries plain text.
type TextMessage struct {
	Text string
}

// ImageMessage references an image by URL; the bytes are never downloaded.
type ImageMessage struct {
	URL    string
	Format string
}

// AudioMessage embeds base64 audio.
type AudioMessage struct {
	Data   string
	Format string
}

func (TextMessage) Type() MessageType  { return MessageTypeText }
func (ImageMessage) Type() MessageType { return MessageTypeImageURL }
func (AudioMessage) Type() MessageType { return MessageTypeInputAudio }

func (TextMessage) isMessage()  {}
func (ImageMessage) isMessage() {}
func (AudioMessage) isMessage() {}

type imagePayload struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type audioPayload struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type wireMessage struct {
	Type       MessageType   `json:"type"`
	Text       *string       `json:"text,omitempty"`
	ImageURL   *imagePayload `json:"imageUrl,omitempty"`
	InputAudio *audioPayload `json:"inputAudio,omitempty"`
}

func (m TextMessage) MarshalJSON() ([]byte, error) {
	text := m.Text
	return json.Marshal(wireMessage{Type: MessageTypeText, Text: &text})
}

func (m ImageMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{Type: MessageTypeImageURL, ImageURL: &imagePayload{URL: m.URL, Format: m.Format}})
}

func (m AudioMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{Type: MessageTypeInputAudio, InputAudio: &audioPayload{Data: m.Data, Format: m.Format}})
}

// DecodeMessage parses one wire message into its variant.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	switch wire.Type {
	case MessageTypeText:
		if wire.Text == nil {
			return nil, fmt.Errorf("text message without text")
		}
		return TextMessage{Text: *wire.Text}, nil
	case MessageTypeImageURL:
		if wire.ImageURL == nil {
			return nil, fmt.Errorf("image_url message without imageUrl")
		}
		return ImageMessage{URL: wire.ImageURL.URL, Format: wire.ImageURL.Format}, nil
	case MessageTypeInputAudio:
		if wire.InputAudio == nil {
			return nil, fmt.Errorf("input_audio message without inputAudio")
		}
		return AudioMessage{Data: wire.InputAudio.Data, Format: wire.InputAudio.Format}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMessage, wire.Type)
	}
}

// Messages is an ordered list of canonical messages.
type Messages []Message

// UnmarshalJSON decodes each element into its variant.
func (m *Messages) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Messages, 0, len(raw))
	for i, item := range raw {
		msg, err := DecodeMessage(item)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, msg)
	}
	*m = out
	return nil
}
