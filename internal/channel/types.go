// Package channel provides the canonical message model shared by every chat platform adapter.
// It defines the inbound Event, the outbound Response, the sender registry and the delivery dispatcher.
package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "discord").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// ID is a platform identifier. Platforms disagree on whether ids are numbers or strings,
// so ID accepts both on input and emits numeric ids as JSON numbers.
type ID string

// IDFromInt64 converts a numeric platform id.
func IDFromInt64(v int64) ID {
	if v == 0 {
		return ""
	}
	return ID(strconv.FormatInt(v, 10))
}

// IDFromInt converts a numeric platform id.
func IDFromInt(v int) ID {
	return IDFromInt64(int64(v))
}

// String returns the id as a plain string.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// Int64 parses the id as a signed integer.
func (id ID) Int64() (int64, error) {
	raw := strings.TrimSpace(string(id))
	if raw == "" {
		return 0, fmt.Errorf("id is empty")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// MarshalJSON emits integer ids as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	raw := strings.TrimSpace(string(id))
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return []byte(raw), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Metadata keys shared between the bridge and the agent service.
const (
	MetadataPlaceholderMessageID = "placeholderMessageId"
	MetadataEditMessage          = "edit_message"
	MetadataImageURL             = "imageUrl"
	MetadataImageSize            = "imageSize"
	MetadataAudioURL             = "audioUrl"
	MetadataAudioSize            = "audioSize"
)

// UnknownAgentID is used when no whitelist entry matches the sender.
const UnknownAgentID = "unknown"

// Identity describes who produced an inbound message.
type Identity struct {
	Source    string `json:"source"`
	IsBot     bool   `json:"isBot"`
	MessageID ID     `json:"messageId,omitempty"`
	ChatID    ID     `json:"chatId,omitempty"`
	UserID    ID     `json:"userId,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Recipient is a delivery target. On inbound events it is the single reply target.
type Recipient struct {
	Channel   ChannelType `json:"channel"`
	ChatID    ID          `json:"chatId,omitempty"`
	UserID    ID          `json:"userId,omitempty"`
	MessageID ID          `json:"messageId,omitempty"`
}

// UnmarshalJSON accepts both camelCase and snake_case keys.
func (r *Recipient) UnmarshalJSON(data []byte) error {
	var raw struct {
		Channel        ChannelType `json:"channel"`
		ChatID         ID          `json:"chatId"`
		ChatIDSnake    ID          `json:"chat_id"`
		UserID         ID          `json:"userId"`
		UserIDSnake    ID          `json:"user_id"`
		MessageID      ID          `json:"messageId"`
		MessageIDSnake ID          `json:"message_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Recipient{
		Channel:   normalizeChannelType(raw.Channel.String()),
		ChatID:    firstID(raw.ChatID, raw.ChatIDSnake),
		UserID:    firstID(raw.UserID, raw.UserIDSnake),
		MessageID: firstID(raw.MessageID, raw.MessageIDSnake),
	}
	return nil
}

// Event is the canonical form of one inbound user message.
type Event struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agentId"`
	Timestamp  string         `json:"timestamp"`
	Messages   Messages       `json:"messages"`
	Sender     Identity       `json:"sender"`
	Recipients []Recipient    `json:"recipients"`
	Metadata   map[string]any `json:"metadata"`
}

// SetMetadata stores a metadata value, allocating the map on first use.
func (e *Event) SetMetadata(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	e.Metadata[key] = value
}

func firstID(values ...ID) ID {
	for _, v := range values {
		if !v.IsZero() {
			return v
		}
	}
	return ""
}
