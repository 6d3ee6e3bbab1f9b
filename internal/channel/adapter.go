package channel

import "context"

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type         ChannelType
	DisplayName  string
	Capabilities ChannelCapabilities
}

// ChannelCapabilities lists what a channel can render.
type ChannelCapabilities struct {
	Text     bool
	Markdown bool
	Audio    bool
	Edit     bool
	Unsend   bool
}

// Sender is an adapter capable of delivering a Response to one recipient.
// Messages are processed in order; a failure never stops later messages.
// Deliver returns one Outcome per message and must not panic on malformed input.
type Sender interface {
	Deliver(ctx context.Context, resp Response, to Recipient) []Outcome
}
