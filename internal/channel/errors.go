package channel

import "errors"

var (
	// ErrMarkupRejected marks a platform failure caused by the message markup.
	// Senders wrap platform errors with it so fallback steps can react without knowing the SDK.
	ErrMarkupRejected = errors.New("markup rejected by platform")
	// ErrTextMissing is returned for a text reply without text.
	ErrTextMissing = errors.New("text content is missing")
	// ErrAudioMissing is returned for an audio reply without data or format.
	ErrAudioMissing = errors.New("audio payload is missing")
	// ErrUnsupportedMessage is returned for message types a sender cannot render.
	ErrUnsupportedMessage = errors.New("unsupported message type")
	// ErrUnknownChannel is reported for recipients whose channel has no registered sender.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrRecipientMissing is reported when a recipient lacks the id its channel needs.
	ErrRecipientMissing = errors.New("recipient chat id is missing")
)
