package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/media"
)

// photoFormat is the format Telegram uses for every compressed photo.
const photoFormat = "image/jpeg"

// UnitKind identifies the shape of one raw inbound unit.
type UnitKind int

const (
	UnitText UnitKind = iota + 1
	UnitPhoto
	UnitVoice
	UnitAudio
	UnitDocument
)

func (k UnitKind) String() string {
	switch k {
	case UnitText:
		return "text"
	case UnitPhoto:
		return "photo"
	case UnitVoice:
		return "voice"
	case UnitAudio:
		return "audio"
	case UnitDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Unit is one raw inbound unit extracted from an update.
type Unit struct {
	Kind     UnitKind
	Text     string
	FileID   string
	MimeType string
}

// RejectReason tells why content was refused.
type RejectReason string

const (
	RejectTooLarge    RejectReason = "too_large"
	RejectUnsupported RejectReason = "unsupported_format"
)

// Rejection is a content-policy refusal. Notice must be sent back to the chat
// and no Event is produced for the update.
type Rejection struct {
	Reason RejectReason
	Kind   UnitKind
	Notice string
	Size   int64
	Limit  int64
	MIME   string
}

// Classified is the result of classifying one unit: either a canonical message or a rejection.
type Classified struct {
	Message   channel.Message
	MediaType media.MediaType
	File      media.RemoteFile
	Rejected  *Rejection
}

// FileResolver is the part of Client the classifier needs.
type FileResolver interface {
	GetFile(ctx context.Context, fileID string) (media.RemoteFile, error)
	Download(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// Classifier turns raw units into canonical messages while enforcing size and format policy.
type Classifier struct {
	files  FileResolver
	limits media.Limits
	mimes  media.Classifier
}

// NewClassifier creates a Classifier.
func NewClassifier(files FileResolver, limits media.Limits, mimes media.Classifier) *Classifier {
	return &Classifier{files: files, limits: limits, mimes: mimes}
}

// Classify resolves one unit. Content-policy refusals are reported in Classified.Rejected;
// the returned error is reserved for transport failures.
func (c *Classifier) Classify(ctx context.Context, unit Unit) (Classified, error) {
	switch unit.Kind {
	case UnitText:
		return Classified{Message: channel.TextMessage{Text: unit.Text}}, nil
	case UnitPhoto:
		return c.classifyImage(ctx, unit, photoFormat)
	case UnitVoice, UnitAudio:
		return c.classifyAudio(ctx, unit, "")
	case UnitDocument:
		mediaType, err := c.mimes.Classify(unit.MimeType)
		if err != nil {
			mime := strings.TrimSpace(unit.MimeType)
			if mime == "" {
				mime = "unknown"
			}
			return Classified{Rejected: &Rejection{
				Reason: RejectUnsupported,
				Kind:   unit.Kind,
				MIME:   mime,
				Notice: unsupportedFormatNotice(mime),
			}}, nil
		}
		format := media.NormalizeMIME(unit.MimeType)
		if mediaType == media.MediaTypeAudio {
			return c.classifyAudio(ctx, unit, format)
		}
		return c.classifyImage(ctx, unit, format)
	default:
		return Classified{}, fmt.Errorf("%w: unit kind %s", ErrMalformedUpdate, unit.Kind)
	}
}

func (c *Classifier) classifyImage(ctx context.Context, unit Unit, format string) (Classified, error) {
	file, err := c.resolve(ctx, unit)
	if err != nil {
		return Classified{}, err
	}
	if c.limits.Exceeds(media.MediaTypeImage, file.Size) {
		return Classified{Rejected: c.tooLarge(unit.Kind, media.MediaTypeImage, file.Size)}, nil
	}
	return Classified{
		Message:   channel.ImageMessage{URL: file.URL, Format: format},
		MediaType: media.MediaTypeImage,
		File:      file,
	}, nil
}

// classifyAudio downloads audio and embeds it. An empty format means the remote file extension.
func (c *Classifier) classifyAudio(ctx context.Context, unit Unit, format string) (Classified, error) {
	file, err := c.resolve(ctx, unit)
	if err != nil {
		return Classified{}, err
	}
	if c.limits.Exceeds(media.MediaTypeAudio, file.Size) {
		return Classified{Rejected: c.tooLarge(unit.Kind, media.MediaTypeAudio, file.Size)}, nil
	}
	maxBytes := c.limits.For(media.MediaTypeAudio)
	if maxBytes <= 0 {
		maxBytes = media.MaxAssetBytes
	}
	data, err := c.files.Download(ctx, file.URL, maxBytes)
	if err != nil {
		if errors.Is(err, media.ErrAssetTooLarge) {
			// The reported size was missing or wrong; the stream itself overflowed.
			return Classified{Rejected: c.tooLarge(unit.Kind, media.MediaTypeAudio, maxBytes+1)}, nil
		}
		return Classified{}, fmt.Errorf("download %s: %w", unit.Kind, err)
	}
	if file.Size <= 0 {
		file.Size = int64(len(data))
	}
	if format == "" {
		format = file.Format()
	}
	return Classified{
		Message:   channel.AudioMessage{Data: base64.StdEncoding.EncodeToString(data), Format: format},
		MediaType: media.MediaTypeAudio,
		File:      file,
	}, nil
}

func (c *Classifier) resolve(ctx context.Context, unit Unit) (media.RemoteFile, error) {
	if strings.TrimSpace(unit.FileID) == "" {
		return media.RemoteFile{}, fmt.Errorf("%w: %s without file id", ErrMalformedUpdate, unit.Kind)
	}
	if c.files == nil {
		return media.RemoteFile{}, fmt.Errorf("file resolver is not configured")
	}
	file, err := c.files.GetFile(ctx, unit.FileID)
	if err != nil {
		return media.RemoteFile{}, fmt.Errorf("resolve %s metadata: %w", unit.Kind, err)
	}
	return file, nil
}

func (c *Classifier) tooLarge(kind UnitKind, mediaType media.MediaType, size int64) *Rejection {
	limit := c.limits.For(mediaType)
	if limit <= 0 {
		limit = media.MaxAssetBytes
	}
	return &Rejection{
		Reason: RejectTooLarge,
		Kind:   kind,
		Size:   size,
		Limit:  limit,
		Notice: tooLargeNotice(kind, mediaType, size, limit),
	}
}

func tooLargeNotice(kind UnitKind, mediaType media.MediaType, size, limit int64) string {
	measured := media.FormatMiB(size, 2)
	ceiling := media.FormatMiB(limit, 1)
	switch {
	case kind == UnitVoice:
		return fmt.Sprintf("🎤 Your voice message is too long (%s). Please keep voice notes under %s.", measured, ceiling)
	case mediaType == media.MediaTypeAudio:
		return fmt.Sprintf("⚠️ The audio file is too large (%s). Please send an audio file smaller than %s.", measured, ceiling)
	default:
		return fmt.Sprintf("⚠️ The image is too large (%s). Please send an image smaller than %s.", measured, ceiling)
	}
}

func unsupportedFormatNotice(mime string) string {
	return fmt.Sprintf("❌ File format not supported: %s. Please send an accepted audio or image file.", mime)
}
