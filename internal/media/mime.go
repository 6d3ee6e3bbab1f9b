package media

import "strings"

var (
	// DefaultImageMIMEs lists the image document types accepted by default.
	DefaultImageMIMEs = []string{"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif"}
	// DefaultAudioMIMEs lists the audio document types accepted by default.
	DefaultAudioMIMEs = []string{"audio/wav", "audio/mp3", "audio/aiff", "audio/aac", "audio/ogg", "audio/flac"}
)

// NormalizeMIME lower-cases a MIME type and drops any parameters.
func NormalizeMIME(raw string) string {
	mime := strings.TrimSpace(raw)
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// AllowList is a read-only set of MIME types.
type AllowList struct {
	set map[string]struct{}
}

// NewAllowList builds an AllowList from raw MIME strings.
func NewAllowList(items []string) AllowList {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if mime := NormalizeMIME(item); mime != "" {
			set[mime] = struct{}{}
		}
	}
	return AllowList{set: set}
}

// Allows reports whether mime is in the list.
func (l AllowList) Allows(mime string) bool {
	_, ok := l.set[NormalizeMIME(mime)]
	return ok
}

// Classifier routes a document MIME type to the media type whose allow-list accepts it.
type Classifier struct {
	Image AllowList
	Audio AllowList
}

// NewClassifier builds a Classifier from the two allow-lists.
func NewClassifier(image, audio []string) Classifier {
	return Classifier{Image: NewAllowList(image), Audio: NewAllowList(audio)}
}

// Classify returns the media type of mime or ErrUnsupportedMIME.
func (c Classifier) Classify(mime string) (MediaType, error) {
	switch {
	case c.Audio.Allows(mime):
		return MediaTypeAudio, nil
	case c.Image.Allows(mime):
		return MediaTypeImage, nil
	default:
		return "", ErrUnsupportedMIME
	}
}
