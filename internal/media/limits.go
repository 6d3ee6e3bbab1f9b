package media

import (
	"fmt"
	"io"
	"strconv"
)

const (
	// MiB is the unit used by every size ceiling and user-facing size label.
	MiB int64 = 1024 * 1024
	// MaxAssetBytes is the global max accepted payload size.
	MaxAssetBytes int64 = 200 * MiB
	// DefaultMaxImageBytes caps inbound images.
	DefaultMaxImageBytes = 3 * MiB
	// DefaultMaxAudioBytes caps inbound audio, voice notes included.
	DefaultMaxAudioBytes = 3 * MiB
)

// Limits holds the per-category size ceilings in bytes.
type Limits struct {
	Image int64
	Audio int64
}

// DefaultLimits returns the stock 3 MiB ceilings.
func DefaultLimits() Limits {
	return Limits{Image: DefaultMaxImageBytes, Audio: DefaultMaxAudioBytes}
}

// For returns the ceiling of the given media type. Zero means unlimited.
func (l Limits) For(mediaType MediaType) int64 {
	switch mediaType {
	case MediaTypeImage:
		return l.Image
	case MediaTypeAudio:
		return l.Audio
	default:
		return 0
	}
}

// Exceeds reports whether size is strictly above the ceiling of mediaType.
func (l Limits) Exceeds(mediaType MediaType, size int64) bool {
	limit := l.For(mediaType)
	return limit > 0 && size > limit
}

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}

// FormatMiB renders size in MiB with the given precision, e.g. "3.00 MB".
func FormatMiB(size int64, precision int) string {
	return strconv.FormatFloat(float64(size)/float64(MiB), 'f', precision, 64) + " MB"
}
