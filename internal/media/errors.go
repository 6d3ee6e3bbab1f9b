package media

import "errors"

var (
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrUnsupportedMIME indicates a MIME type outside every configured allow-list.
	ErrUnsupportedMIME = errors.New("media type not supported")
)
