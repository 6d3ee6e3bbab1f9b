package media

import (
	"path"
	"strings"
)

// MediaType classifies the kind of media asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
)

// DefaultFormat is used when a remote file carries no extension.
const DefaultFormat = "bin"

// RemoteFile is a platform-hosted file resolved through a metadata lookup.
type RemoteFile struct {
	ID   string
	URL  string
	Path string
	Size int64
}

// Format returns the lower-cased extension of the remote path, or DefaultFormat.
func (f RemoteFile) Format() string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(f.Path)), ".")
	if ext == "" {
		return DefaultFormat
	}
	return strings.ToLower(ext)
}
