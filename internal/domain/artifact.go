package domain

import "strings"

// MediaKind enumerates artifact media types.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// MediaArtifact is an immutable media payload produced by one stage and
// handed to the next. Format is a MIME type such as "video/mp4".
type MediaArtifact struct {
	Kind   MediaKind
	Format string
	data   []byte
}

// NewArtifact copies data so later changes by the caller do not leak in.
func NewArtifact(kind MediaKind, format string, data []byte) *MediaArtifact {
	return &MediaArtifact{Kind: kind, Format: format, data: append([]byte(nil), data...)}
}

// Bytes returns a copy of the payload.
func (a *MediaArtifact) Bytes() []byte {
	if a == nil {
		return nil
	}
	return append([]byte(nil), a.data...)
}

// Len returns the payload size in bytes.
func (a *MediaArtifact) Len() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

// Empty reports whether the artifact carries no bytes.
func (a *MediaArtifact) Empty() bool {
	return a.Len() == 0
}

var extensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"audio/webm":      ".webm",
	"video/quicktime": ".mov",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/wave":      ".wav",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/ogg":       ".ogg",
	"audio/flac":      ".flac",
	"audio/aac":       ".aac",
}

// MediaType strips parameters and case from a MIME string.
func MediaType(mime string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mime, ";")[0]))
}

// ExtensionFor maps a MIME type onto a file extension with its leading dot.
// Unknown types get ".bin".
func ExtensionFor(mime string) string {
	if ext, ok := extensions[MediaType(mime)]; ok {
		return ext
	}
	return ".bin"
}

// ContentType returns the artifact's MIME type for HTTP responses.
func (a *MediaArtifact) ContentType() string {
	if a == nil {
		return "application/octet-stream"
	}
	if mt := MediaType(a.Format); strings.Contains(mt, "/") {
		return mt
	}
	return "application/octet-stream"
}

// Extension returns the file extension for the artifact's format.
func (a *MediaArtifact) Extension() string {
	if a == nil {
		return ".bin"
	}
	return ExtensionFor(a.Format)
}
