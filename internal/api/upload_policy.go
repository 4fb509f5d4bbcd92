package api

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/models"
)

// UploadPolicy is the per-category acceptance rule for uploaded files: which
// declared MIME types pass, and how many bytes a single file may carry.
type UploadPolicy struct {
	Kind         models.MediaKind
	MaxFileBytes int64
	AllowedTypes []string

	// allowedSummary is the client-facing list in the rejection message.
	allowedSummary string
}

func DefaultImagePolicy() UploadPolicy {
	return UploadPolicy{
		Kind:         models.MediaKindImage,
		MaxFileBytes: 15 << 20,
		AllowedTypes: []string{
			"image/jpeg",
			"image/png",
			"image/gif",
			"application/pdf",
		},
		allowedSummary: "JPEG, PNG, GIF, PDF",
	}
}

func DefaultVideoPolicy() UploadPolicy {
	return UploadPolicy{
		Kind:         models.MediaKindVideo,
		MaxFileBytes: 400 << 20,
		AllowedTypes: []string{
			"video/mp4",
			"video/quicktime",
			"video/x-msvideo",
			"video/webm",
			"video/avi",
			"video/mpeg",
			"video/mp2t",
			"video/mpeg-2",
			"video/mpeg-4",
			"video/mpeg-4-generic",
		},
		allowedSummary: "MP4, MOV, AVI, WEBM",
	}
}

// Allows reports whether the declared content type is on the allow-list.
// Only the declared type is inspected; file contents are never sniffed.
func (p UploadPolicy) Allows(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = strings.ToLower(parsed)
	}
	for _, allowed := range p.AllowedTypes {
		if mediaType == allowed {
			return true
		}
	}
	return false
}

func (p UploadPolicy) typeError() error {
	summary := p.allowedSummary
	if summary == "" {
		summary = strings.ToUpper(strings.Join(p.AllowedTypes, ", "))
	}
	return fmt.Errorf("Invalid file type. Allowed types: %s", summary)
}

func (p UploadPolicy) sizeError() error {
	return fmt.Errorf("File size exceeds limit of %dMB", p.MaxFileBytes>>20)
}

// errFileTooLarge marks a staging write that hit the policy ceiling.
var errFileTooLarge = errors.New("file exceeds size limit")
