// Package objectstore holds what the GCS and S3 backends share: the Store
// contract and storage mode selection.
package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrNotConfigured marks a backend built without a bucket or credentials.
// Callers treat it as "storage unavailable" rather than a fatal error.
var ErrNotConfigured = errors.New("object storage not configured")

type UploadOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// Store is a single bucket of durable objects.
type Store interface {
	// Exists reports false with a nil error when the key is absent.
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, key string, body io.Reader, opts UploadOptions) error
	CanonicalURI(key string) string
	Bucket() string
	Close() error
}

// ContentTypeForKey guesses a content type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".tif"), strings.HasSuffix(s, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
