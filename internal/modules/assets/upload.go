package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/yungbote/artprint-backend/internal/observability"
	"github.com/yungbote/artprint-backend/internal/platform/apierr"
	"github.com/yungbote/artprint-backend/internal/platform/objectstore"
)

const (
	retentionClassFinal = "fulfillment_final"
	finalCacheControl   = "private, max-age=0, no-transform"
)

type UploadResult struct {
	Key          string
	CanonicalURI string
	SignedURL    string
	ExpiresAt    time.Time
}

// UploadError is a failed write of a finished print asset. Op names the step
// that failed: validate, upload or sign.
type UploadError struct {
	Op    string
	Key   string
	Cause error
}

func (e *UploadError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("upload final asset %s (%s): %v", e.Key, e.Op, e.Cause)
	}
	return fmt.Sprintf("upload final asset (%s): %v", e.Op, e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }

// UploadFinal writes buf under the order's namespace and returns a
// time-boxed URL to it. Every failure is an upstream_unavailable error
// wrapping *UploadError.
func (s *Service) UploadFinal(ctx context.Context, buf []byte, filename string, ref OrderRef, contentType string) (UploadResult, error) {
	ctx, span := otel.Tracer("artprint/assets").Start(ctx, "assets.UploadFinal")
	defer span.End()

	res, err := s.uploadFinal(ctx, buf, filename, ref, contentType)
	if err != nil {
		observability.Current().ObserveAssetUpload("failure")
		span.RecordError(err)
		s.log.Error("final asset upload failed", "order_id", ref.OrderID, "filename", filename, "error", err)
		return UploadResult{}, apierr.Upstream(err)
	}
	observability.Current().ObserveAssetUpload("success")
	s.log.Info("final asset uploaded",
		"order_id", ref.OrderID,
		"key", res.Key,
		"canonical_uri", res.CanonicalURI,
		"signed_url", res.SignedURL,
		"expires_at", res.ExpiresAt,
	)
	return res, nil
}

func (s *Service) uploadFinal(ctx context.Context, buf []byte, filename string, ref OrderRef, contentType string) (UploadResult, error) {
	key := FinalKey(ref.OrderID, filename)
	switch {
	case s.store == nil:
		return UploadResult{}, &UploadError{Op: "validate", Key: key, Cause: objectstore.ErrNotConfigured}
	case key == "":
		return UploadResult{}, &UploadError{Op: "validate", Cause: errors.New("order id and filename required")}
	case len(buf) == 0:
		return UploadResult{}, &UploadError{Op: "validate", Key: key, Cause: errors.New("empty asset buffer")}
	}

	now := s.now().UTC()
	meta := map[string]string{
		"order_id":        ref.OrderID,
		"retention_class": retentionClassFinal,
		"retain_until":    now.AddDate(0, 0, s.cfg.RetentionDays).Format("2006-01-02"),
	}
	if ref.AssetID != "" {
		meta["asset_id"] = ref.AssetID
	}
	if contentType == "" {
		contentType = objectstore.ContentTypeForKey(key)
	}
	err := s.store.Upload(ctx, key, bytes.NewReader(buf), objectstore.UploadOptions{
		ContentType:  contentType,
		CacheControl: finalCacheControl,
		Metadata:     meta,
	})
	if err != nil {
		return UploadResult{}, &UploadError{Op: "upload", Key: key, Cause: err}
	}

	signed, err := s.store.SignedURL(ctx, key, s.cfg.FinalURLTTL)
	if err != nil {
		return UploadResult{}, &UploadError{Op: "sign", Key: key, Cause: err}
	}
	return UploadResult{
		Key:          key,
		CanonicalURI: s.store.CanonicalURI(key),
		SignedURL:    signed,
		ExpiresAt:    now.Add(s.cfg.FinalURLTTL),
	}, nil
}
